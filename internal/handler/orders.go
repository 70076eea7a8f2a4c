package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tezro-seeds/api/internal/database"
	"github.com/tezro-seeds/api/internal/enum"
	"github.com/tezro-seeds/api/internal/middleware"
	"github.com/tezro-seeds/api/internal/service"
	"github.com/tezro-seeds/api/internal/workflow"
	"github.com/tezro-seeds/api/internal/ws"
)

// OrderCreator defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (database.Order, error)
}

// OrderTransitioner runs workflow transitions.
// Satisfied by *workflow.Engine; narrow interface for testability.
type OrderTransitioner interface {
	Transition(ctx context.Context, actor workflow.Actor, orderID uuid.UUID, req workflow.TransitionRequest) (database.Order, error)
}

// OrderStore defines the database methods needed by order read/delete handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	DeleteOrder(ctx context.Context, id uuid.UUID) (int64, error)
	DeleteOrdersByParty(ctx context.Context, partyName string) (int64, error)
}

// Broadcaster pushes order events to connected dashboards.
// Satisfied by *ws.Hub.
type Broadcaster interface {
	BroadcastToRoles(roles []string, event ws.Event)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc    OrderCreator
	engine OrderTransitioner
	store  OrderStore
	hub    Broadcaster
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderCreator, engine OrderTransitioner, store OrderStore, hub Broadcaster) *OrderHandler {
	return &OrderHandler{svc: svc, engine: engine, store: store, hub: hub}
}

// RegisterRoutes registers order endpoints on the given Chi router.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/transition", h.Transition)
	r.Delete("/{id}", h.Delete)
	r.Delete("/", h.DeleteByParty)
}

// --- Request / Response types ---

type createOrderRequest struct {
	PartyCode   string                   `json:"party_code"`
	PartyName   string                   `json:"party_name"`
	PartyMobile string                   `json:"party_mobile"`
	Pod         string                   `json:"pod"`
	ContactInfo string                   `json:"contact_info"`
	Lines       []createOrderLineRequest `json:"lines"`
}

type createOrderLineRequest struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Variety   string `json:"variety"`
	PackSize  string `json:"pack_size"`
	PackType  string `json:"pack_type"`
	Season    string `json:"season"`
	Quantity  int32  `json:"quantity"`
	Credit    string `json:"credit"`
	Debit     string `json:"debit"`
	AddedBy   string `json:"added_by"`
}

type transitionRequest struct {
	Status            string                   `json:"status"`
	CommitmentMessage string                   `json:"commitment_message"`
	CommitmentDate    string                   `json:"commitment_date"` // RFC3339
	RejectionMessage  string                   `json:"rejection_message"`
	Lines             []createOrderLineRequest `json:"lines"`
}

type orderLineResponse struct {
	ProductID string `json:"product_id,omitempty"`
	Name      string `json:"name"`
	Category  string `json:"category,omitempty"`
	Variety   string `json:"variety,omitempty"`
	PackSize  string `json:"pack_size,omitempty"`
	PackType  string `json:"pack_type,omitempty"`
	Season    string `json:"season,omitempty"`
	Quantity  int32  `json:"quantity"`
	Credit    string `json:"credit"`
	Debit     string `json:"debit"`
	AddedBy   string `json:"added_by,omitempty"`
}

type orderResponse struct {
	ID                  uuid.UUID           `json:"id"`
	RefCode             string              `json:"ref_code"`
	SoID                uuid.UUID           `json:"so_id"`
	SoName              string              `json:"so_name"`
	RsmID               *string             `json:"rsm_id"`
	RsmName             *string             `json:"rsm_name"`
	PartyCode           *string             `json:"party_code"`
	PartyName           string              `json:"party_name"`
	PartyMobile         *string             `json:"party_mobile"`
	Pod                 *string             `json:"pod"`
	ContactInfo         *string             `json:"contact_info"`
	Status              string              `json:"status"`
	CommitmentMessage   *string             `json:"commitment_message"`
	CommitmentDate      *time.Time          `json:"commitment_date"`
	RejectionMessage    *string             `json:"rejection_message"`
	FinalApprovedByName *string             `json:"final_approved_by_name"`
	Lines               []orderLineResponse `json:"lines"`
	Balance             *string             `json:"balance"`
	CreatedAt           time.Time           `json:"created_at"`
}

// orderListResponse wraps a list of orders with pagination metadata.
type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// --- Handlers ---

// Create handles POST /orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	svcLines := make([]service.CreateOrderLineRequest, len(req.Lines))
	for i, line := range req.Lines {
		svcLines[i] = service.CreateOrderLineRequest{
			ProductID: line.ProductID,
			Name:      line.Name,
			Category:  line.Category,
			Variety:   line.Variety,
			PackSize:  line.PackSize,
			PackType:  line.PackType,
			Season:    line.Season,
			Quantity:  line.Quantity,
			Credit:    line.Credit,
			Debit:     line.Debit,
		}
	}

	order, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		SubmitterID: claims.UserID,
		PartyCode:   req.PartyCode,
		PartyName:   req.PartyName,
		PartyMobile: req.PartyMobile,
		Pod:         req.Pod,
		ContactInfo: req.ContactInfo,
		Lines:       svcLines,
	})
	if err != nil {
		h.writeWorkflowError(w, err, "create order")
		return
	}

	h.broadcastOrderEvent("order.created", order)
	writeJSON(w, http.StatusCreated, toOrderResponse(order, claims.Role))
}

// List handles GET /orders. Visibility depends on the caller's role:
// submitters see their own orders, regional managers see orders assigned
// to them, the owner sees reviewed and finalized orders, and logistics
// plus admin see everything.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	// Parse pagination
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	params := database.ListOrdersParams{
		Limit:  int32(limit),
		Offset: int32(offset),
	}

	switch claims.Role {
	case enum.RoleRSM:
		params.RsmID = pgtype.UUID{Bytes: claims.UserID, Valid: true}
	case enum.RoleOwner:
		params.Statuses = []string{
			enum.OrderStatusLogisticReviewed,
			enum.OrderStatusApproved,
			enum.OrderStatusRejected,
		}
	case enum.RoleLogistic:
		// Logistics picks up orders once they clear the manager tier;
		// Pending and manager-rejected orders never reach the depot.
		params.Statuses = logisticVisibleStatuses
	case enum.RoleAdmin:
		// Full visibility.
	default:
		if !enum.IsSubmitterRole(claims.Role) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "insufficient permissions"})
			return
		}
		params.SoID = pgtype.UUID{Bytes: claims.UserID, Valid: true}
	}

	if s := r.URL.Query().Get("status"); s != "" {
		statuses, err := parseStatusFilter(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if params.Statuses != nil {
			statuses = intersect(params.Statuses, statuses)
			// The requested filter falls entirely outside this role's
			// visibility scope; nothing can match.
			if len(statuses) == 0 {
				writeJSON(w, http.StatusOK, orderListResponse{
					Orders: []orderResponse{},
					Limit:  limit,
					Offset: offset,
				})
				return
			}
		}
		params.Statuses = statuses
	}
	if s := r.URL.Query().Get("party"); s != "" {
		params.PartyName = pgtype.Text{String: s, Valid: true}
	}
	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start_date format, use YYYY-MM-DD"})
			return
		}
		params.StartDate = pgtype.Timestamptz{Time: t, Valid: true}
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid end_date format, use YYYY-MM-DD"})
			return
		}
		params.EndDate = pgtype.Timestamptz{Time: t, Valid: true}
	}

	orders, err := h.store.ListOrders(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o, claims.Role)
	}

	writeJSON(w, http.StatusOK, orderListResponse{
		Orders: resp,
		Limit:  limit,
		Offset: offset,
	})
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if !canSeeOrder(claims.UserID, claims.Role, order) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order, claims.Role))
}

// Transition handles POST /orders/{id}/transition.
func (h *OrderHandler) Transition(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	wfReq := workflow.TransitionRequest{
		Target:            req.Status,
		CommitmentMessage: req.CommitmentMessage,
		RejectionMessage:  req.RejectionMessage,
	}
	if req.CommitmentDate != "" {
		t, err := time.Parse(time.RFC3339, req.CommitmentDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid commitment_date format, use RFC3339"})
			return
		}
		wfReq.CommitmentDate = t
	}
	if req.Lines != nil {
		wfReq.Lines = make([]workflow.LineEdit, len(req.Lines))
		for i, line := range req.Lines {
			wfReq.Lines[i] = workflow.LineEdit{
				ProductID: line.ProductID,
				Name:      line.Name,
				Category:  line.Category,
				Variety:   line.Variety,
				PackSize:  line.PackSize,
				PackType:  line.PackType,
				Season:    line.Season,
				Quantity:  line.Quantity,
				Credit:    line.Credit,
				Debit:     line.Debit,
				AddedBy:   line.AddedBy,
			}
		}
	}

	actor := workflow.Actor{ID: claims.UserID, Name: claims.Name, Role: claims.Role}
	order, err := h.engine.Transition(r.Context(), actor, orderID, wfReq)
	if err != nil {
		h.writeWorkflowError(w, err, "transition order")
		return
	}

	h.broadcastOrderEvent("order.updated", order)
	writeJSON(w, http.StatusOK, toOrderResponse(order, claims.Role))
}

// Delete handles DELETE /orders/{id}. Admin only; this bypasses the
// workflow entirely and removes the order regardless of status.
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	n, err := h.store.DeleteOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: delete order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if n == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}

	log.Printf("ADMIN: user %s hard-deleted order %s", claims.UserID, orderID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// DeleteByParty handles DELETE /orders?party=. Admin only.
func (h *OrderHandler) DeleteByParty(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	party := strings.TrimSpace(r.URL.Query().Get("party"))
	if party == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "party query parameter is required"})
		return
	}

	n, err := h.store.DeleteOrdersByParty(r.Context(), party)
	if err != nil {
		log.Printf("ERROR: delete orders by party: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	log.Printf("ADMIN: user %s hard-deleted %d orders for party %q", claims.UserID, n, party)
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// --- Helpers ---

// writeWorkflowError maps workflow sentinel errors to HTTP status codes.
func (h *OrderHandler) writeWorkflowError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, workflow.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, workflow.ErrPermission):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, workflow.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case errors.Is(err, workflow.ErrInvalidTransition), errors.Is(err, workflow.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

// broadcastOrderEvent notifies the tiers that can see the order in its
// current status.
func (h *OrderHandler) broadcastOrderEvent(eventType string, order database.Order) {
	payload, err := json.Marshal(map[string]string{
		"id":       order.ID.String(),
		"ref_code": order.RefCode,
		"status":   order.Status,
	})
	if err != nil {
		log.Printf("ERROR: marshal %s event: %v", eventType, err)
		return
	}

	roles := []string{enum.RoleLogistic, enum.RoleAdmin}
	switch order.Status {
	case enum.OrderStatusPending, enum.OrderStatusRejectedByRSM:
		roles = append(roles, enum.RoleRSM)
	case enum.OrderStatusLogisticReviewed, enum.OrderStatusApproved, enum.OrderStatusRejected:
		roles = append(roles, enum.RoleOwner)
	}
	roles = append(roles, enum.SubmitterRoles...)

	h.hub.BroadcastToRoles(roles, ws.Event{Type: eventType, Payload: payload})
}

// logisticVisibleStatuses are the states logistics can act on or review.
var logisticVisibleStatuses = []string{
	enum.OrderStatusPlaced,
	enum.OrderStatusRSMSubmitted,
	enum.OrderStatusLogisticReviewed,
	enum.OrderStatusApproved,
	enum.OrderStatusRejected,
	enum.OrderStatusRejectedByLogistic,
}

// canSeeOrder applies the same visibility rules as List to a single order.
func canSeeOrder(userID uuid.UUID, role string, order database.Order) bool {
	switch role {
	case enum.RoleAdmin:
		return true
	case enum.RoleOwner:
		return order.Status == enum.OrderStatusLogisticReviewed ||
			order.Status == enum.OrderStatusApproved ||
			order.Status == enum.OrderStatusRejected
	case enum.RoleLogistic:
		for _, s := range logisticVisibleStatuses {
			if order.Status == s {
				return true
			}
		}
		return false
	case enum.RoleRSM:
		return order.RsmID.Valid && uuid.UUID(order.RsmID.Bytes) == userID
	default:
		return enum.IsSubmitterRole(role) && order.SoID == userID
	}
}

// parseStatusFilter expands the comma-separated status query parameter.
// The shorthand "rejected" covers all three rejection states.
func parseStatusFilter(s string) ([]string, error) {
	var statuses []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if enum.IsValidOrderStatus(part) {
			statuses = append(statuses, part)
			continue
		}
		if strings.EqualFold(part, "rejected") {
			statuses = append(statuses, enum.RejectedStatuses...)
			continue
		}
		return nil, errors.New("invalid status filter: " + part)
	}
	return statuses, nil
}

func intersect(a, b []string) []string {
	var out []string
	for _, x := range b {
		for _, y := range a {
			if x == y {
				out = append(out, x)
				break
			}
		}
	}
	return out
}

// toOrderResponse converts a database.Order for the given viewer role.
// Ledger lines added during logistics review are hidden from submitters,
// and the running balance is only shown to back-office tiers.
func toOrderResponse(o database.Order, viewerRole string) orderResponse {
	resp := orderResponse{
		ID:        o.ID,
		RefCode:   o.RefCode,
		SoID:      o.SoID,
		SoName:    o.SoName,
		PartyName: o.PartyName,
		Status:    o.Status,
		CreatedAt: o.CreatedAt,
	}

	if o.RsmID.Valid {
		s := uuid.UUID(o.RsmID.Bytes).String()
		resp.RsmID = &s
	}
	if o.RsmName.Valid {
		resp.RsmName = &o.RsmName.String
	}
	if o.PartyCode.Valid {
		resp.PartyCode = &o.PartyCode.String
	}
	if o.PartyMobile.Valid {
		resp.PartyMobile = &o.PartyMobile.String
	}
	if o.Pod.Valid {
		resp.Pod = &o.Pod.String
	}
	if o.ContactInfo.Valid {
		resp.ContactInfo = &o.ContactInfo.String
	}
	if o.CommitmentMessage.Valid {
		resp.CommitmentMessage = &o.CommitmentMessage.String
	}
	if o.CommitmentDate.Valid {
		resp.CommitmentDate = &o.CommitmentDate.Time
	}
	if o.RejectionMessage.Valid {
		resp.RejectionMessage = &o.RejectionMessage.String
	}
	if o.FinalApprovedByName.Valid {
		resp.FinalApprovedByName = &o.FinalApprovedByName.String
	}

	submitterView := enum.IsSubmitterRole(viewerRole)

	resp.Lines = make([]orderLineResponse, 0, len(o.Lines))
	for _, line := range o.Lines {
		if submitterView && line.AddedBy == enum.LineAddedByLogistics {
			continue
		}
		resp.Lines = append(resp.Lines, orderLineResponse{
			ProductID: line.ProductID,
			Name:      line.Name,
			Category:  line.Category,
			Variety:   line.Variety,
			PackSize:  line.PackSize,
			PackType:  line.PackType,
			Season:    line.Season,
			Quantity:  line.Quantity,
			Credit:    line.Credit.String(),
			Debit:     line.Debit.String(),
			AddedBy:   line.AddedBy,
		})
	}

	if !submitterView && o.Balance.Valid {
		s := numericToString(o.Balance)
		resp.Balance = &s
	}

	return resp
}

func numericToString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0.00"
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return "0.00"
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return "0.00"
	}
	return d.StringFixed(2)
}
