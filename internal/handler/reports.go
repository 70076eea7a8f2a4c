package handler

import (
	"context"
	"encoding/csv"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tezro-seeds/api/internal/database"
)

// ReportsStore defines the database methods needed by report handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ReportsStore interface {
	GetOrderStatusSummary(ctx context.Context) ([]database.GetOrderStatusSummaryRow, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
}

// ReportsHandler handles report endpoints.
type ReportsHandler struct {
	store ReportsStore
}

// NewReportsHandler creates a new ReportsHandler.
func NewReportsHandler(store ReportsStore) *ReportsHandler {
	return &ReportsHandler{store: store}
}

// RegisterRoutes registers report endpoints on the given Chi router.
// Restricted to back-office roles at the router level.
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/orders/summary", h.OrderSummary)
	r.Get("/orders/export", h.ExportOrders)
}

// --- Response types ---

type orderSummaryResponse struct {
	Status     string `json:"status"`
	OrderCount int64  `json:"order_count"`
	Balance    string `json:"balance"`
}

// --- Handlers ---

// OrderSummary returns order counts and balance totals per status.
func (h *ReportsHandler) OrderSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.GetOrderStatusSummary(r.Context())
	if err != nil {
		log.Printf("ERROR: get order summary: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderSummaryResponse, len(rows))
	for i, row := range rows {
		resp[i] = orderSummaryResponse{
			Status:     row.Status,
			OrderCount: row.OrderCount,
			Balance:    numericToString(row.Balance),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// exportHeader matches the spreadsheet layout the back office works with:
// one row per line item, with order-level columns repeated.
var exportHeader = []string{
	"Ref Code", "Date", "SO Name", "RSM Name", "Party Name", "Mobile", "POD",
	"Status", "Product", "Category", "Variety", "Pack Size", "Pack Type",
	"Quantity", "Credit", "Debit", "Added By", "Balance",
}

// ExportOrders streams orders as CSV. Accepts the same status, party, and
// date filters as the order list.
func (h *ReportsHandler) ExportOrders(w http.ResponseWriter, r *http.Request) {
	params := database.ListOrdersParams{
		Limit:  10000,
		Offset: 0,
	}

	if s := r.URL.Query().Get("status"); s != "" {
		statuses, err := parseStatusFilter(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
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
		log.Printf("ERROR: export orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="orders-`+time.Now().Format("2006-01-02")+`.csv"`)

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		log.Printf("ERROR: write csv header: %v", err)
		return
	}

	for _, o := range orders {
		rsmName := ""
		if o.RsmName.Valid {
			rsmName = o.RsmName.String
		}
		mobile := ""
		if o.PartyMobile.Valid {
			mobile = o.PartyMobile.String
		}
		pod := ""
		if o.Pod.Valid {
			pod = o.Pod.String
		}
		balance := ""
		if o.Balance.Valid {
			balance = numericToString(o.Balance)
		}
		date := o.CreatedAt.Format("2006-01-02")

		for _, line := range o.Lines {
			record := []string{
				o.RefCode, date, o.SoName, rsmName, o.PartyName, mobile, pod,
				o.Status, line.Name, line.Category, line.Variety,
				line.PackSize, line.PackType,
				itoa(line.Quantity), line.Credit.String(), line.Debit.String(),
				line.AddedBy, balance,
			}
			if err := cw.Write(record); err != nil {
				log.Printf("ERROR: write csv record: %v", err)
				return
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		log.Printf("ERROR: flush csv: %v", err)
	}
}

func itoa(n int32) string {
	return strconv.Itoa(int(n))
}
