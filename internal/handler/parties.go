package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tezro-seeds/api/internal/database"
	"github.com/tezro-seeds/api/internal/enum"
	"github.com/tezro-seeds/api/internal/middleware"
)

// PartyStore defines the database methods needed by party handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type PartyStore interface {
	ListParties(ctx context.Context, assignedTo pgtype.UUID) ([]database.Party, error)
	GetParty(ctx context.Context, id uuid.UUID) (database.Party, error)
	CreateParty(ctx context.Context, arg database.CreatePartyParams) (database.Party, error)
}

// PartyHandler handles party (dealer/customer) endpoints.
type PartyHandler struct {
	store PartyStore
}

// NewPartyHandler creates a new PartyHandler.
func NewPartyHandler(store PartyStore) *PartyHandler {
	return &PartyHandler{store: store}
}

// RegisterRoutes registers party endpoints on the given Chi router.
func (h *PartyHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
}

// --- Request / Response types ---

type createPartyRequest struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Mobile string `json:"mobile"`
}

type partyResponse struct {
	ID         uuid.UUID `json:"id"`
	Code       *string   `json:"code"`
	Name       string    `json:"name"`
	Mobile     *string   `json:"mobile"`
	AssignedTo *string   `json:"assigned_to"`
	CreatedAt  time.Time `json:"created_at"`
}

func toPartyResponse(p database.Party) partyResponse {
	resp := partyResponse{
		ID:        p.ID,
		Name:      p.Name,
		CreatedAt: p.CreatedAt,
	}
	if p.Code.Valid {
		resp.Code = &p.Code.String
	}
	if p.Mobile.Valid {
		resp.Mobile = &p.Mobile.String
	}
	if p.AssignedTo.Valid {
		s := uuid.UUID(p.AssignedTo.Bytes).String()
		resp.AssignedTo = &s
	}
	return resp
}

// --- Handlers ---

// List returns parties. Submitters only see their own book; back-office
// roles see everything.
func (h *PartyHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	assignedTo := pgtype.UUID{}
	if enum.IsSubmitterRole(claims.Role) {
		assignedTo = pgtype.UUID{Bytes: claims.UserID, Valid: true}
	}

	parties, err := h.store.ListParties(r.Context(), assignedTo)
	if err != nil {
		log.Printf("ERROR: list parties: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]partyResponse, len(parties))
	for i, p := range parties {
		resp[i] = toPartyResponse(p)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single party.
func (h *PartyHandler) Get(w http.ResponseWriter, r *http.Request) {
	partyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid party ID"})
		return
	}

	party, err := h.store.GetParty(r.Context(), partyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "party not found"})
			return
		}
		log.Printf("ERROR: get party: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toPartyResponse(party))
}

// Create adds a new party to the caller's book.
func (h *PartyHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createPartyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	code := pgtype.Text{}
	if req.Code != "" {
		code = pgtype.Text{String: req.Code, Valid: true}
	}
	mobile := pgtype.Text{}
	if req.Mobile != "" {
		mobile = pgtype.Text{String: req.Mobile, Valid: true}
	}

	assignedTo := pgtype.UUID{}
	if enum.IsSubmitterRole(claims.Role) {
		assignedTo = pgtype.UUID{Bytes: claims.UserID, Valid: true}
	}

	party, err := h.store.CreateParty(r.Context(), database.CreatePartyParams{
		Code:       code,
		Name:       req.Name,
		Mobile:     mobile,
		AssignedTo: assignedTo,
	})
	if err != nil {
		if isUniqueViolation(err) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "party code already exists"})
			return
		}
		log.Printf("ERROR: create party: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toPartyResponse(party))
}
