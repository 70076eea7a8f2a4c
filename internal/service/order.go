// Package service holds order creation logic: submitter validation, catalog
// enrichment, the restricted-category guard, reference code generation, and
// routing the new order to the right starting status.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tezro-seeds/api/internal/database"
	"github.com/tezro-seeds/api/internal/enum"
	"github.com/tezro-seeds/api/internal/workflow"
)

const maxRefCodeRetries = 3

// OrderStore defines the DB methods needed to create orders.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error)
	GetProduct(ctx context.Context, id uuid.UUID) (database.Product, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
}

// CreateOrderRequest is the input for creating an order. Submitter fields
// come from the authenticated token, never from the request body.
type CreateOrderRequest struct {
	SubmitterID uuid.UUID
	PartyCode   string
	PartyName   string
	PartyMobile string
	Pod         string
	ContactInfo string
	Lines       []CreateOrderLineRequest
}

// CreateOrderLineRequest is a single line item. ProductID is optional; when
// set, catalog data fills in any blank descriptive fields.
type CreateOrderLineRequest struct {
	ProductID string
	Name      string
	Category  string
	Variety   string
	PackSize  string
	PackType  string
	Season    string
	Quantity  int32
	Credit    string
	Debit     string
}

// OrderService handles order creation.
type OrderService struct {
	store OrderStore

	// refSuffix generates the numeric part of a reference code.
	// Overridable in tests.
	refSuffix func() int
}

// NewOrderService creates a new OrderService.
func NewOrderService(store OrderStore) *OrderService {
	return &OrderService{
		store:     store,
		refSuffix: func() int { return rand.IntN(1_000_000) },
	}
}

// CreateOrder validates the request and inserts the order in its starting
// status. Sales officer orders start Pending and are assigned to the
// officer's regional manager; all other submitter tiers start Placed and go
// straight to logistics review. Retries on reference code collisions.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (database.Order, error) {
	submitter, err := s.store.GetUserByID(ctx, req.SubmitterID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, fmt.Errorf("%w: submitter not found", workflow.ErrPermission)
		}
		return database.Order{}, fmt.Errorf("get submitter: %w", err)
	}
	if !enum.IsSubmitterRole(submitter.Role) {
		return database.Order{}, fmt.Errorf("%w: role %q cannot create orders", workflow.ErrPermission, submitter.Role)
	}

	if strings.TrimSpace(req.PartyName) == "" {
		return database.Order{}, fmt.Errorf("%w: party name is required", workflow.ErrValidation)
	}
	if strings.TrimSpace(req.PartyMobile) == "" {
		return database.Order{}, fmt.Errorf("%w: party mobile is required", workflow.ErrValidation)
	}
	if strings.TrimSpace(req.ContactInfo) == "" {
		return database.Order{}, fmt.Errorf("%w: contact info is required", workflow.ErrValidation)
	}
	if strings.TrimSpace(req.Pod) == "" {
		return database.Order{}, fmt.Errorf("%w: pod is required", workflow.ErrValidation)
	}
	if len(req.Lines) == 0 {
		return database.Order{}, fmt.Errorf("%w: at least one line item is required", workflow.ErrValidation)
	}

	lines, err := s.buildLines(ctx, req.Lines)
	if err != nil {
		return database.Order{}, err
	}
	if err := checkCategoryMix(lines); err != nil {
		return database.Order{}, err
	}

	params := database.CreateOrderParams{
		SoID:        submitter.ID,
		SoName:      submitter.Name,
		PartyName:   strings.TrimSpace(req.PartyName),
		PartyCode:   textOrNull(req.PartyCode),
		PartyMobile: textOrNull(req.PartyMobile),
		Pod:         textOrNull(req.Pod),
		ContactInfo: textOrNull(req.ContactInfo),
		Lines:       lines,
		CreatedBy:   submitter.ID,
	}

	prefix := "DEAL"
	if submitter.Role == enum.RoleSalesOfficer {
		prefix = "ORD"
	}

	// Officers with an assigned regional manager route through the manager
	// tier; everyone else skips straight to logistics.
	params.Status = enum.OrderStatusPlaced
	if submitter.Role == enum.RoleSalesOfficer && submitter.ReportsTo.Valid {
		manager, err := s.store.GetUserByID(ctx, uuid.UUID(submitter.ReportsTo.Bytes))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return database.Order{}, fmt.Errorf("%w: assigned manager not found", workflow.ErrValidation)
			}
			return database.Order{}, fmt.Errorf("get manager: %w", err)
		}
		params.Status = enum.OrderStatusPending
		params.RsmID = pgtype.UUID{Bytes: manager.ID, Valid: true}
		params.RsmName = pgtype.Text{String: manager.Name, Valid: true}
	}

	var lastErr error
	for attempt := 0; attempt < maxRefCodeRetries; attempt++ {
		params.RefCode = fmt.Sprintf("%s-%d-%06d", prefix, time.Now().Year(), s.refSuffix())
		order, err := s.store.CreateOrder(ctx, params)
		if err == nil {
			return order, nil
		}
		if isRefCodeConflict(err) {
			lastErr = err
			continue
		}
		return database.Order{}, fmt.Errorf("create order: %w", err)
	}
	return database.Order{}, fmt.Errorf("create order: %w", lastErr)
}

// buildLines validates each line, enriches catalog-backed lines from the
// products table, and coerces amounts.
func (s *OrderService) buildLines(ctx context.Context, reqs []CreateOrderLineRequest) ([]database.OrderLine, error) {
	lines := make([]database.OrderLine, len(reqs))
	for i, lr := range reqs {
		line := database.OrderLine{
			Name:     strings.TrimSpace(lr.Name),
			Category: strings.TrimSpace(lr.Category),
			Variety:  lr.Variety,
			PackSize: lr.PackSize,
			PackType: lr.PackType,
			Season:   lr.Season,
			Quantity: lr.Quantity,
		}

		if lr.ProductID != "" {
			productID, err := uuid.Parse(lr.ProductID)
			if err != nil {
				return nil, fmt.Errorf("%w: lines[%d]: invalid product id", workflow.ErrValidation, i)
			}
			product, err := s.store.GetProduct(ctx, productID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return nil, fmt.Errorf("%w: lines[%d]: product not found", workflow.ErrValidation, i)
				}
				return nil, fmt.Errorf("get product: %w", err)
			}
			line.ProductID = product.ID.String()
			if line.Name == "" {
				line.Name = product.Name
			}
			if line.Category == "" && product.Category.Valid {
				line.Category = product.Category.String
			}
			if line.Variety == "" && product.Variety.Valid {
				line.Variety = product.Variety.String
			}
			if line.PackSize == "" && product.PackSize.Valid {
				line.PackSize = product.PackSize.String
			}
			if line.PackType == "" && product.PackType.Valid {
				line.PackType = product.PackType.String
			}
		}

		if line.Name == "" {
			return nil, fmt.Errorf("%w: lines[%d]: name is required", workflow.ErrValidation, i)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: lines[%d]: quantity must be > 0", workflow.ErrValidation, i)
		}

		credit, err := parseAmount(lr.Credit)
		if err != nil {
			return nil, fmt.Errorf("%w: lines[%d]: credit must be >= 0", workflow.ErrValidation, i)
		}
		debit, err := parseAmount(lr.Debit)
		if err != nil {
			return nil, fmt.Errorf("%w: lines[%d]: debit must be >= 0", workflow.ErrValidation, i)
		}
		line.Credit = credit
		line.Debit = debit

		lines[i] = line
	}
	return lines, nil
}

// checkCategoryMix enforces that the restricted category group travels
// alone: once any line falls in the group, every line must.
func checkCategoryMix(lines []database.OrderLine) error {
	grouped := false
	for _, line := range lines {
		if isRestrictedCategory(line) {
			grouped = true
			break
		}
	}
	if !grouped {
		return nil
	}
	for i, line := range lines {
		if !isRestrictedCategory(line) {
			return fmt.Errorf("%w: lines[%d]: restricted categories cannot be combined with other categories",
				workflow.ErrValidation, i)
		}
	}
	return nil
}

// isRestrictedCategory matches the line's category or name against the
// restricted list, case-insensitively.
func isRestrictedCategory(line database.OrderLine) bool {
	category := strings.ToLower(line.Category)
	name := strings.ToLower(line.Name)
	for _, rc := range enum.RestrictedCategories {
		if category == rc || strings.Contains(name, rc) {
			return true
		}
	}
	return false
}

// parseAmount reads a free-form amount field. Empty or non-numeric input
// counts as zero; negative amounts are rejected.
func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, nil
	}
	if d.IsNegative() {
		return decimal.Zero, errors.New("negative amount")
	}
	return d, nil
}

// isRefCodeConflict checks for a unique constraint violation on ref_code
// (pgconn error code 23505).
func isRefCodeConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_ref_code_key"
	}
	return false
}

func textOrNull(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
