// Package workflow owns the order status state machine: which transitions
// exist, which role may perform each, the data preconditions, and the side
// effects (commitment capture, balance recomputation, actor stamping) that
// accompany them. All writes go through single conditional updates keyed on
// the expected current status, so a transition either fully commits or does
// not commit at all.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tezro-seeds/api/internal/database"
	"github.com/tezro-seeds/api/internal/enum"
)

// Errors returned by the workflow engine.
var (
	ErrValidation        = errors.New("validation failed")
	ErrPermission        = errors.New("role not permitted for this transition")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("order status changed, please refresh")
	ErrOrderNotFound     = errors.New("order not found")
)

// Actor is the authenticated principal attempting a transition.
type Actor struct {
	ID   uuid.UUID
	Name string
	Role string
}

// LineEdit is a line item as submitted by a logistics reviewer. Credit and
// debit arrive as free-form strings from dashboard inputs; anything that
// does not parse as a number is treated as zero.
type LineEdit struct {
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
	AddedBy   string
}

// TransitionRequest carries the role-specific inputs for a transition.
// Lines is only consulted on the logistics review edge; nil keeps the
// stored line set.
type TransitionRequest struct {
	Target            string
	CommitmentMessage string
	CommitmentDate    time.Time
	RejectionMessage  string
	Lines             []LineEdit
}

// OrderStore defines the DB methods needed to run transitions.
// Satisfied by *database.Queries.
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	SubmitOrderCommitment(ctx context.Context, arg database.SubmitOrderCommitmentParams) (database.Order, error)
	RejectOrderByRSM(ctx context.Context, arg database.RejectOrderByRSMParams) (database.Order, error)
	ReviewOrderByLogistics(ctx context.Context, arg database.ReviewOrderByLogisticsParams) (database.Order, error)
	RejectOrderByLogistics(ctx context.Context, arg database.RejectOrderByLogisticsParams) (database.Order, error)
	RevertOrderToPending(ctx context.Context, id uuid.UUID) (database.Order, error)
	ApproveOrderFinal(ctx context.Context, arg database.ApproveOrderFinalParams) (database.Order, error)
	RejectOrderFinal(ctx context.Context, arg database.RejectOrderFinalParams) (database.Order, error)
	RevertOrderFromReview(ctx context.Context, arg database.RevertOrderFromReviewParams) (database.Order, error)
}

// Engine enforces the order workflow.
type Engine struct {
	store OrderStore
}

// NewEngine creates a workflow engine backed by the given store.
func NewEngine(store OrderStore) *Engine {
	return &Engine{store: store}
}

type edgeKey struct {
	from string
	to   string
}

type edge struct {
	role  string
	check func(o database.Order, actor Actor, req TransitionRequest) error
	apply func(ctx context.Context, s OrderStore, o database.Order, actor Actor, req TransitionRequest) (database.Order, error)
}

// requireAssignedRSM rejects regional-manager actions on orders that are
// not assigned to the acting manager.
func requireAssignedRSM(o database.Order, actor Actor) error {
	if !o.RsmID.Valid || uuid.UUID(o.RsmID.Bytes) != actor.ID {
		return fmt.Errorf("%w: order is not assigned to this manager", ErrPermission)
	}
	return nil
}

var transitions = map[edgeKey]edge{
	{enum.OrderStatusPending, enum.OrderStatusRSMSubmitted}: {
		role: enum.RoleRSM,
		check: func(o database.Order, actor Actor, req TransitionRequest) error {
			if err := requireAssignedRSM(o, actor); err != nil {
				return err
			}
			if req.CommitmentMessage == "" || req.CommitmentDate.IsZero() {
				return fmt.Errorf("%w: commitment message and commitment date are required", ErrValidation)
			}
			return nil
		},
		apply: func(ctx context.Context, s OrderStore, o database.Order, actor Actor, req TransitionRequest) (database.Order, error) {
			return s.SubmitOrderCommitment(ctx, database.SubmitOrderCommitmentParams{
				ID:                o.ID,
				CommitmentMessage: req.CommitmentMessage,
				CommitmentDate:    pgtype.Timestamptz{Time: req.CommitmentDate, Valid: true},
				ApprovedBy:        actor.ID,
			})
		},
	},

	{enum.OrderStatusPending, enum.OrderStatusRejectedByRSM}: {
		role: enum.RoleRSM,
		check: func(o database.Order, actor Actor, req TransitionRequest) error {
			return requireAssignedRSM(o, actor)
		},
		apply: func(ctx context.Context, s OrderStore, o database.Order, actor Actor, req TransitionRequest) (database.Order, error) {
			return s.RejectOrderByRSM(ctx, database.RejectOrderByRSMParams{
				ID:         o.ID,
				ApprovedBy: actor.ID,
			})
		},
	},

	{enum.OrderStatusRSMSubmitted, enum.OrderStatusLogisticReviewed}: {
		role:  enum.RoleLogistic,
		check: checkReviewLines,
		apply: applyLogisticsReview,
	},

	{enum.OrderStatusPlaced, enum.OrderStatusLogisticReviewed}: {
		role:  enum.RoleLogistic,
		check: checkReviewLines,
		apply: applyLogisticsReview,
	},

	{enum.OrderStatusRSMSubmitted, enum.OrderStatusRejectedByLogistic}: {
		role:  enum.RoleLogistic,
		check: checkRejectionMessage,
		apply: applyLogisticsReject,
	},

	{enum.OrderStatusPlaced, enum.OrderStatusRejectedByLogistic}: {
		role:  enum.RoleLogistic,
		check: checkRejectionMessage,
		apply: applyLogisticsReject,
	},

	{enum.OrderStatusRSMSubmitted, enum.OrderStatusPending}: {
		role: enum.RoleLogistic,
		apply: func(ctx context.Context, s OrderStore, o database.Order, actor Actor, req TransitionRequest) (database.Order, error) {
			return s.RevertOrderToPending(ctx, o.ID)
		},
	},

	{enum.OrderStatusLogisticReviewed, enum.OrderStatusApproved}: {
		role: enum.RoleOwner,
		apply: func(ctx context.Context, s OrderStore, o database.Order, actor Actor, req TransitionRequest) (database.Order, error) {
			return s.ApproveOrderFinal(ctx, database.ApproveOrderFinalParams{
				ID:                  o.ID,
				FinalApprovedBy:     actor.ID,
				FinalApprovedByName: actor.Name,
			})
		},
	},

	{enum.OrderStatusLogisticReviewed, enum.OrderStatusRejected}: {
		role: enum.RoleOwner,
		apply: func(ctx context.Context, s OrderStore, o database.Order, actor Actor, req TransitionRequest) (database.Order, error) {
			return s.RejectOrderFinal(ctx, database.RejectOrderFinalParams{
				ID:         o.ID,
				RejectedBy: actor.ID,
			})
		},
	},

	// Executive revert routes back to whichever tier owns the order:
	// BM/RSM Submitted when a regional manager is assigned, Placed otherwise.
	{enum.OrderStatusLogisticReviewed, enum.OrderStatusRSMSubmitted}: {
		role: enum.RoleOwner,
		check: func(o database.Order, actor Actor, req TransitionRequest) error {
			if !o.RsmID.Valid {
				return fmt.Errorf("%w: order has no regional manager, revert to %q instead",
					ErrInvalidTransition, enum.OrderStatusPlaced)
			}
			return nil
		},
		apply: applyExecutiveRevert,
	},

	{enum.OrderStatusLogisticReviewed, enum.OrderStatusPlaced}: {
		role: enum.RoleOwner,
		check: func(o database.Order, actor Actor, req TransitionRequest) error {
			if o.RsmID.Valid {
				return fmt.Errorf("%w: order has a regional manager, revert to %q instead",
					ErrInvalidTransition, enum.OrderStatusRSMSubmitted)
			}
			return nil
		},
		apply: applyExecutiveRevert,
	},
}

func checkRejectionMessage(o database.Order, actor Actor, req TransitionRequest) error {
	if req.RejectionMessage == "" {
		return fmt.Errorf("%w: rejection message is required", ErrValidation)
	}
	return nil
}

func checkReviewLines(o database.Order, actor Actor, req TransitionRequest) error {
	for i, line := range req.Lines {
		if line.Quantity < 0 {
			return fmt.Errorf("%w: lines[%d]: quantity must be >= 0", ErrValidation, i)
		}
		if coerceAmount(line.Credit).IsNegative() || coerceAmount(line.Debit).IsNegative() {
			return fmt.Errorf("%w: lines[%d]: credit and debit must be >= 0", ErrValidation, i)
		}
	}
	return nil
}

func applyLogisticsReview(ctx context.Context, s OrderStore, o database.Order, actor Actor, req TransitionRequest) (database.Order, error) {
	lines := o.Lines
	if req.Lines != nil {
		lines = make([]database.OrderLine, len(req.Lines))
		for i, e := range req.Lines {
			lines[i] = database.OrderLine{
				ProductID: e.ProductID,
				Name:      e.Name,
				Category:  e.Category,
				Variety:   e.Variety,
				PackSize:  e.PackSize,
				PackType:  e.PackType,
				Season:    e.Season,
				Quantity:  e.Quantity,
				Credit:    coerceAmount(e.Credit),
				Debit:     coerceAmount(e.Debit),
				AddedBy:   e.AddedBy,
			}
		}
	}

	balance := Balance(lines)
	var n pgtype.Numeric
	if err := n.Scan(balance.String()); err != nil {
		return database.Order{}, fmt.Errorf("encode balance: %w", err)
	}

	return s.ReviewOrderByLogistics(ctx, database.ReviewOrderByLogisticsParams{
		ID:         o.ID,
		FromStatus: o.Status,
		Lines:      lines,
		Balance:    n,
	})
}

func applyLogisticsReject(ctx context.Context, s OrderStore, o database.Order, actor Actor, req TransitionRequest) (database.Order, error) {
	return s.RejectOrderByLogistics(ctx, database.RejectOrderByLogisticsParams{
		ID:               o.ID,
		FromStatus:       o.Status,
		RejectionMessage: req.RejectionMessage,
	})
}

func applyExecutiveRevert(ctx context.Context, s OrderStore, o database.Order, actor Actor, req TransitionRequest) (database.Order, error) {
	return s.RevertOrderFromReview(ctx, database.RevertOrderFromReviewParams{
		ID:     o.ID,
		Status: req.Target,
	})
}

// Transition moves the order to req.Target, enforcing the transition table.
// On success the updated order is returned; on any failure the stored order
// is untouched.
func (e *Engine) Transition(ctx context.Context, actor Actor, orderID uuid.UUID, req TransitionRequest) (database.Order, error) {
	if !enum.IsValidOrderStatus(req.Target) {
		return database.Order{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, req.Target)
	}

	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}

	tr, ok := transitions[edgeKey{from: order.Status, to: req.Target}]
	if !ok {
		return database.Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, req.Target)
	}

	if actor.Role != tr.role {
		return database.Order{}, fmt.Errorf("%w: %s -> %s requires role %q",
			ErrPermission, order.Status, req.Target, tr.role)
	}

	if tr.check != nil {
		if err := tr.check(order, actor, req); err != nil {
			return database.Order{}, err
		}
	}

	updated, err := tr.apply(ctx, e.store, order, actor, req)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The conditional update matched no row: the order was deleted
			// or its status moved between our read and write.
			return database.Order{}, e.resolveConflict(ctx, orderID, req.Target)
		}
		return database.Order{}, fmt.Errorf("apply transition: %w", err)
	}
	return updated, nil
}

func (e *Engine) resolveConflict(ctx context.Context, orderID uuid.UUID, target string) error {
	current, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("get order after conflict: %w", err)
	}
	if _, ok := transitions[edgeKey{from: current.Status, to: target}]; !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, target)
	}
	return fmt.Errorf("%w: now %s", ErrConflict, current.Status)
}

// Balance is the signed sum of (credit - debit) over all line items,
// including logistics ledger lines.
func Balance(lines []database.OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Credit.Sub(line.Debit))
	}
	return total
}

// coerceAmount parses a dashboard amount field. Empty or non-numeric
// input counts as zero.
func coerceAmount(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
