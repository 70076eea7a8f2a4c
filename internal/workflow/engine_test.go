package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tezro-seeds/api/internal/database"
	"github.com/tezro-seeds/api/internal/enum"
)

type mockStore struct {
	getOrder              func(ctx context.Context, id uuid.UUID) (database.Order, error)
	submitCommitment      func(ctx context.Context, arg database.SubmitOrderCommitmentParams) (database.Order, error)
	rejectByRSM           func(ctx context.Context, arg database.RejectOrderByRSMParams) (database.Order, error)
	reviewByLogistics     func(ctx context.Context, arg database.ReviewOrderByLogisticsParams) (database.Order, error)
	rejectByLogistics     func(ctx context.Context, arg database.RejectOrderByLogisticsParams) (database.Order, error)
	revertToPending       func(ctx context.Context, id uuid.UUID) (database.Order, error)
	approveFinal          func(ctx context.Context, arg database.ApproveOrderFinalParams) (database.Order, error)
	rejectFinal           func(ctx context.Context, arg database.RejectOrderFinalParams) (database.Order, error)
	revertFromReview      func(ctx context.Context, arg database.RevertOrderFromReviewParams) (database.Order, error)
}

func (m *mockStore) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return m.getOrder(ctx, id)
}

func (m *mockStore) SubmitOrderCommitment(ctx context.Context, arg database.SubmitOrderCommitmentParams) (database.Order, error) {
	return m.submitCommitment(ctx, arg)
}

func (m *mockStore) RejectOrderByRSM(ctx context.Context, arg database.RejectOrderByRSMParams) (database.Order, error) {
	return m.rejectByRSM(ctx, arg)
}

func (m *mockStore) ReviewOrderByLogistics(ctx context.Context, arg database.ReviewOrderByLogisticsParams) (database.Order, error) {
	return m.reviewByLogistics(ctx, arg)
}

func (m *mockStore) RejectOrderByLogistics(ctx context.Context, arg database.RejectOrderByLogisticsParams) (database.Order, error) {
	return m.rejectByLogistics(ctx, arg)
}

func (m *mockStore) RevertOrderToPending(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return m.revertToPending(ctx, id)
}

func (m *mockStore) ApproveOrderFinal(ctx context.Context, arg database.ApproveOrderFinalParams) (database.Order, error) {
	return m.approveFinal(ctx, arg)
}

func (m *mockStore) RejectOrderFinal(ctx context.Context, arg database.RejectOrderFinalParams) (database.Order, error) {
	return m.rejectFinal(ctx, arg)
}

func (m *mockStore) RevertOrderFromReview(ctx context.Context, arg database.RevertOrderFromReviewParams) (database.Order, error) {
	return m.revertFromReview(ctx, arg)
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func fixedOrder(status string, rsmID pgtype.UUID) database.Order {
	return database.Order{
		ID:        uuid.New(),
		RefCode:   "ORD-2026-000101",
		SoID:      uuid.New(),
		SoName:    "Ravi Kumar",
		RsmID:     rsmID,
		PartyName: "Green Valley Traders",
		Status:    status,
		Lines: []database.OrderLine{
			{Name: "Wheat Gold", Category: "wheat", Quantity: 10},
		},
	}
}

func staticStore(o database.Order) *mockStore {
	return &mockStore{
		getOrder: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			return o, nil
		},
	}
}

func TestBalance(t *testing.T) {
	lines := []database.OrderLine{
		{Credit: decimal.NewFromInt(100), Debit: decimal.Zero},
		{Credit: decimal.Zero, Debit: decimal.NewFromInt(30)},
		{Credit: decimal.NewFromInt(50), Debit: decimal.NewFromInt(50)},
	}
	if got := Balance(lines); !got.Equal(decimal.NewFromInt(70)) {
		t.Errorf("Balance() = %s, want 70", got)
	}
	if got := Balance(nil); !got.Equal(decimal.Zero) {
		t.Errorf("Balance(nil) = %s, want 0", got)
	}
}

func TestTransitionUnknownTarget(t *testing.T) {
	eng := NewEngine(staticStore(fixedOrder(enum.OrderStatusPending, pgtype.UUID{})))
	actor := Actor{ID: uuid.New(), Role: enum.RoleRSM}

	_, err := eng.Transition(context.Background(), actor, uuid.New(), TransitionRequest{Target: "Shipped"})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTransitionOrderNotFound(t *testing.T) {
	store := &mockStore{
		getOrder: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			return database.Order{}, pgx.ErrNoRows
		},
	}
	eng := NewEngine(store)
	actor := Actor{ID: uuid.New(), Role: enum.RoleRSM}

	_, err := eng.Transition(context.Background(), actor, uuid.New(), TransitionRequest{Target: enum.OrderStatusRSMSubmitted})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestTransitionNoEdge(t *testing.T) {
	cases := []struct {
		name   string
		status string
		target string
		role   string
	}{
		{"pending to approved", enum.OrderStatusPending, enum.OrderStatusApproved, enum.RoleOwner},
		{"approved is terminal", enum.OrderStatusApproved, enum.OrderStatusPending, enum.RoleLogistic},
		{"rejected is terminal", enum.OrderStatusRejected, enum.OrderStatusLogisticReviewed, enum.RoleLogistic},
		{"already reviewed", enum.OrderStatusLogisticReviewed, enum.OrderStatusLogisticReviewed, enum.RoleLogistic},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eng := NewEngine(staticStore(fixedOrder(tc.status, pgtype.UUID{})))
			actor := Actor{ID: uuid.New(), Role: tc.role}

			_, err := eng.Transition(context.Background(), actor, uuid.New(), TransitionRequest{Target: tc.target})
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestTransitionRolePermission(t *testing.T) {
	rsmID := uuid.New()
	cases := []struct {
		name   string
		status string
		target string
		role   string
	}{
		{"so cannot submit commitment", enum.OrderStatusPending, enum.OrderStatusRSMSubmitted, enum.RoleSalesOfficer},
		{"rsm cannot review", enum.OrderStatusRSMSubmitted, enum.OrderStatusLogisticReviewed, enum.RoleRSM},
		{"logistic cannot final approve", enum.OrderStatusLogisticReviewed, enum.OrderStatusApproved, enum.RoleLogistic},
		{"owner cannot reject for logistics", enum.OrderStatusPlaced, enum.OrderStatusRejectedByLogistic, enum.RoleOwner},
		{"admin cannot transition", enum.OrderStatusLogisticReviewed, enum.OrderStatusRejected, enum.RoleAdmin},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eng := NewEngine(staticStore(fixedOrder(tc.status, pgUUID(rsmID))))
			actor := Actor{ID: rsmID, Role: tc.role}

			_, err := eng.Transition(context.Background(), actor, uuid.New(), TransitionRequest{
				Target:            tc.target,
				CommitmentMessage: "confirmed",
				CommitmentDate:    time.Now(),
				RejectionMessage:  "stock unavailable",
			})
			if !errors.Is(err, ErrPermission) {
				t.Fatalf("expected ErrPermission, got %v", err)
			}
		})
	}
}

func TestTransitionRSMMustBeAssigned(t *testing.T) {
	order := fixedOrder(enum.OrderStatusPending, pgUUID(uuid.New()))
	eng := NewEngine(staticStore(order))
	otherRSM := Actor{ID: uuid.New(), Role: enum.RoleRSM}

	_, err := eng.Transition(context.Background(), otherRSM, order.ID, TransitionRequest{
		Target:            enum.OrderStatusRSMSubmitted,
		CommitmentMessage: "confirmed",
		CommitmentDate:    time.Now(),
	})
	if !errors.Is(err, ErrPermission) {
		t.Fatalf("expected ErrPermission for unassigned manager, got %v", err)
	}

	_, err = eng.Transition(context.Background(), otherRSM, order.ID, TransitionRequest{
		Target: enum.OrderStatusRejectedByRSM,
	})
	if !errors.Is(err, ErrPermission) {
		t.Fatalf("expected ErrPermission on reject for unassigned manager, got %v", err)
	}
}

func TestTransitionCommitmentRequired(t *testing.T) {
	rsmID := uuid.New()
	order := fixedOrder(enum.OrderStatusPending, pgUUID(rsmID))
	eng := NewEngine(staticStore(order))
	actor := Actor{ID: rsmID, Role: enum.RoleRSM}

	cases := []struct {
		name string
		req  TransitionRequest
	}{
		{"missing both", TransitionRequest{Target: enum.OrderStatusRSMSubmitted}},
		{"missing date", TransitionRequest{Target: enum.OrderStatusRSMSubmitted, CommitmentMessage: "confirmed"}},
		{"missing message", TransitionRequest{Target: enum.OrderStatusRSMSubmitted, CommitmentDate: time.Now()}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eng.Transition(context.Background(), actor, order.ID, tc.req)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestTransitionSubmitCommitment(t *testing.T) {
	rsmID := uuid.New()
	order := fixedOrder(enum.OrderStatusPending, pgUUID(rsmID))
	when := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)

	var captured database.SubmitOrderCommitmentParams
	store := staticStore(order)
	store.submitCommitment = func(ctx context.Context, arg database.SubmitOrderCommitmentParams) (database.Order, error) {
		captured = arg
		updated := order
		updated.Status = enum.OrderStatusRSMSubmitted
		return updated, nil
	}

	eng := NewEngine(store)
	actor := Actor{ID: rsmID, Name: "Anita Sharma", Role: enum.RoleRSM}

	updated, err := eng.Transition(context.Background(), actor, order.ID, TransitionRequest{
		Target:            enum.OrderStatusRSMSubmitted,
		CommitmentMessage: "delivery by mid September",
		CommitmentDate:    when,
	})
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if updated.Status != enum.OrderStatusRSMSubmitted {
		t.Errorf("status = %q, want %q", updated.Status, enum.OrderStatusRSMSubmitted)
	}
	if captured.ID != order.ID {
		t.Errorf("submitted wrong order id")
	}
	if captured.CommitmentMessage != "delivery by mid September" {
		t.Errorf("commitment message = %q", captured.CommitmentMessage)
	}
	if !captured.CommitmentDate.Time.Equal(when) {
		t.Errorf("commitment date = %v, want %v", captured.CommitmentDate.Time, when)
	}
	if captured.ApprovedBy != rsmID {
		t.Errorf("approved_by = %v, want acting manager", captured.ApprovedBy)
	}
}

func TestTransitionLogisticsReview(t *testing.T) {
	order := fixedOrder(enum.OrderStatusRSMSubmitted, pgUUID(uuid.New()))

	var captured database.ReviewOrderByLogisticsParams
	store := staticStore(order)
	store.reviewByLogistics = func(ctx context.Context, arg database.ReviewOrderByLogisticsParams) (database.Order, error) {
		captured = arg
		updated := order
		updated.Status = enum.OrderStatusLogisticReviewed
		updated.Lines = arg.Lines
		return updated, nil
	}

	eng := NewEngine(store)
	actor := Actor{ID: uuid.New(), Role: enum.RoleLogistic}

	updated, err := eng.Transition(context.Background(), actor, order.ID, TransitionRequest{
		Target: enum.OrderStatusLogisticReviewed,
		Lines: []LineEdit{
			{Name: "Wheat Gold", Category: "wheat", Quantity: 10, Credit: "100", Debit: ""},
			{Name: "Freight", Quantity: 1, Credit: "not a number", Debit: "30", AddedBy: enum.LineAddedByLogistics},
			{Name: "Adjustment", Quantity: 1, Credit: "50", Debit: "50", AddedBy: enum.LineAddedByLogistics},
		},
	})
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if updated.Status != enum.OrderStatusLogisticReviewed {
		t.Errorf("status = %q, want %q", updated.Status, enum.OrderStatusLogisticReviewed)
	}
	if captured.FromStatus != enum.OrderStatusRSMSubmitted {
		t.Errorf("from status = %q, want %q", captured.FromStatus, enum.OrderStatusRSMSubmitted)
	}

	// 100 - 0, then the unparsable credit counts as zero so -30, then 0.
	var want pgtype.Numeric
	if err := want.Scan("70"); err != nil {
		t.Fatal(err)
	}
	got, _ := captured.Balance.Value()
	wantVal, _ := want.Value()
	if got != wantVal {
		t.Errorf("balance = %v, want %v", got, wantVal)
	}
	if len(captured.Lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(captured.Lines))
	}
	if !captured.Lines[1].Credit.Equal(decimal.Zero) {
		t.Errorf("unparsable credit = %s, want 0", captured.Lines[1].Credit)
	}
}

func TestTransitionLogisticsReviewKeepsStoredLines(t *testing.T) {
	order := fixedOrder(enum.OrderStatusPlaced, pgtype.UUID{})
	order.Lines = []database.OrderLine{
		{Name: "Mustard Queen", Category: "mustard", Quantity: 5, Credit: decimal.NewFromInt(250)},
	}

	var captured database.ReviewOrderByLogisticsParams
	store := staticStore(order)
	store.reviewByLogistics = func(ctx context.Context, arg database.ReviewOrderByLogisticsParams) (database.Order, error) {
		captured = arg
		updated := order
		updated.Status = enum.OrderStatusLogisticReviewed
		return updated, nil
	}

	eng := NewEngine(store)
	actor := Actor{ID: uuid.New(), Role: enum.RoleLogistic}

	if _, err := eng.Transition(context.Background(), actor, order.ID, TransitionRequest{
		Target: enum.OrderStatusLogisticReviewed,
	}); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if len(captured.Lines) != 1 || captured.Lines[0].Name != "Mustard Queen" {
		t.Errorf("stored lines were not kept: %+v", captured.Lines)
	}
}

func TestTransitionReviewLineValidation(t *testing.T) {
	order := fixedOrder(enum.OrderStatusRSMSubmitted, pgUUID(uuid.New()))
	eng := NewEngine(staticStore(order))
	actor := Actor{ID: uuid.New(), Role: enum.RoleLogistic}

	cases := []struct {
		name string
		line LineEdit
	}{
		{"negative quantity", LineEdit{Name: "Wheat Gold", Quantity: -1}},
		{"negative credit", LineEdit{Name: "Wheat Gold", Quantity: 1, Credit: "-10"}},
		{"negative debit", LineEdit{Name: "Wheat Gold", Quantity: 1, Debit: "-5"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eng.Transition(context.Background(), actor, order.ID, TransitionRequest{
				Target: enum.OrderStatusLogisticReviewed,
				Lines:  []LineEdit{tc.line},
			})
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestTransitionRejectionMessageRequired(t *testing.T) {
	for _, status := range []string{enum.OrderStatusRSMSubmitted, enum.OrderStatusPlaced} {
		order := fixedOrder(status, pgtype.UUID{})
		eng := NewEngine(staticStore(order))
		actor := Actor{ID: uuid.New(), Role: enum.RoleLogistic}

		_, err := eng.Transition(context.Background(), actor, order.ID, TransitionRequest{
			Target: enum.OrderStatusRejectedByLogistic,
		})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("from %s: expected ErrValidation, got %v", status, err)
		}
	}
}

func TestTransitionFinalApproval(t *testing.T) {
	order := fixedOrder(enum.OrderStatusLogisticReviewed, pgUUID(uuid.New()))

	var captured database.ApproveOrderFinalParams
	store := staticStore(order)
	store.approveFinal = func(ctx context.Context, arg database.ApproveOrderFinalParams) (database.Order, error) {
		captured = arg
		updated := order
		updated.Status = enum.OrderStatusApproved
		return updated, nil
	}

	eng := NewEngine(store)
	owner := Actor{ID: uuid.New(), Name: "M. D. Sahib", Role: enum.RoleOwner}

	updated, err := eng.Transition(context.Background(), owner, order.ID, TransitionRequest{
		Target: enum.OrderStatusApproved,
	})
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if updated.Status != enum.OrderStatusApproved {
		t.Errorf("status = %q, want %q", updated.Status, enum.OrderStatusApproved)
	}
	if captured.FinalApprovedBy != owner.ID || captured.FinalApprovedByName != owner.Name {
		t.Errorf("final approver not stamped: %+v", captured)
	}
}

func TestTransitionExecutiveRevertRouting(t *testing.T) {
	rsmID := uuid.New()

	t.Run("with manager reverts to submitted", func(t *testing.T) {
		order := fixedOrder(enum.OrderStatusLogisticReviewed, pgUUID(rsmID))
		var captured database.RevertOrderFromReviewParams
		store := staticStore(order)
		store.revertFromReview = func(ctx context.Context, arg database.RevertOrderFromReviewParams) (database.Order, error) {
			captured = arg
			updated := order
			updated.Status = arg.Status
			return updated, nil
		}
		eng := NewEngine(store)
		owner := Actor{ID: uuid.New(), Role: enum.RoleOwner}

		if _, err := eng.Transition(context.Background(), owner, order.ID, TransitionRequest{
			Target: enum.OrderStatusRSMSubmitted,
		}); err != nil {
			t.Fatalf("Transition() error = %v", err)
		}
		if captured.Status != enum.OrderStatusRSMSubmitted {
			t.Errorf("revert target = %q, want %q", captured.Status, enum.OrderStatusRSMSubmitted)
		}

		// The direct-order route is closed while a manager is assigned.
		_, err := eng.Transition(context.Background(), owner, order.ID, TransitionRequest{
			Target: enum.OrderStatusPlaced,
		})
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("without manager reverts to placed", func(t *testing.T) {
		order := fixedOrder(enum.OrderStatusLogisticReviewed, pgtype.UUID{})
		store := staticStore(order)
		store.revertFromReview = func(ctx context.Context, arg database.RevertOrderFromReviewParams) (database.Order, error) {
			updated := order
			updated.Status = arg.Status
			return updated, nil
		}
		eng := NewEngine(store)
		owner := Actor{ID: uuid.New(), Role: enum.RoleOwner}

		updated, err := eng.Transition(context.Background(), owner, order.ID, TransitionRequest{
			Target: enum.OrderStatusPlaced,
		})
		if err != nil {
			t.Fatalf("Transition() error = %v", err)
		}
		if updated.Status != enum.OrderStatusPlaced {
			t.Errorf("status = %q, want %q", updated.Status, enum.OrderStatusPlaced)
		}

		_, err = eng.Transition(context.Background(), owner, order.ID, TransitionRequest{
			Target: enum.OrderStatusRSMSubmitted,
		})
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})
}

func TestTransitionConflict(t *testing.T) {
	rsmID := uuid.New()
	actor := Actor{ID: rsmID, Role: enum.RoleRSM}
	req := TransitionRequest{
		Target:            enum.OrderStatusRSMSubmitted,
		CommitmentMessage: "confirmed",
		CommitmentDate:    time.Now(),
	}

	t.Run("status moved to non-retryable state", func(t *testing.T) {
		order := fixedOrder(enum.OrderStatusPending, pgUUID(rsmID))
		reads := 0
		store := &mockStore{
			getOrder: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
				reads++
				if reads > 1 {
					moved := order
					moved.Status = enum.OrderStatusApproved
					return moved, nil
				}
				return order, nil
			},
			submitCommitment: func(ctx context.Context, arg database.SubmitOrderCommitmentParams) (database.Order, error) {
				return database.Order{}, pgx.ErrNoRows
			},
		}
		eng := NewEngine(store)

		_, err := eng.Transition(context.Background(), actor, order.ID, req)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("status moved but edge still open", func(t *testing.T) {
		order := fixedOrder(enum.OrderStatusRSMSubmitted, pgUUID(rsmID))
		reads := 0
		store := &mockStore{
			getOrder: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
				reads++
				if reads > 1 {
					// Someone reverted it back to Pending meanwhile; the
					// caller can retry, so this reports a conflict.
					moved := order
					moved.Status = enum.OrderStatusPending
					return moved, nil
				}
				return order, nil
			},
			revertToPending: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
				return database.Order{}, pgx.ErrNoRows
			},
		}
		eng := NewEngine(store)
		logistic := Actor{ID: uuid.New(), Role: enum.RoleLogistic}

		_, err := eng.Transition(context.Background(), logistic, order.ID, TransitionRequest{
			Target: enum.OrderStatusPending,
		})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("order deleted mid-flight", func(t *testing.T) {
		order := fixedOrder(enum.OrderStatusPending, pgUUID(rsmID))
		reads := 0
		store := &mockStore{
			getOrder: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
				reads++
				if reads > 1 {
					return database.Order{}, pgx.ErrNoRows
				}
				return order, nil
			},
			submitCommitment: func(ctx context.Context, arg database.SubmitOrderCommitmentParams) (database.Order, error) {
				return database.Order{}, pgx.ErrNoRows
			},
		}
		eng := NewEngine(store)

		_, err := eng.Transition(context.Background(), actor, order.ID, req)
		if !errors.Is(err, ErrOrderNotFound) {
			t.Fatalf("expected ErrOrderNotFound, got %v", err)
		}
	})
}
