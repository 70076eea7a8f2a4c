package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, ref_code, so_id, so_name, rsm_id, rsm_name,
	party_code, party_name, party_mobile, pod, contact_info, status,
	commitment_message, commitment_date, rejection_message, approved_by,
	final_approved_by, final_approved_by_name, rejected_by, lines, balance,
	created_by, created_at`

// scanOrder reads one order row. Lines come back as raw JSONB.
func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var lines []byte
	err := row.Scan(
		&o.ID, &o.RefCode, &o.SoID, &o.SoName, &o.RsmID, &o.RsmName,
		&o.PartyCode, &o.PartyName, &o.PartyMobile, &o.Pod, &o.ContactInfo,
		&o.Status, &o.CommitmentMessage, &o.CommitmentDate,
		&o.RejectionMessage, &o.ApprovedBy, &o.FinalApprovedBy,
		&o.FinalApprovedByName, &o.RejectedBy, &lines, &o.Balance,
		&o.CreatedBy, &o.CreatedAt,
	)
	if err != nil {
		return Order{}, err
	}
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return Order{}, fmt.Errorf("unmarshal order lines: %w", err)
	}
	return o, nil
}

func marshalLines(lines []OrderLine) ([]byte, error) {
	if lines == nil {
		lines = []OrderLine{}
	}
	return json.Marshal(lines)
}

const createOrder = `
INSERT INTO orders (
	ref_code, so_id, so_name, rsm_id, rsm_name, party_code, party_name,
	party_mobile, pod, contact_info, status, lines, created_by
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	RefCode     string
	SoID        uuid.UUID
	SoName      string
	RsmID       pgtype.UUID
	RsmName     pgtype.Text
	PartyCode   pgtype.Text
	PartyName   string
	PartyMobile pgtype.Text
	Pod         pgtype.Text
	ContactInfo pgtype.Text
	Status      string
	Lines       []OrderLine
	CreatedBy   uuid.UUID
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	lines, err := marshalLines(arg.Lines)
	if err != nil {
		return Order{}, err
	}
	row := q.db.QueryRow(ctx, createOrder,
		arg.RefCode, arg.SoID, arg.SoName, arg.RsmID, arg.RsmName,
		arg.PartyCode, arg.PartyName, arg.PartyMobile, arg.Pod,
		arg.ContactInfo, arg.Status, lines, arg.CreatedBy,
	)
	return scanOrder(row)
}

const getOrder = `
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const listOrders = `
SELECT ` + orderColumns + `
FROM orders
WHERE ($1::uuid IS NULL OR so_id = $1)
  AND ($2::uuid IS NULL OR rsm_id = $2)
  AND ($3::text[] IS NULL OR status = ANY($3))
  AND ($4::text IS NULL OR party_name ILIKE '%' || $4 || '%')
  AND ($5::timestamptz IS NULL OR created_at >= $5)
  AND ($6::timestamptz IS NULL OR created_at <= $6)
ORDER BY created_at DESC
LIMIT $7 OFFSET $8`

type ListOrdersParams struct {
	SoID      pgtype.UUID
	RsmID     pgtype.UUID
	Statuses  []string
	PartyName pgtype.Text
	StartDate pgtype.Timestamptz
	EndDate   pgtype.Timestamptz
	Limit     int32
	Offset    int32
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders,
		arg.SoID, arg.RsmID, arg.Statuses, arg.PartyName,
		arg.StartDate, arg.EndDate, arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Each transition below is a single conditional UPDATE keyed on the
// expected current status. Zero rows updated means the order either does
// not exist or its status moved since the caller last read it; the
// workflow engine re-reads and reports which.

const submitOrderCommitment = `
UPDATE orders
SET status = 'BM/RSM Submitted',
    commitment_message = $2,
    commitment_date = $3,
    approved_by = $4
WHERE id = $1 AND status = 'Pending'
RETURNING ` + orderColumns

type SubmitOrderCommitmentParams struct {
	ID                uuid.UUID
	CommitmentMessage string
	CommitmentDate    pgtype.Timestamptz
	ApprovedBy        uuid.UUID
}

func (q *Queries) SubmitOrderCommitment(ctx context.Context, arg SubmitOrderCommitmentParams) (Order, error) {
	row := q.db.QueryRow(ctx, submitOrderCommitment,
		arg.ID, arg.CommitmentMessage, arg.CommitmentDate, arg.ApprovedBy)
	return scanOrder(row)
}

const rejectOrderByRSM = `
UPDATE orders
SET status = 'Rejected By BM/RSM',
    approved_by = $2
WHERE id = $1 AND status = 'Pending'
RETURNING ` + orderColumns

type RejectOrderByRSMParams struct {
	ID         uuid.UUID
	ApprovedBy uuid.UUID
}

func (q *Queries) RejectOrderByRSM(ctx context.Context, arg RejectOrderByRSMParams) (Order, error) {
	row := q.db.QueryRow(ctx, rejectOrderByRSM, arg.ID, arg.ApprovedBy)
	return scanOrder(row)
}

const reviewOrderByLogistics = `
UPDATE orders
SET status = 'Logistic Reviewed',
    lines = $3,
    balance = $4,
    rejection_message = NULL,
    final_approved_by = NULL,
    final_approved_by_name = NULL
WHERE id = $1 AND status = $2
RETURNING ` + orderColumns

type ReviewOrderByLogisticsParams struct {
	ID         uuid.UUID
	FromStatus string
	Lines      []OrderLine
	Balance    pgtype.Numeric
}

func (q *Queries) ReviewOrderByLogistics(ctx context.Context, arg ReviewOrderByLogisticsParams) (Order, error) {
	lines, err := marshalLines(arg.Lines)
	if err != nil {
		return Order{}, err
	}
	row := q.db.QueryRow(ctx, reviewOrderByLogistics,
		arg.ID, arg.FromStatus, lines, arg.Balance)
	return scanOrder(row)
}

const rejectOrderByLogistics = `
UPDATE orders
SET status = 'Rejected By Logistic',
    rejection_message = $3,
    final_approved_by = NULL,
    final_approved_by_name = NULL
WHERE id = $1 AND status = $2
RETURNING ` + orderColumns

type RejectOrderByLogisticsParams struct {
	ID               uuid.UUID
	FromStatus       string
	RejectionMessage string
}

func (q *Queries) RejectOrderByLogistics(ctx context.Context, arg RejectOrderByLogisticsParams) (Order, error) {
	row := q.db.QueryRow(ctx, rejectOrderByLogistics,
		arg.ID, arg.FromStatus, arg.RejectionMessage)
	return scanOrder(row)
}

const revertOrderToPending = `
UPDATE orders
SET status = 'Pending',
    final_approved_by = NULL,
    final_approved_by_name = NULL
WHERE id = $1 AND status = 'BM/RSM Submitted'
RETURNING ` + orderColumns

func (q *Queries) RevertOrderToPending(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, revertOrderToPending, id))
}

const approveOrderFinal = `
UPDATE orders
SET status = 'Approved',
    final_approved_by = $2,
    final_approved_by_name = $3
WHERE id = $1 AND status = 'Logistic Reviewed'
RETURNING ` + orderColumns

type ApproveOrderFinalParams struct {
	ID                  uuid.UUID
	FinalApprovedBy     uuid.UUID
	FinalApprovedByName string
}

func (q *Queries) ApproveOrderFinal(ctx context.Context, arg ApproveOrderFinalParams) (Order, error) {
	row := q.db.QueryRow(ctx, approveOrderFinal,
		arg.ID, arg.FinalApprovedBy, arg.FinalApprovedByName)
	return scanOrder(row)
}

const rejectOrderFinal = `
UPDATE orders
SET status = 'Rejected',
    rejected_by = $2
WHERE id = $1 AND status = 'Logistic Reviewed'
RETURNING ` + orderColumns

type RejectOrderFinalParams struct {
	ID         uuid.UUID
	RejectedBy uuid.UUID
}

func (q *Queries) RejectOrderFinal(ctx context.Context, arg RejectOrderFinalParams) (Order, error) {
	row := q.db.QueryRow(ctx, rejectOrderFinal, arg.ID, arg.RejectedBy)
	return scanOrder(row)
}

const revertOrderFromReview = `
UPDATE orders
SET status = $2,
    final_approved_by = NULL,
    final_approved_by_name = NULL
WHERE id = $1 AND status = 'Logistic Reviewed'
RETURNING ` + orderColumns

type RevertOrderFromReviewParams struct {
	ID     uuid.UUID
	Status string
}

func (q *Queries) RevertOrderFromReview(ctx context.Context, arg RevertOrderFromReviewParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, revertOrderFromReview, arg.ID, arg.Status))
}

const deleteOrder = `
DELETE FROM orders
WHERE id = $1`

func (q *Queries) DeleteOrder(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteOrder, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const deleteOrdersByParty = `
DELETE FROM orders
WHERE party_name ILIKE '%' || $1 || '%'`

func (q *Queries) DeleteOrdersByParty(ctx context.Context, partyName string) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteOrdersByParty, partyName)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const getOrderStatusSummary = `
SELECT status, COUNT(*), COALESCE(SUM(balance), 0)
FROM orders
GROUP BY status
ORDER BY status`

type GetOrderStatusSummaryRow struct {
	Status     string
	OrderCount int64
	Balance    pgtype.Numeric
}

func (q *Queries) GetOrderStatusSummary(ctx context.Context) ([]GetOrderStatusSummaryRow, error) {
	rows, err := q.db.Query(ctx, getOrderStatusSummary)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summary []GetOrderStatusSummaryRow
	for rows.Next() {
		var r GetOrderStatusSummaryRow
		if err := rows.Scan(&r.Status, &r.OrderCount, &r.Balance); err != nil {
			return nil, err
		}
		summary = append(summary, r)
	}
	return summary, rows.Err()
}
