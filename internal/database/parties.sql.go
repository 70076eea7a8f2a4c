package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const partyColumns = `id, code, name, mobile, assigned_to, created_at`

const createParty = `
INSERT INTO parties (code, name, mobile, assigned_to)
VALUES ($1, $2, $3, $4)
RETURNING ` + partyColumns

type CreatePartyParams struct {
	Code       pgtype.Text
	Name       string
	Mobile     pgtype.Text
	AssignedTo pgtype.UUID
}

func (q *Queries) CreateParty(ctx context.Context, arg CreatePartyParams) (Party, error) {
	row := q.db.QueryRow(ctx, createParty, arg.Code, arg.Name, arg.Mobile, arg.AssignedTo)
	var p Party
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Mobile, &p.AssignedTo, &p.CreatedAt)
	return p, err
}

const getParty = `
SELECT ` + partyColumns + `
FROM parties
WHERE id = $1`

func (q *Queries) GetParty(ctx context.Context, id uuid.UUID) (Party, error) {
	row := q.db.QueryRow(ctx, getParty, id)
	var p Party
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Mobile, &p.AssignedTo, &p.CreatedAt)
	return p, err
}

const listParties = `
SELECT ` + partyColumns + `
FROM parties
WHERE ($1::uuid IS NULL OR assigned_to = $1)
ORDER BY name`

func (q *Queries) ListParties(ctx context.Context, assignedTo pgtype.UUID) ([]Party, error) {
	rows, err := q.db.Query(ctx, listParties, assignedTo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parties []Party
	for rows.Next() {
		var p Party
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Mobile, &p.AssignedTo, &p.CreatedAt); err != nil {
			return nil, err
		}
		parties = append(parties, p)
	}
	return parties, rows.Err()
}
