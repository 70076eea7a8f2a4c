package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const userColumns = `id, email, hashed_password, name, role, reports_to, created_at`

const getUserByEmail = `
SELECT ` + userColumns + `
FROM users
WHERE email = $1`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRow(ctx, getUserByEmail, email)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.HashedPassword, &u.Name, &u.Role, &u.ReportsTo, &u.CreatedAt)
	return u, err
}

const getUserByID = `
SELECT ` + userColumns + `
FROM users
WHERE id = $1`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRow(ctx, getUserByID, id)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.HashedPassword, &u.Name, &u.Role, &u.ReportsTo, &u.CreatedAt)
	return u, err
}

const createUser = `
INSERT INTO users (email, hashed_password, name, role, reports_to)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + userColumns

type CreateUserParams struct {
	Email          string
	HashedPassword string
	Name           string
	Role           string
	ReportsTo      pgtype.UUID
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, createUser,
		arg.Email, arg.HashedPassword, arg.Name, arg.Role, arg.ReportsTo)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.HashedPassword, &u.Name, &u.Role, &u.ReportsTo, &u.CreatedAt)
	return u, err
}

const listUsers = `
SELECT ` + userColumns + `
FROM users
WHERE ($1::text IS NULL OR role = $1)
ORDER BY name`

func (q *Queries) ListUsers(ctx context.Context, role pgtype.Text) ([]User, error) {
	rows, err := q.db.Query(ctx, listUsers, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.HashedPassword, &u.Name, &u.Role, &u.ReportsTo, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
