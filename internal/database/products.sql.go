package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const productColumns = `id, name, crop, variety, category, pack_size, pack_type, created_at`

const createProduct = `
INSERT INTO products (name, crop, variety, category, pack_size, pack_type)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + productColumns

type CreateProductParams struct {
	Name     string
	Crop     pgtype.Text
	Variety  pgtype.Text
	Category pgtype.Text
	PackSize pgtype.Text
	PackType pgtype.Text
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, createProduct,
		arg.Name, arg.Crop, arg.Variety, arg.Category, arg.PackSize, arg.PackType)
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Crop, &p.Variety, &p.Category, &p.PackSize, &p.PackType, &p.CreatedAt)
	return p, err
}

const getProduct = `
SELECT ` + productColumns + `
FROM products
WHERE id = $1`

func (q *Queries) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	row := q.db.QueryRow(ctx, getProduct, id)
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Crop, &p.Variety, &p.Category, &p.PackSize, &p.PackType, &p.CreatedAt)
	return p, err
}

const listProducts = `
SELECT ` + productColumns + `
FROM products
ORDER BY category, name`

func (q *Queries) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := q.db.Query(ctx, listProducts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Crop, &p.Variety, &p.Category, &p.PackSize, &p.PackType, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
