package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// User is an authenticated principal. ReportsTo binds a sales officer to
// the regional manager who reviews their orders.
type User struct {
	ID             uuid.UUID
	Email          string
	HashedPassword string
	Name           string
	Role           string
	ReportsTo      pgtype.UUID
	CreatedAt      time.Time
}

// Party is a customer record assigned to a sales officer.
type Party struct {
	ID         uuid.UUID
	Code       pgtype.Text
	Name       string
	Mobile     pgtype.Text
	AssignedTo pgtype.UUID
	CreatedAt  time.Time
}

// Product is a catalog entry selectable on order lines.
type Product struct {
	ID        uuid.UUID
	Name      string
	Crop      pgtype.Text
	Variety   pgtype.Text
	Category  pgtype.Text
	PackSize  pgtype.Text
	PackType  pgtype.Text
	CreatedAt time.Time
}

// OrderLine is a single product (or ledger adjustment) line embedded in an
// order. Lines are stored as a JSONB array; insertion order is preserved
// for display. AddedBy is "LM" for logistics ledger lines, empty otherwise.
type OrderLine struct {
	ProductID string          `json:"product_id,omitempty"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Variety   string          `json:"variety"`
	PackSize  string          `json:"pack_size"`
	PackType  string          `json:"pack_type"`
	Season    string          `json:"season"`
	Quantity  int32           `json:"quantity"`
	Credit    decimal.Decimal `json:"credit"`
	Debit     decimal.Decimal `json:"debit"`
	AddedBy   string          `json:"added_by,omitempty"`
}

// Order is a purchase request moving through the approval workflow.
type Order struct {
	ID                  uuid.UUID
	RefCode             string
	SoID                uuid.UUID
	SoName              string
	RsmID               pgtype.UUID
	RsmName             pgtype.Text
	PartyCode           pgtype.Text
	PartyName           string
	PartyMobile         pgtype.Text
	Pod                 pgtype.Text
	ContactInfo         pgtype.Text
	Status              string
	CommitmentMessage   pgtype.Text
	CommitmentDate      pgtype.Timestamptz
	RejectionMessage    pgtype.Text
	ApprovedBy          pgtype.UUID
	FinalApprovedBy     pgtype.UUID
	FinalApprovedByName pgtype.Text
	RejectedBy          pgtype.UUID
	Lines               []OrderLine
	Balance             pgtype.Numeric
	CreatedBy           uuid.UUID
	CreatedAt           time.Time
}
