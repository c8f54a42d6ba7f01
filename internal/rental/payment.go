package rental

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rpattn/rentalvc/internal/domain"
)

const TypePayment = "payment"

var paymentFields = []domain.FieldSpec{
	{Name: "id", Kind: domain.FieldKindInteger, PrimaryKey: true},
	{Name: "rental_id", Kind: domain.FieldKindReference},
	{Name: "amount", Kind: domain.FieldKindDecimal},
	{Name: "method", Kind: domain.FieldKindString},
	{Name: "status", Kind: domain.FieldKindString},
	{Name: "proof", Kind: domain.FieldKindString},
	{Name: "created_at", Kind: domain.FieldKindTimestamp, Bookkeeping: true},
	{Name: "updated_at", Kind: domain.FieldKindTimestamp, Bookkeeping: true},
}

// Payment settles part or all of a rental.
type Payment struct {
	ID        int64           `json:"id"`
	RentalID  int64           `json:"rentalId"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Status    string          `json:"status"`
	Proof     string          `json:"proof"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func (p *Payment) EntityType() string             { return TypePayment }
func (p *Payment) EntityID() int64                { return p.ID }
func (p *Payment) FieldSpecs() []domain.FieldSpec { return paymentFields }
func (p *Payment) setID(id int64)                 { p.ID = id }
func (p *Payment) setTimestamps(created, updated time.Time) {
	p.CreatedAt, p.UpdatedAt = created, updated
}

func (p *Payment) FieldValue(name string) (any, bool) {
	switch name {
	case "id":
		return p.ID, true
	case "rental_id":
		return p.RentalID, true
	case "amount":
		return p.Amount, true
	case "method":
		return p.Method, true
	case "status":
		return p.Status, true
	case "proof":
		return p.Proof, true
	case "created_at":
		return p.CreatedAt, true
	case "updated_at":
		return p.UpdatedAt, true
	}
	return nil, false
}

func (p *Payment) SetFieldValue(name string, value any) (err error) {
	switch name {
	case "rental_id":
		p.RentalID, err = asInt64(name, value)
	case "amount":
		p.Amount, err = asDecimal(name, value)
	case "method":
		p.Method, err = asString(name, value)
	case "status":
		p.Status, err = asString(name, value)
	case "proof":
		p.Proof, err = asString(name, value)
	case "id", "created_at", "updated_at":
		return errReadOnlyField(TypePayment, name)
	default:
		return errUnknownField(TypePayment, name)
	}
	return err
}
