// Package rental holds the versionable entities of the car-rental domain and
// the primary-table adapters that load and save them.
package rental

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rpattn/rentalvc/internal/domain"
)

const TypeRental = "rental"

var rentalFields = []domain.FieldSpec{
	{Name: "id", Kind: domain.FieldKindInteger, PrimaryKey: true},
	{Name: "code", Kind: domain.FieldKindString},
	{Name: "customer_id", Kind: domain.FieldKindReference},
	{Name: "vehicle_id", Kind: domain.FieldKindReference},
	{Name: "rental_date", Kind: domain.FieldKindDate},
	{Name: "return_date", Kind: domain.FieldKindDate},
	{Name: "returned_at", Kind: domain.FieldKindDate, Nullable: true},
	{Name: "total_days", Kind: domain.FieldKindInteger},
	{Name: "total_cost", Kind: domain.FieldKindDecimal},
	{Name: "fine", Kind: domain.FieldKindDecimal},
	{Name: "status", Kind: domain.FieldKindString},
	{Name: "created_at", Kind: domain.FieldKindTimestamp, Bookkeeping: true},
	{Name: "updated_at", Kind: domain.FieldKindTimestamp, Bookkeeping: true},
}

// Rental is one booking of a vehicle by a customer.
type Rental struct {
	ID         int64           `json:"id"`
	Code       string          `json:"code"`
	CustomerID int64           `json:"customerId"`
	VehicleID  int64           `json:"vehicleId"`
	RentalDate time.Time       `json:"rentalDate"`
	ReturnDate time.Time       `json:"returnDate"`
	ReturnedAt *time.Time      `json:"returnedAt,omitempty"`
	TotalDays  int64           `json:"totalDays"`
	TotalCost  decimal.Decimal `json:"totalCost"`
	Fine       decimal.Decimal `json:"fine"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

func (r *Rental) EntityType() string             { return TypeRental }
func (r *Rental) EntityID() int64                { return r.ID }
func (r *Rental) FieldSpecs() []domain.FieldSpec { return rentalFields }
func (r *Rental) setID(id int64)                 { r.ID = id }
func (r *Rental) setTimestamps(created, updated time.Time) {
	r.CreatedAt, r.UpdatedAt = created, updated
}

func (r *Rental) FieldValue(name string) (any, bool) {
	switch name {
	case "id":
		return r.ID, true
	case "code":
		return r.Code, true
	case "customer_id":
		return r.CustomerID, true
	case "vehicle_id":
		return r.VehicleID, true
	case "rental_date":
		return r.RentalDate, true
	case "return_date":
		return r.ReturnDate, true
	case "returned_at":
		if r.ReturnedAt == nil {
			return nil, true
		}
		return *r.ReturnedAt, true
	case "total_days":
		return r.TotalDays, true
	case "total_cost":
		return r.TotalCost, true
	case "fine":
		return r.Fine, true
	case "status":
		return r.Status, true
	case "created_at":
		return r.CreatedAt, true
	case "updated_at":
		return r.UpdatedAt, true
	}
	return nil, false
}

func (r *Rental) SetFieldValue(name string, value any) (err error) {
	switch name {
	case "code":
		r.Code, err = asString(name, value)
	case "customer_id":
		r.CustomerID, err = asInt64(name, value)
	case "vehicle_id":
		r.VehicleID, err = asInt64(name, value)
	case "rental_date":
		var t time.Time
		if t, err = asTime(name, value); err == nil {
			r.RentalDate = dateOnly(t)
		}
	case "return_date":
		var t time.Time
		if t, err = asTime(name, value); err == nil {
			r.ReturnDate = dateOnly(t)
		}
	case "returned_at":
		var t *time.Time
		if t, err = asOptionalTime(name, value); err == nil {
			if t != nil {
				d := dateOnly(*t)
				t = &d
			}
			r.ReturnedAt = t
		}
	case "total_days":
		r.TotalDays, err = asInt64(name, value)
	case "total_cost":
		r.TotalCost, err = asDecimal(name, value)
	case "fine":
		r.Fine, err = asDecimal(name, value)
	case "status":
		r.Status, err = asString(name, value)
	case "id", "created_at", "updated_at":
		return errReadOnlyField(TypeRental, name)
	default:
		return errUnknownField(TypeRental, name)
	}
	return err
}
