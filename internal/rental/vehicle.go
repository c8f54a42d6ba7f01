package rental

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rpattn/rentalvc/internal/domain"
)

const TypeVehicle = "vehicle"

var vehicleFields = []domain.FieldSpec{
	{Name: "id", Kind: domain.FieldKindInteger, PrimaryKey: true},
	{Name: "brand", Kind: domain.FieldKindString},
	{Name: "model", Kind: domain.FieldKindString},
	{Name: "year", Kind: domain.FieldKindInteger},
	{Name: "plate_number", Kind: domain.FieldKindString},
	{Name: "daily_rate", Kind: domain.FieldKindDecimal},
	{Name: "status", Kind: domain.FieldKindString},
	{Name: "created_at", Kind: domain.FieldKindTimestamp, Bookkeeping: true},
	{Name: "updated_at", Kind: domain.FieldKindTimestamp, Bookkeeping: true},
}

// Vehicle is a rentable car.
type Vehicle struct {
	ID          int64           `json:"id"`
	Brand       string          `json:"brand"`
	Model       string          `json:"model"`
	Year        int64           `json:"year"`
	PlateNumber string          `json:"plateNumber"`
	DailyRate   decimal.Decimal `json:"dailyRate"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func (v *Vehicle) EntityType() string             { return TypeVehicle }
func (v *Vehicle) EntityID() int64                { return v.ID }
func (v *Vehicle) FieldSpecs() []domain.FieldSpec { return vehicleFields }
func (v *Vehicle) setID(id int64)                 { v.ID = id }
func (v *Vehicle) setTimestamps(created, updated time.Time) {
	v.CreatedAt, v.UpdatedAt = created, updated
}

func (v *Vehicle) FieldValue(name string) (any, bool) {
	switch name {
	case "id":
		return v.ID, true
	case "brand":
		return v.Brand, true
	case "model":
		return v.Model, true
	case "year":
		return v.Year, true
	case "plate_number":
		return v.PlateNumber, true
	case "daily_rate":
		return v.DailyRate, true
	case "status":
		return v.Status, true
	case "created_at":
		return v.CreatedAt, true
	case "updated_at":
		return v.UpdatedAt, true
	}
	return nil, false
}

func (v *Vehicle) SetFieldValue(name string, value any) (err error) {
	switch name {
	case "brand":
		v.Brand, err = asString(name, value)
	case "model":
		v.Model, err = asString(name, value)
	case "year":
		v.Year, err = asInt64(name, value)
	case "plate_number":
		v.PlateNumber, err = asString(name, value)
	case "daily_rate":
		v.DailyRate, err = asDecimal(name, value)
	case "status":
		v.Status, err = asString(name, value)
	case "id", "created_at", "updated_at":
		return errReadOnlyField(TypeVehicle, name)
	default:
		return errUnknownField(TypeVehicle, name)
	}
	return err
}
