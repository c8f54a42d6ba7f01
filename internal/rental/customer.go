package rental

import (
	"time"

	"github.com/rpattn/rentalvc/internal/domain"
)

const TypeCustomer = "customer"

var customerFields = []domain.FieldSpec{
	{Name: "id", Kind: domain.FieldKindInteger, PrimaryKey: true},
	{Name: "nik", Kind: domain.FieldKindString},
	{Name: "name", Kind: domain.FieldKindString},
	{Name: "address", Kind: domain.FieldKindString},
	{Name: "phone", Kind: domain.FieldKindString},
	{Name: "email", Kind: domain.FieldKindString},
	{Name: "created_at", Kind: domain.FieldKindTimestamp, Bookkeeping: true},
	{Name: "updated_at", Kind: domain.FieldKindTimestamp, Bookkeeping: true},
}

// Customer is a person who rents vehicles. NIK is the national identity number.
type Customer struct {
	ID        int64     `json:"id"`
	NIK       string    `json:"nik"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c *Customer) EntityType() string             { return TypeCustomer }
func (c *Customer) EntityID() int64                { return c.ID }
func (c *Customer) FieldSpecs() []domain.FieldSpec { return customerFields }
func (c *Customer) setID(id int64)                 { c.ID = id }
func (c *Customer) setTimestamps(created, updated time.Time) {
	c.CreatedAt, c.UpdatedAt = created, updated
}

func (c *Customer) FieldValue(name string) (any, bool) {
	switch name {
	case "id":
		return c.ID, true
	case "nik":
		return c.NIK, true
	case "name":
		return c.Name, true
	case "address":
		return c.Address, true
	case "phone":
		return c.Phone, true
	case "email":
		return c.Email, true
	case "created_at":
		return c.CreatedAt, true
	case "updated_at":
		return c.UpdatedAt, true
	}
	return nil, false
}

func (c *Customer) SetFieldValue(name string, value any) (err error) {
	switch name {
	case "nik":
		c.NIK, err = asString(name, value)
	case "name":
		c.Name, err = asString(name, value)
	case "address":
		c.Address, err = asString(name, value)
	case "phone":
		c.Phone, err = asString(name, value)
	case "email":
		c.Email, err = asString(name, value)
	case "id", "created_at", "updated_at":
		return errReadOnlyField(TypeCustomer, name)
	default:
		return errUnknownField(TypeCustomer, name)
	}
	return err
}
