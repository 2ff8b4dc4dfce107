// Package clients manages an account's customer records.
package clients

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/validation"
)

// Client is a customer of the business
type Client struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"-"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	Notes     string    `json:"notes"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Input is the writable part of a client
type Input struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

func (in *Input) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
}

// Validate checks the input
func (in Input) Validate() error {
	v := validation.New()
	v.Required("name", in.Name)
	v.MaxLength("name", in.Name, 200)
	v.Email("email", in.Email)
	v.MaxLength("phone", in.Phone, 40)
	v.MaxLength("address", in.Address, 500)
	v.MaxLength("notes", in.Notes, 5000)
	return v.Err()
}

// Filter narrows a client listing
type Filter struct {
	Search          string
	IncludeArchived bool
	Limit           int
	Offset          int
}
