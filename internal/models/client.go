package models

import (
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bobmcallan/mfdesk/internal/common"
)

var panPattern = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)

// Client is an investor record owned by exactly one distributor.
type Client struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"userId"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	PanNumber    string    `json:"panNumber"`
	KycStatus    bool      `json:"kycStatus"`
	Age          int       `json:"age"`
	RiskAppetite int       `json:"riskAppetite"`
	Profession   string    `json:"profession"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewClientInput is the client registration request body. Pointer fields
// distinguish "missing" from zero.
type NewClientInput struct {
	Name         string `json:"name"`
	Age          *int   `json:"age"`
	PanNumber    string `json:"panNumber"`
	RiskAppetite *int   `json:"riskAppetite"`
	Profession   string `json:"profession"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	KycStatus    *bool  `json:"kycStatus"`
}

// Validate normalises the input in place and returns a *common.ValidationError
// listing every rejected field.
func (in *NewClientInput) Validate() error {
	ve := common.NewValidationError()

	in.Name = strings.TrimSpace(in.Name)
	switch n := utf8.RuneCountInString(in.Name); {
	case n == 0:
		ve.Add("name", "is required")
	case n > 128:
		ve.Add("name", "must be at most 128 characters")
	}

	switch {
	case in.Age == nil:
		ve.Add("age", "is required")
	case *in.Age < 18 || *in.Age > 120:
		ve.Add("age", "must be between 18 and 120")
	}

	in.PanNumber = strings.ToUpper(strings.TrimSpace(in.PanNumber))
	switch {
	case in.PanNumber == "":
		ve.Add("panNumber", "is required")
	case !panPattern.MatchString(in.PanNumber):
		ve.Add("panNumber", "must look like ABCDE1234F")
	}

	switch {
	case in.RiskAppetite == nil:
		ve.Add("riskAppetite", "is required")
	case *in.RiskAppetite < 0 || *in.RiskAppetite > 10:
		ve.Add("riskAppetite", "must be between 0 and 10")
	}

	in.Profession = strings.TrimSpace(in.Profession)
	if utf8.RuneCountInString(in.Profession) > 128 {
		ve.Add("profession", "must be at most 128 characters")
	}

	in.Email = strings.TrimSpace(in.Email)
	if in.Email != "" {
		if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
			ve.Add("email", "must be a valid email address")
		}
	}

	in.Phone = strings.TrimSpace(in.Phone)
	if len(in.Phone) > 32 {
		ve.Add("phone", "must be at most 32 characters")
	}

	return ve.Err()
}

// ToClient builds the record to store. Call Validate first.
func (in *NewClientInput) ToClient(userID int64, now time.Time) *Client {
	c := &Client{
		UserID:     userID,
		Name:       in.Name,
		Email:      in.Email,
		Phone:      in.Phone,
		PanNumber:  in.PanNumber,
		Profession: in.Profession,
		CreatedAt:  now,
	}
	if in.Age != nil {
		c.Age = *in.Age
	}
	if in.RiskAppetite != nil {
		c.RiskAppetite = *in.RiskAppetite
	}
	if in.KycStatus != nil {
		c.KycStatus = *in.KycStatus
	}
	return c
}
