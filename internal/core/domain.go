package core

import (
	"errors"
	"fmt"
	"strings"
)

const (
	StatusPendente Status = "Pendente"
	StatusPaga     Status = "Paga"
	StatusAtrasado Status = "Atrasado"
)

const (
	PaymentPendente PaymentStatus = "Pendente"
	PaymentParcial  PaymentStatus = "Pago Parcial"
	PaymentTotal    PaymentStatus = "Pago Total"
)

const (
	PayerClient  PayerKey = "client"
	PayerPerson1 PayerKey = "person1"
	PayerPerson2 PayerKey = "person2"
)

type (
	// Status is the payment state of an installment, expense or subscription charge.
	Status string

	// PaymentStatus is the aggregate state of one payer's share of a loan.
	PaymentStatus string

	// PayerKey addresses one installment list inside a loan.
	PayerKey string

	Money struct {
		Cents int64
	}

	Card struct {
		ID         string
		Name       string
		Limit      Money
		ClosingDay int
		DueDay     int
		Color      string
	}

	Client struct {
		ID   string
		Name string
	}

	Installment struct {
		Number   int
		Value    Money
		DueDate  Date
		Status   Status
		PaidDate *Date
	}

	Subscription struct {
		ID          string
		Description string
		Amount      Money
		DueDay      int
		CardID      string
		ClientID    string
		Active      bool
	}

	// PaidSubscriptionMarker is the only persisted trace of a paid monthly charge.
	PaidSubscriptionMarker struct {
		SubscriptionID string
		Month          YearMonth
		PaidDate       Date
	}

	Expense struct {
		ID          string
		Description string
		Value       Money
		Date        Date
		Category    string
		CardID      string // empty: paid out of band, attributed to its own date
		ClientID    string // empty: unattributed
		Status      Status
	}

	Income struct {
		ID          string
		Description string
		Value       Money
		Date        Date
		ClientID    string
	}
)

var (
	ErrInvalidDate             = errors.New("invalid date")
	ErrInvalidDay              = errors.New("invalid day")
	ErrInvalidMonth            = errors.New("invalid month")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidStatus           = errors.New("invalid status")
	ErrEmptyDescription        = errors.New("empty description")
	ErrDescriptionTooLong      = errors.New("description too long")
	ErrEmptyName               = errors.New("empty name")
	ErrInvalidInstallmentCount = errors.New("installment count must be at least 1")
	ErrShareMismatch           = errors.New("payer shares must add up to the purchase total")
	ErrMissingPayer            = errors.New("missing payer")
	ErrSamePayer               = errors.New("shared purchase payers must be different clients")
	ErrMalformedLoan           = errors.New("invalid loan record, re-enter it")
	ErrInstallmentNotFound     = errors.New("installment not found")
	ErrNotFound                = errors.New("not found")
	ErrProRequired             = errors.New("this feature requires the Pro plan")
)

const maxDescriptionLen = 200

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// IsValidation reports whether err is a user input error that must be
// rejected before any write.
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var validationErrors = []error{
	ErrInvalidDate,
	ErrInvalidDay,
	ErrInvalidMonth,
	ErrInvalidAmount,
	ErrInvalidStatus,
	ErrEmptyDescription,
	ErrDescriptionTooLong,
	ErrEmptyName,
	ErrInvalidInstallmentCount,
	ErrShareMismatch,
	ErrMissingPayer,
	ErrSamePayer,
}

// Valid reports whether s is a status that can be stored.
func (s Status) Valid() bool {
	return s == StatusPendente || s == StatusPaga
}

// Label is the short tag shown next to installments of shared purchases.
func (k PayerKey) Label() string {
	switch k {
	case PayerPerson1:
		return "P1"
	case PayerPerson2:
		return "P2"
	default:
		return ""
	}
}

func validateDescription(s string) error {
	if strings.TrimSpace(s) == "" {
		return ErrEmptyDescription
	}
	if len(s) > maxDescriptionLen {
		return fmt.Errorf("%w (max %d characters)", ErrDescriptionTooLong, maxDescriptionLen)
	}
	return nil
}

func validateDayOfMonth(day int) error {
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	return nil
}

func (c Card) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if c.Limit.Cents < 0 {
		return ErrInvalidAmount
	}
	if err := validateDayOfMonth(c.ClosingDay); err != nil {
		return fmt.Errorf("closing day: %w", err)
	}
	if err := validateDayOfMonth(c.DueDay); err != nil {
		return fmt.Errorf("due day: %w", err)
	}
	return nil
}

func (c Client) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

func (s Subscription) Validate() error {
	if err := validateDescription(s.Description); err != nil {
		return err
	}
	if err := s.Amount.Validate(); err != nil {
		return err
	}
	return validateDayOfMonth(s.DueDay)
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if err := validateDescription(e.Description); err != nil {
		return err
	}
	if err := e.Value.Validate(); err != nil {
		return err
	}
	if !e.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

func (i Income) Validate() error {
	if err := i.Date.Validate(); err != nil {
		return err
	}
	if err := validateDescription(i.Description); err != nil {
		return err
	}
	return i.Value.Validate()
}
