package storage

import (
	"encoding/json"
	"fmt"

	"faturas/internal/core"
)

const (
	planSolo   = "solo"
	planShared = "shared"
)

// planDocument is the stored JSON layout of a loan's installment plan.
type planDocument struct {
	Kind    string           `json:"kind"`
	Client  *accountDocument `json:"client,omitempty"`
	Person1 *accountDocument `json:"person1,omitempty"`
	Person2 *accountDocument `json:"person2,omitempty"`
}

type accountDocument struct {
	ClientID        string                `json:"clientId"`
	ShareCents      int64                 `json:"shareCents"`
	Installments    []installmentDocument `json:"installments"`
	ValuePaidCents  int64                 `json:"valuePaidCents"`
	BalanceDueCents int64                 `json:"balanceDueCents"`
	StatusPayment   string                `json:"statusPayment"`
}

type installmentDocument struct {
	Number     int     `json:"number"`
	ValueCents int64   `json:"valueCents"`
	DueDate    string  `json:"dueDate"`
	Status     string  `json:"status"`
	PaidDate   *string `json:"paidDate"`
}

// EncodePlan serializes a loan plan.
func EncodePlan(p core.Plan) ([]byte, error) {
	var doc planDocument
	switch p := p.(type) {
	case core.SoloPlan:
		doc.Kind = planSolo
		doc.Client = encodeAccount(p.Account)
	case core.SharedPlan:
		doc.Kind = planShared
		doc.Person1 = encodeAccount(p.Person1)
		doc.Person2 = encodeAccount(p.Person2)
	default:
		return nil, fmt.Errorf("encode plan %T: %w", p, core.ErrMalformedLoan)
	}
	return json.Marshal(doc)
}

func encodeAccount(a core.PayerAccount) *accountDocument {
	doc := &accountDocument{
		ClientID:        a.ClientID,
		ShareCents:      a.ShareAmount.Cents,
		ValuePaidCents:  a.ValuePaid.Cents,
		BalanceDueCents: a.BalanceDue.Cents,
		StatusPayment:   string(a.StatusPayment),
	}
	if a.Installments != nil {
		doc.Installments = make([]installmentDocument, len(a.Installments))
	}
	for i, in := range a.Installments {
		d := installmentDocument{
			Number:     in.Number,
			ValueCents: in.Value.Cents,
			DueDate:    in.DueDate.String(),
			Status:     string(in.Status),
		}
		if in.PaidDate != nil {
			s := in.PaidDate.String()
			d.PaidDate = &s
		}
		doc.Installments[i] = d
	}
	return doc
}

// DecodePlan parses a stored plan. Missing installment arrays decode to nil
// lists so Loan.CheckIntegrity can flag the record; unreadable documents
// return an error that callers record as the loan's defect.
func DecodePlan(data []byte) (core.Plan, error) {
	var doc planDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unreadable plan: %w", err)
	}

	switch doc.Kind {
	case planSolo:
		if doc.Client == nil {
			return nil, fmt.Errorf("plan without client account")
		}
		acc, err := decodeAccount(doc.Client)
		if err != nil {
			return nil, err
		}
		return core.SoloPlan{Account: acc}, nil
	case planShared:
		if doc.Person1 == nil || doc.Person2 == nil {
			return nil, fmt.Errorf("shared plan without both payers")
		}
		p1, err := decodeAccount(doc.Person1)
		if err != nil {
			return nil, fmt.Errorf("person1: %w", err)
		}
		p2, err := decodeAccount(doc.Person2)
		if err != nil {
			return nil, fmt.Errorf("person2: %w", err)
		}
		return core.SharedPlan{Person1: p1, Person2: p2}, nil
	default:
		return nil, fmt.Errorf("unknown plan kind %q", doc.Kind)
	}
}

func decodeAccount(doc *accountDocument) (core.PayerAccount, error) {
	acc := core.PayerAccount{
		ClientID:      doc.ClientID,
		ShareAmount:   core.Cents(doc.ShareCents),
		ValuePaid:     core.Cents(doc.ValuePaidCents),
		BalanceDue:    core.Cents(doc.BalanceDueCents),
		StatusPayment: core.PaymentStatus(doc.StatusPayment),
	}
	if doc.Installments == nil {
		return acc, nil
	}

	acc.Installments = make([]core.Installment, len(doc.Installments))
	for i, d := range doc.Installments {
		due, err := core.ParseDate(d.DueDate)
		if err != nil {
			return core.PayerAccount{}, fmt.Errorf("installment %d: %w", d.Number, err)
		}
		in := core.Installment{
			Number:  d.Number,
			Value:   core.Cents(d.ValueCents),
			DueDate: due,
			Status:  core.Status(d.Status),
		}
		if d.PaidDate != nil {
			paid, err := core.ParseDate(*d.PaidDate)
			if err != nil {
				return core.PayerAccount{}, fmt.Errorf("installment %d paid date: %w", d.Number, err)
			}
			in.PaidDate = &paid
		}
		acc.Installments[i] = in
	}
	return acc, nil
}
