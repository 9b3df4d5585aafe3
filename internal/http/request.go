package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"faturas/internal/core"
	"faturas/internal/services"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a single JSON object into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", errBadRequest)
	}
	return nil
}

// parseAmount reads a user-entered amount such as "29,90" or "1234.5".
// With allowZero an empty or zero amount is accepted as zero.
func parseAmount(field, s string, allowZero bool) (core.Money, error) {
	s = strings.TrimSpace(s)
	if allowZero {
		if s == "" {
			return core.Money{}, nil
		}
		if d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ".")); err == nil && d.IsZero() {
			return core.Money{}, nil
		}
	}
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		return core.Money{}, fmt.Errorf("%s: %w", field, err)
	}
	return core.Cents(cents), nil
}

// parseMonth reads a YYYY-MM query value, defaulting to def.
func parseMonth(q url.Values, key string, def core.YearMonth) (core.YearMonth, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return def, nil
	}
	ym, err := core.ParseYearMonth(v)
	if err != nil {
		return core.YearMonth{}, fmt.Errorf("%w: %s: %v", errBadRequest, key, err)
	}
	return ym, nil
}

// parseIntParam reads an integer query value, defaulting to def.
func parseIntParam(q url.Values, key string, def int) (int, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", errBadRequest, key)
	}
	return n, nil
}

// invoiceFilter is the view selection shared by the invoice endpoints.
type invoiceFilter struct {
	Month    string `json:"month"`
	CardID   string `json:"cardId"`
	ClientID string `json:"clientId"`
}

func (f invoiceFilter) query(current core.YearMonth) (services.InvoiceQuery, error) {
	month, err := parseMonth(url.Values{"month": {f.Month}}, "month", current)
	if err != nil {
		return services.InvoiceQuery{}, err
	}
	return services.InvoiceQuery{
		Month:    month,
		CardID:   strings.TrimSpace(f.CardID),
		ClientID: strings.TrimSpace(f.ClientID),
	}, nil
}

// parseInvoiceQuery reads month, card, client, sort and dir from the URL.
func parseInvoiceQuery(q url.Values, current core.YearMonth) (services.InvoiceQuery, error) {
	query, err := invoiceFilter{
		Month:    q.Get("month"),
		CardID:   q.Get("card"),
		ClientID: q.Get("client"),
	}.query(current)
	if err != nil {
		return services.InvoiceQuery{}, err
	}
	if query.Sort, err = services.ParseSortKey(q.Get("sort")); err != nil {
		return services.InvoiceQuery{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if query.Direction, err = services.ParseDirection(q.Get("dir")); err != nil {
		return services.InvoiceQuery{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return query, nil
}
