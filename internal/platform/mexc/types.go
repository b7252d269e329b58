package mexc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

// flexFloat unmarshals from a JSON number or a quoted decimal string, since
// the exchange sends amounts both ways.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		v, err := n.Float64()
		if err != nil {
			return err
		}
		*f = flexFloat(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("expected number or decimal string, got %s", data)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	*f = flexFloat(d.InexactFloat64())
	return nil
}

// flexTime unmarshals a timestamp sent either as a string or as integer
// epoch milliseconds. Numbers are normalised to RFC 3339 in UTC.
type flexTime string

func (t *flexTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = flexTime(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected timestamp string or epoch milliseconds, got %s", data)
	}
	ms, err := n.Int64()
	if err != nil {
		return fmt.Errorf("invalid epoch milliseconds %q: %w", n, err)
	}
	*t = flexTime(time.UnixMilli(ms).UTC().Format(time.RFC3339Nano))
	return nil
}

// formatDecimal renders a float as the shortest decimal string that
// round-trips, never in exponent form.
func formatDecimal(v float64) string {
	return decimal.NewFromFloat(v).String()
}

// --------------------------------------------------------------------------
// REST DTOs. Pointer fields are required unless documented otherwise; a nil
// pointer after decoding means the field was absent.
// --------------------------------------------------------------------------

// APITicker is the ticker response.
type APITicker struct {
	Symbol    *string    `json:"symbol"`
	Price     *flexFloat `json:"price"`
	Timestamp *int64     `json:"timestamp"`
}

func (t *APITicker) missing() []string {
	return missingFields(map[string]bool{
		"symbol":    t.Symbol == nil,
		"price":     t.Price == nil,
		"timestamp": t.Timestamp == nil,
	})
}

// ToDomain converts the DTO after a successful strict decode.
func (t *APITicker) ToDomain() domain.Ticker {
	return domain.Ticker{Symbol: *t.Symbol, Price: float64(*t.Price), Timestamp: *t.Timestamp}
}

// APIOrder is the order shape returned by create, query and cancel.
type APIOrder struct {
	OrderID   *string    `json:"order_id"`
	Symbol    *string    `json:"symbol"`
	Side      *string    `json:"side"`
	OrderType *string    `json:"order_type"`
	Quantity  *flexFloat `json:"quantity"`
	Price     *flexFloat `json:"price"` // optional
	Status    *string    `json:"status"`
	FilledQty *flexFloat `json:"filled_qty"`
	CreatedAt *flexTime  `json:"created_at"`
}

func (o *APIOrder) missing() []string {
	return missingFields(map[string]bool{
		"order_id":   o.OrderID == nil || *o.OrderID == "",
		"symbol":     o.Symbol == nil,
		"side":       o.Side == nil,
		"order_type": o.OrderType == nil,
		"quantity":   o.Quantity == nil,
		"status":     o.Status == nil,
		"filled_qty": o.FilledQty == nil,
		"created_at": o.CreatedAt == nil,
	})
}

// ToDomain converts the DTO after a successful strict decode.
func (o *APIOrder) ToDomain() domain.ExchangeOrder {
	out := domain.ExchangeOrder{
		OrderID:   *o.OrderID,
		Symbol:    *o.Symbol,
		Side:      *o.Side,
		Type:      *o.OrderType,
		Quantity:  float64(*o.Quantity),
		Status:    *o.Status,
		FilledQty: float64(*o.FilledQty),
		CreatedAt: string(*o.CreatedAt),
	}
	if o.Price != nil {
		p := float64(*o.Price)
		out.Price = &p
	}
	return out
}

// APIBalance is one line of the account response.
type APIBalance struct {
	Asset  *string    `json:"asset"`
	Free   *flexFloat `json:"free"`
	Locked *flexFloat `json:"locked"`
}

// APIAccount is the account response.
type APIAccount struct {
	Balances *[]APIBalance `json:"balances"`
}

func (a *APIAccount) missing() []string {
	if a.Balances == nil {
		return []string{"balances"}
	}
	var out []string
	for i, b := range *a.Balances {
		for _, f := range missingFields(map[string]bool{
			"asset":  b.Asset == nil,
			"free":   b.Free == nil,
			"locked": b.Locked == nil,
		}) {
			out = append(out, fmt.Sprintf("balances[%d].%s", i, f))
		}
	}
	return out
}

// ToDomain converts the DTO after a successful strict decode.
func (a *APIAccount) ToDomain() []domain.Balance {
	out := make([]domain.Balance, 0, len(*a.Balances))
	for _, b := range *a.Balances {
		out = append(out, domain.Balance{
			Asset:  *b.Asset,
			Free:   float64(*b.Free),
			Locked: float64(*b.Locked),
		})
	}
	return out
}

// requiredChecker is implemented by DTOs that can list absent fields.
type requiredChecker interface {
	missing() []string
}

// decodeStrict decodes body into v rejecting unknown fields, trailing data
// and absent required fields.
func decodeStrict(op string, body []byte, v requiredChecker) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &domain.DecodeError{Op: op, Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return &domain.DecodeError{Op: op, Err: errors.New("trailing data after JSON value")}
	}
	if m := v.missing(); len(m) > 0 {
		return &domain.DecodeError{Op: op, Err: fmt.Errorf("missing required fields: %s", strings.Join(m, ", "))}
	}
	return nil
}

func missingFields(checks map[string]bool) []string {
	var out []string
	for name, absent := range checks {
		if absent {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
