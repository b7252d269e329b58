package dynamo

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

// Attribute names shared by every item.
const (
	attrUserID   = "user_id"
	attrSortKey  = "sk"
	attrTTL      = "ttl"
	attrDataType = "data_type"
	attrStatus   = "status"
)

func avS(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }

func avN(v float64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(v, 'f', -1, 64)}
}

func avInt(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

func avTime(t time.Time) types.AttributeValue { return avS(t.UTC().Format(time.RFC3339Nano)) }

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

func encodeOrder(o *domain.Order) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		attrUserID:   avS(o.UserID),
		attrSortKey:  avS(o.SortKey()),
		"order_id":   avS(o.OrderID),
		"symbol":     avS(o.Symbol),
		"side":       avS(string(o.Side)),
		"order_type": avS(string(o.Type)),
		"quantity":   avN(o.Quantity),
		"filled_qty": avN(o.FilledQuantity),
		attrStatus:   avS(string(o.Status)),
		"timestamp":  avInt(o.TimestampMs),
		"created_at": avTime(o.CreatedAt),
		"updated_at": avTime(o.UpdatedAt),
		attrTTL:      avInt(o.TTL),
		attrDataType: avS(domain.RecordTypeOrder),
	}
	if o.Price != nil {
		item["price"] = avN(*o.Price)
	}
	if o.ExchangeOrderID != "" {
		item["mexc_order_id"] = avS(o.ExchangeOrderID)
	}
	if o.ErrorMessage != "" {
		item["error_message"] = avS(o.ErrorMessage)
	}
	return item
}

func encodePosition(p *domain.Position) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		attrUserID:      avS(p.UserID),
		attrSortKey:     avS(p.SortKey()),
		"position_id":   avS(p.PositionID),
		"symbol":        avS(p.Symbol),
		"entry_price":   avN(p.EntryPrice),
		"current_price": avN(p.CurrentPrice),
		"quantity":      avN(p.Quantity),
		"side":          avS(string(p.Side)),
		"entry_time":    avInt(p.EntryTime),
		attrStatus:      avS(string(p.Status)),
		"updated_at":    avTime(p.UpdatedAt),
		attrTTL:         avInt(p.TTL),
		attrDataType:    avS(domain.RecordTypePosition),
	}
	if p.PnL != nil {
		item["pnl"] = avN(*p.PnL)
	}
	if p.PnLPercentage != nil {
		item["pnl_percentage"] = avN(*p.PnLPercentage)
	}
	return item
}

func encodeCalendarEvent(e *domain.CalendarEvent) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		attrUserID:         avS(e.UserID),
		attrSortKey:        avS(e.SortKey()),
		"event_id":         avS(e.EventID),
		"token_name":       avS(e.TokenName),
		"symbol":           avS(e.Symbol),
		"launch_time":      avInt(e.LaunchTime),
		"detected_pattern": avS(e.DetectedPattern),
		"confidence":       avN(e.Confidence),
		"created_at":       avTime(e.CreatedAt),
		attrStatus:         avS(string(e.Status)),
		attrTTL:            avInt(e.TTL),
		attrDataType:       avS(domain.RecordTypeCalendar),
	}
	if e.ExecutionTime != nil {
		item["execution_time"] = avInt(*e.ExecutionTime)
	}
	// String sets cannot be empty.
	if len(e.ExecutedOrders) > 0 {
		item["executed_orders"] = &types.AttributeValueMemberSS{Value: append([]string(nil), e.ExecutedOrders...)}
	}
	return item
}

// --------------------------------------------------------------------------
// Strict decoding
// --------------------------------------------------------------------------

// itemReader pulls typed attributes out of an item and remembers the first
// failure, so a decoder can read every field and check once.
type itemReader struct {
	item map[string]types.AttributeValue
	key  string
	err  error
}

func newItemReader(item map[string]types.AttributeValue) *itemReader {
	r := &itemReader{item: item}
	pk, _ := item[attrUserID].(*types.AttributeValueMemberS)
	sk, _ := item[attrSortKey].(*types.AttributeValueMemberS)
	switch {
	case pk != nil && sk != nil:
		r.key = pk.Value + "/" + sk.Value
	case sk != nil:
		r.key = sk.Value
	default:
		r.key = "<unknown>"
	}
	return r
}

func (r *itemReader) fail(attr, reason string) {
	if r.err == nil {
		r.err = &domain.CorruptRecordError{Key: r.key, Attribute: attr, Reason: reason}
	}
}

func (r *itemReader) lookup(attr string, required bool) (types.AttributeValue, bool) {
	av, ok := r.item[attr]
	if !ok || av == nil {
		if required {
			r.fail(attr, "missing")
		}
		return nil, false
	}
	if _, isNull := av.(*types.AttributeValueMemberNULL); isNull {
		if required {
			r.fail(attr, "null")
		}
		return nil, false
	}
	return av, true
}

func (r *itemReader) str(attr string) string {
	v, _ := r.strOK(attr, true)
	return v
}

func (r *itemReader) optStr(attr string) string {
	v, _ := r.strOK(attr, false)
	return v
}

func (r *itemReader) strOK(attr string, required bool) (string, bool) {
	av, ok := r.lookup(attr, required)
	if !ok {
		return "", false
	}
	sv, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		r.fail(attr, fmt.Sprintf("expected string, got %T", av))
		return "", false
	}
	return sv.Value, true
}

func (r *itemReader) numText(attr string, required bool) (string, bool) {
	av, ok := r.lookup(attr, required)
	if !ok {
		return "", false
	}
	nv, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		r.fail(attr, fmt.Sprintf("expected number, got %T", av))
		return "", false
	}
	return nv.Value, true
}

func (r *itemReader) float(attr string) float64 {
	v := r.optFloat(attr, true)
	if v == nil {
		return 0
	}
	return *v
}

func (r *itemReader) optFloat(attr string, required bool) *float64 {
	text, ok := r.numText(attr, required)
	if !ok {
		return nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		r.fail(attr, fmt.Sprintf("invalid number %q", text))
		return nil
	}
	return &v
}

func (r *itemReader) int(attr string) int64 {
	v := r.optInt(attr, true)
	if v == nil {
		return 0
	}
	return *v
}

func (r *itemReader) optInt(attr string, required bool) *int64 {
	text, ok := r.numText(attr, required)
	if !ok {
		return nil
	}
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		r.fail(attr, fmt.Sprintf("invalid integer %q", text))
		return nil
	}
	return &v
}

func (r *itemReader) time(attr string) time.Time {
	text, ok := r.strOK(attr, true)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, text)
	if err != nil {
		r.fail(attr, fmt.Sprintf("invalid timestamp %q", text))
		return time.Time{}
	}
	return t
}

func (r *itemReader) optStringSet(attr string) []string {
	av, ok := r.lookup(attr, false)
	if !ok {
		return nil
	}
	ss, ok := av.(*types.AttributeValueMemberSS)
	if !ok {
		r.fail(attr, fmt.Sprintf("expected string set, got %T", av))
		return nil
	}
	return append([]string(nil), ss.Value...)
}

func (r *itemReader) expectDataType(want string) {
	if got, ok := r.strOK(attrDataType, true); ok && got != want {
		r.fail(attrDataType, fmt.Sprintf("expected %s, got %s", want, got))
	}
}

// finish returns the first read failure or, failing that, the record's own
// invariant violation as a CorruptRecordError.
func (r *itemReader) finish(validate func() error) error {
	if r.err != nil {
		return r.err
	}
	if err := validate(); err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			return &domain.CorruptRecordError{Key: r.key, Attribute: ve.Field, Reason: ve.Reason}
		}
		return &domain.CorruptRecordError{Key: r.key, Reason: err.Error()}
	}
	return nil
}

func decodeOrder(item map[string]types.AttributeValue) (*domain.Order, error) {
	r := newItemReader(item)
	r.expectDataType(domain.RecordTypeOrder)
	o := &domain.Order{
		UserID:          r.str(attrUserID),
		OrderID:         r.str("order_id"),
		Symbol:          r.str("symbol"),
		Side:            domain.OrderSide(r.str("side")),
		Type:            domain.OrderType(r.str("order_type")),
		Quantity:        r.float("quantity"),
		Price:           r.optFloat("price", false),
		FilledQuantity:  r.float("filled_qty"),
		Status:          domain.OrderStatus(r.str(attrStatus)),
		TimestampMs:     r.int("timestamp"),
		CreatedAt:       r.time("created_at"),
		UpdatedAt:       r.time("updated_at"),
		ExchangeOrderID: r.optStr("mexc_order_id"),
		ErrorMessage:    r.optStr("error_message"),
		TTL:             r.int(attrTTL),
	}
	if err := r.finish(o.Validate); err != nil {
		return nil, err
	}
	return o, nil
}

func decodePosition(item map[string]types.AttributeValue) (*domain.Position, error) {
	r := newItemReader(item)
	r.expectDataType(domain.RecordTypePosition)
	p := &domain.Position{
		UserID:        r.str(attrUserID),
		PositionID:    r.str("position_id"),
		Symbol:        r.str("symbol"),
		EntryPrice:    r.float("entry_price"),
		CurrentPrice:  r.float("current_price"),
		Quantity:      r.float("quantity"),
		Side:          domain.PositionSide(r.str("side")),
		EntryTime:     r.int("entry_time"),
		PnL:           r.optFloat("pnl", false),
		PnLPercentage: r.optFloat("pnl_percentage", false),
		Status:        domain.PositionStatus(r.str(attrStatus)),
		UpdatedAt:     r.time("updated_at"),
		TTL:           r.int(attrTTL),
	}
	if err := r.finish(p.Validate); err != nil {
		return nil, err
	}
	return p, nil
}

func decodeCalendarEvent(item map[string]types.AttributeValue) (*domain.CalendarEvent, error) {
	r := newItemReader(item)
	r.expectDataType(domain.RecordTypeCalendar)
	e := &domain.CalendarEvent{
		UserID:          r.str(attrUserID),
		EventID:         r.str("event_id"),
		TokenName:       r.str("token_name"),
		Symbol:          r.str("symbol"),
		LaunchTime:      r.int("launch_time"),
		DetectedPattern: r.str("detected_pattern"),
		Confidence:      r.float("confidence"),
		CreatedAt:       r.time("created_at"),
		Status:          domain.CalendarStatus(r.str(attrStatus)),
		ExecutionTime:   r.optInt("execution_time", false),
		ExecutedOrders:  r.optStringSet("executed_orders"),
		TTL:             r.int(attrTTL),
	}
	if err := r.finish(e.Validate); err != nil {
		return nil, err
	}
	return e, nil
}
