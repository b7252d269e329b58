package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PositionSide is the direction of a holding.
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// ParsePositionSide normalises "LONG"/"long" style input.
func ParsePositionSide(s string) (PositionSide, error) {
	switch PositionSide(strings.ToLower(strings.TrimSpace(s))) {
	case PositionSideLong:
		return PositionSideLong, nil
	case PositionSideShort:
		return PositionSideShort, nil
	}
	return "", Invalid("side", fmt.Sprintf("unknown position side %q", s))
}

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen       PositionStatus = "open"
	PositionStatusClosed     PositionStatus = "closed"
	PositionStatusLiquidated PositionStatus = "liquidated"
)

// Valid reports whether s is a known status.
func (s PositionStatus) Valid() bool {
	switch s {
	case PositionStatusOpen, PositionStatusClosed, PositionStatusLiquidated:
		return true
	}
	return false
}

// Position is an open or historical holding for one owner.
type Position struct {
	PositionID    string         `json:"position_id"`
	UserID        string         `json:"user_id"`
	Symbol        string         `json:"symbol"`
	EntryPrice    float64        `json:"entry_price"`
	CurrentPrice  float64        `json:"current_price"`
	Quantity      float64        `json:"quantity"`
	Side          PositionSide   `json:"side"`
	EntryTime     int64          `json:"entry_time"` // epoch milliseconds
	PnL           *float64       `json:"pnl,omitempty"`
	PnLPercentage *float64       `json:"pnl_percentage,omitempty"`
	Status        PositionStatus `json:"status"`
	UpdatedAt     time.Time      `json:"updated_at"`
	TTL           int64          `json:"ttl"`
}

// NewPosition opens a position at entry. CurrentPrice starts at the entry
// price.
func NewPosition(userID, symbol string, entry, quantity float64, side PositionSide, now time.Time) *Position {
	now = now.UTC()
	return &Position{
		PositionID:   uuid.NewString(),
		UserID:       userID,
		Symbol:       symbol,
		EntryPrice:   entry,
		CurrentPrice: entry,
		Quantity:     quantity,
		Side:         side,
		EntryTime:    now.UnixMilli(),
		Status:       PositionStatusOpen,
		UpdatedAt:    now,
		TTL:          now.Add(RecordRetention).Unix(),
	}
}

// ComputePnL returns the absolute and percentage profit for a position of the
// given side marked at current.
func ComputePnL(side PositionSide, entry, current, quantity float64) (pnl, pct float64) {
	var delta float64
	switch side {
	case PositionSideLong:
		delta = current - entry
	case PositionSideShort:
		delta = entry - current
	default:
		return 0, 0
	}
	pnl = delta * quantity
	if entry != 0 {
		pct = delta / entry * 100
	}
	return pnl, pct
}

// Revalue marks the position at price and recomputes both pnl fields.
func (p *Position) Revalue(price float64, now time.Time) {
	pnl, pct := ComputePnL(p.Side, p.EntryPrice, price, p.Quantity)
	p.CurrentPrice = price
	p.PnL = &pnl
	p.PnLPercentage = &pct
	p.UpdatedAt = now.UTC()
}

// SortKey is the composite sort key "POSITION#<entry_time>#<position_id>".
func (p *Position) SortKey() string {
	return fmt.Sprintf("%s#%d#%s", RecordTypePosition, p.EntryTime, p.PositionID)
}

// Validate checks the record invariants.
func (p *Position) Validate() error {
	switch {
	case p.PositionID == "":
		return Invalid("position_id", "must not be empty")
	case p.UserID == "":
		return Invalid("user_id", "must not be empty")
	case p.Symbol == "":
		return Invalid("symbol", "must not be empty")
	case !PositiveFinite(p.EntryPrice):
		return Invalid("entry_price", "must be positive and finite")
	case !PositiveFinite(p.CurrentPrice):
		return Invalid("current_price", "must be positive and finite")
	case !PositiveFinite(p.Quantity):
		return Invalid("quantity", "must be positive and finite")
	case p.Side != PositionSideLong && p.Side != PositionSideShort:
		return Invalid("side", fmt.Sprintf("unknown side %q", p.Side))
	case !p.Status.Valid():
		return Invalid("status", fmt.Sprintf("unknown status %q", p.Status))
	case (p.PnL == nil) != (p.PnLPercentage == nil):
		return Invalid("pnl", "pnl and pnl_percentage must be set together")
	}
	return nil
}
