package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Direction is the AI signal's trade direction.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionHold Direction = "HOLD"
)

// ParseDirection normalizes a raw direction string (trimmed, uppercased).
func ParseDirection(raw string) (Direction, error) {
	switch Direction(strings.ToUpper(strings.TrimSpace(raw))) {
	case DirectionBuy:
		return DirectionBuy, nil
	case DirectionSell:
		return DirectionSell, nil
	case DirectionHold:
		return DirectionHold, nil
	default:
		return "", fmt.Errorf("unknown trade direction: %q", raw)
	}
}

// String returns the wire form of the direction.
func (d Direction) String() string { return string(d) }

// Signal is the AI trading signal for the selected instrument.
type Signal struct {
	Direction       Direction       `json:"signal"`
	Confidence      decimal.Decimal `json:"confidence"`
	RiskScore       decimal.Decimal `json:"risk_score"`
	PositionSizePct decimal.Decimal `json:"position_size"`
}

// HoldSignal is the placeholder used before the first successful poll.
func HoldSignal() Signal {
	return Signal{Direction: DirectionHold}
}

// Clamp forces confidence into [0,1], risk score into [0,100], and the
// direction into its canonical uppercase form (unknown values become HOLD).
// The backend occasionally reports out-of-range values; decoding clamps
// instead of failing.
func (s Signal) Clamp() Signal {
	one := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)

	if s.Confidence.LessThan(decimal.Zero) {
		s.Confidence = decimal.Zero
	}
	if s.Confidence.GreaterThan(one) {
		s.Confidence = one
	}
	if s.RiskScore.LessThan(decimal.Zero) {
		s.RiskScore = decimal.Zero
	}
	if s.RiskScore.GreaterThan(hundred) {
		s.RiskScore = hundred
	}
	if d, err := ParseDirection(string(s.Direction)); err == nil {
		s.Direction = d
	} else {
		s.Direction = DirectionHold
	}
	return s
}
