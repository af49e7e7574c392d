// Package pricing maps a delivery distance to a shipping fee.
package pricing

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Tier charges Fee for any distance up to and including UpToKm.
type Tier struct {
	UpToKm float64
	Fee    int64
}

// Tiers is an ordered bracket table. It decodes from "5:15000,10:25000".
type Tiers []Tier

// Decode implements envconfig.Decoder.
func (t *Tiers) Decode(value string) error {
	parsed, err := ParseTiers(value)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTiers parses a comma separated "km:fee" list.
func ParseTiers(value string) (Tiers, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, ",")
	tiers := make(Tiers, 0, len(parts))
	for _, part := range parts {
		km, fee, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("invalid pricing tier %q: expected km:fee", part)
		}
		upTo, err := strconv.ParseFloat(strings.TrimSpace(km), 64)
		if err != nil || upTo <= 0 || math.IsInf(upTo, 0) {
			return nil, fmt.Errorf("invalid pricing tier distance %q", km)
		}
		amount, err := strconv.ParseInt(strings.TrimSpace(fee), 10, 64)
		if err != nil || amount < 0 {
			return nil, fmt.Errorf("invalid pricing tier fee %q", fee)
		}
		tiers = append(tiers, Tier{UpToKm: upTo, Fee: amount})
	}
	if err := tiers.validate(); err != nil {
		return nil, err
	}
	return tiers, nil
}

func (t Tiers) validate() error {
	for i := 1; i < len(t); i++ {
		if t[i].UpToKm <= t[i-1].UpToKm {
			return fmt.Errorf("pricing tiers must be strictly increasing by distance (%v after %v)", t[i].UpToKm, t[i-1].UpToKm)
		}
		if t[i].Fee < t[i-1].Fee {
			return fmt.Errorf("pricing tier fee for %vkm is lower than the previous tier", t[i].UpToKm)
		}
	}
	return nil
}

// String renders the table back into its config form.
func (t Tiers) String() string {
	parts := make([]string, 0, len(t))
	for _, tier := range t {
		parts = append(parts, fmt.Sprintf("%s:%d", strconv.FormatFloat(tier.UpToKm, 'f', -1, 64), tier.Fee))
	}
	return strings.Join(parts, ",")
}

// maxFee is where Fee saturates instead of wrapping.
var maxFee = decimal.NewFromInt(math.MaxInt64)

// Table is the full fee schedule.
type Table struct {
	Tiers       Tiers
	OverageUnit int64
	DefaultFee  int64
}

// Engine computes fees from a validated Table. It holds no mutable state.
type Engine struct {
	tiers       Tiers
	overageUnit decimal.Decimal
	defaultFee  int64
}

// NewEngine validates the table and returns an engine over a private copy of it.
func NewEngine(table Table) (*Engine, error) {
	if len(table.Tiers) == 0 {
		return nil, fmt.Errorf("pricing table requires at least one tier")
	}
	if table.OverageUnit < 0 {
		return nil, fmt.Errorf("overage unit must be non-negative")
	}
	if table.DefaultFee < 0 {
		return nil, fmt.Errorf("default fee must be non-negative")
	}
	tiers := append(Tiers(nil), table.Tiers...)
	if err := tiers.validate(); err != nil {
		return nil, err
	}
	return &Engine{
		tiers:       tiers,
		overageUnit: decimal.NewFromInt(table.OverageUnit),
		defaultFee:  table.DefaultFee,
	}, nil
}

// Fee returns the shipping fee for distanceKm. Negative, NaN and infinite
// distances resolve to the default fee.
func (e *Engine) Fee(distanceKm float64) int64 {
	if math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) || distanceKm < 0 {
		return e.defaultFee
	}
	for _, tier := range e.tiers {
		if distanceKm <= tier.UpToKm {
			return tier.Fee
		}
	}
	last := e.tiers[len(e.tiers)-1]
	extraKm := decimal.NewFromFloat(distanceKm - last.UpToKm).Ceil()
	fee := decimal.NewFromInt(last.Fee).Add(extraKm.Mul(e.overageUnit))
	if fee.GreaterThan(maxFee) {
		return math.MaxInt64
	}
	return fee.IntPart()
}

// DefaultFee is charged when no distance is known.
func (e *Engine) DefaultFee() int64 {
	return e.defaultFee
}
