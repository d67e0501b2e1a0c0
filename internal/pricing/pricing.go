// Package pricing computes the price of a window or door opening from its
// dimensions, profile material, glass type and the manual cost components
// entered on a quote line.
//
// All lengths are entered in centimetres and converted to metres. Money is
// computed with decimal arithmetic and rounded to two places on output.
package pricing

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Profile materials.
const (
	Aluminium = "aluminium"
	PVC       = "pvc"
)

// Glass types.
const (
	GlassSimple     = "simple_6mm"
	GlassDouble     = "double"
	GlassReflective = "reflective"
	GlassFrosted    = "frosted"
)

var (
	ErrInvalidDimensions = errors.New("pricing: width and height must be positive")
	ErrInvalidQuantity   = errors.New("pricing: quantity must be at least 1")
	ErrNegativeComponent = errors.New("pricing: cost components must not be negative")
	ErrUnknownProfile    = errors.New("pricing: unknown profile material")
	ErrUnknownGlass      = errors.New("pricing: unknown glass type")
	ErrInvalidDiscount   = errors.New("pricing: discount must be between 0 and the subtotal")
)

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

// Components are the four manually editable cost components of a line,
// expressed per unit.
type Components struct {
	Accessories  float64 `json:"accessories" yaml:"accessories"`
	Fabrication  float64 `json:"fabrication" yaml:"fabrication"`
	Transport    float64 `json:"transport" yaml:"transport"`
	Installation float64 `json:"installation" yaml:"installation"`
}

// Rates is the rate table the estimator prices against.
type Rates struct {
	Profile       map[string]float64 `json:"profile"` // DZD per metre
	Glass         map[string]float64 `json:"glass"`   // DZD per m²
	WasteFactor   float64            `json:"waste_factor"`
	Defaults      Components         `json:"defaults"`
	MarkupPercent float64            `json:"markup_percent"`
	RoundUp       bool               `json:"round_up"`
}

// DefaultRates returns the workshop's standard rates.
func DefaultRates() Rates {
	return Rates{
		Profile: map[string]float64{
			Aluminium: 1200,
			PVC:       900,
		},
		Glass: map[string]float64{
			GlassSimple:     1500,
			GlassDouble:     2800,
			GlassReflective: 2200,
			GlassFrosted:    1900,
		},
		WasteFactor: 1.2,
		Defaults: Components{
			Accessories: 2000,
			Fabrication: 3000,
		},
	}
}

// Validate reports the first problem found in the rate table.
func (r Rates) Validate() error {
	if len(r.Profile) == 0 {
		return errors.New("pricing: no profile rates configured")
	}
	if len(r.Glass) == 0 {
		return errors.New("pricing: no glass rates configured")
	}
	for k, v := range r.Profile {
		if v < 0 {
			return fmt.Errorf("pricing: negative profile rate for %q", k)
		}
	}
	for k, v := range r.Glass {
		if v < 0 {
			return fmt.Errorf("pricing: negative glass rate for %q", k)
		}
	}
	if r.WasteFactor <= 0 {
		return errors.New("pricing: waste factor must be positive")
	}
	if r.MarkupPercent < 0 {
		return errors.New("pricing: markup must not be negative")
	}
	d := r.Defaults
	if d.Accessories < 0 || d.Fabrication < 0 || d.Transport < 0 || d.Installation < 0 {
		return ErrNegativeComponent
	}
	return nil
}

// Clone returns a deep copy so callers can't mutate a live table.
func (r Rates) Clone() Rates {
	out := r
	out.Profile = make(map[string]float64, len(r.Profile))
	for k, v := range r.Profile {
		out.Profile[k] = v
	}
	out.Glass = make(map[string]float64, len(r.Glass))
	for k, v := range r.Glass {
		out.Glass[k] = v
	}
	return out
}

// ProfileNames lists the configured materials in sorted order.
func (r Rates) ProfileNames() []string { return sortedKeys(r.Profile) }

// GlassNames lists the configured glass types in sorted order.
func (r Rates) GlassNames() []string { return sortedKeys(r.Glass) }

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Opening is one priced line: an opening of a given size built Quantity times.
// A nil component falls back to the rate table default.
type Opening struct {
	Type         string   `json:"type"`
	Width        float64  `json:"width"`
	Height       float64  `json:"height"`
	Quantity     int      `json:"quantity"`
	Profile      string   `json:"profile_type"`
	Glass        string   `json:"glass_type"`
	Accessories  *float64 `json:"accessory_price"`
	Fabrication  *float64 `json:"fabrication_price"`
	Transport    *float64 `json:"transport_price"`
	Installation *float64 `json:"installation_price"`
}

// Breakdown carries every derived value of an estimate.
type Breakdown struct {
	Perimeter     float64 `json:"perimeter"`
	ProfileLength float64 `json:"profile_length"`
	GlassArea     float64 `json:"glass_area"`
	ProfileRate   float64 `json:"profile_rate"`
	GlassRate     float64 `json:"glass_rate"`
	ProfileCost   float64 `json:"profile_cost"`
	GlassCost     float64 `json:"glass_cost"`
	MaterialPrice float64 `json:"material_price"`
	Accessories   float64 `json:"accessory_price"`
	Fabrication   float64 `json:"fabrication_price"`
	Transport     float64 `json:"transport_price"`
	Installation  float64 `json:"installation_price"`
	Markup        float64 `json:"markup"`
	UnitPrice     float64 `json:"unit_price"`
	Quantity      int     `json:"quantity"`
	TotalPrice    float64 `json:"total_price"`
}

func pick(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// Estimate prices an opening against the given rates.
func Estimate(r Rates, o Opening) (Breakdown, error) {
	if o.Width <= 0 || o.Height <= 0 {
		return Breakdown{}, ErrInvalidDimensions
	}
	if o.Quantity < 1 {
		return Breakdown{}, ErrInvalidQuantity
	}
	profileRate, ok := r.Profile[o.Profile]
	if !ok {
		return Breakdown{}, fmt.Errorf("%w: %q", ErrUnknownProfile, o.Profile)
	}
	glassRate, ok := r.Glass[o.Glass]
	if !ok {
		return Breakdown{}, fmt.Errorf("%w: %q", ErrUnknownGlass, o.Glass)
	}
	acc := pick(o.Accessories, r.Defaults.Accessories)
	fab := pick(o.Fabrication, r.Defaults.Fabrication)
	tra := pick(o.Transport, r.Defaults.Transport)
	ins := pick(o.Installation, r.Defaults.Installation)
	if acc < 0 || fab < 0 || tra < 0 || ins < 0 {
		return Breakdown{}, ErrNegativeComponent
	}

	w := decimal.NewFromFloat(o.Width).Div(hundred)
	h := decimal.NewFromFloat(o.Height).Div(hundred)

	perimeter := w.Add(h).Mul(two)
	length := perimeter.Mul(decimal.NewFromFloat(r.WasteFactor))
	area := w.Mul(h)
	profileCost := length.Mul(decimal.NewFromFloat(profileRate))
	glassCost := area.Mul(decimal.NewFromFloat(glassRate))
	material := profileCost.Add(glassCost)

	base := material.
		Add(decimal.NewFromFloat(acc)).
		Add(decimal.NewFromFloat(fab)).
		Add(decimal.NewFromFloat(tra)).
		Add(decimal.NewFromFloat(ins))

	markup := decimal.Zero
	if r.MarkupPercent > 0 {
		markup = base.Mul(decimal.NewFromFloat(r.MarkupPercent)).Div(hundred)
	}
	unit := base.Add(markup)
	if r.RoundUp {
		unit = unit.Ceil()
		markup = unit.Sub(base)
	}
	unit = unit.Round(2)
	total := unit.Mul(decimal.NewFromInt(int64(o.Quantity)))

	return Breakdown{
		Perimeter:     f(perimeter, 4),
		ProfileLength: f(length, 4),
		GlassArea:     f(area, 4),
		ProfileRate:   profileRate,
		GlassRate:     glassRate,
		ProfileCost:   f(profileCost, 2),
		GlassCost:     f(glassCost, 2),
		MaterialPrice: f(material, 2),
		Accessories:   acc,
		Fabrication:   fab,
		Transport:     tra,
		Installation:  ins,
		Markup:        f(markup, 2),
		UnitPrice:     f(unit, 2),
		Quantity:      o.Quantity,
		TotalPrice:    f(total, 2),
	}, nil
}

func f(d decimal.Decimal, places int32) float64 {
	return d.Round(places).InexactFloat64()
}

// Totals is the summary block of a quote or invoice.
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Discount float64 `json:"discount"`
	Taxable  float64 `json:"taxable"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

// QuoteTotals sums line totals, subtracts the discount and applies taxRate
// (a fraction, 0.19 for 19%) to what remains.
func QuoteTotals(lineTotals []float64, discount, taxRate float64) (Totals, error) {
	sub := decimal.Zero
	for _, lt := range lineTotals {
		sub = sub.Add(decimal.NewFromFloat(lt))
	}
	disc := decimal.NewFromFloat(discount)
	if disc.IsNegative() || disc.GreaterThan(sub) {
		return Totals{}, ErrInvalidDiscount
	}
	taxable := sub.Sub(disc)
	tax := taxable.Mul(decimal.NewFromFloat(taxRate)).Round(2)
	return Totals{
		Subtotal: f(sub, 2),
		Discount: f(disc, 2),
		Taxable:  f(taxable, 2),
		Tax:      f(tax, 2),
		Total:    f(taxable.Add(tax), 2),
	}, nil
}

// Round2 rounds a money value to two decimal places.
func Round2(v float64) float64 {
	return f(decimal.NewFromFloat(v), 2)
}

// LineTotal is quantity × unit price, rounded.
func LineTotal(qty, unitPrice float64) float64 {
	return f(decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(unitPrice)), 2)
}
