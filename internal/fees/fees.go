package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	"bloodbank/internal/models"
)

type FeeType string

const (
	FeeCrossMatching FeeType = "cross_matching"
	FeeStoragePerDay FeeType = "storage_per_day"
)

// Fee is an optional add-on charge a source may publish next to its mandatory fees.
type Fee interface {
	Type() FeeType
	Label() string
	Amount(a *models.AdditionalFees) (decimal.Decimal, bool)
	Validate(kind models.SourceKind, amount decimal.Decimal) error
}

type CrossMatchingFee struct{}

func (CrossMatchingFee) Type() FeeType { return FeeCrossMatching }

func (CrossMatchingFee) Label() string { return "Cross-matching" }

func (CrossMatchingFee) Amount(a *models.AdditionalFees) (decimal.Decimal, bool) {
	if a == nil || a.CrossMatching == nil {
		return decimal.Zero, false
	}
	return *a.CrossMatching, true
}

func (f CrossMatchingFee) Validate(kind models.SourceKind, amount decimal.Decimal) error {
	return hospitalOnly(f, kind, amount)
}

type StoragePerDayFee struct{}

func (StoragePerDayFee) Type() FeeType { return FeeStoragePerDay }

func (StoragePerDayFee) Label() string { return "Storage (per day)" }

func (StoragePerDayFee) Amount(a *models.AdditionalFees) (decimal.Decimal, bool) {
	if a == nil || a.StoragePerDay == nil {
		return decimal.Zero, false
	}
	return *a.StoragePerDay, true
}

func (f StoragePerDayFee) Validate(kind models.SourceKind, amount decimal.Decimal) error {
	return hospitalOnly(f, kind, amount)
}

func hospitalOnly(f Fee, kind models.SourceKind, amount decimal.Decimal) error {
	if kind != models.SourceHospital {
		return fmt.Errorf("%s fee is only offered by hospitals", f.Label())
	}
	if amount.IsNegative() {
		return fmt.Errorf("%s fee must not be negative", f.Label())
	}
	return nil
}

// Line is one itemized optional charge.
type Line struct {
	Type   FeeType         `json:"type"`
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

type Registry interface {
	List() []Fee
	Itemize(a *models.AdditionalFees) []Line
	Validate(kind models.SourceKind, a *models.AdditionalFees) map[string]string
}

type registry struct {
	order []FeeType
	types map[FeeType]Fee
}

func NewRegistry() Registry {
	return &registry{
		order: []FeeType{FeeCrossMatching, FeeStoragePerDay},
		types: map[FeeType]Fee{
			FeeCrossMatching: CrossMatchingFee{},
			FeeStoragePerDay: StoragePerDayFee{},
		},
	}
}

// List returns fees in display order.
func (r *registry) List() []Fee {
	list := make([]Fee, 0, len(r.order))
	for _, t := range r.order {
		list = append(list, r.types[t])
	}
	return list
}

func (r *registry) Itemize(a *models.AdditionalFees) []Line {
	var lines []Line
	for _, f := range r.List() {
		if amount, ok := f.Amount(a); ok {
			lines = append(lines, Line{Type: f.Type(), Label: f.Label(), Amount: amount})
		}
	}
	return lines
}

// Validate returns per-fee problems keyed by "pricing.additionalFees.<type>", or nil.
func (r *registry) Validate(kind models.SourceKind, a *models.AdditionalFees) map[string]string {
	var problems map[string]string
	for _, f := range r.List() {
		amount, ok := f.Amount(a)
		if !ok {
			continue
		}
		if err := f.Validate(kind, amount); err != nil {
			if problems == nil {
				problems = make(map[string]string)
			}
			problems["pricing.additionalFees."+string(f.Type())] = err.Error()
		}
	}
	return problems
}
