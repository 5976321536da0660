package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type BloodType string

const (
	BloodAPos  BloodType = "A+"
	BloodANeg  BloodType = "A-"
	BloodBPos  BloodType = "B+"
	BloodBNeg  BloodType = "B-"
	BloodABPos BloodType = "AB+"
	BloodABNeg BloodType = "AB-"
	BloodOPos  BloodType = "O+"
	BloodONeg  BloodType = "O-"
)

var BloodTypes = []BloodType{BloodAPos, BloodANeg, BloodBPos, BloodBNeg, BloodABPos, BloodABNeg, BloodOPos, BloodONeg}

func (b BloodType) Valid() bool {
	for _, t := range BloodTypes {
		if t == b {
			return true
		}
	}
	return false
}

// ParseBloodType accepts the canonical codes case-insensitively. A '+' that was
// decoded from a query string as a space is restored.
func ParseBloodType(s string) (BloodType, error) {
	s = strings.ToUpper(strings.TrimLeft(s, " "))
	if strings.HasSuffix(s, " ") {
		s = strings.TrimRight(s, " ") + "+"
	}
	b := BloodType(s)
	if !b.Valid() {
		return "", fmt.Errorf("unknown blood type %q", s)
	}
	return b, nil
}

type SourceKind string

const (
	SourceHospital     SourceKind = "hospital"
	SourceOrganization SourceKind = "organization"
)

func (k SourceKind) Valid() bool {
	return k == SourceHospital || k == SourceOrganization
}

type SourceFilter string

const (
	FilterAll           SourceFilter = "all"
	FilterHospitals     SourceFilter = "hospitals"
	FilterOrganizations SourceFilter = "organizations"
)

func ParseSourceFilter(s string) (SourceFilter, error) {
	switch f := SourceFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterHospitals, FilterOrganizations:
		return f, nil
	default:
		return "", fmt.Errorf("unknown source filter %q", s)
	}
}

func (f SourceFilter) Matches(k SourceKind) bool {
	switch f {
	case FilterHospitals:
		return k == SourceHospital
	case FilterOrganizations:
		return k == SourceOrganization
	default:
		return true
	}
}

// AdditionalFees are optional hospital-only add-ons. They are shown on offers
// and receipts but never counted in a total.
type AdditionalFees struct {
	CrossMatching *decimal.Decimal `json:"crossMatching,omitempty"`
	StoragePerDay *decimal.Decimal `json:"storagePerDay,omitempty"`
}

func (a *AdditionalFees) Empty() bool {
	return a == nil || (a.CrossMatching == nil && a.StoragePerDay == nil)
}

func (a *AdditionalFees) Clone() *AdditionalFees {
	if a == nil {
		return nil
	}
	cp := &AdditionalFees{}
	if a.CrossMatching != nil {
		v := *a.CrossMatching
		cp.CrossMatching = &v
	}
	if a.StoragePerDay != nil {
		v := *a.StoragePerDay
		cp.StoragePerDay = &v
	}
	return cp
}

// FeeSchedule is the itemized price list a source publishes.
type FeeSchedule struct {
	BloodPrice     decimal.Decimal `json:"bloodPrice"`
	ProcessingFee  decimal.Decimal `json:"processingFee"`
	ScreeningFee   decimal.Decimal `json:"screeningFee"`
	ServiceCharge  decimal.Decimal `json:"serviceCharge"`
	AdditionalFees *AdditionalFees `json:"additionalFees,omitempty"`
}

// UnitTotal is the landed cost of a single unit.
func (f FeeSchedule) UnitTotal() decimal.Decimal {
	return f.BloodPrice.Add(f.ProcessingFee).Add(f.ScreeningFee).Add(f.ServiceCharge)
}

// TotalFor charges the blood price per unit and every other mandatory fee once.
func (f FeeSchedule) TotalFor(units int) decimal.Decimal {
	return f.BloodPrice.Mul(decimal.NewFromInt(int64(units))).
		Add(f.ProcessingFee).Add(f.ScreeningFee).Add(f.ServiceCharge)
}

func (f FeeSchedule) Clone() FeeSchedule {
	cp := f
	cp.AdditionalFees = f.AdditionalFees.Clone()
	return cp
}

type Source struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Kind      SourceKind        `json:"kind"`
	Address   string            `json:"address,omitempty"`
	Phone     string            `json:"phone,omitempty"`
	Inventory map[BloodType]int `json:"inventory"`
	Pricing   *FeeSchedule      `json:"pricing,omitempty"`
}

func (s Source) UnitsOf(b BloodType) int {
	if s.Inventory == nil {
		return 0
	}
	return s.Inventory[b]
}

func (s Source) Clone() Source {
	cp := s
	if s.Inventory != nil {
		cp.Inventory = make(map[BloodType]int, len(s.Inventory))
		for k, v := range s.Inventory {
			cp.Inventory[k] = v
		}
	}
	if s.Pricing != nil {
		p := s.Pricing.Clone()
		cp.Pricing = &p
	}
	return cp
}

// RankedOffer is computed per search and never persisted.
type RankedOffer struct {
	SourceID       string          `json:"sourceId"`
	SourceName     string          `json:"sourceName"`
	SourceType     SourceKind      `json:"sourceType"`
	Address        string          `json:"address,omitempty"`
	Phone          string          `json:"phone,omitempty"`
	BloodType      BloodType       `json:"bloodType"`
	AvailableUnits int             `json:"availableUnits"`
	Pricing        FeeSchedule     `json:"pricing"`
	TotalPrice     decimal.Decimal `json:"totalPrice"`
	BestPrice      bool            `json:"bestPrice"`
}
