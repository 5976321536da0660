package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusVerified  OrderStatus = "verified"
	StatusConfirmed OrderStatus = "confirmed"
	StatusReady     OrderStatus = "ready"
	StatusCompleted OrderStatus = "completed"
	StatusCancelled OrderStatus = "cancelled"
	StatusRejected  OrderStatus = "rejected"
)

var OrderStatuses = []OrderStatus{
	StatusPending, StatusVerified, StatusConfirmed, StatusReady,
	StatusCompleted, StatusCancelled, StatusRejected,
}

func (s OrderStatus) Valid() bool {
	for _, st := range OrderStatuses {
		if st == s {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRejected
}

type Urgency string

const (
	UrgencyNormal    Urgency = "normal"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyEmergency Urgency = "emergency"
)

func (u Urgency) Valid() bool {
	return u == UrgencyNormal || u == UrgencyUrgent || u == UrgencyEmergency
}

// PriceSnapshot is the fee schedule frozen into an order at creation.
// TotalCost is computed once and never recomputed.
type PriceSnapshot struct {
	BloodPrice     decimal.Decimal `json:"bloodPrice"`
	ProcessingFee  decimal.Decimal `json:"processingFee"`
	ScreeningFee   decimal.Decimal `json:"screeningFee"`
	ServiceCharge  decimal.Decimal `json:"serviceCharge"`
	AdditionalFees *AdditionalFees `json:"additionalFees,omitempty"`
	TotalCost      decimal.Decimal `json:"totalCost"`
}

func FreezePricing(f FeeSchedule, units int) PriceSnapshot {
	return PriceSnapshot{
		BloodPrice:     f.BloodPrice,
		ProcessingFee:  f.ProcessingFee,
		ScreeningFee:   f.ScreeningFee,
		ServiceCharge:  f.ServiceCharge,
		AdditionalFees: f.AdditionalFees.Clone(),
		TotalCost:      f.TotalFor(units),
	}
}

type PickupDetails struct {
	Address      string `json:"address,omitempty"`
	Date         string `json:"date,omitempty"`
	Time         string `json:"time,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// PickupPatch carries a partial pickup update; nil fields keep prior values.
type PickupPatch struct {
	Address      *string `json:"address,omitempty"`
	Date         *string `json:"date,omitempty"`
	Time         *string `json:"time,omitempty"`
	Instructions *string `json:"instructions,omitempty"`
}

func (p *PickupPatch) Empty() bool {
	return p == nil || (p.Address == nil && p.Date == nil && p.Time == nil && p.Instructions == nil)
}

// Apply merges the patch into cur and returns the result. cur is not modified.
func (p *PickupPatch) Apply(cur *PickupDetails) *PickupDetails {
	if p.Empty() {
		return cur
	}
	out := PickupDetails{}
	if cur != nil {
		out = *cur
	}
	if p.Address != nil {
		out.Address = *p.Address
	}
	if p.Date != nil {
		out.Date = *p.Date
	}
	if p.Time != nil {
		out.Time = *p.Time
	}
	if p.Instructions != nil {
		out.Instructions = *p.Instructions
	}
	return &out
}

type PurchaseOrder struct {
	ID             string `json:"id"`
	TrackingNumber string `json:"trackingNumber"`

	SourceID   string        `json:"sourceId"`
	SourceType SourceKind    `json:"sourceType"`
	SourceName string        `json:"sourceName"`
	BloodType  BloodType     `json:"bloodType"`
	Units      int           `json:"units"`
	Pricing    PriceSnapshot `json:"pricing"`

	PatientName      string `json:"patientName"`
	PatientAge       *int   `json:"patientAge,omitempty"`
	PatientCondition string `json:"patientCondition,omitempty"`
	ContactName      string `json:"contactName"`
	ContactPhone     string `json:"contactPhone"`
	ContactEmail     string `json:"contactEmail,omitempty"`

	Urgency       Urgency        `json:"urgency"`
	RequiredDate  time.Time      `json:"requiredDate"`
	ExpiryDate    time.Time      `json:"expiryDate"`
	PickupDetails *PickupDetails `json:"pickupDetails,omitempty"`

	Status      OrderStatus `json:"status"`
	AdminNotes  string      `json:"adminNotes,omitempty"`
	PurchasedBy string      `json:"purchasedBy"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

func (o *PurchaseOrder) UpdateState(newState OrderStatus, now time.Time) {
	o.Status = newState
	o.UpdatedAt = now.UTC()
}

func (o *PurchaseOrder) Clone() *PurchaseOrder {
	cp := *o
	cp.Pricing.AdditionalFees = o.Pricing.AdditionalFees.Clone()
	if o.PatientAge != nil {
		age := *o.PatientAge
		cp.PatientAge = &age
	}
	if o.PickupDetails != nil {
		pd := *o.PickupDetails
		cp.PickupDetails = &pd
	}
	return &cp
}

type Role string

const (
	RolePurchaser Role = "purchaser"
	RoleAdmin     Role = "admin"
)

// Actor is the authenticated caller, passed explicitly into every lifecycle call.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
