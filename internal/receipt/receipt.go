package receipt

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"bloodbank/internal/apperr"
	"bloodbank/internal/fees"
	"bloodbank/internal/lifecycle"
	"bloodbank/internal/models"
)

const Currency = "BDT"

type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type Section struct {
	Title  string  `json:"title"`
	Fields []Field `json:"fields"`
}

type Line struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// Document is the receipt layout. Sections come in a fixed order, Lines sum
// to Total, and Optional lists additional fees that are not part of Total.
type Document struct {
	Title    string          `json:"title"`
	Sections []Section       `json:"sections"`
	Lines    []Line          `json:"lines"`
	Total    decimal.Decimal `json:"total"`
	Optional []Line          `json:"optional,omitempty"`
}

type Generator struct {
	fees fees.Registry
}

func NewGenerator(r fees.Registry) *Generator {
	if r == nil {
		r = fees.NewRegistry()
	}
	return &Generator{fees: r}
}

// Render builds the receipt from the order snapshot alone. It fails with
// not_ready unless the order is ready or completed.
func (g *Generator) Render(o *models.PurchaseOrder) (Document, error) {
	if !lifecycle.ReceiptAvailable(o.Status) {
		return Document{}, apperr.NotReady(string(o.Status))
	}

	doc := Document{Title: "Blood Purchase Receipt"}
	doc.Sections = append(doc.Sections,
		Section{Title: "Order", Fields: []Field{
			{"Tracking number", o.TrackingNumber},
			{"Date", o.CreatedAt.Format(time.DateOnly)},
			{"Status", string(o.Status)},
			{"Expiry date", o.ExpiryDate.Format(time.DateOnly)},
		}},
		Section{Title: "Source", Fields: []Field{
			{"Name", o.SourceName},
			{"Type", string(o.SourceType)},
		}},
		Section{Title: "Blood details", Fields: []Field{
			{"Blood type", string(o.BloodType)},
			{"Units", strconv.Itoa(o.Units)},
			{"Urgency", string(o.Urgency)},
			{"Required by", o.RequiredDate.Format(time.DateOnly)},
		}},
		patientSection(o),
		contactSection(o),
	)
	if p := o.PickupDetails; p != nil {
		doc.Sections = append(doc.Sections, Section{Title: "Pickup", Fields: nonEmpty(
			Field{"Address", p.Address},
			Field{"Date", p.Date},
			Field{"Time", p.Time},
			Field{"Instructions", p.Instructions},
		)})
	}

	pr := o.Pricing
	doc.Lines = []Line{
		{fmt.Sprintf("Blood price (%s x %d units)", Money(pr.BloodPrice), o.Units), pr.BloodPrice.Mul(decimal.NewFromInt(int64(o.Units)))},
		{"Processing fee", pr.ProcessingFee},
		{"Screening fee", pr.ScreeningFee},
		{"Service charge", pr.ServiceCharge},
	}
	doc.Total = pr.TotalCost

	for _, l := range g.fees.Itemize(pr.AdditionalFees) {
		doc.Optional = append(doc.Optional, Line{Label: l.Label, Amount: l.Amount})
	}
	return doc, nil
}

func patientSection(o *models.PurchaseOrder) Section {
	age := ""
	if o.PatientAge != nil {
		age = strconv.Itoa(*o.PatientAge)
	}
	return Section{Title: "Patient", Fields: nonEmpty(
		Field{"Name", o.PatientName},
		Field{"Age", age},
		Field{"Condition", o.PatientCondition},
	)}
}

func contactSection(o *models.PurchaseOrder) Section {
	return Section{Title: "Contact", Fields: nonEmpty(
		Field{"Name", o.ContactName},
		Field{"Phone", o.ContactPhone},
		Field{"Email", o.ContactEmail},
	)}
}

func nonEmpty(fields ...Field) []Field {
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		if f.Value != "" {
			out = append(out, f)
		}
	}
	return out
}

func Money(d decimal.Decimal) string {
	return Currency + " " + d.StringFixed(2)
}
