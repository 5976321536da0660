package service

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"bloodbank/internal/models"
)

// CreateRequest is the purchase submission. Pricing is the breakdown the
// purchaser saw on the offer; it is frozen into the order as is.
type CreateRequest struct {
	SourceID   string            `json:"sourceId" validate:"required"`
	SourceType models.SourceKind `json:"sourceType" validate:"required,oneof=hospital organization"`
	SourceName string            `json:"sourceName" validate:"required"`
	BloodType  string            `json:"bloodType" validate:"required"`
	Units      int               `json:"units" validate:"gte=1"`

	// ObservedUnits is the availability shown by the search the purchaser acted on.
	ObservedUnits *int                `json:"observedUnits,omitempty" validate:"omitempty,gte=0"`
	Pricing       *models.FeeSchedule `json:"pricing" validate:"required"`

	PatientName      string `json:"patientName" validate:"required"`
	PatientAge       *int   `json:"patientAge,omitempty" validate:"omitempty,gte=0,lte=130"`
	PatientCondition string `json:"patientCondition,omitempty"`
	ContactName      string `json:"contactName" validate:"required"`
	ContactPhone     string `json:"contactPhone" validate:"required"`
	ContactEmail     string `json:"contactEmail,omitempty" validate:"omitempty,email"`

	Urgency      models.Urgency `json:"urgency,omitempty" validate:"omitempty,oneof=normal urgent emergency"`
	RequiredDate string         `json:"requiredDate" validate:"required"`
}

// TransitionRequest is a status change. AdminNotes and PickupDetails are only
// honored for admins.
type TransitionRequest struct {
	Status        models.OrderStatus  `json:"status"`
	AdminNotes    *string             `json:"adminNotes,omitempty"`
	PickupDetails *models.PickupPatch `json:"pickupDetails,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (r *CreateRequest) normalize() {
	r.SourceID = strings.TrimSpace(r.SourceID)
	r.SourceName = strings.TrimSpace(r.SourceName)
	r.BloodType = strings.TrimSpace(r.BloodType)
	r.PatientName = strings.TrimSpace(r.PatientName)
	r.PatientCondition = strings.TrimSpace(r.PatientCondition)
	r.ContactName = strings.TrimSpace(r.ContactName)
	r.ContactPhone = strings.TrimSpace(r.ContactPhone)
	r.ContactEmail = strings.TrimSpace(r.ContactEmail)
	r.RequiredDate = strings.TrimSpace(r.RequiredDate)
	if r.Urgency == "" {
		r.Urgency = models.UrgencyNormal
	}
}

// check runs struct validation plus the rules validator tags cannot express.
// It returns the parsed blood type and required date together with a field map
// of every problem found.
func (r *CreateRequest) check() (models.BloodType, time.Time, map[string]string) {
	fields := map[string]string{}
	if err := validate.Struct(r); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields[fe.Field()] = describe(fe)
			}
		} else {
			fields["request"] = err.Error()
		}
	}

	var bt models.BloodType
	if r.BloodType != "" {
		parsed, err := models.ParseBloodType(r.BloodType)
		if err != nil {
			fields["bloodType"] = "must be one of A+, A-, B+, B-, AB+, AB-, O+, O-"
		}
		bt = parsed
	}

	var required time.Time
	if r.RequiredDate != "" {
		d, err := parseDate(r.RequiredDate)
		if err != nil {
			fields["requiredDate"] = "must be a date (YYYY-MM-DD or RFC 3339)"
		}
		required = d
	}

	if r.Pricing != nil {
		for name, v := range map[string]interface{ IsNegative() bool }{
			"pricing.bloodPrice":    r.Pricing.BloodPrice,
			"pricing.processingFee": r.Pricing.ProcessingFee,
			"pricing.screeningFee":  r.Pricing.ScreeningFee,
			"pricing.serviceCharge": r.Pricing.ServiceCharge,
		} {
			if v.IsNegative() {
				fields[name] = "must not be negative"
			}
		}
	}
	return bt, required, fields
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "email":
		return "must be a valid email address"
	default:
		return fmt.Sprintf("failed %s check", fe.Tag())
	}
}

func parseDate(s string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		if d, err = time.Parse(time.RFC3339, s); err != nil {
			return time.Time{}, err
		}
	}
	return dateOf(d), nil
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
