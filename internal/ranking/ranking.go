package ranking

import (
	"context"
	"sort"

	"bloodbank/internal/apperr"
	"bloodbank/internal/catalog"
	"bloodbank/internal/models"
)

// Engine ranks sources by landed cost per unit for one blood type.
type Engine struct {
	catalog catalog.Catalog
}

func NewEngine(c catalog.Catalog) *Engine {
	return &Engine{catalog: c}
}

// Search returns offers sorted by ascending unit total with ties kept in catalog
// order. An empty slice means no availability; a catalog failure is reported as
// source_unavailable instead.
func (e *Engine) Search(ctx context.Context, bloodType models.BloodType, filter models.SourceFilter) ([]models.RankedOffer, error) {
	fields := map[string]string{}
	if !bloodType.Valid() {
		fields["bloodType"] = "must be one of A+, A-, B+, B-, AB+, AB-, O+, O-"
	}
	switch filter {
	case models.FilterAll, models.FilterHospitals, models.FilterOrganizations:
	default:
		fields["filter"] = "must be one of all, hospitals, organizations"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}

	sources, err := e.catalog.Sources(ctx)
	if err != nil {
		return nil, apperr.SourceUnavailable(err)
	}
	return Rank(sources, bloodType, filter), nil
}

// Rank is the pure part of Search.
func Rank(sources []models.Source, bloodType models.BloodType, filter models.SourceFilter) []models.RankedOffer {
	offers := make([]models.RankedOffer, 0, len(sources))
	for _, s := range sources {
		if s.Pricing == nil || !filter.Matches(s.Kind) {
			continue
		}
		units := s.UnitsOf(bloodType)
		if units <= 0 {
			continue
		}
		offers = append(offers, models.RankedOffer{
			SourceID:       s.ID,
			SourceName:     s.Name,
			SourceType:     s.Kind,
			Address:        s.Address,
			Phone:          s.Phone,
			BloodType:      bloodType,
			AvailableUnits: units,
			Pricing:        s.Pricing.Clone(),
			TotalPrice:     s.Pricing.UnitTotal(),
		})
	}
	sort.SliceStable(offers, func(i, j int) bool {
		return offers[i].TotalPrice.LessThan(offers[j].TotalPrice)
	})
	if len(offers) > 0 {
		offers[0].BestPrice = true
	}
	return offers
}
