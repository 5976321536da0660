package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"bloodbank/internal/apperr"
	"bloodbank/internal/models"
)

// PostgresCatalog reads sources maintained by the admin back office.
type PostgresCatalog struct {
	db *sql.DB
}

func NewPostgresCatalog(db *sql.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

var _ Store = (*PostgresCatalog)(nil)

func (c *PostgresCatalog) Sources(ctx context.Context) ([]models.Source, error) {
	query := `SELECT
			s.id, s.name, s.kind, s.address, s.phone,
			p.blood_price, p.processing_fee, p.screening_fee, p.service_charge,
			p.cross_matching_fee, p.storage_fee_per_day
		FROM sources s
		LEFT JOIN source_pricing p ON p.source_id = s.id
		ORDER BY s.position ASC`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var res []models.Source
	index := make(map[string]int)
	for rows.Next() {
		var (
			s                                 models.Source
			blood, processing, screening, svc decimal.NullDecimal
			crossMatching, storagePerDay      decimal.NullDecimal
		)
		if err := rows.Scan(
			&s.ID, &s.Name, &s.Kind, &s.Address, &s.Phone,
			&blood, &processing, &screening, &svc,
			&crossMatching, &storagePerDay,
		); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		if blood.Valid {
			s.Pricing = &models.FeeSchedule{
				BloodPrice:    blood.Decimal,
				ProcessingFee: processing.Decimal,
				ScreeningFee:  screening.Decimal,
				ServiceCharge: svc.Decimal,
			}
			if crossMatching.Valid || storagePerDay.Valid {
				s.Pricing.AdditionalFees = &models.AdditionalFees{}
				if crossMatching.Valid {
					v := crossMatching.Decimal
					s.Pricing.AdditionalFees.CrossMatching = &v
				}
				if storagePerDay.Valid {
					v := storagePerDay.Decimal
					s.Pricing.AdditionalFees.StoragePerDay = &v
				}
			}
		}
		s.Inventory = make(map[models.BloodType]int)
		index[s.ID] = len(res)
		res = append(res, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}

	inv, err := c.db.QueryContext(ctx, `SELECT source_id, blood_type, units FROM source_inventory`)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer inv.Close()
	for inv.Next() {
		var (
			id    string
			bt    models.BloodType
			units int
		)
		if err := inv.Scan(&id, &bt, &units); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		if i, ok := index[id]; ok {
			res[i].Inventory[bt] = units
		}
	}
	if err := inv.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory: %w", err)
	}
	return res, nil
}

// Reserve decrements stock with a conditional update, so two concurrent
// purchasers can never take the counter below zero.
func (c *PostgresCatalog) Reserve(ctx context.Context, sourceID string, bloodType models.BloodType, units int) error {
	query := `UPDATE source_inventory SET units = units - $1
		WHERE source_id = $2 AND blood_type = $3 AND units >= $1`
	res, err := c.db.ExecContext(ctx, query, units, sourceID, bloodType)
	if err != nil {
		return fmt.Errorf("reserve units: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 1 {
		return nil
	}

	var left int
	err = c.db.QueryRowContext(ctx,
		`SELECT units FROM source_inventory WHERE source_id = $1 AND blood_type = $2`,
		sourceID, bloodType,
	).Scan(&left)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := c.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM sources WHERE id = $1)`, sourceID).Scan(&exists); err != nil {
			return fmt.Errorf("check source: %w", err)
		}
		if !exists {
			return ErrSourceNotFound
		}
		left = 0
	} else if err != nil {
		return fmt.Errorf("read units: %w", err)
	}
	return apperr.InsufficientStock("source %s has %d units of %s left, %d requested", sourceID, left, bloodType, units)
}

// Release adds units back to an inventory row taken by Reserve.
func (c *PostgresCatalog) Release(ctx context.Context, sourceID string, bloodType models.BloodType, units int) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE source_inventory SET units = units + $1 WHERE source_id = $2 AND blood_type = $3`,
		units, sourceID, bloodType,
	)
	if err != nil {
		return fmt.Errorf("release units: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSourceNotFound
	}
	return nil
}

// Upsert writes a source with its pricing and inventory in one transaction.
func (c *PostgresCatalog) Upsert(ctx context.Context, s models.Source) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert source: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `INSERT INTO sources (id, name, kind, address, phone)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET name=$2, kind=$3, address=$4, phone=$5`,
		s.ID, s.Name, s.Kind, s.Address, s.Phone)
	if err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}

	if s.Pricing == nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM source_pricing WHERE source_id=$1`, s.ID); err != nil {
			return fmt.Errorf("clear pricing: %w", err)
		}
	} else {
		var crossMatching, storagePerDay decimal.NullDecimal
		if a := s.Pricing.AdditionalFees; a != nil {
			if a.CrossMatching != nil {
				crossMatching = decimal.NewNullDecimal(*a.CrossMatching)
			}
			if a.StoragePerDay != nil {
				storagePerDay = decimal.NewNullDecimal(*a.StoragePerDay)
			}
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO source_pricing (
				source_id, blood_price, processing_fee, screening_fee, service_charge,
				cross_matching_fee, storage_fee_per_day, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
			ON CONFLICT (source_id) DO UPDATE SET
				blood_price=$2, processing_fee=$3, screening_fee=$4, service_charge=$5,
				cross_matching_fee=$6, storage_fee_per_day=$7, updated_at=NOW()`,
			s.ID, s.Pricing.BloodPrice, s.Pricing.ProcessingFee, s.Pricing.ScreeningFee, s.Pricing.ServiceCharge,
			crossMatching, storagePerDay)
		if err != nil {
			return fmt.Errorf("upsert pricing: %w", err)
		}
	}

	for bt, units := range s.Inventory {
		_, err = tx.ExecContext(ctx, `INSERT INTO source_inventory (source_id, blood_type, units)
			VALUES ($1,$2,$3)
			ON CONFLICT (source_id, blood_type) DO UPDATE SET units=$3`,
			s.ID, bt, units)
		if err != nil {
			return fmt.Errorf("upsert inventory %s: %w", bt, err)
		}
	}
	return tx.Commit()
}
