package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"bloodbank/internal/models"
)

const pgUniqueViolation = "23505"

type PostgresOrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

var _ OrderRepository = (*PostgresOrderRepository)(nil)

const orderColumns = `id, tracking_number, source_id, source_type, source_name, blood_type, units,
			blood_price, processing_fee, screening_fee, service_charge,
			cross_matching_fee, storage_fee_per_day, total_cost,
			patient_name, patient_age, patient_condition,
			contact_name, contact_phone, contact_email,
			urgency, required_date, expiry_date, pickup_details,
			status, admin_notes, purchased_by, created_at, updated_at`

func (r *PostgresOrderRepository) Create(ctx context.Context, o *models.PurchaseOrder) error {
	query := `INSERT INTO purchase_orders (` + orderColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29)`

	pickup, err := marshalPickup(o.PickupDetails)
	if err != nil {
		return err
	}
	crossMatching, storagePerDay := additionalFeeColumns(o.Pricing.AdditionalFees)
	var age sql.NullInt64
	if o.PatientAge != nil {
		age = sql.NullInt64{Int64: int64(*o.PatientAge), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, query,
		o.ID, o.TrackingNumber, o.SourceID, o.SourceType, o.SourceName, o.BloodType, o.Units,
		o.Pricing.BloodPrice, o.Pricing.ProcessingFee, o.Pricing.ScreeningFee, o.Pricing.ServiceCharge,
		crossMatching, storagePerDay, o.Pricing.TotalCost,
		o.PatientName, age, o.PatientCondition,
		o.ContactName, o.ContactPhone, o.ContactEmail,
		o.Urgency, o.RequiredDate, o.ExpiryDate, pickup,
		o.Status, o.AdminNotes, o.PurchasedBy, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return fmt.Errorf("create order: %w", ErrDuplicate)
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r *PostgresOrderRepository) GetByID(ctx context.Context, id string) (*models.PurchaseOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM purchase_orders WHERE id=$1`
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	return o, nil
}

func (r *PostgresOrderRepository) GetByTracking(ctx context.Context, trackingNumber string) (*models.PurchaseOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM purchase_orders WHERE tracking_number=$1`
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, trackingNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order by tracking number: %w", err)
	}
	return o, nil
}

func (r *PostgresOrderRepository) TrackingExists(ctx context.Context, trackingNumber string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM purchase_orders WHERE tracking_number=$1)`, trackingNumber,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check tracking number: %w", err)
	}
	return exists, nil
}

func (r *PostgresOrderRepository) Update(ctx context.Context, o *models.PurchaseOrder, expected models.OrderStatus) error {
	pickup, err := marshalPickup(o.PickupDetails)
	if err != nil {
		return err
	}
	query := `UPDATE purchase_orders SET
			status=$1, admin_notes=$2, pickup_details=$3, updated_at=$4
		WHERE id=$5 AND status=$6`
	res, err := r.db.ExecContext(ctx, query, o.Status, o.AdminNotes, pickup, o.UpdatedAt, o.ID, expected)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM purchase_orders WHERE id=$1)`, o.ID).Scan(&exists); err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStatusConflict
}

func (r *PostgresOrderRepository) List(ctx context.Context, f OrderFilter) ([]*models.PurchaseOrder, error) {
	var filters []string
	var args []interface{}
	idx := 1

	add := func(cond string, v interface{}) {
		filters = append(filters, fmt.Sprintf(cond, idx))
		args = append(args, v)
		idx++
	}
	if f.PurchasedBy != "" {
		add("purchased_by=$%d", f.PurchasedBy)
	}
	if f.Status != "" {
		add("status=$%d", f.Status)
	}
	if f.BloodType != "" {
		add("blood_type=$%d", f.BloodType)
	}
	if f.Urgency != "" {
		add("urgency=$%d", f.Urgency)
	}

	query := `SELECT ` + orderColumns + ` FROM purchase_orders`
	if len(filters) > 0 {
		query += " WHERE " + strings.Join(filters, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, f.limit(), max(f.Offset, 0))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	res := make([]*models.PurchaseOrder, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return res, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.PurchaseOrder, error) {
	o := &models.PurchaseOrder{}
	var (
		crossMatching, storagePerDay decimal.NullDecimal
		age                          sql.NullInt64
		pickup                       []byte
	)
	err := row.Scan(
		&o.ID, &o.TrackingNumber, &o.SourceID, &o.SourceType, &o.SourceName, &o.BloodType, &o.Units,
		&o.Pricing.BloodPrice, &o.Pricing.ProcessingFee, &o.Pricing.ScreeningFee, &o.Pricing.ServiceCharge,
		&crossMatching, &storagePerDay, &o.Pricing.TotalCost,
		&o.PatientName, &age, &o.PatientCondition,
		&o.ContactName, &o.ContactPhone, &o.ContactEmail,
		&o.Urgency, &o.RequiredDate, &o.ExpiryDate, &pickup,
		&o.Status, &o.AdminNotes, &o.PurchasedBy, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if crossMatching.Valid || storagePerDay.Valid {
		o.Pricing.AdditionalFees = &models.AdditionalFees{}
		if crossMatching.Valid {
			v := crossMatching.Decimal
			o.Pricing.AdditionalFees.CrossMatching = &v
		}
		if storagePerDay.Valid {
			v := storagePerDay.Decimal
			o.Pricing.AdditionalFees.StoragePerDay = &v
		}
	}
	if age.Valid {
		a := int(age.Int64)
		o.PatientAge = &a
	}
	if len(pickup) > 0 {
		o.PickupDetails = &models.PickupDetails{}
		if err := json.Unmarshal(pickup, o.PickupDetails); err != nil {
			return nil, fmt.Errorf("decode pickup details: %w", err)
		}
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

func marshalPickup(p *models.PickupDetails) (interface{}, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode pickup details: %w", err)
	}
	return string(b), nil
}

func additionalFeeColumns(a *models.AdditionalFees) (decimal.NullDecimal, decimal.NullDecimal) {
	var crossMatching, storagePerDay decimal.NullDecimal
	if a == nil {
		return crossMatching, storagePerDay
	}
	if a.CrossMatching != nil {
		crossMatching = decimal.NewNullDecimal(*a.CrossMatching)
	}
	if a.StoragePerDay != nil {
		storagePerDay = decimal.NewNullDecimal(*a.StoragePerDay)
	}
	return crossMatching, storagePerDay
}
