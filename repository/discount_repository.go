package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"orderFulfillmentTracking/models"
)

// DiscountRepository is the SQLite-backed discount store.
type DiscountRepository struct {
	db *sql.DB
}

// NewDiscountRepository creates a new DiscountRepository.
func NewDiscountRepository(db *sql.DB) *DiscountRepository {
	return &DiscountRepository{db: db}
}

// Create inserts a discount, assigning an id if absent.
func (r *DiscountRepository) Create(ctx context.Context, d *models.Discount) error {
	if d == nil {
		return errors.New("discount is nil")
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO discounts (id, product_id, discount_percentage, start_date, end_date) VALUES (?,?,?,?,?)`,
		d.ID, d.ProductID, d.DiscountPercentage, d.StartDate.UTC().Format(timeFmt), d.EndDate.UTC().Format(timeFmt))
	return err
}

// ByProduct returns every discount recorded for a product, active or not.
// Selection among overlapping windows is the model's concern
// (models.BestActiveDiscount), not the store's.
func (r *DiscountRepository) ByProduct(ctx context.Context, productID string) ([]models.Discount, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, product_id, discount_percentage, start_date, end_date FROM discounts WHERE product_id = ?`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Discount
	for rows.Next() {
		var d models.Discount
		var start, end string
		if err := rows.Scan(&d.ID, &d.ProductID, &d.DiscountPercentage, &start, &end); err != nil {
			return nil, err
		}
		if d.StartDate, err = time.Parse(timeFmt, start); err != nil {
			return nil, err
		}
		if d.EndDate, err = time.Parse(timeFmt, end); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
