package engine

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/dahlia/internal/models"
)

// StockLedger owns the available-quantity counter per product variant and is
// the only write path to it.
type StockLedger interface {
	// TryReserve atomically decrements the variant's available quantity by qty
	// if enough stock remains, returning the quantity left afterwards. If the
	// stock is insufficient it returns an *InsufficientStockError. Any error
	// return means the counter was not touched.
	TryReserve(ctx context.Context, variantID uuid.UUID, qty int) (int, error)

	// Release unconditionally increments the counter. Calling it exactly once
	// per reserved quantity is the orchestrator's responsibility.
	Release(ctx context.Context, variantID uuid.UUID, qty int) error

	// CheckAvailable is a non-mutating pre-flight read. It is advisory only:
	// callers must still TryReserve at commit time and handle failure.
	CheckAvailable(ctx context.Context, variantID uuid.UUID, qty int) (bool, error)
}

type gormStockLedger struct {
	db *gorm.DB
}

// NewStockLedger returns the production ledger backed by a single conditional
// UPDATE per reservation, so contending reservations serialize at the storage
// layer without an application-level lock.
func NewStockLedger(db *gorm.DB) StockLedger {
	return &gormStockLedger{db: db}
}

// TryReserve decrements and reads back the counter in one statement, so an
// error return always means the counter was left untouched. A follow-up read
// happens only on the no-op path, to report how much stock actually remains.
func (l *gormStockLedger) TryReserve(ctx context.Context, variantID uuid.UUID, qty int) (int, error) {
	var remaining int
	res := l.db.WithContext(ctx).
		Raw("UPDATE product_variants SET available_quantity = available_quantity - ? WHERE id = ? AND available_quantity >= ? RETURNING available_quantity",
			qty, variantID, qty).
		Scan(&remaining)
	if res.Error != nil {
		return 0, res.Error
	}

	if res.RowsAffected == 0 {
		available, err := l.availableQuantity(ctx, variantID)
		if err != nil {
			return 0, err
		}
		return 0, &InsufficientStockError{VariantID: variantID, Requested: qty, Available: available}
	}

	return remaining, nil
}

func (l *gormStockLedger) Release(ctx context.Context, variantID uuid.UUID, qty int) error {
	return l.db.WithContext(ctx).Model(&models.ProductVariant{}).
		Where("id = ?", variantID).
		UpdateColumn("available_quantity", gorm.Expr("available_quantity + ?", qty)).Error
}

func (l *gormStockLedger) CheckAvailable(ctx context.Context, variantID uuid.UUID, qty int) (bool, error) {
	available, err := l.availableQuantity(ctx, variantID)
	if err != nil {
		return false, err
	}
	return available >= qty, nil
}

func (l *gormStockLedger) availableQuantity(ctx context.Context, variantID uuid.UUID) (int, error) {
	var variant models.ProductVariant
	if err := l.db.WithContext(ctx).Select("available_quantity").
		First(&variant, "id = ?", variantID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, ErrVariantNotFound
		}
		return 0, err
	}
	return variant.AvailableQuantity, nil
}
