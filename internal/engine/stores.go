package engine

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/dahlia/internal/models"
)

// OrderStore persists orders and allocates order codes. State updates are
// conditional on the current value so a lost race surfaces as
// ErrStaleOrderState instead of silently overwriting.
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	UpdateOrderState(ctx context.Context, id uuid.UUID, from, to models.OrderStatus, payment models.PaymentStatus) error
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to models.PaymentStatus) error
	NextOrderSequence(ctx context.Context, year int) (int64, error)
}

// VariantDetail pairs a variant with the product name frozen onto order items.
type VariantDetail struct {
	Variant     models.ProductVariant
	ProductName string
}

type CatalogReader interface {
	LoadVariant(ctx context.Context, id uuid.UUID) (*VariantDetail, error)
}

type PaymentMethodReader interface {
	LoadPaymentMethod(ctx context.Context, id uuid.UUID) (*models.PaymentMethod, error)
}

type VoucherReader interface {
	LoadVoucher(ctx context.Context, id uuid.UUID) (*models.Voucher, error)
}

// Store is the GORM-backed implementation of the engine's read/write
// collaborator contracts.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).Preload("Items").First(&order, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	return s.db.WithContext(ctx).Create(order).Error
}

func (s *Store) UpdateOrderState(ctx context.Context, id uuid.UUID, from, to models.OrderStatus, payment models.PaymentStatus) error {
	res := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":         to,
			"payment_status": payment,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleOrderState
	}
	return nil
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to models.PaymentStatus) error {
	res := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", id, from).
		Update("payment_status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleOrderState
	}
	return nil
}

func (s *Store) NextOrderSequence(ctx context.Context, year int) (int64, error) {
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.OrderCounter{Year: year}).Error; err != nil {
		return 0, err
	}

	var seq int64
	if err := s.db.WithContext(ctx).
		Raw("UPDATE order_counters SET value = value + 1 WHERE year = ? RETURNING value", year).
		Scan(&seq).Error; err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *Store) LoadAddress(ctx context.Context, id uuid.UUID) (*models.Address, error) {
	var address models.Address
	if err := s.db.WithContext(ctx).First(&address, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrAddressNotFound
		}
		return nil, err
	}
	return &address, nil
}

func (s *Store) LoadVariant(ctx context.Context, id uuid.UUID) (*VariantDetail, error) {
	var variant models.ProductVariant
	if err := s.db.WithContext(ctx).First(&variant, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrVariantNotFound
		}
		return nil, err
	}

	var product models.Product
	if err := s.db.WithContext(ctx).Select("name").First(&product, "id = ?", variant.ProductID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return &VariantDetail{Variant: variant}, nil
		}
		return nil, err
	}

	return &VariantDetail{Variant: variant, ProductName: product.Name}, nil
}

func (s *Store) LoadPaymentMethod(ctx context.Context, id uuid.UUID) (*models.PaymentMethod, error) {
	var method models.PaymentMethod
	if err := s.db.WithContext(ctx).First(&method, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrPaymentMethodNotFound
		}
		return nil, err
	}
	return &method, nil
}

func (s *Store) LoadVoucher(ctx context.Context, id uuid.UUID) (*models.Voucher, error) {
	var voucher models.Voucher
	if err := s.db.WithContext(ctx).First(&voucher, "id = ? AND is_active = ?", id, true).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrVoucherNotFound
		}
		return nil, err
	}
	return &voucher, nil
}
