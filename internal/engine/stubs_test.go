package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/dahlia/internal/models"
)

// memoryLedger mirrors the conditional-update contract of the production
// ledger: check-and-decrement happens under one lock, never as a separate
// read then write.
type memoryLedger struct {
	mu    sync.Mutex
	stock map[uuid.UUID]int
}

func newMemoryLedger(stock map[uuid.UUID]int) *memoryLedger {
	copied := make(map[uuid.UUID]int, len(stock))
	for id, qty := range stock {
		copied[id] = qty
	}
	return &memoryLedger{stock: copied}
}

func (l *memoryLedger) TryReserve(_ context.Context, variantID uuid.UUID, qty int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	available, ok := l.stock[variantID]
	if !ok {
		return 0, ErrVariantNotFound
	}
	if available < qty {
		return 0, &InsufficientStockError{VariantID: variantID, Requested: qty, Available: available}
	}
	l.stock[variantID] = available - qty
	return l.stock[variantID], nil
}

func (l *memoryLedger) Release(_ context.Context, variantID uuid.UUID, qty int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stock[variantID] += qty
	return nil
}

func (l *memoryLedger) CheckAvailable(_ context.Context, variantID uuid.UUID, qty int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stock[variantID] >= qty, nil
}

func (l *memoryLedger) available(variantID uuid.UUID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stock[variantID]
}

// faultyLedger fails TryReserve for one designated variant with a storage
// error, leaving the counter untouched as the production ledger contract
// requires.
type faultyLedger struct {
	*memoryLedger
	failVariant uuid.UUID
	err         error
}

func (l *faultyLedger) TryReserve(ctx context.Context, variantID uuid.UUID, qty int) (int, error) {
	if variantID == l.failVariant {
		return 0, l.err
	}
	return l.memoryLedger.TryReserve(ctx, variantID, qty)
}

type memoryOrderStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*models.Order
	seq    int64
}

func newMemoryOrderStore() *memoryOrderStore {
	return &memoryOrderStore{orders: make(map[uuid.UUID]*models.Order)}
}

func (s *memoryOrderStore) GetOrder(_ context.Context, id uuid.UUID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	copied := *order
	copied.Items = append([]models.OrderItem(nil), order.Items...)
	return &copied, nil
}

func (s *memoryOrderStore) CreateOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	copied := *order
	copied.Items = append([]models.OrderItem(nil), order.Items...)
	s.orders[order.ID] = &copied
	return nil
}

func (s *memoryOrderStore) UpdateOrderState(_ context.Context, id uuid.UUID, from, to models.OrderStatus, payment models.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok || order.Status != from {
		return ErrStaleOrderState
	}
	order.Status = to
	order.PaymentStatus = payment
	return nil
}

func (s *memoryOrderStore) UpdatePaymentStatus(_ context.Context, id uuid.UUID, from, to models.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok || order.PaymentStatus != from {
		return ErrStaleOrderState
	}
	order.PaymentStatus = to
	return nil
}

func (s *memoryOrderStore) NextOrderSequence(_ context.Context, _ int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq, nil
}

func (s *memoryOrderStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

type memoryAddresses struct {
	mu        sync.Mutex
	addresses map[uuid.UUID]models.Address
}

func newMemoryAddresses(addresses ...models.Address) *memoryAddresses {
	store := &memoryAddresses{addresses: make(map[uuid.UUID]models.Address)}
	for _, address := range addresses {
		store.addresses[address.ID] = address
	}
	return store
}

func (s *memoryAddresses) LoadAddress(_ context.Context, id uuid.UUID) (*models.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	address, ok := s.addresses[id]
	if !ok {
		return nil, ErrAddressNotFound
	}
	copied := address
	return &copied, nil
}

func (s *memoryAddresses) put(address models.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses[address.ID] = address
}

func (s *memoryAddresses) delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.addresses, id)
}

type stubCatalog struct {
	variants map[uuid.UUID]VariantDetail
}

func (s *stubCatalog) LoadVariant(_ context.Context, id uuid.UUID) (*VariantDetail, error) {
	detail, ok := s.variants[id]
	if !ok {
		return nil, ErrVariantNotFound
	}
	return &detail, nil
}

type stubPayments struct {
	methods map[uuid.UUID]models.PaymentMethod
}

func (s *stubPayments) LoadPaymentMethod(_ context.Context, id uuid.UUID) (*models.PaymentMethod, error) {
	method, ok := s.methods[id]
	if !ok {
		return nil, ErrPaymentMethodNotFound
	}
	return &method, nil
}

type stubVouchers struct {
	vouchers map[uuid.UUID]models.Voucher
}

func (s *stubVouchers) LoadVoucher(_ context.Context, id uuid.UUID) (*models.Voucher, error) {
	voucher, ok := s.vouchers[id]
	if !ok {
		return nil, ErrVoucherNotFound
	}
	return &voucher, nil
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
