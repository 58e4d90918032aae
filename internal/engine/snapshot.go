package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/example/dahlia/internal/models"
)

// AddressReader loads live addresses. Implementations return ErrAddressNotFound
// when the address does not exist.
type AddressReader interface {
	LoadAddress(ctx context.Context, id uuid.UUID) (*models.Address, error)
}

// DisplayAddress is what order views render. Values always come from the
// order's snapshot; the live address, when it still exists, only contributes
// the cross-link back to the user's profile.
type DisplayAddress struct {
	AddressID   *uuid.UUID `json:"address_id"`
	FullName    string     `json:"full_name"`
	Phone       string     `json:"phone"`
	AddressLine string     `json:"address_line"`
	Ward        string     `json:"ward"`
	District    string     `json:"district"`
	City        string     `json:"city"`
	PostalCode  string     `json:"postal_code"`
	CapturedAt  time.Time  `json:"captured_at"`
}

// SnapshotService captures immutable address copies for orders and resolves
// display addresses after the live record may have changed or disappeared.
type SnapshotService struct {
	addresses AddressReader
	clock     func() time.Time
}

func NewSnapshotService(addresses AddressReader, clock func() time.Time) *SnapshotService {
	if clock == nil {
		clock = time.Now
	}
	return &SnapshotService{addresses: addresses, clock: clock}
}

// Capture loads the live address and copies its display fields into a detached
// snapshot stamped with the capture time. An order must never be created with
// neither a valid reference nor a snapshot, so a missing address is an error
// here, not a silent skip.
func (s *SnapshotService) Capture(ctx context.Context, addressID uuid.UUID) (models.AddressSnapshot, error) {
	address, err := s.addresses.LoadAddress(ctx, addressID)
	if err != nil {
		return models.AddressSnapshot{}, err
	}

	return models.AddressSnapshot{
		FullName:    address.FullName,
		Phone:       address.Phone,
		AddressLine: address.AddressLine,
		Ward:        address.Ward,
		District:    address.District,
		City:        address.City,
		PostalCode:  address.PostalCode,
		IsDefault:   address.IsDefault,
		CapturedAt:  s.clock(),
	}, nil
}

// ResolveForDisplay returns the address an order was actually shipped to. The
// snapshot is the source of truth and takes precedence over any later edit to
// the live address; the live reference is kept only when it still resolves.
// If the reference dangles and no snapshot was ever written, it returns
// ErrAddressUnavailable rather than fabricating data.
func (s *SnapshotService) ResolveForDisplay(ctx context.Context, order *models.Order) (DisplayAddress, error) {
	snapshot := order.AddressSnapshot

	var liveID *uuid.UUID
	if order.AddressID != nil {
		if _, err := s.addresses.LoadAddress(ctx, *order.AddressID); err == nil {
			liveID = order.AddressID
		} else if err != ErrAddressNotFound {
			return DisplayAddress{}, err
		}
	}

	if snapshot.CapturedAt.IsZero() {
		if liveID == nil {
			return DisplayAddress{}, ErrAddressUnavailable
		}
		// Historical rows from before snapshots were mandatory: fall back to
		// the live record since it is all we have.
		address, err := s.addresses.LoadAddress(ctx, *liveID)
		if err != nil {
			return DisplayAddress{}, err
		}
		return DisplayAddress{
			AddressID:   liveID,
			FullName:    address.FullName,
			Phone:       address.Phone,
			AddressLine: address.AddressLine,
			Ward:        address.Ward,
			District:    address.District,
			City:        address.City,
			PostalCode:  address.PostalCode,
		}, nil
	}

	return DisplayAddress{
		AddressID:   liveID,
		FullName:    snapshot.FullName,
		Phone:       snapshot.Phone,
		AddressLine: snapshot.AddressLine,
		Ward:        snapshot.Ward,
		District:    snapshot.District,
		City:        snapshot.City,
		PostalCode:  snapshot.PostalCode,
		CapturedAt:  snapshot.CapturedAt,
	}, nil
}
