package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/Teamworks-Executive-Suites/plutus/internal/storage/models"
)

// ErrDuplicateEvent is returned when a booking would violate the
// one-booking-per-(property, event) invariant.
var ErrDuplicateEvent = errors.New("booking already exists for event")

const bookingColumns = `id, property_id, guest_name, begin_at, end_at, is_external, is_inquiry,
	is_blocked, event_id, event_summary, created_at, updated_at`

// BookingRepository provides data access for bookings ("trips").
type BookingRepository struct {
	BaseRepository
}

// NewBookingRepository creates a new booking repository.
func NewBookingRepository(db *DB) *BookingRepository {
	return &BookingRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a new booking.
func (r *BookingRepository) Create(ctx context.Context, b *models.Booking) error {
	if b.ID == "" {
		b.ID = GenerateID()
	}
	b.BeginAt = b.BeginAt.UTC()
	b.EndAt = b.EndAt.UTC()
	b.CreatedAt = r.Now()
	b.UpdatedAt = b.CreatedAt

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO bookings (
			id, property_id, guest_name, begin_at, end_at, is_external, is_inquiry,
			is_blocked, event_id, event_summary, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.ID, b.PropertyID, b.GuestName, b.BeginAt, b.EndAt, b.IsExternal, b.IsInquiry,
		b.IsBlocked, b.EventID, b.EventSummary, b.CreatedAt, b.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("inserting booking for event %s: %w", b.EventID, ErrDuplicateEvent)
	}
	if err != nil {
		return fmt.Errorf("inserting booking: %w", err)
	}

	return nil
}

// GetByID retrieves a booking by its ID. It returns nil, nil when absent.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	row := r.DB().QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id = ?", id)

	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying booking: %w", err)
	}

	return b, nil
}

// GetByEventID retrieves the booking bound to a provider event on a property.
func (r *BookingRepository) GetByEventID(ctx context.Context, propertyID, eventID string) (*models.Booking, error) {
	if eventID == "" {
		return nil, nil
	}

	row := r.DB().QueryRowContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE property_id = ? AND event_id = ?",
		propertyID, eventID)

	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying booking by event: %w", err)
	}

	return b, nil
}

// ListByProperty retrieves all bookings for a property ordered by start.
func (r *BookingRepository) ListByProperty(ctx context.Context, propertyID string) ([]models.Booking, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE property_id = ?
		ORDER BY begin_at
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("querying bookings: %w", err)
	}
	defer rows.Close()

	return scanBookings(rows)
}

// ListInternal retrieves bookings that originate on the platform.
func (r *BookingRepository) ListInternal(ctx context.Context, propertyID string) ([]models.Booking, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE property_id = ? AND is_external = ?
		ORDER BY begin_at
	`, propertyID, false)
	if err != nil {
		return nil, fmt.Errorf("querying internal bookings: %w", err)
	}
	defer rows.Close()

	return scanBookings(rows)
}

// ListFutureExternal retrieves externally sourced bookings that have not
// ended by the given instant.
func (r *BookingRepository) ListFutureExternal(ctx context.Context, propertyID string, now time.Time) ([]models.Booking, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE property_id = ? AND is_external = ? AND end_at > ?
		ORDER BY begin_at
	`, propertyID, true, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("querying future external bookings: %w", err)
	}
	defer rows.Close()

	return scanBookings(rows)
}

// UpdateWindow updates the time range and summary of a booking in place.
func (r *BookingRepository) UpdateWindow(ctx context.Context, id string, beginAt, endAt time.Time, summary string) error {
	return r.exec(ctx, `
		UPDATE bookings SET begin_at = ?, end_at = ?, event_summary = ?, updated_at = ?
		WHERE id = ?
	`, beginAt.UTC(), endAt.UTC(), summary, r.Now(), id)
}

// SetEventID records the provider event that mirrors a booking.
func (r *BookingRepository) SetEventID(ctx context.Context, id, eventID string) error {
	err := r.exec(ctx, `
		UPDATE bookings SET event_id = ?, updated_at = ? WHERE id = ?
	`, eventID, r.Now(), id)
	if isUniqueViolation(err) {
		return fmt.Errorf("binding event %s: %w", eventID, ErrDuplicateEvent)
	}
	return err
}

// Delete removes a booking by ID.
func (r *BookingRepository) Delete(ctx context.Context, id string) error {
	result, err := r.DB().ExecContext(ctx, "DELETE FROM bookings WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting booking: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}

	return nil
}

// DeleteByEventID removes the booking bound to a provider event. It reports
// whether a row was removed; absence is not an error.
func (r *BookingRepository) DeleteByEventID(ctx context.Context, propertyID, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}

	result, err := r.DB().ExecContext(ctx,
		"DELETE FROM bookings WHERE property_id = ? AND event_id = ?", propertyID, eventID)
	if err != nil {
		return false, fmt.Errorf("deleting booking by event: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected > 0, nil
}

func (r *BookingRepository) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating booking: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("booking %v: %w", args[len(args)-1], ErrNotFound)
	}

	return nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	b := &models.Booking{}
	err := row.Scan(
		&b.ID, &b.PropertyID, &b.GuestName, &b.BeginAt, &b.EndAt, &b.IsExternal, &b.IsInquiry,
		&b.IsBlocked, &b.EventID, &b.EventSummary, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func scanBookings(rows *sql.Rows) ([]models.Booking, error) {
	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// isUniqueViolation recognises unique-constraint failures from either driver.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	return false
}
