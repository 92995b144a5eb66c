package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Teamworks-Executive-Suites/plutus/internal/storage/models"
)

const propertyColumns = `id, name, calendar_id, channel_id, channel_resource_id, channel_expiration,
	next_sync_token, timezone, last_sync_at, sync_status, sync_error, created_at, updated_at`

// PropertyRepository provides data access for properties. Mutations made by
// the sync engine and the channel manager are field-scoped so that concurrent
// writers never clobber each other's columns.
type PropertyRepository struct {
	BaseRepository
}

// NewPropertyRepository creates a new property repository.
func NewPropertyRepository(db *DB) *PropertyRepository {
	return &PropertyRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a new property.
func (r *PropertyRepository) Create(ctx context.Context, p *models.Property) error {
	if p.ID == "" {
		p.ID = GenerateID()
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	p.CreatedAt = r.Now()
	p.UpdatedAt = p.CreatedAt
	p.SyncStatus = models.SyncStatusPending

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO properties (
			id, name, calendar_id, channel_id, channel_resource_id, channel_expiration,
			next_sync_token, timezone, sync_status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.Name, p.CalendarID, p.ChannelID, p.ChannelResourceID, p.ChannelExpiration,
		p.NextSyncToken, p.Timezone, p.SyncStatus, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting property: %w", err)
	}

	return nil
}

// GetByID retrieves a property by its ID. It returns nil, nil when absent.
func (r *PropertyRepository) GetByID(ctx context.Context, id string) (*models.Property, error) {
	return r.getOne(ctx, "id", id)
}

// GetByCalendarID retrieves the property bound to an external calendar.
func (r *PropertyRepository) GetByCalendarID(ctx context.Context, calendarID string) (*models.Property, error) {
	return r.getOne(ctx, "calendar_id", calendarID)
}

// GetByChannelID retrieves the property owning a notification channel.
func (r *PropertyRepository) GetByChannelID(ctx context.Context, channelID string) (*models.Property, error) {
	return r.getOne(ctx, "channel_id", channelID)
}

func (r *PropertyRepository) getOne(ctx context.Context, column, value string) (*models.Property, error) {
	if value == "" {
		return nil, nil
	}

	row := r.DB().QueryRowContext(ctx,
		"SELECT "+propertyColumns+" FROM properties WHERE "+column+" = ? LIMIT 1", value)

	p, err := scanProperty(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying property by %s: %w", column, err)
	}

	return p, nil
}

// List retrieves all properties.
func (r *PropertyRepository) List(ctx context.Context) ([]models.Property, error) {
	rows, err := r.DB().QueryContext(ctx, "SELECT "+propertyColumns+" FROM properties ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying properties: %w", err)
	}
	defer rows.Close()

	return scanProperties(rows)
}

// ListWithCalendar retrieves all properties bound to an external calendar,
// least recently synced first.
func (r *PropertyRepository) ListWithCalendar(ctx context.Context) ([]models.Property, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+propertyColumns+`
		FROM properties
		WHERE calendar_id <> ''
		ORDER BY last_sync_at ASC NULLS FIRST, id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying calendar properties: %w", err)
	}
	defer rows.Close()

	return scanProperties(rows)
}

// SetCalendar binds a property to an external calendar. The stored cursor is
// cleared because it belongs to the previous calendar.
func (r *PropertyRepository) SetCalendar(ctx context.Context, id, calendarID string) error {
	return r.exec(ctx, `
		UPDATE properties SET calendar_id = ?, next_sync_token = '', updated_at = ?
		WHERE id = ?
	`, calendarID, r.Now(), id)
}

// UpdateChannel records the active notification channel.
func (r *PropertyRepository) UpdateChannel(ctx context.Context, id string, ch models.Channel) error {
	exp := ch.ExpiresAt.UTC()
	return r.exec(ctx, `
		UPDATE properties SET channel_id = ?, channel_resource_id = ?, channel_expiration = ?, updated_at = ?
		WHERE id = ?
	`, ch.ID, ch.ResourceID, exp, r.Now(), id)
}

// SwapChannel records ch only if the property still records prevID, which is
// empty for a property without a channel. It returns ErrChannelChanged when
// another writer recorded a channel first.
func (r *PropertyRepository) SwapChannel(ctx context.Context, id, prevID string, ch models.Channel) error {
	exp := ch.ExpiresAt.UTC()
	result, err := r.DB().ExecContext(ctx, `
		UPDATE properties SET channel_id = ?, channel_resource_id = ?, channel_expiration = ?, updated_at = ?
		WHERE id = ? AND channel_id = ?
	`, ch.ID, ch.ResourceID, exp, r.Now(), id, prevID)
	if err != nil {
		return fmt.Errorf("updating property channel: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return nil
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("property %s: %w", id, ErrNotFound)
	}
	return fmt.Errorf("property %s records channel %q, not %q: %w", id, current.ChannelID, prevID, ErrChannelChanged)
}

// ClearChannel forgets the recorded notification channel.
func (r *PropertyRepository) ClearChannel(ctx context.Context, id string) error {
	return r.exec(ctx, `
		UPDATE properties SET channel_id = '', channel_resource_id = '', channel_expiration = NULL, updated_at = ?
		WHERE id = ?
	`, r.Now(), id)
}

// UpdateSyncToken persists the incremental sync cursor. An empty token forces
// a full resync on the next run.
func (r *PropertyRepository) UpdateSyncToken(ctx context.Context, id, token string) error {
	return r.exec(ctx, `
		UPDATE properties SET next_sync_token = ?, updated_at = ? WHERE id = ?
	`, token, r.Now(), id)
}

// UpdateSyncStatus updates the sync status of a property.
func (r *PropertyRepository) UpdateSyncStatus(ctx context.Context, id string, status string, syncError *string) error {
	now := r.Now()
	var lastSyncAt *time.Time
	if status == models.SyncStatusSuccess {
		lastSyncAt = &now
	}

	_, err := r.DB().ExecContext(ctx, `
		UPDATE properties SET
			sync_status = ?, sync_error = ?, last_sync_at = COALESCE(?, last_sync_at), updated_at = ?
		WHERE id = ?
	`, status, syncError, lastSyncAt, now, id)
	if err != nil {
		return fmt.Errorf("updating sync status: %w", err)
	}

	return nil
}

func (r *PropertyRepository) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating property: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("property %v: %w", args[len(args)-1], ErrNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProperty(row rowScanner) (*models.Property, error) {
	p := &models.Property{}
	err := row.Scan(
		&p.ID, &p.Name, &p.CalendarID, &p.ChannelID, &p.ChannelResourceID, &p.ChannelExpiration,
		&p.NextSyncToken, &p.Timezone, &p.LastSyncAt, &p.SyncStatus, &p.SyncError,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func scanProperties(rows *sql.Rows) ([]models.Property, error) {
	var properties []models.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning property: %w", err)
		}
		properties = append(properties, *p)
	}
	return properties, rows.Err()
}
