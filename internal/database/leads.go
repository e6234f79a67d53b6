package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"circleburo/internal/models"
)

const leadColumns = `id, name, phone, meeting_date, meeting_time, status, notes, created_at, updated_at`

var activeStatuses = []interface{}{models.StatusPending, models.StatusConfirmed}

func (db *DB) CreateLead(ctx context.Context, lead *models.Lead) error {
	now := time.Now()
	if lead.Status == "" {
		lead.Status = models.StatusPending
	}

	result, err := db.ExecContext(ctx, `INSERT INTO leads (
				name, phone, meeting_date, meeting_time, status, notes, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.Name,
		lead.Phone,
		lead.DateKey(),
		lead.MeetingTime,
		lead.Status,
		lead.Notes,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create lead: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	lead.ID = id
	lead.CreatedAt = now
	lead.UpdatedAt = now
	return nil
}

func (db *DB) GetLead(ctx context.Context, id int64) (*models.Lead, error) {
	row := db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id)
	lead, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lead %d: %w", id, err)
	}
	return lead, nil
}

// GetLeadStatus читает только колонку status, её опрашивает поллер.
func (db *DB) GetLeadStatus(ctx context.Context, id int64) (models.Status, error) {
	var status string
	err := db.QueryRowContext(ctx, `SELECT status FROM leads WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrLeadNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get lead status: %w", err)
	}
	return models.Status(status), nil
}

// ListLeads все заявки, свежие первыми.
func (db *DB) ListLeads(ctx context.Context) ([]*models.Lead, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+leadColumns+` FROM leads ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	defer rows.Close()

	leads := make([]*models.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

// GetBookedSlots активные записи на день, по времени.
func (db *DB) GetBookedSlots(ctx context.Context, date time.Time) ([]models.BookedSlot, error) {
	key := models.DateOnly(date).Format(models.DateLayout)
	rows, err := db.QueryContext(ctx, `SELECT id, name, meeting_time, status FROM leads
              WHERE meeting_date = ? AND status IN (?, ?) ORDER BY meeting_time ASC`,
		append([]interface{}{key}, activeStatuses...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to get booked slots: %w", err)
	}
	defer rows.Close()

	slots := make([]models.BookedSlot, 0)
	for rows.Next() {
		var s models.BookedSlot
		var status string
		if err := rows.Scan(&s.ID, &s.Name, &s.Time, &status); err != nil {
			return nil, fmt.Errorf("failed to scan booked slot: %w", err)
		}
		s.Time = models.TruncateSlotTime(s.Time)
		s.Status = models.Status(status)
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// CountActiveBookings число активных записей на точную пару дата/время.
func (db *DB) CountActiveBookings(ctx context.Context, date time.Time, meetingTime string) (int, error) {
	key := models.DateOnly(date).Format(models.DateLayout)
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads
              WHERE meeting_date = ? AND meeting_time = ? AND status IN (?, ?)`,
		key, models.TruncateSlotTime(meetingTime), models.StatusPending, models.StatusConfirmed,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

// UpdateLeadStatus меняет статус, только если в строке всё ещё from.
func (db *DB) UpdateLeadStatus(ctx context.Context, id int64, from, to models.Status, updatedAt time.Time) error {
	result, err := db.ExecContext(ctx, `UPDATE leads SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, updatedAt, id, from)
	if err != nil {
		return fmt.Errorf("failed to update lead status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}
	if _, err := db.GetLeadStatus(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("lead %d: %w", id, ErrStatusChanged)
}

func (db *DB) UpdateLeadNotes(ctx context.Context, id int64, notes string, updatedAt time.Time) error {
	result, err := db.ExecContext(ctx, `UPDATE leads SET notes = ?, updated_at = ? WHERE id = ?`, notes, updatedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update lead notes: %w", err)
	}
	return expectAffected(result, id)
}

func (db *DB) DeleteLead(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM leads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete lead: %w", err)
	}
	return expectAffected(result, id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLead(row rowScanner) (*models.Lead, error) {
	var lead models.Lead
	var dateStr, status string
	err := row.Scan(&lead.ID, &lead.Name, &lead.Phone, &dateStr, &lead.MeetingTime,
		&status, &lead.Notes, &lead.CreatedAt, &lead.UpdatedAt)
	if err != nil {
		return nil, err
	}

	lead.MeetingDate, err = models.ParseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse meeting date %s: %w", dateStr, err)
	}
	lead.MeetingTime = models.TruncateSlotTime(lead.MeetingTime)
	lead.Status = models.Status(status)
	return &lead, nil
}

func expectAffected(result sql.Result, id int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("lead %d: %w", id, ErrLeadNotFound)
	}
	return nil
}
