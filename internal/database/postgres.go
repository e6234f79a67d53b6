package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"circleburo/internal/config"
	"circleburo/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// leadRecord строка таблицы leads в хостинговом Postgres.
type leadRecord struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	Name        string    `gorm:"not null"`
	Phone       string    `gorm:"not null"`
	MeetingDate time.Time `gorm:"type:date;not null;index:idx_leads_meeting,priority:1"`
	MeetingTime string    `gorm:"type:time;not null;index:idx_leads_meeting,priority:2"`
	Status      string    `gorm:"not null;default:pending;index"`
	Notes       string    `gorm:"not null;default:''"`
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
}

func (leadRecord) TableName() string {
	return "leads"
}

func recordFromLead(l *models.Lead) leadRecord {
	return leadRecord{
		ID:          l.ID,
		Name:        l.Name,
		Phone:       l.Phone,
		MeetingDate: models.DateOnly(l.MeetingDate),
		MeetingTime: l.MeetingTime,
		Status:      string(l.Status),
		Notes:       l.Notes,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}

func (r leadRecord) toLead() *models.Lead {
	return &models.Lead{
		ID:          r.ID,
		Name:        r.Name,
		Phone:       r.Phone,
		MeetingDate: models.DateOnly(r.MeetingDate),
		MeetingTime: models.TruncateSlotTime(r.MeetingTime),
		Status:      models.Status(r.Status),
		Notes:       r.Notes,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// PostgresStore хранилище заявок поверх gorm.
type PostgresStore struct {
	db     *gorm.DB
	logger *zerolog.Logger
}

// PostgresDSN собирает DSN в формате key=value.
func PostgresDSN(cfg config.PostgresConfig) string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
		cfg.Host,
		cfg.User,
		cfg.Password,
		cfg.DBName,
		cfg.Port,
		cfg.SSLMode,
	)
}

func NewPostgresStore(cfg config.PostgresConfig, logger *zerolog.Logger) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(PostgresDSN(cfg)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&leadRecord{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	if cfg.MaxConnections > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	}

	logger.Info().Str("host", cfg.Host).Str("dbname", cfg.DBName).Msg("Postgres store initialized")
	return &PostgresStore{db: db, logger: logger}, nil
}

func (s *PostgresStore) CreateLead(ctx context.Context, lead *models.Lead) error {
	if lead.Status == "" {
		lead.Status = models.StatusPending
	}
	rec := recordFromLead(lead)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to create lead: %w", err)
	}
	lead.ID = rec.ID
	lead.CreatedAt = rec.CreatedAt
	lead.UpdatedAt = rec.UpdatedAt
	return nil
}

func (s *PostgresStore) GetLead(ctx context.Context, id int64) (*models.Lead, error) {
	var rec leadRecord
	if err := s.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("failed to get lead %d: %w", id, err)
	}
	return rec.toLead(), nil
}

func (s *PostgresStore) GetLeadStatus(ctx context.Context, id int64) (models.Status, error) {
	var rec leadRecord
	err := s.db.WithContext(ctx).Select("status").Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrLeadNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get lead status: %w", err)
	}
	return models.Status(rec.Status), nil
}

func (s *PostgresStore) ListLeads(ctx context.Context) ([]*models.Lead, error) {
	var recs []leadRecord
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	leads := make([]*models.Lead, 0, len(recs))
	for _, r := range recs {
		leads = append(leads, r.toLead())
	}
	return leads, nil
}

func (s *PostgresStore) GetBookedSlots(ctx context.Context, date time.Time) ([]models.BookedSlot, error) {
	var recs []leadRecord
	err := s.db.WithContext(ctx).
		Select("id", "name", "meeting_time", "status").
		Where("meeting_date = ? AND status IN ?", models.DateOnly(date).Format(models.DateLayout), activeStatusNames()).
		Order("meeting_time ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get booked slots: %w", err)
	}

	slots := make([]models.BookedSlot, 0, len(recs))
	for _, r := range recs {
		slots = append(slots, models.BookedSlot{
			ID:     r.ID,
			Name:   r.Name,
			Time:   models.TruncateSlotTime(r.MeetingTime),
			Status: models.Status(r.Status),
		})
	}
	return slots, nil
}

func (s *PostgresStore) CountActiveBookings(ctx context.Context, date time.Time, meetingTime string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&leadRecord{}).
		Where("meeting_date = ? AND meeting_time = ? AND status IN ?",
			models.DateOnly(date).Format(models.DateLayout), models.TruncateSlotTime(meetingTime), activeStatusNames()).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return int(count), nil
}

// UpdateLeadStatus меняет статус, только если в строке всё ещё from.
func (s *PostgresStore) UpdateLeadStatus(ctx context.Context, id int64, from, to models.Status, updatedAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&leadRecord{}).
		Where("id = ? AND status = ?", id, string(from)).
		UpdateColumns(map[string]interface{}{"status": string(to), "updated_at": updatedAt})
	if res.Error != nil {
		return fmt.Errorf("failed to update lead %d: %w", id, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := s.GetLeadStatus(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("lead %d: %w", id, ErrStatusChanged)
}

func (s *PostgresStore) UpdateLeadNotes(ctx context.Context, id int64, notes string, updatedAt time.Time) error {
	return s.updateColumns(ctx, id, map[string]interface{}{"notes": notes, "updated_at": updatedAt})
}

func (s *PostgresStore) updateColumns(ctx context.Context, id int64, values map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&leadRecord{}).Where("id = ?", id).UpdateColumns(values)
	if res.Error != nil {
		return fmt.Errorf("failed to update lead %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("lead %d: %w", id, ErrLeadNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteLead(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&leadRecord{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete lead: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("lead %d: %w", id, ErrLeadNotFound)
	}
	return nil
}

func (s *PostgresStore) PingContext(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func activeStatusNames() []string {
	return []string{string(models.StatusPending), string(models.StatusConfirmed)}
}
