package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Dialog session statuses.
const (
	SessionActive = "active"
	SessionEnded  = "ended"
)

// DialogRecord is one session row. Payload carries the engine state blob;
// Revision guards against two requests advancing the same session at once.
type DialogRecord struct {
	SessionID      string
	UserID         int64
	AgentID        int64
	Status         string
	CurrentEventID string
	EventStatus    string
	Payload        string
	Revision       int64
	StartTime      time.Time
	EndTime        *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type dialogModel struct {
	SessionID      string `gorm:"primaryKey"`
	UserID         int64
	AgentID        int64
	Status         string
	CurrentEventID string
	EventStatus    string
	Payload        string `gorm:"column:dialog_json"`
	Revision       int64
	StartTime      time.Time
	EndTime        *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (dialogModel) TableName() string {
	return "dialog_sessions"
}

// DialogRepo accesses dialog session rows.
type DialogRepo struct {
	db *gorm.DB
}

// NewDialogRepo returns a DialogRepo.
func NewDialogRepo(db *gorm.DB) *DialogRepo {
	return &DialogRepo{db: db}
}

func (r *DialogRepo) Create(ctx context.Context, record *DialogRecord) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if record.Status == "" {
		record.Status = SessionActive
	}
	if record.StartTime.IsZero() {
		record.StartTime = time.Now()
	}
	model := dialogToModel(record)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to insert dialog session: %w", err)
	}
	return nil
}

// Get returns a session row, nil when the id is unknown.
func (r *DialogRepo) Get(ctx context.Context, sessionID string) (*DialogRecord, error) {
	var model dialogModel
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Limit(1).
		Find(&model).Error; err != nil {
		return nil, fmt.Errorf("failed to query dialog session: %w", err)
	}
	if model.SessionID == "" {
		return nil, nil
	}
	record := dialogFromModel(model)
	return &record, nil
}

// Save writes the session back, guarded by the revision the caller loaded.
// A lost race returns ErrConflict and leaves the row untouched.
func (r *DialogRepo) Save(ctx context.Context, record *DialogRecord) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	result := r.db.WithContext(ctx).
		Model(&dialogModel{}).
		Where("session_id = ?", record.SessionID).
		Where("revision = ?", record.Revision).
		Updates(map[string]any{
			"status":           record.Status,
			"current_event_id": record.CurrentEventID,
			"event_status":     record.EventStatus,
			"dialog_json":      record.Payload,
			"end_time":         record.EndTime,
			"revision":         record.Revision + 1,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to save dialog session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("session %s at revision %d: %w", record.SessionID, record.Revision, ErrConflict)
	}
	record.Revision++
	return nil
}

func dialogToModel(record *DialogRecord) dialogModel {
	return dialogModel{
		SessionID:      record.SessionID,
		UserID:         record.UserID,
		AgentID:        record.AgentID,
		Status:         record.Status,
		CurrentEventID: record.CurrentEventID,
		EventStatus:    record.EventStatus,
		Payload:        record.Payload,
		Revision:       record.Revision,
		StartTime:      record.StartTime,
		EndTime:        record.EndTime,
	}
}

func dialogFromModel(model dialogModel) DialogRecord {
	return DialogRecord{
		SessionID:      model.SessionID,
		UserID:         model.UserID,
		AgentID:        model.AgentID,
		Status:         model.Status,
		CurrentEventID: model.CurrentEventID,
		EventStatus:    model.EventStatus,
		Payload:        model.Payload,
		Revision:       model.Revision,
		StartTime:      model.StartTime,
		EndTime:        model.EndTime,
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	}
}
