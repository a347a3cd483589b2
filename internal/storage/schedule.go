package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/easeaico/project-echo/internal/types"
)

// scheduleModel maps to the schedules table.
type scheduleModel struct {
	ID        int64  `gorm:"primaryKey"`
	AgentID   int64  `gorm:"uniqueIndex"`
	Schedule  string `gorm:"column:schedule_json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (scheduleModel) TableName() string {
	return "schedules"
}

// ScheduleRepo accesses weekly schedule documents.
type ScheduleRepo struct {
	db *gorm.DB
}

// NewScheduleRepo returns a ScheduleRepo.
func NewScheduleRepo(db *gorm.DB) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

func (r *ScheduleRepo) Upsert(ctx context.Context, agentID int64, schedule types.WeeklySchedule) error {
	if schedule == nil {
		return fmt.Errorf("schedule cannot be nil")
	}
	data, err := json.Marshal(schedule)
	if err != nil {
		return fmt.Errorf("failed to encode schedule: %w", err)
	}
	record := scheduleModel{
		AgentID:  agentID,
		Schedule: string(data),
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agent_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"schedule_json", "updated_at"}),
		}).
		Create(&record).Error; err != nil {
		return fmt.Errorf("failed to upsert schedule: %w", err)
	}
	return nil
}

// Get returns the schedule for an agent, nil when none is stored.
func (r *ScheduleRepo) Get(ctx context.Context, agentID int64) (types.WeeklySchedule, error) {
	var model scheduleModel
	if err := r.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Limit(1).
		Find(&model).Error; err != nil {
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}
	if model.ID == 0 {
		return nil, nil
	}
	var schedule types.WeeklySchedule
	if err := json.Unmarshal([]byte(model.Schedule), &schedule); err != nil {
		return nil, fmt.Errorf("failed to decode schedule: %w", err)
	}
	return schedule, nil
}
