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

// goalModel maps to the goals table, one document per agent.
type goalModel struct {
	ID        int64  `gorm:"primaryKey"`
	AgentID   int64  `gorm:"uniqueIndex"`
	Goals     string `gorm:"column:goals_json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (goalModel) TableName() string {
	return "goals"
}

// GoalRepo accesses agent goal documents.
type GoalRepo struct {
	db *gorm.DB
}

// NewGoalRepo returns a GoalRepo.
func NewGoalRepo(db *gorm.DB) *GoalRepo {
	return &GoalRepo{db: db}
}

// Upsert replaces the goal document for one agent, latest wins.
func (r *GoalRepo) Upsert(ctx context.Context, agentID int64, goals *types.GoalSet) error {
	if goals == nil {
		return fmt.Errorf("goals cannot be nil")
	}
	data, err := json.Marshal(goals)
	if err != nil {
		return fmt.Errorf("failed to encode goals: %w", err)
	}
	record := goalModel{
		AgentID: agentID,
		Goals:   string(data),
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agent_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"goals_json", "updated_at"}),
		}).
		Create(&record).Error; err != nil {
		return fmt.Errorf("failed to upsert goals: %w", err)
	}
	return nil
}

// Get returns the goal document for an agent, or an empty set when none
// has been stored yet.
func (r *GoalRepo) Get(ctx context.Context, agentID int64) (*types.GoalSet, error) {
	var model goalModel
	if err := r.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Limit(1).
		Find(&model).Error; err != nil {
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	if model.ID == 0 {
		return &types.GoalSet{}, nil
	}
	var goals types.GoalSet
	if err := json.Unmarshal([]byte(model.Goals), &goals); err != nil {
		return nil, fmt.Errorf("failed to decode goals: %w", err)
	}
	return &goals, nil
}
