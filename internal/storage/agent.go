package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/project-echo/internal/types"
)

// agentModel maps to the agents table.
type agentModel struct {
	ID        int64 `gorm:"primaryKey"`
	UserID    int64
	Name      string
	Profile   string `gorm:"column:profile_json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (agentModel) TableName() string {
	return "agents"
}

// AgentRepo accesses agent persona data.
type AgentRepo struct {
	db *gorm.DB
}

// NewAgentRepo returns an AgentRepo.
func NewAgentRepo(db *gorm.DB) *AgentRepo {
	return &AgentRepo{db: db}
}

func (r *AgentRepo) Create(ctx context.Context, userID int64, profile *types.AgentProfile) (*types.AgentRecord, error) {
	if profile == nil {
		return nil, fmt.Errorf("profile cannot be nil")
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("failed to encode agent profile: %w", err)
	}
	record := agentModel{
		UserID:  userID,
		Name:    profile.Name,
		Profile: string(data),
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to insert agent: %w", err)
	}
	return agentFromModel(record)
}

func (r *AgentRepo) GetByID(ctx context.Context, agentID int64) (*types.AgentRecord, error) {
	var model agentModel
	if err := r.db.WithContext(ctx).First(&model, agentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("agent %d: %w", agentID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get agent by id: %w", err)
	}
	return agentFromModel(model)
}

func (r *AgentRepo) UpdateProfile(ctx context.Context, agentID int64, profile *types.AgentProfile) error {
	if profile == nil {
		return fmt.Errorf("profile cannot be nil")
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode agent profile: %w", err)
	}
	if err := r.db.WithContext(ctx).
		Model(&agentModel{}).
		Where("id = ?", agentID).
		Updates(map[string]any{
			"name":         profile.Name,
			"profile_json": string(data),
		}).Error; err != nil {
		return fmt.Errorf("failed to update agent profile: %w", err)
	}
	return nil
}

func agentFromModel(model agentModel) (*types.AgentRecord, error) {
	var profile types.AgentProfile
	if model.Profile != "" {
		if err := json.Unmarshal([]byte(model.Profile), &profile); err != nil {
			return nil, fmt.Errorf("failed to decode agent profile: %w", err)
		}
	}
	return &types.AgentRecord{
		AgentID:   model.ID,
		UserID:    model.UserID,
		Name:      model.Name,
		Profile:   profile,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}, nil
}
