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

// eventChainModel maps to the event_chains table. The whole tree lives in
// one JSON document per agent.
type eventChainModel struct {
	ID        int64  `gorm:"primaryKey"`
	AgentID   int64  `gorm:"uniqueIndex"`
	Chain     string `gorm:"column:chain_json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (eventChainModel) TableName() string {
	return "event_chains"
}

// EventChainRepo accesses agent event trees.
type EventChainRepo struct {
	db *gorm.DB
}

// NewEventChainRepo returns an EventChainRepo.
func NewEventChainRepo(db *gorm.DB) *EventChainRepo {
	return &EventChainRepo{db: db}
}

// Upsert replaces the whole tree document for one agent.
func (r *EventChainRepo) Upsert(ctx context.Context, agentID int64, chain *types.EventChain) error {
	if chain == nil {
		return fmt.Errorf("chain cannot be nil")
	}
	data, err := json.Marshal(chain)
	if err != nil {
		return fmt.Errorf("failed to encode event chain: %w", err)
	}
	record := eventChainModel{
		AgentID: agentID,
		Chain:   string(data),
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agent_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"chain_json", "updated_at"}),
		}).
		Create(&record).Error; err != nil {
		return fmt.Errorf("failed to upsert event chain: %w", err)
	}
	return nil
}

// Get returns the tree for an agent. A missing row yields ErrNotFound so
// callers can distinguish "never generated" from an empty tree.
func (r *EventChainRepo) Get(ctx context.Context, agentID int64) (*types.EventChain, error) {
	var model eventChainModel
	if err := r.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Limit(1).
		Find(&model).Error; err != nil {
		return nil, fmt.Errorf("failed to query event chain: %w", err)
	}
	if model.ID == 0 {
		return nil, fmt.Errorf("event chain for agent %d: %w", agentID, ErrNotFound)
	}
	var chain types.EventChain
	if err := json.Unmarshal([]byte(model.Chain), &chain); err != nil {
		return nil, fmt.Errorf("failed to decode event chain: %w", err)
	}
	return &chain, nil
}

// UpdateEventStatus flips one event's status with a fresh read so a stale
// in-memory tree never clobbers stages appended by another call.
func (r *EventChainRepo) UpdateEventStatus(ctx context.Context, agentID int64, eventID, status string) error {
	chain, err := r.Get(ctx, agentID)
	if err != nil {
		return err
	}
	event := chain.FindEvent(eventID)
	if event == nil {
		return fmt.Errorf("event %s for agent %d: %w", eventID, agentID, ErrNotFound)
	}
	event.Status = status
	event.UpdatedAt = time.Now().Format(time.DateTime)
	return r.Upsert(ctx, agentID, chain)
}
