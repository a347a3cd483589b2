package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/project-echo/internal/types"
)

// globalEventModel maps to the global_events table. The auto-increment id
// doubles as the monotonic counter behind the 6-digit public event ids.
type globalEventModel struct {
	ID        int64 `gorm:"primaryKey"`
	AgentID   int64
	Event     string `gorm:"column:event_json"`
	CreatedAt time.Time
}

func (globalEventModel) TableName() string {
	return "global_events"
}

// GlobalEvent is a pollable event summary.
type GlobalEvent struct {
	GlobalEventID string   `json:"global_event_id"`
	AgentID       int64    `json:"agent_id"`
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	Tags          []string `json:"tags"`
	Time          string   `json:"time"`
	Location      string   `json:"location"`
}

// GlobalEventRepo accesses the global event feed.
type GlobalEventRepo struct {
	db *gorm.DB
}

// NewGlobalEventRepo returns a GlobalEventRepo.
func NewGlobalEventRepo(db *gorm.DB) *GlobalEventRepo {
	return &GlobalEventRepo{db: db}
}

// Register appends an event to the feed and returns its 6-digit id.
func (r *GlobalEventRepo) Register(ctx context.Context, agentID int64, event *types.Event) (string, error) {
	if event == nil {
		return "", fmt.Errorf("event cannot be nil")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to encode event: %w", err)
	}
	record := globalEventModel{
		AgentID: agentID,
		Event:   string(data),
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", fmt.Errorf("failed to register global event: %w", err)
	}
	return fmt.Sprintf("%06d", record.ID), nil
}

// ListAfter returns up to limit events newer than the cursor, oldest first.
// hasMore is derived from a full page; an empty cursor starts from zero.
func (r *GlobalEventRepo) ListAfter(ctx context.Context, cursor string, limit int) ([]GlobalEvent, bool, error) {
	var after int64
	if cursor != "" {
		parsed, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, false, fmt.Errorf("invalid event cursor %q: %w", cursor, err)
		}
		after = parsed
	}
	if limit <= 0 {
		limit = 20
	}

	var records []globalEventModel
	if err := r.db.WithContext(ctx).
		Where("id > ?", after).
		Order("id ASC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, false, fmt.Errorf("failed to query global events: %w", err)
	}

	results := make([]GlobalEvent, 0, len(records))
	for _, record := range records {
		var event types.Event
		if err := json.Unmarshal([]byte(record.Event), &event); err != nil {
			return nil, false, fmt.Errorf("failed to decode global event %d: %w", record.ID, err)
		}
		results = append(results, GlobalEvent{
			GlobalEventID: fmt.Sprintf("%06d", record.ID),
			AgentID:       record.AgentID,
			Name:          event.Name,
			Type:          event.Type,
			Tags:          event.Tags,
			Time:          event.Time,
			Location:      event.Location,
		})
	}
	return results, len(results) == limit, nil
}
