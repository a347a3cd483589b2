package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/project-echo/internal/types"
)

// messageModel maps to the agent_messages table, a flat durable log kept
// independently of the session blob.
type messageModel struct {
	ID        int64 `gorm:"primaryKey"`
	SessionID string
	UserID    int64
	AgentID   int64
	Role      string
	Content   string
	IssueID   string
	Activity  string
	Status    string
	CreatedAt time.Time
}

func (messageModel) TableName() string {
	return "agent_messages"
}

// MessageRepo accesses the flat message log.
type MessageRepo struct {
	db *gorm.DB
}

// NewMessageRepo returns a MessageRepo.
func NewMessageRepo(db *gorm.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) Append(ctx context.Context, sessionID string, userID, agentID int64, msg types.DialogMessage) error {
	record := messageModel{
		SessionID: sessionID,
		UserID:    userID,
		AgentID:   agentID,
		Role:      msg.Role,
		Content:   msg.Content,
		IssueID:   msg.IssueID,
		Activity:  msg.Activity,
		Status:    msg.Status,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// ListRecent returns the newest limit messages for a session, oldest first.
func (r *MessageRepo) ListRecent(ctx context.Context, sessionID string, limit int) ([]types.DialogMessage, error) {
	var records []messageModel
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	results := make([]types.DialogMessage, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		record := records[i]
		results = append(results, types.DialogMessage{
			Role:      record.Role,
			Content:   record.Content,
			IssueID:   record.IssueID,
			Timestamp: record.CreatedAt,
			Activity:  record.Activity,
			Status:    record.Status,
		})
	}
	return results, nil
}
