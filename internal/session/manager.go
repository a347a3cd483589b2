package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/easeaico/project-echo/internal/storage"
)

// Repo is the session-row persistence the manager needs.
type Repo interface {
	Create(ctx context.Context, record *storage.DialogRecord) error
	Get(ctx context.Context, sessionID string) (*storage.DialogRecord, error)
	Save(ctx context.Context, record *storage.DialogRecord) error
}

// Manager creates, loads and saves session rows around the state codec.
type Manager struct {
	dialogs Repo
}

// NewManager returns a Manager.
func NewManager(dialogs Repo) *Manager {
	return &Manager{dialogs: dialogs}
}

// CreateDaily inserts a fresh daily session row and returns it with its
// initial state.
func (m *Manager) CreateDaily(ctx context.Context, userID, agentID int64) (*storage.DialogRecord, *DailyState, error) {
	state := NewDailyState()
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode daily state: %w", err)
	}
	record := &storage.DialogRecord{
		SessionID: uuid.NewString(),
		UserID:    userID,
		AgentID:   agentID,
		Status:    storage.SessionActive,
		Payload:   string(payload),
	}
	if err := m.dialogs.Create(ctx, record); err != nil {
		return nil, nil, err
	}
	return record, state, nil
}

// LoadDaily fetches a session row and decodes its state. A missing row
// yields a nil record with a fresh state; callers treat that as a new
// session, not an error.
func (m *Manager) LoadDaily(ctx context.Context, sessionID string) (*storage.DialogRecord, *DailyState, error) {
	record, err := m.dialogs.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if record == nil {
		return nil, NewDailyState(), nil
	}
	var state DailyState
	if err := json.Unmarshal([]byte(record.Payload), &state); err != nil {
		return nil, nil, fmt.Errorf("failed to decode daily state: %w", err)
	}
	return record, &state, nil
}

// SaveDaily writes the state back to the row, ending it when asked.
func (m *Manager) SaveDaily(ctx context.Context, record *storage.DialogRecord, state *DailyState, ended bool) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode daily state: %w", err)
	}
	record.Payload = string(payload)
	if ended {
		record.Status = storage.SessionEnded
		now := time.Now()
		record.EndTime = &now
	}
	return m.dialogs.Save(ctx, record)
}

// CreateEvent inserts a fresh event session row bound to one event id.
func (m *Manager) CreateEvent(ctx context.Context, userID, agentID int64, state *EventState) (*storage.DialogRecord, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event state: %w", err)
	}
	record := &storage.DialogRecord{
		SessionID:      uuid.NewString(),
		UserID:         userID,
		AgentID:        agentID,
		Status:         storage.SessionActive,
		CurrentEventID: state.CurrentEventID,
		EventStatus:    state.EventStatus,
		Payload:        string(payload),
	}
	if err := m.dialogs.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// LoadEvent fetches an event session row and decodes its state. A missing
// row yields nils so the caller can start a fresh session.
func (m *Manager) LoadEvent(ctx context.Context, sessionID string) (*storage.DialogRecord, *EventState, error) {
	record, err := m.dialogs.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if record == nil {
		return nil, nil, nil
	}
	var state EventState
	if err := json.Unmarshal([]byte(record.Payload), &state); err != nil {
		return nil, nil, fmt.Errorf("failed to decode event state: %w", err)
	}
	return record, &state, nil
}

// SaveEvent writes the event state back, mirroring the cursor fields onto
// the row and stamping end time when the status turned terminal.
func (m *Manager) SaveEvent(ctx context.Context, record *storage.DialogRecord, state *EventState, ended bool) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode event state: %w", err)
	}
	record.Payload = string(payload)
	record.CurrentEventID = state.CurrentEventID
	record.EventStatus = state.EventStatus
	if ended {
		record.Status = storage.SessionEnded
		now := time.Now()
		record.EndTime = &now
	}
	return m.dialogs.Save(ctx, record)
}
