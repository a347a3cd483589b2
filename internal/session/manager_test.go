package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/easeaico/project-echo/internal/storage"
	"github.com/easeaico/project-echo/internal/types"
)

type fakeDialogRepo struct {
	rows map[string]storage.DialogRecord
}

func newFakeDialogRepo() *fakeDialogRepo {
	return &fakeDialogRepo{rows: make(map[string]storage.DialogRecord)}
}

func (f *fakeDialogRepo) Create(ctx context.Context, record *storage.DialogRecord) error {
	f.rows[record.SessionID] = *record
	return nil
}

func (f *fakeDialogRepo) Get(ctx context.Context, sessionID string) (*storage.DialogRecord, error) {
	row, ok := f.rows[sessionID]
	if !ok {
		return nil, nil
	}
	copied := row
	return &copied, nil
}

func (f *fakeDialogRepo) Save(ctx context.Context, record *storage.DialogRecord) error {
	current, ok := f.rows[record.SessionID]
	if !ok || current.Revision != record.Revision {
		return storage.ErrConflict
	}
	record.Revision++
	f.rows[record.SessionID] = *record
	return nil
}

func TestDailySessionRoundTrip(t *testing.T) {
	repo := newFakeDialogRepo()
	manager := NewManager(repo)
	ctx := context.Background()

	record, state, err := manager.CreateDaily(ctx, 7, 42)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if record.SessionID == "" {
		t.Fatalf("expected a generated session id")
	}

	state.ConversationCounter = 3
	state.Initialized = true
	state.Name = "小雨"
	state.ConversationHistory = append(state.ConversationHistory, types.DialogMessage{
		Role:      types.RoleUser,
		Content:   "你好",
		IssueID:   "daily",
		Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	})
	if err := manager.SaveDaily(ctx, record, state, false); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	loadedRecord, loaded, err := manager.LoadDaily(ctx, record.SessionID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if loadedRecord == nil {
		t.Fatalf("expected an existing row")
	}
	if loaded.ConversationCounter != 3 || !loaded.Initialized || loaded.Name != "小雨" {
		t.Fatalf("state did not survive the round trip: %+v", loaded)
	}
	if len(loaded.ConversationHistory) != 1 || loaded.ConversationHistory[0].Content != "你好" {
		t.Fatalf("history did not survive the round trip: %+v", loaded.ConversationHistory)
	}

	// serialize -> deserialize -> serialize must be stable
	first, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	second, err := json.Marshal(loaded)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("codec is not stable:\n%s\n%s", first, second)
	}
}

func TestLoadDailyMissingSession(t *testing.T) {
	manager := NewManager(newFakeDialogRepo())

	record, state, err := manager.LoadDaily(context.Background(), "nonexistent-id")
	if err != nil {
		t.Fatalf("expected no error for a missing session, got %v", err)
	}
	if record != nil {
		t.Fatalf("expected nil record for a missing session")
	}
	if state == nil || len(state.ConversationHistory) != 0 {
		t.Fatalf("expected a fresh empty state, got %+v", state)
	}
	if !state.WaitingForInput {
		t.Fatalf("fresh state should wait for input")
	}
}

func TestEventSessionEndStampsRow(t *testing.T) {
	repo := newFakeDialogRepo()
	manager := NewManager(repo)
	ctx := context.Background()

	tree := &types.EventChain{
		Version: "1.0",
		Stages: []types.Stage{{
			Name:   "初遇",
			Events: []types.Event{{EventID: "E001", Name: "相遇", Status: types.EventStatusPending}},
		}},
	}
	state := NewEventState("E001", tree)
	record, err := manager.CreateEvent(ctx, 7, 42, state)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if record.CurrentEventID != "E001" || record.EventStatus != StatusInProgress {
		t.Fatalf("row cursor fields not seeded: %+v", record)
	}

	state.EventStatus = StatusSuccess
	state.CurrentEventID = "E002"
	if err := manager.SaveEvent(ctx, record, state, true); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	saved, _, err := manager.LoadEvent(ctx, record.SessionID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if saved.Status != storage.SessionEnded {
		t.Fatalf("expected ended status, got %s", saved.Status)
	}
	if saved.EndTime == nil {
		t.Fatalf("expected an end timestamp")
	}
	if saved.CurrentEventID != "E002" || saved.EventStatus != StatusSuccess {
		t.Fatalf("cursor fields not mirrored: %+v", saved)
	}
}

func TestSaveDetectsConcurrentModification(t *testing.T) {
	repo := newFakeDialogRepo()
	manager := NewManager(repo)
	ctx := context.Background()

	record, state, err := manager.CreateDaily(ctx, 1, 1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	stale := *record
	if err := manager.SaveDaily(ctx, record, state, false); err != nil {
		t.Fatalf("first save should win: %v", err)
	}
	if err := manager.SaveDaily(ctx, &stale, state, false); err == nil {
		t.Fatalf("stale save should conflict")
	}
}
