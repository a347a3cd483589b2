// Package session owns the dialog session lifecycle and the JSON codec
// between in-memory loop state and the persisted session row.
package session

import (
	"time"

	"github.com/easeaico/project-echo/internal/types"
)

// Event session statuses carried in the dialog row and state blob.
const (
	StatusInProgress = "进行中"
	StatusSuccess    = types.EventStatusSuccess
	StatusFailure    = types.EventStatusFailure
)

// DailyState is the daily-chat loop state blob.
type DailyState struct {
	ConversationCounter int                   `json:"conversation_counter"`
	PendingMessages     []types.DialogMessage `json:"pending_messages"`
	WaitingForInput     bool                  `json:"waiting_for_input"`
	LastActivity        string                `json:"last_activity"`
	LastStatus          string                `json:"last_status"`
	Initialized         bool                  `json:"initialized"`
	Name                string                `json:"name"`
	ParsedSchedule      []types.ScheduleSlot  `json:"parsed_schedule"`
	ConversationHistory []types.DialogMessage `json:"conversation_history"`
	ExitRequested       bool                  `json:"exit_requested"`
	// LastActiveAt feeds the idle-timeout policy for sessions parked in
	// waiting_for_input.
	LastActiveAt time.Time `json:"last_active_at"`
}

// NewDailyState returns the fresh-session shape.
func NewDailyState() *DailyState {
	return &DailyState{
		WaitingForInput: true,
		LastActivity:    types.ActivityIdle,
		LastStatus:      types.ActivityIdle,
		LastActiveAt:    time.Now(),
	}
}

// EventState is the event loop state blob. The tree snapshot is the
// session's working copy; the authoritative tree stays in the store.
type EventState struct {
	CurrentEventID string                `json:"current_event_id"`
	EventTree      *types.EventChain     `json:"event_tree"`
	DialogHistory  []types.DialogMessage `json:"dialog_history"`
	EventStatus    string                `json:"event_status"`
}

// NewEventState returns a fresh event session bound to one event id.
func NewEventState(eventID string, tree *types.EventChain) *EventState {
	return &EventState{
		CurrentEventID: eventID,
		EventTree:      tree,
		EventStatus:    StatusInProgress,
	}
}
