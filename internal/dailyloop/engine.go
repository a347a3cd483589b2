// Package dailyloop advances one daily-chat session per call: a single-step
// state machine over the session state blob, with at most one LLM call per
// step.
package dailyloop

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/easeaico/project-echo/internal/evaluator"
	"github.com/easeaico/project-echo/internal/prompt"
	"github.com/easeaico/project-echo/internal/schedule"
	"github.com/easeaico/project-echo/internal/session"
	"github.com/easeaico/project-echo/internal/types"
)

// exitPhrases end the session regardless of current activity.
var exitPhrases = map[string]bool{
	"exit": true,
	"退出":   true,
	"结束":   true,
	"bye":  true,
}

// Completer is the LLM call the engine needs.
type Completer interface {
	Complete(ctx context.Context, msgs []types.ChatMessage, opts *types.CompleteOptions) (string, error)
}

// AgentStore loads agent personas.
type AgentStore interface {
	GetByID(ctx context.Context, agentID int64) (*types.AgentRecord, error)
}

// GoalStore loads goal documents.
type GoalStore interface {
	Get(ctx context.Context, agentID int64) (*types.GoalSet, error)
}

// ScheduleStore loads and caches weekly schedules.
type ScheduleStore interface {
	Get(ctx context.Context, agentID int64) (types.WeeklySchedule, error)
	Upsert(ctx context.Context, agentID int64, schedule types.WeeklySchedule) error
}

// MessageStore appends to the flat durable message log.
type MessageStore interface {
	Append(ctx context.Context, sessionID string, userID, agentID int64, msg types.DialogMessage) error
}

// ScheduleGenerator builds a weekly schedule when none is cached.
type ScheduleGenerator interface {
	Generate(ctx context.Context, profile *types.AgentProfile) types.WeeklySchedule
}

// Evaluator scores the transcript when a session ends.
type Evaluator interface {
	EvaluateStateChange(ctx context.Context, history []types.DialogMessage, profile *types.AgentProfile, goals *types.GoalSet) *evaluator.StateDelta
}

// Merger writes evaluation deltas back to the store.
type Merger interface {
	Apply(ctx context.Context, agentID int64, profile *types.AgentProfile, delta *evaluator.StateDelta) error
}

// Result is the outcome of one step.
type Result struct {
	Content         string
	WaitingForInput bool
	ExitRequested   bool
	Ended           bool
}

// Engine is the daily-chat loop.
type Engine struct {
	llm       Completer
	agents    AgentStore
	goals     GoalStore
	schedules ScheduleStore
	messages  MessageStore
	scheduler ScheduleGenerator
	eval      Evaluator
	merger    Merger

	maxTurns     int
	historyLimit int
	idleTimeout  time.Duration
	now          func() time.Time
}

// Config bundles the engine dependencies.
type Config struct {
	LLM       Completer
	Agents    AgentStore
	Goals     GoalStore
	Schedules ScheduleStore
	Messages  MessageStore
	Scheduler ScheduleGenerator
	Evaluator Evaluator
	Merger    Merger

	MaxTurns     int
	HistoryLimit int
	// IdleTimeout auto-ends sessions parked waiting for input. Zero
	// disables the policy.
	IdleTimeout time.Duration
}

// NewEngine returns an Engine.
func NewEngine(cfg Config) *Engine {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 10
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	return &Engine{
		llm:          cfg.LLM,
		agents:       cfg.Agents,
		goals:        cfg.Goals,
		schedules:    cfg.Schedules,
		messages:     cfg.Messages,
		scheduler:    cfg.Scheduler,
		eval:         cfg.Evaluator,
		merger:       cfg.Merger,
		maxTurns:     cfg.MaxTurns,
		historyLimit: cfg.HistoryLimit,
		idleTimeout:  cfg.IdleTimeout,
		now:          time.Now,
	}
}

// Step advances the session by one user turn, mutating state in place. The
// caller persists the state afterwards, ending the row when Result.Ended.
func (e *Engine) Step(ctx context.Context, sessionID string, userID, agentID int64, state *session.DailyState, input string) (*Result, error) {
	if state.ExitRequested {
		return &Result{ExitRequested: true, Ended: true}, nil
	}

	agent, err := e.agents.GetByID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	profile := &agent.Profile
	goals, err := e.goals.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}

	if !state.Initialized {
		if err := e.initialize(ctx, agentID, profile, state); err != nil {
			return nil, err
		}
	}

	now := e.now()
	activity, status := schedule.CurrentStatus(state.ParsedSchedule, now)
	state.LastActivity = activity
	state.LastStatus = status

	if e.expired(state, now) {
		slog.Info("daily session idle timeout, auto-ending", "session_id", sessionID)
		return e.finish(ctx, sessionID, userID, agentID, profile, goals, state), nil
	}

	input = strings.TrimSpace(input)
	if state.WaitingForInput && input == "" {
		return &Result{WaitingForInput: true}, nil
	}
	state.WaitingForInput = false

	e.drainPending(ctx, sessionID, userID, agentID, state)

	if exitPhrases[strings.ToLower(input)] {
		return e.finish(ctx, sessionID, userID, agentID, profile, goals, state), nil
	}

	systemPrompt, err := prompt.BuildDaily(prompt.DailyContext{
		Profile:  profile,
		Now:      now,
		Activity: activity,
		Status:   status,
		Slots:    state.ParsedSchedule,
	})
	if err != nil {
		return nil, err
	}

	userMsg := types.DialogMessage{
		Role:      types.RoleUser,
		Content:   input,
		IssueID:   uuid.NewString(),
		Timestamp: now,
		Activity:  activity,
		Status:    status,
	}
	e.appendMessage(ctx, sessionID, userID, agentID, state, userMsg)
	state.ConversationHistory = append(state.ConversationHistory, userMsg)

	msgs := append(
		[]types.ChatMessage{{Role: types.RoleSystem, Content: systemPrompt}},
		types.Chat(e.recentHistory(state))...,
	)
	reply, err := e.llm.Complete(ctx, msgs, nil)
	if err != nil {
		slog.Warn("daily turn llm call failed, caller may retry", "session_id", sessionID, "error", err.Error())
		state.WaitingForInput = true
		state.LastActiveAt = now
		return &Result{WaitingForInput: true}, nil
	}

	assistantMsg := types.DialogMessage{
		Role:      types.RoleAssistant,
		Content:   reply,
		IssueID:   userMsg.IssueID,
		Timestamp: e.now(),
		Activity:  activity,
		Status:    status,
	}
	e.appendMessage(ctx, sessionID, userID, agentID, state, assistantMsg)
	state.ConversationHistory = append(state.ConversationHistory, assistantMsg)

	state.ConversationCounter++
	state.LastActiveAt = e.now()

	waiting := state.ConversationCounter < e.maxTurns
	if !waiting {
		slog.Info("daily session reached turn cap", "session_id", sessionID, "turns", state.ConversationCounter)
	}
	state.WaitingForInput = waiting

	return &Result{Content: reply, WaitingForInput: waiting}, nil
}

// initialize runs at most once per session: resolve the weekly schedule
// (generating and caching one if needed) and pin today's slots into state.
func (e *Engine) initialize(ctx context.Context, agentID int64, profile *types.AgentProfile, state *session.DailyState) error {
	weekly, err := e.schedules.Get(ctx, agentID)
	if err != nil {
		return err
	}
	if weekly == nil {
		weekly = e.scheduler.Generate(ctx, profile)
		if err := e.schedules.Upsert(ctx, agentID, weekly); err != nil {
			slog.Warn("failed to cache generated schedule", "agent_id", agentID, "error", err.Error())
		}
	}

	state.Name = profile.Name
	state.ParsedSchedule = schedule.SlotsFor(weekly, e.now())
	state.Initialized = true
	return nil
}

// finish is the only path that mutates cross-entity state: evaluate the
// transcript, merge the deltas, flush unsaved messages, end the session.
func (e *Engine) finish(ctx context.Context, sessionID string, userID, agentID int64, profile *types.AgentProfile, goals *types.GoalSet, state *session.DailyState) *Result {
	state.ExitRequested = true
	state.WaitingForInput = false

	delta := e.eval.EvaluateStateChange(ctx, state.ConversationHistory, profile, goals)
	if err := e.merger.Apply(ctx, agentID, profile, delta); err != nil {
		slog.Error("failed to merge state delta", "agent_id", agentID, "error", err.Error())
	}

	e.drainPending(ctx, sessionID, userID, agentID, state)
	return &Result{ExitRequested: true, Ended: true}
}

func (e *Engine) expired(state *session.DailyState, now time.Time) bool {
	return e.idleTimeout > 0 &&
		state.WaitingForInput &&
		!state.LastActiveAt.IsZero() &&
		now.Sub(state.LastActiveAt) > e.idleTimeout
}

// drainPending retries inserts that failed on earlier calls, keeping order.
// A failure stops the drain so nothing is dropped.
func (e *Engine) drainPending(ctx context.Context, sessionID string, userID, agentID int64, state *session.DailyState) {
	for len(state.PendingMessages) > 0 {
		msg := state.PendingMessages[0]
		if err := e.messages.Append(ctx, sessionID, userID, agentID, msg); err != nil {
			slog.Warn("pending message retry failed", "session_id", sessionID, "error", err.Error())
			return
		}
		state.PendingMessages = state.PendingMessages[1:]
	}
}

// appendMessage persists to the flat log, queueing on failure instead of
// dropping.
func (e *Engine) appendMessage(ctx context.Context, sessionID string, userID, agentID int64, state *session.DailyState, msg types.DialogMessage) {
	if err := e.messages.Append(ctx, sessionID, userID, agentID, msg); err != nil {
		slog.Warn("message persist failed, queueing for retry", "session_id", sessionID, "role", msg.Role, "error", err.Error())
		state.PendingMessages = append(state.PendingMessages, msg)
	}
}

func (e *Engine) recentHistory(state *session.DailyState) []types.DialogMessage {
	history := state.ConversationHistory
	if len(history) > e.historyLimit {
		history = history[len(history)-e.historyLimit:]
	}
	return history
}
