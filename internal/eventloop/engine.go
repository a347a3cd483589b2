// Package eventloop advances one event-dialogue session per call. The
// session carries a snapshot of the event tree; status writes always go
// through the store so the persisted tree stays authoritative.
package eventloop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/easeaico/project-echo/internal/prompt"
	"github.com/easeaico/project-echo/internal/session"
	"github.com/easeaico/project-echo/internal/types"
	"github.com/easeaico/project-echo/internal/utils"
)

const (
	historySummaryLen  = 5
	summarySnippetLen  = 100
	tempEventIDPattern = "200601021504"
)

var integerRe = regexp.MustCompile(`-?\d+`)

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

// ChainStore reads and writes the authoritative event tree.
type ChainStore interface {
	Get(ctx context.Context, agentID int64) (*types.EventChain, error)
	Upsert(ctx context.Context, agentID int64, chain *types.EventChain) error
	UpdateEventStatus(ctx context.Context, agentID int64, eventID, status string) error
}

// MessageStore appends to the flat durable message log.
type MessageStore interface {
	Append(ctx context.Context, sessionID string, userID, agentID int64, msg types.DialogMessage) error
}

// Result is the outcome of one event-dialogue turn.
type Result struct {
	Content string
	// IssueID is the event id the client should open next: the current
	// event while it runs, the selected follow-up once it succeeds.
	IssueID     string
	EventStatus string
	Ended       bool
}

// Engine is the event-dialogue loop.
type Engine struct {
	llm      Completer
	agents   AgentStore
	goals    GoalStore
	chains   ChainStore
	messages MessageStore

	now func() time.Time
}

// Config bundles the engine dependencies.
type Config struct {
	LLM      Completer
	Agents   AgentStore
	Goals    GoalStore
	Chains   ChainStore
	Messages MessageStore
}

// NewEngine returns an Engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		llm:      cfg.LLM,
		agents:   cfg.Agents,
		goals:    cfg.Goals,
		chains:   cfg.Chains,
		messages: cfg.Messages,
		now:      time.Now,
	}
}

// Step advances the event session by one user turn, mutating state in
// place. The caller persists the state afterwards, ending the row when
// Result.Ended.
func (e *Engine) Step(ctx context.Context, sessionID string, userID, agentID int64, state *session.EventState, input string) (*Result, error) {
	if state.EventStatus != session.StatusInProgress {
		return nil, fmt.Errorf("event session %s already ended with status %s", sessionID, state.EventStatus)
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("input is empty")
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

	event := state.EventTree.FindEvent(state.CurrentEventID)
	if event == nil {
		return nil, fmt.Errorf("event %s not found in session tree", state.CurrentEventID)
	}

	if !hasSystemMessage(state.DialogHistory) {
		systemPrompt, err := prompt.BuildEvent(prompt.EventContext{
			Profile: profile,
			Goals:   goals,
			Event:   event,
			Scene:   DescribeScene(event, e.now()),
		})
		if err != nil {
			return nil, err
		}
		state.DialogHistory = append([]types.DialogMessage{{
			Role:      types.RoleSystem,
			Content:   systemPrompt,
			IssueID:   state.CurrentEventID,
			Timestamp: e.now(),
		}}, state.DialogHistory...)
	}

	userMsg := types.DialogMessage{
		Role:      types.RoleUser,
		Content:   input,
		IssueID:   state.CurrentEventID,
		Timestamp: e.now(),
	}
	state.DialogHistory = append(state.DialogHistory, userMsg)
	e.persistMessage(ctx, sessionID, userID, agentID, userMsg)

	reply, err := e.llm.Complete(ctx, types.Chat(state.DialogHistory), nil)
	if err != nil {
		slog.Warn("event turn llm call failed", "session_id", sessionID, "event_id", state.CurrentEventID, "error", err.Error())
		return &Result{
			Content:     fmt.Sprintf("生成回复失败：%v", err),
			IssueID:     state.CurrentEventID,
			EventStatus: state.EventStatus,
		}, nil
	}

	assistantMsg := types.DialogMessage{
		Role:      types.RoleAssistant,
		Content:   reply,
		IssueID:   state.CurrentEventID,
		Timestamp: e.now(),
	}
	state.DialogHistory = append(state.DialogHistory, assistantMsg)
	e.persistMessage(ctx, sessionID, userID, agentID, assistantMsg)

	status, ended := ClassifyOutcome(reply)
	if !ended {
		return &Result{
			Content:     reply,
			IssueID:     state.CurrentEventID,
			EventStatus: state.EventStatus,
		}, nil
	}

	state.EventStatus = status
	event.Status = status
	if err := e.chains.UpdateEventStatus(ctx, agentID, state.CurrentEventID, status); err != nil {
		slog.Error("failed to persist event status", "agent_id", agentID, "event_id", state.CurrentEventID, "error", err.Error())
	}

	nextID := state.CurrentEventID
	if status == types.EventStatusSuccess {
		nextID = e.selectNextEvent(ctx, agentID, profile, event, state)
		state.CurrentEventID = nextID
	}

	return &Result{
		Content:     reply,
		IssueID:     nextID,
		EventStatus: status,
		Ended:       true,
	}, nil
}

// selectNextEvent asks the model to pick a follow-up from the pending
// events of the authoritative tree. Any failure along the way falls back
// to the current event id so the client is never left without a cursor.
func (e *Engine) selectNextEvent(ctx context.Context, agentID int64, profile *types.AgentProfile, current *types.Event, state *session.EventState) string {
	tree, err := e.chains.Get(ctx, agentID)
	if err != nil {
		slog.Warn("failed to load event tree for selection", "agent_id", agentID, "error", err.Error())
		tree = state.EventTree
	}

	candidates := pendingCandidates(tree, current.EventID)
	if len(candidates) == 0 {
		return e.generateTempEvent(ctx, agentID, profile, tree, current.EventID)
	}

	promptText, err := render(nextEventPrompt, map[string]any{
		"AgentName":   profile.Name,
		"CurrentName": current.Name,
		"Summary":     historySummary(state.DialogHistory),
		"Candidates":  candidates,
	})
	if err != nil {
		slog.Warn("failed to render next event prompt", "error", err.Error())
		return current.EventID
	}

	reply, err := e.llm.Complete(ctx, []types.ChatMessage{{Role: types.RoleUser, Content: promptText}}, nil)
	if err != nil {
		slog.Warn("next event selection failed", "agent_id", agentID, "error", err.Error())
		return current.EventID
	}

	idx, ok := parseChoice(reply)
	if !ok || idx < 0 || idx >= len(candidates) {
		return current.EventID
	}
	return candidates[idx].EventID
}

// generateTempEvent creates a throwaway daily event when the tree has no
// pending events left, appending it to the persisted tree.
func (e *Engine) generateTempEvent(ctx context.Context, agentID int64, profile *types.AgentProfile, tree *types.EventChain, currentID string) string {
	tempID := "TEMP_" + e.now().Format(tempEventIDPattern)

	event := fallbackTempEvent(tempID, profile.Name, e.now())
	profileJSON, err := json.Marshal(profile)
	if err == nil {
		promptText, renderErr := render(tempEventPrompt, map[string]any{
			"AgentName": profile.Name,
			"Profile":   string(profileJSON),
			"EventID":   tempID,
		})
		if renderErr == nil {
			reply, llmErr := e.llm.Complete(ctx, []types.ChatMessage{{Role: types.RoleUser, Content: promptText}}, nil)
			if llmErr == nil {
				var generated types.Event
				if parseErr := utils.ExtractJSONObject(reply, &generated); parseErr == nil && generated.Name != "" {
					event = generated
				}
			} else {
				slog.Warn("temp event generation failed, using fallback", "agent_id", agentID, "error", llmErr.Error())
			}
		}
	}

	event.EventID = tempID
	event.Type = types.EventTypeTemp
	event.Status = types.EventStatusPending

	if tree == nil {
		tree = &types.EventChain{Version: "1.0"}
	}
	if len(tree.Stages) == 0 {
		tree.Stages = append(tree.Stages, types.Stage{Name: "日常插曲"})
	}
	last := len(tree.Stages) - 1
	tree.Stages[last].Events = append(tree.Stages[last].Events, event)
	if err := e.chains.Upsert(ctx, agentID, tree); err != nil {
		slog.Warn("failed to persist temp event", "agent_id", agentID, "event_id", tempID, "error", err.Error())
		return currentID
	}
	return tempID
}

func fallbackTempEvent(id, agentName string, now time.Time) types.Event {
	return types.Event{
		EventID:    id,
		Type:       types.EventTypeTemp,
		Name:       "日常闲聊",
		Time:       now.Format("2006-01-02 15:04"),
		Location:   "家中",
		Characters: []string{agentName, "用户"},
		Cause:      "一段平静的日常时光",
		Process:    "两人随意聊聊近况",
		Importance: 2,
		Urgency:    2,
		Tags:       []string{"日常", "互动"},
		Status:     types.EventStatusPending,
	}
}

// pendingCandidates lists the not-yet-played events of the tree in stage
// order, skipping the event just finished.
func pendingCandidates(tree *types.EventChain, excludeID string) []candidateView {
	if tree == nil {
		return nil
	}
	var out []candidateView
	for _, stage := range tree.Stages {
		for _, event := range stage.Events {
			if event.EventID == excludeID {
				continue
			}
			if event.Status != "" && event.Status != types.EventStatusPending {
				continue
			}
			out = append(out, candidateView{
				Index:       len(out),
				Stage:       stage.Name,
				EventID:     event.EventID,
				Name:        event.Name,
				Trigger:     triggerLine(event.TriggerConditions),
				Description: snippet(event.Name+"。"+event.Cause, summarySnippetLen),
			})
		}
	}
	return out
}

func triggerLine(conditions []string) string {
	if len(conditions) == 0 {
		return "无"
	}
	return strings.Join(conditions, "；")
}

// historySummary condenses the recent exchange for the selection prompt.
func historySummary(history []types.DialogMessage) string {
	var lines []string
	for _, msg := range history {
		if msg.Role == types.RoleSystem {
			continue
		}
		lines = append(lines, msg.Role+": "+snippet(msg.Content, summarySnippetLen))
	}
	if len(lines) > historySummaryLen {
		lines = lines[len(lines)-historySummaryLen:]
	}
	if len(lines) == 0 {
		return "（无对话记录）"
	}
	return strings.Join(lines, "\n")
}

func snippet(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func parseChoice(reply string) (int, bool) {
	match := integerRe.FindString(reply)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return n, true
}

func hasSystemMessage(history []types.DialogMessage) bool {
	for _, msg := range history {
		if msg.Role == types.RoleSystem {
			return true
		}
	}
	return false
}

func (e *Engine) persistMessage(ctx context.Context, sessionID string, userID, agentID int64, msg types.DialogMessage) {
	if err := e.messages.Append(ctx, sessionID, userID, agentID, msg); err != nil {
		slog.Warn("event message persist failed", "session_id", sessionID, "role", msg.Role, "error", err.Error())
	}
}
