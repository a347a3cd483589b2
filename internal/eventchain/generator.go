// Package eventchain generates the staged narrative event tree, one stage
// per call, persisting the whole document after every successful step.
package eventchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/easeaico/project-echo/internal/storage"
	"github.com/easeaico/project-echo/internal/types"
	"github.com/easeaico/project-echo/internal/utils"
)

// Stages with these 0-based indexes steer the story toward its ending.
const (
	finalStageFirst = 8
	finalStageLast  = 11
)

// Completer is the LLM call the generator needs.
type Completer interface {
	Complete(ctx context.Context, msgs []types.ChatMessage, opts *types.CompleteOptions) (string, error)
}

// ChainStore persists event trees.
type ChainStore interface {
	Get(ctx context.Context, agentID int64) (*types.EventChain, error)
	Upsert(ctx context.Context, agentID int64, chain *types.EventChain) error
}

// EventRegistry hands out the global 6-digit issue ids.
type EventRegistry interface {
	Register(ctx context.Context, agentID int64, event *types.Event) (string, error)
}

// Generator builds event trees stage by stage.
type Generator struct {
	llm        Completer
	chains     ChainStore
	registry   EventRegistry
	maxRetries int
	backoff    time.Duration
}

// Option configures a Generator.
type Option func(*Generator)

// WithRetry sets the per-step retry count and fixed backoff.
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(g *Generator) {
		g.maxRetries = maxRetries
		g.backoff = backoff
	}
}

// NewGenerator returns a Generator.
func NewGenerator(llm Completer, chains ChainStore, registry EventRegistry, opts ...Option) *Generator {
	g := &Generator{
		llm:        llm,
		chains:     chains,
		registry:   registry,
		maxRetries: 3,
		backoff:    time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateLifecycleStages plans the agent's life phases from now to a fixed
// horizon. Unparseable model output degrades to an empty list, never an
// error, so callers can retry later.
func (g *Generator) GenerateLifecycleStages(ctx context.Context, profile *types.AgentProfile, goals *types.GoalSet) []types.StageDescriptor {
	prompt, err := buildStagesPrompt(profile, goals)
	if err != nil {
		slog.Error("failed to build stages prompt", "error", err.Error())
		return nil
	}

	reply, err := g.llm.Complete(ctx, []types.ChatMessage{{Role: types.RoleUser, Content: prompt}}, nil)
	if err != nil {
		slog.Error("failed to generate lifecycle stages", "agent", profile.Name, "error", err.Error())
		return nil
	}

	var stages []types.StageDescriptor
	if err := utils.ExtractJSONArray(reply, &stages); err != nil {
		slog.Error("failed to parse lifecycle stages", "agent", profile.Name, "error", err.Error())
		return nil
	}
	for _, stage := range stages {
		if stage.Name == "" || stage.TimeRange == "" {
			slog.Error("lifecycle stage output incomplete", "agent", profile.Name)
			return nil
		}
	}
	return stages
}

// GenerateInitialEvent builds the reserved first-encounter event and upserts
// a one-stage tree. An existing tree is returned unchanged so agent creation
// can be retried without duplicating the intro.
func (g *Generator) GenerateInitialEvent(ctx context.Context, agentID int64, profile *types.AgentProfile, goals *types.GoalSet) (*types.EventChain, error) {
	existing, err := g.chains.Get(ctx, agentID)
	if err == nil {
		slog.Info("event chain already exists, skipping intro generation", "agent_id", agentID)
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	stage := types.StageDescriptor{Name: "初始阶段", TimeRange: "开始阶段"}
	if stages := g.GenerateLifecycleStages(ctx, profile, goals); len(stages) > 0 {
		stage = stages[0]
	}

	prompt, err := buildInitialEventPrompt(profile, goals, stage)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		if attempt > 0 {
			if err := g.wait(ctx); err != nil {
				return nil, err
			}
		}

		reply, err := g.llm.Complete(ctx, []types.ChatMessage{{Role: types.RoleUser, Content: prompt}}, nil)
		if err != nil {
			lastErr = err
			continue
		}

		var parsed types.Stage
		if err := utils.ExtractJSONObject(reply, &parsed); err != nil {
			lastErr = err
			continue
		}
		if len(parsed.Events) == 0 || parsed.Events[0].Name == "" {
			lastErr = fmt.Errorf("initial event output incomplete")
			continue
		}

		intro := parsed.Events[0]
		intro.EventID = types.IntroEventID
		intro.Type = types.EventTypeMain
		intro.Importance = 5
		if intro.Status == "" {
			intro.Status = types.EventStatusPending
		}
		g.registerIssueID(ctx, agentID, &intro)
		parsed.Events = []types.Event{intro}

		chain := &types.EventChain{
			Version: "1.0",
			Stages:  []types.Stage{parsed},
		}
		if err := g.chains.Upsert(ctx, agentID, chain); err != nil {
			return nil, err
		}
		slog.Info("initial event generated", "agent_id", agentID, "event", intro.Name)
		return chain, nil
	}
	return nil, fmt.Errorf("initial event generation failed after %d attempts: %w", g.maxRetries, lastErr)
}

// GenerateNextStage appends one stage of events to the agent's tree. The
// stage index is derived from how many stages the tree already holds; event
// ids continue from the persisted tree's highest id. Exhausted retries
// degrade to an empty result.
func (g *Generator) GenerateNextStage(ctx context.Context, agentID int64, profile *types.AgentProfile, goals *types.GoalSet) ([]types.Event, error) {
	chain, err := g.chains.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}

	stages := g.GenerateLifecycleStages(ctx, profile, goals)
	if len(stages) == 0 {
		slog.Warn("no lifecycle stages available", "agent_id", agentID)
		return nil, nil
	}

	stageIndex := len(chain.Stages)
	if stageIndex >= len(stages) {
		slog.Info("all stages already generated", "agent_id", agentID)
		return nil, nil
	}
	isFinal := stageIndex >= finalStageFirst && stageIndex <= finalStageLast
	descriptor := stages[stageIndex]

	var previous []types.Event
	for _, stage := range chain.Stages {
		previous = append(previous, stage.Events...)
	}
	if len(previous) > 10 {
		previous = previous[len(previous)-10:]
	}

	nextNumber := chain.MaxEventNumber() + 1
	prompt, err := buildStageEventsPrompt(profile, goals, descriptor, previous, formatEventID(nextNumber), isFinal)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		if attempt > 0 {
			if err := g.wait(ctx); err != nil {
				return nil, err
			}
		}

		reply, err := g.llm.Complete(ctx, []types.ChatMessage{{Role: types.RoleUser, Content: prompt}}, nil)
		if err != nil {
			lastErr = err
			continue
		}

		var parsed types.Stage
		if err := utils.ExtractJSONObject(reply, &parsed); err != nil {
			lastErr = err
			continue
		}
		events := validEvents(parsed.Events)
		if len(events) == 0 {
			lastErr = fmt.Errorf("stage output contains no usable events")
			continue
		}

		// the persisted tree is the single id authority, model-provided
		// ids are overwritten
		for i := range events {
			events[i].EventID = formatEventID(nextNumber + i)
			if events[i].Status == "" {
				events[i].Status = types.EventStatusPending
			}
			g.registerIssueID(ctx, agentID, &events[i])
		}

		parsed.Events = events
		if parsed.Name == "" {
			parsed.Name = descriptor.Name
		}
		if parsed.TimeRange == "" {
			parsed.TimeRange = descriptor.TimeRange
		}
		chain.Stages = append(chain.Stages, parsed)
		if err := g.chains.Upsert(ctx, agentID, chain); err != nil {
			return nil, err
		}
		slog.Info("stage events generated", "agent_id", agentID, "stage", parsed.Name, "events", len(events))
		return events, nil
	}

	slog.Error("stage generation failed after retries", "agent_id", agentID, "stage", descriptor.Name, "error", lastErr.Error())
	return nil, nil
}

func (g *Generator) registerIssueID(ctx context.Context, agentID int64, event *types.Event) {
	if g.registry == nil {
		return
	}
	issueID, err := g.registry.Register(ctx, agentID, event)
	if err != nil {
		slog.Warn("failed to register global event", "agent_id", agentID, "event", event.Name, "error", err.Error())
		return
	}
	event.IssueID = issueID
}

func (g *Generator) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(g.backoff):
		return nil
	}
}

func validEvents(events []types.Event) []types.Event {
	out := make([]types.Event, 0, len(events))
	for _, event := range events {
		if event.Name != "" {
			out = append(out, event)
		}
	}
	return out
}

func formatEventID(n int) string {
	return fmt.Sprintf("E%03d", n)
}
