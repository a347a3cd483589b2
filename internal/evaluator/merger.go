package evaluator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/easeaico/project-echo/internal/types"
)

// AgentStore persists profile updates.
type AgentStore interface {
	UpdateProfile(ctx context.Context, agentID int64, profile *types.AgentProfile) error
}

// ChainStore flips event statuses on the authoritative tree.
type ChainStore interface {
	UpdateEventStatus(ctx context.Context, agentID int64, eventID, status string) error
}

// Merger applies a StateDelta to the agent's persisted documents.
type Merger struct {
	agents AgentStore
	chains ChainStore
}

// NewMerger returns a Merger.
func NewMerger(agents AgentStore, chains ChainStore) *Merger {
	return &Merger{agents: agents, chains: chains}
}

// Apply mutates the profile in memory, writes it back, and updates the
// named tree event when the delta settled one. The profile mutation is the
// same even when the write fails, so callers can retry.
func (m *Merger) Apply(ctx context.Context, agentID int64, profile *types.AgentProfile, delta *StateDelta) error {
	if profile == nil || delta == nil {
		return fmt.Errorf("profile and delta are required")
	}

	MergeProfile(profile, delta)
	if err := m.agents.UpdateProfile(ctx, agentID, profile); err != nil {
		return fmt.Errorf("failed to persist profile delta: %w", err)
	}

	if delta.EventUpdate.EventID != "" {
		status := normalizeEventStatus(delta.EventUpdate.Status)
		if status == "" {
			slog.Warn("ignoring unsettled event update", "event_id", delta.EventUpdate.EventID, "status", delta.EventUpdate.Status)
			return nil
		}
		if err := m.chains.UpdateEventStatus(ctx, agentID, delta.EventUpdate.EventID, status); err != nil {
			return fmt.Errorf("failed to persist event status: %w", err)
		}
	}
	return nil
}

// MergeProfile folds the delta into the profile: mental dimensions are
// clamped to [0,100], knowledge entries are appended once.
func MergeProfile(profile *types.AgentProfile, delta *StateDelta) {
	if profile.MentalState == nil && len(delta.MentalChanges) > 0 {
		profile.MentalState = map[string]int{}
	}
	for dim, change := range delta.MentalChanges {
		profile.MentalState[dim] = clamp(profile.MentalState[dim]+change, 0, 100)
	}

	known := make(map[string]bool, len(profile.Knowledge))
	for _, k := range profile.Knowledge {
		known[k] = true
	}
	for _, k := range delta.KnowledgeGained {
		if k != "" && !known[k] {
			profile.Knowledge = append(profile.Knowledge, k)
			known[k] = true
		}
	}
}

func normalizeEventStatus(status string) string {
	switch status {
	case "成功", "完成":
		return types.EventStatusSuccess
	case "失败":
		return types.EventStatusFailure
	default:
		return ""
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
