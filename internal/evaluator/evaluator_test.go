package evaluator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/easeaico/project-echo/internal/types"
)

type fakeCompleter struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(ctx context.Context, msgs []types.ChatMessage, opts *types.CompleteOptions) (string, error) {
	f.prompts = append(f.prompts, msgs[len(msgs)-1].Content)
	return f.reply, f.err
}

func TestEvaluateStateChangeParsesDelta(t *testing.T) {
	llm := &fakeCompleter{reply: `{
		"mental_changes": {"心情": 2, "社交能量": -1},
		"knowledge_gained": ["用户喜欢爬山"],
		"event_update": {"event_id": "E002", "status": "成功"}
	}`}
	e := NewEvaluator(llm)

	delta := e.EvaluateStateChange(context.Background(), []types.DialogMessage{
		{Role: types.RoleUser, Content: "我周末去爬山了", IssueID: "E002"},
		{Role: types.RoleAssistant, Content: "听起来很棒！", IssueID: "E002"},
	}, &types.AgentProfile{Name: "小雨", MemoryLevel: 7}, nil)

	if delta.MentalChanges["心情"] != 2 || delta.MentalChanges["社交能量"] != -1 {
		t.Fatalf("unexpected mental changes: %+v", delta.MentalChanges)
	}
	if len(delta.KnowledgeGained) != 1 || delta.KnowledgeGained[0] != "用户喜欢爬山" {
		t.Fatalf("unexpected knowledge: %+v", delta.KnowledgeGained)
	}
	if delta.EventUpdate.EventID != "E002" {
		t.Fatalf("unexpected event update: %+v", delta.EventUpdate)
	}

	prompt := llm.prompts[0]
	if !strings.Contains(prompt, "Issue ID: E002") {
		t.Fatalf("prompt should group by issue id:\n%s", prompt)
	}
	if !strings.Contains(prompt, "7/9") {
		t.Fatalf("prompt should carry the memory level:\n%s", prompt)
	}
}

func TestEvaluateStateChangeDefaultsOnFailure(t *testing.T) {
	e := NewEvaluator(&fakeCompleter{err: errors.New("timeout")})
	e.backoff = 0

	delta := e.EvaluateStateChange(context.Background(), nil, &types.AgentProfile{}, nil)
	for _, dim := range []string{"心情", "心理健康度", "求知欲", "社交能量"} {
		if delta.MentalChanges[dim] != 0 {
			t.Fatalf("default delta should be zero, got %+v", delta.MentalChanges)
		}
	}
	if delta.EventUpdate.EventID != "" {
		t.Fatalf("default delta should not touch events")
	}
}

func TestMergeProfileClampsAndDedupes(t *testing.T) {
	profile := &types.AgentProfile{
		MentalState: map[string]int{"心情": 99, "社交能量": 1},
		Knowledge:   []string{"用户喜欢爬山"},
	}
	MergeProfile(profile, &StateDelta{
		MentalChanges:   map[string]int{"心情": 5, "社交能量": -3, "求知欲": 2},
		KnowledgeGained: []string{"用户喜欢爬山", "用户养了一只猫", ""},
	})

	if profile.MentalState["心情"] != 100 {
		t.Fatalf("心情 should clamp to 100, got %d", profile.MentalState["心情"])
	}
	if profile.MentalState["社交能量"] != 0 {
		t.Fatalf("社交能量 should clamp to 0, got %d", profile.MentalState["社交能量"])
	}
	if profile.MentalState["求知欲"] != 2 {
		t.Fatalf("new dimension should be created, got %+v", profile.MentalState)
	}
	if len(profile.Knowledge) != 2 {
		t.Fatalf("knowledge should dedupe and drop empties: %+v", profile.Knowledge)
	}
}

type fakeAgentStore struct {
	updated *types.AgentProfile
}

func (f *fakeAgentStore) UpdateProfile(ctx context.Context, agentID int64, profile *types.AgentProfile) error {
	f.updated = profile
	return nil
}

type fakeChainStore struct {
	eventID string
	status  string
}

func (f *fakeChainStore) UpdateEventStatus(ctx context.Context, agentID int64, eventID, status string) error {
	f.eventID = eventID
	f.status = status
	return nil
}

func TestMergerAppliesEventUpdate(t *testing.T) {
	agents := &fakeAgentStore{}
	chains := &fakeChainStore{}
	m := NewMerger(agents, chains)

	profile := &types.AgentProfile{MentalState: map[string]int{"心情": 50}}
	err := m.Apply(context.Background(), 42, profile, &StateDelta{
		MentalChanges: map[string]int{"心情": 3},
		EventUpdate:   EventUpdate{EventID: "E004", Status: "完成"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if agents.updated == nil || agents.updated.MentalState["心情"] != 53 {
		t.Fatalf("profile write missing or wrong: %+v", agents.updated)
	}
	if chains.eventID != "E004" || chains.status != types.EventStatusSuccess {
		t.Fatalf("event status not normalized: %s/%s", chains.eventID, chains.status)
	}
}

func TestMergerIgnoresUnsettledEventStatus(t *testing.T) {
	chains := &fakeChainStore{}
	m := NewMerger(&fakeAgentStore{}, chains)

	err := m.Apply(context.Background(), 42, &types.AgentProfile{}, &StateDelta{
		EventUpdate: EventUpdate{EventID: "E004", Status: "跳过"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if chains.eventID != "" {
		t.Fatalf("unsettled status must not touch the tree")
	}
}
