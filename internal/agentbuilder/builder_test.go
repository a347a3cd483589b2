package agentbuilder

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/easeaico/project-echo/internal/types"
)

type fakeCompleter struct {
	replies []string
	errs    []error
	calls   int
}

func (f *fakeCompleter) Complete(ctx context.Context, msgs []types.ChatMessage, opts *types.CompleteOptions) (string, error) {
	idx := f.calls
	f.calls++
	if idx < len(f.errs) && f.errs[idx] != nil {
		return "", f.errs[idx]
	}
	if idx < len(f.replies) {
		return f.replies[idx], nil
	}
	return "", errors.New("no scripted reply")
}

type fakeAgentStore struct {
	created *types.AgentProfile
}

func (f *fakeAgentStore) Create(ctx context.Context, userID int64, profile *types.AgentProfile) (*types.AgentRecord, error) {
	f.created = profile
	return &types.AgentRecord{AgentID: 42, UserID: userID, Name: profile.Name, Profile: *profile}, nil
}

type fakeGoalStore struct {
	saved *types.GoalSet
}

func (f *fakeGoalStore) Upsert(ctx context.Context, agentID int64, goals *types.GoalSet) error {
	f.saved = goals
	return nil
}

type fakeChainGenerator struct {
	calls int
	goals *types.GoalSet
	err   error
}

func (f *fakeChainGenerator) GenerateInitialEvent(ctx context.Context, agentID int64, profile *types.AgentProfile, goals *types.GoalSet) (*types.EventChain, error) {
	f.calls++
	f.goals = goals
	return &types.EventChain{Version: "1.0"}, f.err
}

type fakeAvatarGenerator struct {
	url string
	err error
}

func (f *fakeAvatarGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return f.url, f.err
}

const profileReply = `{
  "name": "小雨",
  "age": "24",
  "career": "插画师",
  "country": "中国",
  "skill": "水彩",
  "appearance": "长发，戴圆框眼镜",
  "hobbies": ["画画", "散步"],
  "voice": "温柔",
  "relation": "朋友",
  "mbti": "INFP",
  "memory_level": 7
}`

const goalsReply = `{"goals": [{"title": "举办个人画展", "description": "三年内在家乡举办一次个人水彩画展"}]}`

func TestBuildProvisionsAgent(t *testing.T) {
	llm := &fakeCompleter{replies: []string{profileReply, goalsReply}}
	agents := &fakeAgentStore{}
	goals := &fakeGoalStore{}
	chains := &fakeChainGenerator{}
	builder := NewBuilder(llm, agents, goals, chains, nil)

	record, err := builder.Build(context.Background(), 7, "一个温柔的插画师")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if record.AgentID != 42 || record.Name != "小雨" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if agents.created.MemoryLevel != 7 {
		t.Fatalf("memory level not carried: %d", agents.created.MemoryLevel)
	}
	for _, dim := range mentalDims {
		if agents.created.MentalState[dim] != initialMentalValue {
			t.Fatalf("mental dim %s not initialized: %v", dim, agents.created.MentalState)
		}
	}
	if goals.saved == nil || len(goals.saved.Goals) != 1 || goals.saved.Goals[0].Title != "举办个人画展" {
		t.Fatalf("goals not saved: %+v", goals.saved)
	}
	if chains.calls != 1 {
		t.Fatalf("initial event not generated")
	}
	if chains.goals != goals.saved {
		t.Fatalf("chain generation should see the saved goals")
	}
}

func TestBuildDefaultsBadMemoryLevel(t *testing.T) {
	reply := strings.Replace(profileReply, `"memory_level": 7`, `"memory_level": 42`, 1)
	llm := &fakeCompleter{replies: []string{reply, goalsReply}}
	agents := &fakeAgentStore{}
	builder := NewBuilder(llm, agents, &fakeGoalStore{}, &fakeChainGenerator{}, nil)

	if _, err := builder.Build(context.Background(), 7, "描述"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if agents.created.MemoryLevel != 5 {
		t.Fatalf("out of range memory level should default to 5, got %d", agents.created.MemoryLevel)
	}
}

func TestBuildFailsWithoutProfile(t *testing.T) {
	llm := &fakeCompleter{errs: []error{errors.New("model down")}}
	builder := NewBuilder(llm, &fakeAgentStore{}, &fakeGoalStore{}, &fakeChainGenerator{}, nil)

	if _, err := builder.Build(context.Background(), 7, "描述"); err == nil {
		t.Fatalf("profile failure must fail the build")
	}
}

func TestBuildDegradesOnGoalFailure(t *testing.T) {
	llm := &fakeCompleter{
		replies: []string{profileReply, ""},
		errs:    []error{nil, errors.New("model down")},
	}
	goals := &fakeGoalStore{}
	builder := NewBuilder(llm, &fakeAgentStore{}, goals, &fakeChainGenerator{}, nil)

	record, err := builder.Build(context.Background(), 7, "描述")
	if err != nil {
		t.Fatalf("goal failure must not fail the build, got %v", err)
	}
	if record == nil {
		t.Fatalf("expected a record")
	}
	if goals.saved == nil || len(goals.saved.Goals) != 0 {
		t.Fatalf("expected an empty goal set, got %+v", goals.saved)
	}
}

func TestBuildSurvivesInitialEventFailure(t *testing.T) {
	llm := &fakeCompleter{replies: []string{profileReply, goalsReply}}
	chains := &fakeChainGenerator{err: errors.New("narrative model down")}
	builder := NewBuilder(llm, &fakeAgentStore{}, &fakeGoalStore{}, chains, nil)

	if _, err := builder.Build(context.Background(), 7, "描述"); err != nil {
		t.Fatalf("initial event failure must not fail the build, got %v", err)
	}
}

func TestBuildAttachesAvatar(t *testing.T) {
	llm := &fakeCompleter{replies: []string{profileReply, goalsReply}}
	agents := &fakeAgentStore{}
	avatar := &fakeAvatarGenerator{url: "data:image/png;base64,xxx"}
	builder := NewBuilder(llm, agents, &fakeGoalStore{}, &fakeChainGenerator{}, avatar)

	if _, err := builder.Build(context.Background(), 7, "描述"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if agents.created.AvatarURL != avatar.url {
		t.Fatalf("avatar url not attached: %q", agents.created.AvatarURL)
	}
}

func TestBuildIgnoresAvatarFailure(t *testing.T) {
	llm := &fakeCompleter{replies: []string{profileReply, goalsReply}}
	agents := &fakeAgentStore{}
	avatar := &fakeAvatarGenerator{err: errors.New("image model down")}
	builder := NewBuilder(llm, agents, &fakeGoalStore{}, &fakeChainGenerator{}, avatar)

	if _, err := builder.Build(context.Background(), 7, "描述"); err != nil {
		t.Fatalf("avatar failure must not fail the build, got %v", err)
	}
	if agents.created.AvatarURL != "" {
		t.Fatalf("failed avatar must leave url empty")
	}
}
