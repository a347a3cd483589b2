package eventloop

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/easeaico/project-echo/internal/session"
	"github.com/easeaico/project-echo/internal/storage"
	"github.com/easeaico/project-echo/internal/types"
)

type fakeCompleter struct {
	replies []string
	errs    []error
	prompts []string
	calls   int
}

func (f *fakeCompleter) Complete(ctx context.Context, msgs []types.ChatMessage, opts *types.CompleteOptions) (string, error) {
	idx := f.calls
	f.calls++
	if len(msgs) > 0 {
		f.prompts = append(f.prompts, msgs[len(msgs)-1].Content)
	}
	if idx < len(f.errs) && f.errs[idx] != nil {
		return "", f.errs[idx]
	}
	if idx < len(f.replies) {
		return f.replies[idx], nil
	}
	return "", errors.New("no scripted reply")
}

type fakeAgentStore struct{}

func (fakeAgentStore) GetByID(ctx context.Context, agentID int64) (*types.AgentRecord, error) {
	return &types.AgentRecord{
		AgentID: agentID,
		Name:    "小雨",
		Profile: types.AgentProfile{Name: "小雨", Career: "插画师"},
	}, nil
}

type fakeGoalStore struct{}

func (fakeGoalStore) Get(ctx context.Context, agentID int64) (*types.GoalSet, error) {
	return &types.GoalSet{}, nil
}

type fakeChainStore struct {
	chain        *types.EventChain
	statusWrites map[string]string
	upserts      int
}

func newFakeChainStore(chain *types.EventChain) *fakeChainStore {
	return &fakeChainStore{chain: chain, statusWrites: map[string]string{}}
}

func (f *fakeChainStore) Get(ctx context.Context, agentID int64) (*types.EventChain, error) {
	if f.chain == nil {
		return nil, storage.ErrNotFound
	}
	return f.chain, nil
}

func (f *fakeChainStore) Upsert(ctx context.Context, agentID int64, chain *types.EventChain) error {
	f.upserts++
	f.chain = chain
	return nil
}

func (f *fakeChainStore) UpdateEventStatus(ctx context.Context, agentID int64, eventID, status string) error {
	f.statusWrites[eventID] = status
	if event := f.chain.FindEvent(eventID); event != nil {
		event.Status = status
	}
	return nil
}

type fakeMessageStore struct {
	appended []types.DialogMessage
}

func (f *fakeMessageStore) Append(ctx context.Context, sessionID string, userID, agentID int64, msg types.DialogMessage) error {
	f.appended = append(f.appended, msg)
	return nil
}

func testChain() *types.EventChain {
	return &types.EventChain{
		Version: "1.0",
		Stages: []types.Stage{
			{
				Name: "初入职场",
				Events: []types.Event{
					{EventID: "E001", Type: types.EventTypeMain, Name: "初次相遇", Location: "画展", Characters: []string{"小雨", "用户"}, Status: types.EventStatusPending},
					{EventID: "E002", Type: types.EventTypeMain, Name: "第一份委托", Cause: "画展上的邀约", Status: types.EventStatusPending},
					{EventID: "E003", Type: types.EventTypeSide, Name: "旧友重逢", Status: types.EventStatusSuccess},
				},
			},
		},
	}
}

func newTestEngine(llm *fakeCompleter, chains *fakeChainStore) (*Engine, *fakeMessageStore) {
	messages := &fakeMessageStore{}
	engine := NewEngine(Config{
		LLM:      llm,
		Agents:   fakeAgentStore{},
		Goals:    fakeGoalStore{},
		Chains:   chains,
		Messages: messages,
	})
	return engine, messages
}

func TestStepInProgressTurn(t *testing.T) {
	llm := &fakeCompleter{replies: []string{"你好呀，很高兴认识你。"}}
	chains := newFakeChainStore(testChain())
	engine, messages := newTestEngine(llm, chains)
	state := session.NewEventState("E001", chains.chain)

	res, err := engine.Step(context.Background(), "s1", 7, 42, state, "你好")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Ended {
		t.Fatalf("turn without marker must not end the event")
	}
	if res.IssueID != "E001" || res.EventStatus != session.StatusInProgress {
		t.Fatalf("unexpected result: %+v", res)
	}
	if state.DialogHistory[0].Role != types.RoleSystem {
		t.Fatalf("system prompt should be prepended on first turn")
	}
	if len(messages.appended) != 2 {
		t.Fatalf("user and assistant turns should be persisted, got %d", len(messages.appended))
	}
}

func TestStepBuildsSystemPromptOnce(t *testing.T) {
	llm := &fakeCompleter{replies: []string{"第一句。", "第二句。"}}
	chains := newFakeChainStore(testChain())
	engine, _ := newTestEngine(llm, chains)
	state := session.NewEventState("E001", chains.chain)

	if _, err := engine.Step(context.Background(), "s1", 7, 42, state, "你好"); err != nil {
		t.Fatalf("first step: %v", err)
	}
	if _, err := engine.Step(context.Background(), "s1", 7, 42, state, "然后呢"); err != nil {
		t.Fatalf("second step: %v", err)
	}
	systems := 0
	for _, msg := range state.DialogHistory {
		if msg.Role == types.RoleSystem {
			systems++
		}
	}
	if systems != 1 {
		t.Fatalf("expected exactly one system message, got %d", systems)
	}
}

func TestStepSuccessSelectsNextEvent(t *testing.T) {
	llm := &fakeCompleter{replies: []string{
		"我们做到了！【事件结束：成功】",
		"0",
	}}
	chains := newFakeChainStore(testChain())
	engine, _ := newTestEngine(llm, chains)
	state := session.NewEventState("E001", chains.chain)

	res, err := engine.Step(context.Background(), "s1", 7, 42, state, "一起完成吧")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Ended || res.EventStatus != types.EventStatusSuccess {
		t.Fatalf("success marker should end the event: %+v", res)
	}
	if chains.statusWrites["E001"] != types.EventStatusSuccess {
		t.Fatalf("status write missing: %v", chains.statusWrites)
	}
	// E002 is the only pending candidate after E001 finishes.
	if res.IssueID != "E002" {
		t.Fatalf("expected next event E002, got %s", res.IssueID)
	}
	if state.CurrentEventID != "E002" {
		t.Fatalf("session cursor should advance to E002, got %s", state.CurrentEventID)
	}
	selection := llm.prompts[len(llm.prompts)-1]
	if !strings.Contains(selection, "E002") || !strings.Contains(selection, "第一份委托") {
		t.Fatalf("selection prompt should list candidates: %s", selection)
	}
	if strings.Contains(selection, "旧友重逢") {
		t.Fatalf("finished events must not be candidates")
	}
}

func TestStepFailureSkipsSelection(t *testing.T) {
	llm := &fakeCompleter{replies: []string{"很遗憾。【事件结束：失败】"}}
	chains := newFakeChainStore(testChain())
	engine, _ := newTestEngine(llm, chains)
	state := session.NewEventState("E001", chains.chain)

	res, err := engine.Step(context.Background(), "s1", 7, 42, state, "算了")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Ended || res.EventStatus != types.EventStatusFailure {
		t.Fatalf("failure marker should end the event: %+v", res)
	}
	if res.IssueID != "E001" {
		t.Fatalf("failed event keeps the current cursor, got %s", res.IssueID)
	}
	if llm.calls != 1 {
		t.Fatalf("failure path must not run selection, calls=%d", llm.calls)
	}
}

func TestStepInvalidSelectionStaysPut(t *testing.T) {
	llm := &fakeCompleter{replies: []string{
		"搞定。【事件结束：成功】",
		"-1",
	}}
	chains := newFakeChainStore(testChain())
	engine, _ := newTestEngine(llm, chains)
	state := session.NewEventState("E001", chains.chain)

	res, err := engine.Step(context.Background(), "s1", 7, 42, state, "完成了")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.IssueID != "E001" {
		t.Fatalf("-1 means no suitable event, cursor should stay at E001, got %s", res.IssueID)
	}
	if state.CurrentEventID != "E001" {
		t.Fatalf("session cursor should stay at E001, got %s", state.CurrentEventID)
	}
}

func TestStepNoCandidatesGeneratesTempEvent(t *testing.T) {
	chain := testChain()
	for i := range chain.Stages[0].Events {
		chain.Stages[0].Events[i].Status = types.EventStatusSuccess
	}
	chain.Stages[0].Events[0].Status = types.EventStatusPending
	llm := &fakeCompleter{
		replies: []string{"搞定。【事件结束：成功】"},
		errs:    []error{nil, errors.New("temp generation down")},
	}
	chains := newFakeChainStore(chain)
	engine, _ := newTestEngine(llm, chains)
	state := session.NewEventState("E001", chains.chain)

	res, err := engine.Step(context.Background(), "s1", 7, 42, state, "完成了")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.HasPrefix(res.IssueID, "TEMP_") {
		t.Fatalf("exhausted tree should produce a temp event, got %s", res.IssueID)
	}
	if chains.upserts != 1 {
		t.Fatalf("temp event should be persisted to the tree")
	}
	temp := chains.chain.FindEvent(res.IssueID)
	if temp == nil {
		t.Fatalf("temp event missing from tree")
	}
	if temp.Type != types.EventTypeTemp || temp.Status != types.EventStatusPending {
		t.Fatalf("fallback temp event malformed: %+v", temp)
	}
	if state.CurrentEventID != res.IssueID {
		t.Fatalf("session cursor should advance to the temp event, got %s", state.CurrentEventID)
	}
}

func TestStepLLMFailureKeepsEventInProgress(t *testing.T) {
	llm := &fakeCompleter{errs: []error{errors.New("timeout")}}
	chains := newFakeChainStore(testChain())
	engine, _ := newTestEngine(llm, chains)
	state := session.NewEventState("E001", chains.chain)

	res, err := engine.Step(context.Background(), "s1", 7, 42, state, "你好")
	if err != nil {
		t.Fatalf("llm failure must not fail the call, got %v", err)
	}
	if res.Ended || res.EventStatus != session.StatusInProgress {
		t.Fatalf("event must stay in progress: %+v", res)
	}
	if !strings.Contains(res.Content, "失败") {
		t.Fatalf("caller should see the failure text, got %q", res.Content)
	}
}

func TestStepEndedSessionRejected(t *testing.T) {
	chains := newFakeChainStore(testChain())
	engine, _ := newTestEngine(&fakeCompleter{}, chains)
	state := session.NewEventState("E001", chains.chain)
	state.EventStatus = types.EventStatusSuccess

	if _, err := engine.Step(context.Background(), "s1", 7, 42, state, "在吗"); err == nil {
		t.Fatalf("ended session should reject further turns")
	}
}

func TestStepUnknownEventRejected(t *testing.T) {
	chains := newFakeChainStore(testChain())
	engine, _ := newTestEngine(&fakeCompleter{}, chains)
	state := session.NewEventState("E999", chains.chain)

	if _, err := engine.Step(context.Background(), "s1", 7, 42, state, "在吗"); err == nil {
		t.Fatalf("missing event should be a hard error")
	}
}
