// Package evaluator scores a finished dialogue and merges the resulting
// state deltas back into the agent's persisted documents.
package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"github.com/easeaico/project-echo/internal/types"
	"github.com/easeaico/project-echo/internal/utils"
)

// Completer is the LLM call the evaluator needs.
type Completer interface {
	Complete(ctx context.Context, msgs []types.ChatMessage, opts *types.CompleteOptions) (string, error)
}

// EventUpdate names one tree event whose status the dialogue settled.
type EventUpdate struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

// StateDelta is the evaluation outcome applied to the agent after a
// dialogue ends.
type StateDelta struct {
	MentalChanges   map[string]int `json:"mental_changes"`
	KnowledgeGained []string       `json:"knowledge_gained"`
	EventUpdate     EventUpdate    `json:"event_update"`
}

// DefaultDelta is the no-op evaluation used when the model cannot be
// consulted.
func DefaultDelta() *StateDelta {
	return &StateDelta{
		MentalChanges:   map[string]int{"心情": 0, "心理健康度": 0, "求知欲": 0, "社交能量": 0},
		KnowledgeGained: []string{},
	}
}

var evalTmpl = template.Must(template.New("eval").Parse(`请根据以下内容评估对话结束后智能体的状态变化，并按issue_id分组评估：

【角色基础属性】
记忆力等级：{{.MemoryLevel}}/9

【智能体设定】
{{.Profile}}

【目标信息】
{{.Goals}}

【对话分组】
{{- range .Groups}}
Issue ID: {{.IssueID}}
{{- range .Messages}}
{{.Role}}: {{.Content}}
{{- end}}
{{- end}}

请严格按照以下JSON格式输出，不要包含任何额外文本：
{
  "mental_changes": {
    "心情": 0,
    "心理健康度": 0,
    "求知欲": 0,
    "社交能量": 0
  },
  "knowledge_gained": ["新知识1"],
  "event_update": {
    "event_id": "",
    "status": "成功/失败/未完成"
  }
}
mental_changes 的值为带符号整数增量。
重要：不要使用Markdown代码块，直接输出纯JSON！`))

type issueGroup struct {
	IssueID  string
	Messages []types.DialogMessage
}

// Evaluator asks the model for state deltas, degrading to a zero delta on
// any failure.
type Evaluator struct {
	llm        Completer
	maxRetries int
	backoff    time.Duration
}

// NewEvaluator returns an Evaluator.
func NewEvaluator(llm Completer) *Evaluator {
	return &Evaluator{llm: llm, maxRetries: 2, backoff: time.Second}
}

// EvaluateStateChange never fails: exhausted retries yield DefaultDelta.
func (e *Evaluator) EvaluateStateChange(ctx context.Context, history []types.DialogMessage, profile *types.AgentProfile, goals *types.GoalSet) *StateDelta {
	prompt, err := buildEvalPrompt(history, profile, goals)
	if err != nil {
		slog.Error("failed to build evaluation prompt", "error", err.Error())
		return DefaultDelta()
	}

	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return DefaultDelta()
			case <-time.After(e.backoff):
			}
		}

		reply, err := e.llm.Complete(ctx, []types.ChatMessage{{Role: types.RoleUser, Content: prompt}}, &types.CompleteOptions{MaxTokens: 1500})
		if err != nil {
			slog.Warn("state evaluation call failed", "attempt", attempt+1, "error", err.Error())
			continue
		}

		var delta StateDelta
		if err := utils.ExtractJSONObject(reply, &delta); err != nil {
			slog.Warn("state evaluation output unparseable", "attempt", attempt+1, "error", err.Error())
			continue
		}
		if delta.MentalChanges == nil {
			delta.MentalChanges = map[string]int{}
		}
		return &delta
	}

	slog.Error("all state evaluation attempts failed, using default")
	return DefaultDelta()
}

func buildEvalPrompt(history []types.DialogMessage, profile *types.AgentProfile, goals *types.GoalSet) (string, error) {
	profileJSON, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode profile: %w", err)
	}
	goalsJSON := []byte("[]")
	if goals != nil {
		goalsJSON, err = json.Marshal(goals.Goals)
		if err != nil {
			return "", fmt.Errorf("failed to encode goals: %w", err)
		}
	}

	memoryLevel := 5
	if profile != nil && profile.MemoryLevel > 0 {
		memoryLevel = profile.MemoryLevel
	}

	data := struct {
		MemoryLevel int
		Profile     string
		Goals       string
		Groups      []issueGroup
	}{
		MemoryLevel: memoryLevel,
		Profile:     string(profileJSON),
		Goals:       string(goalsJSON),
		Groups:      groupByIssue(history),
	}

	var buf bytes.Buffer
	if err := evalTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render evaluation prompt: %w", err)
	}
	return buf.String(), nil
}

// groupByIssue keeps first-seen issue order so the transcript reads in
// chronological blocks.
func groupByIssue(history []types.DialogMessage) []issueGroup {
	index := map[string]int{}
	var groups []issueGroup
	for _, msg := range history {
		if msg.Role == types.RoleSystem {
			continue
		}
		id := msg.IssueID
		if id == "" {
			id = "daily"
		}
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, issueGroup{IssueID: id})
		}
		groups[i].Messages = append(groups[i].Messages, msg)
	}
	return groups
}
