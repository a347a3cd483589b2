package eventchain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/easeaico/project-echo/internal/types"
)

const stagesPromptText = `你是一个流程规划设计专家，请基于以下角色信息，为其完整生命周期（现在到60岁之间）的人生划分多个连续阶段，每个阶段包含：阶段名、时间范围、阶段目标与挑战。

角色信息：
{{.Profile}}

长期目标与背景：
{{.Goals}}

请以JSON数组格式输出，输出格式如下：
[
  {
    "index": "1",
    "stage": "初入职场",
    "time_range": "2026年-2028年（22岁-24岁）",
    "goal": "...",
    "is_origin": "true"
  }
]
仅输出JSON数组，不包含任何解释、说明或多余文本。`

const initialEventPromptText = `你是一位沉浸式互动剧情设计专家，现在需要为用户与智能体"{{.AgentName}}"设计一个引人入胜的初次相遇事件。

这个初始事件应该：
1. 具有强烈的故事感和代入感
2. 展现智能体的核心特征和个性
3. 为后续的互动奠定基础
4. 具有足够的冲突或趣味性来吸引用户继续互动

角色信息：
{{.Profile}}

阶段信息：
{{.Stage}}

长期目标与背景：
{{.Goals}}

请严格按照以下JSON格式输出初始事件，不要包含任何额外文本：
{
    "stage": "{{.StageName}}",
    "time_range": "{{.TimeRange}}",
    "events": [
        {
            "event_id": "E001",
            "type": "主线",
            "name": "初次相遇",
            "time": "具体时间",
            "location": "具体地点",
            "characters": ["{{.AgentName}}", "用户", "配角"],
            "cause": "事件起因...",
            "process": "事件经过（有挑战、有互动）...",
            "result": "事件结果...",
            "impact": {
                "mental_change": "...",
                "knowledge_gain": "...",
                "affection_change": "+3"
            },
            "importance": 5,
            "urgency": 4,
            "tags": ["初次相遇", "关键事件"],
            "trigger_conditions": ["初次互动"],
            "dependencies": []
        }
    ]
}

请特别注意：
- 这是用户与智能体的初次相遇，需要精心设计
- event_id必须为"E001"
- 类型必须是"主线"
- importance应为最高级别5
- 需要详细描述相遇的情景、原因和过程
- 要体现智能体的个性特征和当前阶段的背景`

const stageEventsPromptText = `你是一位沉浸式互动剧情设计专家，用户将与智能体"{{.AgentName}}"共同经历连贯真实的事件链。

基于以下信息为当前阶段生成事件：
角色信息：{{.Profile}}
阶段信息：{{.Stage}}
长期目标：{{.Goals}}
前序事件回顾（最近10个）：{{.PreviousEvents}}
{{- if .IsFinal}}
注意：这是接近结局的阶段，请设计引导用户走向大结局的事件，逐步收尾故事线。
{{- end}}

生成要求：
1. 只为当前阶段生成事件，不要涉及其他阶段
2. 包含3个主线事件、5个支线事件
3. 事件ID需从{{.NextEventID}}开始连续编号
4. 主线事件 importance ≥ 4，必须带有依赖（dependencies）
5. 支线事件 importance 为 3~4，无需依赖但应有明确触发条件
6. 所有事件必须包含以下字段：
   - event_id: 事件ID
   - type: 事件类型（主线/支线）
   - name: 事件标题
   - time: 具体时间
   - location: 具体地点
   - characters: 角色列表
   - cause: 事件起因
   - process: 事件经过
   - result: 事件结果
   - impact: 影响（mental_change、knowledge_gain、affection_change）
   - importance: 重要性（1-5）
   - urgency: 紧急程度（1-5）
   - tags: 标签列表
   - trigger_conditions: 触发条件
   - dependencies: 依赖事件

严格按照以下JSON格式输出，不要包含任何额外文本：
{
    "stage": "{{.StageName}}",
    "time_range": "{{.TimeRange}}",
    "events": [
        {
            "event_id": "{{.NextEventID}}",
            "type": "主线",
            "name": "事件标题",
            "time": "具体时间",
            "location": "具体地点",
            "characters": ["{{.AgentName}}", "用户", "配角"],
            "cause": "事件起因...",
            "process": "事件经过（有挑战、有互动）...",
            "result": "事件结果...",
            "impact": {
                "mental_change": "...",
                "knowledge_gain": "...",
                "affection_change": "+3"
            },
            "importance": 5,
            "urgency": 4,
            "tags": ["关键词1", "关键词2"],
            "trigger_conditions": ["处于{{.StageName}}", "亲密度>30"],
            "dependencies": []
        }
    ]
}
严格要求：
仅输出JSON对象，不包含任何解释、说明或多余文本
确保JSON格式完全正确（逗号分隔、引号闭合、无多余逗号）
键名和字符串值必须使用双引号（"），而非单引号（'）
数组和对象末尾不得有多余逗号
不要使用任何特殊字符或控制字符`

var (
	stagesTmpl       = template.Must(template.New("stages").Parse(stagesPromptText))
	initialEventTmpl = template.Must(template.New("initial").Parse(initialEventPromptText))
	stageEventsTmpl  = template.Must(template.New("stage_events").Parse(stageEventsPromptText))
)

func buildStagesPrompt(profile *types.AgentProfile, goals *types.GoalSet) (string, error) {
	data, err := promptData(profile, goals)
	if err != nil {
		return "", err
	}
	return render(stagesTmpl, data)
}

func buildInitialEventPrompt(profile *types.AgentProfile, goals *types.GoalSet, stage types.StageDescriptor) (string, error) {
	data, err := promptData(profile, goals)
	if err != nil {
		return "", err
	}
	stageJSON, err := json.Marshal(stage)
	if err != nil {
		return "", fmt.Errorf("failed to encode stage: %w", err)
	}
	data["AgentName"] = profile.Name
	data["Stage"] = string(stageJSON)
	data["StageName"] = stage.Name
	data["TimeRange"] = stage.TimeRange
	return render(initialEventTmpl, data)
}

func buildStageEventsPrompt(profile *types.AgentProfile, goals *types.GoalSet, stage types.StageDescriptor, previous []types.Event, nextEventID string, isFinal bool) (string, error) {
	data, err := promptData(profile, goals)
	if err != nil {
		return "", err
	}
	stageJSON, err := json.Marshal(stage)
	if err != nil {
		return "", fmt.Errorf("failed to encode stage: %w", err)
	}
	prevJSON := []byte("[]")
	if len(previous) > 0 {
		prevJSON, err = json.Marshal(previous)
		if err != nil {
			return "", fmt.Errorf("failed to encode previous events: %w", err)
		}
	}
	data["AgentName"] = profile.Name
	data["Stage"] = string(stageJSON)
	data["StageName"] = stage.Name
	data["TimeRange"] = stage.TimeRange
	data["PreviousEvents"] = string(prevJSON)
	data["NextEventID"] = nextEventID
	data["IsFinal"] = isFinal
	return render(stageEventsTmpl, data)
}

func promptData(profile *types.AgentProfile, goals *types.GoalSet) (map[string]any, error) {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile: %w", err)
	}
	goalsJSON := []byte("[]")
	if goals != nil {
		goalsJSON, err = json.Marshal(goals.Goals)
		if err != nil {
			return nil, fmt.Errorf("failed to encode goals: %w", err)
		}
	}
	return map[string]any{
		"Profile": string(profileJSON),
		"Goals":   string(goalsJSON),
	}, nil
}

func render(tmpl *template.Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}
