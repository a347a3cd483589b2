package eventloop

import (
	"bytes"
	"fmt"
	"text/template"
)

const nextEventPromptText = `你是一位剧情导演。智能体"{{.AgentName}}"刚刚成功完成了事件"{{.CurrentName}}"，请根据最近的对话走向，从下面的候选事件中选出最适合接下来发生的一个。

【最近对话摘要】
{{.Summary}}

【候选事件】
{{range .Candidates}}{{.Index}}. [{{.Stage}}] {{.EventID}} {{.Name}}
   触发条件：{{.Trigger}}
   简介：{{.Description}}
{{end}}
选择时请考虑剧情的连贯性和事件的触发条件。

只输出所选候选事件的编号（一个整数）。如果没有任何合适的事件，输出-1。不要输出其他任何内容。`

const tempEventPromptText = `你是一位沉浸式互动剧情设计专家。智能体"{{.AgentName}}"当前没有待发生的剧情事件，请为其设计一个轻量的临时日常事件，作为下一段互动的背景。

角色信息：
{{.Profile}}

临时事件应当贴近日常生活，规模小、无长期影响，适合一次简短的互动。

请严格按照以下JSON格式输出，不要包含任何额外文本：
{
    "event_id": "{{.EventID}}",
    "type": "临时事件",
    "name": "事件名称",
    "time": "具体时间",
    "location": "具体地点",
    "characters": ["{{.AgentName}}", "用户"],
    "cause": "事件起因",
    "process": "事件经过",
    "result": "",
    "importance": 2,
    "urgency": 2,
    "tags": ["日常", "互动"],
    "trigger_conditions": [],
    "dependencies": [],
    "status": "未完成"
}`

var (
	nextEventPrompt = template.Must(template.New("next_event").Parse(nextEventPromptText))
	tempEventPrompt = template.Must(template.New("temp_event").Parse(tempEventPromptText))
)

// candidateView is one row of the next-event selection prompt.
type candidateView struct {
	Index       int
	Stage       string
	EventID     string
	Name        string
	Trigger     string
	Description string
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
