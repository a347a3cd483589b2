// Package agentbuilder turns a free-text persona description into a fully
// provisioned agent: profile, long-term goals, avatar and the first
// narrative event.
package agentbuilder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/easeaico/project-echo/internal/types"
	"github.com/easeaico/project-echo/internal/utils"
)

const profilePromptText = `你是一位角色设定专家。请根据下面的自由描述，为一个虚拟智能体生成完整的人物档案。

描述：
{{.Description}}

请严格按照以下JSON格式输出，不要包含任何额外文本：
{
    "name": "姓名",
    "age": "年龄",
    "career": "职业",
    "country": "国家或城市",
    "skill": "擅长的技能",
    "appearance": "外貌描述",
    "hobbies": ["爱好1", "爱好2"],
    "voice": "声线描述",
    "relation": "与用户的关系",
    "mbti": "MBTI类型",
    "memory_level": 5
}
描述中未提及的字段请结合整体设定合理补全，memory_level为1到9之间的整数。`

const goalsPromptText = `请根据以下角色档案，为这个角色设定3到5个贯穿其人生的长期目标。目标应与其职业、技能和爱好相称，并能驱动后续的故事发展。

角色档案：
{{.Profile}}

请严格按照以下JSON格式输出，不要包含任何额外文本：
{
    "goals": [
        {
            "title": "目标名称",
            "description": "目标的具体说明"
        }
    ]
}`

var (
	profilePrompt = template.Must(template.New("profile").Parse(profilePromptText))
	goalsPrompt   = template.Must(template.New("goals").Parse(goalsPromptText))
)

// mentalDims are the tracked mental dimensions and their starting value.
var mentalDims = []string{"心情", "心理健康度", "求知欲", "社交能量"}

const initialMentalValue = 60

// Completer is the LLM call the builder needs.
type Completer interface {
	Complete(ctx context.Context, msgs []types.ChatMessage, opts *types.CompleteOptions) (string, error)
}

// AgentStore persists new agent rows.
type AgentStore interface {
	Create(ctx context.Context, userID int64, profile *types.AgentProfile) (*types.AgentRecord, error)
}

// GoalStore persists goal documents.
type GoalStore interface {
	Upsert(ctx context.Context, agentID int64, goals *types.GoalSet) error
}

// ChainGenerator seeds the first narrative event.
type ChainGenerator interface {
	GenerateInitialEvent(ctx context.Context, agentID int64, profile *types.AgentProfile, goals *types.GoalSet) (*types.EventChain, error)
}

// AvatarGenerator renders a portrait for the profile. Optional.
type AvatarGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Builder provisions agents.
type Builder struct {
	llm    Completer
	agents AgentStore
	goals  GoalStore
	chains ChainGenerator
	avatar AvatarGenerator
}

// NewBuilder returns a Builder. avatar may be nil when no image backend is
// configured.
func NewBuilder(llm Completer, agents AgentStore, goals GoalStore, chains ChainGenerator, avatar AvatarGenerator) *Builder {
	return &Builder{
		llm:    llm,
		agents: agents,
		goals:  goals,
		chains: chains,
		avatar: avatar,
	}
}

// Build creates an agent from a free-text description. The profile is
// mandatory; goals, avatar and the first event degrade with a log so a
// flaky narrative model never loses the created agent.
func (b *Builder) Build(ctx context.Context, userID int64, description string) (*types.AgentRecord, error) {
	profile, err := b.generateProfile(ctx, description)
	if err != nil {
		return nil, err
	}

	if b.avatar != nil && profile.Appearance != "" {
		avatarURL, err := b.avatar.Generate(ctx, avatarPrompt(profile))
		if err != nil {
			slog.Warn("avatar generation failed", "name", profile.Name, "error", err.Error())
		} else {
			profile.AvatarURL = avatarURL
		}
	}

	record, err := b.agents.Create(ctx, userID, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	goals := b.generateGoals(ctx, profile)
	if err := b.goals.Upsert(ctx, record.AgentID, goals); err != nil {
		slog.Warn("failed to save goals", "agent_id", record.AgentID, "error", err.Error())
		goals = &types.GoalSet{}
	}

	if _, err := b.chains.GenerateInitialEvent(ctx, record.AgentID, profile, goals); err != nil {
		slog.Error("initial event generation failed, will retry on first event session", "agent_id", record.AgentID, "error", err.Error())
	}

	return record, nil
}

func (b *Builder) generateProfile(ctx context.Context, description string) (*types.AgentProfile, error) {
	promptText, err := renderPrompt(profilePrompt, map[string]any{"Description": description})
	if err != nil {
		return nil, err
	}
	reply, err := b.llm.Complete(ctx, []types.ChatMessage{{Role: types.RoleUser, Content: promptText}}, nil)
	if err != nil {
		return nil, fmt.Errorf("profile generation failed: %w", err)
	}

	var profile types.AgentProfile
	if err := utils.ExtractJSONObject(reply, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	if profile.Name == "" {
		return nil, fmt.Errorf("generated profile has no name")
	}

	if profile.MemoryLevel < 1 || profile.MemoryLevel > 9 {
		profile.MemoryLevel = 5
	}
	if profile.MentalState == nil {
		profile.MentalState = make(map[string]int, len(mentalDims))
	}
	for _, dim := range mentalDims {
		if _, ok := profile.MentalState[dim]; !ok {
			profile.MentalState[dim] = initialMentalValue
		}
	}
	return &profile, nil
}

func (b *Builder) generateGoals(ctx context.Context, profile *types.AgentProfile) *types.GoalSet {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return &types.GoalSet{}
	}
	promptText, err := renderPrompt(goalsPrompt, map[string]any{"Profile": string(profileJSON)})
	if err != nil {
		return &types.GoalSet{}
	}
	reply, err := b.llm.Complete(ctx, []types.ChatMessage{{Role: types.RoleUser, Content: promptText}}, nil)
	if err != nil {
		slog.Warn("goal generation failed", "name", profile.Name, "error", err.Error())
		return &types.GoalSet{}
	}
	var goals types.GoalSet
	if err := utils.ExtractJSONObject(reply, &goals); err != nil {
		slog.Warn("failed to parse goals", "name", profile.Name, "error", err.Error())
		return &types.GoalSet{}
	}
	return &goals
}

func avatarPrompt(profile *types.AgentProfile) string {
	return fmt.Sprintf("请生成一张人物头像：%s。人物是%s，风格为精致的动漫插画，正面半身像，柔和光线。", profile.Appearance, profile.Name)
}

func renderPrompt(tmpl *template.Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
