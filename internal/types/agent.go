// Package types defines the persisted domain documents.
package types

import "time"

// AgentProfile is the persisted persona document built from a free-text
// description. It is read-mostly; the evaluator merges state deltas into
// MentalState and Knowledge after a dialogue ends.
type AgentProfile struct {
	Name       string   `json:"name"`
	Age        string   `json:"age"`
	Career     string   `json:"career"`
	Country    string   `json:"country"`
	Skill      string   `json:"skill"`
	Appearance string   `json:"appearance"`
	Hobbies    []string `json:"hobbies"`
	Voice      string   `json:"voice"`
	Relation   string   `json:"relation"`
	MBTI       string   `json:"mbti"`
	AvatarURL  string   `json:"avatar_url"`
	// MemoryLevel is a 1-9 recall strength used by the evaluator prompt.
	MemoryLevel int            `json:"memory_level"`
	MentalState map[string]int `json:"mental_state"`
	Knowledge   []string       `json:"knowledge"`
}

// AgentRecord is an agents table row.
type AgentRecord struct {
	AgentID   int64        `json:"agent_id"`
	UserID    int64        `json:"user_id"`
	Name      string       `json:"agent_name"`
	Profile   AgentProfile `json:"profile"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Goal is a single agent objective.
type Goal struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// GoalSet is the latest-wins goal document associated with one agent.
type GoalSet struct {
	Goals []Goal `json:"goals"`
}
