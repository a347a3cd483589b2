// Package prompt assembles the persona system prompts for both loops.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/easeaico/project-echo/internal/types"
)

// maxScheduleSlots caps how much of today's plan is quoted to the model.
const maxScheduleSlots = 5

// DailyContext contains the inputs for the daily-chat system prompt.
type DailyContext struct {
	Profile  *types.AgentProfile
	Now      time.Time
	Activity string
	Status   string
	Slots    []types.ScheduleSlot
}

// BuildDaily renders the daily-chat system prompt.
func BuildDaily(ctx DailyContext) (string, error) {
	if ctx.Profile == nil {
		return "", fmt.Errorf("profile is required")
	}
	profileJSON, err := json.MarshalIndent(ctx.Profile, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode profile: %w", err)
	}

	slots := ctx.Slots
	if len(slots) > maxScheduleSlots {
		slots = slots[:maxScheduleSlots]
	}

	data := struct {
		Name     string
		Career   string
		Now      string
		Activity string
		Status   string
		Profile  string
		Slots    []types.ScheduleSlot
	}{
		Name:     ctx.Profile.Name,
		Career:   careerOrDefault(ctx.Profile.Career, "自由职业者"),
		Now:      ctx.Now.Format("15:04"),
		Activity: ctx.Activity,
		Status:   ctx.Status,
		Profile:  string(profileJSON),
		Slots:    slots,
	}

	var buf bytes.Buffer
	if err := dailyTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to build daily prompt: %w", err)
	}
	return buf.String(), nil
}

// EventContext contains the inputs for the event-dialogue system prompt.
type EventContext struct {
	Profile *types.AgentProfile
	Goals   *types.GoalSet
	Event   *types.Event
	Scene   string
}

// BuildEvent renders the event-dialogue system prompt, including the
// literal outcome markers the engine scans replies for.
func BuildEvent(ctx EventContext) (string, error) {
	if ctx.Profile == nil {
		return "", fmt.Errorf("profile is required")
	}
	if ctx.Event == nil {
		return "", fmt.Errorf("event is required")
	}
	profileJSON, err := json.Marshal(ctx.Profile)
	if err != nil {
		return "", fmt.Errorf("failed to encode profile: %w", err)
	}
	goalsJSON := []byte("[]")
	if ctx.Goals != nil {
		goalsJSON, err = json.Marshal(ctx.Goals.Goals)
		if err != nil {
			return "", fmt.Errorf("failed to encode goals: %w", err)
		}
	}

	data := struct {
		Name      string
		Career    string
		Profile   string
		Goals     string
		EventName string
		EventID   string
		Scene     string
	}{
		Name:      ctx.Profile.Name,
		Career:    careerOrDefault(ctx.Profile.Career, "专业人士"),
		Profile:   string(profileJSON),
		Goals:     string(goalsJSON),
		EventName: ctx.Event.Name,
		EventID:   ctx.Event.EventID,
		Scene:     ctx.Scene,
	}

	var buf bytes.Buffer
	if err := eventTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to build event prompt: %w", err)
	}
	return buf.String(), nil
}

func careerOrDefault(career, fallback string) string {
	if career == "" {
		return fallback
	}
	return career
}
