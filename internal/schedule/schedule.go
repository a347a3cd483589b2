// Package schedule generates and queries agent weekly schedules.
package schedule

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

// Completer is the LLM call the generator needs.
type Completer interface {
	Complete(ctx context.Context, msgs []types.ChatMessage, opts *types.CompleteOptions) (string, error)
}

var scheduleTmpl = template.Must(template.New("schedule").Parse(`请根据以下角色信息，为其生成一个合理的周日程表。
角色信息：
{{.Profile}}

请以JSON格式输出，键为周一到周日，每天是一个时间段数组，每个时间段包含 start_time、end_time、activity、status 四个字段。
status 只能取：空闲、一般忙碌、忙碌。

示例格式：
{
  "周一": [
    {"start_time": "09:00", "end_time": "12:00", "activity": "工作", "status": "忙碌"},
    {"start_time": "12:00", "end_time": "13:00", "activity": "午餐", "status": "空闲"}
  ],
  "周二": []
}`))

// Weekday names as stored in the schedule document, Monday first.
var weekdayNames = [7]string{"周日", "周一", "周二", "周三", "周四", "周五", "周六"}

// Generator builds a weekly schedule from the agent persona, falling back
// to a deterministic template when the model output is unusable.
type Generator struct {
	llm Completer
}

// NewGenerator returns a Generator.
func NewGenerator(llm Completer) *Generator {
	return &Generator{llm: llm}
}

// Generate never fails: every error path degrades to the default template.
func (g *Generator) Generate(ctx context.Context, profile *types.AgentProfile) types.WeeklySchedule {
	prompt, err := renderPrompt(profile)
	if err != nil {
		slog.Error("failed to render schedule prompt", "error", err.Error())
		return DefaultSchedule(profile)
	}

	reply, err := g.llm.Complete(ctx, []types.ChatMessage{{Role: types.RoleUser, Content: prompt}}, nil)
	if err != nil {
		slog.Error("failed to generate schedule", "agent", profile.Name, "error", err.Error())
		return DefaultSchedule(profile)
	}

	var schedule types.WeeklySchedule
	if err := utils.ExtractJSONObject(reply, &schedule); err != nil {
		slog.Error("failed to parse schedule output", "agent", profile.Name, "error", err.Error())
		return DefaultSchedule(profile)
	}
	for _, day := range weekdayNames {
		if _, ok := schedule[day]; !ok {
			slog.Warn("schedule output missing weekday, using default", "agent", profile.Name, "day", day)
			return DefaultSchedule(profile)
		}
	}
	return schedule
}

func renderPrompt(profile *types.AgentProfile) (string, error) {
	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode profile: %w", err)
	}
	var buf bytes.Buffer
	if err := scheduleTmpl.Execute(&buf, map[string]string{"Profile": string(data)}); err != nil {
		return "", fmt.Errorf("failed to render schedule template: %w", err)
	}
	return buf.String(), nil
}

// DefaultSchedule is the deterministic fallback: workdays built around the
// agent's career, weekends around hobbies.
func DefaultSchedule(profile *types.AgentProfile) types.WeeklySchedule {
	occupation := "自由职业"
	hobby := "阅读"
	if profile != nil {
		if profile.Career != "" {
			occupation = profile.Career
		}
		if len(profile.Hobbies) > 0 && profile.Hobbies[0] != "" {
			hobby = profile.Hobbies[0]
		}
	}

	workday := []types.ScheduleSlot{
		{StartTime: "07:00", EndTime: "08:00", Activity: "晨间准备", Status: types.ActivityPartBusy},
		{StartTime: "08:00", EndTime: "12:00", Activity: occupation, Status: types.ActivityBusy},
		{StartTime: "12:00", EndTime: "13:00", Activity: "午餐", Status: types.ActivityIdle},
		{StartTime: "13:00", EndTime: "17:00", Activity: occupation, Status: types.ActivityBusy},
		{StartTime: "17:00", EndTime: "18:00", Activity: "通勤/休息", Status: types.ActivityPartBusy},
		{StartTime: "18:00", EndTime: "19:00", Activity: "晚餐", Status: types.ActivityIdle},
		{StartTime: "19:00", EndTime: "21:00", Activity: hobby, Status: types.ActivityPartBusy},
		{StartTime: "21:00", EndTime: "23:00", Activity: "个人时间", Status: types.ActivityIdle},
	}
	weekend := []types.ScheduleSlot{
		{StartTime: "08:00", EndTime: "09:00", Activity: "早餐", Status: types.ActivityIdle},
		{StartTime: "09:00", EndTime: "12:00", Activity: hobby, Status: types.ActivityPartBusy},
		{StartTime: "12:00", EndTime: "13:00", Activity: "午餐", Status: types.ActivityIdle},
		{StartTime: "13:00", EndTime: "17:00", Activity: "社交/休闲", Status: types.ActivityPartBusy},
		{StartTime: "17:00", EndTime: "19:00", Activity: "晚餐", Status: types.ActivityIdle},
		{StartTime: "19:00", EndTime: "22:00", Activity: "娱乐", Status: types.ActivityIdle},
	}

	return types.WeeklySchedule{
		"周一": workday,
		"周二": workday,
		"周三": workday,
		"周四": workday,
		"周五": workday,
		"周六": weekend,
		"周日": weekend,
	}
}

// WeekdayName maps a Go weekday to the document's Chinese key.
func WeekdayName(day time.Weekday) string {
	return weekdayNames[int(day)]
}

// SlotsFor returns the slots for the weekday of the given instant.
func SlotsFor(schedule types.WeeklySchedule, now time.Time) []types.ScheduleSlot {
	if schedule == nil {
		return nil
	}
	return schedule[WeekdayName(now.Weekday())]
}

// CurrentStatus scans slots for the one containing now (half-open window).
// No match means the agent is unoccupied.
func CurrentStatus(slots []types.ScheduleSlot, now time.Time) (activity, status string) {
	minutes := now.Hour()*60 + now.Minute()
	for _, slot := range slots {
		start, okStart := parseMinutes(slot.StartTime)
		end, okEnd := parseMinutes(slot.EndTime)
		if !okStart || !okEnd {
			continue
		}
		if start <= minutes && minutes < end {
			return slot.Activity, slot.Status
		}
	}
	return "无安排", types.ActivityIdle
}

func parseMinutes(clock string) (int, bool) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
