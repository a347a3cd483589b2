package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/easeaico/project-echo/internal/types"
)

type fakeCompleter struct {
	reply string
	err   error
	calls int
}

func (f *fakeCompleter) Complete(ctx context.Context, msgs []types.ChatMessage, opts *types.CompleteOptions) (string, error) {
	f.calls++
	return f.reply, f.err
}

func TestGenerateParsesModelOutput(t *testing.T) {
	reply := `{
		"周一": [{"start_time": "09:00", "end_time": "18:00", "activity": "画画", "status": "忙碌"}],
		"周二": [], "周三": [], "周四": [], "周五": [], "周六": [], "周日": []
	}`
	g := NewGenerator(&fakeCompleter{reply: reply})

	schedule := g.Generate(context.Background(), &types.AgentProfile{Name: "小雨", Career: "插画师"})
	if len(schedule["周一"]) != 1 || schedule["周一"][0].Activity != "画画" {
		t.Fatalf("unexpected schedule: %+v", schedule)
	}
}

func TestGenerateFallsBackOnError(t *testing.T) {
	g := NewGenerator(&fakeCompleter{err: errors.New("boom")})

	schedule := g.Generate(context.Background(), &types.AgentProfile{Career: "教师", Hobbies: []string{"摄影"}})
	if len(schedule) != 7 {
		t.Fatalf("expected all seven days, got %d", len(schedule))
	}
	if schedule["周一"][1].Activity != "教师" {
		t.Fatalf("default workday should use the career, got %+v", schedule["周一"][1])
	}
	if schedule["周六"][1].Activity != "摄影" {
		t.Fatalf("default weekend should use the hobby, got %+v", schedule["周六"][1])
	}
}

func TestGenerateFallsBackOnMissingWeekday(t *testing.T) {
	g := NewGenerator(&fakeCompleter{reply: `{"周一": []}`})

	schedule := g.Generate(context.Background(), &types.AgentProfile{})
	if len(schedule) != 7 {
		t.Fatalf("expected the default template, got %d days", len(schedule))
	}
}

func TestCurrentStatusMatchesWindow(t *testing.T) {
	slots := []types.ScheduleSlot{
		{StartTime: "09:00", EndTime: "12:00", Activity: "工作", Status: types.ActivityBusy},
		{StartTime: "12:00", EndTime: "13:00", Activity: "午餐", Status: types.ActivityIdle},
	}

	at := time.Date(2026, 3, 2, 11, 59, 0, 0, time.UTC)
	activity, status := CurrentStatus(slots, at)
	if activity != "工作" || status != types.ActivityBusy {
		t.Fatalf("unexpected status at 11:59: %s/%s", activity, status)
	}

	// window end is exclusive, the next slot starts
	at = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	activity, status = CurrentStatus(slots, at)
	if activity != "午餐" || status != types.ActivityIdle {
		t.Fatalf("unexpected status at 12:00: %s/%s", activity, status)
	}
}

func TestCurrentStatusDefaultsToIdle(t *testing.T) {
	slots := []types.ScheduleSlot{
		{StartTime: "09:00", EndTime: "12:00", Activity: "工作", Status: types.ActivityBusy},
	}
	activity, status := CurrentStatus(slots, time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC))
	if activity != "无安排" || status != types.ActivityIdle {
		t.Fatalf("expected idle default, got %s/%s", activity, status)
	}
}

func TestSlotsForUsesChineseWeekday(t *testing.T) {
	schedule := DefaultSchedule(&types.AgentProfile{Career: "医生"})

	// 2026-03-07 is a Saturday
	slots := SlotsFor(schedule, time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC))
	if len(slots) != 6 {
		t.Fatalf("expected weekend slots, got %d", len(slots))
	}
	if WeekdayName(time.Monday) != "周一" || WeekdayName(time.Sunday) != "周日" {
		t.Fatalf("weekday mapping broken")
	}
}
