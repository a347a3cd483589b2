package types

// Activity status labels used by schedule slots and dialog messages.
const (
	ActivityIdle     = "空闲"
	ActivityPartBusy = "一般忙碌"
	ActivityBusy     = "忙碌"
)

// ScheduleSlot is one time window in a day plan. Times are "HH:MM".
type ScheduleSlot struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Activity  string `json:"activity"`
	Status    string `json:"status"`
}

// WeeklySchedule maps a Chinese weekday name (周一..周日) to its ordered
// slots. Generated once per agent and consulted read-only afterwards.
type WeeklySchedule map[string][]ScheduleSlot
