package eventloop

import (
	"strings"
	"time"

	"github.com/easeaico/project-echo/internal/types"
)

// timeDescriptions flavors the scene line by time of day.
var timeDescriptions = map[string]string{
	"清晨": "晨光微露，空气清新",
	"上午": "阳光正好，一切都充满活力",
	"中午": "日头正盛，正是用餐休息的时候",
	"下午": "午后的时光舒缓而悠长",
	"傍晚": "夕阳西下，天色渐渐暗了下来",
	"夜晚": "夜幕低垂，四周安静了下来",
}

// timeOfDay maps a clock hour to the narrative time label.
func timeOfDay(hour int) string {
	switch {
	case hour >= 5 && hour < 8:
		return "清晨"
	case hour >= 8 && hour < 12:
		return "上午"
	case hour >= 12 && hour < 14:
		return "中午"
	case hour >= 14 && hour < 18:
		return "下午"
	case hour >= 18 && hour < 20:
		return "傍晚"
	default:
		return "夜晚"
	}
}

// DescribeScene renders the opening scene line for an event dialogue.
func DescribeScene(event *types.Event, now time.Time) string {
	label := timeOfDay(now.Hour())
	location := event.Location
	if location == "" {
		location = "一个安静的地方"
	}
	characters := strings.Join(event.Characters, "、")
	if characters == "" {
		characters = "你们两人"
	}
	var b strings.Builder
	b.WriteString("今天的时间是")
	b.WriteString(label)
	b.WriteString("，我们正位于")
	b.WriteString(location)
	b.WriteString("。")
	b.WriteString(timeDescriptions[label])
	b.WriteString("。现场有：")
	b.WriteString(characters)
	b.WriteString("。")
	return b.String()
}
