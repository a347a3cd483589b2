package eventloop

import (
	"strings"
	"testing"
	"time"

	"github.com/easeaico/project-echo/internal/types"
)

func TestClassifyOutcome(t *testing.T) {
	cases := []struct {
		name   string
		reply  string
		status string
		ended  bool
	}{
		{"no marker", "我们继续聊聊吧。", "", false},
		{"success", "太好了！【事件结束：成功】", types.EventStatusSuccess, true},
		{"failure", "很遗憾。【事件结束：失败】", types.EventStatusFailure, true},
		{"success wins over failure", "【事件结束：失败】…不对，【事件结束：成功】", types.EventStatusSuccess, true},
		{"marker embedded in prose", "那天的事让我想起【事件结束：成功】这个结局。", types.EventStatusSuccess, true},
	}
	for _, tc := range cases {
		status, ended := ClassifyOutcome(tc.reply)
		if status != tc.status || ended != tc.ended {
			t.Fatalf("%s: got (%q, %v), want (%q, %v)", tc.name, status, ended, tc.status, tc.ended)
		}
	}
}

func TestDescribeScene(t *testing.T) {
	event := &types.Event{
		Location:   "海边咖啡馆",
		Characters: []string{"小雨", "用户"},
	}
	morning := time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local)
	got := DescribeScene(event, morning)
	want := "今天的时间是上午，我们正位于海边咖啡馆。阳光正好，一切都充满活力。现场有：小雨、用户。"
	if got != want {
		t.Fatalf("scene mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestDescribeSceneDefaults(t *testing.T) {
	night := time.Date(2026, 3, 1, 23, 0, 0, 0, time.Local)
	got := DescribeScene(&types.Event{}, night)
	if got == "" {
		t.Fatalf("expected a scene line")
	}
	for _, want := range []string{"夜晚", "一个安静的地方", "你们两人"} {
		if !strings.Contains(got, want) {
			t.Fatalf("scene %q missing %q", got, want)
		}
	}
}
