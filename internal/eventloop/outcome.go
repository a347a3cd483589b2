package eventloop

import (
	"strings"

	"github.com/easeaico/project-echo/internal/types"
)

// Outcome markers the event prompt instructs the model to emit verbatim.
const (
	MarkerSuccess = "【事件结束：成功】"
	MarkerFailure = "【事件结束：失败】"
)

// ClassifyOutcome scans a model reply for the outcome markers. The success
// marker wins when a reply carries both, so the status and the marker the
// user read never disagree in the agent's favor.
func ClassifyOutcome(reply string) (status string, ended bool) {
	if strings.Contains(reply, MarkerSuccess) {
		return types.EventStatusSuccess, true
	}
	if strings.Contains(reply, MarkerFailure) {
		return types.EventStatusFailure, true
	}
	return "", false
}
