package types

// Event type labels. The values are the literal strings the narrative
// prompts instruct the model to emit.
const (
	EventTypeMain  = "主线"
	EventTypeSide  = "支线"
	EventTypeDaily = "日常"
	EventTypeTemp  = "临时事件"
)

// Event status labels stored inside the chain document.
const (
	EventStatusPending = "未完成"
	EventStatusSuccess = "成功"
	EventStatusFailure = "失败"
)

// IntroEventID is the reserved id of the first-encounter event generated
// eagerly at agent creation.
const IntroEventID = "E001"

// Impact describes the after-effects of an event on the agent.
type Impact struct {
	MentalChange    string `json:"mental_change"`
	KnowledgeGain   string `json:"knowledge_gain"`
	AffectionChange string `json:"affection_change"`
}

// Event is one narrative unit inside a stage.
type Event struct {
	EventID           string   `json:"event_id"`
	IssueID           string   `json:"issue_id,omitempty"`
	Type              string   `json:"type"`
	Name              string   `json:"name"`
	Time              string   `json:"time"`
	Location          string   `json:"location"`
	Characters        []string `json:"characters"`
	Cause             string   `json:"cause"`
	Process           string   `json:"process"`
	Result            string   `json:"result"`
	Impact            Impact   `json:"impact"`
	Importance        int      `json:"importance"`
	Urgency           int      `json:"urgency"`
	Tags              []string `json:"tags"`
	TriggerConditions []string `json:"trigger_conditions"`
	Dependencies      []string `json:"dependencies"`
	Status            string   `json:"status"`
	UpdatedAt         string   `json:"updated_at,omitempty"`
}

// Stage is one life phase holding a batch of events.
type Stage struct {
	Name      string  `json:"stage"`
	TimeRange string  `json:"time_range"`
	Goal      string  `json:"goal,omitempty"`
	Events    []Event `json:"events"`
}

// StageDescriptor is the stage planning output before events exist.
type StageDescriptor struct {
	Index     string `json:"index"`
	Name      string `json:"stage"`
	TimeRange string `json:"time_range"`
	Goal      string `json:"goal"`
	IsOrigin  string `json:"is_origin,omitempty"`
}

// EventChain is the whole persisted tree document for one agent. It is
// read, mutated in memory and rewritten wholesale; there is no event-level
// patching at the storage layer.
type EventChain struct {
	Version string  `json:"version"`
	Stages  []Stage `json:"event_tree"`
}

// FindEvent locates an event by id across all stages.
func (c *EventChain) FindEvent(eventID string) *Event {
	if c == nil {
		return nil
	}
	for si := range c.Stages {
		for ei := range c.Stages[si].Events {
			if c.Stages[si].Events[ei].EventID == eventID {
				return &c.Stages[si].Events[ei]
			}
		}
	}
	return nil
}

// IntroEvent returns the reserved first-encounter event, or nil.
func (c *EventChain) IntroEvent() *Event {
	return c.FindEvent(IntroEventID)
}

// MaxEventNumber returns the numeric part of the highest assigned E###
// id in the chain. Temporary events do not participate.
func (c *EventChain) MaxEventNumber() int {
	max := 0
	if c == nil {
		return 0
	}
	for _, stage := range c.Stages {
		for _, event := range stage.Events {
			if n, ok := parseEventNumber(event.EventID); ok && n > max {
				max = n
			}
		}
	}
	return max
}

func parseEventNumber(id string) (int, bool) {
	if len(id) < 2 || id[0] != 'E' {
		return 0, false
	}
	n := 0
	for _, r := range id[1:] {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
