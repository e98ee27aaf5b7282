package alert

import (
	"encoding/json"
	"time"
)

// Rule names carried on alert messages.
const (
	RuleBurst     = "burst"
	RuleImbalance = "imbalance"
)

// Message is one raised spotlight flag, published for downstream case
// intake. Score is the rule's numeric evidence (burst ratio or
// withdrawal/deposit ratio; zero for the no-deposits case).
type Message struct {
	RunID       string    `json:"run_id"`
	Rule        string    `json:"rule"`
	Score       float64   `json:"score"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewMessage creates an alert message stamped with the current time.
func NewMessage(runID, rule string, score float64, windowStart, windowEnd time.Time) *Message {
	return &Message{
		RunID:       runID,
		Rule:        rule,
		Score:       score,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MessageFromJSON creates a message from JSON bytes.
func MessageFromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
