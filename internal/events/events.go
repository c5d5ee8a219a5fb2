package events

import (
	"encoding/json"
	"time"
)

// Event is the SSE envelope pushed to subscribed UIs.
type Event struct {
	Type      string          `json:"type"`
	Version   int             `json:"v"`
	At        time.Time       `json:"at"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

const (
	TypeLeadCreated   = "lead_created"
	TypeLeadDuplicate = "lead_duplicate"
	TypePing          = "ping"
)

func MakeEvent(reqID, typ string, v int, data any) string {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	e := Event{
		Type:      typ,
		Version:   v,
		At:        time.Now().UTC(),
		RequestID: reqID,
		Data:      raw,
	}
	b, _ := json.Marshal(e)
	return string(b)
}

// LeadCreated announces a freshly stored lead.
func LeadCreated(leadID int64, company string) string {
	return MakeEvent("", TypeLeadCreated, 1, map[string]any{
		"lead_id": leadID,
		"company": company,
	})
}

// LeadDuplicate announces that an existing row got its duplicate flag set.
func LeadDuplicate(leadID int64) string {
	return MakeEvent("", TypeLeadDuplicate, 1, map[string]any{
		"lead_id": leadID,
	})
}
