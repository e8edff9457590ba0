package bridge

import (
	"encoding/json"
	"fmt"

	"torrentbridge/internal/domain"
)

// encodeEvent renders an event as a flat frame: the event's own fields plus
// "type".
func encodeEvent(ev domain.Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", ev.EventType(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("flatten %s event: %w", ev.EventType(), err)
	}
	typ, _ := json.Marshal(ev.EventType())
	fields["type"] = typ
	return json.Marshal(fields)
}
