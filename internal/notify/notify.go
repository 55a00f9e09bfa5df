// Package notify carries object-created notifications between pipeline
// stages as CloudEvents over the stream transport.
package notify

import (
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Event attributes for object-created notifications.
const (
	EventType   = "com.lakeflow.object.created"
	EventSource = "lakeflow/ingest"
)

// ObjectCreated announces a newly written raw-zone object.
type ObjectCreated struct {
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	RecordCount int    `json:"record_count"`
}

// Encode wraps the notification in a structured-mode CloudEvent.
func Encode(oc ObjectCreated) ([]byte, error) {
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetType(EventType)
	e.SetSource(EventSource)
	e.SetSubject(oc.Key)
	if err := e.SetData(cloudevents.ApplicationJSON, oc); err != nil {
		return nil, fmt.Errorf("set event data: %w", err)
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return payload, nil
}

// Decode parses a structured-mode CloudEvent back into the
// notification. Events of a different type are rejected.
func Decode(payload []byte) (ObjectCreated, error) {
	var e cloudevents.Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return ObjectCreated{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if e.Type() != EventType {
		return ObjectCreated{}, fmt.Errorf("unexpected event type %q", e.Type())
	}

	var oc ObjectCreated
	if err := e.DataAs(&oc); err != nil {
		return ObjectCreated{}, fmt.Errorf("decode event data: %w", err)
	}
	if oc.Key == "" {
		return ObjectCreated{}, fmt.Errorf("notification has no object key")
	}
	return oc, nil
}
