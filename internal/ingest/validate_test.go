package ingest

import (
	"strings"
	"testing"
)

func validRecord() map[string]any {
	return map[string]any{
		"event_id":   "e-1",
		"event_type": "user_action",
		"timestamp":  "2024-01-15T10:30:00Z",
		"data":       map[string]any{"user_id": "user_1234"},
	}
}

func TestValidate_ValidRecord(t *testing.T) {
	if err := Validate(validRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MissingFields(t *testing.T) {
	for _, field := range []string{"timestamp", "event_type", "data"} {
		t.Run(field, func(t *testing.T) {
			rec := validRecord()
			delete(rec, field)

			err := Validate(rec)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), field) {
				t.Fatalf("error %q does not mention %q", err, field)
			}
		})
	}
}

func TestValidate_InvalidTimestamp(t *testing.T) {
	rec := validRecord()
	rec["timestamp"] = "invalid-timestamp"

	err := Validate(rec)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "timestamp") {
		t.Fatalf("error %q does not mention timestamp", err)
	}
}

func TestValidate_NonStringTimestamp(t *testing.T) {
	rec := validRecord()
	rec["timestamp"] = 12345

	if err := Validate(rec); err == nil {
		t.Fatal("expected error for non-string timestamp")
	}
}

func TestValidate_UnknownEventType(t *testing.T) {
	rec := validRecord()
	rec["event_type"] = "mystery_event"

	err := Validate(rec)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "invalid event_type") {
		t.Fatalf("error %q does not mention event_type", err)
	}
}

func TestValidate_AllKnownEventTypes(t *testing.T) {
	for _, et := range []string{"user_action", "transaction", "metric", "system_event"} {
		rec := validRecord()
		rec["event_type"] = et
		if err := Validate(rec); err != nil {
			t.Errorf("type %q rejected: %v", et, err)
		}
	}
}
