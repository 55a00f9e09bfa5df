// Package event defines the domain event model and the synthetic
// event generator that feeds the pipeline.
package event

import (
	"fmt"
	"time"
)

// Type identifies the kind of a domain event. The set is closed:
// anything outside it is rejected at the ingest boundary.
type Type string

const (
	TypeUserAction  Type = "user_action"
	TypeTransaction Type = "transaction"
	TypeMetric      Type = "metric"
	TypeSystemEvent Type = "system_event"
)

// Types lists all known event types in generation order.
var Types = []Type{TypeUserAction, TypeTransaction, TypeMetric, TypeSystemEvent}

// Known reports whether t is one of the four known event types.
func Known(t string) bool {
	switch Type(t) {
	case TypeUserAction, TypeTransaction, TypeMetric, TypeSystemEvent:
		return true
	}
	return false
}

// Event is a single domain event. Immutable once created.
type Event struct {
	EventID   string `json:"event_id"`
	EventType Type   `json:"event_type"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// UserAction is the payload of a user_action event.
type UserAction struct {
	UserID          string `json:"user_id"`
	Action          string `json:"action"`
	Page            string `json:"page"`
	SessionDuration int    `json:"session_duration"`
	Device          string `json:"device"`
	Browser         string `json:"browser"`
}

// Transaction is the payload of a transaction event.
type Transaction struct {
	TransactionID string  `json:"transaction_id"`
	UserID        string  `json:"user_id"`
	Type          string  `json:"type"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	Merchant      string  `json:"merchant"`
}

// Metric is the payload of a metric event.
type Metric struct {
	MetricName string  `json:"metric_name"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	Host       string  `json:"host"`
	Region     string  `json:"region"`
}

// SystemEvent is the payload of a system_event event.
type SystemEvent struct {
	EventName string `json:"event_name"`
	Service   string `json:"service"`
	Message   string `json:"message"`
	Severity  string `json:"severity"`
	Host      string `json:"host"`
}

// FormatTimestamp renders t as an RFC3339 UTC timestamp with a trailing
// "Z" suffix, the only timestamp form the pipeline emits.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.999999Z07:00")
}

// timestamp layouts accepted at the ingest boundary. RFC3339 covers
// both "Z" and explicit numeric offsets; the bare layout covers
// timestamps without zone information, which are treated as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// ParseTimestamp parses an ISO-8601 timestamp. A trailing "Z" is
// treated as the UTC offset +00:00.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
