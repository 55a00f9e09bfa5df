package storage

import (
	"strings"
	"testing"
	"time"
)

func TestRawKey(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456000, time.UTC)
	key := RawKey("event_type=user_action/year=2024/month=01/day=15/hour=10", ts)

	want := "raw/event_type=user_action/year=2024/month=01/day=15/hour=10/data_20240115_103000_123456.json"
	if key != want {
		t.Fatalf("RawKey = %q, want %q", key, want)
	}
}

func TestIsRawObject(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"raw/event_type=metric/year=2024/month=01/day=15/hour=10/data_x.json", true},
		{"processed/event_type=metric/year=2024/month=01/day=15/hour=10/data_x.json", false},
		{"raw/some/object.parquet", false},
		{"other/data.json", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsRawObject(tt.key); got != tt.want {
			t.Errorf("IsRawObject(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestProcessedKey(t *testing.T) {
	ts := time.Date(2024, 1, 15, 11, 0, 0, 7000, time.UTC)
	src := "raw/event_type=transaction/year=2024/month=01/day=15/hour=10/data_20240115_103000_123456.json"

	got := ProcessedKey(src, ts)

	if !strings.HasPrefix(got, "processed/event_type=transaction/year=2024/month=01/day=15/hour=10/") {
		t.Fatalf("destination not under processed zone: %q", got)
	}
	if !strings.Contains(got, "_transformed_20240115_110000_000007") {
		t.Fatalf("missing transformation suffix: %q", got)
	}
	if !strings.HasSuffix(got, ".json") {
		t.Fatalf("missing extension: %q", got)
	}
	if got == src {
		t.Fatal("destination equals source")
	}
}

func TestProcessedKey_Unique(t *testing.T) {
	src := "raw/event_type=metric/year=2024/month=01/day=15/hour=10/data_a.json"
	a := ProcessedKey(src, time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC))
	b := ProcessedKey(src, time.Date(2024, 1, 15, 11, 0, 0, 1000, time.UTC))
	if a == b {
		t.Fatal("expected distinct destination keys for distinct write times")
	}
}

func TestSourceShard(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"events-raw/raw/event_type=metric/data.json", "events-raw"},
		{"no-slash", "unknown"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		if got := SourceShard(tt.key); got != tt.want {
			t.Errorf("SourceShard(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
