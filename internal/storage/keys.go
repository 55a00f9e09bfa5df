package storage

import (
	"fmt"
	"strings"
	"time"
)

// Zone prefixes for validated-but-unenriched and enriched objects.
const (
	RawPrefix       = "raw/"
	ProcessedPrefix = "processed/"
)

// ObjectName builds a uniquely named object file for a write at t.
// The microsecond suffix keeps objects for the same partition from
// colliding across invocations.
func ObjectName(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("data_%s_%06d.json", t.Format("20060102_150405"), t.Nanosecond()/1000)
}

// RawKey builds the raw-zone key for a partition path and write time.
func RawKey(partition string, t time.Time) string {
	return RawPrefix + partition + "/" + ObjectName(t)
}

// IsRawObject reports whether key names a raw-zone object the
// transformer should pick up.
func IsRawObject(key string) bool {
	return strings.HasPrefix(key, RawPrefix) && strings.HasSuffix(key, ".json")
}

// ProcessedKey derives the processed-zone destination key from a
// raw-zone source key, substituting the zone prefix and injecting a
// transformation suffix so repeated transforms never collide.
func ProcessedKey(sourceKey string, t time.Time) string {
	key := strings.Replace(sourceKey, RawPrefix, ProcessedPrefix, 1)
	t = t.UTC()
	suffix := fmt.Sprintf("_transformed_%s_%06d.json", t.Format("20060102_150405"), t.Nanosecond()/1000)
	return strings.TrimSuffix(key, ".json") + suffix
}

// SourceShard extracts the shard identifier from a source key's first
// path segment.
func SourceShard(sourceKey string) string {
	if first, _, ok := strings.Cut(sourceKey, "/"); ok {
		return first
	}
	return "unknown"
}
