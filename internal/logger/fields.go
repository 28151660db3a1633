package logger

import (
	"log/slog"
)

// Standard field keys for structured logging, used consistently across the
// dispatcher, handlers, and substrate packages so log aggregation can filter
// on a stable vocabulary.
const (
	// Distributed tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Connection / session
	KeySessionID     = "sid"
	KeyCourseID      = "course_id"
	KeyLessonID      = "lesson_id"
	KeyParticipantID = "participant_id"
	KeyUserID        = "user_id"
	KeyClientIP      = "client_ip"

	// Protocol
	KeyEvent  = "event"
	KeyUUID   = "uuid"
	KeyRoom   = "room"
	KeyTarget = "target_id"

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeySource     = "source"
	KeyOperation  = "operation"

	// File store
	KeyProjectID = "project_id"
	KeyFilename  = "filename"
	KeySize      = "size"
	KeyBucket    = "bucket"
	KeyKey       = "key"

	// Cache
	KeyCacheHit = "cache_hit"
)

func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }
func SpanID(id string) slog.Attr  { return slog.String(KeySpanID, id) }

func SessionID(id string) slog.Attr     { return slog.String(KeySessionID, id) }
func CourseID(id int64) slog.Attr       { return slog.Int64(KeyCourseID, id) }
func LessonID(id int64) slog.Attr       { return slog.Int64(KeyLessonID, id) }
func ParticipantID(id int64) slog.Attr  { return slog.Int64(KeyParticipantID, id) }
func UserID(id int64) slog.Attr         { return slog.Int64(KeyUserID, id) }
func ClientIP(addr string) slog.Attr    { return slog.String(KeyClientIP, addr) }

func Event(name string) slog.Attr { return slog.String(KeyEvent, name) }
func UUID(id string) slog.Attr    { return slog.String(KeyUUID, id) }
func Room(name string) slog.Attr  { return slog.String(KeyRoom, name) }
func Target(id int64) slog.Attr   { return slog.Int64(KeyTarget, id) }

func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

func Source(src string) slog.Attr       { return slog.String(KeySource, src) }
func Operation(op string) slog.Attr     { return slog.String(KeyOperation, op) }
func ProjectID(id int64) slog.Attr      { return slog.Int64(KeyProjectID, id) }
func Filename(name string) slog.Attr    { return slog.String(KeyFilename, name) }
func Size(s uint64) slog.Attr           { return slog.Uint64(KeySize, s) }
func Bucket(name string) slog.Attr      { return slog.String(KeyBucket, name) }
func Key(k string) slog.Attr            { return slog.String(KeyKey, k) }
func CacheHit(hit bool) slog.Attr       { return slog.Bool(KeyCacheHit, hit) }
