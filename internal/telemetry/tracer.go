package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for span annotation. These follow OpenTelemetry
// semantic conventions where applicable.
const (
	// ========================================================================
	// Client / session attributes
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	AttrSessionID     = "session.id"
	AttrCourseID      = "course.id"
	AttrLessonID      = "lesson.id"
	AttrParticipantID = "participant.id"
	AttrUserID        = "user.id"
	AttrRole          = "user.role"

	// ========================================================================
	// Event / room attributes
	// ========================================================================
	AttrEvent     = "event.name"
	AttrUUID      = "event.uuid"
	AttrRoom      = "room.name"
	AttrTarget    = "target.participant_id"
	AttrOperation = "operation.name"
	AttrStatus    = "operation.status"
	AttrStatusMsg = "operation.status_msg"

	// ========================================================================
	// File store attributes
	// ========================================================================
	AttrProjectID = "file.project_id"
	AttrFilename  = "file.name"
	AttrSize      = "file.size"
	AttrOffset    = "file.offset"
	AttrTier      = "file.tier" // hot or cold

	// ========================================================================
	// Permission attributes
	// ========================================================================
	AttrMode = "permission.mode"

	// ========================================================================
	// Cache attributes
	// ========================================================================
	AttrCacheHit    = "cache.hit"
	AttrCacheSource = "cache.source"

	// ========================================================================
	// Storage backend attributes (object store tier)
	// ========================================================================
	AttrStoreName = "store.name"
	AttrStoreType = "store.type"
	AttrBucket    = "storage.bucket"
	AttrKey       = "storage.key"
	AttrRegion    = "storage.region"

	// ========================================================================
	// Pub/sub attributes
	// ========================================================================
	AttrChannel = "pubsub.channel"
)

// Span names for operations.
// Format: <component>.<operation>
const (
	// ========================================================================
	// Session lifecycle spans
	// ========================================================================
	SpanSessionConnect    = "session.connect"
	SpanSessionAuthorize  = "session.authorize"
	SpanSessionDisconnect = "session.disconnect"

	// ========================================================================
	// Dispatcher / event spans, one per wire event type
	// ========================================================================
	SpanDispatch         = "dispatcher.dispatch"
	SpanEventInitLesson  = "event.INIT_LESSON"
	SpanEventJoinRoom    = "event.JOIN_ROOM"
	SpanEventLeaveRoom   = "event.LEAVE_ROOM"
	SpanEventBroadcast   = "event.BROADCAST"
	SpanEventDirect      = "event.DIRECT_MESSAGE"
	SpanEventFileWrite   = "event.FILE_WRITE"
	SpanEventFileRead    = "event.FILE_READ"
	SpanEventFileDelete  = "event.FILE_DELETE"
	SpanEventFileList    = "event.FILE_LIST"
	SpanEventPermission  = "event.SET_PERMISSION"
	SpanEventFeedback    = "event.FEEDBACK"

	// ========================================================================
	// Internal storage operations
	// ========================================================================
	SpanCacheLookup   = "cache.lookup"
	SpanCacheWrite    = "cache.write"
	SpanCacheEvict    = "cache.evict"
	SpanFileRead      = "filestore.read"
	SpanFileWrite     = "filestore.write"
	SpanFileStat      = "filestore.stat"
	SpanFileDemote    = "filestore.demote"
	SpanFilePromote   = "filestore.promote"
	SpanMetaLookup    = "metadata.lookup"
	SpanMetaUpdate    = "metadata.update"
	SpanMetaCreate    = "metadata.create"
	SpanMetaDelete    = "metadata.delete"
	SpanPermCheck     = "permission.check"
	SpanPubSubPublish = "pubsub.publish"
	SpanPubSubDeliver = "pubsub.deliver"
)

// ClientIP returns an attribute for client IP address.
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address.
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// SessionID returns an attribute for session ID.
func SessionID(id string) attribute.KeyValue {
	return attribute.String(AttrSessionID, id)
}

// CourseID returns an attribute for course ID.
func CourseID(id int64) attribute.KeyValue {
	return attribute.Int64(AttrCourseID, id)
}

// LessonID returns an attribute for lesson ID.
func LessonID(id int64) attribute.KeyValue {
	return attribute.Int64(AttrLessonID, id)
}

// ParticipantID returns an attribute for participant ID.
func ParticipantID(id int64) attribute.KeyValue {
	return attribute.Int64(AttrParticipantID, id)
}

// UserID returns an attribute for user ID.
func UserID(id int64) attribute.KeyValue {
	return attribute.Int64(AttrUserID, id)
}

// Role returns an attribute for a participant's role (instructor, student).
func Role(role string) attribute.KeyValue {
	return attribute.String(AttrRole, role)
}

// Event returns an attribute for the wire event type name.
func Event(name string) attribute.KeyValue {
	return attribute.String(AttrEvent, name)
}

// UUID returns an attribute for a client-supplied event UUID.
func UUID(id string) attribute.KeyValue {
	return attribute.String(AttrUUID, id)
}

// Room returns an attribute for a room name.
func Room(name string) attribute.KeyValue {
	return attribute.String(AttrRoom, name)
}

// Target returns an attribute for the target participant of a direct message.
func Target(id int64) attribute.KeyValue {
	return attribute.Int64(AttrTarget, id)
}

// Operation returns an attribute for a generic operation name.
func Operation(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// OpStatus returns an attribute for operation status.
func OpStatus(status string) attribute.KeyValue {
	return attribute.String(AttrStatus, status)
}

// StatusMsg returns an attribute for a human-readable status message.
func StatusMsg(msg string) attribute.KeyValue {
	return attribute.String(AttrStatusMsg, msg)
}

// ProjectID returns an attribute for the project (file namespace) ID.
func ProjectID(id int64) attribute.KeyValue {
	return attribute.Int64(AttrProjectID, id)
}

// Filename returns an attribute for a file name.
func Filename(name string) attribute.KeyValue {
	return attribute.String(AttrFilename, name)
}

// Size returns an attribute for file size in bytes.
func Size(size uint64) attribute.KeyValue {
	return attribute.Int64(AttrSize, int64(size))
}

// Offset returns an attribute for a write/read offset.
func Offset(offset uint64) attribute.KeyValue {
	return attribute.Int64(AttrOffset, int64(offset))
}

// Tier returns an attribute for which storage tier served a file (hot/cold).
func Tier(tier string) attribute.KeyValue {
	return attribute.String(AttrTier, tier)
}

// Mode returns an attribute for a permission mode bitmask.
func Mode(mode uint32) attribute.KeyValue {
	return attribute.Int64(AttrMode, int64(mode))
}

// CacheHit returns an attribute for cache hit indicator.
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// CacheSource returns an attribute for cache source.
func CacheSource(source string) attribute.KeyValue {
	return attribute.String(AttrCacheSource, source)
}

// StoreName returns an attribute for store name.
func StoreName(name string) attribute.KeyValue {
	return attribute.String(AttrStoreName, name)
}

// StoreType returns an attribute for store type (hot, cold).
func StoreType(t string) attribute.KeyValue {
	return attribute.String(AttrStoreType, t)
}

// Bucket returns an attribute for S3 bucket name.
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StorageKey returns an attribute for S3 object key.
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// Region returns an attribute for cloud region.
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// Channel returns an attribute for a pub/sub channel name.
func Channel(name string) attribute.KeyValue {
	return attribute.String(AttrChannel, name)
}

// StartSessionSpan starts a span for a session lifecycle event.
func StartSessionSpan(ctx context.Context, name string, sessionID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{SessionID(sessionID)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartEventSpan starts a span for a dispatched wire event.
func StartEventSpan(ctx context.Context, eventType, uuid string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{Event(eventType)}
	if uuid != "" {
		allAttrs = append(allAttrs, UUID(uuid))
	}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, "event."+eventType, trace.WithAttributes(allAttrs...))
}

// StartFileSpan starts a span for a file store operation.
func StartFileSpan(ctx context.Context, operation string, projectID int64, filename string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{ProjectID(projectID), Filename(filename)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, "filestore."+operation, trace.WithAttributes(allAttrs...))
}

// StartCacheSpan starts a span for a cache operation.
func StartCacheSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "cache."+operation, trace.WithAttributes(attrs...))
}

// StartMetadataSpan starts a span for a metadata store operation.
func StartMetadataSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "metadata."+operation, trace.WithAttributes(attrs...))
}

// StartPubSubSpan starts a span for a cross-instance pub/sub operation.
func StartPubSubSpan(ctx context.Context, operation, channel string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{Channel(channel)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, "pubsub."+operation, trace.WithAttributes(allAttrs...))
}
