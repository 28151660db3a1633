package metadata

import "context"

// ParticipantStore provides participant lookup and presence updates.
type ParticipantStore interface {
	// GetParticipant returns a participant by id. Returns ErrNotFound if
	// absent.
	GetParticipant(ctx context.Context, id int64) (*Participant, error)
	// GetParticipantByUser returns the (courseID, userID) participant.
	// Returns ErrNotFound if the user is not a participant of the course,
	// the precondition behind the ACCESS_COURSE_FAIL wire error.
	GetParticipantByUser(ctx context.Context, courseID, userID int64) (*Participant, error)
	// ListParticipants returns every participant of a course, teacher
	// first then students by id.
	ListParticipants(ctx context.Context, courseID int64) ([]*Participant, error)
	// SetActive toggles a participant's presence flag and returns whether
	// the value actually changed, so callers broadcast a status change
	// exactly once.
	SetActive(ctx context.Context, id int64, active bool) (changed bool, err error)
}

// LessonStore resolves lesson coordinates and template archive keys.
type LessonStore interface {
	GetLesson(ctx context.Context, id int64) (*Lesson, error)
}

// ProjectStore manages the per-(lesson,participant) project row and its
// template-applied / activity bookkeeping.
type ProjectStore interface {
	// GetProject returns the project for (lessonID, participantID).
	// Returns ErrNotFound if none has been created yet.
	GetProject(ctx context.Context, lessonID, participantID int64) (*Project, error)
	GetProjectByID(ctx context.Context, id int64) (*Project, error)
	// CreateProject lazily creates a project row on first lesson entry.
	// Concurrent calls for the same (lessonID, participantID) must not
	// produce duplicate rows (upsert/on-conflict semantics).
	CreateProject(ctx context.Context, lessonID, participantID int64) (*Project, error)
	// MarkTemplateApplied flips TemplateApplied true, guarding template
	// rehydration against being run twice. Returns false if it was
	// already applied (no-op).
	MarkTemplateApplied(ctx context.Context, projectID int64) (applied bool, err error)
	TouchActivity(ctx context.Context, projectID int64) error
}

// ACLStore manages ProjectViewer edges.
type ACLStore interface {
	// GetEdge returns the ACL edge for (viewerParticipantID, projectID).
	// Returns ErrNotFound if no edge exists (distinct from Permission=0).
	GetEdge(ctx context.Context, viewerParticipantID, projectID int64) (*ProjectViewer, error)
	// SetPermission upserts the edge's permission bits, returning the
	// previous value (PermNone and ErrNotFound both collapse to "no prior
	// edge" for the caller's added/removed bit computation; the caller
	// distinguishes via the returned existed flag).
	SetPermission(ctx context.Context, projectID, viewerParticipantID int64, perm Permission) (previous Permission, existed bool, err error)
	// AccessibleTo returns every ACL edge whose viewer is
	// viewerParticipantID, zero-permission edges included; no display
	// default is applied.
	AccessibleTo(ctx context.Context, viewerParticipantID int64) ([]ProjectViewer, error)
	// AccessedBy returns every ACL edge granted on projectID.
	AccessedBy(ctx context.Context, projectID int64) ([]ProjectViewer, error)
}

// CodeReferenceStore manages code references, including bulk rewrite on
// rename.
type CodeReferenceStore interface {
	FindOrCreateCodeReference(ctx context.Context, projectID int64, file, line string) (*CodeReference, error)
	GetCodeReference(ctx context.Context, id int64) (*CodeReference, error)
	// RewriteFilePrefix updates every code reference in projectID whose
	// File equals oldPath or is nested under oldPath+"/" so it instead
	// starts with newPath, supporting both single-file and directory
	// renames.
	RewriteFilePrefix(ctx context.Context, projectID int64, oldPath, newPath string) error
	// MarkDeletedByPrefix soft-deletes every code reference under a
	// deleted file or directory.
	MarkDeletedByPrefix(ctx context.Context, projectID int64, pathPrefix string) error
}

// FeedbackStore manages feedback threads, their ACL, and comments.
type FeedbackStore interface {
	CreateFeedback(ctx context.Context, codeRefID, authorParticipantID int64) (*Feedback, error)
	GetFeedback(ctx context.Context, id int64) (*Feedback, error)
	SetResolved(ctx context.Context, id int64, resolved bool) error

	GetFeedbackViewers(ctx context.Context, feedbackID int64) ([]FeedbackViewer, error)
	// SetFeedbackViewers reconciles the ACL to exactly wantParticipantIDs:
	// missing rows are created, present-but-invalid rows are revalidated,
	// rows outside the set are invalidated (Valid=false), never deleted.
	SetFeedbackViewers(ctx context.Context, feedbackID int64, wantParticipantIDs []int64) error

	CreateComment(ctx context.Context, feedbackID, authorParticipantID int64, content string) (*Comment, error)
	GetComment(ctx context.Context, id int64) (*Comment, error)
	UpdateComment(ctx context.Context, id int64, content string) (*Comment, error)
	DeleteComment(ctx context.Context, id int64) error

	// ListLessonFeedback returns the full per-lesson feedback roll-up
	// (feedback + code reference + comments) for the FEEDBACK_LIST /
	// FEEDBACK_ADD / FEEDBACK_MOD response payload, optionally filtered to
	// one owner project and file.
	ListLessonFeedback(ctx context.Context, lessonID int64, ownerProjectID *int64, file *string) ([]FeedbackThread, error)
}

// FeedbackThread is the decorated roll-up returned to clients: a Feedback
// plus its CodeReference and Comments, so clients render file/line context
// without a second lookup.
type FeedbackThread struct {
	Feedback Feedback
	Ref      CodeReference
	Comments []Comment
}

// Store is the full metadata store, composed of the sub-interfaces above.
// Handlers should accept the narrowest sub-interface they need.
type Store interface {
	ParticipantStore
	LessonStore
	ProjectStore
	ACLStore
	CodeReferenceStore
	FeedbackStore

	Close() error
}
