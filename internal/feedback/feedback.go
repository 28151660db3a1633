// Package feedback creates and modifies feedback threads and comments,
// with ACL and recipient computation. The dispatcher is responsible for
// authorizing the *target project* access (READ) before calling in; this
// package enforces the feedback-specific authorship/ACL rules.
package feedback

import (
	"context"
	"errors"
	"fmt"

	"github.com/classroomlive/classroomd/internal/metadata"
)

var (
	// ErrFeedbackNotFound covers a missing feedback/comment id.
	ErrFeedbackNotFound = errors.New("feedback: not found")
	// ErrFeedbackNotAuth is returned when a non-author attempts an
	// author-only modification.
	ErrFeedbackNotAuth = errors.New("feedback: not authorized")
)

// Engine operates on feedback threads and comments.
type Engine struct {
	store metadata.Store
}

// New builds an Engine.
func New(store metadata.Store) *Engine {
	return &Engine{store: store}
}

// Create finds-or-creates the CodeReference for (projectID, file, line),
// inserts a Feedback authored by authorParticipantID, materializes the ACL
// as the union of {ownerParticipantID, authorParticipantID} ∪ acl, and inserts the author's
// first comment.
func (e *Engine) Create(ctx context.Context, projectID, ownerParticipantID, authorParticipantID int64, file, line string, acl []int64, comment string) (*metadata.FeedbackThread, error) {
	ref, err := e.store.FindOrCreateCodeReference(ctx, projectID, file, line)
	if err != nil {
		return nil, fmt.Errorf("feedback: find or create code reference: %w", err)
	}

	fb, err := e.store.CreateFeedback(ctx, ref.ID, authorParticipantID)
	if err != nil {
		return nil, fmt.Errorf("feedback: create feedback: %w", err)
	}

	viewers := unionWithOwner(acl, ownerParticipantID, authorParticipantID)
	if err := e.store.SetFeedbackViewers(ctx, fb.ID, viewers); err != nil {
		return nil, fmt.Errorf("feedback: set viewers: %w", err)
	}

	c, err := e.store.CreateComment(ctx, fb.ID, authorParticipantID, comment)
	if err != nil {
		return nil, fmt.Errorf("feedback: create first comment: %w", err)
	}

	return &metadata.FeedbackThread{Feedback: *fb, Ref: *ref, Comments: []metadata.Comment{*c}}, nil
}

func unionWithOwner(acl []int64, ids ...int64) []int64 {
	set := make(map[int64]struct{}, len(acl)+len(ids))
	for _, id := range acl {
		set[id] = struct{}{}
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Modify is author-only: it reconciles the feedback's ACL to exactly acl
// (plus the requesting author, who always stays a viewer) and toggles
// resolved if changed.
func (e *Engine) Modify(ctx context.Context, feedbackID, requesterParticipantID int64, acl []int64, resolved bool) (*metadata.FeedbackThread, error) {
	fb, err := e.store.GetFeedback(ctx, feedbackID)
	if err != nil {
		if err == metadata.ErrNotFound {
			return nil, ErrFeedbackNotFound
		}
		return nil, fmt.Errorf("feedback: get feedback: %w", err)
	}
	if fb.AuthorParticipantID != requesterParticipantID {
		return nil, ErrFeedbackNotAuth
	}

	viewers := unionWithOwner(acl, fb.AuthorParticipantID)
	if err := e.store.SetFeedbackViewers(ctx, feedbackID, viewers); err != nil {
		return nil, fmt.Errorf("feedback: set viewers: %w", err)
	}

	if fb.Resolved != resolved {
		if err := e.store.SetResolved(ctx, feedbackID, resolved); err != nil {
			return nil, fmt.Errorf("feedback: set resolved: %w", err)
		}
		fb.Resolved = resolved
	}

	ref, err := e.store.GetCodeReference(ctx, fb.CodeRefID)
	if err != nil {
		return nil, fmt.Errorf("feedback: get code reference: %w", err)
	}
	return &metadata.FeedbackThread{Feedback: *fb, Ref: *ref}, nil
}

// Recipients returns the currently-valid ACL participant ids for a
// feedback thread, the fan-out target for every FEEDBACK_* event.
func (e *Engine) Recipients(ctx context.Context, feedbackID int64) ([]int64, error) {
	viewers, err := e.store.GetFeedbackViewers(ctx, feedbackID)
	if err != nil {
		return nil, fmt.Errorf("feedback: get viewers: %w", err)
	}
	var ids []int64
	for _, v := range viewers {
		if v.Valid {
			ids = append(ids, v.ParticipantID)
		}
	}
	return ids, nil
}

// AddComment requires the commenter to hold a valid FeedbackViewer row.
func (e *Engine) AddComment(ctx context.Context, feedbackID, commenterParticipantID int64, content string) (*metadata.Comment, error) {
	if err := e.requireViewer(ctx, feedbackID, commenterParticipantID); err != nil {
		return nil, err
	}
	c, err := e.store.CreateComment(ctx, feedbackID, commenterParticipantID, content)
	if err != nil {
		return nil, fmt.Errorf("feedback: create comment: %w", err)
	}
	return c, nil
}

func (e *Engine) requireViewer(ctx context.Context, feedbackID, participantID int64) error {
	viewers, err := e.store.GetFeedbackViewers(ctx, feedbackID)
	if err != nil {
		return fmt.Errorf("feedback: get viewers: %w", err)
	}
	for _, v := range viewers {
		if v.ParticipantID == participantID && v.Valid {
			return nil
		}
	}
	return ErrFeedbackNotAuth
}

// ModifyComment supports author-only content edit and/or soft-delete.
func (e *Engine) ModifyComment(ctx context.Context, commentID, requesterParticipantID int64, content *string, delete bool) (*metadata.Comment, error) {
	c, err := e.store.GetComment(ctx, commentID)
	if err != nil {
		if err == metadata.ErrNotFound {
			return nil, ErrFeedbackNotFound
		}
		return nil, fmt.Errorf("feedback: get comment: %w", err)
	}
	if c.AuthorParticipantID != requesterParticipantID {
		return nil, ErrFeedbackNotAuth
	}

	if delete {
		if err := e.store.DeleteComment(ctx, commentID); err != nil {
			return nil, fmt.Errorf("feedback: delete comment: %w", err)
		}
		c.Deleted = true
		return c, nil
	}
	if content != nil {
		c, err = e.store.UpdateComment(ctx, commentID, *content)
		if err != nil {
			return nil, fmt.Errorf("feedback: update comment: %w", err)
		}
	}
	return c, nil
}

// ListLessonRollup returns the FEEDBACK_LIST response payload: every
// feedback thread in the lesson, optionally filtered to one owner project
// and file.
func (e *Engine) ListLessonRollup(ctx context.Context, lessonID int64, ownerProjectID *int64, file *string) ([]metadata.FeedbackThread, error) {
	threads, err := e.store.ListLessonFeedback(ctx, lessonID, ownerProjectID, file)
	if err != nil {
		return nil, fmt.Errorf("feedback: list lesson feedback: %w", err)
	}
	return threads, nil
}
