// Package handlers' feedback.go wires internal/feedback's Engine into the
// dispatcher: the FEEDBACK_* verbs. The dispatcher authorizes the
// *project* (READ on the target project for LIST/ADD); the feedback engine
// enforces authorship and ACL membership for everything beyond that.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/classroomlive/classroomd/internal/dispatcher"
	"github.com/classroomlive/classroomd/internal/feedback"
	"github.com/classroomlive/classroomd/internal/metadata"
	"github.com/classroomlive/classroomd/internal/rooms"
)

func init() {
	dispatcher.Register(&dispatcher.Descriptor{
		Name:          "FEEDBACK_LIST",
		NeedsInLesson: true,
		Handle:        feedbackList,
	})
	dispatcher.Register(&dispatcher.Descriptor{
		Name:          "FEEDBACK_ADD",
		Required:      []string{"ref", "acl", "comment"},
		NeedsInLesson: true,
		Handle:        feedbackAdd,
	})
	dispatcher.Register(&dispatcher.Descriptor{
		Name:          "FEEDBACK_MOD",
		Required:      []string{"feedbackId", "acl", "resolved"},
		NeedsInLesson: true,
		Handle:        feedbackMod,
	})
	dispatcher.Register(&dispatcher.Descriptor{
		Name:          "FEEDBACK_COMMENT",
		Required:      []string{"feedbackId", "content"},
		NeedsInLesson: true,
		Handle:        feedbackComment,
	})
	dispatcher.Register(&dispatcher.Descriptor{
		Name:          "FEEDBACK_COMMENT_MOD",
		Required:      []string{"commentId"},
		NeedsInLesson: true,
		Handle:        feedbackCommentMod,
	})
}

func mapFeedbackErr(err error) error {
	switch err {
	case feedback.ErrFeedbackNotFound:
		return dispatcher.NewError(dispatcher.KindFeedbackNotFound, err.Error())
	case feedback.ErrFeedbackNotAuth:
		return dispatcher.NewError(dispatcher.KindFeedbackNotAuth, err.Error())
	default:
		return err
	}
}

// recipientRooms maps a set of participant ids to their PERSONAL_PTC
// rooms, the fan-out target for every FEEDBACK_* event.
func recipientRooms(courseID, lessonID int64, participantIDs []int64) []dispatcher.RoomRef {
	refs := make([]dispatcher.RoomRef, 0, len(participantIDs))
	for _, id := range participantIDs {
		refs = append(refs, dispatcher.RoomRef{Type: rooms.PersonalPtc, Name: rooms.PersonalRoom(courseID, lessonID, id)})
	}
	return refs
}

type feedbackListRequest struct {
	OwnerID *int64  `json:"ownerId,omitempty"`
	File    *string `json:"file,omitempty"`
}

// feedbackList returns the per-lesson feedback roll-up, optionally
// filtered to one owner project and file.
// When ownerId is given the caller must hold READ on that project.
func feedbackList(ctx context.Context, env *dispatcher.Env, conn *dispatcher.Conn, data json.RawMessage) (*dispatcher.Result, error) {
	req, err := decode[feedbackListRequest](data)
	if err != nil {
		return nil, err
	}

	var projectID *int64
	if req.OwnerID != nil {
		_, project, err := authorizeOwner(ctx, env, conn, *req.OwnerID, metadata.PermRead)
		if err != nil {
			return nil, err
		}
		projectID = &project.ID
	}

	threads, err := env.Feedback.ListLessonRollup(ctx, conn.Session.LessonID, projectID, req.File)
	if err != nil {
		return nil, fmt.Errorf("handlers: list feedback: %w", err)
	}
	return &dispatcher.Result{Payload: threads}, nil
}

type feedbackRef struct {
	OwnerID int64  `json:"ownerId" validate:"required"`
	File    string `json:"file" validate:"required"`
	Line    string `json:"line" validate:"required"`
}

type feedbackAddRequest struct {
	Ref     feedbackRef `json:"ref"`
	ACL     []int64     `json:"acl"`
	Comment string      `json:"comment" validate:"required"`
}

// feedbackAdd requires READ on the target project, then delegates ACL
// materialization and code-reference/comment creation to the feedback
// engine, and fans the new thread out to every ACL member's PERSONAL_PTC
// room.
func feedbackAdd(ctx context.Context, env *dispatcher.Env, conn *dispatcher.Conn, data json.RawMessage) (*dispatcher.Result, error) {
	req, err := decode[feedbackAddRequest](data)
	if err != nil {
		return nil, err
	}
	_, project, err := authorizeOwner(ctx, env, conn, req.Ref.OwnerID, metadata.PermRead)
	if err != nil {
		return nil, err
	}

	thread, err := env.Feedback.Create(ctx, project.ID, req.Ref.OwnerID, conn.Session.ParticipantID, req.Ref.File, req.Ref.Line, req.ACL, req.Comment)
	if err != nil {
		return nil, mapFeedbackErr(err)
	}

	recipients, err := env.Feedback.Recipients(ctx, thread.Feedback.ID)
	if err != nil {
		return nil, fmt.Errorf("handlers: feedback recipients: %w", err)
	}
	return &dispatcher.Result{
		Payload: thread,
		FanOut:  recipientRooms(conn.Session.CourseID, conn.Session.LessonID, recipients),
	}, nil
}

type feedbackModRequest struct {
	FeedbackID int64   `json:"feedbackId" validate:"required"`
	ACL        []int64 `json:"acl"`
	Resolved   bool    `json:"resolved"`
}

// feedbackMod is author-only: ACL reconciliation and resolved toggle,
// fanned to the post-change ACL.
func feedbackMod(ctx context.Context, env *dispatcher.Env, conn *dispatcher.Conn, data json.RawMessage) (*dispatcher.Result, error) {
	req, err := decode[feedbackModRequest](data)
	if err != nil {
		return nil, err
	}

	thread, err := env.Feedback.Modify(ctx, req.FeedbackID, conn.Session.ParticipantID, req.ACL, req.Resolved)
	if err != nil {
		return nil, mapFeedbackErr(err)
	}

	recipients, err := env.Feedback.Recipients(ctx, req.FeedbackID)
	if err != nil {
		return nil, fmt.Errorf("handlers: feedback recipients: %w", err)
	}
	return &dispatcher.Result{
		Payload: thread,
		FanOut:  recipientRooms(conn.Session.CourseID, conn.Session.LessonID, recipients),
	}, nil
}

type feedbackCommentRequest struct {
	FeedbackID int64  `json:"feedbackId" validate:"required"`
	Content    string `json:"content" validate:"required"`
}

// feedbackComment requires the commenter to already hold a valid
// FeedbackViewer row; the response is the full per-lesson feedback
// roll-up, fanned to every ACL member's PERSONAL_PTC room.
func feedbackComment(ctx context.Context, env *dispatcher.Env, conn *dispatcher.Conn, data json.RawMessage) (*dispatcher.Result, error) {
	req, err := decode[feedbackCommentRequest](data)
	if err != nil {
		return nil, err
	}

	if _, err := env.Feedback.AddComment(ctx, req.FeedbackID, conn.Session.ParticipantID, req.Content); err != nil {
		return nil, mapFeedbackErr(err)
	}

	recipients, err := env.Feedback.Recipients(ctx, req.FeedbackID)
	if err != nil {
		return nil, fmt.Errorf("handlers: feedback recipients: %w", err)
	}
	threads, err := env.Feedback.ListLessonRollup(ctx, conn.Session.LessonID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("handlers: list feedback: %w", err)
	}
	return &dispatcher.Result{
		Payload: threads,
		FanOut:  recipientRooms(conn.Session.CourseID, conn.Session.LessonID, recipients),
	}, nil
}

type feedbackCommentModRequest struct {
	CommentID int64   `json:"commentId" validate:"required"`
	Content   *string `json:"content,omitempty"`
	Delete    bool    `json:"delete,omitempty"`
}

// feedbackCommentMod is author-only content edit and/or soft-delete,
// fanned to the comment's feedback ACL.
func feedbackCommentMod(ctx context.Context, env *dispatcher.Env, conn *dispatcher.Conn, data json.RawMessage) (*dispatcher.Result, error) {
	req, err := decode[feedbackCommentModRequest](data)
	if err != nil {
		return nil, err
	}

	comment, err := env.Feedback.ModifyComment(ctx, req.CommentID, conn.Session.ParticipantID, req.Content, req.Delete)
	if err != nil {
		return nil, mapFeedbackErr(err)
	}

	recipients, err := env.Feedback.Recipients(ctx, comment.FeedbackID)
	if err != nil {
		return nil, fmt.Errorf("handlers: feedback recipients: %w", err)
	}
	return &dispatcher.Result{
		Payload: comment,
		FanOut:  recipientRooms(conn.Session.CourseID, conn.Session.LessonID, recipients),
	}, nil
}
