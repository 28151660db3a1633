package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/classroomlive/classroomd/internal/dispatcher"
	"github.com/classroomlive/classroomd/internal/keys"
	"github.com/classroomlive/classroomd/internal/metadata"
	"github.com/classroomlive/classroomd/internal/rooms"
)

func init() {
	dispatcher.Register(&dispatcher.Descriptor{
		Name:     "INIT_LESSON",
		Required: []string{"courseId", "lessonId"},
		Handle:   initLesson,
	})
	dispatcher.Register(&dispatcher.Descriptor{
		Name:          "ALL_PARTICIPANT",
		NeedsInLesson: true,
		Handle:        allParticipant,
	})
	dispatcher.Register(&dispatcher.Descriptor{
		Name:          "ACTIVITY_PING",
		NeedsInLesson: true,
		Handle:        activityPing,
	})
}

type initLessonRequest struct {
	CourseID int64 `json:"courseId" validate:"required"`
	LessonID int64 `json:"lessonId" validate:"required"`
}

type initLessonResponse struct {
	ParticipantID int64 `json:"participantId"`
	CourseID      int64 `json:"courseId"`
	LessonID      int64 `json:"lessonId"`
}

type participantStatus struct {
	ID     int64 `json:"id"`
	Active bool  `json:"active"`
}

// initLesson binds the session to a (course,lesson,participant) triple,
// lazily creates and templates the caller's project, enters the
// lesson-wide rooms plus a SUBS_PTC room for every target the caller can
// read, and announces presence.
func initLesson(ctx context.Context, env *dispatcher.Env, conn *dispatcher.Conn, data json.RawMessage) (*dispatcher.Result, error) {
	req, err := decode[initLessonRequest](data)
	if err != nil {
		return nil, err
	}

	if conn.Session.IsAdmin {
		return initMonitorLesson(ctx, env, conn, req)
	}

	participant, err := env.Store.GetParticipantByUser(ctx, req.CourseID, conn.Session.Principal.UserID)
	if err != nil {
		if err == metadata.ErrNotFound {
			return nil, dispatcher.NewError(dispatcher.KindAccessCourseFail, "not a participant of this course")
		}
		return nil, fmt.Errorf("handlers: get participant by user: %w", err)
	}

	lesson, err := env.Store.GetLesson(ctx, req.LessonID)
	if err != nil {
		if err == metadata.ErrNotFound {
			return nil, dispatcher.NewError(dispatcher.KindAccessCourseFail, "lesson not found")
		}
		return nil, fmt.Errorf("handlers: get lesson: %w", err)
	}
	if lesson.CourseID != req.CourseID {
		return nil, dispatcher.NewError(dispatcher.KindAccessCourseFail, "lesson does not belong to course")
	}

	conn.Session.CourseID = req.CourseID
	conn.Session.LessonID = req.LessonID
	conn.Session.ParticipantID = participant.ID
	conn.Session.Nickname = participant.Nickname
	conn.Session.InLesson = true

	scope := keys.Scope{CourseID: req.CourseID, LessonID: req.LessonID}
	project, err := env.Store.GetProject(ctx, req.LessonID, participant.ID)
	if err == metadata.ErrNotFound {
		project, err = env.Store.CreateProject(ctx, req.LessonID, participant.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("handlers: resolve own project: %w", err)
	}
	if err := env.Template.Apply(ctx, scope, *lesson, *project); err != nil {
		return nil, fmt.Errorf("handlers: apply template: %w", err)
	}

	lessonRoom := rooms.LessonRoom(req.CourseID, req.LessonID)
	conn.EnterRoom(rooms.Lesson, lessonRoom, 0)
	conn.EnterRoom(rooms.PersonalPtc, rooms.PersonalRoom(req.CourseID, req.LessonID, participant.ID), 0)
	conn.EnterRoom(rooms.SubsPtc, rooms.SubsRoom(req.CourseID, req.LessonID, participant.ID), 0)

	if err := subscribeReadableTargets(ctx, env, conn, *participant); err != nil {
		return nil, err
	}

	changed, err := env.Store.SetActive(ctx, participant.ID, true)
	if err != nil {
		return nil, fmt.Errorf("handlers: set active: %w", err)
	}
	if changed {
		_ = conn.Emit(ctx, []dispatcher.RoomRef{{Type: rooms.Lesson, Name: lessonRoom}}, "PARTICIPANT_STATUS",
			participantStatus{ID: participant.ID, Active: true})
	}

	return &dispatcher.Result{Payload: initLessonResponse{
		ParticipantID: participant.ID,
		CourseID:      req.CourseID,
		LessonID:      req.LessonID,
	}}, nil
}

// initMonitorLesson is the X-API-KEY monitor path through INIT_LESSON:
// an admin/monitor session has no participant
// identity, so it skips project/ACL resolution entirely and joins only
// the lesson's WS_MONITOR mirror.
func initMonitorLesson(_ context.Context, _ *dispatcher.Env, conn *dispatcher.Conn, req initLessonRequest) (*dispatcher.Result, error) {
	conn.Session.CourseID = req.CourseID
	conn.Session.LessonID = req.LessonID
	conn.Session.InLesson = true

	conn.EnterRoom(rooms.WSMonitor, rooms.MonitorRoom(req.CourseID, req.LessonID), 0)

	return &dispatcher.Result{Payload: initLessonResponse{CourseID: req.CourseID, LessonID: req.LessonID}}, nil
}

// subscribeReadableTargets auto-enters SUBS_PTC(target) at lesson init. A
// teacher session subscribes to every other participant of the course,
// whatever the ACL edges say; students subscribe only where an explicit
// edge grants READ.
func subscribeReadableTargets(ctx context.Context, env *dispatcher.Env, conn *dispatcher.Conn, viewer metadata.Participant) error {
	if viewer.IsTeacher() {
		participants, err := env.Store.ListParticipants(ctx, conn.Session.CourseID)
		if err != nil {
			return fmt.Errorf("handlers: list participants: %w", err)
		}
		for _, p := range participants {
			if p.ID == viewer.ID {
				continue
			}
			conn.EnterRoom(rooms.SubsPtc, rooms.SubsRoom(conn.Session.CourseID, conn.Session.LessonID, p.ID), env.SubsPerPtc)
		}
		return nil
	}

	accessible, err := env.Perm.AccessibleTo(ctx, viewer.ID)
	if err != nil {
		return fmt.Errorf("handlers: accessible to: %w", err)
	}
	for _, edge := range accessible {
		if !edge.Permission.Has(metadata.PermRead) {
			continue
		}
		project, err := env.Store.GetProjectByID(ctx, edge.ProjectID)
		if err != nil {
			continue
		}
		conn.EnterRoom(rooms.SubsPtc, rooms.SubsRoom(conn.Session.CourseID, conn.Session.LessonID, project.ParticipantID), env.SubsPerPtc)
	}
	return nil
}

type participantSummary struct {
	metadata.Participant
	ProjectID        int64 `json:"projectId,omitempty"`
	RecentActivityAt int64 `json:"recentActivityAt,omitempty"`
}

// allParticipant returns every participant of the lesson's course with
// their project summary.
func allParticipant(ctx context.Context, env *dispatcher.Env, conn *dispatcher.Conn, _ json.RawMessage) (*dispatcher.Result, error) {
	participants, err := env.Store.ListParticipants(ctx, conn.Session.CourseID)
	if err != nil {
		return nil, fmt.Errorf("handlers: list participants: %w", err)
	}

	out := make([]participantSummary, 0, len(participants))
	for _, p := range participants {
		summary := participantSummary{Participant: *p}
		if project, err := env.Store.GetProject(ctx, conn.Session.LessonID, p.ID); err == nil {
			summary.ProjectID = project.ID
			summary.RecentActivityAt = project.RecentActivityAt.Unix()
		}
		out = append(out, summary)
	}
	return &dispatcher.Result{Payload: out}, nil
}

type activityPingRequest struct {
	TargetParticipantID int64 `json:"targetPtcId"`
}

// activityPing touches the target's activity timestamp (self by default)
// and flips presence back on if it had lapsed.
func activityPing(ctx context.Context, env *dispatcher.Env, conn *dispatcher.Conn, data json.RawMessage) (*dispatcher.Result, error) {
	req, err := decode[activityPingRequest](data)
	if err != nil {
		return nil, err
	}
	targetID := req.TargetParticipantID
	if targetID == 0 {
		targetID = conn.Session.ParticipantID
	}

	if targetID != conn.Session.ParticipantID {
		viewer, err := myParticipant(ctx, env, conn)
		if err != nil {
			return nil, err
		}
		target, project, err := resolveTarget(ctx, env, conn, targetID)
		if err != nil {
			return nil, err
		}
		if err := requirePerm(ctx, env, *viewer, *project, *target, metadata.PermRead); err != nil {
			return nil, err
		}
		if err := env.Store.TouchActivity(ctx, project.ID); err != nil {
			return nil, fmt.Errorf("handlers: touch activity: %w", err)
		}
	} else {
		project, err := env.Store.GetProject(ctx, conn.Session.LessonID, targetID)
		if err == nil {
			_ = env.Store.TouchActivity(ctx, project.ID)
		}
	}

	changed, err := env.Store.SetActive(ctx, targetID, true)
	if err != nil {
		return nil, fmt.Errorf("handlers: set active: %w", err)
	}
	result := &dispatcher.Result{Payload: participantStatus{ID: targetID, Active: true}}
	if changed {
		// The lesson-room broadcast must go out as PARTICIPANT_STATUS, the
		// same verb every other presence flip uses; without an explicit
		// Event the relay would label it with the inbound ACTIVITY_PING.
		result.Event = "PARTICIPANT_STATUS"
		result.FanOut = []dispatcher.RoomRef{{Type: rooms.Lesson, Name: rooms.LessonRoom(conn.Session.CourseID, conn.Session.LessonID)}}
	}
	return result, nil
}
