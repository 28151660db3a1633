package handlers

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/classroomlive/classroomd/internal/dispatcher"
	"github.com/classroomlive/classroomd/internal/metadata"
	"github.com/classroomlive/classroomd/internal/rooms"
)

func init() {
	dispatcher.Register(&dispatcher.Descriptor{
		Name:          "SUBS_PARTICIPANT_LIST",
		NeedsInLesson: true,
		Handle:        subsParticipantList,
	})
	dispatcher.Register(&dispatcher.Descriptor{
		Name:          "SUBS_PARTICIPANT",
		Required:      []string{"target"},
		NeedsInLesson: true,
		Handle:        subsParticipant,
	})
	dispatcher.Register(&dispatcher.Descriptor{
		Name:          "UNSUBS_PARTICIPANT",
		Required:      []string{"target"},
		NeedsInLesson: true,
		Handle:        unsubsParticipant,
	})
}

// subsParticipantList reports which participants the caller's own SUBS_PTC
// memberships resolve to on this instance.
func subsParticipantList(_ context.Context, _ *dispatcher.Env, conn *dispatcher.Conn, _ json.RawMessage) (*dispatcher.Result, error) {
	names := conn.Session.Rooms(rooms.SubsPtc)
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		if id, ok := subsRoomParticipantID(name); ok {
			ids = append(ids, id)
		}
	}
	return &dispatcher.Result{Payload: ids}, nil
}

// subsRoomParticipantID extracts the trailing participant id from a
// "{c}:{l}:{ptc}" SUBS_PTC room name.
func subsRoomParticipantID(name string) (int64, bool) {
	parts := strings.Split(name, ":")
	if len(parts) != 3 {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

type targetRequest struct {
	Target []int64 `json:"target"`
}

type subsOutcome struct {
	TargetID int64  `json:"targetId"`
	OK       bool   `json:"ok"`
	Reason   string `json:"reason,omitempty"`
}

// subsParticipant joins SUBS_PTC(p) for every requested id the caller has
// READ for, reporting per-id outcome.
func subsParticipant(ctx context.Context, env *dispatcher.Env, conn *dispatcher.Conn, data json.RawMessage) (*dispatcher.Result, error) {
	req, err := decode[targetRequest](data)
	if err != nil {
		return nil, err
	}
	viewer, err := myParticipant(ctx, env, conn)
	if err != nil {
		return nil, err
	}

	outcomes := make([]subsOutcome, 0, len(req.Target))
	for _, targetID := range req.Target {
		target, project, err := resolveTarget(ctx, env, conn, targetID)
		if err != nil {
			outcomes = append(outcomes, subsOutcome{TargetID: targetID, OK: false, Reason: errReason(err)})
			continue
		}
		if err := requirePerm(ctx, env, *viewer, *project, *target, metadata.PermRead); err != nil {
			outcomes = append(outcomes, subsOutcome{TargetID: targetID, OK: false, Reason: errReason(err)})
			continue
		}
		conn.EnterRoom(rooms.SubsPtc, rooms.SubsRoom(conn.Session.CourseID, conn.Session.LessonID, targetID), env.SubsPerPtc)
		outcomes = append(outcomes, subsOutcome{TargetID: targetID, OK: true})
	}

	return &dispatcher.Result{Payload: outcomes}, nil
}

func errReason(err error) string {
	if de, ok := dispatcher.AsError(err); ok {
		return string(de.Kind)
	}
	return string(dispatcher.KindGeneric)
}

// unsubsParticipant leaves SUBS_PTC(p) for each requested id.
func unsubsParticipant(_ context.Context, _ *dispatcher.Env, conn *dispatcher.Conn, data json.RawMessage) (*dispatcher.Result, error) {
	req, err := decode[targetRequest](data)
	if err != nil {
		return nil, err
	}
	for _, targetID := range req.Target {
		conn.ExitRoom(rooms.SubsPtc, rooms.SubsRoom(conn.Session.CourseID, conn.Session.LessonID, targetID))
	}
	return &dispatcher.Result{Payload: req.Target}, nil
}
