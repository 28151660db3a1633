package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/classroomlive/classroomd/internal/dispatcher"
	"github.com/classroomlive/classroomd/internal/metadata"
	"github.com/classroomlive/classroomd/internal/permission"
	"github.com/classroomlive/classroomd/internal/rooms"
)

func init() {
	dispatcher.Register(&dispatcher.Descriptor{
		Name:          "PROJECT_ACCESSIBLE",
		NeedsInLesson: true,
		Handle:        projectAccessible,
	})
	dispatcher.Register(&dispatcher.Descriptor{
		Name:          "PROJECT_PERM",
		NeedsInLesson: true,
		Handle:        projectPerm,
	})
}

type projectEdge struct {
	ProjectID int64 `json:"projectId"`
	Viewer    int64 `json:"viewerId,omitempty"`
	Owner     int64 `json:"ownerId,omitempty"`
	Perm      int   `json:"permission"`
}

type projectAccessibleResponse struct {
	AccessibleTo []projectEdge `json:"accessibleTo"`
	AccessedBy   []projectEdge `json:"accessedBy"`
}

// projectAccessible returns accessibleTo(self) and accessedBy(self's
// project), applying the display-only default bit, which intentionally
// differs from checkPerm's authorization default (see
// permission.DisplayDefault).
func projectAccessible(ctx context.Context, env *dispatcher.Env, conn *dispatcher.Conn, _ json.RawMessage) (*dispatcher.Result, error) {
	viewer, err := myParticipant(ctx, env, conn)
	if err != nil {
		return nil, err
	}

	accessible, err := env.Perm.AccessibleTo(ctx, viewer.ID)
	if err != nil {
		return nil, fmt.Errorf("handlers: accessible to: %w", err)
	}
	accessibleOut := make([]projectEdge, 0, len(accessible))
	for _, edge := range accessible {
		perm := edge.Permission
		if project, err := env.Store.GetProjectByID(ctx, edge.ProjectID); err == nil {
			if owner, err := env.Store.GetParticipant(ctx, project.ParticipantID); err == nil {
				if perm == metadata.PermNone {
					perm = permission.DisplayDefault(*viewer, *owner)
				}
			}
		}
		accessibleOut = append(accessibleOut, projectEdge{ProjectID: edge.ProjectID, Perm: int(perm)})
	}

	var ownProject *metadata.Project
	if p, err := env.Store.GetProject(ctx, conn.Session.LessonID, viewer.ID); err == nil {
		ownProject = p
	}
	var accessedOut []projectEdge
	if ownProject != nil {
		accessedBy, err := env.Perm.AccessedBy(ctx, ownProject.ID)
		if err != nil {
			return nil, fmt.Errorf("handlers: accessed by: %w", err)
		}
		accessedOut = make([]projectEdge, 0, len(accessedBy))
		for _, edge := range accessedBy {
			accessedOut = append(accessedOut, projectEdge{ProjectID: ownProject.ID, Viewer: edge.ViewerParticipantID, Perm: int(edge.Permission)})
		}
	}

	return &dispatcher.Result{Payload: projectAccessibleResponse{AccessibleTo: accessibleOut, AccessedBy: accessedOut}}, nil
}

type permChange struct {
	TargetID   int64 `json:"targetId"`
	Permission int   `json:"permission"`
}

type permChangeResult struct {
	TargetID int64 `json:"targetId"`
	Previous int   `json:"previous"`
	New      int   `json:"new"`
}

// permChangedBroadcast is the PROJECT_PERM_CHANGED payload delivered to an
// affected viewer's PERSONAL_PTC room: the viewer being (re)granted, the
// owner whose project the bits apply to, and the added/removed delta.
type permChangedBroadcast struct {
	UserID     int64 `json:"userId"`
	TargetID   int64 `json:"targetId"`
	Permission int   `json:"permission"`
	Added      int   `json:"added"`
	Removed    int   `json:"removed"`
}

// projectPerm applies each change to the caller's own project, forces
// READ-revoked viewers out of the owner's SUBS_PTC room, and fans
// PROJECT_PERM_CHANGED out to each affected viewer's PERSONAL_PTC room.
func projectPerm(ctx context.Context, env *dispatcher.Env, conn *dispatcher.Conn, data json.RawMessage) (*dispatcher.Result, error) {
	changes, err := decode[[]permChange](data)
	if err != nil {
		return nil, err
	}

	owner, err := myParticipant(ctx, env, conn)
	if err != nil {
		return nil, err
	}
	project, err := env.Store.GetProject(ctx, conn.Session.LessonID, owner.ID)
	if err != nil {
		if err == metadata.ErrNotFound {
			return nil, dispatcher.NewError(dispatcher.KindProjectNotFound, "caller has no project in this lesson")
		}
		return nil, fmt.Errorf("handlers: get own project: %w", err)
	}

	results := make([]permChangeResult, 0, len(changes))
	for _, change := range changes {
		delta, err := env.Perm.ModifyPerm(ctx, *owner, change.TargetID, *project, metadata.Permission(change.Permission))
		if err != nil {
			return nil, fmt.Errorf("handlers: modify perm: %w", err)
		}
		results = append(results, permChangeResult{TargetID: change.TargetID, Previous: int(delta.Previous), New: int(delta.New)})

		if delta.Removed&metadata.PermRead != 0 {
			// The revoked viewer's own sid must be looked up via its
			// PERSONAL_PTC room, not any member of owner's SUBS_PTC room:
			// that room can hold other viewers' sessions too, and evicting
			// an arbitrary one would kick an unrelated subscriber instead
			// of the viewer actually being revoked. The lookup itself has
			// to go out through the pub/sub rather than env.Sessions
			// directly: the viewer may be connected to a different
			// instance than the one handling this revoke, and
			// env.Sessions only ever sees this instance's own sessions.
			personalRoom := rooms.PersonalRoom(conn.Session.CourseID, conn.Session.LessonID, change.TargetID)
			subsRoom := rooms.SubsRoom(conn.Session.CourseID, conn.Session.LessonID, owner.ID)
			if err := dispatcher.PublishEviction(ctx, env, rooms.PersonalPtc, personalRoom, rooms.SubsPtc, subsRoom); err != nil {
				return nil, fmt.Errorf("handlers: publish eviction: %w", err)
			}
		}

		if delta.Added != 0 || delta.Removed != 0 {
			personalRoom := rooms.PersonalRoom(conn.Session.CourseID, conn.Session.LessonID, change.TargetID)
			_ = conn.Emit(ctx, []dispatcher.RoomRef{{Type: rooms.PersonalPtc, Name: personalRoom}}, "PROJECT_PERM_CHANGED",
				permChangedBroadcast{
					UserID:     change.TargetID,
					TargetID:   owner.ID,
					Permission: int(delta.New),
					Added:      int(delta.Added),
					Removed:    int(delta.Removed),
				})
		}
	}

	return &dispatcher.Result{Payload: results}, nil
}
