// Package handlers implements one handler per protocol verb, registered
// into internal/dispatcher's table from each file's init(). Handlers
// decode their typed request, resolve and
// authorize the target, mutate state through internal/metadata,
// internal/filestore or internal/permission, and return a
// dispatcher.Result describing the reply and fan-out.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/classroomlive/classroomd/internal/dispatcher"
	"github.com/classroomlive/classroomd/internal/keys"
	"github.com/classroomlive/classroomd/internal/metadata"
)

// validate applies the request structs' `validate` tags after decoding:
// the dispatcher's descriptor check covers field *presence* only, this
// covers shape (non-zero ids, enumerated type values).
var validate = validator.New()

func decode[T any](data json.RawMessage) (T, error) {
	var out T
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			var zero T
			return zero, dispatcher.NewError(dispatcher.KindMissingField, "malformed request body")
		}
	}
	if err := validate.Struct(out); err != nil {
		// Non-struct request types (e.g. PROJECT_PERM's array body) have
		// no tags to check.
		var inv *validator.InvalidValidationError
		if !errors.As(err, &inv) {
			var zero T
			return zero, dispatcher.NewError(dispatcher.KindMissingField, "invalid request body")
		}
	}
	return out, nil
}

func scopeOf(conn *dispatcher.Conn) keys.Scope {
	return keys.Scope{CourseID: conn.Session.CourseID, LessonID: conn.Session.LessonID}
}

// myParticipant resolves the caller's own Participant row.
func myParticipant(ctx context.Context, env *dispatcher.Env, conn *dispatcher.Conn) (*metadata.Participant, error) {
	p, err := env.Store.GetParticipant(ctx, conn.Session.ParticipantID)
	if err != nil {
		if err == metadata.ErrNotFound {
			return nil, dispatcher.NewError(dispatcher.KindParticipantNotFound, "participant not found")
		}
		return nil, fmt.Errorf("handlers: get participant: %w", err)
	}
	return p, nil
}

// resolveTarget loads the target participant and their project for this
// lesson, lazily creating the project on the participant's first access.
func resolveTarget(ctx context.Context, env *dispatcher.Env, conn *dispatcher.Conn, targetParticipantID int64) (*metadata.Participant, *metadata.Project, error) {
	target, err := env.Store.GetParticipant(ctx, targetParticipantID)
	if err != nil {
		if err == metadata.ErrNotFound {
			return nil, nil, dispatcher.NewError(dispatcher.KindParticipantNotFound, "target participant not found")
		}
		return nil, nil, fmt.Errorf("handlers: get target participant: %w", err)
	}

	project, err := env.Store.GetProject(ctx, conn.Session.LessonID, targetParticipantID)
	if err == metadata.ErrNotFound {
		project, err = env.Store.CreateProject(ctx, conn.Session.LessonID, targetParticipantID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("handlers: resolve target project: %w", err)
	}
	return target, project, nil
}

// requirePerm translates a permission.Engine decision into
// a dispatcher.Error, the shape every READ/WRITE-gated handler needs.
func requirePerm(ctx context.Context, env *dispatcher.Env, viewer metadata.Participant, target metadata.Project, owner metadata.Participant, need metadata.Permission) error {
	ok, err := env.Perm.CheckPerm(ctx, viewer, target, owner, need)
	if err != nil {
		return fmt.Errorf("handlers: check permission: %w", err)
	}
	if !ok {
		return dispatcher.NewError(dispatcher.KindForbiddenProject, "insufficient permission")
	}
	return nil
}
