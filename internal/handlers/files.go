package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/classroomlive/classroomd/internal/dispatcher"
	"github.com/classroomlive/classroomd/internal/filestore"
	"github.com/classroomlive/classroomd/internal/keys"
	"github.com/classroomlive/classroomd/internal/metadata"
	"github.com/classroomlive/classroomd/internal/rooms"
)

func init() {
	dispatcher.Register(&dispatcher.Descriptor{Name: "DIR_INFO", Required: []string{"targetId"}, NeedsInLesson: true, Handle: dirInfo})
	dispatcher.Register(&dispatcher.Descriptor{Name: "FILE_READ", Required: []string{"ownerId", "file"}, NeedsInLesson: true, Handle: fileRead})
	dispatcher.Register(&dispatcher.Descriptor{Name: "FILE_CREATE", Required: []string{"ownerId", "type", "name"}, NeedsInLesson: true, Handle: fileCreate})
	dispatcher.Register(&dispatcher.Descriptor{Name: "FILE_UPDATE", Required: []string{"ownerId", "type", "name", "rename"}, NeedsInLesson: true, Handle: fileUpdate})
	dispatcher.Register(&dispatcher.Descriptor{Name: "FILE_DELETE", Required: []string{"ownerId", "type", "name"}, NeedsInLesson: true, Handle: fileDelete})
	dispatcher.Register(&dispatcher.Descriptor{Name: "FILE_MOD", Required: []string{"ownerId", "file", "cursor", "change", "timestamp"}, NeedsInLesson: true, Handle: fileMod})
	dispatcher.Register(&dispatcher.Descriptor{Name: "FILE_SAVE", Required: []string{"ownerId", "file", "content"}, NeedsInLesson: true, Handle: fileSave})
}

// authorizeOwner resolves the viewer and (target, project) pair for
// ownerID and checks need, the shared precondition for every file op.
func authorizeOwner(ctx context.Context, env *dispatcher.Env, conn *dispatcher.Conn, ownerID int64, need metadata.Permission) (*metadata.Participant, *metadata.Project, error) {
	viewer, err := myParticipant(ctx, env, conn)
	if err != nil {
		return nil, nil, err
	}
	owner, project, err := resolveTarget(ctx, env, conn, ownerID)
	if err != nil {
		return nil, nil, err
	}
	if err := requirePerm(ctx, env, *viewer, *project, *owner, need); err != nil {
		return nil, nil, err
	}
	return owner, project, nil
}

func mapFileErr(err error) error {
	switch err {
	case filestore.ErrFileExists:
		return dispatcher.NewError(dispatcher.KindFileExists, err.Error())
	case filestore.ErrFileNotFound:
		return dispatcher.NewError(dispatcher.KindFileNotFound, err.Error())
	case filestore.ErrProjectFileMissing:
		return dispatcher.NewError(dispatcher.KindProjectFileMissing, err.Error())
	case filestore.ErrTotalSizeExceeded:
		return dispatcher.NewError(dispatcher.KindTotalSizeExceeded, err.Error())
	default:
		return err
	}
}

type dirInfoRequest struct {
	TargetID int64 `json:"targetId" validate:"required"`
}

// dirInfo returns the file list, rehydrating once from the cold tier if
// the listing comes back incomplete.
func dirInfo(ctx context.Context, env *dispatcher.Env, conn *dispatcher.Conn, data json.RawMessage) (*dispatcher.Result, error) {
	req, err := decode[dirInfoRequest](data)
	if err != nil {
		return nil, err
	}
	if _, _, err := authorizeOwner(ctx, env, conn, req.TargetID, metadata.PermRead); err != nil {
		return nil, err
	}

	owner := filestore.Participant(scopeOf(conn), req.TargetID)
	entries, err := env.Files.List(ctx, owner, true)
	if err == filestore.ErrProjectFileMissing {
		if err := env.Files.Rehydrate(ctx, owner); err != nil {
			return nil, mapFileErr(err)
		}
		entries, err = env.Files.List(ctx, owner, false)
	}
	if err != nil {
		return nil, mapFileErr(err)
	}
	return &dispatcher.Result{Payload: entries}, nil
}

type fileReadRequest struct {
	OwnerID int64  `json:"ownerId" validate:"required"`
	File    string `json:"file" validate:"required"`
}

func fileRead(ctx context.Context, env *dispatcher.Env, conn *dispatcher.Conn, data json.RawMessage) (*dispatcher.Result, error) {
	req, err := decode[fileReadRequest](data)
	if err != nil {
		return nil, err
	}
	if _, _, err := authorizeOwner(ctx, env, conn, req.OwnerID, metadata.PermRead); err != nil {
		return nil, err
	}

	content, err := env.Files.GetContent(ctx, filestore.Participant(scopeOf(conn), req.OwnerID), req.File)
	if err != nil {
		return nil, mapFileErr(err)
	}
	return &dispatcher.Result{Payload: map[string]any{"file": req.File, "content": content}}, nil
}

type fileCreateRequest struct {
	OwnerID int64  `json:"ownerId" validate:"required"`
	Type    string `json:"type" validate:"required,oneof=file directory"`
	Name    string `json:"name" validate:"required"`
}

func fileCreate(ctx context.Context, env *dispatcher.Env, conn *dispatcher.Conn, data json.RawMessage) (*dispatcher.Result, error) {
	req, err := decode[fileCreateRequest](data)
	if err != nil {
		return nil, err
	}
	if _, _, err := authorizeOwner(ctx, env, conn, req.OwnerID, metadata.PermRead|metadata.PermWrite); err != nil {
		return nil, err
	}

	owner := filestore.Participant(scopeOf(conn), req.OwnerID)
	name := req.Name
	markDirs := true
	if req.Type == "directory" {
		name = req.Name + "/" + keys.DirMark
		markDirs = false
	}
	if err := env.Files.Create(ctx, owner, name, nil, markDirs); err != nil {
		return nil, mapFileErr(err)
	}

	return &dispatcher.Result{
		Payload: req,
		FanOut:  []dispatcher.RoomRef{{Type: rooms.SubsPtc, Name: rooms.SubsRoom(conn.Session.CourseID, conn.Session.LessonID, req.OwnerID)}},
	}, nil
}

type fileUpdateRequest struct {
	OwnerID int64  `json:"ownerId" validate:"required"`
	Type    string `json:"type" validate:"required,oneof=file directory"`
	Name    string `json:"name" validate:"required"`
	Rename  string `json:"rename" validate:"required"`
}

// fileUpdate renames in the file store and rewrites any code references
// anchored into the renamed path.
func fileUpdate(ctx context.Context, env *dispatcher.Env, conn *dispatcher.Conn, data json.RawMessage) (*dispatcher.Result, error) {
	req, err := decode[fileUpdateRequest](data)
	if err != nil {
		return nil, err
	}
	_, project, err := authorizeOwner(ctx, env, conn, req.OwnerID, metadata.PermRead|metadata.PermWrite)
	if err != nil {
		return nil, err
	}

	owner := filestore.Participant(scopeOf(conn), req.OwnerID)
	if req.Type == "directory" {
		if err := env.Files.RenameDirectory(ctx, owner, req.Name, req.Rename); err != nil {
			return nil, mapFileErr(err)
		}
	} else {
		if err := env.Files.Rename(ctx, owner, req.Name, req.Rename); err != nil {
			return nil, mapFileErr(err)
		}
	}
	if err := env.Store.RewriteFilePrefix(ctx, project.ID, req.Name, req.Rename); err != nil {
		return nil, fmt.Errorf("handlers: rewrite code reference prefix: %w", err)
	}

	return &dispatcher.Result{
		Payload: req,
		FanOut:  []dispatcher.RoomRef{{Type: rooms.SubsPtc, Name: rooms.SubsRoom(conn.Session.CourseID, conn.Session.LessonID, req.OwnerID)}},
	}, nil
}

type fileDeleteRequest struct {
	OwnerID int64  `json:"ownerId" validate:"required"`
	Type    string `json:"type" validate:"required,oneof=file directory"`
	Name    string `json:"name" validate:"required"`
}

// fileDelete removes the file (or every entry under a directory) and
// marks referencing code references deleted rather than removing them.
func fileDelete(ctx context.Context, env *dispatcher.Env, conn *dispatcher.Conn, data json.RawMessage) (*dispatcher.Result, error) {
	req, err := decode[fileDeleteRequest](data)
	if err != nil {
		return nil, err
	}
	_, project, err := authorizeOwner(ctx, env, conn, req.OwnerID, metadata.PermRead|metadata.PermWrite)
	if err != nil {
		return nil, err
	}

	owner := filestore.Participant(scopeOf(conn), req.OwnerID)
	if req.Type == "directory" {
		if _, err := env.Files.DeletePrefix(ctx, owner, req.Name); err != nil {
			return nil, mapFileErr(err)
		}
	} else {
		if err := env.Files.Delete(ctx, owner, req.Name); err != nil {
			return nil, mapFileErr(err)
		}
	}
	if err := env.Store.MarkDeletedByPrefix(ctx, project.ID, req.Name); err != nil {
		return nil, fmt.Errorf("handlers: mark code references deleted: %w", err)
	}

	return &dispatcher.Result{
		Payload: req,
		FanOut:  []dispatcher.RoomRef{{Type: rooms.SubsPtc, Name: rooms.SubsRoom(conn.Session.CourseID, conn.Session.LessonID, req.OwnerID)}},
	}, nil
}

type fileModRequest struct {
	OwnerID   int64  `json:"ownerId" validate:"required"`
	File      string `json:"file" validate:"required"`
	Cursor    any    `json:"cursor"`
	Change    any    `json:"change"`
	Timestamp int64  `json:"timestamp"`
}

type fileModBroadcast struct {
	fileModRequest
	SenderID int64 `json:"senderId"`
}

// fileMod performs no KV mutation, a live broadcast only, carrying the
// client-supplied timestamp so receivers can order concurrent edits
// delivered through different instances.
func fileMod(ctx context.Context, env *dispatcher.Env, conn *dispatcher.Conn, data json.RawMessage) (*dispatcher.Result, error) {
	req, err := decode[fileModRequest](data)
	if err != nil {
		return nil, err
	}
	if _, _, err := authorizeOwner(ctx, env, conn, req.OwnerID, metadata.PermRead|metadata.PermWrite); err != nil {
		return nil, err
	}

	return &dispatcher.Result{
		Payload: fileModBroadcast{fileModRequest: req, SenderID: conn.Session.ParticipantID},
		FanOut:  []dispatcher.RoomRef{{Type: rooms.SubsPtc, Name: rooms.SubsRoom(conn.Session.CourseID, conn.Session.LessonID, req.OwnerID)}},
	}, nil
}

type fileSaveRequest struct {
	OwnerID int64  `json:"ownerId" validate:"required"`
	File    string `json:"file" validate:"required"`
	Content []byte `json:"content"`
}

// fileSave is last-writer-wins persistence, the only mutation FILE_MOD's
// live broadcast never performs.
func fileSave(ctx context.Context, env *dispatcher.Env, conn *dispatcher.Conn, data json.RawMessage) (*dispatcher.Result, error) {
	req, err := decode[fileSaveRequest](data)
	if err != nil {
		return nil, err
	}
	if _, _, err := authorizeOwner(ctx, env, conn, req.OwnerID, metadata.PermRead|metadata.PermWrite); err != nil {
		return nil, err
	}

	owner := filestore.Participant(scopeOf(conn), req.OwnerID)
	if err := env.Files.Save(ctx, owner, req.File, req.Content); err != nil {
		return nil, mapFileErr(err)
	}

	return &dispatcher.Result{
		Payload: map[string]any{"ownerId": req.OwnerID, "file": req.File},
		FanOut:  []dispatcher.RoomRef{{Type: rooms.SubsPtc, Name: rooms.SubsRoom(conn.Session.CourseID, conn.Session.LessonID, req.OwnerID)}},
	}, nil
}
