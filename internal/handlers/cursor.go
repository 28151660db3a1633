package handlers

import (
	"context"
	"encoding/json"

	"github.com/classroomlive/classroomd/internal/dispatcher"
	"github.com/classroomlive/classroomd/internal/metadata"
	"github.com/classroomlive/classroomd/internal/rooms"
)

func init() {
	dispatcher.Register(&dispatcher.Descriptor{
		Name:          "CURSOR_LAST",
		Required:      []string{"ownerId", "file"},
		NeedsInLesson: true,
		Handle:        cursorLast,
	})
	dispatcher.Register(&dispatcher.Descriptor{
		Name:          "CURSOR_MOVE",
		Required:      []string{"fileInfo", "timestamp"},
		NeedsInLesson: true,
		Handle:        cursorMove,
	})
}

type cursorLastRequest struct {
	OwnerID int64  `json:"ownerId" validate:"required"`
	File    string `json:"file" validate:"required"`
}

// cursorLast requires READ and returns the viewer's own last-recorded
// cursor for (owner, file).
func cursorLast(ctx context.Context, env *dispatcher.Env, conn *dispatcher.Conn, data json.RawMessage) (*dispatcher.Result, error) {
	req, err := decode[cursorLastRequest](data)
	if err != nil {
		return nil, err
	}
	if _, _, err := authorizeOwner(ctx, env, conn, req.OwnerID, metadata.PermRead); err != nil {
		return nil, err
	}

	cursor, err := env.Files.LastCursor(ctx, scopeOf(conn), conn.Session.ParticipantID, req.OwnerID, req.File)
	if err != nil {
		return nil, mapFileErr(err)
	}
	return &dispatcher.Result{Payload: map[string]any{"ownerId": req.OwnerID, "file": req.File, "cursor": json.RawMessage(cursor)}}, nil
}

type cursorFileInfo struct {
	OwnerID int64  `json:"ownerId" validate:"required"`
	File    string `json:"file" validate:"required"`
	Line    any    `json:"line"`
	Cursor  any    `json:"cursor"`
}

type cursorMoveRequest struct {
	FileInfo  cursorFileInfo `json:"fileInfo"`
	Timestamp int64          `json:"timestamp"`
	Event     string         `json:"event,omitempty"`
}

type cursorMoveBroadcast struct {
	FileInfo  cursorFileInfo `json:"fileInfo"`
	Timestamp int64          `json:"timestamp"`
	SenderID  int64          `json:"senderId"`
}

// cursorMove requires READ, persists the cursor unless the move is an
// "open" event (opening a file is not a position worth restoring), and
// broadcasts the position to SUBS_PTC.
func cursorMove(ctx context.Context, env *dispatcher.Env, conn *dispatcher.Conn, data json.RawMessage) (*dispatcher.Result, error) {
	req, err := decode[cursorMoveRequest](data)
	if err != nil {
		return nil, err
	}
	if _, _, err := authorizeOwner(ctx, env, conn, req.FileInfo.OwnerID, metadata.PermRead); err != nil {
		return nil, err
	}

	if req.Event != "open" {
		cursorJSON, err := json.Marshal(req.FileInfo.Cursor)
		if err != nil {
			return nil, dispatcher.NewError(dispatcher.KindMissingField, "malformed cursor")
		}
		if err := env.Files.SetLastCursor(ctx, scopeOf(conn), conn.Session.ParticipantID, req.FileInfo.OwnerID, req.FileInfo.File, cursorJSON); err != nil {
			return nil, mapFileErr(err)
		}
	}

	return &dispatcher.Result{
		Payload: cursorMoveBroadcast{FileInfo: req.FileInfo, Timestamp: req.Timestamp, SenderID: conn.Session.ParticipantID},
		FanOut:  []dispatcher.RoomRef{{Type: rooms.SubsPtc, Name: rooms.SubsRoom(conn.Session.CourseID, conn.Session.LessonID, req.FileInfo.OwnerID)}},
	}, nil
}
