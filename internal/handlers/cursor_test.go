package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/classroomlive/classroomd/internal/metadata"
)

type cursorLastReply struct {
	OwnerID int64           `json:"ownerId"`
	File    string          `json:"file"`
	Cursor  json.RawMessage `json:"cursor"`
}

func TestCursorMovePersistsAndBroadcasts(t *testing.T) {
	te := newTestEnv(t)
	conn := te.connect(studentUser)
	te.initLesson(conn)

	send(t, conn, "CURSOR_MOVE", map[string]any{
		"fileInfo":  map[string]any{"ownerId": studentPtc, "file": "main.py", "line": 3, "cursor": map[string]any{"line": 3, "col": 7}},
		"timestamp": 42,
	}, "")

	frame := waitFor(t, conn, "CURSOR_MOVE")
	payload := decodePayload[cursorMoveBroadcast](t, frame)
	assert.Equal(t, studentPtc, payload.SenderID)
	assert.Equal(t, int64(42), payload.Timestamp)

	send(t, conn, "CURSOR_LAST", map[string]any{"ownerId": studentPtc, "file": "main.py"}, "")
	last := waitFor(t, conn, "CURSOR_LAST")
	reply := decodePayload[cursorLastReply](t, last)
	assert.JSONEq(t, `{"line":3,"col":7}`, string(reply.Cursor))
}

func TestCursorMoveOpenEventIsNotPersisted(t *testing.T) {
	te := newTestEnv(t)
	conn := te.connect(studentUser)
	te.initLesson(conn)

	send(t, conn, "CURSOR_MOVE", map[string]any{
		"fileInfo":  map[string]any{"ownerId": studentPtc, "file": "other.py", "cursor": map[string]any{"line": 1}},
		"timestamp": 1,
		"event":     "open",
	}, "")
	waitFor(t, conn, "CURSOR_MOVE")

	send(t, conn, "CURSOR_LAST", map[string]any{"ownerId": studentPtc, "file": "other.py"}, "")
	last := waitFor(t, conn, "CURSOR_LAST")
	reply := decodePayload[cursorLastReply](t, last)
	assert.Equal(t, "null", string(reply.Cursor), "an open event must not record a cursor")
}

func TestCursorLastRequiresRead(t *testing.T) {
	te := newTestEnv(t)
	owner := te.connect(studentUser)
	te.initLesson(owner)
	viewer := te.connect(student2User)
	te.initLesson(viewer)

	send(t, viewer, "CURSOR_LAST", map[string]any{"ownerId": studentPtc, "file": "main.py"}, "")
	frame := waitFor(t, viewer, "ERROR")
	assert.Equal(t, "FORBIDDEN_PROJECT", errorKind(t, frame))
}

func TestCursorStatePerViewer(t *testing.T) {
	te := newTestEnv(t)
	owner := te.connect(studentUser)
	te.initLesson(owner)
	viewer := te.connect(student2User)
	te.initLesson(viewer)

	projectOwner, err := te.store.GetProject(context.Background(), testLessonID, studentPtc)
	assert.NoError(t, err)
	_, _, err = te.store.SetPermission(context.Background(), projectOwner.ID, student2Ptc, metadata.PermRead)
	assert.NoError(t, err)

	send(t, owner, "CURSOR_MOVE", map[string]any{
		"fileInfo":  map[string]any{"ownerId": studentPtc, "file": "main.py", "cursor": map[string]any{"line": 9}},
		"timestamp": 1,
	}, "")
	waitFor(t, owner, "CURSOR_MOVE")

	// The viewer's own last-cursor state for the same file is independent
	// of the owner's.
	send(t, viewer, "CURSOR_LAST", map[string]any{"ownerId": studentPtc, "file": "main.py"}, "")
	last := waitFor(t, viewer, "CURSOR_LAST")
	reply := decodePayload[cursorLastReply](t, last)
	assert.Equal(t, "null", string(reply.Cursor))
}
