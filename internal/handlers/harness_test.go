package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/classroomlive/classroomd/internal/authclient"
	"github.com/classroomlive/classroomd/internal/bytesize"
	"github.com/classroomlive/classroomd/internal/cache"
	"github.com/classroomlive/classroomd/internal/dispatcher"
	"github.com/classroomlive/classroomd/internal/feedback"
	"github.com/classroomlive/classroomd/internal/filestore"
	"github.com/classroomlive/classroomd/internal/kv"
	"github.com/classroomlive/classroomd/internal/metadata"
	"github.com/classroomlive/classroomd/internal/permission"
	"github.com/classroomlive/classroomd/internal/session"
	"github.com/classroomlive/classroomd/internal/template"
)

// Test fixture coordinates shared by all handler tests: one course, one
// lesson, a teacher and two students.
const (
	testCourseID = int64(10)
	testLessonID = int64(5)

	teacherPtc = int64(1)
	studentPtc = int64(2)
	student2Ptc = int64(3)

	teacherUser = int64(100)
	studentUser = int64(200)
	student2User = int64(300)
)

// testEnv assembles a full dispatcher.Env over the in-memory KV store and
// the fake metadata store, so handler tests exercise the real dispatch
// pipeline (validation, authorization, fan-out through pub/sub) without a
// server process.
type testEnv struct {
	t     *testing.T
	env   *dispatcher.Env
	d     *dispatcher.Dispatcher
	store *fakeStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	kvStore := kv.NewInMemory()
	t.Cleanup(func() { _ = kvStore.Close() })

	memo, err := cache.New(cache.Config{NumCounters: 1000, MaxCost: 1000, TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(memo.Close)

	store := newFakeStore()
	store.addParticipant(teacherPtc, testCourseID, teacherUser, metadata.RoleTeacher)
	store.addParticipant(studentPtc, testCourseID, studentUser, metadata.RoleStudent)
	store.addParticipant(student2Ptc, testCourseID, student2User, metadata.RoleStudent)
	store.addLesson(testLessonID, testCourseID)

	files := filestore.New(kvStore, nil, filestore.Config{
		HotLimit:         bytesize.ByteSize(1 << 20),
		ProjectSizeLimit: bytesize.ByteSize(4 << 20),
	})

	env := &dispatcher.Env{
		Store:      store,
		Cache:      memo,
		Perm:       permission.New(store, memo),
		Files:      files,
		Template:   template.New(files, store),
		Feedback:   feedback.New(store),
		Sessions:   session.New(),
		KV:         kvStore,
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		SubsPerPtc: 16,
	}

	d := dispatcher.New(env)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go d.RunEvictionListener(ctx)

	return &testEnv{t: t, env: env, d: d, store: store}
}

// connect opens a session for userID; initLesson additionally runs the
// INIT_LESSON exchange and drains the resulting frames.
func (te *testEnv) connect(userID int64) *dispatcher.Conn {
	te.t.Helper()
	conn := te.d.Connect(authclient.Principal{UserID: userID}, false)
	te.t.Cleanup(func() { conn.Disconnect(context.Background()) })
	return conn
}

func (te *testEnv) initLesson(conn *dispatcher.Conn) {
	te.t.Helper()
	send(te.t, conn, "INIT_LESSON", map[string]any{"courseId": testCourseID, "lessonId": testLessonID}, "")
	waitFor(te.t, conn, "INIT_LESSON")
	drain(conn)
}

func send(t *testing.T, conn *dispatcher.Conn, event string, data any, uuid string) {
	t.Helper()
	var raw json.RawMessage
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		require.NoError(t, err)
	}
	frame, err := json.Marshal(dispatcher.Frame{Event: event, Data: raw, UUID: uuid})
	require.NoError(t, err)
	conn.HandleFrame(context.Background(), frame)
}

// waitFor reads frames off conn.Outbound until one carrying event arrives.
// Pub/sub fan-out lands asynchronously, so unrelated frames in between are
// skipped rather than failed on.
func waitFor(t *testing.T, conn *dispatcher.Conn, event string) dispatcher.Frame {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case frame, ok := <-conn.Outbound:
			if !ok {
				t.Fatalf("connection closed while waiting for %s", event)
			}
			if frame.Event == event {
				return frame
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", event)
		}
	}
}

// expectNone asserts no frame carrying event arrives within the window.
func expectNone(t *testing.T, conn *dispatcher.Conn, event string) {
	t.Helper()
	deadline := time.After(500 * time.Millisecond)
	for {
		select {
		case frame, ok := <-conn.Outbound:
			if !ok {
				return
			}
			if frame.Event == event {
				t.Fatalf("unexpected %s frame: %s", event, frame.Data)
			}
		case <-deadline:
			return
		}
	}
}

// drain discards whatever is already queued on conn.Outbound, so a test
// asserting on later frames isn't confused by setup traffic.
func drain(conn *dispatcher.Conn) {
	for {
		select {
		case <-conn.Outbound:
		case <-time.After(100 * time.Millisecond):
			return
		}
	}
}

// waitForStatus reads PARTICIPANT_STATUS frames until one for id arrives,
// skipping other participants' presence traffic that may still be in
// flight from test setup.
func waitForStatus(t *testing.T, conn *dispatcher.Conn, id int64) participantStatus {
	t.Helper()
	for {
		frame := waitFor(t, conn, "PARTICIPANT_STATUS")
		st := decodePayload[participantStatus](t, frame)
		if st.ID == id {
			return st
		}
	}
}

// expectNoStatus asserts no further PARTICIPANT_STATUS for id arrives
// within the window.
func expectNoStatus(t *testing.T, conn *dispatcher.Conn, id int64) {
	t.Helper()
	deadline := time.After(500 * time.Millisecond)
	for {
		select {
		case frame, ok := <-conn.Outbound:
			if !ok {
				return
			}
			if frame.Event != "PARTICIPANT_STATUS" {
				continue
			}
			if st := decodePayload[participantStatus](t, frame); st.ID == id {
				t.Fatalf("unexpected PARTICIPANT_STATUS for %d: %s", id, frame.Data)
			}
		case <-deadline:
			return
		}
	}
}

func decodePayload[T any](t *testing.T, frame dispatcher.Frame) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(frame.Data, &out))
	return out
}

func errorKind(t *testing.T, frame dispatcher.Frame) string {
	t.Helper()
	payload := decodePayload[struct {
		Error string `json:"error"`
	}](t, frame)
	return payload.Error
}
