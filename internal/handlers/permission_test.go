package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroomlive/classroomd/internal/metadata"
	"github.com/classroomlive/classroomd/internal/rooms"
)

func TestProjectPermGrantNotifiesViewer(t *testing.T) {
	te := newTestEnv(t)
	owner := te.connect(studentUser)
	te.initLesson(owner)
	viewer := te.connect(student2User)
	te.initLesson(viewer)
	drain(viewer)

	send(t, owner, "PROJECT_PERM", []permChange{{TargetID: student2Ptc, Permission: int(metadata.PermRead)}}, "u-1")

	reply := waitFor(t, owner, "PROJECT_PERM")
	assert.Equal(t, "u-1", reply.UUID)
	results := decodePayload[[]permChangeResult](t, reply)
	require.Len(t, results, 1)
	assert.Equal(t, int(metadata.PermRead), results[0].New)

	changed := waitFor(t, viewer, "PROJECT_PERM_CHANGED")
	payload := decodePayload[permChangedBroadcast](t, changed)
	assert.Equal(t, student2Ptc, payload.UserID)
	assert.Equal(t, studentPtc, payload.TargetID)
	assert.Equal(t, int(metadata.PermRead), payload.Permission)
	assert.Equal(t, int(metadata.PermRead), payload.Added)
	assert.Zero(t, payload.Removed)
}

func TestProjectPermSelfGrantIsIgnored(t *testing.T) {
	te := newTestEnv(t)
	owner := te.connect(studentUser)
	te.initLesson(owner)

	send(t, owner, "PROJECT_PERM", []permChange{{TargetID: studentPtc, Permission: int(metadata.PermAll)}}, "")
	waitFor(t, owner, "PROJECT_PERM")

	project, err := te.store.GetProject(context.Background(), testLessonID, studentPtc)
	require.NoError(t, err)
	_, err = te.store.GetEdge(context.Background(), studentPtc, project.ID)
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func TestGrantSubscribeRevokeForcesExit(t *testing.T) {
	te := newTestEnv(t)
	owner := te.connect(studentUser)
	te.initLesson(owner)
	viewer := te.connect(student2User)
	te.initLesson(viewer)
	drain(viewer)

	// Grant READ, viewer subscribes.
	send(t, owner, "PROJECT_PERM", []permChange{{TargetID: student2Ptc, Permission: int(metadata.PermRead | metadata.PermWrite)}}, "")
	waitFor(t, owner, "PROJECT_PERM")
	waitFor(t, viewer, "PROJECT_PERM_CHANGED")

	send(t, viewer, "SUBS_PARTICIPANT", map[string]any{"target": []int64{studentPtc}}, "")
	subs := waitFor(t, viewer, "SUBS_PARTICIPANT")
	outcomes := decodePayload[[]subsOutcome](t, subs)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].OK)

	subsRoom := rooms.SubsRoom(testCourseID, testLessonID, studentPtc)
	require.True(t, te.env.Sessions.InRoom(viewer.Session.SID, rooms.SubsPtc, subsRoom))

	// A live edit reaches the subscribed viewer.
	send(t, owner, "FILE_MOD", map[string]any{
		"ownerId": studentPtc, "file": "main.py", "cursor": 1, "change": "a", "timestamp": 1,
	}, "")
	waitFor(t, viewer, "FILE_MOD")

	// Revoke READ: the viewer must be forced out of the owner's
	// subscription room, even though the eviction travels through pub/sub.
	send(t, owner, "PROJECT_PERM", []permChange{{TargetID: student2Ptc, Permission: 0}}, "")
	waitFor(t, owner, "PROJECT_PERM")

	require.Eventually(t, func() bool {
		return !te.env.Sessions.InRoom(viewer.Session.SID, rooms.SubsPtc, subsRoom)
	}, 5*time.Second, 10*time.Millisecond, "revoked viewer must exit the subscription room")

	changed := waitFor(t, viewer, "PROJECT_PERM_CHANGED")
	payload := decodePayload[permChangedBroadcast](t, changed)
	assert.Equal(t, int(metadata.PermRead|metadata.PermWrite), payload.Removed)

	// A subsequent live edit no longer reaches the revoked viewer.
	drain(viewer)
	send(t, owner, "FILE_MOD", map[string]any{
		"ownerId": studentPtc, "file": "main.py", "cursor": 2, "change": "b", "timestamp": 2,
	}, "")
	expectNone(t, viewer, "FILE_MOD")
}

func TestProjectAccessibleListsAccessedByEdges(t *testing.T) {
	te := newTestEnv(t)
	conn := te.connect(studentUser)
	te.initLesson(conn)

	project, err := te.store.GetProject(context.Background(), testLessonID, studentPtc)
	require.NoError(t, err)
	_, _, err = te.store.SetPermission(context.Background(), project.ID, student2Ptc, metadata.PermRead)
	require.NoError(t, err)

	send(t, conn, "PROJECT_ACCESSIBLE", nil, "")
	frame := waitFor(t, conn, "PROJECT_ACCESSIBLE")
	payload := decodePayload[projectAccessibleResponse](t, frame)

	require.Len(t, payload.AccessedBy, 1)
	assert.Equal(t, student2Ptc, payload.AccessedBy[0].Viewer)
	assert.Equal(t, int(metadata.PermRead), payload.AccessedBy[0].Perm)
}
