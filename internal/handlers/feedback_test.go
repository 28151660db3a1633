package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroomlive/classroomd/internal/dispatcher"
	"github.com/classroomlive/classroomd/internal/metadata"
)

func addFeedback(t *testing.T, author *dispatcher.Conn, ownerPtc int64, acl []int64) int64 {
	t.Helper()
	if acl == nil {
		acl = []int64{}
	}
	send(t, author, "FEEDBACK_ADD", map[string]any{
		"ref":     map[string]any{"ownerId": ownerPtc, "file": "main.py", "line": "3-4"},
		"acl":     acl,
		"comment": "have a look",
	}, "")
	frame := waitFor(t, author, "FEEDBACK_ADD")
	thread := decodePayload[metadata.FeedbackThread](t, frame)
	require.NotZero(t, thread.Feedback.ID)
	return thread.Feedback.ID
}

func TestFeedbackAddNotifiesACLMembers(t *testing.T) {
	te := newTestEnv(t)
	author := te.connect(studentUser)
	te.initLesson(author)
	member := te.connect(student2User)
	te.initLesson(member)
	drain(member)

	fbID := addFeedback(t, author, studentPtc, []int64{student2Ptc})

	frame := waitFor(t, member, "FEEDBACK_ADD")
	thread := decodePayload[metadata.FeedbackThread](t, frame)
	assert.Equal(t, fbID, thread.Feedback.ID)
	assert.Equal(t, "main.py", thread.Ref.File)
	require.Len(t, thread.Comments, 1)
	assert.Equal(t, "have a look", thread.Comments[0].Content)
}

func TestFeedbackCommentRequiresACLMembership(t *testing.T) {
	te := newTestEnv(t)
	author := te.connect(studentUser)
	te.initLesson(author)
	outsider := te.connect(student2User)
	te.initLesson(outsider)

	fbID := addFeedback(t, author, studentPtc, nil)

	send(t, outsider, "FEEDBACK_COMMENT", map[string]any{"feedbackId": fbID, "content": "me too"}, "")
	frame := waitFor(t, outsider, "ERROR")
	assert.Equal(t, "FEEDBACK_NOT_AUTH", errorKind(t, frame))
}

func TestFeedbackCommentRepliesWithRollup(t *testing.T) {
	te := newTestEnv(t)
	author := te.connect(studentUser)
	te.initLesson(author)

	fbID := addFeedback(t, author, studentPtc, nil)

	send(t, author, "FEEDBACK_COMMENT", map[string]any{"feedbackId": fbID, "content": "second"}, "")
	frame := waitFor(t, author, "FEEDBACK_COMMENT")
	threads := decodePayload[[]metadata.FeedbackThread](t, frame)
	require.Len(t, threads, 1)
	require.Len(t, threads[0].Comments, 2)
	assert.Equal(t, "second", threads[0].Comments[1].Content)
}

func TestFeedbackModIsAuthorOnly(t *testing.T) {
	te := newTestEnv(t)
	author := te.connect(studentUser)
	te.initLesson(author)
	member := te.connect(student2User)
	te.initLesson(member)

	fbID := addFeedback(t, author, studentPtc, []int64{student2Ptc})

	send(t, member, "FEEDBACK_MOD", map[string]any{"feedbackId": fbID, "acl": []int64{student2Ptc}, "resolved": true}, "")
	frame := waitFor(t, member, "ERROR")
	assert.Equal(t, "FEEDBACK_NOT_AUTH", errorKind(t, frame))
}

func TestFeedbackModTogglesResolvedAndReconcilesACL(t *testing.T) {
	te := newTestEnv(t)
	author := te.connect(studentUser)
	te.initLesson(author)

	fbID := addFeedback(t, author, studentPtc, []int64{student2Ptc})

	send(t, author, "FEEDBACK_MOD", map[string]any{"feedbackId": fbID, "acl": []int64{}, "resolved": true}, "")
	frame := waitFor(t, author, "FEEDBACK_MOD")
	thread := decodePayload[metadata.FeedbackThread](t, frame)
	assert.True(t, thread.Feedback.Resolved)

	recipients, err := te.env.Feedback.Recipients(context.Background(), fbID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{studentPtc}, recipients,
		"removed members must be invalidated while the author stays")
}

func TestFeedbackCommentModSoftDeletes(t *testing.T) {
	te := newTestEnv(t)
	author := te.connect(studentUser)
	te.initLesson(author)

	fbID := addFeedback(t, author, studentPtc, nil)
	threads, err := te.env.Feedback.ListLessonRollup(context.Background(), testLessonID, nil, nil)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	require.Equal(t, fbID, threads[0].Feedback.ID)
	commentID := threads[0].Comments[0].ID

	send(t, author, "FEEDBACK_COMMENT_MOD", map[string]any{"commentId": commentID, "delete": true}, "")
	frame := waitFor(t, author, "FEEDBACK_COMMENT_MOD")
	comment := decodePayload[metadata.Comment](t, frame)
	assert.True(t, comment.Deleted)
}

func TestFeedbackListFiltersByFile(t *testing.T) {
	te := newTestEnv(t)
	author := te.connect(studentUser)
	te.initLesson(author)

	addFeedback(t, author, studentPtc, nil)

	send(t, author, "FEEDBACK_LIST", map[string]any{"ownerId": studentPtc, "file": "main.py"}, "")
	frame := waitFor(t, author, "FEEDBACK_LIST")
	threads := decodePayload[[]metadata.FeedbackThread](t, frame)
	require.Len(t, threads, 1)

	send(t, author, "FEEDBACK_LIST", map[string]any{"ownerId": studentPtc, "file": "other.py"}, "")
	frame = waitFor(t, author, "FEEDBACK_LIST")
	threads = decodePayload[[]metadata.FeedbackThread](t, frame)
	assert.Empty(t, threads)
}
