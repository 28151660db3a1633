package permission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroomlive/classroomd/internal/cache"
	"github.com/classroomlive/classroomd/internal/metadata"
)

func newTestEngine(t *testing.T) (*Engine, *fakeStore) {
	t.Helper()
	c, err := cache.New(cache.Config{NumCounters: 1000, MaxCost: 1000, TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	store := newFakeStore()
	return New(store, c), store
}

var (
	teacher = metadata.Participant{ID: 1, Role: metadata.RoleTeacher}
	student = metadata.Participant{ID: 2, Role: metadata.RoleStudent}
	student2 = metadata.Participant{ID: 3, Role: metadata.RoleStudent}
	project  = metadata.Project{ID: 100, ParticipantID: 2}
)

func TestCheckPermTeacherDefaultAllowsWithoutEdge(t *testing.T) {
	e, _ := newTestEngine(t)
	ok, err := e.CheckPerm(context.Background(), teacher, project, student, metadata.PermAll)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckPermExplicitZeroEdgeDeniesTeacher(t *testing.T) {
	e, store := newTestEngine(t)
	store.edges[[2]int64{teacher.ID, project.ID}] = metadata.PermNone

	ok, err := e.CheckPerm(context.Background(), teacher, project, student, metadata.PermRead)
	require.NoError(t, err)
	assert.False(t, ok, "an explicit zero-permission edge must deny even a teacher-involved pair")
}

func TestCheckPermOwnerAlwaysAllowed(t *testing.T) {
	e, store := newTestEngine(t)
	// Even an explicit zero-permission edge cannot lock an owner out of
	// their own project.
	store.edges[[2]int64{student.ID, project.ID}] = metadata.PermNone

	ok, err := e.CheckPerm(context.Background(), student, project, student, metadata.PermAll)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckPermStudentToStudentDeniesWithoutEdge(t *testing.T) {
	e, _ := newTestEngine(t)
	ok, err := e.CheckPerm(context.Background(), student2, project, student, metadata.PermRead)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckPermStudentToStudentAllowsWithSufficientEdge(t *testing.T) {
	e, store := newTestEngine(t)
	store.edges[[2]int64{student2.ID, project.ID}] = metadata.PermRead | metadata.PermWrite

	ok, err := e.CheckPerm(context.Background(), student2, project, student, metadata.PermRead)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckPermIsMonotoneInNeed(t *testing.T) {
	e, store := newTestEngine(t)
	store.edges[[2]int64{student2.ID, project.ID}] = metadata.PermRead

	allowedRead, err := e.CheckPerm(context.Background(), student2, project, student, metadata.PermRead)
	require.NoError(t, err)
	require.True(t, allowedRead)

	// PermRead is a superset of PermNone; a lesser need must still be allowed.
	allowedNone, err := e.CheckPerm(context.Background(), student2, project, student, metadata.PermNone)
	require.NoError(t, err)
	assert.True(t, allowedNone)

	// A stricter need not covered by the edge must be denied.
	allowedAll, err := e.CheckPerm(context.Background(), student2, project, student, metadata.PermAll)
	require.NoError(t, err)
	assert.False(t, allowedAll)
}

func TestModifyPermComputesAddedRemoved(t *testing.T) {
	e, store := newTestEngine(t)
	store.edges[[2]int64{student2.ID, project.ID}] = metadata.PermRead

	delta, err := e.ModifyPerm(context.Background(), student, student2.ID, project, metadata.PermRead|metadata.PermWrite)
	require.NoError(t, err)
	assert.Equal(t, metadata.PermRead, delta.Previous)
	assert.Equal(t, metadata.PermRead|metadata.PermWrite, delta.New)
	assert.Equal(t, metadata.PermWrite, delta.Added)
	assert.Equal(t, metadata.PermNone, delta.Removed)
	assert.Zero(t, delta.Added&delta.Removed)
}

func TestModifyPermRevocationComputesRemoved(t *testing.T) {
	e, store := newTestEngine(t)
	store.edges[[2]int64{student2.ID, project.ID}] = metadata.PermRead | metadata.PermWrite

	delta, err := e.ModifyPerm(context.Background(), student, student2.ID, project, metadata.PermNone)
	require.NoError(t, err)
	assert.Equal(t, metadata.PermRead|metadata.PermWrite, delta.Removed)
	assert.Equal(t, metadata.PermNone, delta.Added)
}

func TestModifyPermIgnoresSelfGrant(t *testing.T) {
	e, store := newTestEngine(t)

	delta, err := e.ModifyPerm(context.Background(), student, student.ID, project, metadata.PermAll)
	require.NoError(t, err)
	assert.Zero(t, *delta)
	_, existed := store.edges[[2]int64{student.ID, project.ID}]
	assert.False(t, existed, "self-grant must be a no-op, not just a zero delta")
}

func TestModifyPermMasksReservedBits(t *testing.T) {
	e, store := newTestEngine(t)

	_, err := e.ModifyPerm(context.Background(), student, student2.ID, project, metadata.Permission(0xFF))
	require.NoError(t, err)
	assert.Equal(t, metadata.PermAll, store.edges[[2]int64{student2.ID, project.ID}])
}

func TestModifyPermInvalidatesCheckPermMemoization(t *testing.T) {
	e, _ := newTestEngine(t)

	denied, err := e.CheckPerm(context.Background(), student2, project, student, metadata.PermRead)
	require.NoError(t, err)
	require.False(t, denied)

	_, err = e.ModifyPerm(context.Background(), student, student2.ID, project, metadata.PermRead)
	require.NoError(t, err)

	allowed, err := e.CheckPerm(context.Background(), student2, project, student, metadata.PermRead)
	require.NoError(t, err)
	assert.True(t, allowed, "granting must be visible immediately, not after the memoization TTL expires")
}

func TestDisplayDefault(t *testing.T) {
	assert.Equal(t, metadata.PermRead, DisplayDefault(teacher, student))
	assert.Equal(t, metadata.PermRead, DisplayDefault(student, teacher))
	assert.Equal(t, metadata.PermNone, DisplayDefault(student, student2))
}
