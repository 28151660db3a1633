package permission

import (
	"context"

	"github.com/classroomlive/classroomd/internal/metadata"
)

// fakeStore is a minimal in-memory metadata.Store covering only the ACL
// surface permission.Engine depends on, a hand-rolled in-memory fake
// rather than a mocking framework (see the
// ambient-stack test-tooling note).
type fakeStore struct {
	metadata.Store
	edges map[[2]int64]metadata.Permission
}

func newFakeStore() *fakeStore {
	return &fakeStore{edges: make(map[[2]int64]metadata.Permission)}
}

func (f *fakeStore) GetEdge(_ context.Context, viewerParticipantID, projectID int64) (*metadata.ProjectViewer, error) {
	perm, ok := f.edges[[2]int64{viewerParticipantID, projectID}]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	return &metadata.ProjectViewer{ProjectID: projectID, ViewerParticipantID: viewerParticipantID, Permission: perm}, nil
}

func (f *fakeStore) SetPermission(_ context.Context, projectID, viewerParticipantID int64, perm metadata.Permission) (metadata.Permission, bool, error) {
	key := [2]int64{viewerParticipantID, projectID}
	previous, existed := f.edges[key]
	f.edges[key] = perm
	return previous, existed, nil
}

func (f *fakeStore) AccessibleTo(_ context.Context, viewerParticipantID int64) ([]metadata.ProjectViewer, error) {
	var out []metadata.ProjectViewer
	for k, perm := range f.edges {
		if k[0] == viewerParticipantID {
			out = append(out, metadata.ProjectViewer{ViewerParticipantID: k[0], ProjectID: k[1], Permission: perm})
		}
	}
	return out, nil
}

func (f *fakeStore) AccessedBy(_ context.Context, projectID int64) ([]metadata.ProjectViewer, error) {
	var out []metadata.ProjectViewer
	for k, perm := range f.edges {
		if k[1] == projectID {
			out = append(out, metadata.ProjectViewer{ViewerParticipantID: k[0], ProjectID: k[1], Permission: perm})
		}
	}
	return out, nil
}
