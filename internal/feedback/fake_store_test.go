package feedback

import (
	"context"
	"time"

	"github.com/classroomlive/classroomd/internal/metadata"
)

// fakeStore is a hand-rolled in-memory metadata.Store covering the
// feedback/code-reference/comment surface, a hand-rolled in-memory fake
// rather than a mocking framework (see the test-tooling
// note) rather than a mocking framework.
type fakeStore struct {
	metadata.Store

	nextID int64
	refs   map[int64]*metadata.CodeReference
	fbs    map[int64]*metadata.Feedback
	views  map[int64][]metadata.FeedbackViewer
	cmts   map[int64]*metadata.Comment
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		refs:  make(map[int64]*metadata.CodeReference),
		fbs:   make(map[int64]*metadata.Feedback),
		views: make(map[int64][]metadata.FeedbackViewer),
		cmts:  make(map[int64]*metadata.Comment),
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) FindOrCreateCodeReference(_ context.Context, projectID int64, file, line string) (*metadata.CodeReference, error) {
	for _, r := range f.refs {
		if r.ProjectID == projectID && r.File == file && r.Line == line {
			return r, nil
		}
	}
	r := &metadata.CodeReference{ID: f.id(), ProjectID: projectID, File: file, Line: line}
	f.refs[r.ID] = r
	return r, nil
}

func (f *fakeStore) GetCodeReference(_ context.Context, id int64) (*metadata.CodeReference, error) {
	r, ok := f.refs[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) CreateFeedback(_ context.Context, codeRefID, authorParticipantID int64) (*metadata.Feedback, error) {
	fb := &metadata.Feedback{ID: f.id(), CodeRefID: codeRefID, AuthorParticipantID: authorParticipantID, CreatedAt: time.Unix(0, 0)}
	f.fbs[fb.ID] = fb
	return fb, nil
}

func (f *fakeStore) GetFeedback(_ context.Context, id int64) (*metadata.Feedback, error) {
	fb, ok := f.fbs[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	cp := *fb
	return &cp, nil
}

func (f *fakeStore) SetResolved(_ context.Context, id int64, resolved bool) error {
	fb, ok := f.fbs[id]
	if !ok {
		return metadata.ErrNotFound
	}
	fb.Resolved = resolved
	return nil
}

func (f *fakeStore) GetFeedbackViewers(_ context.Context, feedbackID int64) ([]metadata.FeedbackViewer, error) {
	return append([]metadata.FeedbackViewer(nil), f.views[feedbackID]...), nil
}

func (f *fakeStore) SetFeedbackViewers(_ context.Context, feedbackID int64, wantParticipantIDs []int64) error {
	want := make(map[int64]struct{}, len(wantParticipantIDs))
	for _, id := range wantParticipantIDs {
		want[id] = struct{}{}
	}

	existing := make(map[int64]int) // participantID -> index
	for i, v := range f.views[feedbackID] {
		existing[v.ParticipantID] = i
	}

	for id := range want {
		if i, ok := existing[id]; ok {
			f.views[feedbackID][i].Valid = true
			continue
		}
		f.views[feedbackID] = append(f.views[feedbackID], metadata.FeedbackViewer{FeedbackID: feedbackID, ParticipantID: id, Valid: true})
	}
	for i, v := range f.views[feedbackID] {
		if _, ok := want[v.ParticipantID]; !ok {
			f.views[feedbackID][i].Valid = false
		}
	}
	return nil
}

func (f *fakeStore) CreateComment(_ context.Context, feedbackID, authorParticipantID int64, content string) (*metadata.Comment, error) {
	c := &metadata.Comment{ID: f.id(), FeedbackID: feedbackID, AuthorParticipantID: authorParticipantID, Content: content, CreatedAt: time.Unix(0, 0)}
	f.cmts[c.ID] = c
	return c, nil
}

func (f *fakeStore) GetComment(_ context.Context, id int64) (*metadata.Comment, error) {
	c, ok := f.cmts[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) UpdateComment(_ context.Context, id int64, content string) (*metadata.Comment, error) {
	c, ok := f.cmts[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	c.Content = content
	c.UpdatedAt = time.Unix(1, 0)
	cp := *c
	return &cp, nil
}

func (f *fakeStore) DeleteComment(_ context.Context, id int64) error {
	c, ok := f.cmts[id]
	if !ok {
		return metadata.ErrNotFound
	}
	c.Deleted = true
	return nil
}
