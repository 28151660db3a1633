package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/classroomlive/classroomd/internal/metadata"
)

// fakeStore is a hand-rolled in-memory metadata.Store, the same fake-store
// pattern internal/permission and internal/feedback use, widened to the
// full interface so handler tests can drive every verb against it.
type fakeStore struct {
	mu sync.Mutex

	participants map[int64]*metadata.Participant
	lessons      map[int64]*metadata.Lesson

	projects      map[int64]*metadata.Project
	nextProjectID int64

	// edges is keyed [projectID, viewerParticipantID]; presence of a key
	// is a distinct state from a zero permission.
	edges map[[2]int64]metadata.Permission

	coderefs  map[int64]*metadata.CodeReference
	nextRefID int64

	feedbacks      map[int64]*metadata.Feedback
	nextFeedbackID int64

	// viewers is feedbackID -> participantID -> valid.
	viewers map[int64]map[int64]bool

	comments      map[int64]*metadata.Comment
	nextCommentID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		participants: make(map[int64]*metadata.Participant),
		lessons:      make(map[int64]*metadata.Lesson),
		projects:     make(map[int64]*metadata.Project),
		edges:        make(map[[2]int64]metadata.Permission),
		coderefs:     make(map[int64]*metadata.CodeReference),
		feedbacks:    make(map[int64]*metadata.Feedback),
		viewers:      make(map[int64]map[int64]bool),
		comments:     make(map[int64]*metadata.Comment),
	}
}

func (f *fakeStore) addParticipant(id, courseID, userID int64, role metadata.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.participants[id] = &metadata.Participant{ID: id, CourseID: courseID, UserID: userID, Role: role, Nickname: "p"}
}

func (f *fakeStore) addLesson(id, courseID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lessons[id] = &metadata.Lesson{ID: id, CourseID: courseID}
}

func (f *fakeStore) GetParticipant(_ context.Context, id int64) (*metadata.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) GetParticipantByUser(_ context.Context, courseID, userID int64) (*metadata.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants {
		if p.CourseID == courseID && p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, metadata.ErrNotFound
}

func (f *fakeStore) ListParticipants(_ context.Context, courseID int64) ([]*metadata.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*metadata.Participant
	for _, p := range f.participants {
		if p.CourseID == courseID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role == metadata.RoleTeacher
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *fakeStore) SetActive(_ context.Context, id int64, active bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[id]
	if !ok {
		return false, metadata.ErrNotFound
	}
	if p.Active == active {
		return false, nil
	}
	p.Active = active
	return true, nil
}

func (f *fakeStore) GetLesson(_ context.Context, id int64) (*metadata.Lesson, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lessons[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeStore) GetProject(_ context.Context, lessonID, participantID int64) (*metadata.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.projects {
		if p.LessonID == lessonID && p.ParticipantID == participantID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, metadata.ErrNotFound
}

func (f *fakeStore) GetProjectByID(_ context.Context, id int64) (*metadata.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) CreateProject(ctx context.Context, lessonID, participantID int64) (*metadata.Project, error) {
	if existing, err := f.GetProject(ctx, lessonID, participantID); err == nil {
		return existing, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextProjectID++
	p := &metadata.Project{
		ID:               f.nextProjectID,
		LessonID:         lessonID,
		ParticipantID:    participantID,
		RecentActivityAt: time.Now(),
		Active:           true,
	}
	f.projects[p.ID] = p
	cp := *p
	return &cp, nil
}

func (f *fakeStore) MarkTemplateApplied(_ context.Context, projectID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[projectID]
	if !ok {
		return false, metadata.ErrNotFound
	}
	if p.TemplateApplied {
		return false, nil
	}
	p.TemplateApplied = true
	return true, nil
}

func (f *fakeStore) TouchActivity(_ context.Context, projectID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[projectID]
	if !ok {
		return metadata.ErrNotFound
	}
	p.RecentActivityAt = time.Now()
	return nil
}

func (f *fakeStore) GetEdge(_ context.Context, viewerParticipantID, projectID int64) (*metadata.ProjectViewer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	perm, ok := f.edges[[2]int64{projectID, viewerParticipantID}]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	return &metadata.ProjectViewer{ProjectID: projectID, ViewerParticipantID: viewerParticipantID, Permission: perm}, nil
}

func (f *fakeStore) SetPermission(_ context.Context, projectID, viewerParticipantID int64, perm metadata.Permission) (metadata.Permission, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := [2]int64{projectID, viewerParticipantID}
	previous, existed := f.edges[key]
	f.edges[key] = perm
	return previous, existed, nil
}

func (f *fakeStore) AccessibleTo(_ context.Context, viewerParticipantID int64) ([]metadata.ProjectViewer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []metadata.ProjectViewer
	for key, perm := range f.edges {
		if key[1] == viewerParticipantID {
			out = append(out, metadata.ProjectViewer{ProjectID: key[0], ViewerParticipantID: key[1], Permission: perm})
		}
	}
	return out, nil
}

func (f *fakeStore) AccessedBy(_ context.Context, projectID int64) ([]metadata.ProjectViewer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []metadata.ProjectViewer
	for key, perm := range f.edges {
		if key[0] == projectID {
			out = append(out, metadata.ProjectViewer{ProjectID: key[0], ViewerParticipantID: key[1], Permission: perm})
		}
	}
	return out, nil
}

func (f *fakeStore) FindOrCreateCodeReference(_ context.Context, projectID int64, file, line string) (*metadata.CodeReference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ref := range f.coderefs {
		if ref.ProjectID == projectID && ref.File == file && ref.Line == line {
			cp := *ref
			return &cp, nil
		}
	}
	f.nextRefID++
	ref := &metadata.CodeReference{ID: f.nextRefID, ProjectID: projectID, File: file, Line: line}
	f.coderefs[ref.ID] = ref
	cp := *ref
	return &cp, nil
}

func (f *fakeStore) GetCodeReference(_ context.Context, id int64) (*metadata.CodeReference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref, ok := f.coderefs[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	cp := *ref
	return &cp, nil
}

func (f *fakeStore) RewriteFilePrefix(_ context.Context, projectID int64, oldPath, newPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ref := range f.coderefs {
		if ref.ProjectID != projectID {
			continue
		}
		if ref.File == oldPath {
			ref.File = newPath
		} else if strings.HasPrefix(ref.File, oldPath+"/") {
			ref.File = newPath + "/" + strings.TrimPrefix(ref.File, oldPath+"/")
		}
	}
	return nil
}

func (f *fakeStore) MarkDeletedByPrefix(_ context.Context, projectID int64, pathPrefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ref := range f.coderefs {
		if ref.ProjectID != projectID {
			continue
		}
		if ref.File == pathPrefix || strings.HasPrefix(ref.File, pathPrefix+"/") {
			ref.Deleted = true
		}
	}
	return nil
}

func (f *fakeStore) CreateFeedback(_ context.Context, codeRefID, authorParticipantID int64) (*metadata.Feedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextFeedbackID++
	fb := &metadata.Feedback{ID: f.nextFeedbackID, CodeRefID: codeRefID, AuthorParticipantID: authorParticipantID, CreatedAt: time.Now()}
	f.feedbacks[fb.ID] = fb
	cp := *fb
	return &cp, nil
}

func (f *fakeStore) GetFeedback(_ context.Context, id int64) (*metadata.Feedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fb, ok := f.feedbacks[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	cp := *fb
	return &cp, nil
}

func (f *fakeStore) SetResolved(_ context.Context, id int64, resolved bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fb, ok := f.feedbacks[id]
	if !ok {
		return metadata.ErrNotFound
	}
	fb.Resolved = resolved
	return nil
}

func (f *fakeStore) GetFeedbackViewers(_ context.Context, feedbackID int64) ([]metadata.FeedbackViewer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []metadata.FeedbackViewer
	for pid, valid := range f.viewers[feedbackID] {
		out = append(out, metadata.FeedbackViewer{FeedbackID: feedbackID, ParticipantID: pid, Valid: valid})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out, nil
}

func (f *fakeStore) SetFeedbackViewers(_ context.Context, feedbackID int64, wantParticipantIDs []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.viewers[feedbackID]
	if !ok {
		existing = make(map[int64]bool)
		f.viewers[feedbackID] = existing
	}
	want := make(map[int64]bool, len(wantParticipantIDs))
	for _, id := range wantParticipantIDs {
		want[id] = true
	}
	for _, id := range wantParticipantIDs {
		existing[id] = true
	}
	for pid := range existing {
		if !want[pid] {
			existing[pid] = false
		}
	}
	return nil
}

func (f *fakeStore) CreateComment(_ context.Context, feedbackID, authorParticipantID int64, content string) (*metadata.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCommentID++
	now := time.Now()
	c := &metadata.Comment{ID: f.nextCommentID, FeedbackID: feedbackID, AuthorParticipantID: authorParticipantID, Content: content, CreatedAt: now, UpdatedAt: now}
	f.comments[c.ID] = c
	cp := *c
	return &cp, nil
}

func (f *fakeStore) GetComment(_ context.Context, id int64) (*metadata.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comments[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) UpdateComment(_ context.Context, id int64, content string) (*metadata.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comments[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	c.Content = content
	c.UpdatedAt = time.Now()
	cp := *c
	return &cp, nil
}

func (f *fakeStore) DeleteComment(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comments[id]
	if !ok {
		return metadata.ErrNotFound
	}
	c.Deleted = true
	return nil
}

func (f *fakeStore) ListLessonFeedback(_ context.Context, lessonID int64, ownerProjectID *int64, file *string) ([]metadata.FeedbackThread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ids []int64
	for id := range f.feedbacks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var threads []metadata.FeedbackThread
	for _, id := range ids {
		fb := f.feedbacks[id]
		ref, ok := f.coderefs[fb.CodeRefID]
		if !ok {
			continue
		}
		project, ok := f.projects[ref.ProjectID]
		if !ok || project.LessonID != lessonID {
			continue
		}
		if ownerProjectID != nil && ref.ProjectID != *ownerProjectID {
			continue
		}
		if file != nil && ref.File != *file {
			continue
		}

		thread := metadata.FeedbackThread{Feedback: *fb, Ref: *ref}
		var commentIDs []int64
		for cid, c := range f.comments {
			if c.FeedbackID == id {
				commentIDs = append(commentIDs, cid)
			}
		}
		sort.Slice(commentIDs, func(i, j int) bool { return commentIDs[i] < commentIDs[j] })
		for _, cid := range commentIDs {
			thread.Comments = append(thread.Comments, *f.comments[cid])
		}
		threads = append(threads, thread)
	}
	return threads, nil
}

func (f *fakeStore) Close() error { return nil }
