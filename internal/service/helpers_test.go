package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/socratic-ai/tutor-platform/internal/llm"
	"github.com/socratic-ai/tutor-platform/internal/model"
	"github.com/socratic-ai/tutor-platform/internal/store"
	"github.com/socratic-ai/tutor-platform/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	teacher      = model.AuthContext{UserID: "teacher-1", Role: model.RoleTeacher, DisplayName: "Ms. Rivera"}
	otherTeacher = model.AuthContext{UserID: "teacher-2", Role: model.RoleTeacher}
	student      = model.AuthContext{UserID: "student-1", Role: model.RoleStudent, DisplayName: "Ada"}
	otherStudent = model.AuthContext{UserID: "student-2", Role: model.RoleStudent, DisplayName: "Grace"}
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	ctx := context.Background()
	st, err := store.Open(ctx, "sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(ctx))
	return st
}

// fixture is a course with one assignment and one enrolled student.
type fixture struct {
	store      *store.Store
	course     *model.Course
	assignment *model.Assignment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := newTestStore(t)

	course := &model.Course{ID: newID(), TeacherID: teacher.UserID, Name: "Economics 101", JoinCode: "ABC123", CreatedAt: now()}
	require.NoError(t, st.CreateCourse(ctx, course))

	assignment := &model.Assignment{ID: newID(), CourseID: course.ID, Title: "Problem set 1", CreatedAt: now()}
	require.NoError(t, st.CreateAssignment(ctx, assignment))

	_, err := st.Enroll(ctx, course.ID, student.UserID, now())
	require.NoError(t, err)

	return &fixture{store: st, course: course, assignment: assignment}
}

func (f *fixture) openConversation(t *testing.T, auth model.AuthContext) *model.Conversation {
	t.Helper()

	svc := NewConversationService(f.store, logger.NewNop())
	resp, err := svc.Open(context.Background(), auth, &model.OpenConversationRequest{
		CourseID:     f.course.ID,
		AssignmentID: f.assignment.ID,
	})
	require.NoError(t, err)
	return resp.Conversation
}

type fakeResponse struct {
	content string
	err     error
}

// fakeLLM replays scripted responses and records requests.
type fakeLLM struct {
	mu        sync.Mutex
	responses []fakeResponse
	requests  []*llm.CompletionRequest
}

func newFakeLLM(responses ...fakeResponse) *fakeLLM {
	return &fakeLLM{responses: responses}
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if len(f.responses) == 0 {
		return nil, errors.New("fake llm: no scripted response")
	}
	r := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	if r.err != nil {
		return nil, r.err
	}
	return &llm.CompletionResponse{Content: r.content, Model: "fake-model", TokensIn: 10, TokensOut: 5}, nil
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeLLM) lastRequest() *llm.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

func tutorJSON(reply string, question any, topic any, confused bool, grounded bool) string {
	q := "null"
	if question != nil {
		q = fmt.Sprintf("%v", question)
	}
	t := "null"
	if topic != nil {
		t = fmt.Sprintf("%q", topic)
	}
	return fmt.Sprintf(`{"tutor_reply": %q, "question_number": %s, "topic_tag": %s, "confusion_flag": %t, "grounded": %t}`,
		reply, q, t, confused, grounded)
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.ConversationEvent
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, event *model.ConversationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) published() []*model.ConversationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*model.ConversationEvent(nil), p.events...)
}

// memoryObjects is an in-memory ObjectStorage.
type memoryObjects struct {
	mu         sync.Mutex
	objects    map[string][]byte
	presignErr error
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: map[string][]byte{}}
}

func (m *memoryObjects) Upload(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryObjects) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	if m.presignErr != nil {
		return "", m.presignErr
	}
	return fmt.Sprintf("https://objects.test/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

func (m *memoryObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryObjects) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// failingAppendStore fails student message writes.
type failingAppendStore struct {
	Store
}

func (failingAppendStore) AppendMessage(context.Context, *model.Message) error {
	return errors.New("disk full")
}

func newTutor(t *testing.T, st Store, client llm.Client, pub EventPublisher) *TutorService {
	t.Helper()
	log := logger.NewNop()
	materials := NewMaterialService(st, newMemoryObjects(), MaterialConfig{}, log)
	return NewTutorService(st, materials, client, pub, TutorConfig{HistoryWindow: 4}, log)
}
