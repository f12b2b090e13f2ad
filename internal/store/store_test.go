package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socratic-ai/tutor-platform/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	s, err := Open(ctx, "sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(ctx))
	return s
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func seedCourse(t *testing.T, s *Store, teacherID, code string) (*model.Course, *model.Assignment) {
	t.Helper()
	ctx := context.Background()

	course := &model.Course{ID: newID(), TeacherID: teacherID, Name: "Economics", JoinCode: code, CreatedAt: baseTime}
	require.NoError(t, s.CreateCourse(ctx, course))

	assignment := &model.Assignment{ID: newID(), CourseID: course.ID, Title: "Markets", CreatedAt: baseTime}
	require.NoError(t, s.CreateAssignment(ctx, assignment))

	return course, assignment
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "")
	assert.Error(t, err)
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: DialectPostgres}
	lite := &Store{dialect: DialectSQLite}

	q := `SELECT * FROM t WHERE a = ? AND b IN (?, ?)`
	assert.Equal(t, `SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)`, pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}

func TestCreateCourse_DuplicateJoinCode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedCourse(t, s, "teacher-1", "ABC123")

	dup := &model.Course{ID: newID(), TeacherID: "teacher-2", Name: "Other", JoinCode: "ABC123", CreatedAt: baseTime}
	assert.ErrorIs(t, s.CreateCourse(ctx, dup), ErrConflict)
}

func TestGetCourseByJoinCode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	course, _ := seedCourse(t, s, "teacher-1", "ABC123")

	got, err := s.GetCourseByJoinCode(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, course.ID, got.ID)
	assert.True(t, baseTime.Equal(got.CreatedAt))

	_, err = s.GetCourseByJoinCode(ctx, "abc123")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnroll_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	course, _ := seedCourse(t, s, "teacher-1", "ABC123")

	created, err := s.Enroll(ctx, course.ID, "student-1", baseTime)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.Enroll(ctx, course.ID, "student-1", baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, created)

	n, err := s.CountEnrollments(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	enrolled, err := s.IsEnrolled(ctx, course.ID, "student-1")
	require.NoError(t, err)
	assert.True(t, enrolled)

	enrolled, err = s.IsEnrolled(ctx, course.ID, "student-2")
	require.NoError(t, err)
	assert.False(t, enrolled)

	courses, err := s.ListCoursesByStudent(ctx, "student-1")
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, course.ID, courses[0].ID)
}

func TestListAssignments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	course, first := seedCourse(t, s, "teacher-1", "ABC123")
	second := &model.Assignment{ID: newID(), CourseID: course.ID, Title: "Elasticity", CreatedAt: baseTime.Add(time.Hour)}
	require.NoError(t, s.CreateAssignment(ctx, second))

	got, err := s.ListAssignments(ctx, course.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)

	_, err = s.GetAssignment(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetOrCreateConversation_SingleRowPerStudentAssignment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	course, assignment := seedCourse(t, s, "teacher-1", "ABC123")

	first := &model.Conversation{ID: newID(), StudentID: "student-1", CourseID: course.ID, AssignmentID: assignment.ID, CreatedAt: baseTime}
	conv, created, err := s.GetOrCreateConversation(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, first.ID, conv.ID)

	second := &model.Conversation{ID: newID(), StudentID: "student-1", CourseID: course.ID, AssignmentID: assignment.ID, CreatedAt: baseTime.Add(time.Minute)}
	conv, created, err = s.GetOrCreateConversation(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, conv.ID)

	convs, err := s.ListConversations(ctx, course.ID, assignment.ID)
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestMessages_OrderAndWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	course, assignment := seedCourse(t, s, "teacher-1", "ABC123")
	conv, _, err := s.GetOrCreateConversation(ctx, &model.Conversation{
		ID: newID(), StudentID: "student-1", CourseID: course.ID, AssignmentID: assignment.ID, CreatedAt: baseTime,
	})
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 5; i++ {
		sender := model.SenderStudent
		if i%2 == 1 {
			sender = model.SenderTutor
		}
		m := &model.Message{
			ID:             newID(),
			ConversationID: conv.ID,
			Sender:         sender,
			Text:           fmt.Sprintf("message %d", i),
			CreatedAt:      baseTime.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, s.AppendMessage(ctx, m))
		ids = append(ids, m.ID)
	}

	all, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, m := range all {
		assert.Equal(t, ids[i], m.ID)
	}

	recent, err := s.RecentMessages(ctx, conv.ID, 2, ids[4])
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, ids[2], recent[0].ID)
	assert.Equal(t, ids[3], recent[1].ID)

	none, err := s.RecentMessages(ctx, conv.ID, 0, "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAppendReply_TagsOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	course, assignment := seedCourse(t, s, "teacher-1", "ABC123")
	conv, _, err := s.GetOrCreateConversation(ctx, &model.Conversation{
		ID: newID(), StudentID: "student-1", CourseID: course.ID, AssignmentID: assignment.ID, CreatedAt: baseTime,
	})
	require.NoError(t, err)

	student := &model.Message{ID: newID(), ConversationID: conv.ID, Sender: model.SenderStudent, Text: "I'm lost", CreatedAt: baseTime}
	require.NoError(t, s.AppendMessage(ctx, student))

	tags := model.MessageTags{QuestionNumber: model.IntPtr(3), TopicTag: model.StringPtr("supply and demand"), ConfusionFlag: true}
	reply := &model.Message{
		ID: newID(), ConversationID: conv.ID, Sender: model.SenderTutor, Text: "What do you notice?",
		CreatedAt: baseTime.Add(time.Second), GroundedFlag: model.BoolPtr(true),
	}
	require.NoError(t, s.AppendReply(ctx, student.ID, tags, reply))

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "I'm lost", msgs[0].Text)
	require.NotNil(t, msgs[0].QuestionNumber)
	assert.Equal(t, 3, *msgs[0].QuestionNumber)
	require.NotNil(t, msgs[0].TopicTag)
	assert.Equal(t, "supply and demand", *msgs[0].TopicTag)
	assert.True(t, msgs[0].Confused())

	assert.Equal(t, model.SenderTutor, msgs[1].Sender)
	require.NotNil(t, msgs[1].GroundedFlag)
	assert.True(t, *msgs[1].GroundedFlag)
	assert.Nil(t, msgs[1].ConfusionFlag)

	again := &model.Message{ID: newID(), ConversationID: conv.ID, Sender: model.SenderTutor, Text: "again?", CreatedAt: baseTime.Add(2 * time.Second)}
	assert.ErrorIs(t, s.AppendReply(ctx, student.ID, model.MessageTags{}, again), ErrConflict)
	assert.ErrorIs(t, s.AppendReply(ctx, "missing", model.MessageTags{}, again), ErrNotFound)

	msgs, err = s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestListMessagesForConversations_InclusiveBounds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	course, assignment := seedCourse(t, s, "teacher-1", "ABC123")

	var convIDs []string
	for _, student := range []string{"student-1", "student-2"} {
		conv, _, err := s.GetOrCreateConversation(ctx, &model.Conversation{
			ID: newID(), StudentID: student, CourseID: course.ID, AssignmentID: assignment.ID, CreatedAt: baseTime,
		})
		require.NoError(t, err)
		convIDs = append(convIDs, conv.ID)

		for i := 0; i < 3; i++ {
			require.NoError(t, s.AppendMessage(ctx, &model.Message{
				ID: newID(), ConversationID: conv.ID, Sender: model.SenderStudent,
				Text: "hi", CreatedAt: baseTime.Add(time.Duration(i) * time.Hour),
			}))
		}
	}

	all, err := s.ListMessagesForConversations(ctx, convIDs, nil, nil)
	require.NoError(t, err)
	assert.Len(t, all, 6)

	from := baseTime.Add(time.Hour)
	to := baseTime.Add(time.Hour)
	bounded, err := s.ListMessagesForConversations(ctx, convIDs, &from, &to)
	require.NoError(t, err)
	assert.Len(t, bounded, 2)

	empty, err := s.ListMessagesForConversations(ctx, nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestProfiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertProfile(ctx, model.Profile{ID: "student-1", DisplayName: "Ada", Role: model.RoleStudent}))
	require.NoError(t, s.UpsertProfile(ctx, model.Profile{ID: "student-1", DisplayName: "Ada L.", Role: model.RoleStudent}))

	profiles, err := s.GetProfiles(ctx, []string{"student-1", "student-2"})
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "Ada L.", profiles["student-1"].DisplayName)
}

func TestMaterials_VisibilityFilterAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	course, assignment := seedCourse(t, s, "teacher-1", "ABC123")

	reading := &model.Material{
		ID: newID(), CourseID: course.ID, AssignmentID: &assignment.ID, Title: "Chapter 3",
		Kind: model.KindReading, StoragePath: "courses/x/materials/a.pdf", TextExtracted: true, CreatedAt: baseTime,
	}
	require.NoError(t, s.CreateMaterial(ctx, reading, []model.MaterialTextChunk{
		{MaterialID: reading.ID, ChunkIndex: 0, Content: "Demand curves slope downward."},
		{MaterialID: reading.ID, ChunkIndex: 1, Content: "Supply curves slope upward."},
	}))

	answers := &model.Material{
		ID: newID(), CourseID: course.ID, Title: "Answer key",
		Kind: model.KindAnswers, StoragePath: "courses/x/materials/b.pdf", TextExtracted: true, CreatedAt: baseTime.Add(time.Minute),
	}
	require.NoError(t, s.CreateMaterial(ctx, answers, []model.MaterialTextChunk{
		{MaterialID: answers.ID, ChunkIndex: 0, Content: "The answer is 42."},
	}))

	all, err := s.ListMaterials(ctx, course.ID, nil, []model.MaterialKind{model.KindReading, model.KindAnswers})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	visible, err := s.ListMaterials(ctx, course.ID, &assignment.ID, model.StudentVisibleKinds())
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, reading.ID, visible[0].ID)
	require.NotNil(t, visible[0].AssignmentID)
	assert.Equal(t, assignment.ID, *visible[0].AssignmentID)

	excerpts, err := s.ListMaterialExcerpts(ctx, course.ID, &assignment.ID, model.StudentVisibleKinds(), 10)
	require.NoError(t, err)
	require.Len(t, excerpts, 2)
	for _, e := range excerpts {
		assert.NotContains(t, e.Content, "42")
		assert.Equal(t, "Chapter 3", e.Title)
	}

	require.NoError(t, s.DeleteMaterial(ctx, reading.ID))
	_, err = s.GetMaterial(ctx, reading.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteMaterial(ctx, reading.ID), ErrNotFound)

	excerpts, err = s.ListMaterialExcerpts(ctx, course.ID, nil, model.StudentVisibleKinds(), 10)
	require.NoError(t, err)
	assert.Empty(t, excerpts)
}

func TestListMaterialExcerpts_RanksBeforeLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	course, assignment := seedCourse(t, s, "teacher-1", "RANK01")

	add := func(title string, assignmentID *string, createdAt time.Time, chunks ...string) *model.Material {
		m := &model.Material{
			ID: newID(), CourseID: course.ID, AssignmentID: assignmentID, Title: title,
			Kind: model.KindReading, StoragePath: "courses/x/materials/" + title, TextExtracted: true, CreatedAt: createdAt,
		}
		var cs []model.MaterialTextChunk
		for i, c := range chunks {
			cs = append(cs, model.MaterialTextChunk{MaterialID: m.ID, ChunkIndex: i, Content: c})
		}
		require.NoError(t, s.CreateMaterial(ctx, m, cs))
		return m
	}

	add("syllabus", nil, baseTime, "Course overview.")
	add("old handout", &assignment.ID, baseTime.Add(time.Minute), "Old handout text.")
	add("new handout", &assignment.ID, baseTime.Add(time.Hour), "New handout part one.", "New handout part two.")

	excerpts, err := s.ListMaterialExcerpts(ctx, course.ID, &assignment.ID, model.StudentVisibleKinds(), 3)
	require.NoError(t, err)

	var got []string
	for _, e := range excerpts {
		got = append(got, e.Content)
	}
	assert.Equal(t, []string{"New handout part one.", "New handout part two.", "Old handout text."}, got)
}
