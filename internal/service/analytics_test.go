package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socratic-ai/tutor-platform/internal/apperr"
	"github.com/socratic-ai/tutor-platform/internal/model"
	"github.com/socratic-ai/tutor-platform/pkg/logger"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func studentMsg(id, convID string, at time.Time, text string, confused bool, question *int, topic *string) model.Message {
	return model.Message{
		ID:             id,
		ConversationID: convID,
		Sender:         model.SenderStudent,
		Text:           text,
		CreatedAt:      at,
		ConfusionFlag:  model.BoolPtr(confused),
		QuestionNumber: question,
		TopicTag:       topic,
	}
}

func tutorMsg(id, convID string, at time.Time, grounded *bool) model.Message {
	return model.Message{
		ID:             id,
		ConversationID: convID,
		Sender:         model.SenderTutor,
		Text:           "What do you notice?",
		CreatedAt:      at,
		GroundedFlag:   grounded,
	}
}

func TestCompute_ConfusionKPIs(t *testing.T) {
	convs := []model.Conversation{
		{ID: "c1", StudentID: "s1"},
		{ID: "c2", StudentID: "s2"},
	}
	msgs := []model.Message{
		studentMsg("m1", "c1", t0, "hello", false, nil, nil),
		studentMsg("m2", "c1", t0.Add(time.Minute), "I'm lost on 3", true, model.IntPtr(3), nil),
		studentMsg("m3", "c2", t0.Add(2*time.Minute), "this curve confuses me", true, nil, model.StringPtr("supply and demand")),
		studentMsg("m4", "c2", t0.Add(3*time.Minute), "ok got it", false, nil, nil),
		tutorMsg("r1", "c1", t0.Add(time.Second), model.BoolPtr(true)),
		tutorMsg("r2", "c2", t0.Add(time.Second), model.BoolPtr(false)),
	}
	profiles := map[string]model.Profile{"s1": {ID: "s1", DisplayName: "Ada"}}

	got := Compute(convs, msgs, profiles)

	want := &model.AnalyticsSnapshot{
		KPIs: model.KPIs{
			ConfusedPct:         50,
			StudentsNeedingHelp: 2,
			TopQuestion:         model.IntPtr(3),
			TopTopic:            model.StringPtr("supply and demand"),
			GroundedRate:        50,
		},
		ByQuestion: []model.QuestionCount{{Question: 3, Confused: 1}},
		Topics:     []model.TopicCount{{Topic: "supply and demand", Confused: 1}},
		Students: []model.StudentNeedingHelp{
			{
				StudentID:      "s2",
				StudentName:    "Unknown",
				Topic:          model.StringPtr("supply and demand"),
				LastTS:         t0.Add(2 * time.Minute),
				ConversationID: "c2",
				LastMessage:    "this curve confuses me",
			},
			{
				StudentID:      "s1",
				StudentName:    "Ada",
				Question:       model.IntPtr(3),
				LastTS:         t0.Add(time.Minute),
				ConversationID: "c1",
				LastMessage:    "I'm lost on 3",
			},
		},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Compute() mismatch (-want +got):\n%s", diff)
	}
}

func TestCompute_EmptySelection(t *testing.T) {
	want := model.EmptySnapshot()

	if diff := cmp.Diff(want, Compute(nil, nil, nil)); diff != "" {
		t.Errorf("no conversations (-want +got):\n%s", diff)
	}

	convs := []model.Conversation{{ID: "c1", StudentID: "s1"}}
	if diff := cmp.Diff(want, Compute(convs, nil, nil)); diff != "" {
		t.Errorf("no messages (-want +got):\n%s", diff)
	}
}

func TestCompute_HistogramOrdering(t *testing.T) {
	convs := []model.Conversation{{ID: "c1", StudentID: "s1"}}

	var msgs []model.Message
	add := func(q int, topic string) {
		id := string(rune('a' + len(msgs)))
		msgs = append(msgs, studentMsg(id, "c1", t0.Add(time.Duration(len(msgs))*time.Second), "?", true, model.IntPtr(q), model.StringPtr(topic)))
	}
	add(5, "zeta")
	add(5, "eta")
	add(2, "eta")
	add(2, "theta")
	add(9, "alpha")
	add(1, "beta")
	add(7, "gamma")
	add(8, "delta")

	got := Compute(convs, msgs, nil)

	assert.Equal(t, []model.QuestionCount{
		{Question: 2, Confused: 2},
		{Question: 5, Confused: 2},
		{Question: 1, Confused: 1},
		{Question: 7, Confused: 1},
		{Question: 8, Confused: 1},
		{Question: 9, Confused: 1},
	}, got.ByQuestion)
	assert.Equal(t, 2, *got.KPIs.TopQuestion)

	assert.Equal(t, []model.TopicCount{
		{Topic: "eta", Confused: 2},
		{Topic: "alpha", Confused: 1},
		{Topic: "beta", Confused: 1},
		{Topic: "delta", Confused: 1},
		{Topic: "gamma", Confused: 1},
	}, got.Topics)
	assert.Equal(t, "eta", *got.KPIs.TopTopic)

	require.Len(t, got.Students, 1)
	assert.Equal(t, 8, *got.Students[0].Question)
}

func TestCompute_StudentsNeedingHelp(t *testing.T) {
	convs := []model.Conversation{
		{ID: "c1", StudentID: "s1"},
		{ID: "c2", StudentID: "s2"},
		{ID: "c3", StudentID: "s3"},
	}
	long := strings.Repeat("é", 150)
	msgs := []model.Message{
		studentMsg("m1", "c1", t0, long, true, nil, nil),
		studentMsg("m2", "c2", t0, "same time", true, nil, nil),
		studentMsg("m3", "c3", t0.Add(-time.Hour), "fine", false, nil, nil),
	}
	profiles := map[string]model.Profile{
		"s1": {ID: "s1", DisplayName: "  "},
		"s2": {ID: "s2", DisplayName: "Grace"},
	}

	got := Compute(convs, msgs, profiles)

	require.Len(t, got.Students, 2)
	assert.Equal(t, "s1", got.Students[0].StudentID)
	assert.Equal(t, "Unknown", got.Students[0].StudentName)
	assert.Equal(t, 100, len([]rune(got.Students[0].LastMessage)))
	assert.Equal(t, "s2", got.Students[1].StudentID)
	assert.Equal(t, "Grace", got.Students[1].StudentName)

	assert.Equal(t, 2, got.KPIs.StudentsNeedingHelp)
	assert.Equal(t, 67, got.KPIs.ConfusedPct)
	assert.Equal(t, 100, got.KPIs.GroundedRate)
	assert.Nil(t, got.KPIs.TopQuestion)
	assert.Nil(t, got.KPIs.TopTopic)
}

func TestCompute_UnknownGroundingCountsAsGrounded(t *testing.T) {
	convs := []model.Conversation{{ID: "c1", StudentID: "s1"}}
	msgs := []model.Message{
		tutorMsg("r1", "c1", t0, nil),
		tutorMsg("r2", "c1", t0, model.BoolPtr(false)),
		tutorMsg("r3", "c1", t0, model.BoolPtr(false)),
	}

	got := Compute(convs, msgs, nil)
	assert.Equal(t, 33, got.KPIs.GroundedRate)
	assert.Equal(t, 0, got.KPIs.ConfusedPct)
}

func TestAggregate_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.UpsertProfile(ctx, model.Profile{ID: student.UserID, DisplayName: "Ada", Role: model.RoleStudent}))
	conv := f.openConversation(t, student)

	client := newFakeLLM(
		fakeResponse{content: tutorJSON("Which step is unclear?", 4, "Marginal Cost", true, true)},
		fakeResponse{content: tutorJSON("Good, what next?", 4, "marginal cost", false, true)},
	)
	tutor := newTutor(t, f.store, client, &recordingPublisher{})

	_, err := tutor.Respond(ctx, student, &model.RespondRequest{ConversationID: conv.ID, Message: "I am stuck on question 4"})
	require.NoError(t, err)
	_, err = tutor.Respond(ctx, student, &model.RespondRequest{ConversationID: conv.ID, Message: "Oh I see now"})
	require.NoError(t, err)

	svc := NewAnalyticsService(f.store, logger.NewNop())
	req := &model.AnalyticsRequest{CourseID: f.course.ID, AssignmentID: f.assignment.ID}

	first, err := svc.Aggregate(ctx, teacher, req)
	require.NoError(t, err)

	assert.Equal(t, 50, first.KPIs.ConfusedPct)
	assert.Equal(t, []model.QuestionCount{{Question: 4, Confused: 1}}, first.ByQuestion)
	assert.Equal(t, []model.TopicCount{{Topic: "marginal cost", Confused: 1}}, first.Topics)
	require.Len(t, first.Students, 1)
	assert.Equal(t, "Ada", first.Students[0].StudentName)
	assert.Equal(t, "I am stuck on question 4", first.Students[0].LastMessage)
	assert.Equal(t, 100, first.KPIs.GroundedRate)

	second, err := svc.Aggregate(ctx, teacher, req)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Aggregate() is not idempotent (-first +second):\n%s", diff)
	}
}

func TestAggregate_TimeBounds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	conv := f.openConversation(t, student)

	early := studentMsg(newID(), conv.ID, t0, "early confusion", true, model.IntPtr(1), nil)
	late := studentMsg(newID(), conv.ID, t0.Add(time.Hour), "late confusion", true, model.IntPtr(2), nil)
	require.NoError(t, f.store.AppendMessage(ctx, &early))
	require.NoError(t, f.store.AppendMessage(ctx, &late))

	svc := NewAnalyticsService(f.store, logger.NewNop())

	from := t0.Add(time.Hour)
	got, err := svc.Aggregate(ctx, teacher, &model.AnalyticsRequest{CourseID: f.course.ID, AssignmentID: f.assignment.ID, From: &from})
	require.NoError(t, err)
	assert.Equal(t, []model.QuestionCount{{Question: 2, Confused: 1}}, got.ByQuestion)

	to := t0
	got, err = svc.Aggregate(ctx, teacher, &model.AnalyticsRequest{CourseID: f.course.ID, AssignmentID: f.assignment.ID, To: &to})
	require.NoError(t, err)
	assert.Equal(t, []model.QuestionCount{{Question: 1, Confused: 1}}, got.ByQuestion)

	_, err = svc.Aggregate(ctx, teacher, &model.AnalyticsRequest{CourseID: f.course.ID, AssignmentID: f.assignment.ID, From: &from, To: &to})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestAggregate_EmptyAssignment(t *testing.T) {
	f := newFixture(t)
	svc := NewAnalyticsService(f.store, logger.NewNop())

	got, err := svc.Aggregate(context.Background(), teacher, &model.AnalyticsRequest{CourseID: f.course.ID, AssignmentID: f.assignment.ID})
	require.NoError(t, err)
	if diff := cmp.Diff(model.EmptySnapshot(), got); diff != "" {
		t.Errorf("empty assignment (-want +got):\n%s", diff)
	}
}

func TestAggregate_Authorization(t *testing.T) {
	f := newFixture(t)
	svc := NewAnalyticsService(f.store, logger.NewNop())
	req := &model.AnalyticsRequest{CourseID: f.course.ID, AssignmentID: f.assignment.ID}

	_, err := svc.Aggregate(context.Background(), otherTeacher, req)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	_, err = svc.Aggregate(context.Background(), student, req)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	_, err = svc.Aggregate(context.Background(), teacher, &model.AnalyticsRequest{CourseID: "missing", AssignmentID: f.assignment.ID})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, err = svc.Aggregate(context.Background(), teacher, &model.AnalyticsRequest{CourseID: f.course.ID})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héllo", truncateRunes("héllo", 10))
	assert.Equal(t, "hé", truncateRunes("héllo", 2))
	assert.Equal(t, "", truncateRunes("héllo", 0))
}
