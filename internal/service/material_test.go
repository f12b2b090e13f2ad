package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socratic-ai/tutor-platform/internal/apperr"
	"github.com/socratic-ai/tutor-platform/internal/model"
	"github.com/socratic-ai/tutor-platform/pkg/logger"
)

func newMaterials(t *testing.T, f *fixture) (*MaterialService, *memoryObjects) {
	t.Helper()
	objects := newMemoryObjects()
	return NewMaterialService(f.store, objects, MaterialConfig{MaxBytes: 1 << 10, URLTTL: 10 * time.Minute}, logger.NewNop()), objects
}

func TestMaterialService_Create(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc, objects := newMaterials(t, f)

	m, err := svc.Create(ctx, teacher, &CreateMaterialInput{
		CourseID:     f.course.ID,
		AssignmentID: &f.assignment.ID,
		Title:        " Week 1 slides ",
		Kind:         model.KindSlides,
		File:         samplePDF,
		Text:         "Opportunity cost is the value of the next best alternative.",
	})
	require.NoError(t, err)

	assert.Equal(t, "Week 1 slides", m.Title)
	assert.Equal(t, StoragePath(f.course.ID, m.ID), m.StoragePath)
	assert.True(t, m.TextExtracted)
	assert.True(t, objects.has(m.StoragePath))

	stored, err := f.store.GetMaterial(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Title, stored.Title)

	excerpts, err := svc.StudentContext(ctx, f.course.ID, f.assignment.ID, 10)
	require.NoError(t, err)
	require.Len(t, excerpts, 1)
	assert.Contains(t, excerpts[0].Content, "Opportunity cost")
}

func TestMaterialService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc, objects := newMaterials(t, f)

	missing := "missing"
	tests := []struct {
		name string
		auth model.AuthContext
		in   CreateMaterialInput
		kind apperr.Kind
	}{
		{"student", student, CreateMaterialInput{Title: "x", Kind: model.KindReading, File: samplePDF}, apperr.KindAuthorization},
		{"other teacher", otherTeacher, CreateMaterialInput{Title: "x", Kind: model.KindReading, File: samplePDF}, apperr.KindAuthorization},
		{"no title", teacher, CreateMaterialInput{Title: " ", Kind: model.KindReading, File: samplePDF}, apperr.KindValidation},
		{"bad kind", teacher, CreateMaterialInput{Title: "x", Kind: "poster", File: samplePDF}, apperr.KindValidation},
		{"no file", teacher, CreateMaterialInput{Title: "x", Kind: model.KindReading}, apperr.KindValidation},
		{"not a pdf", teacher, CreateMaterialInput{Title: "x", Kind: model.KindReading, File: []byte("just some text")}, apperr.KindValidation},
		{"too large", teacher, CreateMaterialInput{Title: "x", Kind: model.KindReading, File: append(append([]byte{}, samplePDF...), make([]byte, 2<<10)...)}, apperr.KindValidation},
		{"unknown assignment", teacher, CreateMaterialInput{Title: "x", Kind: model.KindReading, File: samplePDF, AssignmentID: &missing}, apperr.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			in.CourseID = f.course.ID
			_, err := svc.Create(ctx, tt.auth, &in)
			require.Error(t, err)
			assert.True(t, apperr.IsKind(err, tt.kind), err.Error())
		})
	}

	assert.Empty(t, objects.objects)
}

func TestMaterialService_ListHidesAnswersFromStudents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc, _ := newMaterials(t, f)

	for _, kind := range []model.MaterialKind{model.KindReading, model.KindAnswers} {
		_, err := svc.Create(ctx, teacher, &CreateMaterialInput{
			CourseID: f.course.ID, Title: string(kind), Kind: kind, File: samplePDF,
		})
		require.NoError(t, err)
	}

	teacherView, err := svc.List(ctx, teacher, f.course.ID, nil)
	require.NoError(t, err)
	assert.Len(t, teacherView.Materials, 2)

	studentView, err := svc.List(ctx, student, f.course.ID, nil)
	require.NoError(t, err)
	require.Len(t, studentView.Materials, 1)
	assert.Equal(t, model.KindReading, studentView.Materials[0].Kind)
	assert.Contains(t, studentView.Materials[0].DownloadURL, "ttl=600")

	_, err = svc.List(ctx, otherStudent, f.course.ID, nil)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))
}

func TestMaterialService_ListFailsWhenSigningFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc, objects := newMaterials(t, f)

	_, err := svc.Create(ctx, teacher, &CreateMaterialInput{
		CourseID: f.course.ID, Title: "Reading", Kind: model.KindReading, File: samplePDF,
	})
	require.NoError(t, err)

	objects.presignErr = errors.New("signer offline")
	_, err = svc.List(ctx, teacher, f.course.ID, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindPersistence))
}

func TestMaterialService_Delete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc, objects := newMaterials(t, f)

	m, err := svc.Create(ctx, teacher, &CreateMaterialInput{
		CourseID: f.course.ID, Title: "Reading", Kind: model.KindReading, File: samplePDF, Text: "chunked text",
	})
	require.NoError(t, err)

	err = svc.Delete(ctx, otherTeacher, m.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	require.NoError(t, svc.Delete(ctx, teacher, m.ID))
	assert.False(t, objects.has(m.StoragePath))

	excerpts, err := svc.StudentContext(ctx, f.course.ID, f.assignment.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, excerpts)

	err = svc.Delete(ctx, teacher, m.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
