package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socratic-ai/tutor-platform/internal/middleware"
	"github.com/socratic-ai/tutor-platform/internal/model"
	"github.com/socratic-ai/tutor-platform/internal/service"
	"github.com/socratic-ai/tutor-platform/internal/store"
	"github.com/socratic-ai/tutor-platform/pkg/logger"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		dbDriver, dbURL = "", ""
	})

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTokenCmd(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")

	out, err := execute(t, "token", "student-42", "--role", "student", "--name", "Ada Lovelace", "--ttl", "1h")
	require.NoError(t, err)

	auth, err := middleware.ParseToken("cli-secret", strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, model.AuthContext{UserID: "student-42", Role: model.RoleStudent, DisplayName: "Ada Lovelace"}, auth)
}

func TestTokenCmd_InvalidRole(t *testing.T) {
	_, err := execute(t, "token", "someone", "--role", "admin")
	assert.ErrorContains(t, err, `invalid role "admin"`)
	tokenRole = string(model.RoleStudent)
}

func TestChunkCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("abcdefghij", 5)), 0o600))

	out, err := execute(t, "chunk", path, "--window", "20", "--overlap", "5")
	require.NoError(t, err)

	var chunks []chunkPreview
	require.NoError(t, json.Unmarshal([]byte(out), &chunks))
	require.Len(t, chunks, 3)
	assert.Equal(t, 20, chunks[0].Length)
	assert.Equal(t, "abcdefghijabcdefghij", chunks[0].Content)
	assert.Equal(t, 2, chunks[2].Index)
	assert.Equal(t, 20, chunks[2].Length)
}

func TestMigrateAndAnalytics(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "tutor.db")

	out, err := execute(t, "migrate", "--db-driver", "sqlite3", "--db-url", dsn)
	require.NoError(t, err)
	assert.Contains(t, out, "schema is up to date")

	ctx := context.Background()
	st, err := store.Open(ctx, "sqlite3", dsn)
	require.NoError(t, err)

	owner := model.AuthContext{UserID: "teacher-1", Role: model.RoleTeacher}
	courses := service.NewCourseService(st, logger.NewNop())
	course, err := courses.Create(ctx, owner, &model.CreateCourseRequest{Name: "Physics"})
	require.NoError(t, err)
	assignment, err := courses.CreateAssignment(ctx, owner, course.ID, &model.CreateAssignmentRequest{Title: "Kinematics"})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err = execute(t, "analytics", course.ID, assignment.ID, "--teacher", owner.UserID,
		"--db-driver", "sqlite3", "--db-url", dsn)
	require.NoError(t, err)

	var snapshot model.AnalyticsSnapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snapshot))
	assert.Equal(t, 0, snapshot.KPIs.ConfusedPct)
	assert.Empty(t, snapshot.Students)

	_, err = execute(t, "analytics", course.ID, assignment.ID, "--teacher", "teacher-2",
		"--db-driver", "sqlite3", "--db-url", dsn)
	assert.Error(t, err)

	_, err = execute(t, "analytics", course.ID, assignment.ID, "--teacher", owner.UserID,
		"--from", "yesterday", "--db-driver", "sqlite3", "--db-url", dsn)
	assert.ErrorContains(t, err, "--from")
	analyticsFrom = ""
}
