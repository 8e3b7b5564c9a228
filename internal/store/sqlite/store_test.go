package sqlite

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/daybook/backend/internal/model/coach"
	"github.com/zhouzirui/daybook/backend/internal/model/journal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	s, err := Open(dbPath, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func makeSession(t *testing.T, s *Store, id, userID string, startedAt time.Time) *coach.Session {
	t.Helper()
	sess := &coach.Session{
		ID:        id,
		Title:     "Session " + id,
		IsActive:  true,
		StartedAt: startedAt,
		UserID:    userID,
	}
	require.NoError(t, s.CreateSession(context.Background(), sess))
	return sess
}

func TestLifeAreaCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, name := range []string{"Health", "Career", "Family"} {
		area := &coach.LifeArea{ID: "la-" + name, Name: name, IsActive: true, UserID: "u1", CreatedAt: now, UpdatedAt: now}
		require.NoError(t, s.CreateLifeArea(ctx, area))
	}
	require.NoError(t, s.CreateLifeArea(ctx, &coach.LifeArea{ID: "other", Name: "Alpha", UserID: "u2", CreatedAt: now, UpdatedAt: now}))

	areas, err := s.ListLifeAreas(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, areas, 3)
	assert.Equal(t, []string{"Career", "Family", "Health"}, []string{areas[0].Name, areas[1].Name, areas[2].Name})

	area := areas[0]
	area.Color = strPtr("#ff8800")
	area.IsActive = false
	require.NoError(t, s.UpdateLifeArea(ctx, &area))

	got, err := s.GetLifeArea(ctx, "u1", area.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Color)
	assert.Equal(t, "#ff8800", *got.Color)
	assert.False(t, got.IsActive)
	assert.Nil(t, got.Description)

	require.NoError(t, s.DeleteLifeArea(ctx, "u1", area.ID))
	_, err = s.GetLifeArea(ctx, "u1", area.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteLifeArea(ctx, "u1", area.ID), ErrNotFound)
}

func TestActivePromptPrefersLatestForLifeArea(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.CreateLifeArea(ctx, &coach.LifeArea{ID: "la", Name: "Health", IsActive: true, UserID: "u1", CreatedAt: now, UpdatedAt: now}))

	prompts := []coach.Prompt{
		{ID: "old", Name: "old", SystemPrompt: "old prompt", LifeAreaID: strPtr("la"), IsActive: true, UpdatedAt: now.Add(-time.Hour)},
		{ID: "new", Name: "new", SystemPrompt: "new prompt", LifeAreaID: strPtr("la"), IsActive: true, UpdatedAt: now},
		{ID: "inactive", Name: "off", SystemPrompt: "inactive prompt", LifeAreaID: strPtr("la"), IsActive: false, UpdatedAt: now.Add(time.Hour)},
		{ID: "global", Name: "global", SystemPrompt: "global prompt", IsActive: true, IsGlobal: true, UpdatedAt: now},
	}
	for i := range prompts {
		prompts[i].UserID = "u1"
		prompts[i].CreatedAt = prompts[i].UpdatedAt
		require.NoError(t, s.CreatePrompt(ctx, &prompts[i]))
	}

	p, err := s.ActivePromptForLifeArea(ctx, "la")
	require.NoError(t, err)
	assert.Equal(t, "new prompt", p.SystemPrompt)

	_, err = s.ActivePromptForLifeArea(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	g, err := s.ActiveGlobalPrompt(ctx)
	require.NoError(t, err)
	assert.Equal(t, "global", g.ID)
}

func TestListSessionsJoinsTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	makeSession(t, s, "s1", "u1", base)
	makeSession(t, s, "s2", "u1", base.Add(time.Minute))
	makeSession(t, s, "foreign", "u2", base)

	require.NoError(t, s.UpsertTag(ctx, "u1", journal.Tag{ID: "t1", Name: "Work", Color: "#123456"}))
	require.NoError(t, s.UpsertTag(ctx, "u1", journal.Tag{ID: "t2", Name: "Health"}))
	require.NoError(t, s.AttachTag(ctx, "s1", "t1"))
	require.NoError(t, s.AttachTag(ctx, "s1", "t2"))
	require.NoError(t, s.AttachTag(ctx, "s1", "t2"))

	sessions, err := s.ListSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	// newest first
	assert.Equal(t, "s2", sessions[0].ID)
	assert.NotNil(t, sessions[0].Tags)
	assert.Empty(t, sessions[0].Tags)

	require.Len(t, sessions[1].Tags, 2)
	assert.Equal(t, "Work", sessions[1].Tags[0].Name)
	assert.Equal(t, "#123456", sessions[1].Tags[0].Color)

	require.NoError(t, s.DetachTag(ctx, "s1", "t1"))
	got, err := s.GetSession(ctx, "u1", "s1")
	require.NoError(t, err)
	require.Len(t, got.Tags, 1)
	assert.Equal(t, "t2", got.Tags[0].ID)
}

func TestSessionUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	makeSession(t, s, "s1", "u1", time.Now())

	require.NoError(t, s.UpdateSessionSummary(ctx, "u1", "s1", "talked about sleep"))
	require.NoError(t, s.SetSessionActive(ctx, "u1", "s1", false))

	got, err := s.GetSession(ctx, "u1", "s1")
	require.NoError(t, err)
	require.NotNil(t, got.Summary)
	assert.Equal(t, "talked about sleep", *got.Summary)
	assert.False(t, got.IsActive)
	assert.Nil(t, got.EndedAt)

	ended := time.Now()
	require.NoError(t, s.EndSession(ctx, "u1", "s1", ended))
	got, err = s.GetSession(ctx, "u1", "s1")
	require.NoError(t, err)
	require.NotNil(t, got.EndedAt)
	assert.WithinDuration(t, ended, *got.EndedAt, time.Microsecond)

	assert.ErrorIs(t, s.SetSessionActive(ctx, "u2", "s1", true), ErrNotFound)
	_, err = s.GetSession(ctx, "u2", "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessagesOrderedByCreation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	makeSession(t, s, "s1", "u1", time.Now())

	// whole-second timestamp first: fixed-width formatting must still sort it before sub-second ones
	base := time.Date(2025, 5, 6, 8, 0, 0, 0, time.UTC)
	tokens := 42
	msgs := []coach.Message{
		{ID: "m3", Role: coach.RoleAssistant, Content: "third", CreatedAt: base.Add(900 * time.Millisecond), TokensUsed: &tokens},
		{ID: "m1", Role: coach.RoleUser, Content: "first", CreatedAt: base},
		{ID: "m2", Role: coach.RoleUser, Content: "second", CreatedAt: base.Add(100 * time.Millisecond)},
	}
	for i := range msgs {
		msgs[i].SessionID = "s1"
		require.NoError(t, s.CreateMessage(ctx, &msgs[i]))
	}

	got, err := s.ListMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{got[0].Content, got[1].Content, got[2].Content})
	assert.Nil(t, got[0].TokensUsed)
	require.NotNil(t, got[2].TokensUsed)
	assert.Equal(t, 42, *got[2].TokensUsed)
	assert.Equal(t, coach.RoleAssistant, got[2].Role)
}

func TestDeletingLifeAreaKeepsSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.CreateLifeArea(ctx, &coach.LifeArea{ID: "la", Name: "Health", UserID: "u1", CreatedAt: now, UpdatedAt: now}))
	sess := &coach.Session{ID: "s1", Title: "t", LifeAreaID: strPtr("la"), IsActive: true, StartedAt: now, UserID: "u1"}
	require.NoError(t, s.CreateSession(ctx, sess))

	require.NoError(t, s.DeleteLifeArea(ctx, "u1", "la"))

	got, err := s.GetSession(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Nil(t, got.LifeAreaID)
}

func TestOpenConfiguresConnections(t *testing.T) {
	s := newTestStore(t)

	var journalMode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	// every pooled connection must enforce foreign keys
	ctx := context.Background()
	conns := make([]interface{ Close() error }, 0, 3)
	for range 3 {
		conn, err := s.db.Conn(ctx)
		require.NoError(t, err)
		var fk int
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
		assert.Equal(t, 1, fk)
		conns = append(conns, conn)
	}
	for _, c := range conns {
		c.Close()
	}
}
