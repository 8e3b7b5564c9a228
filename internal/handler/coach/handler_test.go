package coach

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/daybook/backend/internal/middleware"
	"github.com/zhouzirui/daybook/backend/internal/model/coach"
	"github.com/zhouzirui/daybook/backend/internal/service/ai"
	coachService "github.com/zhouzirui/daybook/backend/internal/service/coach"
	journalService "github.com/zhouzirui/daybook/backend/internal/service/journal"
	"github.com/zhouzirui/daybook/backend/internal/store/sqlite"
)

type fakeResponder struct {
	reply     string
	chunks    []string
	err       error
	streaming bool
}

func (f *fakeResponder) Reply(_ context.Context, _ ai.Turn) (*ai.Reply, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ai.Reply{Role: "assistant", Content: f.reply, Usage: ai.Usage{TotalTokens: 9}}, nil
}

func (f *fakeResponder) StreamReply(_ context.Context, _ ai.Turn) (*schema.StreamReader[*schema.Message], error) {
	if f.err != nil {
		return nil, f.err
	}
	msgs := make([]*schema.Message, len(f.chunks))
	for i, c := range f.chunks {
		msgs[i] = schema.AssistantMessage(c, nil)
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func (f *fakeResponder) StreamingEnabled() bool { return f.streaming }

func setupRouter(t *testing.T, responder *fakeResponder) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "coach.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	seed, err := journalService.DefaultSeed()
	require.NoError(t, err)

	var r coachService.Responder
	if responder != nil {
		r = responder
	}
	svc := coachService.NewService(store, r, journalService.NewService(seed), logger)

	router := chi.NewRouter()
	router.Use(middleware.UserID("1"))
	router.Route("/api", func(api chi.Router) {
		New(svc, logger).RegisterRoutes(api)
	})
	return router
}

func call(t *testing.T, h http.Handler, method, path, body string, dst any) int {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if dst != nil {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), dst), rr.Body.String())
	}
	return rr.Code
}

func createSession(t *testing.T, h http.Handler, body string) coach.Session {
	t.Helper()
	var sess coach.Session
	require.Equal(t, http.StatusCreated, call(t, h, http.MethodPost, "/api/coach/sessions", body, &sess))
	return sess
}

func TestLifeAreaEndpoints(t *testing.T) {
	h := setupRouter(t, nil)

	var area coach.LifeArea
	code := call(t, h, http.MethodPost, "/api/coach/life-areas", `{"name":"Health","color":"#22cc88"}`, &area)
	require.Equal(t, http.StatusCreated, code)
	assert.True(t, area.IsActive)
	assert.Equal(t, "1", area.UserID)

	var fields struct {
		Fields map[string]string `json:"fields"`
	}
	code = call(t, h, http.MethodPost, "/api/coach/life-areas", `{"color":"green"}`, &fields)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, fields.Fields, "name")
	assert.Contains(t, fields.Fields, "color")

	code = call(t, h, http.MethodPatch, "/api/coach/life-areas/"+area.ID, `{"isActive":false}`, &area)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, area.IsActive)

	var areas []coach.LifeArea
	call(t, h, http.MethodGet, "/api/coach/life-areas", "", &areas)
	assert.Len(t, areas, 1)

	assert.Equal(t, http.StatusNoContent, call(t, h, http.MethodDelete, "/api/coach/life-areas/"+area.ID, "", nil))
	assert.Equal(t, http.StatusNotFound, call(t, h, http.MethodPatch, "/api/coach/life-areas/"+area.ID, `{}`, nil))
}

func TestPromptEndpoints(t *testing.T) {
	h := setupRouter(t, nil)

	assert.Equal(t, http.StatusNotFound, call(t, h, http.MethodGet, "/api/coach/prompts/active", "", nil))

	var prompt coach.Prompt
	code := call(t, h, http.MethodPost, "/api/coach/prompts", `{"name":"Default","systemPrompt":"Be warm.","isGlobal":true}`, &prompt)
	require.Equal(t, http.StatusCreated, code)

	var active coach.Prompt
	require.Equal(t, http.StatusOK, call(t, h, http.MethodGet, "/api/coach/prompts/active?lifeAreaId=none", "", &active))
	assert.Equal(t, prompt.ID, active.ID)

	assert.Equal(t, http.StatusBadRequest, call(t, h, http.MethodPost, "/api/coach/prompts", `{"name":"x"}`, nil))
	assert.Equal(t, http.StatusNotFound, call(t, h, http.MethodPost, "/api/coach/prompts", `{"name":"x","systemPrompt":"y","lifeAreaId":"missing"}`, nil))
}

func TestSessionEndpoints(t *testing.T) {
	h := setupRouter(t, nil)
	sess := createSession(t, h, `{"title":"Sleep"}`)
	assert.NotNil(t, sess.Tags)

	assert.Equal(t, http.StatusNotFound, call(t, h, http.MethodPost, "/api/coach/sessions", `{"title":"x","lifeAreaId":"nope"}`, nil))

	var tagged coach.Session
	require.Equal(t, http.StatusOK, call(t, h, http.MethodPost, "/api/coach/sessions/"+sess.ID+"/tags/2", "", &tagged))
	require.Len(t, tagged.Tags, 1)
	assert.Equal(t, "Health", tagged.Tags[0].Name)
	assert.Equal(t, http.StatusNotFound, call(t, h, http.MethodPost, "/api/coach/sessions/"+sess.ID+"/tags/99", "", nil))

	var list []coach.Session
	call(t, h, http.MethodGet, "/api/coach/sessions", "", &list)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Tags, 1)

	var ended coach.Session
	require.Equal(t, http.StatusOK, call(t, h, http.MethodPatch, "/api/coach/sessions/"+sess.ID, `{"summary":"better rest","ended":true}`, &ended))
	assert.False(t, ended.IsActive)
	assert.NotNil(t, ended.EndedAt)
	require.NotNil(t, ended.Summary)
	assert.Equal(t, "better rest", *ended.Summary)

	var untagged coach.Session
	call(t, h, http.MethodDelete, "/api/coach/sessions/"+sess.ID+"/tags/2", "", &untagged)
	assert.Empty(t, untagged.Tags)

	// another user cannot see the session
	req := httptest.NewRequest(http.MethodGet, "/api/coach/sessions/"+sess.ID, nil)
	req.Header.Set(middleware.UserIDHeader, "2")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSendMessage(t *testing.T) {
	h := setupRouter(t, &fakeResponder{reply: "What helped today?"})
	sess := createSession(t, h, `{"title":"Mood"}`)

	var exchange coachService.Exchange
	require.Equal(t, http.StatusCreated, call(t, h, http.MethodPost, "/api/coach/sessions/"+sess.ID+"/messages", `{"content":"I had a good day"}`, &exchange))
	assert.Equal(t, coach.RoleUser, exchange.UserMessage.Role)
	require.NotNil(t, exchange.AssistantMessage)
	assert.Equal(t, "What helped today?", exchange.AssistantMessage.Content)
	require.NotNil(t, exchange.AssistantMessage.TokensUsed)
	assert.Equal(t, 9, *exchange.AssistantMessage.TokensUsed)

	var msgs []coach.Message
	call(t, h, http.MethodGet, "/api/coach/sessions/"+sess.ID+"/messages", "", &msgs)
	assert.Len(t, msgs, 2)

	assert.Equal(t, http.StatusBadRequest, call(t, h, http.MethodPost, "/api/coach/sessions/"+sess.ID+"/messages", `{"content":""}`, nil))
	assert.Equal(t, http.StatusNotFound, call(t, h, http.MethodPost, "/api/coach/sessions/missing/messages", `{"content":"hi"}`, nil))
}

func TestSendMessageProviderFailure(t *testing.T) {
	h := setupRouter(t, &fakeResponder{err: errors.New("provider down")})
	sess := createSession(t, h, `{"title":"Mood"}`)

	var resp struct {
		Error       string        `json:"error"`
		UserMessage coach.Message `json:"userMessage"`
	}
	code := call(t, h, http.MethodPost, "/api/coach/sessions/"+sess.ID+"/messages", `{"content":"hello"}`, &resp)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.NotEmpty(t, resp.Error)
	assert.Equal(t, "hello", resp.UserMessage.Content)

	var msgs []coach.Message
	call(t, h, http.MethodGet, "/api/coach/sessions/"+sess.ID+"/messages", "", &msgs)
	require.Len(t, msgs, 1)
	assert.Equal(t, coach.RoleUser, msgs[0].Role)
}

func TestSendMessageWithoutModel(t *testing.T) {
	h := setupRouter(t, nil)
	sess := createSession(t, h, `{"title":"Mood"}`)

	assert.Equal(t, http.StatusServiceUnavailable, call(t, h, http.MethodPost, "/api/coach/sessions/"+sess.ID+"/messages", `{"content":"hi"}`, nil))
}

func readEvents(t *testing.T, body string) []StreamResponse {
	t.Helper()
	var events []StreamResponse
	for _, line := range strings.Split(body, "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var evt StreamResponse
		require.NoError(t, json.Unmarshal([]byte(data), &evt))
		events = append(events, evt)
	}
	return events
}

func TestStreamSendsDeltasAndPersists(t *testing.T) {
	h := setupRouter(t, &fakeResponder{streaming: true, chunks: []string{"Take ", "a breath."}})
	sess := createSession(t, h, `{"title":"Stress"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/coach/sessions/"+sess.ID+"/stream?message=overwhelmed", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	events := readEvents(t, rr.Body.String())
	require.Len(t, events, 4)
	assert.Equal(t, "start", events[0].Event)
	assert.Equal(t, "Take ", events[1].Content)
	assert.Equal(t, "a breath.", events[2].Content)
	assert.Equal(t, "end", events[3].Event)
	assert.True(t, events[3].Finished)
	assert.NotEmpty(t, events[3].AssistantMessageID)

	var msgs []coach.Message
	call(t, h, http.MethodGet, "/api/coach/sessions/"+sess.ID+"/messages", "", &msgs)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Take a breath.", msgs[1].Content)
}

func TestStreamErrors(t *testing.T) {
	h := setupRouter(t, &fakeResponder{streaming: true, err: errors.New("provider down")})
	sess := createSession(t, h, `{"title":"Stress"}`)

	assert.Equal(t, http.StatusBadRequest, call(t, h, http.MethodGet, "/api/coach/sessions/"+sess.ID+"/stream", "", nil))
	assert.Equal(t, http.StatusNotFound, call(t, h, http.MethodGet, "/api/coach/sessions/missing/stream?message=hi", "", nil))

	req := httptest.NewRequest(http.MethodGet, "/api/coach/sessions/"+sess.ID+"/stream?message=hi", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	events := readEvents(t, rr.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, "error", events[1].Event)
	assert.NotEmpty(t, events[1].UserMessageID)
}
