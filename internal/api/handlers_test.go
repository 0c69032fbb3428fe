package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"physicalai.dev/textbook-chat/internal/core"
	"physicalai.dev/textbook-chat/internal/docstore"
	"physicalai.dev/textbook-chat/internal/store"
)

const testSecret = "handler-test-secret"

type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}
func (stubEmbedder) ModelVersion() string { return "stub-embedding" }

type stubSearchStore struct {
	results []docstore.ScoredChunk
}

func (s *stubSearchStore) Search(context.Context, []float32, int) ([]docstore.ScoredChunk, error) {
	return s.results, nil
}

type stubModel struct {
	response string
}

func (s *stubModel) Generate(context.Context, string, string) (string, error) {
	return s.response, nil
}

func newTestRouter(t *testing.T, results []docstore.ScoredChunk, response string) http.Handler {
	t.Helper()

	dbStore, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { dbStore.Close() })

	retriever := core.NewRetriever(stubEmbedder{}, &stubSearchStore{results: results}, 4, 0.7, time.Second)
	assembler := core.NewAssembler(wordCounter{}, 1000, 10)
	generator := core.NewAnswerGenerator(&stubModel{response: response}, time.Second)
	chatService := core.NewChatService(dbStore, retriever, assembler, generator)

	return NewRouter(NewAPIHandler(chatService, dbStore, testSecret))
}

func doRequest(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func registerUser(t *testing.T, router http.Handler, email string) string {
	t.Helper()

	rec := doRequest(t, router, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    email,
		"password": "secret123",
		"name":     "Test Reader",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func sampleResults() []docstore.ScoredChunk {
	return []docstore.ScoredChunk{{
		Chunk: docstore.Chunk{
			ID:           "chunk-a",
			ModuleID:     "introduction-to-physical-ai",
			ModuleTitle:  "Introduction To Physical AI",
			SectionTitle: "What is Physical AI",
			Text:         "Physical AI refers to intelligent systems in the physical world.",
			TokenCount:   10,
		},
		Score: 0.92,
	}}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, nil, "ok")
	rec := doRequest(t, router, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRegisterValidation(t *testing.T) {
	router := newTestRouter(t, nil, "ok")

	rec := doRequest(t, router, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "not-an-email", "password": "secret123", "name": "Reader",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "a@b.com", "password": "short", "name": "Reader",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	router := newTestRouter(t, nil, "ok")
	registerUser(t, router, "reader@example.com")

	rec := doRequest(t, router, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "reader@example.com", "password": "secret123", "name": "Reader",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "already exists")
}

func TestLoginAndMe(t *testing.T) {
	router := newTestRouter(t, nil, "ok")
	registerUser(t, router, "reader@example.com")

	rec := doRequest(t, router, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "reader@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = doRequest(t, router, http.MethodGet, "/api/auth/me", resp.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reader@example.com")
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestLoginWrongPassword(t *testing.T) {
	router := newTestRouter(t, nil, "ok")
	registerUser(t, router, "reader@example.com")

	rec := doRequest(t, router, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "reader@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatRequiresAuth(t *testing.T) {
	router := newTestRouter(t, sampleResults(), "answer")

	rec := doRequest(t, router, http.MethodPost, "/api/chat/message", "", map[string]string{
		"user_message": "What is Physical AI?",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/chat/message", "garbage-token", map[string]string{
		"user_message": "What is Physical AI?",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatEmptyMessage(t *testing.T) {
	router := newTestRouter(t, sampleResults(), "answer")
	token := registerUser(t, router, "reader@example.com")

	rec := doRequest(t, router, http.MethodPost, "/api/chat/message", token, map[string]string{
		"user_message": "   ",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Message is required")
}

func TestChatSuccessWithSources(t *testing.T) {
	router := newTestRouter(t, sampleResults(), "Physical AI is embodied intelligence.")
	token := registerUser(t, router, "reader@example.com")

	rec := doRequest(t, router, http.MethodPost, "/api/chat/message", token, map[string]any{
		"user_message":         "What is Physical AI?",
		"conversation_history": []map[string]string{{"role": "user", "content": "hi"}},
		"selected_text":        "",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Physical AI is embodied intelligence.", resp.AssistantResponse)
	require.Len(t, resp.ReferencedContent, 1)
	assert.Equal(t, "Introduction To Physical AI", resp.ReferencedContent[0].Chapter)
	assert.Equal(t, "What is Physical AI", resp.ReferencedContent[0].Section)

	// The exchange landed in history.
	rec = doRequest(t, router, http.MethodGet, "/api/chat/history", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var history HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history.History, 1)
	assert.Equal(t, "What is Physical AI?", history.History[0].Message)
	assert.Equal(t, []string{"chunk-a"}, history.History[0].SourcesUsed)
}

func TestChatEmptyRetrievalStillSucceeds(t *testing.T) {
	router := newTestRouter(t, nil, "The textbook does not cover that.")
	token := registerUser(t, router, "reader@example.com")

	rec := doRequest(t, router, http.MethodPost, "/api/chat/message", token, map[string]string{
		"user_message": "What is quantum gravity?",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AssistantResponse)
	assert.Empty(t, resp.ReferencedContent)
}

func TestDeleteHistoryOwnership(t *testing.T) {
	router := newTestRouter(t, sampleResults(), "answer")
	ownerToken := registerUser(t, router, "owner@example.com")
	otherToken := registerUser(t, router, "other@example.com")

	rec := doRequest(t, router, http.MethodPost, "/api/chat/message", ownerToken, map[string]string{
		"user_message": "What is Physical AI?",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/chat/history", ownerToken, nil)
	var history HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history.History, 1)
	exchangeID := history.History[0].ID

	// Someone else deleting it is a no-op 404.
	rec = doRequest(t, router, http.MethodDelete, "/api/chat/history/"+exchangeID, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/chat/history", ownerToken, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Len(t, history.History, 1)

	// The owner can delete it.
	rec = doRequest(t, router, http.MethodDelete, "/api/chat/history/"+exchangeID, ownerToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteAllHistory(t *testing.T) {
	router := newTestRouter(t, sampleResults(), "answer")
	token := registerUser(t, router, "reader@example.com")

	for i := 0; i < 3; i++ {
		rec := doRequest(t, router, http.MethodPost, "/api/chat/message", token, map[string]string{
			"user_message": "What is Physical AI?",
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(t, router, http.MethodDelete, "/api/chat/history", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/chat/history", token, nil)
	var history HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Empty(t, history.History)
}
