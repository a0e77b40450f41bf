package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmwagner/plausch/internal/domain"
)

func TestChatStreamRelaysBody(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	s := NewOpenRouterService("test-key", "some/model").WithBaseURL(srv.URL)
	body, err := s.ChatStream(context.Background(), []ChatMessage{{Role: "user", Content: "hello"}}, nil)
	require.NoError(t, err)
	defer body.Close()

	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"content":"Hi"`)

	assert.Equal(t, "some/model", gotReq.Model)
	assert.True(t, gotReq.Stream)
	require.NotNil(t, gotReq.Usage)
	assert.True(t, gotReq.Usage.Include)
}

func TestChatStreamNonSuccessIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewOpenRouterService("k", "m").WithBaseURL(srv.URL)
	_, err := s.ChatStream(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestChatStreamRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewOpenRouterService("k", "m").WithBaseURL(srv.URL)
	_, err := s.ChatStream(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestGenerateTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.NotZero(t, req.MaxTokens)

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "Rice Cooking Help"}},
			},
		})
	}))
	defer srv.Close()

	s := NewOpenRouterService("k", "m").WithBaseURL(srv.URL)
	title, err := s.GenerateTitle(context.Background(), "make a title")
	require.NoError(t, err)
	assert.Equal(t, "Rice Cooking Help", title)
}

func TestGenerateTitleEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	s := NewOpenRouterService("k", "m").WithBaseURL(srv.URL)
	_, err := s.GenerateTitle(context.Background(), "p")
	assert.ErrorIs(t, err, domain.ErrEmptyTitleResult)
}

func TestGenerateTitleNonSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewOpenRouterService("k", "m").WithBaseURL(srv.URL)
	_, err := s.GenerateTitle(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestPageTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><head><title>  Example Domain </title></head><body></body></html>`)
	}))
	defer srv.Close()

	s := NewPageTitleService()
	title, err := s.PageTitle(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Example Domain", title)
}

func TestPageTitleMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><body>no title</body></html>`)
	}))
	defer srv.Close()

	s := NewPageTitleService()
	_, err := s.PageTitle(context.Background(), srv.URL)
	assert.Error(t, err)
}
