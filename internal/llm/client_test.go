package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spherical/lecture-ingest/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBatch(index int, pages ...int) domain.Batch {
	b := domain.Batch{Index: index}
	for _, p := range pages {
		b.Pages = append(b.Pages, domain.EncodedPage{Index: p, Data: fmt.Sprintf("aW1n%d", p)})
	}
	return b
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Response{
		ID:      "cmpl-1",
		Choices: []Choice{{Message: Delta{Role: "assistant", Content: content}, FinishReason: "stop"}},
	})
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name      string
		model     string
		wantModel string
	}{
		{name: "default model", model: "", wantModel: defaultModel},
		{name: "custom model", model: "google/gemini-2.5-flash", wantModel: "google/gemini-2.5-flash"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient("sk-test", tt.model)
			assert.Equal(t, tt.wantModel, client.Model())
			assert.Equal(t, openRouterURL, client.baseURL)
			assert.Equal(t, DefaultRetryConfig(), client.retry)
		})
	}
}

func TestBuildRequest_PromptThenImagesInOrder(t *testing.T) {
	client := NewClient("sk-test", "")
	req := client.buildRequest("PROMPT", testBatch(2, 10, 11))

	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	content := req.Messages[0].Content
	require.Len(t, content, 3)

	assert.Equal(t, "text", content[0].Type)
	assert.Equal(t, "PROMPT", content[0].Text)
	assert.Equal(t, "data:image/jpeg;base64,aW1n10", content[1].ImageURL.URL)
	assert.Equal(t, "data:image/jpeg;base64,aW1n11", content[2].ImageURL.URL)
	assert.False(t, req.Stream)
}

func TestExtract_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req Request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Len(t, req.Messages[0].Content, 4)

		writeCompletion(w, "# Slide 1\n---\n# Slide 2\n---\n# Slide 3")
	}))
	defer server.Close()

	client := NewClient("sk-test", "test-model", WithBaseURL(server.URL), WithRetry(NoRetry()))
	text, err := client.Extract(context.Background(), "prompt", testBatch(0, 0, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, "# Slide 1\n---\n# Slide 2\n---\n# Slide 3", text)
}

func TestExtract_NonRetryableStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error":"bad image"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient("sk-test", "", WithBaseURL(server.URL), WithRetry(fastRetry()))
	_, err := client.Extract(context.Background(), "prompt", testBatch(0, 0))

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Contains(t, se.Body, "bad image")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestExtract_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeCompletion(w, "recovered")
	}))
	defer server.Close()

	client := NewClient("sk-test", "", WithBaseURL(server.URL), WithRetry(fastRetry()))
	text, err := client.Extract(context.Background(), "prompt", testBatch(0, 0))
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestExtract_RetriesExhausted(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient("sk-test", "", WithBaseURL(server.URL), WithRetry(fastRetry()))
	_, err := client.Extract(context.Background(), "prompt", testBatch(0, 0))
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestExtract_MalformedPayloads(t *testing.T) {
	tests := map[string]string{
		"not json":      "<html>gateway</html>",
		"no choices":    `{"id":"x","choices":[]}`,
		"empty content": `{"id":"x","choices":[{"message":{"content":"  "}}]}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			client := NewClient("sk-test", "", WithBaseURL(server.URL), WithRetry(fastRetry()))
			_, err := client.Extract(context.Background(), "prompt", testBatch(0, 0))
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestExtract_ErrorObjectWithOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"message":"invalid model","code":400}}`))
	}))
	defer server.Close()

	client := NewClient("sk-test", "", WithBaseURL(server.URL), WithRetry(NoRetry()))
	_, err := client.Extract(context.Background(), "prompt", testBatch(0, 0))

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 400, se.StatusCode)
	assert.Equal(t, "invalid model", se.Body)
}

func TestExtract_PerAttemptTimeoutIsRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		writeCompletion(w, "fast")
	}))
	defer server.Close()

	client := NewClient("sk-test", "",
		WithBaseURL(server.URL),
		WithRetry(fastRetry()),
		WithTimeout(50*time.Millisecond),
	)
	text, err := client.Extract(context.Background(), "prompt", testBatch(0, 0))
	require.NoError(t, err)
	assert.Equal(t, "fast", text)
}

func TestExtract_TimeoutWhileReadingBodyIsRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{"id":"x","choices":[`)
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		writeCompletion(w, "after stall")
	}))
	defer server.Close()

	client := NewClient("sk-test", "",
		WithBaseURL(server.URL),
		WithRetry(fastRetry()),
		WithTimeout(50*time.Millisecond),
	)
	text, err := client.Extract(context.Background(), "prompt", testBatch(0, 0))
	require.NoError(t, err)
	assert.Equal(t, "after stall", text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestParseResponse_KeepsDecodeCause(t *testing.T) {
	client := NewClient("sk-test", "")
	_, err := client.parseResponse(strings.NewReader(`{"choices":[`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.False(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, isRetryableHTTP(err))
}

func TestExtract_Streaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{
			`{"choices":[{"delta":{"content":"page one"}}]}`,
			`{"choices":[{"delta":{"content":"\n---\n"}}]}`,
			`{"choices":[{"delta":{"content":"page two"},"finish_reason":"stop"}]}`,
		} {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient("sk-test", "", WithBaseURL(server.URL), WithRetry(NoRetry()), WithStream(true))
	text, err := client.Extract(context.Background(), "prompt", testBatch(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, "page one\n---\npage two", text)
}

func TestExtract_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("sk-test", "", WithBaseURL("http://127.0.0.1:1"))
	_, err := client.Extract(ctx, "prompt", testBatch(0, 0))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtract_EmptyBatch(t *testing.T) {
	client := NewClient("sk-test", "")
	_, err := client.Extract(context.Background(), "prompt", domain.Batch{})
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
}

func TestIsRetryableHTTP(t *testing.T) {
	assert.True(t, isRetryableHTTP(&StatusError{StatusCode: 502}))
	assert.False(t, isRetryableHTTP(&StatusError{StatusCode: 401}))
	assert.False(t, isRetryableHTTP(fmt.Errorf("%w: x", ErrMalformedResponse)))
	assert.True(t, isRetryableHTTP(errors.New("connection reset by peer")))
	assert.True(t, strings.Contains((&StatusError{StatusCode: 500, Body: "oops"}).Error(), "500"))
}
