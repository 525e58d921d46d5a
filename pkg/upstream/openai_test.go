package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngoyal88/studybuddy-relay/pkg/chat"
)

// fakeOpenAI serves /v1/chat/completions in both modes.
func fakeOpenAI(t *testing.T, fragments []string, withUsage bool) (*httptest.Server, *map[string]any) {
	t.Helper()
	var lastBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		lastBody = map[string]any{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&lastBody))

		if stream, _ := lastBody["stream"].(bool); !stream {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
				"choices":[{"index":0,"message":{"role":"assistant","content":"Hello there"},"finish_reason":"stop"}],
				"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gpt-4o-mini\",\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\"}}]}\n\n")
		for _, f := range fragments {
			b, _ := json.Marshal(f)
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gpt-4o-mini\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%s}}]}\n\n", b)
			flusher.Flush()
		}
		if withUsage {
			fmt.Fprint(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gpt-4o-mini\",\"choices\":[],\"usage\":{\"prompt_tokens\":9,\"completion_tokens\":4,\"total_tokens\":13}}\n\n")
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv, &lastBody
}

func testRequest() Request {
	return Request{
		Model:       "gpt-4o-mini",
		Messages:    []chat.Message{{Role: chat.RoleSystem, Content: "be brief"}, {Role: chat.RoleUser, Content: "hi"}},
		MaxTokens:   1000,
		Temperature: 0.7,
	}
}

func drain(t *testing.T, s Stream) []string {
	t.Helper()
	var out []string
	for {
		text, err := s.Recv()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, text)
	}
}

func TestOpenAI_Stream(t *testing.T) {
	srv, body := fakeOpenAI(t, []string{"Hel", "lo", " there"}, true)
	client := NewOpenAI("sk-test", srv.URL+"/v1")

	s, err := client.Stream(context.Background(), testRequest())
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, []string{"Hel", "lo", " there"}, drain(t, s))
	require.NotNil(t, s.Usage())
	assert.Equal(t, 9, s.Usage().PromptTokens)
	assert.Equal(t, 4, s.Usage().CompletionTokens)
	assert.Equal(t, 13, s.Usage().TotalTokens)

	assert.Equal(t, "gpt-4o-mini", (*body)["model"])
	assert.EqualValues(t, 1000, (*body)["max_tokens"])
	opts, _ := (*body)["stream_options"].(map[string]any)
	assert.Equal(t, true, opts["include_usage"])
	msgs, _ := (*body)["messages"].([]any)
	assert.Len(t, msgs, 2)
}

func TestOpenAI_StreamWithoutUsage(t *testing.T) {
	srv, _ := fakeOpenAI(t, []string{"a", "b"}, false)
	client := NewOpenAI("sk-test", srv.URL+"/v1")

	s, err := client.Stream(context.Background(), testRequest())
	require.NoError(t, err)
	defer s.Close()

	assert.Len(t, drain(t, s), 2)
	assert.Nil(t, s.Usage())
}

func TestOpenAI_Complete(t *testing.T) {
	srv, body := fakeOpenAI(t, nil, false)
	client := NewOpenAI("sk-test", srv.URL+"/v1")

	c, err := client.Complete(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, chat.Message{Role: chat.RoleAssistant, Content: "Hello there"}, c.Message)
	require.NotNil(t, c.Usage)
	assert.Equal(t, 15, c.Usage.TotalTokens)
	assert.Nil(t, (*body)["stream_options"])
}

func TestOpenAI_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
	}))
	defer srv.Close()
	client := NewOpenAI("sk-test", srv.URL+"/v1")

	_, err := client.Complete(context.Background(), testRequest())
	assert.Error(t, err)

	_, err = client.Stream(context.Background(), testRequest())
	assert.Error(t, err)
}
