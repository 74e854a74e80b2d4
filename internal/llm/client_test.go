package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-assist/internal/config"
	"github.com/spec-kit/ticket-assist/internal/domain"
)

func TestClient_Complete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"priority\":\"low\"}"}}]}`))
	}))
	defer srv.Close()

	client := NewClient(config.LLMConfig{BaseURL: srv.URL + "/v1/", APIKey: "secret", Model: "test-model", TimeoutSeconds: 5})
	out, err := client.Complete(context.Background(), "sys", "usr")
	require.NoError(t, err)

	assert.Equal(t, `{"priority":"low"}`, out)
	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "usr", got.Messages[1].Content)
}

func TestClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("empty") != "" {
			_, _ = w.Write([]byte(`{"choices":[]}`))
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	client := NewClient(config.LLMConfig{BaseURL: srv.URL, TimeoutSeconds: 5})
	_, err := client.Complete(context.Background(), "sys", "usr")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	emptyClient := NewClient(config.LLMConfig{BaseURL: srv.URL, TimeoutSeconds: 5})
	emptyClient.http.SetQueryParam("empty", "1")
	_, err = emptyClient.Complete(context.Background(), "sys", "usr")
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

type stubCompleter struct {
	reply  string
	err    error
	system string
	user   string
}

func (s *stubCompleter) Complete(_ context.Context, system, user string) (string, error) {
	s.system, s.user = system, user
	return s.reply, s.err
}

func TestTriageAgent_Classify(t *testing.T) {
	stub := &stubCompleter{reply: `{"priority":"high","helpfulNotes":"n","relatedSkills":["Go"]}`}
	agent := NewTriageAgent(stub, NewNormalizer(nil))

	result, err := agent.Classify(context.Background(), "Crash", "Server panics")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, domain.TicketPriorityHigh, result.Priority)
	assert.Contains(t, stub.user, "- Title: Crash")
	assert.Contains(t, stub.user, "- Description: Server panics")

	stub.reply = "sorry, I cannot help"
	result, err = agent.Classify(context.Background(), "Crash", "Server panics")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestModeratorAssistAgent_Suggest(t *testing.T) {
	stub := &stubCompleter{reply: `{"replyProposal":"Try again"}`}
	agent := NewModeratorAssistAgent(stub, NewNormalizer(nil))

	bundle, err := agent.Suggest(context.Background(), AssistInput{Title: "Crash", Status: "IN_PROGRESS", Digest: "No prior comments available."})
	require.NoError(t, err)
	require.NotNil(t, bundle)
	require.NotNil(t, bundle.ReplyProposal)
	assert.Equal(t, "Try again", *bundle.ReplyProposal)
	assert.Contains(t, stub.user, "- Description: N/A")
	assert.Contains(t, stub.user, "- Priority: unspecified")
	assert.Contains(t, stub.user, "- Helpful notes: none")
	assert.Contains(t, stub.user, "No prior comments available.")
}
