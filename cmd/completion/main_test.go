package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"vermithor/completion"
	completiongrpc "vermithor/completion/grpc"
	"vermithor/config"
)

const testKeyName = "VERMITHOR_COMPLETION_TEST_KEY"

func startServer(t *testing.T, cfg *config.Config) *completiongrpc.Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, lis) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("completion server did not stop")
		}
	})

	client, err := completiongrpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func testConfig(endpoint string) *config.Config {
	return &config.Config{OpenRouter: config.OpenRouterConfig{
		Endpoint:   endpoint,
		APIKeyName: testKeyName,
	}}
}

func request() *completion.CompletionRequest {
	return &completion.CompletionRequest{
		Model: "mistralai/mistral-7b-instruct:free",
		Messages: []completion.Message{
			{Role: completion.RoleAssistant, Content: "Hi"},
			{Role: completion.RoleUser, Content: "2+2?"},
		},
	}
}

func TestServeRelaysOpenRouterAnswers(t *testing.T) {
	t.Setenv(testKeyName, "sk-test")
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, content := range []string{"4", "."} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", content)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(upstream.Close)

	client := startServer(t, testConfig(upstream.URL))

	stream, err := client.Stream(context.Background(), request())
	require.NoError(t, err)
	answer, err := completion.Collect(stream, nil)
	require.NoError(t, err)
	assert.Equal(t, "4.", answer)
}

func TestServeReportsMissingCredential(t *testing.T) {
	t.Setenv(testKeyName, "")
	client := startServer(t, testConfig("http://127.0.0.1:1"))

	_, err := client.Stream(context.Background(), request())
	require.Error(t, err)
	assert.True(t, errors.Is(err, completion.ErrConfiguration))
	assert.Contains(t, completion.UserMessage(err), testKeyName+" is not set in the environment")
}
