package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidekit/aide-be/shared/logger"
)

func newTestClient(baseURL string) *Client {
	return NewClient(&Config{
		BaseURL: baseURL,
		Model:   "test-model",
	}, logger.NewDefault().Logger)
}

func TestClient_Generate(t *testing.T) {
	var received generateRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		json.NewEncoder(w).Encode(generateResponse{Response: `{"intent":"task"}`})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	out, err := client.Generate(context.Background(), "classify this", "json")
	require.NoError(t, err)

	assert.Equal(t, `{"intent":"task"}`, out)
	assert.Equal(t, "test-model", received.Model)
	assert.Equal(t, "classify this", received.Prompt)
	assert.Equal(t, "json", received.Format)
	assert.False(t, received.Stream)
}

func TestClient_GenerateNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.Generate(context.Background(), "classify this", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestClient_Probe(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr bool
	}{
		{
			name: "healthy sidecar",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/version", r.URL.Path)
				json.NewEncoder(w).Encode(map[string]string{"version": "0.5.1"})
			},
		},
		{
			name: "non-200 status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantErr: true,
		},
		{
			name: "malformed version body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("garbage"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client := newTestClient(srv.URL)
			err := client.Probe(context.Background())

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClient_ProbeUnreachable(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1")
	assert.Error(t, client.Probe(context.Background()))
}
