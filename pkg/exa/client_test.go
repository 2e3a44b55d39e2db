package exa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   string
		wantCount int
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body: `{"results": [
				{"title": "Acme Corp", "url": "https://acme.example", "text": "Precision machining"},
				{"title": "Beta LLC", "url": "https://beta.example", "text": "Industrial coatings"}
			]}`,
			wantCount: 2,
		},
		{
			name:      "empty",
			status:    http.StatusOK,
			body:      `{"results": []}`,
			wantCount: 0,
		},
		{
			name:    "unauthorized",
			status:  http.StatusUnauthorized,
			body:    `{"error": "invalid api key"}`,
			wantErr: "unexpected status 401",
		},
		{
			name:    "server_error",
			status:  http.StatusInternalServerError,
			body:    `{"error": "boom"}`,
			wantErr: "unexpected status 500",
		},
		{
			name:    "malformed",
			status:  http.StatusOK,
			body:    `{not json`,
			wantErr: "unmarshal response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/search", r.URL.Path)
				assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

				var req SearchRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "neural", req.Type)
				assert.True(t, req.UseAutoprompt)
				assert.Equal(t, 35, req.NumResults)
				assert.Equal(t, 500, req.Contents.Text.MaxCharacters)

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient("test-key", WithBaseURL(srv.URL))
			resp, err := c.Search(context.Background(), NewSearchRequest("machining companies", 35, 500))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, resp.Results, tt.wantCount)
		})
	}
}

func TestNewSearchRequest_DefaultCharacters(t *testing.T) {
	req := NewSearchRequest("q", 10, 0)
	assert.Equal(t, defaultMaxCharacters, req.Contents.Text.MaxCharacters)
	assert.Equal(t, "q", req.Query)
}
