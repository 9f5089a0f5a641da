package slack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifySendsHeaderAndBody(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
	}))
	defer srv.Close()

	n := New(srv.URL)
	require.NoError(t, n.Notify(context.Background(), "Reddit: Hot Posts Pipeline", "all good"))
	assert.Equal(t, "*Reddit: Hot Posts Pipeline*\n\nall good", got["text"])
}

func TestNotifyDisabled(t *testing.T) {
	n := New("")
	assert.NoError(t, n.Notify(context.Background(), "header", "message"))
}

func TestNotifyServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := New(srv.URL)
	err := n.Notify(context.Background(), "header", "message")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestNotifyUnreachable(t *testing.T) {
	n := New("http://127.0.0.1:1/webhook")
	assert.Error(t, n.Notify(context.Background(), "header", "message"))
}
