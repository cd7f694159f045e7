package tfl

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testClient(baseURL string) *Client {
	return NewClient(baseURL, 5*time.Second, 1000, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_Fetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/AccidentStats/2019", r.URL.Path)
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`[
			{"$type":"AccidentDetail","id":345979,"lat":51.570865,"severity":"Slight","vehicles":[{"type":"Car"}]},
			{"$type":"AccidentDetail","id":345980,"lat":51.5,"severity":"Fatal","vehicles":[]}
		]`))
	}))
	defer srv.Close()

	records, err := testClient(srv.URL+"/AccidentStats").Fetch(context.Background(), 2019)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, json.Number("345979"), records[0]["id"])
	assert.Equal(t, json.Number("51.570865"), records[0]["lat"])
	assert.Equal(t, "Slight", records[0]["severity"])
	assert.Equal(t, []any{map[string]any{"type": "Car"}}, records[0]["vehicles"])
}

func TestClient_Fetch_NonSuccessReturnsEmpty(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusTooManyRequests, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "unavailable", status)
		}))

		records, err := testClient(srv.URL).Fetch(context.Background(), 2019)
		require.NoError(t, err, "status %d", status)
		assert.Empty(t, records, "status %d", status)

		srv.Close()
	}
}

func TestClient_Fetch_MalformedBodyReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"message":"not an array"}`))
	}))
	defer srv.Close()

	records, err := testClient(srv.URL).Fetch(context.Background(), 2019)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestClient_Fetch_UnreachableReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	records, err := testClient(url).Fetch(context.Background(), 2019)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestClient_Fetch_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(srv.URL).Fetch(ctx, 2019)
	require.Error(t, err)
}
