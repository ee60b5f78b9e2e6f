package versioncheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckLatestParsesVersionField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"info": {"version": "3.2.1"}}`))
	}))
	defer srv.Close()

	v, err := CheckLatest(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "3.2.1", v)
}

func TestCheckLatestNonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := CheckLatest(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestCheckLatestMissingVersionFieldIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"info": {}}`))
	}))
	defer srv.Close()

	_, err := CheckLatest(context.Background(), srv.URL)
	assert.Error(t, err, "a response with no version field must not silently report an empty version as success")
}

func TestCheckLatestMalformedJSONIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := CheckLatest(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestCheckLatestUnreachableEndpointIsError(t *testing.T) {
	_, err := CheckLatest(context.Background(), "http://127.0.0.1:1")
	assert.Error(t, err)
}
