package httpapi_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agoraflow/agora/httpapi"
)

func TestHealthEndpointRequiresNoAuth(t *testing.T) {
	srv := &httpapi.Server{Config: httpapi.Config{AuthSharedSecret: "secret"}}
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProtectedEndpointRejectsMissingKey(t *testing.T) {
	srv := &httpapi.Server{Config: httpapi.Config{AuthSharedSecret: "secret"}}
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/protocols")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProtectedEndpointAcceptsValidKey(t *testing.T) {
	srv := &httpapi.Server{Config: httpapi.Config{AuthSharedSecret: "secret"}}
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/protocols", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "secret")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDevBypassAllowsMissingKey(t *testing.T) {
	srv := &httpapi.Server{Config: httpapi.Config{DevBypassAuth: true}}
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/protocols")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
