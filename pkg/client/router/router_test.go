package router

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nais/devproxy/pkg/client/pool"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	return context.Background()
}

func mustPort(t *testing.T, addr string) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	var port int
	_, err = fmt.Sscanf(portStr, "%d", &port)
	require.NoError(t, err)
	return port
}

func fakeKubectl(t *testing.T, forwardPort int) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake kubectl script is POSIX shell only")
	}

	dir := t.TempDir()
	script := fmt.Sprintf(`#!/bin/sh
case "$*" in
  *port-forward*)
    trap 'exit 0' INT
    echo "Forwarding from 127.0.0.1:%d -> 80"
    while true; do sleep 0.1; done
    ;;
  *)
    cat <<'EOF'
{"items": [{"metadata": {"name": "myapp"}, "spec": {"ingresses": ["https://myapp.example.com"]}}]}
EOF
    ;;
esac
`, forwardPort)
	path := filepath.Join(dir, "kubectl")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestServeHTTPRejectsEmptyHost(t *testing.T) {
	h := New(&pool.State{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = ""
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeHTTPReturnsNotFoundForUnknownHost(t *testing.T) {
	fakeKubectl(t, 44444)
	state, err := pool.New(testContext(t), []string{"dev-fss"}, []string{"default"})
	require.NoError(t, err)

	h := New(state, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "unknown.example.com"
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeHTTPProxiesToResolvedTunnel(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/widgets", r.URL.Path)
		assert.Equal(t, "color=blue", r.URL.RawQuery)
		w.Header().Set("X-From-Upstream", "yes")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("hello"))
	}))
	defer upstream.Close()

	port := mustPort(t, upstream.Listener.Addr().String())
	fakeKubectl(t, port)

	state, err := pool.New(testContext(t), []string{"dev-fss"}, []string{"default"})
	require.NoError(t, err)

	h := New(state, upstream.Client())
	req := httptest.NewRequest(http.MethodGet, "/widgets?color=blue", nil)
	req.Host = "myapp.example.com"
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "yes", rec.Header().Get("X-From-Upstream"))
	assert.Equal(t, "hello", rec.Body.String())
}

func TestServeHTTPReturnsBadGatewayOnTunnelOpenFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake kubectl script is POSIX shell only")
	}
	dir := t.TempDir()
	script := `#!/bin/sh
case "$*" in
  *port-forward*)
    echo "garbage, not a Forwarding line"
    ;;
  *)
    cat <<'EOF'
{"items": [{"metadata": {"name": "myapp"}, "spec": {"ingresses": ["https://myapp.example.com"]}}]}
EOF
    ;;
esac
`
	path := filepath.Join(dir, "kubectl")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))

	state, err := pool.New(testContext(t), []string{"dev-fss"}, []string{"default"})
	require.NoError(t, err)

	h := New(state, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "myapp.example.com"
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code, "a TunnelOpenFailed error must map to 502 via errkind, not a generic fallback")
}

func TestServeHTTPStripsPortFromHostHeader(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer upstream.Close()

	fakeKubectl(t, mustPort(t, upstream.Listener.Addr().String()))
	state, err := pool.New(testContext(t), []string{"dev-fss"}, []string{"default"})
	require.NoError(t, err)

	h := New(state, upstream.Client())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "myapp.example.com:8443"
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code, "port is stripped before lookup, so the request reaches the tunnel for myapp.example.com")
}
