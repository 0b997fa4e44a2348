// Package router implements the request-handling side of the proxy: Host
// header resolution, lookup against the pool, URI rewriting and upstream
// dispatch.
package router

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/datawire/dlib/dlog"

	"github.com/nais/devproxy/pkg/client/errkind"
	"github.com/nais/devproxy/pkg/client/pool"
)

// Handler is an http.Handler that forwards requests to the tunnel resolved
// by state for the request's (Host, path).
type Handler struct {
	state    *pool.State
	upstream *http.Client
}

// New builds a Handler. upstream is the HTTP client used for the outbound
// dispatch to the tunnel endpoint; pass nil to use http.DefaultClient.
func New(state *pool.State, upstream *http.Client) *Handler {
	if upstream == nil {
		upstream = http.DefaultClient
	}
	return &Handler{state: state, upstream: upstream}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	host := r.Host
	if host == "" {
		writeError(w, errkind.MissingHost.New(fmt.Errorf("request carried no Host header")))
		return
	}
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	ctx = dlog.WithField(ctx, "host", host)
	ctx = dlog.WithField(ctx, "path", r.URL.Path)

	pf, ok, err := h.state.FetchAddress(ctx, host, r.URL.Path)
	if err != nil {
		dlog.Errorf(ctx, "failed to open tunnel: %v", err)
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, errkind.NoRoute.Newf("no service found for %s", host))
		return
	}

	target := fmt.Sprintf("http://%s:%d%s", pf.Host, pf.Port, r.URL.Path)
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	dlog.Infof(ctx, "handling request for %s, forwarding to %s", host, target)

	h.dispatch(ctx, w, r, target)
}

func (h *Handler) dispatch(ctx context.Context, w http.ResponseWriter, r *http.Request, target string) {
	outReq, err := http.NewRequestWithContext(ctx, r.Method, target, r.Body)
	if err != nil {
		writeError(w, errkind.UpstreamFailed.New(err))
		return
	}
	outReq.Header = r.Header.Clone()

	resp, err := h.upstream.Do(outReq)
	if err != nil {
		writeError(w, errkind.UpstreamFailed.New(err))
		return
	}
	defer resp.Body.Close()

	for k, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// writeError maps err to an HTTP status via its errkind.Kind and writes it as
// the response body. Errors that carry no recognized Kind fall back to 502,
// since they all originate from the upstream-reaching half of the request
// path by the time they reach here.
func writeError(w http.ResponseWriter, err error) {
	status := errkind.GetKind(err).StatusCode()
	if status == 0 {
		status = http.StatusBadGateway
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(err.Error()))
}
