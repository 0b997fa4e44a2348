// Package tunnel manages one live port-forward: the kubectl child process
// that backs it, its stdout parsing and draining, its liveness probe, and
// its TTL-driven lifecycle.
package tunnel

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/datawire/dlib/dexec"
	"github.com/datawire/dlib/dlog"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/nais/devproxy/pkg/client/discovery"
	"github.com/nais/devproxy/pkg/client/errkind"
)

// ttlDuration is the lifetime granted on open and refreshed on every reuse.
const ttlDuration = 60 * time.Second

// killGrace is how long Close waits after SIGINT before escalating to
// SIGKILL on POSIX hosts.
const killGrace = 3 * time.Second

var forwardingLine = regexp.MustCompile(`\AForwarding from (.+):(\d{2,5}) -> \d{2,5}`)

// Portforward is the loopback endpoint a Tunnel bridges to the cluster. It
// is a plain value: callers are expected to copy it rather than reach back
// into the Tunnel that produced it.
type Portforward struct {
	Host string
	Port uint16
}

// Tunnel owns one kubectl port-forward child process and the background
// task draining its remaining stdout. Every exported method except Close
// may be called concurrently with Tick from the maintenance loop, because
// the pool only ever touches a Tunnel while holding its
// own lock — Tunnel itself does no internal locking beyond what's needed to
// make ttl refresh and reads of it atomic.
type Tunnel struct {
	id          string
	child       *dexec.Cmd
	stdoutTask  <-chan struct{}
	hosts       []string
	liveness    string
	client      *http.Client
	portforward Portforward

	mu  sync.Mutex
	ttl time.Time

	closed bool
}

// Open spawns `kubectl port-forward --context <ctx> --namespace <ns>
// svc/<application> :80`, reads its first stdout line to learn the
// assigned loopback host and port, and starts the background drain task
// for the remaining lines.
func Open(ctx context.Context, descriptor discovery.Descriptor) (*Tunnel, error) {
	id := uuid.NewString()
	ctx = dlog.WithField(ctx, "tunnel_id", id)
	ctx = dlog.WithField(ctx, "application", descriptor.ApplicationName)

	// The child outlives the caller's ctx (usually a request context); it is
	// stopped only by Close.
	child := dexec.CommandContext(context.WithoutCancel(ctx), "kubectl",
		"port-forward",
		"--context", descriptor.Context,
		"--namespace", descriptor.Namespace,
		fmt.Sprintf("svc/%s", descriptor.ApplicationName),
		":80")

	out, err := child.StdoutPipe()
	if err != nil {
		return nil, errkind.TunnelOpenFailed.New(errors.Wrap(err, "creating stdout pipe"))
	}
	if err := child.Start(); err != nil {
		return nil, errkind.TunnelOpenFailed.New(errors.Wrap(err, "starting kubectl port-forward"))
	}

	scanner := bufio.NewScanner(out)
	if !scanner.Scan() {
		_ = killChild(child)
		err := scanner.Err()
		if err == nil {
			err = errors.New("kubectl port-forward produced no output")
		}
		return nil, errkind.TunnelOpenFailed.New(err)
	}

	firstLine := scanner.Text()
	m := forwardingLine.FindStringSubmatch(firstLine)
	if m == nil {
		_ = killChild(child)
		return nil, errkind.TunnelOpenFailed.Newf("unexpected port-forward output: %q", firstLine)
	}
	port, err := strconv.ParseUint(m[2], 10, 16)
	if err != nil {
		_ = killChild(child)
		return nil, errkind.TunnelOpenFailed.New(errors.Wrap(err, "parsing port-forward port"))
	}
	portforward := Portforward{Host: m[1], Port: uint16(port)}
	dlog.Infof(ctx, "opened a connection for %s:%d from %q", portforward.Host, portforward.Port, firstLine)

	done := make(chan struct{})
	go drainStdout(ctx, scanner, done)

	t := &Tunnel{
		id:          id,
		child:       child,
		stdoutTask:  done,
		hosts:       append([]string(nil), descriptor.Ingresses...),
		liveness:    descriptor.Liveness,
		client:      &http.Client{Timeout: 5 * time.Second},
		portforward: portforward,
		ttl:         time.Now().Add(ttlDuration),
	}
	return t, nil
}

// drainStdout consumes the lines of a port-forward's stdout after the first
// (already consumed by Open), logging every line that doesn't start with
// "Handling connection". It terminates when stdout
// reaches EOF, i.e. when the child exits.
func drainStdout(ctx context.Context, scanner *bufio.Scanner, done chan<- struct{}) {
	defer close(done)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "Handling connection") {
			dlog.Info(ctx, line)
		}
	}
}

// Portforward returns a copy of the tunnel's loopback endpoint.
func (t *Tunnel) Portforward() Portforward {
	return t.portforward
}

// ContainsIngress reports whether ingress is one of this tunnel's snapshot
// of ingresses, used by the pool to decide whether an existing Tunnel can
// be reused for a resolved ingress.
func (t *Tunnel) ContainsIngress(ingress string) bool {
	for _, h := range t.hosts {
		if h == ingress {
			return true
		}
	}
	return false
}

// RefreshTTL extends the tunnel's deadline to now + ttlDuration.
func (t *Tunnel) RefreshTTL() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ttl = time.Now().Add(ttlDuration)
}

func (t *Tunnel) ttlExpired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !time.Now().Before(t.ttl)
}

// Selftest issues a liveness GET and reports whether it returned 2xx. A
// Tunnel with no declared liveness path reports unhealthy — this mirrors
// a quirk carried over unchanged from the original autoforward behavior:
// such a Tunnel is evicted on the very next tick.
func (t *Tunnel) Selftest(ctx context.Context) bool {
	if t.liveness == "" {
		return false
	}
	path := strings.TrimPrefix(t.liveness, "/")
	url := fmt.Sprintf("http://%s:%d/%s", t.portforward.Host, t.portforward.Port, path)
	dlog.Debugf(ctx, "running selftest towards %s", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Tick reports whether the tunnel should be kept (true) or evicted (false):
// it's evicted when the selftest fails or the TTL has expired.
func (t *Tunnel) Tick(ctx context.Context) bool {
	if !t.Selftest(ctx) {
		dlog.Infof(ctx, "failed selftest, marking connection for %v as dead", t.hosts)
		return false
	}
	return !t.ttlExpired()
}

// Close terminates the child process and waits for the stdout drain task to
// finish. It must not be called more than once per Tunnel.
func (t *Tunnel) Close(ctx context.Context) error {
	if t.closed {
		panic("tunnel closed twice")
	}
	t.closed = true

	dlog.Infof(ctx, "closing port-forward for %v", t.hosts)
	if err := killChild(t.child); err != nil {
		dlog.Warnf(ctx, "error stopping port-forward: %v", err)
	}
	<-t.stdoutTask
	return nil
}

// killChild implements a graceful-then-forceful shutdown: on POSIX hosts,
// SIGINT, wait up to killGrace, then SIGKILL; on
// non-POSIX hosts, a hard kill.
func killChild(cmd *dexec.Cmd) error {
	if runtime.GOOS == "windows" {
		return hardKill(cmd)
	}

	proc := cmd.Process
	if proc == nil {
		return nil
	}
	if err := proc.Signal(syscall.SIGINT); err != nil {
		return hardKill(cmd)
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	select {
	case <-waitDone:
		return nil
	case <-time.After(killGrace):
		if err := proc.Kill(); err != nil {
			return err
		}
		<-waitDone
		return nil
	}
}

func hardKill(cmd *dexec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil {
		return err
	}
	return cmd.Wait()
}
