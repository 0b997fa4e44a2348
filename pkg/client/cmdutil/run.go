package cmdutil

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dhttp"
	"github.com/datawire/dlib/dlog"
	"github.com/pkg/errors"

	"github.com/nais/devproxy/pkg/client/hostsfile"
	"github.com/nais/devproxy/pkg/client/metrics"
	"github.com/nais/devproxy/pkg/client/pool"
	"github.com/nais/devproxy/pkg/client/router"
)

// tickInterval is the maintenance cadence of the background eviction loop.
const tickInterval = 10 * time.Second

// Run performs startup discovery, optionally mirrors discovered hosts into
// the hosts file, and then runs the HTTPS server and the maintenance loop
// until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	tlsConfig, err := loadTLSConfig(cfg)
	if err != nil {
		return errors.Wrap(err, "loading TLS material")
	}

	addr := listenAddr(cfg)
	listener, err := tls.Listen("tcp", addr, tlsConfig)
	if err != nil {
		return errors.Wrapf(err, "binding %s", addr)
	}
	dlog.Infof(ctx, "listening on %s", addr)

	state, err := pool.New(ctx, cfg.Contexts, cfg.Namespaces)
	if err != nil {
		return errors.Wrap(err, "initial discovery")
	}

	if isSuperuser() {
		hosts := state.Hostnames()
		dlog.Info(ctx, "process started as root, updating hosts entries")
		if err := hostsfile.Update(cfg.HostsFilePath, hosts); err != nil {
			return errors.Wrap(err, "updating hosts file")
		}
	} else {
		dlog.Info(ctx, "unable to update hosts entries, devproxy needs to run as root to do that")
	}

	reg := metrics.NewRegistry()

	g := dgroup.NewGroup(ctx, dgroup.GroupConfig{
		SoftShutdownTimeout:  5 * time.Second,
		EnableSignalHandling: true,
	})

	g.Go("https-server", func(c context.Context) error {
		handler := router.New(state, &http.Client{Timeout: 30 * time.Second})
		sc := &dhttp.ServerConfig{Handler: reg.Instrument(handler)}
		return sc.Serve(c, listener)
	})

	g.Go("maintenance", func(c context.Context) error {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				return nil
			case <-ticker.C:
				before := state.Len()
				state.Tick(c)
				after := state.Len()
				reg.SetOpenTunnels(after)
				if after < before {
					reg.AddTunnelEvictions(before - after)
				}
			}
		}
	})

	g.Go("metrics-server", func(c context.Context) error {
		ml, err := net.Listen("tcp", cfg.MetricsAddr)
		if err != nil {
			return errors.Wrapf(err, "binding metrics listener %s", cfg.MetricsAddr)
		}
		sc := &dhttp.ServerConfig{Handler: reg.Handler()}
		return sc.Serve(c, ml)
	})

	return g.Wait()
}

func loadTLSConfig(cfg Config) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h2", "http/1.1"},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func listenAddr(cfg Config) string {
	if cfg.ListenPort != 0 {
		return "127.0.0.1:" + strconv.Itoa(cfg.ListenPort)
	}
	if isSuperuser() {
		return "127.0.0.1:443"
	}
	return "127.0.0.1:8443"
}
