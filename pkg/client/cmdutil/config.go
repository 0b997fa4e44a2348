// Package cmdutil wires the forwarding engine (pool, router, tunnel,
// discovery) into a runnable process: flag/log-level plumbing, TLS
// acceptor setup, and the supervised goroutine group that runs the HTTPS
// server alongside the maintenance loop.
package cmdutil

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the small set of settings this revision honors. Contexts and
// namespaces default to the NAIS platform's standard set but are plumbed as
// config so tests and local overrides (via devproxy.yaml or DEVPROXY_* env
// vars) can replace them.
type Config struct {
	Contexts        []string `env:"DEVPROXY_CONTEXTS"`
	Namespaces      []string `env:"DEVPROXY_NAMESPACES"`
	UpdateFrequency int      `env:"DEVPROXY_UPDATE_FREQUENCY"`
	ListenPort      int      `env:"DEVPROXY_LISTEN_PORT"` // 0 means "choose by superuser-ness"
	MetricsAddr     string   `env:"DEVPROXY_METRICS_ADDR"`
	CertFile        string   `env:"DEVPROXY_CERT_FILE"`
	KeyFile         string   `env:"DEVPROXY_KEY_FILE"`
	HostsFilePath   string   `env:"DEVPROXY_HOSTS_FILE"`
}

// LoadConfig builds a Config in increasing order of priority: built-in
// defaults, DEVPROXY_* environment variables bound via go-envconfig's typed
// struct tags, and finally whatever devproxy.yaml the CLI's cobra.OnInitialize
// hook already loaded into viper. A field keeps its env-derived value unless
// the config file explicitly sets the matching key.
func LoadConfig(ctx context.Context) (Config, error) {
	cfg := Config{
		Contexts:        []string{"dev-fss", "prod-fss"},
		Namespaces:      []string{"default", "tbd"},
		UpdateFrequency: 120,
		MetricsAddr:     "127.0.0.1:9090",
		CertFile:        "cert.pem",
		KeyFile:         "key.pem",
		HostsFilePath:   "/etc/hosts",
	}

	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "loading environment configuration")
	}

	applyFileOverrides(&cfg)
	return cfg, nil
}

// applyFileOverrides replaces fields with values explicitly present in the
// devproxy.yaml config file. Only keys present in the file win; everything
// else keeps its default or environment-derived value.
func applyFileOverrides(cfg *Config) {
	if viper.IsSet("contexts") {
		cfg.Contexts = viper.GetStringSlice("contexts")
	}
	if viper.IsSet("namespaces") {
		cfg.Namespaces = viper.GetStringSlice("namespaces")
	}
	if viper.IsSet("update_frequency") {
		cfg.UpdateFrequency = viper.GetInt("update_frequency")
	}
	if viper.IsSet("listen_port") {
		cfg.ListenPort = viper.GetInt("listen_port")
	}
	if viper.IsSet("metrics_addr") {
		cfg.MetricsAddr = viper.GetString("metrics_addr")
	}
	if viper.IsSet("cert_file") {
		cfg.CertFile = viper.GetString("cert_file")
	}
	if viper.IsSet("key_file") {
		cfg.KeyFile = viper.GetString("key_file")
	}
	if viper.IsSet("hosts_file") {
		cfg.HostsFilePath = viper.GetString("hosts_file")
	}
}

// LevelForVerbosity maps the -v occurrence count to a logrus level: 0 is
// Info, 1 is Debug, 2 or more is Trace.
func LevelForVerbosity(v int) logrus.Level {
	switch {
	case v <= 0:
		return logrus.InfoLevel
	case v == 1:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}
