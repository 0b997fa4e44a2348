// Command devproxy is a developer-workstation HTTPS reverse proxy that
// routes browser traffic to cluster-hosted HTTP services by discovering
// their declared ingress hostnames and maintaining a pool of on-demand
// local tunnels to those services.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sirupsen/logrus"

	"github.com/nais/devproxy/pkg/client/cmdutil"
)

func main() {
	ctx := context.Background()

	root := &cobra.Command{
		Use:           "devproxy",
		Short:         "Reverse proxy for NAIS application ingresses",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}

	var verbosity int
	root.Flags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	root.Flags().Int("update-frequency", 120, "seconds between re-discovery passes (reserved for future use)")
	root.Flags().String("config", "", "optional path to a devproxy.yaml config file")

	cobra.OnInitialize(func() {
		if cfgPath, _ := root.Flags().GetString("config"); cfgPath != "" {
			viper.SetConfigFile(cfgPath)
		} else {
			viper.SetConfigName("devproxy")
			viper.AddConfigPath(".")
		}
		_ = viper.ReadInConfig() // absent config file is not an error; env vars are handled by go-envconfig in LoadConfig
	})

	root.PreRunE = func(cmd *cobra.Command, args []string) error {
		logger := logrus.New()
		logger.SetLevel(cmdutil.LevelForVerbosity(verbosity))
		ctx = dlog.WithLogger(ctx, dlog.WrapLogrus(logger))
		cmd.SetContext(ctx)
		return nil
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "devproxy: error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := cmdutil.LoadConfig(ctx)
	if err != nil {
		return err
	}
	return cmdutil.Run(ctx, cfg)
}
