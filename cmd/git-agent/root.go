package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fleetconf/git-agent/internal/config"
	"github.com/fleetconf/git-agent/internal/git"
	"github.com/fleetconf/git-agent/internal/logging"
	"github.com/fleetconf/git-agent/internal/server"
	"github.com/fleetconf/git-agent/internal/sync"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	var configPath string
	var logLevel string

	cmd := &cobra.Command{
		Use:   "git-agent",
		Short: "Sidecar process exposing git operations over framed stdio",
		Long: `git-agent is a long-lived sidecar that gives a host process safe,
idempotent access to git-backed configuration repositories. It reads
length-prefixed msgpack requests from stdin and writes responses to stdout;
logs go to stderr.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}

			log := logging.New(cfg.LogLevel)
			engine := git.NewEngine(cfg.Credentials, log)
			syncer := sync.New(engine, cfg.DefaultDepth, log)

			log.Infof("git-agent %s serving on stdio", version)
			return server.New(cmd.InOrStdin(), cmd.OutOrStdout(), syncer, engine, log).Run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error), overrides the config file")

	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agent version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
