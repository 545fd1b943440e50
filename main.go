package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	cfg "github.com/aryandadwal2006/PsychAI-Version-1/config"
	"github.com/aryandadwal2006/PsychAI-Version-1/transcription"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "psychai",
		Short:         "Voice conversation pipeline: speech in, empathetic reply out",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: search config/<CONFIG_ENV>, src/shared, .)")

	load := func(cmd *cobra.Command) (*cfg.Root, *logrus.Logger, error) {
		conf, err := cfg.Load(configPath)
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
			return nil, nil, err
		}
		log, err := newLogger(conf, cmd.ErrOrStderr())
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
			return nil, nil, err
		}
		return conf, log, nil
	}

	root.AddCommand(
		newServeCmd(load),
		newTurnCmd(load),
		newCheckCmd(load),
		newConfigCmd(load),
	)
	return root
}

type loader func(cmd *cobra.Command) (*cfg.Root, *logrus.Logger, error)

func newServeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the conversation API and spoken replies over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, log, err := load(cmd)
			if err != nil {
				return err
			}
			a, err := buildApp(conf, log)
			if err != nil {
				fatal(log, err)
			}
			defer a.Close()

			srv := a.server()
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sig)

			select {
			case err := <-errCh:
				return err
			case s := <-sig:
				log.WithField("signal", s.String()).Info("shutting down")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
}

func newTurnCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "turn <audio>...",
		Short: "Run one conversational turn per recording, in order, and print the results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, log, err := load(cmd)
			if err != nil {
				return err
			}
			a, err := buildApp(conf, log)
			if err != nil {
				fatal(log, err)
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			for _, path := range args {
				res := a.pipeline.Process(cmd.Context(), path)
				if res.Status != "" {
					fmt.Fprintf(out, "[%s] %s\n", path, res.Status)
					continue
				}
				n := len(res.Transcript)
				for _, t := range res.Transcript[max(0, n-2):] {
					fmt.Fprintf(out, "%s: %s\n", t.Speaker, t.Text)
				}
				if res.AudioPath != "" {
					fmt.Fprintf(out, "audio: %s\n", res.AudioPath)
				}
			}
			return nil
		},
	}
}

func newCheckCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify configuration and report which engines are available",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, log, err := load(cmd)
			if err != nil {
				return err
			}
			a, err := buildApp(conf, log)
			if err != nil {
				if errors.Is(err, transcription.ErrEngineMissing) {
					fmt.Fprintf(cmd.ErrOrStderr(), "transcription engine missing: %v\n", err)
				}
				return err
			}
			defer a.Close()
			a.printEngines(cmd.OutOrStdout())
			return nil
		},
	}
}

func newConfigCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, _, err := load(cmd)
			if err != nil {
				return err
			}
			shown := *conf
			if shown.Synthesis.Remote.APIKey != "" {
				shown.Synthesis.Remote.APIKey = "REDACTED"
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(&shown)
		},
	}
}
