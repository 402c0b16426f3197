package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/HugoJanow/ArticlePulse/internal/app"
	"github.com/HugoJanow/ArticlePulse/internal/cli"
	"github.com/HugoJanow/ArticlePulse/internal/config"
	"github.com/HugoJanow/ArticlePulse/internal/logging"
)

// session carries what every command needs. The application is built on first use.
type session struct {
	cfg *config.Config
	log *logging.Logger
	out *cli.Printer
	w   io.Writer

	configFile string
	asJSON     bool
	verbose    bool

	application *app.Application
}

func newRootCommand(w io.Writer) (*cobra.Command, *session) {
	s := &session{w: w}

	root := &cobra.Command{
		Use:           "articlectl",
		Short:         "Administer an ArticlePulse deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return s.load()
		},
	}
	root.PersistentFlags().StringVar(&s.configFile, "config", "", "YAML configuration overlay (overrides CONFIG_FILE)")
	root.PersistentFlags().BoolVar(&s.asJSON, "json", false, "print results as JSON")
	root.PersistentFlags().BoolVarP(&s.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newAddressesCommand(s),
		newMigrateCommand(s),
		newAttachContentCommand(s),
		newRotateKeyCommand(s),
		newResetPurchasesCommand(s),
		newCheckAccessCommand(s),
		newPurchaseCommand(s),
		newBalanceCommand(s),
		newFundCommand(s),
		newTokenCommand(s),
	)
	return root, s
}

func (s *session) load() error {
	if s.configFile != "" {
		if err := os.Setenv("CONFIG_FILE", s.configFile); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	s.cfg = cfg

	level := "warn"
	if s.verbose {
		level = "debug"
	}
	s.log = logging.New("articlectl", level, "text")
	s.log.SetOutput(os.Stderr)
	s.log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: !s.verbose})

	s.out = cli.NewPrinter(s.w)
	s.out.SetJSON(s.asJSON)
	return nil
}

// app wires the application against the configured stores and ledger.
func (s *session) app(cmd *cobra.Command) (*app.Application, error) {
	if s.application != nil {
		return s.application, nil
	}
	a, err := app.New(cmd.Context(), s.cfg, s.log, app.Options{})
	if err != nil {
		return nil, err
	}
	s.application = a
	return a, nil
}

func (s *session) close() error {
	if s.application == nil {
		return nil
	}
	err := s.application.Close()
	s.application = nil
	return err
}
