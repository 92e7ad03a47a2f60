package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"model-registrar/internal/config"
	"model-registrar/internal/core/domain"
	"model-registrar/internal/core/services"
)

// NewRootCommand builds the model-registrar command.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "model-registrar",
		Short: "Register a trained model with the model registry",
		Long: `Loads a trained model from --model_path, logs it to a tracking run, registers
it under --model_name and writes the registered model reference to
--model_info_output_path.`,
		Version:       version,
		Args:          noArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRegister,
	}
	config.RegisterFlags(root.Flags())
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err}
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return root
}

// Execute runs the root command and returns the process exit code.
func Execute(version string) int {
	err := NewRootCommand(version).ExecuteContext(context.Background())
	if err != nil {
		log.WithError(err).Error("model registration failed")
	}
	return ExitCode(err)
}

func runRegister(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return &usageError{err}
	}
	initLogger(cfg)
	if err := cfg.Validate(); err != nil {
		return &usageError{err}
	}

	format, err := domain.ParseOutputFormat(cfg.Registration.OutputFormat)
	if err != nil {
		return &usageError{fmt.Errorf("%w: %q", err, cfg.Registration.OutputFormat)}
	}

	req := domain.RegistrationRequest{
		ModelName:    cfg.Registration.ModelName,
		ModelPath:    cfg.Registration.ModelPath,
		OutputPath:   cfg.Registration.OutputPath,
		OutputFormat: format,
		ArtifactPath: cfg.Registration.ArtifactPath,
		RunName:      cfg.Registration.RunName,
		Tags:         cfg.Registration.Tags,
	}
	// Backends open connections and may create tables, so a bad request
	// must fail before any of them is built.
	if err := services.CheckRequest(&req); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := newRegistrar(ctx, cfg)
	defer cleanup()
	if err != nil {
		return err
	}

	record, err := svc.Register(ctx, req)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"id":  record.ID,
		"uri": record.URI,
	}).Info("model registration complete")
	return nil
}

func noArgs(_ *cobra.Command, args []string) error {
	if len(args) > 0 {
		return &usageError{fmt.Errorf("unexpected arguments %q", args)}
	}
	return nil
}

func initLogger(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Logger.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
