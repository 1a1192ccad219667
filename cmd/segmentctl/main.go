// Package main provides segmentctl, the administrative CLI for the segment
// store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fastygo/segments/domain"
	"github.com/fastygo/segments/internal/config"
	"github.com/fastygo/segments/internal/storage"
	"github.com/fastygo/segments/pkg/logger"
	"github.com/fastygo/segments/usecase/revision"
	segmentUC "github.com/fastygo/segments/usecase/segment"
)

const (
	exitUserError = 1
	exitSysError  = 2
)

var (
	flagJSON       bool
	flagOutput     string
	flagConfigDir  string
	flagAllowPurge bool

	cfg    *config.Config
	cliCfg *viper.Viper
	log    *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitSysError)
	}
}

var rootCmd = &cobra.Command{
	Use:           "segmentctl",
	Short:         "Administer the segment store",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded

		cliCfg, err = loadCLIConfig(flagConfigDir)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("output") {
			cliCfg.Set(cfgKeyOutput, flagOutput)
		}
		if flagJSON {
			cliCfg.Set(cfgKeyOutput, outputJSON)
		}
		if !validOutput(cliCfg.GetString(cfgKeyOutput)) {
			return fmt.Errorf("unknown output format %q", cliCfg.GetString(cfgKeyOutput))
		}

		log, err = logger.New(logger.Config{
			Level:       cfg.Logger.Level,
			Encoding:    "console",
			AppName:     "segmentctl",
			Environment: cfg.Environment,
		})
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON (same as --output json)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", outputText, "output format: text, json or yaml")
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", defaultConfigDir(), "directory holding config.yaml")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(purgeCmd)
}

// openStore opens the configured database and builds a segment store.
// Purge is enabled by --allow-purge, allow_purge in config.yaml or
// ALLOW_PHYSICAL_DELETE.
func openStore(ctx context.Context) (*storage.Storage, *segmentUC.UseCase, error) {
	store, err := storage.Open(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	uc := segmentUC.New(segmentUC.Deps{
		Segments:   store.Segments,
		Users:      store.Users,
		Transactor: store.Transactor,
		Recorder:   revision.New(store.Revisions, log),
	}, segmentUC.Options{
		AllowPurge: flagAllowPurge || cliCfg.GetBool(cfgKeyAllowPurge) || cfg.Segments.AllowPhysicalDelete,
	}, log)
	return store, uc, nil
}

// exitCode maps domain errors on user input to exitUserError.
func exitCode(err error) int {
	for _, code := range []domain.ErrorCode{
		domain.ErrCodeInvalid,
		domain.ErrCodeNotFound,
		domain.ErrCodeForbidden,
		domain.ErrCodeNotPermitted,
		domain.ErrCodeConflict,
	} {
		if domain.IsDomainError(err, code) {
			return exitUserError
		}
	}
	return exitSysError
}

func fail(prefix string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", prefix, err)
	os.Exit(exitCode(err))
}

// structured reports whether the configured output is machine readable.
func structured() bool {
	return cliCfg.GetString(cfgKeyOutput) != outputText
}

// printStructured writes v as JSON or YAML depending on the output format.
func printStructured(w io.Writer, v any) error {
	if cliCfg.GetString(cfgKeyOutput) == outputYAML {
		return printYAML(w, v)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printYAML routes v through JSON first so field names follow the json tags.
func printYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(generic)
}
