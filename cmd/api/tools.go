package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"voice-lending-go/internal/artifact"
	"voice-lending-go/internal/config"
	"voice-lending-go/internal/dataset"
	"voice-lending-go/internal/loans"
	"voice-lending-go/internal/logger"
	"voice-lending-go/internal/transcription"
)

// transcribeCmd is the out-of-process helper the server invokes. Stdout
// carries only the helper output; logs go to stderr.
func transcribeCmd() *cobra.Command {
	var file, language string
	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "Transcribe an audio file and print language metadata and transcript",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New(logger.Options{
				Environment: cfg.Environment,
				Level:       cfg.LogLevel,
				Output:      os.Stderr,
			})
			if cfg.SarvamAPIKey == "" && !cfg.UseMockSpeech {
				return fmt.Errorf("%w: SARVAM_API_KEY", config.ErrMissingSetting)
			}
			if _, err := os.Stat(file); err != nil {
				return err
			}
			return transcription.RunHelper(cmd.Context(), newSarvam(cfg, log), file, language, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "audio file to transcribe")
	cmd.Flags().StringVar(&language, "language", "auto", "language code, or auto to detect")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired audio artifacts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			store, err := artifact.New(cfg.TempDir, cfg.ArtifactMaxAge, log.Component("artifact"))
			if err != nil {
				return err
			}
			n, err := store.Sweep()
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{"dir": store.Dir(), "removed": n}).Info("sweep complete")
			return nil
		},
	}
}

func importLoansCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import-loans",
		Short: "Load historical loan applications from an xlsx workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			records, summary, err := dataset.LoadAndSummarize(file, log.Entry)
			if err != nil {
				return err
			}
			db, err := loans.Open(cfg.LoansDBPath, log.Entry)
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := db.Insert(cmd.Context(), records)
			if err != nil {
				return err
			}
			all, err := db.All(cmd.Context())
			if err != nil {
				return err
			}
			history := loans.Summarize(all)
			log.WithFields(logrus.Fields{
				"db":                    cfg.LoansDBPath,
				"imported":              n,
				"import_approval_rate":  summary.ApprovalRate,
				"total":                 history.Total,
				"history_approval_rate": history.ApprovalRate,
			}).Info("loan history imported")
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "xlsx workbook with loan history")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
