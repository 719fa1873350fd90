package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"voice-lending-go/internal/api"
	"voice-lending-go/internal/artifact"
	"voice-lending-go/internal/codec"
	"voice-lending-go/internal/config"
	"voice-lending-go/internal/executor"
	"voice-lending-go/internal/gateway"
	"voice-lending-go/internal/llm"
	"voice-lending-go/internal/locale"
	"voice-lending-go/internal/loans"
	"voice-lending-go/internal/logger"
	"voice-lending-go/internal/processor"
	"voice-lending-go/internal/reply"
	"voice-lending-go/internal/sarvam"
	"voice-lending-go/internal/speech"
	"voice-lending-go/internal/storage"
	"voice-lending-go/internal/transcription"
)

func main() {
	root := &cobra.Command{
		Use:           "api",
		Short:         "WhatsApp voice assistant with loan eligibility commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(transcribeCmd())
	root.AddCommand(sweepCmd())
	root.AddCommand(importLoansCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server (default)",
		RunE:  runServe,
	}
}

func newLogger(cfg config.Config) *logger.Logger {
	return logger.New(logger.Options{
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
		File:        cfg.LogFile,
	})
}

func newSarvam(cfg config.Config, log *logger.Logger) *sarvam.Client {
	return sarvam.New(sarvam.Config{
		BaseURL:  cfg.SarvamBaseURL,
		APIKey:   cfg.SarvamAPIKey,
		TTSModel: cfg.SarvamTTSModel,
		STTModel: cfg.SarvamSTTModel,
		Mock:     cfg.UseMockSpeech,
	}, log.Entry)
}

// helperCommand defaults to this binary's own transcribe subcommand.
func helperCommand(cfg config.Config) ([]string, error) {
	if len(cfg.TranscriberCmd) > 0 {
		return cfg.TranscriberCmd, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable for transcription helper: %w", err)
	}
	return []string{exe, "transcribe"}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	log.WithField("service", "voice-lending-go").Info("starting service")
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Error("invalid configuration")
		return err
	}

	store, err := artifact.New(cfg.TempDir, cfg.ArtifactMaxAge, log.Component("artifact"))
	if err != nil {
		return err
	}

	sv := newSarvam(cfg, log)
	model := llm.New(llm.Config{
		GatewayURL: cfg.LLMGatewayURL,
		APIKey:     cfg.LLMAPIKey,
		Model:      cfg.LLMModel,
		Mock:       cfg.UseMockLLM,
	}, log.Entry)
	norm := codec.NewNormalizer(codec.Options{FFmpegPath: cfg.FFmpegPath, Timeout: cfg.CodecTimeout}, log.Entry)
	log.WithFields(logrus.Fields{
		"audio_conversion": norm.Available(),
		"s3":               cfg.UseS3(),
		"languages":        locale.Tags(),
	}).Info("capabilities")
	if !norm.Available() {
		log.Warn("voice notes cannot be converted until ffmpeg is installed")
	}

	helperCmd, err := helperCommand(cfg)
	if err != nil {
		return err
	}
	helper, err := executor.New(helperCmd, cfg.TranscriberTimeout, nil)
	if err != nil {
		return err
	}
	resolver := transcription.NewResolver(helper, sv, log.Entry)

	db, err := loans.Open(cfg.LoansDBPath, log.Entry)
	if err != nil {
		log.WithError(err).Error("loan history database unavailable")
		return err
	}
	defer db.Close()
	advisor := loans.NewAdvisor(db, model, log.Entry)
	generator := reply.NewGenerator(model, sv, advisor, log.Entry)

	twilio := gateway.New(gateway.Config{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
	}, log.Entry)

	var publisher speech.Publisher
	if cfg.UseS3() {
		s3pub, err := storage.NewS3Publisher(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}, log.Entry)
		if err != nil {
			return err
		}
		publisher = s3pub
	} else {
		log.WithField("base_url", cfg.PublicBaseURL).Info("publishing audio from local /audio/")
		publisher = storage.NewLocalPublisher(cfg.PublicBaseURL, log.Entry)
	}

	responder := speech.NewResponder(sv, norm, publisher, twilio, store, log.Entry)
	proc := processor.New(twilio, norm, resolver, generator, responder, store, log.Entry)
	handler := api.NewHandler(proc, store, api.Options{
		AuthToken:         cfg.TwilioAuthToken,
		ValidateSignature: cfg.TwilioValidateSignature,
		PublicBaseURL:     cfg.PublicBaseURL,
		RequestTimeout:    cfg.RequestTimeout,
		AllowedOrigins:    cfg.CORSAllowedOrigins,
	}, log)

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server terminated")
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
