package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"medtrak/internal/ai"
	"medtrak/internal/annotator"
	"medtrak/internal/bootstrap"
	"medtrak/internal/config"
)

// annotator serves the transcription, captioning, follow-up and summary
// endpoints on top of an OpenAI-compatible model API.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config failed")
	}
	logger := bootstrap.NewLogger(cfg.Log, cfg.App.Name+"-annotator")

	service := annotator.NewService(
		ai.NewOpenAICompatibleClient(),
		ai.ChatConfig{
			BaseURL:   cfg.LLM.BaseURL,
			APIKey:    cfg.LLM.APIKey,
			Model:     cfg.LLM.Model,
			MaxTokens: cfg.LLM.MaxTokens,
		},
		ai.TranscriptionConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.TranscriptionModel,
		},
		logger,
	)

	server := &http.Server{
		Addr:              cfg.AnnotatorAddr(),
		Handler:           annotator.NewRouter(service, cfg.App.GinMode),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("annotator starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("annotator failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("annotator shutdown failed")
	}
}
