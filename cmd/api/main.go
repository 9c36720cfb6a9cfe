package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mkase/streamlens/backend/internal/audio"
	"github.com/mkase/streamlens/backend/internal/config"
	"github.com/mkase/streamlens/backend/internal/handler"
	"github.com/mkase/streamlens/backend/internal/hub"
	"github.com/mkase/streamlens/backend/internal/metrics"
	"github.com/mkase/streamlens/backend/internal/session"
	"github.com/mkase/streamlens/backend/internal/store"
	"github.com/mkase/streamlens/backend/internal/transcribe"
	"github.com/mkase/streamlens/backend/internal/translate"
	"github.com/mkase/streamlens/backend/internal/twitch"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatalf("failed to open database %s: %v", cfg.Store.Path, err)
	}
	defer st.Close()

	// Translation is optional; chat mirroring still works without it.
	var translator session.Translator
	if cfg.AI.Enabled() {
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			log.Printf("warning: failed to initialize translation model: %v", err)
			log.Println("continuing without translation")
		} else {
			translator = translate.New(translate.NewModelGenerator(chatModel), st)
			log.Println("translation model initialized successfully")
		}
	} else {
		log.Println("Ark credentials not configured, skipping translation setup")
	}

	// Transcription needs a speech-to-text key; without it the session
	// runs chat-only.
	var transcriber session.Transcriber
	if cfg.STT.Enabled() {
		transcriber = transcribe.NewClient(cfg.STT.APIKey, cfg.STT.Model)
		log.Println("speech-to-text client initialized successfully")
	} else {
		log.Println("OPENAI_API_KEY not configured, skipping transcription setup")
	}

	h := hub.New()
	m := metrics.New(func() float64 { return float64(h.ClientCount()) })

	framerCfg := audio.DefaultFramerConfig()
	framerCfg.RMSThreshold = cfg.Audio.RMSThreshold
	framerCfg.MinSpeech = cfg.Audio.MinSpeech
	framerCfg.TrailingSilence = cfg.Audio.TrailingSilence
	framerCfg.MaxUtterance = cfg.Audio.MaxUtterance
	framerCfg.MinUtterance = cfg.Audio.MinUtterance

	manager := session.NewManager(session.Deps{
		Store:       st,
		Hub:         h,
		Translator:  translator,
		Transcriber: transcriber,
		NewChatClient: func(channel string, onMessage session.MessageFunc) session.ChatClient {
			return twitch.NewClient(channel, cfg.Twitch.BotName, cfg.Twitch.Token, twitch.MessageHandler(onMessage))
		},
		NewCapture: func(channel string) (io.ReadCloser, error) {
			return audio.NewCapture(channel)
		},
		FramerConfig: framerCfg,
		Metrics:      m,
	})

	h.SetHandlers(
		func(c *hub.Client) { manager.HandleConnect(c) },
		func(c *hub.Client, event string, data json.RawMessage) { manager.HandleCommand(c, event, data) },
	)

	router := handler.NewRouter(h, manager, st)

	startServer(ctx, cfg.Server, router)

	// Drain any open utterance before the process exits.
	manager.Leave(context.Background())
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("StreamLens backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
