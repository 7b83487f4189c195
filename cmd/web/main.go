package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"vermithor/chat"
	"vermithor/completion"
	completiongrpc "vermithor/completion/grpc"
	"vermithor/completion/openrouter"
	"vermithor/config"
	"vermithor/logger"
	"vermithor/transcript"
	"vermithor/transcript/memory"
	transcriptredis "vermithor/transcript/redis"
	"vermithor/web"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "vermithor-web",
		Short: "Chat front-end streaming answers from OpenRouter",
		Long: `vermithor-web serves the chat page and relays answers fragment by fragment.

It talks to OpenRouter directly, or to a vermithor-completion server when
completion.address is set.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default ./configs/config.yaml or ./config.yaml)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Errorf("%s", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyLogLevel(); err != nil {
		return err
	}
	gin.SetMode(cfg.Server.Mode)

	handler, cleanup, err := newHandler(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	lis, err := net.Listen("tcp", cfg.ServerAddr())
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serve(ctx, server, lis, cfg.Server.ShutdownTimeout)
}

// newHandler wires completion, transcripts and the chat service into the web
// front-end. cleanup releases the completion client and the transcript store.
func newHandler(ctx context.Context, cfg *config.Config) (http.Handler, func(), error) {
	completionService, closeCompletion, err := newCompletionService(cfg)
	if err != nil {
		return nil, nil, err
	}

	store, err := newTranscriptStore(ctx, cfg)
	if err != nil {
		closeCompletion()
		return nil, nil, err
	}
	cleanup := func() {
		store.Close()
		closeCompletion()
	}

	catalog, err := chat.CatalogFromConfig(cfg.Chat)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("fail to build model catalog: %w", err)
	}

	srv, err := web.New(chat.NewService(completionService, store, catalog, cfg.Chat.Greeting), web.Options{
		Title:      cfg.Chat.Title,
		Icon:       cfg.Chat.Icon,
		CookieName: cfg.Server.CookieName,
		RateLimit:  cfg.Server.RateLimit,
		RateBurst:  cfg.Server.RateBurst,
		Profiling:  cfg.Server.Pprof,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("fail to init web server: %w", err)
	}
	return srv.Handler(), cleanup, nil
}

// serve runs server on lis until ctx is done, then gives in-flight answers
// shutdownTimeout to finish.
func serve(ctx context.Context, server *http.Server, lis net.Listener, shutdownTimeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Starting server at %s", lis.Addr())
		if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error running http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Infof("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newCompletionService(cfg *config.Config) (completion.Service, func(), error) {
	if cfg.Completion.Address == "" {
		logger.Infof("Streaming from %s", cfg.OpenRouter.Endpoint)
		return openrouter.NewFromConfig(cfg), func() {}, nil
	}

	client, err := completiongrpc.NewClient(cfg.Completion.Address)
	if err != nil {
		return nil, nil, fmt.Errorf("fail to init completion service: %w", err)
	}
	logger.Infof("Streaming through completion service at %s", cfg.Completion.Address)
	return client, func() { client.Close() }, nil
}

func newTranscriptStore(ctx context.Context, cfg *config.Config) (transcript.Store, error) {
	switch cfg.Transcript.Backend {
	case "redis":
		store, err := transcriptredis.New(ctx, cfg.Transcript.RedisAddr, cfg.Transcript.RedisPassword, cfg.Transcript.RedisDB, cfg.Transcript.TTL)
		if err != nil {
			return nil, fmt.Errorf("fail to init transcript store: %w", err)
		}
		logger.Infof("Keeping transcripts in redis at %s", cfg.Transcript.RedisAddr)
		return store, nil
	default:
		return memory.New(), nil
	}
}
