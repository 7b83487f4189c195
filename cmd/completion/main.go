package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	completiongrpc "vermithor/completion/grpc"
	"vermithor/completion/openrouter"
	"vermithor/config"
	"vermithor/logger"
)

var (
	configPath string
	servePort  int
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "vermithor-completion",
		Short:        "gRPC completion server streaming answers from OpenRouter",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default ./configs/config.yaml or ./config.yaml)")
	rootCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides completion.serve_port)")

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

	port := cfg.Completion.ServePort
	if servePort != 0 {
		port = servePort
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	return serve(ctx, cfg, lis)
}

// serve exposes the OpenRouter client over gRPC on lis until ctx is done
func serve(ctx context.Context, cfg *config.Config, lis net.Listener) error {
	s := grpc.NewServer()
	completiongrpc.Register(s, openrouter.NewFromConfig(cfg))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Completion gRPC server listening on %s", lis.Addr())
		if err := s.Serve(lis); err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Infof("Stopping completion server")
		s.GracefulStop()
		return nil
	})
	return g.Wait()
}
