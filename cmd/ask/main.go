package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"vermithor/chat"
	"vermithor/completion"
	completiongrpc "vermithor/completion/grpc"
	"vermithor/completion/openrouter"
	"vermithor/config"
)

var (
	configPath string
	modelFlag  string
	listFlag   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vermithor-ask [prompt]",
		Short: "Ask a single question and stream the answer to the terminal",
		Long: `vermithor-ask sends one prompt and prints the answer as it arrives.

Examples:
  vermithor-ask "What is Go?"
  vermithor-ask -m "Llama 3.1 8B (Free)" "Explain channels"
  echo "Summarize this" | vermithor-ask
  vermithor-ask --list`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default ./configs/config.yaml or ./config.yaml)")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Model id or display name")
	rootCmd.Flags().BoolVarP(&listFlag, "list", "l", false, "List available models and exit")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, completion.UserMessage(err))
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyLogLevel(); err != nil {
		return err
	}

	catalog, err := chat.CatalogFromConfig(cfg.Chat)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if listFlag {
		for _, m := range catalog.All() {
			marker := " "
			if m.ID == catalog.Default().ID {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %-24s %s\n", marker, m.Name, color.CyanString(m.ID))
		}
		return nil
	}

	prompt, err := readPrompt(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	if prompt == "" {
		return cmd.Help()
	}

	model := catalog.Default()
	if modelFlag != "" {
		m, ok := catalog.Resolve(modelFlag)
		if !ok {
			return fmt.Errorf("%w: %s", chat.ErrUnknownModel, modelFlag)
		}
		model = m
	}

	var service completion.Service
	if cfg.Completion.Address != "" {
		client, err := completiongrpc.NewClient(cfg.Completion.Address)
		if err != nil {
			return err
		}
		defer client.Close()
		service = client
	} else {
		service = openrouter.NewFromConfig(cfg)
	}

	stream, err := service.Stream(cmd.Context(), &completion.CompletionRequest{
		Model:    model.ID,
		Messages: []completion.Message{{Role: completion.RoleUser, Content: prompt}},
	})
	if err != nil {
		return err
	}

	_, err = completion.Collect(stream, func(fragment string) error {
		_, werr := io.WriteString(out, fragment)
		return werr
	})
	fmt.Fprintln(out)
	return err
}

// readPrompt takes the prompt from the argument, or from piped stdin
func readPrompt(in io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return strings.TrimSpace(args[0]), nil
	}
	if f, ok := in.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
			return "", nil
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
