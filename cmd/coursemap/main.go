// Package main provides the coursemap CLI for ingesting lectures, building
// topic maps and asking questions.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bull/coursemap/internal/app"
	"github.com/bull/coursemap/internal/config"
	"github.com/bull/coursemap/internal/course"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "coursemap",
	Short: "Course lecture topic maps and cited answers",
	Long: `CLI tool for ingesting course lectures, detecting topics and their
prerequisite order, and answering questions from lecture material.

Configuration is read from coursemap.yaml (or --config / COURSEMAP_CONFIG),
then .env, then environment variables:
  COURSEMAP_PROVIDER  openai or ollama
  OPENAI_API_KEY      OpenAI API key (required for openai)
  COURSEMAP_INDEX     memory, qdrant or chromem
  QDRANT_HOST         Qdrant hostname (default: localhost)
  QDRANT_PORT         Qdrant gRPC port (default: 6334)
  GITHUB_TOKEN        GitHub token for sync (optional)`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to coursemap.yaml")
	rootCmd.AddCommand(ingestCmd, syncCmd, detectCmd, askCmd, summaryCmd, topicsCmd, sessionsCmd, deleteSessionCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error (%s): %v\n", course.Class(err), err)
		os.Exit(exitCode(err))
	}
}

// exitCode separates bad input (2) from everything else (1).
func exitCode(err error) int {
	if errors.Is(err, course.ErrInput) {
		return 2
	}
	return 1
}

// withApp loads configuration, builds the application and closes it after fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)

	ctx := cmd.Context()
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))
	return fn(ctx, a)
}
