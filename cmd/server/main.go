package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"moodspace/internal/config"
	"moodspace/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "moodspace",
	Short: "Mood check-in server",
	Long: `moodspace classifies free-text check-ins into one of six emotions and
drives the matching playlist, breathing exercises and guidance over a
WebSocket feed.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var classifyCmd = &cobra.Command{
	Use:   "classify [text]",
	Short: "Classify one check-in and print the mood state as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config.yaml if present)")
	classifyCmd.Flags().String("provider", "", "override classifier.provider (openai, gemini, keyword)")
	rootCmd.AddCommand(serveCmd, classifyCmd)
}

// setup loads and validates configuration and builds the logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
