package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"moodspace/internal/mood"
	"moodspace/internal/pipeline"
)

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return fmt.Errorf("classify: %w", pipeline.ErrEmptyInput)
	}

	if p, _ := cmd.Flags().GetString("provider"); p != "" {
		cfg.Classifier.Provider = p
	}

	classifier, _, err := buildModels(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	state, err := classifier.Classify(cmd.Context(), text)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}
	state, err = mood.Normalize(state)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(state)
}
