package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/markdave123-py/vectorsync/internal/app"
	"github.com/markdave123-py/vectorsync/internal/config"
	"github.com/markdave123-py/vectorsync/internal/logger"
)

// Stdout is where command results are written as JSON.
var Stdout io.Writer = os.Stdout

// NewApp loads envFile (when it exists) and connects every backend the
// config names.
func NewApp(ctx context.Context, envFile string) (*app.App, error) {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return nil, err
	}
	logger.New(logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
	})

	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return a, nil
}

func loadConfig(envFile string) (*config.Config, error) {
	if envFile != "" {
		// already exported variables win over the file
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return config.LoadConfig(), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
