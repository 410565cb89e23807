package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/markdave123-py/vectorsync/internal/models"
	"github.com/markdave123-py/vectorsync/internal/services"
)

// ProcessAction runs the ingestion pipeline for one file in the foreground.
// The process exits non-zero when the run ends in error.
func ProcessAction(ctx context.Context, cmd *cli.Command) error {
	ref := cmd.String("source")
	req := processRequest(cmd)

	a, err := NewApp(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer a.Close()

	slog.Info("processing file", "source", ref, "file", req.FilePath)
	result, err := a.Sources.Process(ctx, ref, req)
	if err != nil {
		return err
	}
	if err := writeJSON(Stdout, result); err != nil {
		return err
	}
	if result.Status == models.ResultError {
		return cli.Exit(result.Message, 1)
	}
	return nil
}

func processRequest(cmd *cli.Command) services.ProcessRequest {
	req := services.ProcessRequest{
		FilePath:        cmd.String("file"),
		ChunkSize:       cmd.Int("chunk-size"),
		SkipRecordCheck: cmd.Bool("skip-record-check"),
		Lenient:         cmd.Bool("lenient"),
		FileType:        cmd.String("type"),
	}
	if cmd.IsSet("chunk-overlap") {
		overlap := cmd.Int("chunk-overlap")
		req.ChunkOverlap = &overlap
	}
	return req
}

// ResolveAction prints how a source reference maps to a canonical id and
// collection.
func ResolveAction(ctx context.Context, cmd *cli.Command) error {
	a, err := NewApp(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Sources.Resolve(ctx, cmd.String("source"), cmd.Bool("lenient"))
	if err != nil {
		return fmt.Errorf("resolve %q: %w", cmd.String("source"), err)
	}
	return writeJSON(Stdout, res)
}

// StatusAction prints the stored status, progress and metrics of a source.
func StatusAction(ctx context.Context, cmd *cli.Command) error {
	a, err := NewApp(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer a.Close()

	view, err := a.Sources.Get(ctx, cmd.String("source"))
	if err != nil {
		return err
	}
	return writeJSON(Stdout, view)
}
