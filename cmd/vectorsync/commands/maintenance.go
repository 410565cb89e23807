package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"
)

// MigrateAction copies every point of one collection into another. Chunks
// are rekeyed to the target, so a later run over the target overwrites them
// and running it twice is harmless. The source collection is left in place.
func MigrateAction(ctx context.Context, cmd *cli.Command) error {
	from, to := cmd.String("from"), cmd.String("to")
	if from == to {
		return cli.Exit("--from and --to must differ", 2)
	}

	a, err := NewApp(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer a.Close()

	slog.Info("copying collection", "from", from, "to", to)
	n, err := a.Gateway.CopyCollection(ctx, from, to)
	if err != nil {
		return fmt.Errorf("copy %s -> %s after %d points: %w", from, to, n, err)
	}
	return writeJSON(Stdout, map[string]any{"from": from, "to": to, "copied": n})
}

// JanitorAction marks sources stuck in processing as failed.
func JanitorAction(ctx context.Context, cmd *cli.Command) error {
	a, err := NewApp(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer a.Close()

	olderThan := cmd.Duration("older-than")
	if olderThan <= 0 {
		olderThan = a.Config.Progress.StaleAfter
	}
	ids, err := a.Tracker.ReapStale(ctx, olderThan)
	if err != nil {
		return err
	}
	if ids == nil {
		ids = []int64{}
	}
	return writeJSON(Stdout, map[string]any{"olderThan": olderThan.String(), "failed": ids})
}
