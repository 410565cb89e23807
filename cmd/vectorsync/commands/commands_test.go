package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/markdave123-py/vectorsync/internal/services"
)

func runFlags(t *testing.T, flags []cli.Flag, args []string, action cli.ActionFunc) {
	t.Helper()
	cmd := &cli.Command{Name: "test", Flags: flags, Action: action}
	require.NoError(t, cmd.Run(context.Background(), append([]string{"test"}, args...)))
}

func processFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "file"},
		&cli.StringFlag{Name: "type"},
		&cli.IntFlag{Name: "chunk-size"},
		&cli.IntFlag{Name: "chunk-overlap"},
		&cli.BoolFlag{Name: "skip-record-check"},
		&cli.BoolFlag{Name: "lenient"},
	}
}

func TestProcessRequestFromFlags(t *testing.T) {
	var got services.ProcessRequest
	runFlags(t, processFlags(), []string{
		"--file", "s3://uploads/a.csv", "--chunk-size", "800", "--chunk-overlap", "0", "--lenient",
	}, func(_ context.Context, cmd *cli.Command) error {
		got = processRequest(cmd)
		return nil
	})

	assert.Equal(t, "s3://uploads/a.csv", got.FilePath)
	assert.Equal(t, 800, got.ChunkSize)
	require.NotNil(t, got.ChunkOverlap)
	assert.Equal(t, 0, *got.ChunkOverlap)
	assert.True(t, got.Lenient)
	assert.False(t, got.SkipRecordCheck)
}

func TestProcessRequestLeavesOverlapUnset(t *testing.T) {
	var got services.ProcessRequest
	runFlags(t, processFlags(), []string{"--file", "a.pdf", "--type", "pdf"},
		func(_ context.Context, cmd *cli.Command) error {
			got = processRequest(cmd)
			return nil
		})

	assert.Nil(t, got.ChunkOverlap)
	assert.Equal(t, "pdf", got.FileType)
	assert.Zero(t, got.ChunkSize)
}

func TestSearchRequestFromFlags(t *testing.T) {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "collection"},
		&cli.StringFlag{Name: "query"},
		&cli.IntFlag{Name: "limit"},
		&cli.FloatFlag{Name: "threshold"},
	}

	var got services.SearchRequest
	runFlags(t, flags, []string{"--collection", "datasource_42", "--query", "total revenue", "--threshold", "0.5"},
		func(_ context.Context, cmd *cli.Command) error {
			got = searchRequest(cmd)
			return nil
		})

	assert.Equal(t, "datasource_42", got.Collection)
	assert.Equal(t, "total revenue", got.Query)
	assert.Zero(t, got.Limit)
	require.NotNil(t, got.Threshold)
	assert.InDelta(t, 0.5, *got.Threshold, 1e-6)
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	require.NoError(t, os.Unsetenv("EMBED_DIM"))
	t.Cleanup(func() { _ = os.Unsetenv("EMBED_DIM") })

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("EMBED_DIM=384\n"), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
}

func TestLoadConfigMissingEnvFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.env"))
	assert.NoError(t, err)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, map[string]any{"copied": 3}))
	assert.JSONEq(t, `{"copied":3}`, buf.String())
}
