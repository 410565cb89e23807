package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/markdave123-py/vectorsync/cmd/vectorsync/commands"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "path of the environment file",
		Value: ".env",
	}
}

func sourceFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "source",
		Usage:    "source reference: numeric id, upload token or name",
		Required: true,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "vectorsync",
		Usage: "turn uploaded CSV, Excel, PDF and DOCX files into searchable vector collections",
		Commands: []*cli.Command{
			{
				Name:  "process",
				Usage: "extract, chunk, embed and store one file",
				Flags: []cli.Flag{
					envFlag(),
					sourceFlag(),
					&cli.StringFlag{
						Name:     "file",
						Usage:    "file path, local or s3://bucket/key",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "type",
						Usage: "declared file type (csv, excel, pdf, docx); defaults to the extension",
					},
					&cli.IntFlag{
						Name:  "chunk-size",
						Usage: "target characters per chunk",
					},
					&cli.IntFlag{
						Name:  "chunk-overlap",
						Usage: "elements repeated between consecutive document chunks",
					},
					&cli.BoolFlag{
						Name:  "skip-record-check",
						Usage: "process even if the source row does not exist",
					},
					&cli.BoolFlag{
						Name:  "lenient",
						Usage: "derive a pseudo id when the reference cannot be resolved",
					},
				},
				Action: commands.ProcessAction,
			},
			{
				Name:  "resolve",
				Usage: "show the canonical id and collection of a source reference",
				Flags: []cli.Flag{
					envFlag(),
					sourceFlag(),
					&cli.BoolFlag{
						Name:  "lenient",
						Usage: "derive a pseudo id when the reference cannot be resolved",
					},
				},
				Action: commands.ResolveAction,
			},
			{
				Name:   "status",
				Usage:  "show the status, progress and metrics of a source",
				Flags:  []cli.Flag{envFlag(), sourceFlag()},
				Action: commands.StatusAction,
			},
			{
				Name:  "search",
				Usage: "semantic search over a collection",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:     "collection",
						Usage:    "collection name or source id",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "query",
						Usage:    "search text",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "maximum hits; defaults to the query classification",
					},
					&cli.FloatFlag{
						Name:  "threshold",
						Usage: "minimum score",
					},
				},
				Action: commands.SearchAction,
			},
			{
				Name:  "migrate",
				Usage: "copy the points of one collection into another",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:     "from",
						Usage:    "source collection",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "to",
						Usage:    "target collection, created when missing",
						Required: true,
					},
				},
				Action: commands.MigrateAction,
			},
			{
				Name:  "janitor",
				Usage: "fail sources left in processing by a crashed run",
				Flags: []cli.Flag{
					envFlag(),
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "age after which a processing source counts as stale; defaults to PROCESSING_STALE_AFTER",
					},
				},
				Action: commands.JanitorAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
