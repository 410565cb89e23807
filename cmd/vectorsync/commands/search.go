package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/markdave123-py/vectorsync/internal/services"
)

// SearchAction embeds the query and prints the best matching chunks.
func SearchAction(ctx context.Context, cmd *cli.Command) error {
	a, err := NewApp(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.Sources.Search(ctx, searchRequest(cmd))
	if err != nil {
		return err
	}
	return writeJSON(Stdout, resp)
}

func searchRequest(cmd *cli.Command) services.SearchRequest {
	req := services.SearchRequest{
		Collection: cmd.String("collection"),
		Query:      cmd.String("query"),
		Limit:      cmd.Int("limit"),
	}
	if cmd.IsSet("threshold") {
		t := float32(cmd.Float("threshold"))
		req.Threshold = &t
	}
	return req
}
