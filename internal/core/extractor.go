package core

import (
	"context"

	"github.com/markdave123-py/vectorsync/internal/models"
)

// ContentExtractor turns a local file into canonical content.
type ContentExtractor interface {
	Extract(ctx context.Context, path string, fileType models.FileType) (*models.Content, error)
}
