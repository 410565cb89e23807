package extraction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/markdave123-py/vectorsync/internal/models"
)

// ErrOCRUnavailable is returned when the binary was built without OCR support.
var ErrOCRUnavailable = errors.New("ocr support not compiled in (build with -tags ocr)")

// CommandRunner runs an external program and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", name, err, out)
	}
	return out, nil
}

// Recognizer reads the text of one page image.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// OCRStrategy rasterizes each page with pdftoppm and recognizes it page by page.
type OCRStrategy struct {
	runner     CommandRunner
	recognizer Recognizer
	dpi        int
}

func NewOCRStrategy(runner CommandRunner, recognizer Recognizer) *OCRStrategy {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &OCRStrategy{runner: runner, recognizer: recognizer, dpi: 300}
}

func (s *OCRStrategy) Name() string { return "pdf.ocr" }

func (s *OCRStrategy) Extract(ctx context.Context, path string) (*models.Content, error) {
	if s.recognizer == nil {
		return nil, ErrOCRUnavailable
	}
	dir, err := os.MkdirTemp("", "vectorsync-ocr-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	if _, err := s.runner.Run(ctx, "pdftoppm", "-r", strconv.Itoa(s.dpi), "-png", path, prefix); err != nil {
		return nil, fmt.Errorf("rasterize: %w", err)
	}
	images, err := filepath.Glob(prefix + "*.png")
	if err != nil {
		return nil, err
	}
	// pdftoppm zero-pads page numbers, so lexical order is page order.
	sort.Strings(images)

	pages := make([]string, 0, len(images))
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := s.recognizer.Recognize(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("recognize page %d: %w", i+1, err)
		}
		pages = append(pages, text)
	}
	return &models.Content{Elements: pagedParagraphs(pages)}, nil
}
