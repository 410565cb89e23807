package extraction

import (
	"log/slog"

	"github.com/markdave123-py/vectorsync/internal/models"
)

// NewDefaultCoordinator wires the fixed fallback chain of every file type.
func NewDefaultCoordinator(excel ExcelOptions, runner CommandRunner, recognizer Recognizer, logger *slog.Logger) *Coordinator {
	opts := []Option{}
	if logger != nil {
		opts = append(opts, WithLogger(logger))
	}
	c := NewCoordinator(opts...)
	c.Register(models.FileTypeCSV, NewCSVStrategy(), NewLenientCSVStrategy())
	c.Register(models.FileTypeExcel, NewExcelStrategy(excel), NewRawExcelStrategy(excel), DelimitedWorkbookStrategy{})
	c.Register(models.FileTypePDF, PDFLayoutStrategy{}, PDFTextStrategy{}, NewOCRStrategy(runner, recognizer))
	c.Register(models.FileTypeDOCX, DOCXStructuredStrategy{}, DOCXTextStrategy{})
	return c
}
