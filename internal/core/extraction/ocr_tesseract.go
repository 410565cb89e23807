//go:build ocr

package extraction

import (
	"context"

	"github.com/otiai10/gosseract/v2"
)

// OCRAvailable reports whether page recognition is compiled in.
const OCRAvailable = true

type tesseractRecognizer struct {
	languages []string
}

// NewRecognizer returns a Tesseract backed recognizer.
func NewRecognizer(languages ...string) Recognizer {
	return &tesseractRecognizer{languages: languages}
}

func (t *tesseractRecognizer) Recognize(_ context.Context, imagePath string) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if len(t.languages) > 0 {
		if err := client.SetLanguage(t.languages...); err != nil {
			return "", err
		}
	}
	if err := client.SetImage(imagePath); err != nil {
		return "", err
	}
	return client.Text()
}
