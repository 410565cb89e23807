//go:build !ocr

package extraction

// OCRAvailable reports whether page recognition is compiled in.
const OCRAvailable = false

// NewRecognizer returns nil without the ocr build tag; the OCR strategy then
// fails with ErrOCRUnavailable and the chain reports it.
func NewRecognizer(...string) Recognizer {
	return nil
}
