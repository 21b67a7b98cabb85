package port

import "context"

// TextExtractor runs OCR over raw document bytes and returns the full
// detected text.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, contentType string) (string, error)
}
