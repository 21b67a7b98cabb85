package vision

import (
	"context"
	"fmt"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	"payables/internal/config"
)

// Extractor implements port.TextExtractor using Google Cloud Vision
// document text detection over inline content.
type Extractor struct {
	client *vision.ImageAnnotatorClient
}

// NewExtractor creates a Vision OCR extractor. Credentials come from the
// config (inline JSON, then file path) or fall back to application
// default credentials.
func NewExtractor(ctx context.Context, cfg *config.OCRConfig) (*Extractor, error) {
	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	} else if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating vision client: %w", err)
	}
	return &Extractor{client: client}, nil
}

// NewExtractorWithClient creates an extractor with an explicit client (for testing).
func NewExtractorWithClient(client *vision.ImageAnnotatorClient) *Extractor {
	return &Extractor{client: client}
}

// ExtractText runs document text detection over the raw bytes and returns
// the concatenated text of all pages.
func (e *Extractor) ExtractText(ctx context.Context, data []byte, contentType string) (string, error) {
	req := &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{
			{
				InputConfig: &visionpb.InputConfig{
					Content:  data,
					MimeType: contentType,
				},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := e.client.BatchAnnotateFiles(ctx, req)
	if err != nil {
		return "", fmt.Errorf("calling vision API: %w", err)
	}
	if len(resp.Responses) == 0 {
		return "", fmt.Errorf("empty response from vision API")
	}
	fileResp := resp.Responses[0]
	if fileResp.Error != nil {
		return "", fmt.Errorf("vision API error: %s", fileResp.Error.Message)
	}

	var text strings.Builder
	for pageIdx, page := range fileResp.Responses {
		if page.Error != nil {
			return "", fmt.Errorf("processing page %d: %s", pageIdx+1, page.Error.Message)
		}
		if page.FullTextAnnotation == nil {
			continue
		}
		if pageIdx > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(page.FullTextAnnotation.Text)
	}

	out := text.String()
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("document produced no text")
	}
	return out, nil
}

// Close closes the underlying Vision client.
func (e *Extractor) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}
