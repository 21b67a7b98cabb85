package port

import (
	"context"
	"encoding/json"
)

// ExtractInput is one structured-extraction request: a prompt plus the
// JSON schema the response must satisfy. Strict asks the provider to
// enforce the schema server-side.
type ExtractInput struct {
	Prompt     string
	SchemaName string
	Schema     json.RawMessage
	Strict     bool
}

// ExtractOutput carries the schema-conforming JSON content returned by
// the provider.
type ExtractOutput struct {
	Content json.RawMessage
	Model   string
}

// StructuredExtractor sends a prompt to an LLM and returns JSON that
// conforms to the supplied schema. Failure modes are distinguished by
// typed errors in internal/extract: refusal, schema violation, rate
// limit, transport.
type StructuredExtractor interface {
	Extract(ctx context.Context, input ExtractInput) (*ExtractOutput, error)
}
