package domain

// FileType represents the allowed file types for upload.
type FileType string

const (
	FileTypePDF FileType = "pdf"
	FileTypeJPG FileType = "jpg"
	FileTypePNG FileType = "png"
)

// AllowedFileTypes maps FileType to its MIME content type.
var AllowedFileTypes = map[FileType]string{
	FileTypePDF: "application/pdf",
	FileTypeJPG: "image/jpeg",
	FileTypePNG: "image/png",
}

// AllowedContentTypes maps MIME content types back to FileType.
var AllowedContentTypes = map[string]FileType{
	"application/pdf": FileTypePDF,
	"image/jpeg":      FileTypeJPG,
	"image/png":       FileTypePNG,
}

// AllowedExtensions maps file extensions (without dot) to FileType.
var AllowedExtensions = map[string]FileType{
	"pdf":  FileTypePDF,
	"jpg":  FileTypeJPG,
	"jpeg": FileTypeJPG,
	"png":  FileTypePNG,
}

// FileStatus is the coarse lifecycle of an uploaded file record.
type FileStatus string

const (
	FileStatusQueued     FileStatus = "Queued"
	FileStatusProcessing FileStatus = "Processing"
	FileStatusProcessed  FileStatus = "Processed"
	FileStatusAttention  FileStatus = "Attention"
)

// ProcessingStage is the fine-grained pipeline token stored alongside FileStatus.
// The stages are ordered; StageError is absorbing.
type ProcessingStage string

const (
	StageUploadReceived    ProcessingStage = "upload-received"
	StageDocumentDetection ProcessingStage = "document-detection"
	StageParsing           ProcessingStage = "parsing"
	StageInvoiceLinking    ProcessingStage = "invoice-linking"
	StagePOMatching        ProcessingStage = "po-matching"
	StageMatched           ProcessingStage = "matched"
	StageError             ProcessingStage = "ERROR"
)

// InvoiceStatus is the lifecycle of an extracted invoice record.
type InvoiceStatus string

const (
	InvoiceStatusPending  InvoiceStatus = "Pending"
	InvoiceStatusMatched  InvoiceStatus = "Matched"
	InvoiceStatusQueued   InvoiceStatus = "Queued"
	InvoiceStatusExported InvoiceStatus = "Exported"
	InvoiceStatusError    InvoiceStatus = "Error"
)

// UIStatus is the single display status derived for a file from its own
// state and the state of its linked invoices. It is never stored.
type UIStatus string

const (
	UIStatusUploading      UIStatus = "uploading"
	UIStatusQueued         UIStatus = "queued"
	UIStatusProcessing     UIStatus = "processing"
	UIStatusConnecting     UIStatus = "connecting"
	UIStatusSuccess        UIStatus = "success"
	UIStatusSuccessCaveats UIStatus = "success-with-caveats"
	UIStatusExported       UIStatus = "exported"
	UIStatusError          UIStatus = "error"
	UIStatusDuplicate      UIStatus = "duplicate"
)

// Error codes stored on File/Invoice records when something goes wrong.
const (
	ErrCodeDuplicate     = "DUPLICATE"
	ErrCodeOCRFailed     = "OCR_FAILED"
	ErrCodeExtractFailed = "EXTRACT_FAILED"
	ErrCodeLinkFailed    = "LINK_FAILED"
	ErrCodeMatchFailed   = "MATCH_FAILED"
	ErrCodeMatchRefused  = "MATCH_REFUSED"
	ErrCodeMatchParse    = "MATCH_PARSE"
	ErrCodeStoreFailed   = "STORE_FAILED"
)
