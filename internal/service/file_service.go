package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"payables/internal/config"
	"payables/internal/domain"
	"payables/internal/matching"
	"payables/internal/poller"
	"payables/internal/port"
)

// FileUploadInput is the DTO for file upload requests.
type FileUploadInput struct {
	File   multipart.File
	Header *multipart.FileHeader
}

// UploadResult reports the created or, for duplicate content, the
// pre-existing file record.
type UploadResult struct {
	File      *domain.File `json:"file"`
	Duplicate bool         `json:"duplicate"`
}

// FileService defines the file intake and pipeline contract.
type FileService interface {
	Upload(ctx context.Context, input FileUploadInput) (*UploadResult, error)
	GetByID(ctx context.Context, fileID string) (*domain.File, error)
	List(ctx context.Context, limit int) ([]domain.File, error)
	ListInvoices(ctx context.Context, fileID string) ([]domain.Invoice, error)
	DownloadURL(ctx context.Context, fileID string) (string, error)
	Clear(ctx context.Context, fileID string) error
	Reprocess(ctx context.Context, fileID string) (*domain.File, error)
	ReconcileFile(ctx context.Context, fileID string) error
}

type fileService struct {
	store     port.RecordStore
	storage   port.ObjectStorage
	ocr       port.TextExtractor
	extractor port.StructuredExtractor
	matcher   matching.Service
	alerts    port.AlertSender
	registry  *poller.Registry
	cfg       *config.Config

	mu       sync.Mutex
	inFlight map[string]context.CancelFunc
}

// NewFileService creates a new FileService implementation.
func NewFileService(
	store port.RecordStore,
	storage port.ObjectStorage,
	ocr port.TextExtractor,
	extractor port.StructuredExtractor,
	matcher matching.Service,
	alerts port.AlertSender,
	registry *poller.Registry,
	cfg *config.Config,
) FileService {
	return &fileService{
		store:     store,
		storage:   storage,
		ocr:       ocr,
		extractor: extractor,
		matcher:   matcher,
		alerts:    alerts,
		registry:  registry,
		cfg:       cfg,
		inFlight:  make(map[string]context.CancelFunc),
	}
}

func (s *fileService) Upload(ctx context.Context, input FileUploadInput) (*UploadResult, error) {
	// Validate file extension
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(input.Header.Filename), "."))
	fileType, ok := domain.AllowedExtensions[ext]
	if !ok {
		return nil, domain.ErrUnsupportedFileType
	}

	// Validate file size
	maxBytes := s.cfg.S3.MaxFileSizeMB * 1024 * 1024
	if input.Header.Size > maxBytes {
		return nil, domain.ErrFileTooLarge
	}

	data, err := io.ReadAll(input.File)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	// Magic-byte content type detection
	sniffLen := len(data)
	if sniffLen > 512 {
		sniffLen = 512
	}
	detectedType := http.DetectContentType(data[:sniffLen])
	if _, validContent := domain.AllowedContentTypes[detectedType]; !validContent {
		return nil, domain.ErrUnsupportedFileType
	}
	contentType := domain.AllowedFileTypes[fileType]

	// Content-hash dedupe: identical bytes already tracked (and not
	// cleared) short-circuit to the existing record.
	hash := sha256.Sum256(data)
	contentHash := hex.EncodeToString(hash[:])

	existing, err := s.store.List(ctx, domain.TableFiles, port.Query{
		Conditions: []port.Condition{
			{Field: domain.FieldContentHash, Op: port.OpEqual, Value: contentHash},
			{Field: domain.FieldCleared, Op: port.OpNotTrue},
		},
		MaxRecords: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("checking for duplicate upload: %w", err)
	}
	if len(existing) > 0 {
		dup := domain.FileFromFields(existing[0].ID, existing[0].Fields)
		dup.CreatedTime = existing[0].CreatedTime
		// The duplicate marker is derived on the response only; the
		// existing record is left untouched.
		dup.ErrorCode = domain.ErrCodeDuplicate
		dup.ErrorDescription = fmt.Sprintf("content matches existing file %s", dup.ID)
		log.Printf("fileService.Upload: duplicate content for %s, returning existing file %s", input.Header.Filename, dup.ID)
		return &UploadResult{File: dup, Duplicate: true}, nil
	}

	storageKey := fmt.Sprintf("files/%s/%s", uuid.NewString(), input.Header.Filename)

	log.Printf("fileService.Upload: uploading file %s (%s, %d bytes)",
		input.Header.Filename, contentType, input.Header.Size)

	created, err := s.store.Create(ctx, domain.TableFiles, []map[string]any{{
		domain.FieldFileName:         input.Header.Filename,
		domain.FieldContentHash:      contentHash,
		domain.FieldFileStatus:       string(domain.FileStatusQueued),
		domain.FieldProcessingStatus: string(domain.StageUploadReceived),
		domain.FieldStorageKey:       storageKey,
		domain.FieldCleared:          false,
	}})
	if err != nil {
		return nil, fmt.Errorf("creating file record: %w", err)
	}
	file := domain.FileFromFields(created[0].ID, created[0].Fields)
	file.CreatedTime = created[0].CreatedTime

	_, err = s.storage.Upload(ctx, port.UploadInput{
		Bucket:      s.cfg.S3.Bucket,
		Key:         storageKey,
		Body:        strings.NewReader(string(data)),
		ContentType: contentType,
		Size:        int64(len(data)),
	})
	if err != nil {
		log.Printf("fileService.Upload: S3 upload failed for file %s: %v", file.ID, err)
		s.failFile(ctx, file.ID, file.Name, domain.ErrCodeStoreFailed, fmt.Sprintf("uploading to storage: %v", err))
		return nil, domain.ErrUploadFailed
	}

	// Launch the background pipeline
	go s.processInBackground(file.ID, contentType)

	return &UploadResult{File: file}, nil
}

func (s *fileService) GetByID(ctx context.Context, fileID string) (*domain.File, error) {
	rec, err := s.store.Get(ctx, domain.TableFiles, fileID)
	if err != nil {
		return nil, err
	}
	file := domain.FileFromFields(rec.ID, rec.Fields)
	file.CreatedTime = rec.CreatedTime
	return file, nil
}

func (s *fileService) List(ctx context.Context, limit int) ([]domain.File, error) {
	records, err := s.store.List(ctx, domain.TableFiles, port.Query{
		Conditions: []port.Condition{
			{Field: domain.FieldCleared, Op: port.OpNotTrue},
		},
		Sort:       []port.Sort{{Field: domain.FieldFileName}},
		MaxRecords: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	files := make([]domain.File, 0, len(records))
	for _, rec := range records {
		file := domain.FileFromFields(rec.ID, rec.Fields)
		file.CreatedTime = rec.CreatedTime
		files = append(files, *file)
	}
	return files, nil
}

func (s *fileService) ListInvoices(ctx context.Context, fileID string) ([]domain.Invoice, error) {
	records, err := s.store.List(ctx, domain.TableInvoices, port.Query{
		Conditions: []port.Condition{
			{Field: domain.FieldInvoiceFile, Op: port.OpContains, Value: fileID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("listing invoices for file %s: %w", fileID, err)
	}
	invoices := make([]domain.Invoice, 0, len(records))
	for _, rec := range records {
		inv := domain.InvoiceFromFields(rec.ID, rec.Fields)
		inv.CreatedTime = rec.CreatedTime
		invoices = append(invoices, *inv)
	}
	return invoices, nil
}

// DownloadURL returns a presigned link to the file's stored object.
func (s *fileService) DownloadURL(ctx context.Context, fileID string) (string, error) {
	file, err := s.GetByID(ctx, fileID)
	if err != nil {
		return "", err
	}
	if file.StorageKey == "" {
		return "", fmt.Errorf("file %s has no stored object", fileID)
	}
	url, err := s.storage.GetPresignedURL(ctx, s.cfg.S3.Bucket, file.StorageKey, s.cfg.S3.PresignExpiry)
	if err != nil {
		return "", fmt.Errorf("presigning download for file %s: %w", fileID, err)
	}
	return url, nil
}

// Clear soft-deletes the file: the record is flagged, any in-flight
// pipeline run is cancelled and its poller stopped. The stored object
// is removed best-effort; the record stays cleared even if the object
// delete fails.
func (s *fileService) Clear(ctx context.Context, fileID string) error {
	log.Printf("fileService.Clear: clearing file %s", fileID)

	file, err := s.GetByID(ctx, fileID)
	if err != nil {
		return err
	}

	s.cancelInFlight(fileID)
	s.registry.Stop(fileID)

	_, err = s.store.Update(ctx, domain.TableFiles, []port.RecordPatch{{
		ID:     fileID,
		Fields: map[string]any{domain.FieldCleared: true},
	}})
	if err != nil {
		return fmt.Errorf("clearing file %s: %w", fileID, err)
	}

	if file.StorageKey != "" {
		if derr := s.storage.Delete(ctx, s.cfg.S3.Bucket, file.StorageKey); derr != nil {
			log.Printf("fileService.Clear: failed to delete object %s for file %s: %v", file.StorageKey, fileID, derr)
		}
	}
	return nil
}

// Reprocess resets an errored file and relaunches the pipeline. Existing
// invoice links are kept; the pipeline and match service dedupe against
// them.
func (s *fileService) Reprocess(ctx context.Context, fileID string) (*domain.File, error) {
	rec, err := s.store.Get(ctx, domain.TableFiles, fileID)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.Update(ctx, domain.TableFiles, []port.RecordPatch{{
		ID: fileID,
		Fields: map[string]any{
			domain.FieldFileStatus:       string(domain.FileStatusQueued),
			domain.FieldProcessingStatus: string(domain.StageUploadReceived),
			domain.FieldErrorCode:        "",
			domain.FieldErrorDescription: "",
		},
	}})
	if err != nil {
		return nil, fmt.Errorf("resetting file %s: %w", fileID, err)
	}

	file := domain.FileFromFields(updated[0].ID, updated[0].Fields)
	file.CreatedTime = rec.CreatedTime

	contentType := contentTypeForName(file.Name)
	go s.processInBackground(fileID, contentType)

	log.Printf("fileService.Reprocess: file %s reset and requeued", fileID)
	return file, nil
}

func (s *fileService) trackInFlight(fileID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight[fileID] = cancel
}

func (s *fileService) untrackInFlight(fileID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, fileID)
}

func (s *fileService) cancelInFlight(fileID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.inFlight[fileID]; ok {
		cancel()
		delete(s.inFlight, fileID)
	}
}

func contentTypeForName(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if fileType, ok := domain.AllowedExtensions[ext]; ok {
		return domain.AllowedFileTypes[fileType]
	}
	return "application/pdf"
}
