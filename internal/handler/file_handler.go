package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"payables/internal/poller"
	"payables/internal/service"
)

// FileHandler handles file upload, status and lifecycle endpoints.
type FileHandler struct {
	fileService   service.FileService
	statusService service.StatusService
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(fileService service.FileService, statusService service.StatusService) *FileHandler {
	return &FileHandler{fileService: fileService, statusService: statusService}
}

// Upload handles POST /api/v1/files/upload
func (h *FileHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "file field is required")
		return
	}
	defer func() { _ = file.Close() }()

	result, err := h.fileService.Upload(c.Request.Context(), service.FileUploadInput{
		File:   file,
		Header: header,
	})
	if err != nil {
		HandleError(c, err)
		return
	}

	if result.Duplicate {
		c.JSON(http.StatusOK, APIResponse{Success: true, Data: result})
		return
	}
	RespondCreated(c, result)
}

// List handles GET /api/v1/files
func (h *FileHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	files, err := h.fileService.List(c.Request.Context(), limit)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, files)
}

// GetByID handles GET /api/v1/files/:id and returns the full display
// view: the record, derived status/progress and decorated invoices.
func (h *FileHandler) GetByID(c *gin.Context) {
	view, err := h.statusService.BuildFileView(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, view)
}

// Download handles GET /api/v1/files/:id/download and returns a
// presigned link to the original uploaded document.
func (h *FileHandler) Download(c *gin.Context) {
	url, err := h.fileService.DownloadURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, gin.H{"url": url})
}

// StreamStatus handles GET /api/v1/files/:id/status/stream as a
// server-sent event stream. Each poll tick emits one snapshot; the
// stream closes after the terminal snapshot or on client disconnect.
func (h *FileHandler) StreamStatus(c *gin.Context) {
	fileID := c.Param("id")

	snapshots := make(chan poller.Snapshot, 8)
	started := h.statusService.WatchFile(fileID, func(snap poller.Snapshot) {
		select {
		case snapshots <- snap:
		default:
		}
	})
	if !started {
		RespondError(c, http.StatusConflict, "ALREADY_WATCHING", "a status stream for this file is already open")
		return
	}
	defer h.statusService.Unwatch(fileID)

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case snap := <-snapshots:
			c.SSEvent("status", snap)
			return !snap.Terminal()
		}
	})
}

// Clear handles DELETE /api/v1/files/:id
func (h *FileHandler) Clear(c *gin.Context) {
	if err := h.fileService.Clear(c.Request.Context(), c.Param("id")); err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, gin.H{"message": "file cleared"})
}

// Reprocess handles POST /api/v1/files/:id/reprocess
func (h *FileHandler) Reprocess(c *gin.Context) {
	file, err := h.fileService.Reprocess(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, file)
}
