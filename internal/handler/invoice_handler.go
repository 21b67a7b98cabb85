package handler

import (
	"github.com/gin-gonic/gin"

	"payables/internal/service"
)

// InvoiceHandler handles invoice review and export endpoints.
type InvoiceHandler struct {
	invoiceService service.InvoiceService
	statusService  service.StatusService
	exportService  service.ExportService
}

// NewInvoiceHandler creates a new InvoiceHandler.
func NewInvoiceHandler(
	invoiceService service.InvoiceService,
	statusService service.StatusService,
	exportService service.ExportService,
) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
		statusService:  statusService,
		exportService:  exportService,
	}
}

// GetByID handles GET /api/v1/invoices/:id and returns the invoice with
// its derived issues and analysis summary.
func (h *InvoiceHandler) GetByID(c *gin.Context) {
	view, err := h.statusService.BuildInvoiceView(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, view)
}

// Queue handles POST /api/v1/invoices/:id/queue
func (h *InvoiceHandler) Queue(c *gin.Context) {
	inv, err := h.invoiceService.QueueForExport(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, inv)
}

// Retry handles POST /api/v1/invoices/:id/retry
func (h *InvoiceHandler) Retry(c *gin.Context) {
	inv, err := h.invoiceService.RetryMatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, inv)
}

// Export handles POST /api/v1/exports and renders every queued invoice
// into a workbook.
func (h *InvoiceHandler) Export(c *gin.Context) {
	result, err := h.exportService.ExportQueued(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, result)
}
