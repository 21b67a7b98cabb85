// Package status derives the single display status and progress value for
// a file from its own stored state and the state of its linked invoices.
// Everything here is pure; all I/O lives with the callers.
package status

import "payables/internal/domain"

// Progress maps a processing stage to a 0-100 value. StageError reports
// 100 because the pipeline will not advance further.
func Progress(stage domain.ProcessingStage) int {
	switch stage {
	case domain.StageUploadReceived:
		return 10
	case domain.StageDocumentDetection:
		return 25
	case domain.StageParsing:
		return 45
	case domain.StageInvoiceLinking:
		return 65
	case domain.StagePOMatching:
		return 85
	case domain.StageMatched, domain.StageError:
		return 100
	}
	return 0
}

// HasCaveats reports whether a matched invoice carries warnings or a
// nonzero balance, the "matched-with-caveats" review state.
func HasCaveats(inv *domain.Invoice) bool {
	if inv.Status != domain.InvoiceStatusMatched {
		return false
	}
	return inv.Balance != 0 || len(inv.WarningsJSON) > 2
}

// MapFileStatus reduces a file plus its linked invoices to one UIStatus.
// Precedence is fixed: duplicate, then any invoice error (or the file's
// own error state), then all-exported, then caveats, then the file's raw
// stage. Exported wins only when every linked invoice is exported.
func MapFileStatus(file *domain.File, invoices []domain.Invoice) domain.UIStatus {
	if file.ErrorCode == domain.ErrCodeDuplicate {
		return domain.UIStatusDuplicate
	}

	for i := range invoices {
		if invoices[i].Status == domain.InvoiceStatusError {
			return domain.UIStatusError
		}
	}
	if file.Status == domain.FileStatusAttention || file.ProcessingStage == domain.StageError {
		return domain.UIStatusError
	}

	if len(invoices) > 0 {
		allExported := true
		for i := range invoices {
			if invoices[i].Status != domain.InvoiceStatusExported {
				allExported = false
				break
			}
		}
		if allExported {
			return domain.UIStatusExported
		}
	}

	for i := range invoices {
		if HasCaveats(&invoices[i]) {
			return domain.UIStatusSuccessCaveats
		}
	}

	return mapStage(file)
}

func mapStage(file *domain.File) domain.UIStatus {
	if file.Status == domain.FileStatusQueued {
		return domain.UIStatusQueued
	}
	switch file.ProcessingStage {
	case domain.StageUploadReceived:
		return domain.UIStatusUploading
	case domain.StageDocumentDetection, domain.StageParsing, domain.StageInvoiceLinking:
		return domain.UIStatusProcessing
	case domain.StagePOMatching:
		return domain.UIStatusConnecting
	case domain.StageMatched:
		return domain.UIStatusSuccess
	}
	return domain.UIStatusProcessing
}
