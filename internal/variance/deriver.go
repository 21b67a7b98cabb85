// Package variance turns an invoice's stored balance and warning payload
// into display issues and a summary. Derivation uses stored state only,
// so re-opening the same invoice always yields the same result.
package variance

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"

	"payables/internal/domain"
)

// Derive produces the detailed issue list and analysis summary for one
// invoice.
func Derive(inv *domain.Invoice) ([]domain.DetailedIssue, string) {
	issues := []domain.DetailedIssue{}
	warnings := parseWarnings(inv)

	hasLineAmount := false
	for _, w := range warnings {
		switch w.Type {
		case domain.WarningLineAmount:
			hasLineAmount = true
			issues = append(issues, lineAmountIssues(w)...)
		case domain.WarningMissingReceipts:
			for _, line := range w.Lines {
				issues = append(issues, domain.DetailedIssue{
					Type:        domain.IssueUnmatchedItem,
					Line:        line,
					Description: fmt.Sprintf("line %d has no matching PO receipt", line),
				})
			}
		case domain.WarningAIMatching:
			issues = append(issues, domain.DetailedIssue{
				Type:        domain.IssueMatchNote,
				Description: w.Message,
			})
		}
	}

	if len(inv.HeaderIDs) == 0 && inv.Status == domain.InvoiceStatusMatched {
		issues = append(issues, domain.DetailedIssue{
			Type:        domain.IssueMissingPO,
			Description: "no purchase order could be associated with this invoice",
		})
	}

	// A nonzero balance already explained line by line is not reported a
	// second time as its own issue.
	if inv.Balance != 0 && !hasLineAmount {
		issues = append(issues, domain.DetailedIssue{
			Type:         domain.IssuePriceVariance,
			Description:  balanceDescription(inv.Balance),
			Impact:       fmt.Sprintf("$%.2f", math.Abs(inv.Balance)),
			InvoiceValue: inv.Subtotal(),
			POValue:      inv.Subtotal() - inv.Balance,
		})
	}

	return issues, summarize(issues)
}

func lineAmountIssues(w domain.Warning) []domain.DetailedIssue {
	var issues []domain.DetailedIssue
	if !closeEnough(w.InvoiceQuantity, w.POQuantity) {
		issues = append(issues, domain.DetailedIssue{
			Type: domain.IssueQuantityMismatch,
			Line: w.Line,
			Item: w.Item,
			Description: fmt.Sprintf("line %d (%s): invoiced quantity %.2f vs received quantity %.2f",
				w.Line, w.Item, w.InvoiceQuantity, w.POQuantity),
			Impact:          fmt.Sprintf("$%.2f", math.Abs(w.InvoiceAmount-w.POAmount)),
			InvoiceQuantity: w.InvoiceQuantity,
			POQuantity:      w.POQuantity,
		})
	}
	if !closeEnough(w.InvoicePrice, w.POPrice) {
		issues = append(issues, domain.DetailedIssue{
			Type: domain.IssuePriceVariance,
			Line: w.Line,
			Item: w.Item,
			Description: fmt.Sprintf("line %d (%s): invoiced unit price %.2f vs PO price %.2f",
				w.Line, w.Item, w.InvoicePrice, w.POPrice),
			Impact:       fmt.Sprintf("$%.2f", math.Abs(w.InvoiceAmount-w.POAmount)),
			InvoiceValue: w.InvoicePrice,
			POValue:      w.POPrice,
		})
	}
	return issues
}

func balanceDescription(balance float64) string {
	if balance > 0 {
		return fmt.Sprintf("invoice subtotal is %.2f more than PO total", balance)
	}
	return fmt.Sprintf("invoice subtotal is %.2f less than PO total", -balance)
}

func summarize(issues []domain.DetailedIssue) string {
	if len(issues) == 0 {
		return "No issues found"
	}
	parts := make([]string, 0, len(issues))
	for _, issue := range issues {
		parts = append(parts, issue.Description)
	}
	return fmt.Sprintf("%d issue(s): %s", len(issues), strings.Join(parts, "; "))
}

func parseWarnings(inv *domain.Invoice) []domain.Warning {
	if len(inv.WarningsJSON) == 0 {
		return nil
	}
	var warnings []domain.Warning
	if err := json.Unmarshal(inv.WarningsJSON, &warnings); err != nil {
		log.Printf("variance.Derive: invalid warnings payload on invoice %s: %v", inv.ID, err)
		return nil
	}
	return warnings
}

func closeEnough(a, b float64) bool {
	return math.Abs(a-b) <= 1.00
}
