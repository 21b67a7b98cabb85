package ses

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"payables/internal/port"
)

type sesSender struct {
	client          *sesv2.Client
	fromAddress     string
	fromName        string
	reviewerAddress string
}

// NewSESSender creates a new SES-backed AlertSender.
func NewSESSender(region, fromAddress, fromName, reviewerAddress string) (port.AlertSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for SES: %w", err)
	}
	client := sesv2.NewFromConfig(cfg)
	return &sesSender{
		client:          client,
		fromAddress:     fromAddress,
		fromName:        fromName,
		reviewerAddress: reviewerAddress,
	}, nil
}

func (s *sesSender) SendAttentionAlert(ctx context.Context, alert port.ReviewAlert) error {
	subject := fmt.Sprintf("Invoice file needs attention: %s", alert.FileName)
	htmlBody := buildAttentionHTML(alert)
	textBody := fmt.Sprintf("File %s (%s) needs review.\n\nError code: %s\nDescription: %s\n",
		alert.FileName, alert.FileID, alert.ErrorCode, alert.ErrorDescription)
	if alert.InvoiceNumber != "" {
		textBody += fmt.Sprintf("Invoice: %s\n", alert.InvoiceNumber)
	}

	from := fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)

	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: &from,
		Destination: &types.Destination{
			ToAddresses: []string{s.reviewerAddress},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: &subject},
				Body: &types.Body{
					Html: &types.Content{Data: &htmlBody},
					Text: &types.Content{Data: &textBody},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("SES SendEmail: %w", err)
	}
	return nil
}

func buildAttentionHTML(alert port.ReviewAlert) string {
	invoiceLine := ""
	if alert.InvoiceNumber != "" {
		invoiceLine = fmt.Sprintf("<p>Invoice: <strong>%s</strong></p>", alert.InvoiceNumber)
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #333;">Invoice file needs attention</h2>
  <p>The file <strong>%s</strong> (%s) could not be processed automatically.</p>
  %s
  <p>Error code: <strong>%s</strong></p>
  <p style="word-break: break-all; color: #666;">%s</p>
  <hr style="border: none; border-top: 1px solid #eee; margin: 20px 0;">
  <p style="color: #999; font-size: 12px;">Payables - Invoice Processing</p>
</body>
</html>`, alert.FileName, alert.FileID, invoiceLine, alert.ErrorCode, alert.ErrorDescription)
}
