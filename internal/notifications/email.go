package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultResendEndpoint = "https://api.resend.com/emails"

// EmailAdapter sends notifications via email using Resend
type EmailAdapter struct {
	from     string
	to       []string
	apiKey   string
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// resendEmailRequest represents a Resend API email request
type resendEmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

// resendEmailResponse represents a Resend API response
type resendEmailResponse struct {
	ID string `json:"id"`
}

// NewEmailAdapter creates a new email notification adapter using Resend
func NewEmailAdapter(from string, to []string, apiKey string, logger *zap.Logger) (*EmailAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend API key is required")
	}

	return &EmailAdapter{
		from:     from,
		to:       to,
		apiKey:   apiKey,
		endpoint: defaultResendEndpoint,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}, nil
}

// Send sends one email to the configured recipients.
func (e *EmailAdapter) Send(ctx context.Context, subject, htmlBody, textBody string) error {
	emailReq := resendEmailRequest{
		From:    e.from,
		To:      e.to,
		Subject: subject,
		HTML:    htmlBody,
		Text:    textBody,
	}

	jsonData, err := json.Marshal(emailReq)
	if err != nil {
		return fmt.Errorf("failed to marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", e.apiKey))

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email via resend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("resend API returned status %d", resp.StatusCode)
	}

	var resendResp resendEmailResponse
	if err := json.NewDecoder(resp.Body).Decode(&resendResp); err != nil {
		return fmt.Errorf("failed to decode resend response: %w", err)
	}

	e.logger.Info("email sent via resend",
		zap.String("email_id", resendResp.ID),
		zap.String("subject", subject),
	)

	return nil
}

var alertHTMLTemplate = template.Must(template.New("alert").Parse(`
<div style="font-family: sans-serif; max-width: 600px;">
	<h2 style="color: {{.Color}};">{{.Title}}</h2>
	<p>{{.Body}}</p>
	<table style="border-collapse: collapse;">
		{{range .Rows}}
		<tr>
			<td style="padding: 4px 12px 4px 0; color: #666;">{{.Key}}</td>
			<td style="padding: 4px 0;"><strong>{{.Value}}</strong></td>
		</tr>
		{{end}}
	</table>
</div>
`))

type alertRow struct {
	Key   string
	Value string
}

type alertData struct {
	Title string
	Body  string
	Color string
	Rows  []alertRow
}

// renderAlertHTML renders the shared alert email layout.
func renderAlertHTML(data alertData) string {
	var buf bytes.Buffer
	if err := alertHTMLTemplate.Execute(&buf, data); err != nil {
		// Template is static and parsed at init; execution only fails on
		// writer errors, which bytes.Buffer never produces.
		return data.Title + ": " + data.Body
	}
	return buf.String()
}
