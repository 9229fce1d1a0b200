// Package narrative talks to the external text-generation service that turns
// an incident summary into a short recommendation.
package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hervehildenbrand/threatsage/pkg/models"
)

const (
	// DefaultModel is the model name sent to the generation service.
	DefaultModel = "gpt2"

	// DefaultTimeout bounds one generation request.
	DefaultTimeout = 30 * time.Second

	recommendationMarker = "Recommendation:"
	maxResponseSize      = 1 << 20
)

var (
	// ErrDisabled is returned by Disabled.
	ErrDisabled = errors.New("narrative generation disabled")

	// ErrEmptyResponse is returned when the service answers with no usable text.
	ErrEmptyResponse = errors.New("narrative service returned empty text")
)

// Generator turns a prompt into free text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Disabled is a Generator that always fails, so callers fall back to the template.
type Disabled struct{}

// Generate implements Generator.
func (Disabled) Generate(context.Context, string) (string, error) {
	return "", ErrDisabled
}

// Client calls a /api/generate style HTTP endpoint.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient creates a client for baseURL.
func NewClient(baseURL, model string, timeout time.Duration) *Client {
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// Generate sends prompt and returns the text after the last recommendation marker.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("narrative request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("read narrative response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("narrative service status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode narrative response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("narrative service: %s", out.Error)
	}

	text := ExtractRecommendation(out.Response)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// ExtractRecommendation keeps only what follows the last "Recommendation:" marker.
func ExtractRecommendation(text string) string {
	if i := strings.LastIndex(text, recommendationMarker); i >= 0 {
		text = text[i+len(recommendationMarker):]
	}
	return strings.TrimSpace(text)
}

// BuildPrompt renders the prompt for the primary IP of an alert.
func BuildPrompt(ip string, record models.IntelligenceRecord, alert string, score int) string {
	var b strings.Builder
	b.WriteString("You are a cybersecurity expert.\n")
	b.WriteString("Given the following IP information, suggest an appropriate security action in 2-3 sentences.\n\n")
	if alert != "" && alert != ip {
		fmt.Fprintf(&b, "Alert:\n%s\n\n", alert)
	}
	b.WriteString("IP Information:\n")
	fmt.Fprintf(&b, "- IP: %s\n", ip)
	if record.IsInternal {
		fmt.Fprintf(&b, "- Type: %s\n", record.Type)
	} else {
		fmt.Fprintf(&b, "- Location: %s, %s, %s\n", record.City, record.Region, record.Country)
		fmt.Fprintf(&b, "- Organization: %s (%s)\n", record.Organization, record.ISP)
		fmt.Fprintf(&b, "- Proxy: %t, Hosting: %t\n", record.IsProxy, record.IsHosting)
	}
	if record.Reputation != "" {
		fmt.Fprintf(&b, "- Reputation: %s (%s confidence)\n", record.Reputation, record.Confidence)
	}
	if len(record.ReportedActivities) > 0 {
		fmt.Fprintf(&b, "- Reported activities: %s\n", strings.Join(record.ReportedActivities, ", "))
	}
	fmt.Fprintf(&b, "- Threat score: %d/100\n\n", score)
	b.WriteString(recommendationMarker)
	return b.String()
}

// Fallback is the deterministic recommendation used when generation fails.
func Fallback(score int) string {
	var action string
	switch models.SeverityForScore(score) {
	case models.SeverityCritical, models.SeverityHigh:
		action = "Block the source IP at the perimeter and review affected accounts immediately."
	case models.SeverityMedium:
		action = "Monitor the source IP closely and verify the activity with the account owner."
	default:
		action = "No immediate action required; keep the event for correlation."
	}
	return fmt.Sprintf("Threat score: %d/100. %s", score, action)
}
