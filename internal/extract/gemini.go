package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// GeminiAdapter implements Adapter against the Gemini vision API.
type GeminiAdapter struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewGeminiAdapter creates a Gemini-backed extraction adapter.
func NewGeminiAdapter(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiAdapter{
		client: client,
		model:  model,
		logger: logger,
	}, nil
}

// visionResponse is the JSON shape the prompt instructs the model to return.
type visionResponse struct {
	Error   string     `json:"error,omitempty"`
	Entries []RawEntry `json:"entries"`
}

// Extract sends the roster image and subject to Gemini and parses the
// structured response.
func (a *GeminiAdapter) Extract(ctx context.Context, image []byte, subjectLabel string) ([]RawEntry, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(image, "image/jpeg"),
		genai.NewPartFromText(visionPrompt(subjectLabel)),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := a.client.Models.GenerateContent(ctx, a.model, contents, nil)
	if err != nil {
		return nil, &AdapterError{Op: "generate", Transient: isTransientAPIError(err), Err: err}
	}

	raw := result.Text()
	a.logger.Debug("Gemini response received",
		slog.Int("response_len", len(raw)),
	)

	cleaned := CleanModelJSON(raw)

	var resp visionResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, &AdapterError{Op: "parse", Transient: false, Err: fmt.Errorf("malformed model output: %w", err)}
	}

	if resp.Error != "" {
		return nil, &AdapterError{Op: "extract", Transient: false, Err: errors.New(resp.Error)}
	}

	return resp.Entries, nil
}

// isTransientAPIError classifies Gemini API failures. Rate limiting and
// 5xx-class responses are worth retrying; everything else is not.
func isTransientAPIError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return false
}

// CleanModelJSON strips markdown code fences and stray text surrounding the
// JSON object models habitually emit.
func CleanModelJSON(raw string) string {
	if idx := strings.Index(raw, "```json"); idx != -1 {
		raw = raw[idx+len("```json"):]
		if end := strings.Index(raw, "```"); end != -1 {
			raw = raw[:end]
		}
	} else if idx := strings.Index(raw, "```"); idx != -1 {
		raw = raw[idx+len("```"):]
		if end := strings.Index(raw, "```"); end != -1 {
			raw = raw[:end]
		}
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start != -1 && end != -1 && end > start {
		raw = raw[start : end+1]
	}
	return strings.TrimSpace(raw)
}

// visionPrompt builds the extraction prompt for one subject.
func visionPrompt(subjectLabel string) string {
	return fmt.Sprintf(`You are reading a photographed weekly shift-roster table.

Extract the shifts for exactly one person: %q.

Rules:
- Report one entry per day column that mentions this person.
- "day" is the day header exactly as printed (weekday name, optionally with a day-of-month number).
- "cell" is the raw text of that person's cell for the day, including every time range.
- Do not invent dates, do not resolve weekdays against a calendar.
- If the person does not appear in the table, return {"error": "subject not found in roster"}.

Respond with JSON only, no prose:
{"entries": [{"day": "Monday 2", "cell": "08:30-12:30, 13:30-15:30", "note": ""}]}`, subjectLabel)
}
