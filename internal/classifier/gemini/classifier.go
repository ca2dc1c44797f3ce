// Package gemini implements the lead classifier on Google's Gemini models.
// The model is asked for a strict JSON verdict on whether a post is a US
// hiring post.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/leadscout/leadscout/internal/lead"
)

const maxPromptText = 4000

const promptPreamble = "You are a precise filter for job posts. Read the text and answer strictly in JSON with keys: " +
	`{"hiring": true|false, "usa": true|false, "reason": "short reason"}. ` +
	"- hiring=true only if the post is recruiting/hiring or contains openings/positions/vacancies/looking for candidates (not job seeking). " +
	"- usa=true only if the role is in the United States of America (50 states or DC), or remote but explicitly restricted to US residents. " +
	"Treat US territories (e.g., Puerto Rico, Guam, USVI) and other countries as NOT usa. " +
	"If global with no explicit US-only restriction, set usa=false. " +
	"Text: "

var jsonObjectRe = regexp.MustCompile(`\{[\s\S]*\}`)

// Config controls the Gemini classifier.
type Config struct {
	APIKey      string
	Model       string
	Temperature float32
}

// Classifier implements lead.Classifier against the Gemini API.
type Classifier struct {
	client *genai.Client
	model  string
	temp   float32
}

// New creates a Gemini-backed classifier.
func New(ctx context.Context, cfg Config) (*Classifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("classifier.api_key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}
	temp := cfg.Temperature
	if temp == 0 {
		temp = 0.1
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Classifier{client: client, model: model, temp: temp}, nil
}

// Classify asks the model for a verdict. Transport failures are returned as
// errors so the filter chain's availability policy can apply; a response the
// model formatted badly is not an error and accepts with "ai-parse-failed".
func (c *Classifier) Classify(ctx context.Context, text string) (lead.Verdict, error) {
	if len(text) > maxPromptText {
		text = text[:maxPromptText]
	}
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(c.temp)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(promptPreamble+text))
	if err != nil {
		return lead.Verdict{}, fmt.Errorf("gemini generate: %w", err)
	}
	out, err := responseText(resp)
	if err != nil {
		return lead.Verdict{}, fmt.Errorf("gemini response: %w", err)
	}
	return ParseVerdict(out), nil
}

// Close releases the underlying API client.
func (c *Classifier) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

type verdictJSON struct {
	Hiring bool   `json:"hiring"`
	USA    bool   `json:"usa"`
	Reason string `json:"reason"`
}

// ParseVerdict interprets model output. Code fences are stripped and, if the
// whole string is not valid JSON, the first embedded object is tried.
// Unparseable output accepts with reason "ai-parse-failed".
func ParseVerdict(out string) lead.Verdict {
	cleaned := stripFences(out)
	var v verdictJSON
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		m := jsonObjectRe.FindString(cleaned)
		if m == "" || json.Unmarshal([]byte(m), &v) != nil {
			return lead.Verdict{Accept: true, Reason: "ai-parse-failed"}
		}
	}
	reason := v.Reason
	if reason == "" {
		reason = fmt.Sprintf("hiring=%t usa=%t", v.Hiring, v.USA)
	}
	return lead.Verdict{Accept: v.Hiring && v.USA, Reason: reason}
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}
	var parts []string
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			parts = append(parts, string(t))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}
	return strings.Join(parts, ""), nil
}
