// Package cropcheck asks a vision model about a leaf photo and turns its
// answer into advice that is always actionable, even when the model is
// unsure or returns garbage.
package cropcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	LowConfidence     = 0.6
	lowConfidenceHint = "Low confidence result: retake 2-3 photos from different leaves in good lighting."
	unknownIssue      = "Unknown leaf issue"
	unknownConfidence = 0.4
)

var defaultAdvice = []string{
	"Retake a clear photo: single leaf fills the frame in bright, even light.",
	"Remove the worst-affected leaves and sanitize your tools.",
	"Avoid overhead watering; water at soil level in the morning.",
	"Increase spacing and airflow between plants.",
	"Monitor neighboring plants for similar symptoms.",
}

// Image is an uploaded photo.
type Image struct {
	Data     []byte
	MIMEType string
}

// Analyzer sends the prompt and image to a model and returns its raw text.
type Analyzer interface {
	Analyze(ctx context.Context, prompt string, img Image) (string, error)
}

type Condition struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type Result struct {
	IsHealthy     bool        `json:"is_healthy"`
	TopConditions []Condition `json:"top_conditions"`
	Advice        []string    `json:"advice"`
}

type Service struct {
	Analyzer Analyzer
}

// Check analyzes img. cropType may be blank.
func (s *Service) Check(ctx context.Context, img Image, cropType string) (*Result, error) {
	if len(img.Data) == 0 {
		return nil, ErrImageRequired
	}
	if s.Analyzer == nil {
		return nil, ErrNotConfigured
	}
	cropType = strings.TrimSpace(cropType)
	if cropType == "" {
		cropType = "unknown"
	}
	if img.MIMEType == "" {
		img.MIMEType = "image/jpeg"
	}

	text, err := s.Analyzer.Analyze(ctx, Prompt(cropType), img)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModel, err)
	}
	res := Parse(text)
	log.Info().Str("crop_type", cropType).
		Bool("healthy", res.IsHealthy).
		Str("top_condition", res.TopConditions[0].Label).
		Float64("confidence", res.TopConditions[0].Confidence).
		Msg("cropcheck: analyzed")
	return res, nil
}

func Prompt(cropType string) string {
	return `You are a knowledgeable and cautious agronomy assistant.
Analyze this leaf photo from a ` + cropType + ` crop.
Identify possible diseases, pests, or nutrient deficiencies.

Return STRICT JSON in the following format only:
{
  "is_healthy": <boolean>,
  "top_conditions": [{"label": <string>, "confidence": <number 0-1>}, ...],
  "advice": [
    "short, actionable step 1 (non-chemical first)",
    "step 2",
    "step 3"
  ]
}

Rules:
- Always include at least 3 pieces of advice, even if unsure.
- Prefer safe, non-chemical actions first (remove infected leaves, improve airflow, sanitize tools, adjust watering).
- Mention general organic or biological control methods (like neem oil, compost tea).
- If needed, suggest consulting local agricultural experts for severe conditions.
- Keep it short and clear.
`
}

// Parse reads model output and fills the gaps: unreadable output is an
// unhealthy result, missing advice gets the default tips, missing
// conditions become a single low-confidence unknown, and a weak top
// condition puts a retake hint first.
func Parse(text string) *Result {
	res := &Result{}
	var raw map[string]any
	if err := json.Unmarshal([]byte(stripFence(text)), &raw); err != nil {
		log.Warn().Err(err).Int("len", len(text)).Msg("cropcheck: unparsable model output")
		raw = nil
	}

	if b, ok := raw["is_healthy"].(bool); ok {
		res.IsHealthy = b
	}
	if list, ok := raw["advice"].([]any); ok {
		for _, a := range list {
			if s, ok := a.(string); ok && strings.TrimSpace(s) != "" {
				res.Advice = append(res.Advice, s)
			}
		}
	}
	if list, ok := raw["top_conditions"].([]any); ok {
		for _, c := range list {
			m, ok := c.(map[string]any)
			if !ok {
				continue
			}
			label, _ := m["label"].(string)
			res.TopConditions = append(res.TopConditions, Condition{Label: label, Confidence: number(m["confidence"])})
		}
	}

	if len(res.Advice) == 0 {
		res.Advice = append([]string(nil), defaultAdvice...)
	}
	if len(res.TopConditions) == 0 {
		res.TopConditions = []Condition{{Label: unknownIssue, Confidence: unknownConfidence}}
	}
	if res.TopConditions[0].Confidence < LowConfidence {
		res.Advice = append([]string{lowConfidenceHint}, res.Advice...)
	}
	return res
}

func number(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err == nil {
			return f
		}
	}
	return 0
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
