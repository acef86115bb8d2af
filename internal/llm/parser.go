package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Veraticus/saffron/internal/merchant"
	"github.com/Veraticus/saffron/internal/model"
)

// rawEntry and rawSuggestion accept any JSON type per field; every field is
// checked before use.
type rawEntry struct {
	MerchantKey    any               `json:"merchant_normalized"`
	PatternKey     any               `json:"pattern_key"`
	PatternDisplay any               `json:"pattern_display"`
	Metadata       any               `json:"metadata"`
	Suggestions    []json.RawMessage `json:"suggestions"`
}

type rawSuggestion struct {
	Category      any `json:"category"`
	Subcategory   any `json:"subcategory"`
	Confidence    any `json:"confidence"`
	IsNewCategory any `json:"is_new_category"`
	Notes         any `json:"notes"`
}

// stripCodeFences removes a surrounding markdown fence and any prose
// outside the outermost JSON object.
func stripCodeFences(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		if nl := strings.IndexByte(content, '\n'); nl >= 0 {
			content = content[nl+1:]
		} else {
			content = strings.TrimPrefix(content, "```")
		}
		content = strings.TrimSpace(content)
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	if !strings.HasPrefix(content, "{") {
		start := strings.IndexByte(content, '{')
		end := strings.LastIndexByte(content, '}')
		if start >= 0 && end > start {
			content = content[start : end+1]
		}
	}

	return content
}

// parseBatchResponse decodes a reply into results keyed by normalized merchant.
// Only the top-level shape is fatal; bad entries and suggestions are dropped.
// When requested is non-nil, entries for merchants not asked about are dropped.
func parseBatchResponse(content string, requested map[string]bool) (map[string]model.SuggestionResult, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripCodeFences(content)), &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	rawMerchants, ok := top["merchants"]
	if !ok {
		return nil, fmt.Errorf("%w: missing merchants list", ErrMalformedResponse)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(rawMerchants, &entries); err != nil {
		return nil, fmt.Errorf("%w: merchants is not a list", ErrMalformedResponse)
	}

	results := make(map[string]model.SuggestionResult, len(entries))
	for _, raw := range entries {
		result, ok := parseEntry(raw)
		if !ok {
			continue
		}
		if requested != nil && !requested[result.MerchantKey] {
			continue
		}
		results[result.MerchantKey] = result
	}

	return results, nil
}

func parseEntry(raw json.RawMessage) (model.SuggestionResult, bool) {
	var entry rawEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return model.SuggestionResult{}, false
	}

	key := merchant.Normalize(stringValue(entry.MerchantKey))
	if key == "" || len(entry.Suggestions) == 0 {
		return model.SuggestionResult{}, false
	}

	suggestions := make(model.Suggestions, 0, len(entry.Suggestions))
	for _, rs := range entry.Suggestions {
		if s, ok := parseSuggestion(rs); ok {
			suggestions = append(suggestions, s)
		}
	}
	if len(suggestions) == 0 {
		return model.SuggestionResult{}, false
	}

	result := model.SuggestionResult{
		MerchantKey:    key,
		PatternKey:     stringValue(entry.PatternKey),
		PatternDisplay: stringValue(entry.PatternDisplay),
		Suggestions:    suggestions.Ranked(),
	}
	if meta, ok := entry.Metadata.(map[string]any); ok && len(meta) > 0 {
		result.Metadata = meta
	}
	return result, true
}

func parseSuggestion(raw json.RawMessage) (model.Suggestion, bool) {
	var rs rawSuggestion
	if err := json.Unmarshal(raw, &rs); err != nil {
		return model.Suggestion{}, false
	}

	s := model.Suggestion{
		Category:      stringValue(rs.Category),
		Subcategory:   stringValue(rs.Subcategory),
		Confidence:    confidenceValue(rs.Confidence),
		IsNewCategory: boolValue(rs.IsNewCategory),
		Notes:         stringValue(rs.Notes),
	}
	if s.Category == "" || s.Subcategory == "" {
		return model.Suggestion{}, false
	}
	return s, true
}

func stringValue(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// confidenceValue accepts numbers and numeric strings ("0.8", "80%"),
// clamps to [0,1], and yields 0 for anything unparseable.
func confidenceValue(v any) float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		s := strings.TrimSpace(t)
		divisor := 1.0
		if strings.HasSuffix(s, "%") {
			s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
			divisor = 100
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = parsed / divisor
	default:
		return 0
	}

	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

func boolValue(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	default:
		return false
	}
}
