package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"merchants":[]}`, `{"merchants":[]}`},
		{"json fence", "```json\n{\"merchants\":[]}\n```", `{"merchants":[]}`},
		{"bare fence", "```\n{\"merchants\":[]}\n```", `{"merchants":[]}`},
		{"leading prose", "Here you go:\n{\"merchants\":[]}\nThanks", `{"merchants":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripCodeFences(tt.input))
		})
	}
}

func TestParseBatchResponse_TopLevelShape(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "I could not categorize these."},
		{"array", `[{"merchant_normalized":"X"}]`},
		{"missing merchants", `{"results":[]}`},
		{"merchants not list", `{"merchants":{"a":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseBatchResponse(tt.content, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestParseBatchResponse_DropsInvalidEntries(t *testing.T) {
	content := "```json\n" + `{
  "merchants": [
    {"merchant_normalized": " starbucks  store ", "pattern_key": "STARBUCKS", "suggestions": [
      {"category": "Food", "subcategory": "Coffee", "confidence": 0.6},
      {"category": "Food", "subcategory": "Cafe", "confidence": "92%", "is_new_category": "true", "notes": "chain"},
      {"category": "", "subcategory": "Nope", "confidence": 1}
    ]},
    {"merchant_normalized": "NO SUGGESTIONS", "suggestions": []},
    {"suggestions": [{"category": "A", "subcategory": "B", "confidence": 1}]},
    {"merchant_normalized": 42, "suggestions": [{"category": "A", "subcategory": "B"}]},
    {"merchant_normalized": "ALL BAD", "suggestions": [{"category": "A"}]},
    {"merchant_normalized": "UNASKED", "suggestions": [{"category": "A", "subcategory": "B", "confidence": 0.5}]},
    "garbage"
  ]
}` + "\n```"

	results, err := parseBatchResponse(content, map[string]bool{
		"STARBUCKS STORE": true,
		"NO SUGGESTIONS":  true,
		"ALL BAD":         true,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	result := results["STARBUCKS STORE"]
	assert.Equal(t, "STARBUCKS STORE", result.MerchantKey)
	assert.Equal(t, "STARBUCKS", result.PatternKey)
	require.Len(t, result.Suggestions, 2)
	assert.Equal(t, "Cafe", result.Suggestions[0].Subcategory)
	assert.InDelta(t, 0.92, result.Suggestions[0].Confidence, 1e-9)
	assert.True(t, result.Suggestions[0].IsNewCategory)
	assert.Equal(t, "chain", result.Suggestions[0].Notes)
	assert.Equal(t, "Coffee", result.Suggestions[1].Subcategory)
	assert.False(t, result.Suggestions[1].IsNewCategory)
}

func TestParseBatchResponse_NilRequestedKeepsAll(t *testing.T) {
	content := `{"merchants":[{"merchant_normalized":"A","metadata":{"brand":"a"},"suggestions":[{"category":"X","subcategory":"Y","confidence":0.4}]}]}`

	results, err := parseBatchResponse(content, nil)
	require.NoError(t, err)
	require.Contains(t, results, "A")
	assert.Equal(t, map[string]any{"brand": "a"}, results["A"].Metadata)
}

func TestConfidenceValue(t *testing.T) {
	tests := []struct {
		input any
		name  string
		want  float64
	}{
		{name: "number", input: 0.75, want: 0.75},
		{name: "above one", input: 1.7, want: 1},
		{name: "negative", input: -0.2, want: 0},
		{name: "numeric string", input: " 0.8 ", want: 0.8},
		{name: "percent", input: "85%", want: 0.85},
		{name: "garbage", input: "high", want: 0},
		{name: "missing", input: nil, want: 0},
		{name: "bool", input: true, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, confidenceValue(tt.input), 1e-9)
		})
	}
}

func TestBoolValue(t *testing.T) {
	assert.True(t, boolValue(true))
	assert.True(t, boolValue("TRUE"))
	assert.False(t, boolValue("yes please"))
	assert.False(t, boolValue(nil))
	assert.False(t, boolValue(1.0))
}
