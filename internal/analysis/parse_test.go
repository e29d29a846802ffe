package analysis

import (
	"testing"

	"github.com/healthtrack/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hairJSON = `{
	"summary": "mild thinning at the crown",
	"findings": ["diffuse thinning"],
	"recommendations": ["sulfate-free shampoo"],
	"confidence": 0.78,
	"hair_count_estimate": 12500,
	"baldness_zones": ["crown"],
	"risk_3_years": "low (15%)",
	"risk_5_years": "moderate (35%)",
	"risk_10_years": "high (65%)"
}`

func TestParseResult_PlainJSON(t *testing.T) {
	t.Parallel()

	result, err := parseResult(types.AnalysisHair, hairJSON)
	require.NoError(t, err)
	assert.Equal(t, "mild thinning at the crown", result.Summary)
	assert.InDelta(t, 0.78, result.Confidence, 1e-9)
	require.NotNil(t, result.HairCountEstimate)
	assert.Equal(t, 12500, *result.HairCountEstimate)
	require.NotNil(t, result.Risk)
	assert.Equal(t, "moderate (35%)", result.Risk.FiveYear)
}

func TestParseResult_ProseWrappedAndFenced(t *testing.T) {
	t.Parallel()

	raw := "Here is the result:\n```json\n" + hairJSON + "\n```\nLet me know if you need more."
	result, err := parseResult(types.AnalysisHair, raw)
	require.NoError(t, err)
	assert.Equal(t, types.AnalysisHair, result.Kind)
	require.NotNil(t, result.HairCountEstimate)
}

func TestParseResult_NoJSON(t *testing.T) {
	t.Parallel()

	_, err := parseResult(types.AnalysisGeneral, "I could not analyze this document, sorry.")
	assert.ErrorIs(t, err, ErrUpstreamMalformed)
}

func TestParseResult_MissingConfidence(t *testing.T) {
	t.Parallel()

	_, err := parseResult(types.AnalysisGeneral, `{"summary": "ok", "key_findings": []}`)
	assert.ErrorIs(t, err, ErrUpstreamMalformed)
}

func TestParseResult_MissingKindSpecificField(t *testing.T) {
	t.Parallel()

	// Hair analysis without the count estimate violates the shape contract.
	_, err := parseResult(types.AnalysisHair, `{
		"summary": "s", "confidence": 0.5,
		"risk_3_years": "a", "risk_5_years": "b", "risk_10_years": "c"
	}`)
	assert.ErrorIs(t, err, ErrUpstreamMalformed)

	// And without a risk horizon.
	_, err = parseResult(types.AnalysisHair, `{
		"summary": "s", "confidence": 0.5, "hair_count_estimate": 10,
		"risk_3_years": "a", "risk_5_years": "b"
	}`)
	assert.ErrorIs(t, err, ErrUpstreamMalformed)
}

func TestParseResult_DefaultsAndClamping(t *testing.T) {
	t.Parallel()

	result, err := parseResult(types.AnalysisGeneral, `{"summary": "s", "confidence": 1.7}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Confidence)
	assert.NotNil(t, result.Findings)
	assert.Empty(t, result.Findings)
	assert.NotNil(t, result.KeyFindings)
	assert.Empty(t, result.KeyFindings)
	assert.NotNil(t, result.FollowUp)

	result, err = parseResult(types.AnalysisGeneral, `{"summary": "s", "confidence": -0.3}`)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.Confidence)
}

func TestExtractJSONObject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, true},
		{"leading prose", `The answer: {"a":1} trailing`, `{"a":1}`, true},
		{"nested braces", `{"a":{"b":2}}`, `{"a":{"b":2}}`, true},
		{"braces in strings", `{"a":"{not a brace}"}`, `{"a":"{not a brace}"}`, true},
		{"escaped quotes", `{"a":"say \"hi\" {"}`, `{"a":"say \"hi\" {"}`, true},
		{"no object", "plain text only", "", false},
		{"unbalanced", `{"a":1`, "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := extractJSONObject(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
