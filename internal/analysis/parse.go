package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/healthtrack/apiserver/types"
)

// upstreamResult mirrors the JSON shape the instruction templates demand.
// Pointer fields distinguish "absent" from zero values.
type upstreamResult struct {
	Summary         string   `json:"summary"`
	Findings        []string `json:"findings"`
	Recommendations []string `json:"recommendations"`
	Confidence      *float64 `json:"confidence"`

	HairCountEstimate *int     `json:"hair_count_estimate"`
	BaldnessZones     []string `json:"baldness_zones"`
	Risk3Years        *string  `json:"risk_3_years"`
	Risk5Years        *string  `json:"risk_5_years"`
	Risk10Years       *string  `json:"risk_10_years"`

	KeyFindings []string `json:"key_findings"`
	FollowUp    []string `json:"follow_up"`
}

// parseResult extracts the first JSON object from the model's answer and
// normalizes it. Missing list fields become empty lists; a missing confidence
// or missing required kind-specific field is a hard failure because it means
// the response-shape contract was violated.
func parseResult(kind types.AnalysisKind, raw string) (types.AnalysisResult, error) {
	object, ok := extractJSONObject(raw)
	if !ok {
		return types.AnalysisResult{}, fmt.Errorf("%w: no JSON object in response", ErrUpstreamMalformed)
	}

	var parsed upstreamResult
	if err := json.Unmarshal([]byte(object), &parsed); err != nil {
		return types.AnalysisResult{}, fmt.Errorf("%w: %v", ErrUpstreamMalformed, err)
	}

	if parsed.Confidence == nil {
		return types.AnalysisResult{}, fmt.Errorf("%w: missing confidence", ErrUpstreamMalformed)
	}

	result := types.AnalysisResult{
		Kind:            kind,
		Summary:         parsed.Summary,
		Findings:        orEmpty(parsed.Findings),
		Recommendations: orEmpty(parsed.Recommendations),
		Confidence:      clamp01(*parsed.Confidence),
	}

	switch kind {
	case types.AnalysisHair:
		if parsed.HairCountEstimate == nil {
			return types.AnalysisResult{}, fmt.Errorf("%w: missing hair_count_estimate", ErrUpstreamMalformed)
		}
		if parsed.Risk3Years == nil || parsed.Risk5Years == nil || parsed.Risk10Years == nil {
			return types.AnalysisResult{}, fmt.Errorf("%w: missing risk horizon", ErrUpstreamMalformed)
		}
		result.HairCountEstimate = parsed.HairCountEstimate
		result.BaldnessZones = orEmpty(parsed.BaldnessZones)
		result.Risk = &types.RiskHorizons{
			ThreeYear: *parsed.Risk3Years,
			FiveYear:  *parsed.Risk5Years,
			TenYear:   *parsed.Risk10Years,
		}
	case types.AnalysisGeneral:
		result.KeyFindings = orEmpty(parsed.KeyFindings)
		result.FollowUp = orEmpty(parsed.FollowUp)
	}

	return result, nil
}

// extractJSONObject returns the first balanced top-level JSON object in the
// text. Models often wrap the object in prose or markdown fences; both are
// tolerated.
func extractJSONObject(text string) (string, bool) {
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					candidate := text[start : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate, true
					}
					start = -1
				}
			}
		}
	}
	return "", false
}

func orEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
