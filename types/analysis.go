package types

import "time"

// AnalysisKind discriminates the supported analysis templates.
type AnalysisKind string

const (
	// AnalysisHair is the image-based scalp/hair analysis.
	AnalysisHair AnalysisKind = "hair"

	// AnalysisGeneral is the PDF-based general report analysis.
	AnalysisGeneral AnalysisKind = "general"
)

// Valid reports whether the analysis kind is supported.
func (k AnalysisKind) Valid() bool {
	return k == AnalysisHair || k == AnalysisGeneral
}

// DocumentKind returns the document kind this analysis operates on.
func (k AnalysisKind) DocumentKind() DocumentKind {
	if k == AnalysisHair {
		return KindImage
	}
	return KindPDF
}

// RiskHorizons carries the per-horizon risk estimates of a hair analysis.
type RiskHorizons struct {
	ThreeYear string `json:"three_year"`
	FiveYear  string `json:"five_year"`
	TenYear   string `json:"ten_year"`
}

// AnalysisResult is the normalized output of one upstream inference call,
// attached to a document. The shared fields are always populated; the
// kind-specific fields depend on Kind. Confidence is always in [0,1].
type AnalysisResult struct {
	Kind            AnalysisKind `json:"kind"`
	Summary         string       `json:"summary"`
	Findings        []string     `json:"findings"`
	Recommendations []string     `json:"recommendations"`
	Confidence      float64      `json:"confidence"`

	// Hair analysis fields.
	HairCountEstimate *int          `json:"hair_count_estimate,omitempty"`
	BaldnessZones     []string      `json:"baldness_zones,omitempty"`
	Risk              *RiskHorizons `json:"risk,omitempty"`

	// General report fields.
	KeyFindings []string `json:"key_findings,omitempty"`
	FollowUp    []string `json:"follow_up,omitempty"`

	// CreatedAt is the time the result was produced.
	CreatedAt time.Time `json:"created_at"`
}
