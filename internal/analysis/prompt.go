package analysis

import "github.com/healthtrack/apiserver/types"

// The instruction templates exist to pin the model to a specific JSON shape.
// The parser still tolerates prose and markdown fences around the object.

const hairPrompt = `You are a trichology assistant. Analyze the attached scalp
photograph and respond with a single JSON object, no other text, with exactly
these fields:
{
  "summary": string,
  "findings": [string],
  "recommendations": [string],
  "confidence": number between 0 and 1,
  "hair_count_estimate": integer,
  "baldness_zones": [string],
  "risk_3_years": string,
  "risk_5_years": string,
  "risk_10_years": string
}
The risk fields describe the estimated alopecia risk at each horizon, e.g.
"low (15%)". Use empty arrays when you have nothing to report.`

const generalPrompt = `You are a medical-document assistant. Analyze the
attached health report and respond with a single JSON object, no other text,
with exactly these fields:
{
  "summary": string,
  "findings": [string],
  "recommendations": [string],
  "confidence": number between 0 and 1,
  "key_findings": [string],
  "follow_up": [string]
}
key_findings lists the report's most important values or diagnoses; follow_up
lists points the patient should raise with a clinician. Use empty arrays when
you have nothing to report.`

func promptFor(kind types.AnalysisKind) string {
	if kind == types.AnalysisHair {
		return hairPrompt
	}
	return generalPrompt
}
