// Package metadata holds a small, best-effort static price table used only
// for the CLI's end-of-run usage summary. It is never consulted to throttle
// or block a run.
package metadata

type GeminiModel struct {
	ID                      string
	Label                   string
	InputPerMillion         float64
	OutputPerMillion        float64
	ReasoningBilledAsOutput bool
}

var GeminiModels = []GeminiModel{
	{
		ID:                      "gemini-2.0-flash",
		Label:                   "Gemini 2.0 Flash",
		InputPerMillion:         0.10,
		OutputPerMillion:        0.40,
		ReasoningBilledAsOutput: false,
	},
	{
		ID:                      "gemini-2.5-flash",
		Label:                   "Gemini 2.5 Flash",
		InputPerMillion:         0.30,
		OutputPerMillion:        2.50,
		ReasoningBilledAsOutput: true,
	},
	{
		ID:                      "gemini-2.5-pro",
		Label:                   "Gemini 2.5 Pro",
		InputPerMillion:         1.25,
		OutputPerMillion:        10.00,
		ReasoningBilledAsOutput: true,
	},
	{
		ID:                      "gemini-3-flash-preview",
		Label:                   "Gemini 3 Flash (preview)",
		InputPerMillion:         0.50,
		OutputPerMillion:        3.00,
		ReasoningBilledAsOutput: true,
	},
	{
		ID:                      "gemini-3-pro-preview",
		Label:                   "Gemini 3 Pro (preview)",
		InputPerMillion:         2.00,
		OutputPerMillion:        12.00,
		ReasoningBilledAsOutput: true,
	},
}

const (
	DefaultGeminiInputPerMillion  = 2.00
	DefaultGeminiOutputPerMillion = 12.00
)

func GeminiModelIDs() []string {
	ids := make([]string, 0, len(GeminiModels))
	for _, m := range GeminiModels {
		ids = append(ids, m.ID)
	}
	return ids
}

func GeminiPricing(modelID string) (GeminiModel, bool) {
	for _, m := range GeminiModels {
		if m.ID == modelID {
			return m, true
		}
	}
	return GeminiModel{
		ID:                      "default",
		Label:                   "Default Gemini",
		InputPerMillion:         DefaultGeminiInputPerMillion,
		OutputPerMillion:        DefaultGeminiOutputPerMillion,
		ReasoningBilledAsOutput: true,
	}, false
}
