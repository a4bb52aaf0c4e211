// Package security guards prompt templates against hostile item data —
// CSV rows or AI-generated seed items are untrusted input that flows
// straight into an LLM prompt.
package security

// SanitizationConfig configures prompt-injection scanning of item field
// values before they are substituted into a map prompt.
type SanitizationConfig struct {
	MaxInputLength                 int      `yaml:"max_input_length"`
	EnablePromptInjectionDetection bool     `yaml:"enable_prompt_injection_detection"`
	PromptInjectionPatterns        []string `yaml:"prompt_injection_patterns"`
	StrictMode                     bool     `yaml:"strict_mode"`
}

// DefaultSanitizationConfig returns the default pattern set.
func DefaultSanitizationConfig() SanitizationConfig {
	return SanitizationConfig{
		MaxInputLength:                 10000,
		EnablePromptInjectionDetection: true,
		PromptInjectionPatterns: []string{
			`(?i)ignore.*previous.*instructions?`,
			`(?i)system.*prompt`,
			`(?i)you.*are.*now`,
			`(?i)disregard.*above`,
			`(?i)forget.*instructions?`,
			`(?i)new.*instructions?`,
			`(?i)override.*system`,
		},
		StrictMode: false,
	}
}
