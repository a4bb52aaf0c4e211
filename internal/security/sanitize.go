package security

import (
	"regexp"
	"strings"
)

// InputSanitizer scans item field values for prompt-injection attempts
// before they reach {{var}} substitution.
type InputSanitizer struct {
	config  SanitizationConfig
	regexes []*regexp.Regexp
}

// NewInputSanitizer compiles the configured patterns once.
func NewInputSanitizer(config SanitizationConfig) *InputSanitizer {
	s := &InputSanitizer{config: config}
	for _, pattern := range config.PromptInjectionPatterns {
		if re, err := regexp.Compile(pattern); err == nil {
			s.regexes = append(s.regexes, re)
		}
	}
	return s
}

// Sanitize checks a single field value. In strict mode a match is rejected
// with a PromptInjectionError; otherwise the matched spans are neutralised
// and the cleaned value is returned alongside the list of patterns that
// matched.
func (s *InputSanitizer) Sanitize(field, value string) (string, []string, error) {
	if len(value) > s.config.MaxInputLength {
		value = value[:s.config.MaxInputLength]
	}
	if !s.config.EnablePromptInjectionDetection {
		return value, nil, nil
	}

	var matched []string
	for _, re := range s.regexes {
		if re.MatchString(strings.ToLower(value)) {
			matched = append(matched, re.String())
		}
	}
	if len(matched) == 0 {
		return value, nil, nil
	}
	if s.config.StrictMode {
		return "", matched, NewPromptInjectionError(field, matched)
	}

	cleaned := value
	for _, re := range s.regexes {
		cleaned = re.ReplaceAllString(cleaned, " ")
	}
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	return cleaned, matched, nil
}
