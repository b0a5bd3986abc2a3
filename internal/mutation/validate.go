package mutation

import (
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ValidationResult reports the outcome of a YAML parse check. Line and Column
// are 1-based; they are zero when the parser did not report a position.
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Error  string `json:"error,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

var yamlLineRe = regexp.MustCompile(`line (\d+)`)
var yamlColumnRe = regexp.MustCompile(`column (\d+)`)

// ValidateContent checks that content parses as YAML. Parse position is
// extracted from the parser message when present.
func ValidateContent(content string) ValidationResult {
	var value any
	if err := yaml.Unmarshal([]byte(content), &value); err != nil {
		result := ValidationResult{Error: err.Error()}
		if m := yamlLineRe.FindStringSubmatch(result.Error); m != nil {
			result.Line, _ = strconv.Atoi(m[1])
		}
		if m := yamlColumnRe.FindStringSubmatch(result.Error); m != nil {
			result.Column, _ = strconv.Atoi(m[1])
		}
		return result
	}
	return ValidationResult{Valid: true}
}
