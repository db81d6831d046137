package services

import (
	"regexp"

	"github.com/28devcom/whats-suite-feed-nps-sub002/pkg/models"
)

var templateVariablePattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// RenderTemplate replaces {{variable}} placeholders in a template body with
// the target's variable values. Unknown placeholders are left untouched so
// operators can spot gaps in the target data.
func RenderTemplate(content string, variables models.TargetVariables) string {
	if len(variables) == 0 {
		return content
	}

	return templateVariablePattern.ReplaceAllStringFunc(content, func(match string) string {
		name := templateVariablePattern.FindStringSubmatch(match)[1]
		if value, ok := variables[name]; ok {
			return value
		}
		return match
	})
}
