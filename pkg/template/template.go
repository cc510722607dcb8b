// Package template renders {{variable}} placeholders in message content
// from the execution context.
package template

import (
	"regexp"

	"github.com/chatflow-io/chatflow/pkg/models"
)

var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Interpolate replaces every {{name}} token with the stringified context
// value for name. Tokens whose name is not present in the context are left
// verbatim so typos surface in the delivered message instead of vanishing.
func Interpolate(content string, execCtx models.ExecutionContext) string {
	return placeholderPattern.ReplaceAllStringFunc(content, func(token string) string {
		name := placeholderPattern.FindStringSubmatch(token)[1]
		if _, ok := execCtx[name]; !ok {
			return token
		}

		return execCtx.StringValue(name)
	})
}
