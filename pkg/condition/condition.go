// Package condition implements branch condition evaluation over execution
// context variables.
package condition

import (
	"regexp"
	"strings"

	"github.com/chatflow-io/chatflow/pkg/models"
)

// Evaluate compares the named context variable against the condition value
// and returns the branch to follow. A missing variable evaluates as the
// empty string. A regex condition that fails to compile evaluates to false.
// When the condition is case insensitive, string predicates fold both sides
// and regex patterns get the (?i) flag over the original variable.
func Evaluate(data *models.ConditionNodeData, execCtx models.ExecutionContext) bool {
	variable := execCtx.StringValue(data.VariableName())
	value := data.Value

	conditionType := data.ConditionType
	if conditionType == models.ConditionCustom {
		conditionType = models.ConditionContains
	}

	if !data.IsCaseSensitive() {
		if conditionType == models.ConditionRegex {
			value = "(?i)" + value
		} else {
			variable = strings.ToLower(variable)
			value = strings.ToLower(value)
		}
	}

	switch conditionType {
	case models.ConditionContains:
		return strings.Contains(variable, value)
	case models.ConditionEquals:
		return variable == value
	case models.ConditionStartsWith:
		return strings.HasPrefix(variable, value)
	case models.ConditionEndsWith:
		return strings.HasSuffix(variable, value)
	case models.ConditionRegex:
		re, err := regexp.Compile(value)
		if err != nil {
			return false
		}

		return re.MatchString(variable)
	default:
		return false
	}
}
