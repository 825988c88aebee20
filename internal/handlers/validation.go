package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/groupchoice/pkg/errors"
	"github.com/charlesng35/groupchoice/pkg/response"
	appValidator "github.com/charlesng35/groupchoice/pkg/validator"
)

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When validation fails, an error response is automatically written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		var fields appValidator.FieldErrors
		if errors.As(err, &fields) {
			response.ErrorWithDetails(c, appErrors.NewBadRequest(formatValidationError(fields)), fields)
			return false
		}
		response.Error(c, appErrors.NewBadRequest("invalid request payload"))
		return false
	}

	return true
}

func formatValidationError(failures appValidator.FieldErrors) string {
	if len(failures) == 0 {
		return "invalid request payload"
	}

	messages := make([]string, 0, len(failures))
	for _, failure := range failures {
		field := prettifyFieldName(failure.Field)
		switch failure.Tag {
		case "required", "notblank":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "email":
			messages = append(messages, fmt.Sprintf("%s must be a valid email address", field))
		case "url", "httpurl":
			messages = append(messages, fmt.Sprintf("%s must be a valid http(s) URL", field))
		case "min":
			messages = append(messages, fmt.Sprintf("%s must be at least %s", field, failure.Param))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s", field, failure.Param))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of: %s", field, failure.Param))
		case "uuid", "uuid4":
			messages = append(messages, fmt.Sprintf("%s must be a valid UUID", field))
		default:
			if failure.Param != "" {
				messages = append(messages, fmt.Sprintf("%s failed validation: %s=%s", field, failure.Tag, failure.Param))
			} else {
				messages = append(messages, fmt.Sprintf("%s failed validation: %s", field, failure.Tag))
			}
		}
	}
	return strings.Join(messages, "; ")
}

func prettifyFieldName(name string) string {
	if name == "" {
		return "field"
	}
	name = strings.ReplaceAll(name, "_", " ")
	return strings.ToLower(name)
}
