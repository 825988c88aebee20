package validator

import (
	"errors"
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// FieldError describes one failed rule. Field is the JSON path of the value,
// for example "choices[2].text".
type FieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}

func (f FieldError) String() string {
	if f.Param == "" {
		return f.Field + " failed on " + f.Tag
	}
	return f.Field + " failed on " + f.Tag + "=" + f.Param
}

// FieldErrors is returned by ValidateStruct when at least one rule fails.
type FieldErrors []FieldError

func (v FieldErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	var b strings.Builder
	for i, f := range v {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f.String())
	}
	return b.String()
}

// ValidateStruct runs the validate tags of s. Rule failures come back as
// FieldErrors; anything else (a nil or non-struct value) is returned as is.
func ValidateStruct(s interface{}) error {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}

	failures := make(FieldErrors, len(ve))
	for i, fe := range ve {
		failures[i] = FieldError{Field: jsonPath(fe), Tag: fe.Tag(), Param: fe.Param()}
	}
	return failures
}

// RegisterValidation adds a custom rule to the shared validator.
func RegisterValidation(tag string, fn validator.Func) error {
	return instance().RegisterValidation(tag, fn)
}

// jsonPath strips the root struct name from the namespace.
func jsonPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func jsonTagName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}

// notBlank rejects whitespace-only strings. Other kinds always pass.
func notBlank(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.String {
		return true
	}
	return strings.TrimSpace(field.String()) != ""
}

// httpURL accepts absolute http and https links with a host, which is all a
// choice link may point to.
func httpURL(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.String {
		return false
	}
	u, err := url.Parse(field.String())
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonTagName)
		_ = validate.RegisterValidation("notblank", notBlank)
		_ = validate.RegisterValidation("httpurl", httpURL)
	})
	return validate
}
