package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes configuration errors.
type ErrorCode string

const (
	CodeNotFound ErrorCode = "CONFIG_NOT_FOUND"
	CodeParse    ErrorCode = "CONFIG_PARSE"
	CodeInvalid  ErrorCode = "CONFIG_INVALID"
)

// UserError is a configuration error meant to be shown to the person running
// catalogd, with a hint on how to fix it.
type UserError struct {
	Code       ErrorCode
	Message    string
	Context    string // file, file:line or field name
	Suggestion string
	Underlying error
}

func (e *UserError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s (at %s)", e.Message, e.Context)
	}
	return e.Message
}

func (e *UserError) Unwrap() error {
	return e.Underlying
}

// Is matches any UserError with the same code.
func (e *UserError) Is(target error) bool {
	t, ok := target.(*UserError)
	return ok && t.Code == e.Code
}

// Format renders the error with its location and suggestion on separate lines.
func (e *UserError) Format() string {
	lines := []string{fmt.Sprintf("[%s] %s", e.Code, e.Message)}
	if e.Context != "" {
		lines = append(lines, "  Location: "+e.Context)
	}
	if e.Suggestion != "" {
		lines = append(lines, "  Suggestion: "+e.Suggestion)
	}
	return strings.Join(lines, "\n")
}

// ValidationErrors collects every invalid field of a configuration.
type ValidationErrors []*UserError

func (v *ValidationErrors) add(field, message, suggestion string) {
	*v = append(*v, &UserError{
		Code:       CodeInvalid,
		Message:    fmt.Sprintf("%s: %s", field, message),
		Context:    field,
		Suggestion: suggestion,
	})
}

func (v ValidationErrors) Error() string {
	if len(v) == 1 {
		return v[0].Error()
	}
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d invalid settings: %s", len(v), strings.Join(msgs, "; "))
}

// Format renders each error as UserError.Format does, separated by blank lines.
func (v ValidationErrors) Format() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Format()
	}
	return fmt.Sprintf("invalid configuration (%d):\n\n%s", len(v), strings.Join(parts, "\n\n"))
}

func (v ValidationErrors) orNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// NewConfigNotFoundError reports a configuration file that does not exist.
func NewConfigNotFoundError(path string) *UserError {
	return &UserError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("configuration file not found: %s", path),
		Context:    path,
		Suggestion: "Check the --config path, or omit it to use the defaults.",
	}
}

// NewConfigParseError reports malformed YAML, pointing at the line when the
// decoder names one.
func NewConfigParseError(path string, err error) *UserError {
	location := path
	if _, rest, ok := strings.Cut(err.Error(), "line "); ok {
		line, _, _ := strings.Cut(rest, ":")
		location = fmt.Sprintf("%s:%s", path, line)
	}
	return &UserError{
		Code:       CodeParse,
		Message:    "failed to parse configuration file",
		Context:    location,
		Suggestion: "Check the YAML syntax. Durations are written like 30s, 5m or 1h.",
		Underlying: err,
	}
}

// GetUserError extracts a UserError from an error chain, if present.
func GetUserError(err error) *UserError {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue
	}
	return nil
}
