package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// 错误码与 HTTP 状态码保持一致，便于响应层直接映射
const (
	CodeValidation   = http.StatusBadRequest
	CodeUnauthorized = http.StatusUnauthorized
	CodeForbidden    = http.StatusForbidden
	CodeNotFound     = http.StatusNotFound
	CodeConflict     = http.StatusConflict
	CodeInternal     = http.StatusInternalServerError
	CodeDispatch     = http.StatusBadGateway
)

// FieldError 字段级校验错误
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error represents a custom error with stack trace
type Error struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Err     error        `json:"-"`
	Fields  []FieldError `json:"errors,omitempty"`
	Stack   string       `json:"stack,omitempty"`
	Context []KeyValue   `json:"context,omitempty"`
}

// KeyValue represents a key-value pair for context
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (e *Error) Error() string {
	if e.Message != "" && e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithCode creates a new error with code
func WithCode(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStack(),
	}
}

// WithCodef creates a new error with code and formatted message
func WithCodef(code int, format string, args ...interface{}) *Error {
	return WithCode(code, fmt.Sprintf(format, args...))
}

// Wrap 包装底层错误，错误码沿用底层 *Error 的错误码，否则为 CodeInternal
func Wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    GetCode(err),
		Message: message,
		Err:     err,
		Stack:   captureStack(),
	}
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// Validation 创建带字段列表的校验错误
func Validation(fields []FieldError) *Error {
	return &Error{
		Code:    CodeValidation,
		Message: "Validation failed",
		Fields:  fields,
	}
}

// NotFound 资源不存在
func NotFound(message string) *Error { return WithCode(CodeNotFound, message) }

// Forbidden 无权限
func Forbidden(message string) *Error { return WithCode(CodeForbidden, message) }

// Internal 包装存储等非预期错误
func Internal(err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    CodeInternal,
		Message: message,
		Err:     err,
		Stack:   captureStack(),
	}
}

// New creates a new error
func New(message string) *Error {
	return &Error{
		Message: message,
		Stack:   captureStack(),
	}
}

// WithContext adds context to an error
func (e *Error) WithContext(key, value string) *Error {
	if e == nil {
		return nil
	}

	newErr := *e
	newErr.Context = make([]KeyValue, len(e.Context), len(e.Context)+1)
	copy(newErr.Context, e.Context)
	newErr.Context = append(newErr.Context, KeyValue{Key: key, Value: value})
	return &newErr
}

func captureStack() string {
	buf := make([]byte, 1024)
	n := runtime.Stack(buf, false)
	lines := strings.Split(string(buf[:n]), "\n")
	if len(lines) > 6 {
		lines = lines[6:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// GetCode 沿错误链查找第一个非零错误码，找不到时返回 CodeInternal
func GetCode(err error) int {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			break
		}
		if e.Code != 0 {
			return e.Code
		}
		err = e.Err
	}
	return CodeInternal
}

// GetFields 返回校验错误的字段列表
func GetFields(err error) []FieldError {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// GetMessage 返回对外可见的消息，不包含底层错误
func GetMessage(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// Is checks if the error chain contains the target error
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Cause returns the underlying error
func Cause(err error) error {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Err != nil {
			err = e.Err
		} else {
			return err
		}
	}
	return err
}

// Format implements fmt.Formatter
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s", e.Error())
			if e.Stack != "" {
				fmt.Fprintf(s, "\n%s", e.Stack)
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprintf(s, "%s", e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
