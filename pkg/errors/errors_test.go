package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetCodeWalksChain(t *testing.T) {
	base := NotFound("report not found")
	wrapped := Wrap(base, "update report")
	assert.Equal(t, CodeNotFound, GetCode(wrapped))
	assert.Equal(t, CodeNotFound, GetCode(fmt.Errorf("outer: %w", base)))
	assert.Equal(t, CodeInternal, GetCode(stderrors.New("plain")))
}

func TestInternalKeepsCauseOutOfMessage(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Internal(cause, "Server error")
	assert.Equal(t, "Server error", GetMessage(err))
	assert.Equal(t, cause, Cause(err))
	assert.True(t, Is(err, cause))
}

func TestValidationFields(t *testing.T) {
	err := Validation([]FieldError{{Field: "type", Message: "Invalid emergency type"}})
	assert.Equal(t, CodeValidation, GetCode(err))
	assert.Len(t, GetFields(Wrap(err, "raise")), 1)
}

func TestWithContextDoesNotMutate(t *testing.T) {
	base := WithCode(CodeForbidden, "not owner")
	ctx := base.WithContext("reportId", "r-1")
	assert.Empty(t, base.Context)
	assert.Equal(t, []KeyValue{{Key: "reportId", Value: "r-1"}}, ctx.Context)
}
