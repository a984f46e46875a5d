package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusKnownCodes(t *testing.T) {
	assert.Equal(t, http.StatusConflict, HTTPStatus(CodeGenerationBusy))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(CodeStorageNotFound))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(CodeFetchTimeout))
}

func TestHTTPStatusUnknownCodeDefaultsInternal(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(Code("NOPE_0000")))
}

func TestNewAndError(t *testing.T) {
	err := New(CodeRenderTemplateError, "bad template")
	assert.Equal(t, "RENDER_3001: bad template", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestWrapUnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(CodeStorageWriteFailed, "write failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "STORAGE_4003")
}

func TestWithDetailDoesNotMutateOriginal(t *testing.T) {
	base := New(CodeAPIBadRequest, "bad request")
	detailed := base.WithDetail("missing field x")

	require.Empty(t, base.Detail)
	assert.Equal(t, "missing field x", detailed.Detail)
	assert.Contains(t, detailed.Error(), "(missing field x)")
}

func TestToResponse(t *testing.T) {
	resp := ToResponse(CodeGenerationBusy, "busy", "retry later")
	assert.Equal(t, CodeGenerationBusy, resp.Error.Code)
	assert.Equal(t, "busy", resp.Error.Message)
	assert.Equal(t, "retry later", resp.Error.Detail)
}
