package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", Validation("收款地址不能为空"))

	assert.True(t, stdErrors.Is(err, New(CodeValidation, "")))
	assert.False(t, stdErrors.Is(err, New(CodeDecryption, "")))
	assert.True(t, IsValidation(err))
	assert.Equal(t, CodeValidation, CodeOf(err))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("dial tcp: connection refused")
	err := BackendUnavailable(cause, "查询余额失败", WithMetadata("operation", "getBalance"))

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "查询余额失败", err.Message())
	assert.Equal(t, "getBalance", err.Metadata()["operation"])
	assert.Contains(t, err.Error(), "BACKEND_UNAVAILABLE")
}

func TestSimulatable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain network error", stdErrors.New("eof"), true},
		{"backend", BackendUnavailable(nil, ""), true},
		{"timeout", New(CodeTimeout, ""), true},
		{"validation", Validation("bad"), false},
		{"decryption", New(CodeDecryption, ""), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Simulatable(tc.err))
		})
	}
}

func TestAttributesOfUnknownFallsBack(t *testing.T) {
	attr := AttributesOf(Code("NOPE"))
	assert.Equal(t, SeverityCritical, attr.Severity)
}
