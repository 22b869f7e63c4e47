package xerrors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestWrap 测试错误包装与错误链
func TestWrap(t *testing.T) {
	base := New("connection refused")
	wrapped := Wrap(base, "dial registry")

	assert.True(t, Is(wrapped, base))
	assert.Contains(t, wrapped.Error(), "dial registry")

	assert.Nil(t, Wrap(nil, "ignored"))
}

// TestWrapf 测试格式化包装
func TestWrapf(t *testing.T) {
	base := New("timeout")
	wrapped := Wrapf(base, "connector[%s]: send failed", "storage")

	assert.True(t, Is(wrapped, base))
	assert.Contains(t, wrapped.Error(), "connector[storage]")
}

// TestWithCode 测试错误码提取
func TestWithCode(t *testing.T) {
	base := New("record missing")
	coded := WithCode(base, "NOT_FOUND")

	assert.Equal(t, "NOT_FOUND", GetCode(coded))
	assert.True(t, Is(coded, base))

	var ce *CodedError
	assert.True(t, As(coded, &ce))
	assert.Equal(t, "NOT_FOUND", ce.Code)

	// 无错误码时返回空串
	assert.Equal(t, "", GetCode(base))
	assert.Nil(t, WithCode(nil, "X"))
}
