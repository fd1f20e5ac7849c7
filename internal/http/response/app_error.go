package response

import (
	"errors"

	"github.com/gin-gonic/gin"
)

// AppError 接口层错误：业务状态码、文案 key 与原始错误
// Key 作为稳定的机器可读错误码随响应返回，Message 为展示文案
type AppError struct {
	Code    int
	Key     string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WrapError 包装错误
func WrapError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewKeyedError 创建带文案 key 的错误
func NewKeyedError(code int, key, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Key:     key,
		Message: message,
		Err:     err,
	}
}

// AsAppError 从错误链中取出 AppError
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Fail 按 AppError 输出错误响应，带 key 时附加 error_key
func Fail(c *gin.Context, appErr *AppError) {
	if appErr == nil {
		Error(c, CodeInternal, "internal error")
		return
	}
	if appErr.Key == "" {
		Error(c, appErr.Code, appErr.Message)
		return
	}
	ErrorWithData(c, appErr.Code, appErr.Message, gin.H{"error_key": appErr.Key})
}
