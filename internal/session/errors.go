package session

import "fmt"

// 对外稳定错误码，HTTP层据此映射状态码
const (
	CodeSessionInvalid   = "SESSION_INVALID"
	CodeSessionExpired   = "SESSION_EXPIRED"
	CodeSessionConflict  = "SESSION_CONFLICT"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeNotReady         = "NOT_READY"
)

// CodedError 携带稳定错误码的业务错误
type CodedError struct {
	Code    string
	Message string
}

func (e *CodedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewCodedError 创建业务错误
func NewCodedError(code, format string, args ...interface{}) *CodedError {
	return &CodedError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func invalidErr(format string, args ...interface{}) *CodedError {
	return NewCodedError(CodeSessionInvalid, format, args...)
}

func expiredErr(format string, args ...interface{}) *CodedError {
	return NewCodedError(CodeSessionExpired, format, args...)
}

func conflictErr(format string, args ...interface{}) *CodedError {
	return NewCodedError(CodeSessionConflict, format, args...)
}

func validationErr(format string, args ...interface{}) *CodedError {
	return NewCodedError(CodeValidationFailed, format, args...)
}
