package errors

import (
	"errors"
	"fmt"

	"spreadflow/pkg/errors/ecode"
)

// 携带业务错误码的error，handler层通过DecodeErr还原code和提示
type CodedError struct {
	Code    int
	Message string
	cause   error
}

func (e *CodedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("code=%d msg=%s cause=%v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("code=%d msg=%s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error { return e.cause }

// New 创建一个带错误码的error
func New(code int, msg string) error {
	if msg == "" {
		msg = ecode.Message(code)
	}
	return &CodedError{Code: code, Message: msg}
}

// Wrap 包装底层错误并附加错误码
func Wrap(err error, code int, msg string) error {
	if msg == "" {
		msg = ecode.Message(code)
	}
	return &CodedError{Code: code, Message: msg, cause: err}
}

// DecodeErr 解出错误码和提示信息，nil表示成功
func DecodeErr(err error) (int, string) {
	if err == nil {
		return ecode.Success, ecode.Message(ecode.Success)
	}
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code, ce.Message
	}
	return ecode.ErrInternal, err.Error()
}

// IsCode 判断err是否携带指定错误码
func IsCode(err error, code int) bool {
	c, _ := DecodeErr(err)
	return c == code
}
