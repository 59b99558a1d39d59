package errs

import (
	"errors"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// ===== 错误码 =====
//
// The client distinguishes four caller-visible failure classes plus two
// internal ones. Socket-level failures are recovered by the connection
// manager and never reach callers as CodeError values.
const (
	CodeAuth     = 1101 // invalid/expired token; session layer must re-login
	CodeNetwork  = 1102 // transient transport failure; retry is safe
	CodeNotFound = 1103 // conversation/message missing; render empty state
	CodeConflict = 1104 // state already changed server-side (double accept)
	CodeTimeout  = 1105 // request exceeded the configured deadline
	CodeClosed   = 1106 // operation against a closed client/manager
)

var (
	ErrAuth     = NewCodeError(CodeAuth, "auth failed")
	ErrNetwork  = NewCodeError(CodeNetwork, "network error")
	ErrNotFound = NewCodeError(CodeNotFound, "not found")
	ErrConflict = NewCodeError(CodeConflict, "conflict")
	ErrTimeout  = NewCodeError(CodeTimeout, "timeout")
	ErrClosed   = NewCodeError(CodeClosed, "closed")
)

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) WithDetail(detail string) *CodeError {
	var d string
	if e.Detail == "" {
		d = detail
	} else {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

// Is lets errors.Is match any CodeError carrying the same code, regardless
// of detail text or wrapping depth.
func (e *CodeError) Is(err error) bool {
	var ce *CodeError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == e.Code
}

// Wrap attaches msg and a stack to err.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, msg)
}

func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrapf(err, format, args...)
}

func code(err error, want int) bool {
	var ce *CodeError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == want
}

func IsAuth(err error) bool     { return code(err, CodeAuth) }
func IsNetwork(err error) bool  { return code(err, CodeNetwork) }
func IsNotFound(err error) bool { return code(err, CodeNotFound) }
func IsConflict(err error) bool { return code(err, CodeConflict) }
func IsTimeout(err error) bool  { return code(err, CodeTimeout) }
func IsClosed(err error) bool   { return code(err, CodeClosed) }
