package tushare

import (
	"errors"
	"fmt"
	"strings"
)

// VendorError wraps a failed vendor call after retries are exhausted.
type VendorError struct {
	API  string // endpoint name, e.g. "daily"
	Code int    // vendor response code, 0 when transport-level
	Msg  string
	Err  error
}

func (e *VendorError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("tushare %s failed: code=%d msg=%s", e.API, e.Code, e.Msg)
	}
	return fmt.Sprintf("tushare %s failed: %s", e.API, e.Msg)
}

func (e *VendorError) Unwrap() error {
	return e.Err
}

// AsVendorError extracts a *VendorError from an error chain.
func AsVendorError(err error) (*VendorError, bool) {
	var ve *VendorError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// isRetryable reports whether a vendor-level response code is worth
// retrying. Auth and permission failures are fatal; throttling and
// internal errors are transient.
func isRetryable(code int, msg string) bool {
	switch code {
	case 2002: // token invalid / no permission
		return false
	}
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "token") {
		return false
	}
	// 每分钟/每天调用频次 limit messages and generic failures
	return true
}
