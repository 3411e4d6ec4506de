package feed

import (
	"context"
	"errors"
	"net"

	"google.golang.org/api/googleapi"
)

// 取得失敗の理由ラベル。SourceError.Reasonとメトリクスのラベルに使う。
const (
	ReasonUnauthorized = "unauthorized"
	ReasonForbidden    = "forbidden"
	ReasonRateLimited  = "rate_limited"
	ReasonServerError  = "server_error"
	ReasonTimeout      = "timeout"
	ReasonCanceled     = "canceled"
	ReasonNetwork      = "network"
	ReasonUnknown      = "unknown"
)

// ClassifyHTTPStatus はHTTPステータスコードを理由ラベルに分類する。
func ClassifyHTTPStatus(statusCode int) string {
	switch {
	case statusCode == 401:
		return ReasonUnauthorized
	case statusCode == 403:
		return ReasonForbidden
	case statusCode == 429:
		return ReasonRateLimited
	case statusCode >= 500:
		return ReasonServerError
	default:
		return ReasonUnknown
	}
}

// ClassifyError は取得時のエラーを理由ラベルに分類する。
// Google APIのエラーはステータスコードで、それ以外はコンテキストと通信エラーで判定する。
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return ClassifyHTTPStatus(apiErr.Code)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ReasonTimeout
		}
		return ReasonNetwork
	}
	return ReasonUnknown
}
