package feed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"google.golang.org/api/googleapi"
)

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{401, ReasonUnauthorized},
		{403, ReasonForbidden},
		{429, ReasonRateLimited},
		{500, ReasonServerError},
		{503, ReasonServerError},
		{404, ReasonUnknown},
		{400, ReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			if got := ClassifyHTTPStatus(tt.code); got != tt.want {
				t.Errorf("ClassifyHTTPStatus(%d) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"googleapi 401", &googleapi.Error{Code: 401, Message: "Invalid Credentials"}, ReasonUnauthorized},
		{"wrapped googleapi 429", fmt.Errorf("failed to list messages: %w", &googleapi.Error{Code: 429}), ReasonRateLimited},
		{"deadline", fmt.Errorf("failed: %w", context.DeadlineExceeded), ReasonTimeout},
		{"canceled", context.Canceled, ReasonCanceled},
		{"url deadline", &url.Error{Op: "Get", URL: "http://x", Err: context.DeadlineExceeded}, ReasonTimeout},
		{"dial error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, ReasonNetwork},
		{"other", errors.New("boom"), ReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
