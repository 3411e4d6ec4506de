package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// NewIdPHTTPClient はIdP（トークンエンドポイント、JWKS）呼び出し用のHTTPクライアントを生成する。
// 通信エラーのみ最大2回リトライし、HTTPステータスによるリトライはしない。
// 認可コードは1回しか使えないため、応答を受け取った後の再送は行わない。
func NewIdPHTTPClient(logger *slog.Logger, timeout time.Duration) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = timeout
	rc.Logger = logger
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return err != nil, nil
	}
	return rc.StandardClient()
}
