package exchange

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

const (
	// 读接口重试次数和退避参数，作为行为契约写死
	maxRetries = 3
	retryBase  = time.Second
	retryCap   = 5 * time.Second
)

// 各适配器共用的REST客户端
type restClient struct {
	venue string
	hc    *http.Client
}

func newRestClient(venue string) *restClient {
	return &restClient{
		venue: venue,
		hc:    &http.Client{Timeout: 10 * time.Second},
	}
}

// do 单次请求，返回响应体和状态码
// 网络失败返回err；HTTP层面有响应时由调用方按状态码处理
func (c *restClient) do(ctx context.Context, method, url string, header http.Header, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

// getRetry 幂等读请求，最多重试3次，线性退避：1s、2s、3s，单次不超过5s
// 写请求（下单/撤单）不允许走这里
func (c *restClient) getRetry(ctx context.Context, url string, header http.Header) ([]byte, int, error) {
	var lastErr error
	var lastStatus int
	for i := 0; i < maxRetries; i++ {
		data, status, err := c.do(ctx, http.MethodGet, url, header, nil)
		if err == nil && status < 500 {
			return data, status, nil
		}
		if err != nil {
			lastErr = err
		} else {
			e := NewUnavailable(c.venue, nil)
			e.HTTPStatus = status
			lastErr = e
		}
		lastStatus = status

		if i == maxRetries-1 {
			break
		}
		delay := time.Duration(i+1) * retryBase
		if delay > retryCap {
			delay = retryCap
		}
		select {
		case <-ctx.Done():
			return nil, lastStatus, NewUnavailable(c.venue, ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, lastStatus, NewUnavailable(c.venue, lastErr)
}
