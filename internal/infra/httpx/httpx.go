package httpx

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultRetryMax = 2

	// UserAgent 附加在所有请求上（调用方已设置时不覆盖）。
	UserAgent = "vidcollect/1"
)

// Transport 把“固定 UA + 代理 + 有界重试”固化为统一策略。
//
// 只有可重放的请求（GET/HEAD 且无 body）会重试；上传（PUT）只尝试一次，
// 由 SDK 自身的重试器决定是否重发。
type Transport struct {
	Base *http.Transport

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	RetryMax int
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 || !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		r := req.Clone(req.Context())
		if r.Header.Get("User-Agent") == "" {
			r.Header.Set("User-Agent", UserAgent)
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// NewUploadClient 构造用于对象存储上传的 HTTP client。
//
// 规则：
// - proxyURL 为空：遵循 HTTP(S)_PROXY 环境变量
// - proxyURL 非空：必须是 http/https/socks5 URL，所有请求走该代理
// - 不设置整体 Timeout：大文件上传耗时不可预估，取消交给 ctx
func NewUploadClient(proxyURL string) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   4,
	}

	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL != "" {
		u, err := ParseProxyURL(proxyURL)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(u)
	}

	return &http.Client{
		Transport: &Transport{Base: base, RetryMax: defaultRetryMax},
	}, nil
}

// ParseProxyURL 校验代理地址（配置阶段与构造 client 时共用）。
func ParseProxyURL(s string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, errors.New("代理必须是 http/https/socks5 URL：" + s)
	}
	if u.Host == "" {
		return nil, errors.New("代理缺少 host：" + s)
	}
	return u, nil
}
