package assistant

import (
	"net"
	"net/http"
	"time"

	"finadvisor/internal/infra/config"
)

// Default pool sizing. Chat traffic goes to a single host and each request
// issues several short calls, so a small warm pool is enough.
const (
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 20
	defaultIdleConnTimeout     = 90 * time.Second

	defaultConnTimeout = 30 * time.Second
	defaultRespTimeout = 60 * time.Second
)

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// NewTransport creates a pooled http.Transport for the assistant service.
func NewTransport(connTimeout, respTimeout time.Duration, pool config.PoolConfig) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   orDefault(connTimeout, defaultConnTimeout),
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: orDefault(respTimeout, defaultRespTimeout),
		MaxIdleConns:          orDefault(pool.MaxIdleConns, defaultMaxIdleConns),
		MaxIdleConnsPerHost:   orDefault(pool.MaxIdleConnsPerHost, defaultMaxIdleConnsPerHost),
		MaxConnsPerHost:       orDefault(pool.MaxConnsPerHost, defaultMaxConnsPerHost),
		IdleConnTimeout:       orDefault(pool.IdleConnTimeout, defaultIdleConnTimeout),
		ForceAttemptHTTP2:     true,
	}
}

// NewHTTPClient creates the *http.Client used for every assistant call. Each
// individual call is bounded by conn+resp timeout; the overall run is bounded
// separately by the run executor.
func NewHTTPClient(cfg config.AssistantConfig) *http.Client {
	conn := orDefault(cfg.ConnTimeout, defaultConnTimeout)
	resp := orDefault(cfg.RespTimeout, defaultRespTimeout)
	return &http.Client{
		Transport: NewTransport(conn, resp, cfg.Pool),
		Timeout:   conn + resp,
	}
}
