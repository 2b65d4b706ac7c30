package dataapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"capacityplanner/internal/metrics"
	"capacityplanner/internal/model"
)

// 数据接口路径
const (
	PathForecast      = "/capacityTop"
	PathLedger        = "/capacityBottom"
	PathDemandOptions = "/newRecordCTBNameDropdDown"
	PathSaveMain      = "/saveMainTableData"
	PathSaveLedger    = "/saveCTBTableData"
)

// Options 客户端配置
type Options struct {
	BaseURL         string
	Timeout         time.Duration
	RatePerSecond   float64 // <= 0 不限速
	Burst           int
	BreakerFailures uint32 // 连续失败多少次后熔断，0 使用默认值 5
	BreakerTimeout  time.Duration
	HTTPClient      *http.Client
	Metrics         *metrics.Registry
}

// StatusError 数据接口返回非 2xx
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Endpoint, e.Code)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Endpoint, e.Code, e.Body)
}

// Client 外部数据接口客户端
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Registry
}

// New 创建客户端
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		return nil, errors.New("data api base url is empty")
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	breakerTimeout := opts.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = 30 * time.Second
	}

	c := &Client{
		base:    base,
		http:    hc,
		limiter: rate.NewLimiter(limit, burst),
		metrics: opts.Metrics,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "data-api",
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// 4xx 是请求本身的问题，不计入熔断
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("数据接口熔断状态变化")
			c.metrics.SetBreakerState(name, int(to))
		},
	})
	return c, nil
}

// do 发送请求并返回响应体，请求先经过限速再经过熔断器
func (c *Client) do(ctx context.Context, method, path string, in any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	start := time.Now()
	res, err := c.breaker.Execute(func() (interface{}, error) {
		var body io.Reader
		if in != nil {
			buf, err := json.Marshal(in)
			if err != nil {
				return nil, fmt.Errorf("failed to encode request: %w", err)
			}
			body = bytes.NewReader(buf)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &StatusError{Endpoint: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		}
		return data, nil
	})

	status := "ok"
	var se *StatusError
	switch {
	case errors.As(err, &se):
		status = strconv.Itoa(se.Code)
	case err != nil:
		status = "error"
	}
	c.metrics.RecordAPIRequest(path, status, time.Since(start))

	if err != nil {
		log.Debug().Err(err).Str("method", method).Str("path", path).Msg("数据接口请求失败")
		if se != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return res.([]byte), nil
}

// LoadForecast 读取预测表
func (c *Client) LoadForecast(ctx context.Context) ([]model.ForecastRow, error) {
	data, err := c.do(ctx, http.MethodGet, PathForecast, nil)
	if err != nil {
		return nil, err
	}
	return decodeForecastRows(data)
}

// LoadLedger 读取需求行
func (c *Client) LoadLedger(ctx context.Context) ([]model.ForecastRow, error) {
	data, err := c.do(ctx, http.MethodGet, PathLedger, nil)
	if err != nil {
		return nil, err
	}
	return decodeLedgerRows(data)
}

// LoadDemandOptions 读取新增需求行可选名称
func (c *Client) LoadDemandOptions(ctx context.Context) ([]model.DemandOption, error) {
	data, err := c.do(ctx, http.MethodGet, PathDemandOptions, nil)
	if err != nil {
		return nil, err
	}
	return decodeDemandOptions(data)
}

// SaveMainCell 保存主表单元格
func (c *Client) SaveMainCell(ctx context.Context, p model.MainCellPayload) error {
	_, err := c.do(ctx, http.MethodPost, PathSaveMain, p)
	return err
}

// SaveLedgerCell 保存需求表单元格
func (c *Client) SaveLedgerCell(ctx context.Context, p model.LedgerCellPayload) error {
	_, err := c.do(ctx, http.MethodPost, PathSaveLedger, p)
	return err
}
