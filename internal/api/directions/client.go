package directions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/buskru/internal/models"
)

// ErrETAService 远程 ETA 服务失败
var ErrETAService = errors.New("eta service error")

// DefaultURL Google Directions 接口地址
const DefaultURL = "https://maps.googleapis.com/maps/api/directions/json"

// Client 路线规划客户端，用于获取剩余距离和到达时间
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// Response 路线规划响应
type Response struct {
	Status       string  `json:"status"`        // "OK" 成功
	ErrorMessage string  `json:"error_message"` // 失败原因
	Routes       []Route `json:"routes"`
}

// Route 路线
type Route struct {
	Legs []Leg `json:"legs"`
}

// Leg 路段
type Leg struct {
	Distance Value `json:"distance"` // 米
	Duration Value `json:"duration"` // 秒
}

// Value 数值和可读文本
type Value struct {
	Text  string  `json:"text"`
	Value float64 `json:"value"`
}

// NewClient 创建路线规划客户端
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
		now:    time.Now,
	}
}

// SetClock 替换时钟
func (c *Client) SetClock(now func() time.Time) {
	c.now = now
}

// FetchETA 查询驾车路线的剩余距离(km)、剩余时间(分钟)和预计到达时间
func (c *Client) FetchETA(ctx context.Context, origin, destination models.Coordinate) (*models.ETA, error) {
	q := url.Values{}
	q.Set("origin", fmt.Sprintf("%f,%f", origin.Lat, origin.Lng))
	q.Set("destination", fmt.Sprintf("%f,%f", destination.Lat, destination.Lng))
	q.Set("mode", "driving")
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrETAService, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %v", ErrETAService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrETAService, resp.StatusCode, string(body))
	}

	var result Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrETAService, err)
	}

	if result.Status != "OK" {
		return nil, fmt.Errorf("%w: api status=%s message=%s", ErrETAService, result.Status, result.ErrorMessage)
	}
	if len(result.Routes) == 0 || len(result.Routes[0].Legs) == 0 {
		return nil, fmt.Errorf("%w: no route found", ErrETAService)
	}

	leg := result.Routes[0].Legs[0]
	duration := time.Duration(leg.Duration.Value * float64(time.Second))

	eta := &models.ETA{
		RemainingDistance: leg.Distance.Value / 1000,
		RemainingTime:     int(math.Round(leg.Duration.Value / 60)),
		EstimatedArrival:  models.FormatTimestamp(c.now().Add(duration)),
		Source:            models.ETASourceRemote,
	}

	c.logger.Debug("Remote ETA fetched",
		zap.Float64("distance_km", eta.RemainingDistance),
		zap.Int("minutes", eta.RemainingTime))

	return eta, nil
}
