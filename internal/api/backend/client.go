package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/langchou/buskru/internal/models"
)

var (
	// ErrParse 响应结构不符合预期
	ErrParse = errors.New("backend response parse error")
	// ErrUnauthorized 令牌缺失或已失效
	ErrUnauthorized = errors.New("backend unauthorized")
)

// APIError 后端返回 success=false
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend error: status=%d message=%s", e.StatusCode, e.Message)
}

// APIResponse 后端统一响应结构
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// LoginResult 登录响应数据
type LoginResult struct {
	Token string      `json:"token"`
	Crew  models.Crew `json:"kru"`
}

// FinishRequest 结束行程请求
type FinishRequest struct {
	TripID          int64   `json:"perjalanan_id"`
	TotalPassengers int     `json:"total_penumpang"`
	DistanceKm      float64 `json:"jarak_tempuh"`
	DurationMinutes int     `json:"durasi_menit"`
	Note            string  `json:"catatan"`
}

// 后端使用的路况取值
var conditionWire = map[models.Condition]string{
	models.ConditionSmooth:    "lancar",
	models.ConditionCongested: "macet",
	models.ConditionBreakdown: "mogok",
}

// ConditionToWire 路况转换为后端取值
func ConditionToWire(c models.Condition) (string, bool) {
	v, ok := conditionWire[c]
	return v, ok
}

// ConditionFromWire 后端取值转换为路况
func ConditionFromWire(s string) (models.Condition, bool) {
	for k, v := range conditionWire {
		if v == s {
			return k, true
		}
	}
	return "", false
}

// Client 乘务后端 API 客户端
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger

	mu    sync.RWMutex
	token string
}

// NewClient 创建后端客户端
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// SetToken 设置认证令牌
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token 当前令牌
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// doRequest 执行请求并解码响应信封
func doRequest[T any](ctx context.Context, c *Client, method, path string, payload interface{}, auth bool) (T, error) {
	var zero T

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return zero, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return zero, fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if auth {
		token := c.Token()
		if token == "" {
			return zero, ErrUnauthorized
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return zero, ErrUnauthorized
	}

	var apiResp APIResponse[T]
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return zero, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		c.logger.Debug("Backend response not parseable",
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Error(err))
		return zero, fmt.Errorf("%w: %s: %v", ErrParse, path, err)
	}

	if !apiResp.Success {
		return zero, &APIError{StatusCode: resp.StatusCode, Message: apiResp.Message}
	}
	return apiResp.Data, nil
}

// Login 登录并保存令牌
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	result, err := doRequest[*LoginResult](ctx, c, http.MethodPost, "/api/kru/login", map[string]string{
		"username": username,
		"password": password,
	}, false)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if result == nil || result.Token == "" || result.Crew.ID == 0 {
		return nil, fmt.Errorf("login: %w: missing token or crew", ErrParse)
	}

	c.SetToken(result.Token)
	return result, nil
}

// Logout 注销并清除令牌
func (c *Client) Logout(ctx context.Context) error {
	_, err := doRequest[json.RawMessage](ctx, c, http.MethodPost, "/api/kru/logout", nil, true)
	c.SetToken("")
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// ListVehicles 获取可用车辆
func (c *Client) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	vehicles, err := doRequest[[]models.Vehicle](ctx, c, http.MethodGet, "/api/kru/armada", nil, true)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	return vehicles, nil
}

// ListRoutes 获取线路
func (c *Client) ListRoutes(ctx context.Context) ([]models.Route, error) {
	routes, err := doRequest[[]models.Route](ctx, c, http.MethodGet, "/api/kru/rute", nil, true)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	return routes, nil
}

// StartTrip 开始行程
func (c *Client) StartTrip(ctx context.Context, vehicleID, routeID int64) (*models.Trip, error) {
	trip, err := doRequest[*models.Trip](ctx, c, http.MethodPost, "/api/kru/perjalanan/mulai", map[string]int64{
		"armada_id": vehicleID,
		"rute_id":   routeID,
	}, true)
	if err != nil {
		return nil, fmt.Errorf("start trip: %w", err)
	}
	if trip == nil {
		return nil, fmt.Errorf("start trip: %w: empty data", ErrParse)
	}
	return trip, nil
}

// ActiveTrip 当前进行中的行程，没有时返回 nil
func (c *Client) ActiveTrip(ctx context.Context) (*models.Trip, error) {
	trip, err := doRequest[*models.Trip](ctx, c, http.MethodGet, "/api/kru/perjalanan/aktif", nil, true)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("active trip: %w", err)
	}
	return trip, nil
}

// UpdatePassengers 同步当前乘客数
func (c *Client) UpdatePassengers(ctx context.Context, tripID int64, count int) (*models.Trip, error) {
	trip, err := doRequest[*models.Trip](ctx, c, http.MethodPost, "/api/kru/perjalanan/penumpang", map[string]int64{
		"perjalanan_id":   tripID,
		"total_penumpang": int64(count),
	}, true)
	if err != nil {
		return nil, fmt.Errorf("update passengers: %w", err)
	}
	return trip, nil
}

// UpdateCondition 同步路况
func (c *Client) UpdateCondition(ctx context.Context, tripID int64, condition models.Condition) (*models.Trip, error) {
	wire, ok := ConditionToWire(condition)
	if !ok {
		return nil, fmt.Errorf("update condition: unknown condition %q", condition)
	}
	trip, err := doRequest[*models.Trip](ctx, c, http.MethodPost, "/api/kru/perjalanan/kondisi", map[string]interface{}{
		"perjalanan_id": tripID,
		"kondisi":       wire,
	}, true)
	if err != nil {
		return nil, fmt.Errorf("update condition: %w", err)
	}
	return trip, nil
}

// FinishTrip 结束行程
func (c *Client) FinishTrip(ctx context.Context, req FinishRequest) error {
	_, err := doRequest[json.RawMessage](ctx, c, http.MethodPost, "/api/kru/perjalanan/selesai", req, true)
	if err != nil {
		return fmt.Errorf("finish trip: %w", err)
	}
	return nil
}
