package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/avion-commerce/storefront-backend/common/errors"
	"github.com/avion-commerce/storefront-backend/models"
	"go.uber.org/zap"
)

// StorefrontClient talks to the stock, payment, order and notification
// endpoints of a remote storefront backend. It satisfies the orchestrator's
// collaborator interfaces so checkout can run against a separate deployment.
type StorefrontClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewStorefrontClient creates a client for baseURL.
func NewStorefrontClient(baseURL string, logger *zap.Logger) *StorefrontClient {
	return &StorefrontClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// errorBody covers both error shapes the endpoints answer with.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Kind    string `json:"kind"`
}

type reserveResponse struct {
	Success   bool    `json:"success"`
	NewStock  int     `json:"newStock"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
}

// Reserve calls POST /stock/reserve.
func (c *StorefrontClient) Reserve(ctx context.Context, productID string, quantity int) (*models.StockReservationResult, error) {
	var out reserveResponse
	err := c.post(ctx, "/stock/reserve", models.StockReservationRequest{ProductID: productID, Quantity: quantity}, http.StatusOK, &out, apperrors.KindInternal)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("stock reserved", zap.String("product_id", productID), zap.Int("new_stock", out.NewStock))
	return &models.StockReservationResult{ProductID: productID, NewStock: out.NewStock, Name: out.Name, UnitPrice: out.UnitPrice}, nil
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// CreateSession calls POST /checkout/session.
func (c *StorefrontClient) CreateSession(ctx context.Context, items []models.PaymentItem) (*models.PaymentSession, error) {
	var out sessionResponse
	err := c.post(ctx, "/checkout/session", models.CreateSessionRequest{CartItems: items}, http.StatusOK, &out, apperrors.KindSessionCreationFailed)
	if err != nil {
		return nil, err
	}
	return &models.PaymentSession{SessionID: out.SessionID, URL: out.URL}, nil
}

type orderResponse struct {
	Message string        `json:"message"`
	Order   *models.Order `json:"order"`
}

// PlaceOrder calls POST /orders.
func (c *StorefrontClient) PlaceOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error) {
	var out orderResponse
	if err := c.post(ctx, "/orders", req, http.StatusCreated, &out, apperrors.KindPersistenceFailed); err != nil {
		return nil, err
	}
	if out.Order == nil {
		return nil, apperrors.PersistenceFailed("Order service returned no order", nil)
	}
	return out.Order, nil
}

// SendOrderConfirmation calls POST /notifications/order-confirmation.
func (c *StorefrontClient) SendOrderConfirmation(ctx context.Context, req *models.OrderConfirmationRequest) error {
	return c.post(ctx, "/notifications/order-confirmation", req, http.StatusOK, nil, apperrors.KindNotificationFailed)
}

func (c *StorefrontClient) post(ctx context.Context, path string, payload interface{}, wantStatus int, out interface{}, fallback apperrors.Kind) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Internal("Failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return apperrors.Internal("Failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("storefront request failed", zap.String("path", path), zap.Error(err))
		return apperrors.New(fallback, fmt.Sprintf("%s request failed", path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return decodeError(resp, fallback)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.New(fallback, fmt.Sprintf("invalid response from %s", path), err)
	}
	return nil
}

// decodeError turns an error response back into an application error of
// the same kind the server reported.
func decodeError(resp *http.Response, fallback apperrors.Kind) error {
	var eb errorBody
	_ = json.NewDecoder(resp.Body).Decode(&eb)
	msg := eb.Message
	if msg == "" {
		msg = eb.Error
	}
	if msg == "" {
		msg = fmt.Sprintf("storefront returned %d", resp.StatusCode)
	}

	if eb.Kind != "" {
		return apperrors.New(apperrors.Kind(eb.Kind), msg, nil)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return apperrors.NotFound(msg)
	case http.StatusConflict:
		return apperrors.ConcurrencyConflict(msg, nil)
	case http.StatusBadRequest:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "insufficient stock") || strings.Contains(lower, "out of stock") {
			return apperrors.InsufficientStock(msg)
		}
		return apperrors.Validation(msg, nil)
	case http.StatusUnauthorized:
		return apperrors.New(apperrors.KindUnauthorized, msg, nil)
	default:
		return apperrors.New(fallback, msg, nil)
	}
}
