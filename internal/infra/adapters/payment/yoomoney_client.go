// File: internal/infra/adapters/payment/yoomoney_client.go
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-reaction-payout/internal/domain"
	"telegram-reaction-payout/internal/domain/model"
	"telegram-reaction-payout/internal/domain/ports/adapter"
	"telegram-reaction-payout/internal/infra/metrics"
)

var _ adapter.TransferClient = (*YooMoneyClient)(nil)

const (
	opRequestPayment = "request_payment"
	opProcessPayment = "process_payment"

	maxBodyBytes = 1 << 20
)

// YooMoneyClient implements adapter.TransferClient against the YooMoney wallet API
// using a long-lived bearer token. It only speaks the p2p pattern.
type YooMoneyClient struct {
	token   string
	baseURL string
	client  *http.Client
	log     *zerolog.Logger
}

func NewYooMoneyClient(token, baseURL string, timeout time.Duration, logger *zerolog.Logger) (*YooMoneyClient, error) {
	if token == "" {
		return nil, errors.New("yoomoney token empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid yoomoney base url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	compLog := logger.With().Str("component", "YooMoneyClient").Logger()
	return &YooMoneyClient{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     &compLog,
	}, nil
}

func (c *YooMoneyClient) Name() string { return "yoomoney" }

// SubmitTransfer calls /api/request-payment with the p2p pattern.
func (c *YooMoneyClient) SubmitTransfer(ctx context.Context, payee string, amountDue decimal.Decimal, comment, message string) (model.TransferResponse, error) {
	q := url.Values{}
	q.Set("pattern_id", "p2p")
	q.Set("to", payee)
	q.Set("amount_due", amountDue.String())
	q.Set("comment", comment)
	q.Set("message", message)
	return c.call(ctx, opRequestPayment, "/api/request-payment", q)
}

// ConfirmTransfer calls /api/process-payment for a request id returned by SubmitTransfer.
func (c *YooMoneyClient) ConfirmTransfer(ctx context.Context, requestID string) (model.TransferResponse, error) {
	if requestID == "" {
		return model.TransferResponse{}, fmt.Errorf("%w: empty request id", domain.ErrInvalidArgument)
	}
	q := url.Values{}
	q.Set("request_id", requestID)
	return c.call(ctx, opProcessPayment, "/api/process-payment", q)
}

func (c *YooMoneyClient) call(ctx context.Context, op, path string, q url.Values) (model.TransferResponse, error) {
	start := time.Now()
	resp, err := c.do(ctx, path, q)
	if err != nil {
		metrics.ObserveTransferCall(op, "transport_error", time.Since(start))
		return model.TransferResponse{}, err
	}

	out, err := decodeTransferResponse(resp)
	if err != nil {
		metrics.ObserveTransferCall(op, "malformed", time.Since(start))
		c.log.Warn().Str("op", op).Int("http_status", resp.StatusCode).Str("body", resp.Text).Msg("malformed gateway response")
		return model.TransferResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	metrics.ObserveTransferCall(op, "ok", time.Since(start))
	c.log.Debug().
		Str("op", op).
		Int("http_status", out.StatusCode).
		Str("status", string(out.Status)).
		Str("error", out.Error).
		Dur("duration", time.Since(start)).
		Msg("gateway call")
	return out, nil
}

// do performs one POST and fully drains the body; the connection is released before return.
func (c *YooMoneyClient) do(ctx context.Context, path string, q url.Values) (model.TransferResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return model.TransferResponse{}, fmt.Errorf("%w: build request: %v", domain.ErrTransport, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return model.TransferResponse{}, fmt.Errorf("%w: %s: %v", domain.ErrTransport, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return model.TransferResponse{}, fmt.Errorf("%w: read %s body: %v", domain.ErrTransport, path, err)
	}
	return model.TransferResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Text:       string(body),
	}, nil
}

// decodeTransferResponse fills the structured payload of raw. The gateway
// answers JSON with at least a "status" field, whatever the HTTP status.
func decodeTransferResponse(raw model.TransferResponse) (model.TransferResponse, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw.Text), &fields); err != nil {
		return raw, fmt.Errorf("%w: http %d: not json: %v", domain.ErrMalformedResponse, raw.StatusCode, err)
	}
	status, ok := fields["status"].(string)
	if !ok || status == "" {
		return raw, fmt.Errorf("%w: http %d: missing status", domain.ErrMalformedResponse, raw.StatusCode)
	}

	raw.Fields = fields
	raw.Status = model.TransferStatus(status)
	raw.RequestID = stringField(fields, "request_id")
	raw.PaymentID = stringField(fields, "payment_id")
	raw.Error = stringField(fields, "error")
	raw.ErrorDescription = stringField(fields, "error_description")
	raw.Balance = stringField(fields, "balance")
	return raw, nil
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case float64:
		return decimal.NewFromFloat(v).String()
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
