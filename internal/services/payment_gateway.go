package services

import (
	"bytes"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourday/booking-backend/internal/config"
	"github.com/tourday/booking-backend/internal/models"
)

// PaymentIntent is the gateway's handle for a pending payment.
type PaymentIntent struct {
	ID         string `json:"id"`
	PaymentURL string `json:"payment_url,omitempty"`
}

// PaymentGateway is the boundary to the external payment provider. The core
// never blocks on it while holding a ledger lock: intents are created strictly
// after a hold is granted.
type PaymentGateway interface {
	CreateIntent(amount int64, currency, bookingRef string) (*PaymentIntent, error)
	VerifyWebhook(payload *models.PaymentWebhookPayload) error
}

// gatewayEnvironmentURLs maps environment names to IPG endpoint URLs.
var gatewayEnvironmentURLs = map[string]string{
	"sandbox":    "https://sandbox.ipg.tourpay.kr/v1/intents",
	"production": "https://ipg.tourpay.kr/v1/intents",
}

// HTTPPaymentGateway talks to the IPG over HTTPS with a SHA-512 check value
// for request authentication.
type HTTPPaymentGateway struct {
	config *config.PaymentConfig
	logger *logrus.Logger
	client *http.Client
}

// NewHTTPPaymentGateway creates a new HTTPPaymentGateway
func NewHTTPPaymentGateway(cfg *config.PaymentConfig, logger *logrus.Logger) *HTTPPaymentGateway {
	return &HTTPPaymentGateway{
		config: cfg,
		logger: logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type gatewayIntentRequest struct {
	MerchantKey string `json:"merchantKey"`
	InvoiceID   string `json:"invoiceId"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currencyCode"`
	ReturnURL   string `json:"returnUrl,omitempty"`
	WebhookURL  string `json:"webhookUrl,omitempty"`
	CheckValue  string `json:"checkValue"`
}

type gatewayIntentResponse struct {
	Status     string `json:"status"` // "success" or "error"
	IntentID   string `json:"intentId"`
	PaymentURL string `json:"paymentPage"`
	Message    string `json:"message,omitempty"`
}

// CheckValue computes the request signature:
// hash1 = SHA512(merchantToken), hash2 = SHA512(key|invoice|amount|currency|hash1),
// both uppercase hex. The merchant token itself is never sent.
func (g *HTTPPaymentGateway) CheckValue(invoiceID string, amount int64, currency string) string {
	hash1 := sha512.Sum512([]byte(g.config.MerchantToken))
	hash1Hex := strings.ToUpper(hex.EncodeToString(hash1[:]))

	data := fmt.Sprintf("%s|%s|%d|%s|%s", g.config.MerchantKey, invoiceID, amount, currency, hash1Hex)
	hash2 := sha512.Sum512([]byte(data))
	return strings.ToUpper(hex.EncodeToString(hash2[:]))
}

// CreateIntent registers a payment intent with the gateway. A network
// timeout is reported as *models.PaymentGatewayError with Timeout set; the
// state machine treats it the same as a failure.
func (g *HTTPPaymentGateway) CreateIntent(amount int64, currency, bookingRef string) (*PaymentIntent, error) {
	endpoint, ok := gatewayEnvironmentURLs[g.config.Environment]
	if !ok {
		return nil, fmt.Errorf("unknown gateway environment: %s", g.config.Environment)
	}

	reqBody := gatewayIntentRequest{
		MerchantKey: g.config.MerchantKey,
		InvoiceID:   bookingRef,
		Amount:      amount,
		Currency:    currency,
		ReturnURL:   g.config.ReturnURL,
		WebhookURL:  g.config.WebhookURL,
		CheckValue:  g.CheckValue(bookingRef, amount, currency),
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal intent request: %w", err)
	}

	resp, err := g.client.Post(endpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &models.PaymentGatewayError{Timeout: true, Err: err}
		}
		return nil, &models.PaymentGatewayError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.PaymentGatewayError{Err: err}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &models.PaymentGatewayError{Err: fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(body))}
	}

	var intentResp gatewayIntentResponse
	if err := json.Unmarshal(body, &intentResp); err != nil {
		return nil, &models.PaymentGatewayError{Err: fmt.Errorf("invalid gateway response: %w", err)}
	}
	if intentResp.Status != "success" {
		return nil, &models.PaymentGatewayError{Err: fmt.Errorf("gateway rejected intent: %s", intentResp.Message)}
	}

	g.logger.WithFields(logrus.Fields{
		"invoice_id":  bookingRef,
		"intent_id":   intentResp.IntentID,
		"amount":      amount,
		"environment": g.config.Environment,
	}).Info("Payment intent created")

	return &PaymentIntent{ID: intentResp.IntentID, PaymentURL: intentResp.PaymentURL}, nil
}

// VerifyWebhook checks the webhook's check value against the merchant token.
func (g *HTTPPaymentGateway) VerifyWebhook(payload *models.PaymentWebhookPayload) error {
	hash1 := sha512.Sum512([]byte(g.config.MerchantToken))
	hash1Hex := strings.ToUpper(hex.EncodeToString(hash1[:]))

	data := fmt.Sprintf("%s|%s|%d|%s", payload.IntentID, payload.Outcome, payload.Amount, hash1Hex)
	expected := sha512.Sum512([]byte(data))
	expectedHex := strings.ToUpper(hex.EncodeToString(expected[:]))

	if !strings.EqualFold(payload.CheckValue, expectedHex) {
		return fmt.Errorf("webhook check value mismatch for intent %s", payload.IntentID)
	}
	return nil
}

// MockPaymentGateway is used in development and tests; it accepts every
// intent and skips webhook signature checks.
type MockPaymentGateway struct {
	logger *logrus.Logger
}

// NewMockPaymentGateway creates a new MockPaymentGateway
func NewMockPaymentGateway(logger *logrus.Logger) *MockPaymentGateway {
	return &MockPaymentGateway{logger: logger}
}

// CreateIntent returns a deterministic placeholder intent.
func (g *MockPaymentGateway) CreateIntent(amount int64, currency, bookingRef string) (*PaymentIntent, error) {
	intentID := fmt.Sprintf("PI-%s", strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:12]))
	g.logger.WithFields(logrus.Fields{
		"invoice_id": bookingRef,
		"intent_id":  intentID,
		"amount":     amount,
		"currency":   currency,
		"mode":       "mock",
	}).Info("Payment intent created (mock)")
	return &PaymentIntent{
		ID:         intentID,
		PaymentURL: fmt.Sprintf("https://pay.example.com/mock/%s", intentID),
	}, nil
}

// VerifyWebhook accepts every payload in mock mode.
func (g *MockPaymentGateway) VerifyWebhook(*models.PaymentWebhookPayload) error {
	return nil
}
