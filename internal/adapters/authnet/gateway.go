package authnet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/recurpay/billing-gateway/internal/domain/ports"
	pkgerrors "github.com/recurpay/billing-gateway/pkg/errors"
)

// Environment selects which processor endpoint the gateway talks to.
const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"

	sandboxBaseURL    = "https://apitest.authorize.net/xml/v1/request.api"
	productionBaseURL = "https://api.authorize.net/xml/v1/request.api"
)

// Config holds merchant credentials for the processor API
type Config struct {
	APILoginID     string // merchant login id
	TransactionKey string // shared secret sent in every request body
	Environment    string // sandbox or production
}

// BaseURL returns the endpoint for the configured environment
func (c Config) BaseURL() string {
	if c.Environment == EnvironmentProduction {
		return productionBaseURL
	}
	return sandboxBaseURL
}

// Gateway implements ports.ProcessorGateway against the processor's JSON
// API. All operations POST one request envelope to a single endpoint; the
// request type is the envelope's top-level key.
type Gateway struct {
	config     Config
	baseURL    string
	httpClient ports.HTTPClient
	logger     ports.Logger
}

// NewGateway creates a new processor gateway with dependency injection
func NewGateway(config Config, httpClient ports.HTTPClient, logger ports.Logger) *Gateway {
	return &Gateway{
		config:     config,
		baseURL:    config.BaseURL(),
		httpClient: httpClient,
		logger:     logger,
	}
}

// NewGatewayWithDefaults creates a new processor gateway with a default HTTP client
func NewGatewayWithDefaults(config Config, logger ports.Logger) *Gateway {
	return &Gateway{
		config:  config,
		baseURL: config.BaseURL(),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// merchantAuthentication is embedded in every request envelope
type merchantAuthentication struct {
	Name           string `json:"name"`
	TransactionKey string `json:"transactionKey"`
}

func (g *Gateway) auth() merchantAuthentication {
	return merchantAuthentication{
		Name:           g.config.APILoginID,
		TransactionKey: g.config.TransactionKey,
	}
}

// apiMessage is one entry of the envelope-level result block
type apiMessage struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

// apiMessages is the envelope-level result block present on every response
type apiMessages struct {
	ResultCode string       `json:"resultCode"` // Ok or Error
	Message    []apiMessage `json:"message"`
}

func (m apiMessages) ok() bool {
	return m.ResultCode == "Ok"
}

func (m apiMessages) first() apiMessage {
	if len(m.Message) > 0 {
		return m.Message[0]
	}
	return apiMessage{}
}

// makeRequest POSTs one request envelope and returns the raw response body.
// Transport and HTTP-status failures come back as *pkgerrors.PaymentError so
// callers can fold them into ERROR outcomes with the right transience.
func (g *Gateway) makeRequest(ctx context.Context, requestType string, envelope interface{}) ([]byte, error) {
	payloadBytes, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", requestType, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", requestType, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if g.logger != nil {
		g.logger.Info("calling payment processor",
			ports.String("request_type", requestType),
			ports.String("environment", g.config.Environment),
		)
	}

	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, pkgerrors.NewPaymentError("TIMEOUT", "Payment processor timed out", pkgerrors.CategoryTimeoutError, true)
		}
		return nil, pkgerrors.NewPaymentError("NETWORK_ERROR", "Failed to connect to payment processor", pkgerrors.CategoryNetworkError, true)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, pkgerrors.NewPaymentError("NETWORK_ERROR", "Failed to read processor response", pkgerrors.CategoryNetworkError, true)
	}

	// The API prefixes responses with a UTF-8 BOM.
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))

	if httpResp.StatusCode >= 500 {
		return nil, pkgerrors.NewPaymentError("PROCESSOR_ERROR", "Payment processor error", pkgerrors.CategoryProcessingError, true)
	}
	if httpResp.StatusCode >= 400 {
		return nil, pkgerrors.NewPaymentError("REQUEST_ERROR", "Invalid request to payment processor", pkgerrors.CategoryValidation, false)
	}

	return body, nil
}

// faultOutcome folds a makeRequest failure into an ERROR outcome.
// Unknown errors default to transient so reconciliation can resolve them.
func faultOutcome(err error) *ports.Outcome {
	if pe, ok := pkgerrors.AsPaymentError(err); ok {
		return ports.NewErrorOutcome(ports.Fault{
			Code:      pe.Code,
			Message:   pe.Message,
			Transient: pe.IsRetriable,
		}, "", nil)
	}
	return ports.NewErrorOutcome(ports.Fault{
		Code:      "PROCESSOR_ERROR",
		Message:   err.Error(),
		Transient: true,
	}, "", nil)
}
