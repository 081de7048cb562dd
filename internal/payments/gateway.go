package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/grocerybid-backend/pkg/config"
	"github.com/google/uuid"
	razorpay "github.com/razorpay/razorpay-go"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

// GatewayOrderRequest describes a hosted checkout to open with the provider.
type GatewayOrderRequest struct {
	Amount  decimal.Decimal
	Receipt string
	Notes   map[string]string
}

// GatewayOrder is the provider's view of an opened checkout.
type GatewayOrder struct {
	ID       string
	Amount   decimal.Decimal
	Currency string
}

// Gateway opens checkouts with the payment provider.
type Gateway interface {
	CreateOrder(ctx context.Context, req GatewayOrderRequest) (*GatewayOrder, error)
	Currency() string
	KeyID() string
}

// ErrGatewayUnavailable is returned while the breaker is open.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// NewGateway returns the mock gateway when credentials are absent or mock
// mode is forced, and the razorpay client otherwise.
func NewGateway(cfg config.GatewayConfig) Gateway {
	if cfg.UseMock() {
		return NewMockGateway(cfg.MockPrefix, cfg.Currency)
	}
	return NewRazorpayGateway(cfg)
}

type orderCreator interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type razorpayGateway struct {
	orders   orderCreator
	breaker  *gobreaker.CircuitBreaker[map[string]interface{}]
	keyID    string
	currency string
}

// NewRazorpayGateway wraps the razorpay orders API in a circuit breaker.
func NewRazorpayGateway(cfg config.GatewayConfig) Gateway {
	client := razorpay.NewClient(cfg.KeyID, cfg.KeySecret)
	return newRazorpayGateway(client.Order, cfg)
}

func newRazorpayGateway(orders orderCreator, cfg config.GatewayConfig) *razorpayGateway {
	trips := cfg.BreakerTrips
	if trips == 0 {
		trips = 5
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker[map[string]interface{}](gobreaker.Settings{
		Name:        "razorpay-orders",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trips
		},
	})
	return &razorpayGateway{
		orders:   orders,
		breaker:  breaker,
		keyID:    cfg.KeyID,
		currency: strings.ToUpper(cfg.Currency),
	}
}

func (g *razorpayGateway) Currency() string { return g.currency }

func (g *razorpayGateway) KeyID() string { return g.keyID }

func (g *razorpayGateway) CreateOrder(ctx context.Context, req GatewayOrderRequest) (*GatewayOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	notes := make(map[string]interface{}, len(req.Notes))
	for k, v := range req.Notes {
		notes[k] = v
	}
	payload := map[string]interface{}{
		"amount":   toMinorUnits(req.Amount),
		"currency": g.currency,
		"receipt":  req.Receipt,
		"notes":    notes,
	}

	body, err := g.breaker.Execute(func() (map[string]interface{}, error) {
		return g.orders.Create(payload, nil)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrGatewayUnavailable
		}
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}

	id, _ := body["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("razorpay create order: response missing id")
	}
	return &GatewayOrder{ID: id, Amount: req.Amount, Currency: g.currency}, nil
}

// toMinorUnits converts rupees to paise.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

type mockGateway struct {
	prefix   string
	currency string
}

// NewMockGateway issues local order ids carrying prefix so verification
// recognises them without a provider signature.
func NewMockGateway(prefix, currency string) Gateway {
	if prefix == "" {
		prefix = "order_mock_"
	}
	return &mockGateway{prefix: prefix, currency: strings.ToUpper(currency)}
}

func (g *mockGateway) Currency() string { return g.currency }

func (g *mockGateway) KeyID() string { return "" }

func (g *mockGateway) CreateOrder(ctx context.Context, req GatewayOrderRequest) (*GatewayOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := g.prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
	return &GatewayOrder{ID: id, Amount: req.Amount, Currency: g.currency}, nil
}
