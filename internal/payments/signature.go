package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	pkgerrors "github.com/angelmondragon/grocerybid-backend/pkg/errors"
)

// Verifier checks the checkout signature returned to the client.
type Verifier struct {
	secret     string
	mockPrefix string
}

// NewVerifier builds a verifier. Gateway order ids starting with mockPrefix
// skip the signature check.
func NewVerifier(secret, mockPrefix string) *Verifier {
	return &Verifier{secret: secret, mockPrefix: mockPrefix}
}

// InvalidSignature is the 400 returned when a signature does not match.
func InvalidSignature() error {
	return pkgerrors.New(pkgerrors.CodeInvalidSignature, "invalid payment signature")
}

// IsMock reports whether gatewayOrderID was issued by the mock gateway.
func (v *Verifier) IsMock(gatewayOrderID string) bool {
	return v.mockPrefix != "" && strings.HasPrefix(gatewayOrderID, v.mockPrefix)
}

// Sign returns hex(HMAC-SHA256(secret, orderID|paymentID)).
func (v *Verifier) Sign(gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (v *Verifier) Verify(gatewayOrderID, gatewayPaymentID, signature string) error {
	if strings.TrimSpace(gatewayOrderID) == "" || strings.TrimSpace(gatewayPaymentID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "gateway order id and payment id are required")
	}
	if v.IsMock(gatewayOrderID) {
		return nil
	}
	if v.secret == "" || signature == "" {
		return InvalidSignature()
	}
	expected := v.Sign(gatewayOrderID, gatewayPaymentID)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature)))) {
		return InvalidSignature()
	}
	return nil
}
