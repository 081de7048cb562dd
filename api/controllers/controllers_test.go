package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/grocerybid-backend/api/middleware"
	"github.com/angelmondragon/grocerybid-backend/internal/lists"
	"github.com/angelmondragon/grocerybid-backend/internal/payments"
	"github.com/angelmondragon/grocerybid-backend/internal/quotations"
	"github.com/angelmondragon/grocerybid-backend/internal/users"
	"github.com/angelmondragon/grocerybid-backend/internal/wallet"
	"github.com/angelmondragon/grocerybid-backend/pkg/config"
	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/grocerybid-backend/pkg/errors"
	"github.com/angelmondragon/grocerybid-backend/pkg/pagination"
	"github.com/angelmondragon/grocerybid-backend/pkg/types"
)

func authed(req *http.Request, userID uuid.UUID, role enums.UserRole) *http.Request {
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, string(role))
	return req.WithContext(ctx)
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rc := chi.RouteContext(req.Context())
	if rc == nil {
		rc = chi.NewRouteContext()
	}
	rc.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return payload.Error.Code
}

type stubListService struct {
	createdBy uuid.UUID
	params    lists.ListParams
	input     lists.CreateListInput
	err       error
}

func (s *stubListService) Create(ctx context.Context, buyerID uuid.UUID, input lists.CreateListInput) (*lists.ListDTO, error) {
	s.createdBy = buyerID
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return &lists.ListDTO{ID: uuid.New(), BuyerID: buyerID, Title: input.Title, Status: enums.ListStatusOpen}, nil
}

func (s *stubListService) AddItem(ctx context.Context, buyerID, listID uuid.UUID, input lists.ItemInput) (*lists.ListDTO, error) {
	return &lists.ListDTO{ID: listID, BuyerID: buyerID}, s.err
}

func (s *stubListService) Delete(ctx context.Context, buyerID, listID uuid.UUID) error {
	return s.err
}

func (s *stubListService) Get(ctx context.Context, userID uuid.UUID, role enums.UserRole, listID uuid.UUID) (*lists.ListDTO, error) {
	return &lists.ListDTO{ID: listID}, s.err
}

func (s *stubListService) List(ctx context.Context, userID uuid.UUID, role enums.UserRole, params lists.ListParams) (*lists.ListPage, error) {
	s.params = params
	return &lists.ListPage{}, s.err
}

func TestListCreate(t *testing.T) {
	svc := &stubListService{}
	buyerID := uuid.New()
	productID := uuid.New()
	body := bytes.NewBufferString(`{"title":"Weekly","items":[{"product":"` + productID.String() + `","name":"Rice","quantity":"5","unit":"kg"}]}`)
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/lists", body), buyerID, enums.UserRoleBuyer)
	rec := httptest.NewRecorder()

	ListCreate(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.createdBy != buyerID {
		t.Fatalf("expected buyer %s got %s", buyerID, svc.createdBy)
	}
	if ref := svc.input.Items[0].ProductID; ref == nil || *ref != productID {
		t.Fatalf("expected product %s got %v", productID, ref)
	}
}

func TestListCreateRequiresItems(t *testing.T) {
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/lists", bytes.NewBufferString(`{"title":"Empty","items":[]}`)), uuid.New(), enums.UserRoleBuyer)
	rec := httptest.NewRecorder()
	ListCreate(&stubListService{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestListCreateRequiresActor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/lists", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	ListCreate(&stubListService{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestListIndexParsesFilters(t *testing.T) {
	svc := &stubListService{}
	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/lists?status=closed&limit=5", nil), uuid.New(), enums.UserRoleBuyer)
	rec := httptest.NewRecorder()
	ListIndex(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.params.Status == nil || *svc.params.Status != enums.ListStatusClosed || svc.params.Limit != 5 {
		t.Fatalf("unexpected params %+v", svc.params)
	}

	bad := authed(httptest.NewRequest(http.MethodGet, "/api/v1/lists?status=archived", nil), uuid.New(), enums.UserRoleBuyer)
	rec = httptest.NewRecorder()
	ListIndex(svc, nil).ServeHTTP(rec, bad)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestListDeleteForbidden(t *testing.T) {
	svc := &stubListService{err: pkgerrors.New(pkgerrors.CodeForbidden, "not your list")}
	req := authed(httptest.NewRequest(http.MethodDelete, "/api/v1/lists/x", nil), uuid.New(), enums.UserRoleBuyer)
	req = withURLParam(req, "listId", uuid.NewString())
	rec := httptest.NewRecorder()
	ListDelete(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}
}

type stubQuotationService struct {
	submitted quotations.SubmitInput
	rejected  uuid.UUID
	params   quotations.ListParams
	err      error
}

func (s *stubQuotationService) Submit(ctx context.Context, vendorID uuid.UUID, input quotations.SubmitInput) (*quotations.QuotationDTO, error) {
	s.submitted = input
	if s.err != nil {
		return nil, s.err
	}
	return &quotations.QuotationDTO{ID: uuid.New(), ListID: input.ListID, VendorID: vendorID, Status: enums.QuotationStatusPending}, nil
}

func (s *stubQuotationService) Reject(ctx context.Context, buyerID, quotationID uuid.UUID) (*quotations.QuotationDTO, error) {
	s.rejected = quotationID
	return &quotations.QuotationDTO{ID: quotationID, Status: enums.QuotationStatusRejected}, s.err
}

func (s *stubQuotationService) Get(ctx context.Context, userID uuid.UUID, role enums.UserRole, quotationID uuid.UUID) (*quotations.QuotationDTO, error) {
	return &quotations.QuotationDTO{ID: quotationID}, s.err
}

func (s *stubQuotationService) List(ctx context.Context, userID uuid.UUID, role enums.UserRole, params quotations.ListParams) (*quotations.QuotationPage, error) {
	s.params = params
	return &quotations.QuotationPage{}, s.err
}

func TestQuotationSubmitInsufficientBalance(t *testing.T) {
	svc := &stubQuotationService{err: pkgerrors.New(pkgerrors.CodeInsufficientBalance, "wallet balance below bidding charge")}
	body := bytes.NewBufferString(`{"listId":"` + uuid.NewString() + `","prices":[{"itemName":"Rice","basePrice":"100","discount":"5"}]}`)
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/quotations", body), uuid.New(), enums.UserRoleVendor)
	rec := httptest.NewRecorder()

	QuotationSubmit(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeInsufficientBalance) {
		t.Fatalf("expected insufficient balance code got %s", code)
	}
}

func TestQuotationSubmitSuccess(t *testing.T) {
	listID := uuid.New()
	body := bytes.NewBufferString(`{"listId":"` + listID.String() + `","prices":[{"itemName":"Rice","basePrice":"100","discount":"5"}]}`)
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/quotations", body), uuid.New(), enums.UserRoleVendor)
	rec := httptest.NewRecorder()

	QuotationSubmit(&stubQuotationService{}, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	var envelope struct {
		Data quotations.QuotationDTO `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.ListID != listID {
		t.Fatalf("expected list %s got %s", listID, envelope.Data.ListID)
	}
}

func TestQuotationSubmitAcceptsProductReference(t *testing.T) {
	svc := &stubQuotationService{}
	listID, productID := uuid.New(), uuid.New()
	body := bytes.NewBufferString(`{"listId":"` + listID.String() + `","prices":[{"product":"` + productID.String() + `","itemName":"Rice","basePrice":100,"discount":10}]}`)
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/quotations", body), uuid.New(), enums.UserRoleVendor)
	rec := httptest.NewRecorder()

	QuotationSubmit(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.submitted.Prices) != 1 {
		t.Fatalf("expected one price line got %d", len(svc.submitted.Prices))
	}
	line := svc.submitted.Prices[0]
	if line.ProductID == nil || *line.ProductID != productID {
		t.Fatalf("expected product %s got %v", productID, line.ProductID)
	}
	if !line.BasePrice.Valid || line.BasePrice.Value.IntPart() != 100 {
		t.Fatalf("unexpected base price %+v", line.BasePrice)
	}
	if !line.Discount.Valid || line.Discount.Value.IntPart() != 10 {
		t.Fatalf("unexpected discount %+v", line.Discount)
	}
}

func TestQuotationRejectUsesPathParam(t *testing.T) {
	svc := &stubQuotationService{}
	quotationID := uuid.New()
	req := authed(httptest.NewRequest(http.MethodPut, "/api/v1/quotations/x/reject", nil), uuid.New(), enums.UserRoleBuyer)
	req = withURLParam(req, "quotationId", quotationID.String())
	rec := httptest.NewRecorder()

	QuotationReject(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.rejected != quotationID {
		t.Fatalf("expected %s got %s", quotationID, svc.rejected)
	}
}

func TestQuotationIndexListFilter(t *testing.T) {
	svc := &stubQuotationService{}
	listID := uuid.New()
	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/quotations?listId="+listID.String(), nil), uuid.New(), enums.UserRoleBuyer)
	rec := httptest.NewRecorder()
	QuotationIndex(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.params.ListID == nil || *svc.params.ListID != listID {
		t.Fatalf("expected list filter %s got %v", listID, svc.params.ListID)
	}
}

type stubPaymentService struct {
	verified payments.VerifyInput
	err      error
}

func (s *stubPaymentService) CreateOrderPayment(ctx context.Context, buyerID uuid.UUID, input payments.CreateOrderInput) (*payments.CheckoutDTO, error) {
	return &payments.CheckoutDTO{GatewayOrderID: "order_mock_1", OrderID: &input.OrderID}, s.err
}

func (s *stubPaymentService) VerifyOrderPayment(ctx context.Context, buyerID uuid.UUID, input payments.VerifyInput) (*payments.OrderPaymentResult, error) {
	s.verified = input
	if s.err != nil {
		return nil, s.err
	}
	return &payments.OrderPaymentResult{Royalty: types.NewMoney(decimal.RequireFromString("0.20"))}, nil
}

func (s *stubPaymentService) CreateRecharge(ctx context.Context, userID uuid.UUID, input payments.RechargeInput) (*payments.CheckoutDTO, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &payments.CheckoutDTO{GatewayOrderID: "order_mock_2", Amount: types.NewMoney(input.Amount.Value)}, nil
}

func (s *stubPaymentService) VerifyRecharge(ctx context.Context, userID uuid.UUID, input payments.VerifyInput) (*payments.RechargeResult, error) {
	s.verified = input
	return &payments.RechargeResult{}, s.err
}

func TestPaymentVerifyInvalidSignature(t *testing.T) {
	svc := &stubPaymentService{err: pkgerrors.New(pkgerrors.CodeInvalidSignature, "signature mismatch")}
	body := bytes.NewBufferString(`{"gatewayOrderId":"order_1","gatewayPaymentId":"pay_1","signature":"deadbeef"}`)
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/payment/verify", body), uuid.New(), enums.UserRoleBuyer)
	rec := httptest.NewRecorder()

	PaymentVerify(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeInvalidSignature) {
		t.Fatalf("unexpected code %s", code)
	}
	if svc.verified.GatewayPaymentID != "pay_1" {
		t.Fatalf("expected payment id forwarded")
	}
}

func TestPaymentVerifyRequiresIDs(t *testing.T) {
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/payment/verify", bytes.NewBufferString(`{"signature":"x"}`)), uuid.New(), enums.UserRoleBuyer)
	rec := httptest.NewRecorder()
	PaymentVerify(&stubPaymentService{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestWalletRecharge(t *testing.T) {
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/wallet/recharge", bytes.NewBufferString(`{"amount":"250.50"}`)), uuid.New(), enums.UserRoleVendor)
	rec := httptest.NewRecorder()
	WalletRecharge(&stubPaymentService{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
}

type stubWalletService struct {
	wallet.Service
	historyFor uuid.UUID
	params     pagination.Params
	all        wallet.ListAllParams
}

func (s *stubWalletService) History(ctx context.Context, userID uuid.UUID, params pagination.Params) (*wallet.HistoryResult, error) {
	s.historyFor = userID
	s.params = params
	return &wallet.HistoryResult{Balance: types.NewMoney(decimal.NewFromInt(10))}, nil
}

func (s *stubWalletService) ListAll(ctx context.Context, params wallet.ListAllParams) (*wallet.TransactionPage, error) {
	s.all = params
	return &wallet.TransactionPage{}, nil
}

func TestWalletHistory(t *testing.T) {
	svc := &stubWalletService{}
	userID := uuid.New()
	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/wallet?limit=10&cursor=abc", nil), userID, enums.UserRoleVendor)
	rec := httptest.NewRecorder()
	WalletHistory(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.historyFor != userID || svc.params.Limit != 10 || svc.params.Cursor != "abc" {
		t.Fatalf("unexpected history call %s %+v", svc.historyFor, svc.params)
	}
}

func TestWalletAllFilters(t *testing.T) {
	svc := &stubWalletService{}
	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/wallet/all?type=royalty_deduction", nil), uuid.New(), enums.UserRoleAdmin)
	rec := httptest.NewRecorder()
	WalletAll(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.all.Type == nil || *svc.all.Type != enums.TransactionRoyaltyDeduction {
		t.Fatalf("expected type filter got %v", svc.all.Type)
	}
}

type stubUserService struct {
	err error
}

func (s stubUserService) Register(ctx context.Context, input users.RegisterInput) (*models.User, error) {
	return nil, errors.New("not used")
}

func (s stubUserService) Me(ctx context.Context, userID uuid.UUID) (*users.UserDTO, error) {
	return &users.UserDTO{ID: userID}, s.err
}

func (s stubUserService) Referrals(ctx context.Context, userID uuid.UUID) (*users.ReferralSummary, error) {
	return &users.ReferralSummary{ReferralCode: "ABCD2345", ReferredCount: 2}, s.err
}

func (s stubUserService) ConvertRewards(ctx context.Context, userID uuid.UUID) (*users.ConvertResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &users.ConvertResult{}, nil
}

func TestUserConvertRewardsNoRewards(t *testing.T) {
	svc := stubUserService{err: pkgerrors.New(pkgerrors.CodeValidation, "no rewards available")}
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/users/referrals/convert", nil), uuid.New(), enums.UserRoleBuyer)
	rec := httptest.NewRecorder()
	UserConvertRewards(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestUserReferrals(t *testing.T) {
	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/users/referrals", nil), uuid.New(), enums.UserRoleBuyer)
	rec := httptest.NewRecorder()
	UserReferrals(stubUserService{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var envelope struct {
		Data users.ReferralSummary `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.ReferredCount != 2 {
		t.Fatalf("expected 2 referrals got %d", envelope.Data.ReferredCount)
	}
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	up := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return errors.New("connection refused") })

	rec := httptest.NewRecorder()
	HealthReady(cfg, nil, map[string]Pinger{"db": up, "redis": up}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	HealthReady(cfg, nil, map[string]Pinger{"db": up, "redis": down}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}
