package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopfront/internal/domain"
	productrepo "shopfront/internal/repository/product"
	checkoutsvc "shopfront/internal/service/checkout"
	productsvc "shopfront/internal/service/product"
	usersvc "shopfront/internal/service/user"
)

type stubUserSvc struct {
	principals map[string]usersvc.Principal
	user       *domain.User
	loginErr   error
}

func (s *stubUserSvc) Register(_ context.Context, in usersvc.RegisterInput) (*domain.User, usersvc.TokenPair, error) {
	return &domain.User{ID: "u1", Email: in.Email}, usersvc.TokenPair{AccessToken: "a", RefreshToken: "r"}, nil
}

func (s *stubUserSvc) Login(_ context.Context, _, _ string) (usersvc.TokenPair, error) {
	return usersvc.TokenPair{AccessToken: "a", RefreshToken: "r", ExpiredAt: 42}, s.loginErr
}

func (s *stubUserSvc) Refresh(_ context.Context, _ string) (usersvc.TokenPair, error) {
	return usersvc.TokenPair{}, domain.Unauthorized("refresh token revoked")
}

func (s *stubUserSvc) Authenticate(token string) (usersvc.Principal, error) {
	p, ok := s.principals[token]
	if !ok {
		return usersvc.Principal{}, domain.Unauthorized("invalid token")
	}
	return p, nil
}

func (s *stubUserSvc) Get(_ context.Context, _ string) (*domain.User, error) {
	return s.user, nil
}

type stubProductSvc struct {
	lastFilter productrepo.Filter
	createErr  error
	deleted    string
	lastUpdate productsvc.UpdateInput
}

func (s *stubProductSvc) Create(_ context.Context, in productsvc.CreateInput) (*domain.Product, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &domain.Product{ID: "p-new", Name: in.Name, Price: in.Price}, nil
}

func (s *stubProductSvc) Get(_ context.Context, id string) (*domain.Product, error) {
	if id == "missing" {
		return nil, domain.Validation("product not found")
	}
	return &domain.Product{ID: id}, nil
}

func (s *stubProductSvc) List(_ context.Context, f productrepo.Filter) ([]domain.Product, error) {
	s.lastFilter = f
	return []domain.Product{}, nil
}

func (s *stubProductSvc) Update(_ context.Context, id string, in productsvc.UpdateInput) (*domain.Product, error) {
	s.lastUpdate = in
	return &domain.Product{ID: id, Name: lo.FromPtr(in.Name)}, nil
}

func (s *stubProductSvc) Delete(_ context.Context, id string) error {
	s.deleted = id
	return nil
}

func (s *stubProductSvc) Restock(_ context.Context, id string, quantity int) (*domain.Product, error) {
	return &domain.Product{ID: id, Stock: quantity}, nil
}

type stubBasketSvc struct{}

func (stubBasketSvc) Get(_ context.Context, _, basketID string) (*domain.Basket, error) {
	return &domain.Basket{ID: basketID}, nil
}

func (stubBasketSvc) AddLine(_ context.Context, _, basketID, productID string, opt domain.Option) (*domain.Basket, error) {
	return &domain.Basket{ID: basketID, Lines: []domain.BasketLine{{ProductID: productID, Option: opt}}}, nil
}

func (stubBasketSvc) RemoveLine(_ context.Context, _, basketID, _ string) (*domain.Basket, error) {
	return &domain.Basket{ID: basketID}, nil
}

func (stubBasketSvc) Checkout(_ context.Context, _, _ string) (*domain.Invoice, error) {
	return nil, domain.OutOfStock("p1")
}

func (stubBasketSvc) ListBaskets(_ context.Context, _ string) ([]domain.Membership, error) {
	return []domain.Membership{{BasketID: "b1", Status: domain.MembershipMain}}, nil
}

func (stubBasketSvc) AddBasket(_ context.Context, _ string) ([]domain.Membership, error) {
	return nil, nil
}

func (stubBasketSvc) RemoveBasket(_ context.Context, _, _ string) ([]domain.Membership, error) {
	return nil, domain.Validation("you cannot delete main basket")
}

func (stubBasketSvc) Invite(_ context.Context, _, _, _ string) error { return nil }

func (stubBasketSvc) Kick(_ context.Context, _, _, _ string) error {
	return domain.Forbidden("only the owner may remove members")
}

func (stubBasketSvc) AcceptInvite(_ context.Context, _, _ string) ([]domain.Membership, error) {
	return nil, nil
}

type stubCheckoutSvc struct {
	purchaser string
	items     []checkoutsvc.Item
}

func (s *stubCheckoutSvc) CheckoutItems(_ context.Context, purchaserID string, items []checkoutsvc.Item) (*domain.Invoice, error) {
	s.purchaser = purchaserID
	s.items = items
	return &domain.Invoice{ID: "inv-1"}, nil
}

type stubInvoiceSvc struct {
	paid string
}

func (s *stubInvoiceSvc) Get(_ context.Context, _ string, _ bool, id string) (*domain.Invoice, error) {
	return &domain.Invoice{ID: id}, nil
}

func (s *stubInvoiceSvc) ListMine(_ context.Context, _ string) ([]domain.Invoice, error) {
	return nil, errors.New("connection reset")
}

func (s *stubInvoiceSvc) Pay(_ context.Context, id string) error {
	s.paid = id
	return nil
}

func (s *stubInvoiceSvc) Fulfill(_ context.Context, _ bool, id string) (*domain.Invoice, error) {
	return &domain.Invoice{ID: id, Paid: true, Fulfilled: true}, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type testEnv struct {
	router   *gin.Engine
	products *stubProductSvc
	checkout *stubCheckoutSvc
	invoices *stubInvoiceSvc
}

func newTestEnv(t *testing.T, db Pinger) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := &testEnv{
		products: &stubProductSvc{},
		checkout: &stubCheckoutSvc{},
		invoices: &stubInvoiceSvc{},
	}
	users := &stubUserSvc{
		principals: map[string]usersvc.Principal{
			"user-token":  {UserID: "u1", Role: domain.RoleUser},
			"admin-token": {UserID: "admin", Role: domain.RoleAdmin},
		},
		user: &domain.User{ID: "u1", Email: "u1@example.com"},
	}
	router, err := buildRouter(logDiscard(), db, Deps{
		UserSvc:     users,
		ProductSvc:  env.products,
		BasketSvc:   stubBasketSvc{},
		CheckoutSvc: env.checkout,
		InvoiceSvc:  env.invoices,
		Gatherer:    prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	env.router = router
	return env
}

func (e *testEnv) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error
}

func TestBuildRouterRequiresServices(t *testing.T) {
	_, err := buildRouter(logDiscard(), nil, Deps{})
	require.Error(t, err)
}

func TestHealthAndReady(t *testing.T) {
	tests := []struct {
		name string
		db   Pinger
		want int
	}{
		{name: "memory store: ready", db: nil, want: http.StatusOK},
		{name: "db reachable: ready", db: stubPinger{}, want: http.StatusOK},
		{name: "db down: unavailable", db: stubPinger{err: errors.New("dial tcp")}, want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.db)
			assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/healthz", "", "").Code)
			assert.Equal(t, tt.want, env.do(http.MethodGet, "/readyz", "", "").Code)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/users/me", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, domain.KindUnauthorized, decodeError(t, rec).Kind)

	rec = env.do(http.MethodGet, "/users/me", "forged", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodGet, "/users/me", "user-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"u1@example.com"`)
}

func TestAdminRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	body := `{"name":"Tee","price":"19.90","currency":"usd","colors":["red"],"sizes":["M"]}`

	rec := env.do(http.MethodPost, "/products", "user-token", body)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, domain.KindForbidden, decodeError(t, rec).Kind)

	rec = env.do(http.MethodPost, "/products", "admin-token", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPut, "/products/p9", "user-token", `{"name":"Renamed"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodPut, "/products/p9", "admin-token", `{"name":"Renamed","price":"25"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, env.products.lastUpdate.Name)
	assert.Equal(t, "Renamed", *env.products.lastUpdate.Name)
	require.NotNil(t, env.products.lastUpdate.Price)
	assert.Equal(t, "25", env.products.lastUpdate.Price.String())
	assert.Nil(t, env.products.lastUpdate.Colors)

	rec = env.do(http.MethodDelete, "/products/p9", "admin-token", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "p9", env.products.deleted)

	rec = env.do(http.MethodPost, "/invoices/inv-1/fulfill", "admin-token", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		status int
		kind   domain.Kind
	}{
		{name: "validation: 400", method: http.MethodGet, path: "/products/missing", status: http.StatusBadRequest, kind: domain.KindValidation},
		{name: "out of stock: 409", method: http.MethodPost, path: "/baskets/b1/buy", token: "user-token", status: http.StatusConflict, kind: domain.KindOutOfStock},
		{name: "forbidden: 403", method: http.MethodDelete, path: "/baskets/b1/users/u2", token: "user-token", status: http.StatusForbidden, kind: domain.KindForbidden},
		{name: "main basket: 400", method: http.MethodDelete, path: "/baskets/b1", token: "user-token", status: http.StatusBadRequest, kind: domain.KindValidation},
		{name: "untagged error: 500", method: http.MethodGet, path: "/invoices", token: "user-token", status: http.StatusInternalServerError, kind: domain.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(tt.method, tt.path, tt.token, "")
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			payload := decodeError(t, rec)
			assert.Equal(t, tt.kind, payload.Kind)
			if tt.kind == domain.KindInternal {
				assert.Equal(t, "Server Error", payload.Message)
			}
		})
	}
}

func TestOutOfStockCarriesProduct(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodPost, "/baskets/b1/buy", "user-token", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "p1", decodeError(t, rec).Details["productId"])
}

func TestBuyProductDirect(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodPost, "/products/p1/buy", "user-token", `{"color":"red","size":"M"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"invoiceId":"inv-1"}`, rec.Body.String())
	assert.Equal(t, "u1", env.checkout.purchaser)
	assert.Equal(t, []checkoutsvc.Item{{ProductID: "p1", Option: domain.Option{Color: "red", Size: "M"}}}, env.checkout.items)

	rec = env.do(http.MethodPost, "/products/p1/buy", "user-token", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPayNeedsNoCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodPost, "/invoices/inv-7/pay", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "inv-7", env.invoices.paid)
}

func TestListProductsFilter(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/products?category=tees&colors=red,%20blue,&sizes=M&minPrice=10&maxPrice=20.5&sort=price_asc&minBought=2", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `[]`, rec.Body.String())

	f := env.products.lastFilter
	assert.Equal(t, "tees", f.CategoryID)
	assert.Equal(t, []string{"red", "blue"}, f.Colors)
	assert.Equal(t, []string{"M"}, f.Sizes)
	require.NotNil(t, f.MinPrice)
	assert.True(t, f.MinPrice.Equal(decimal.NewFromInt(10)))
	assert.True(t, f.MaxPrice.Equal(decimal.RequireFromString("20.5")))
	assert.Equal(t, productrepo.SortPriceAsc, f.Sort)
	assert.Equal(t, 2, f.MinBought)
}

func TestListProductsPresets(t *testing.T) {
	env := newTestEnv(t, nil)

	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/products?type=popular&sort=3", "", "").Code)
	assert.Equal(t, popularMinBought, env.products.lastFilter.MinBought)
	assert.Equal(t, productrepo.SortNewest, env.products.lastFilter.Sort)

	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/products?type=new", "", "").Code)
	require.NotNil(t, env.products.lastFilter.CreatedAfter)
	assert.WithinDuration(t, time.Now().Add(-newWindow), *env.products.lastFilter.CreatedAfter, time.Minute)
}

func TestListProductsRejectsBadQuery(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, q := range []string{"sort=cheapest", "minPrice=abc", "minBought=-1", "createdAfter=yesterday", "type=trending"} {
		t.Run(q, func(t *testing.T) {
			rec := env.do(http.MethodGet, "/products?"+q, "", "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer abc"))
	assert.Equal(t, "", bearerToken("Basic abc"))
	assert.Equal(t, "", bearerToken(""))
}
