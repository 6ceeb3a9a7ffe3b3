package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/sugar-marketplace/internal/auth"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/cart"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/catalog"
	apihttp "github.com/vasiliy-maslov/sugar-marketplace/internal/handler/http"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/order"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/user"
)

const testSecret = "test-secret"

type MockCartService struct {
	mock.Mock
}

func (m *MockCartService) GetCart(ctx context.Context, ownerID uuid.UUID) (*cart.View, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.View), args.Error(1)
}

func (m *MockCartService) AddItem(ctx context.Context, ownerID, foodItemID uuid.UUID, quantity int) (*cart.View, error) {
	args := m.Called(ctx, ownerID, foodItemID, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.View), args.Error(1)
}

func (m *MockCartService) UpdateItemQuantity(ctx context.Context, ownerID, foodItemID uuid.UUID, quantity int) (*cart.View, error) {
	args := m.Called(ctx, ownerID, foodItemID, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.View), args.Error(1)
}

func (m *MockCartService) RemoveItem(ctx context.Context, ownerID, foodItemID uuid.UUID) (*cart.View, error) {
	args := m.Called(ctx, ownerID, foodItemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.View), args.Error(1)
}

func (m *MockCartService) ClearCart(ctx context.Context, ownerID uuid.UUID) error {
	return m.Called(ctx, ownerID).Error(0)
}

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) Checkout(ctx context.Context, ownerID uuid.UUID, req order.CheckoutRequest) (*order.CheckoutResult, error) {
	args := m.Called(ctx, ownerID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.CheckoutResult), args.Error(1)
}

func (m *MockOrderService) GetOrder(ctx context.Context, actor order.Actor, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, actor, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]order.Order, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderService) ListOrders(ctx context.Context, actor order.Actor) ([]order.Order, error) {
	args := m.Called(ctx, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderService) UpdateOrderStatus(ctx context.Context, actor order.Actor, orderID uuid.UUID, newStatus order.OrderStatus) (*order.Order, error) {
	args := m.Called(ctx, actor, orderID, newStatus)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Register(ctx context.Context, u *user.User, password string) (*user.User, error) {
	args := m.Called(ctx, u, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserService) Authenticate(ctx context.Context, email, password string) (*user.User, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserService) GetUserByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserService) EnsureAdmin(ctx context.Context, email, password string) (*user.User, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

type MockCatalogService struct {
	mock.Mock
}

func (m *MockCatalogService) CreateFoodItem(ctx context.Context, item *catalog.FoodItem) (*catalog.FoodItem, error) {
	args := m.Called(ctx, item)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.FoodItem), args.Error(1)
}

func (m *MockCatalogService) GetFoodItem(ctx context.Context, id uuid.UUID) (*catalog.FoodItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.FoodItem), args.Error(1)
}

func (m *MockCatalogService) ListFoodItems(ctx context.Context, filter catalog.ListFilter) ([]catalog.FoodItem, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]catalog.FoodItem), args.Error(1)
}

func (m *MockCatalogService) UpdateFoodItem(ctx context.Context, editor catalog.Editor, item *catalog.FoodItem) (*catalog.FoodItem, error) {
	args := m.Called(ctx, editor, item)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.FoodItem), args.Error(1)
}

func (m *MockCatalogService) DeleteFoodItem(ctx context.Context, editor catalog.Editor, id uuid.UUID) error {
	return m.Called(ctx, editor, id).Error(0)
}

func newTestRouter(handlers ...apihttp.RouteRegistrar) http.Handler {
	return apihttp.NewRouter(zerolog.Nop(), auth.NewTokenManager(testSecret, time.Hour), handlers...)
}

func bearer(t *testing.T, userID uuid.UUID, role user.Role) string {
	t.Helper()
	token, _, err := auth.NewTokenManager(testSecret, time.Hour).Issue(userID, role)
	require.NoError(t, err)
	return "Bearer " + token
}

func doRequest(t *testing.T, h http.Handler, method, path, authorization string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) apihttp.ErrorResponse {
	t.Helper()
	var body apihttp.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body
}
