package order_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/catalog"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/money"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/order"
)

type mockOrderRepository struct {
	checkoutFunc     func(ctx context.Context, ownerID uuid.UUID, build order.BuildFunc) (*order.Order, error)
	getByIDFunc      func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	getByUserFunc    func(ctx context.Context, userID uuid.UUID) ([]order.Order, error)
	listFunc         func(ctx context.Context) ([]order.Order, error)
	updateStatusFunc func(ctx context.Context, id uuid.UUID, from, to order.OrderStatus, at time.Time) (*order.Order, error)
}

func (m *mockOrderRepository) Checkout(ctx context.Context, ownerID uuid.UUID, build order.BuildFunc) (*order.Order, error) {
	return m.checkoutFunc(ctx, ownerID, build)
}

func (m *mockOrderRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockOrderRepository) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]order.Order, error) {
	return m.getByUserFunc(ctx, userID)
}

func (m *mockOrderRepository) ListOrders(ctx context.Context) ([]order.Order, error) {
	return m.listFunc(ctx)
}

func (m *mockOrderRepository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to order.OrderStatus, at time.Time) (*order.Order, error) {
	return m.updateStatusFunc(ctx, id, from, to, at)
}

type MockDeduplicator struct {
	mock.Mock
}

func (m *MockDeduplicator) Begin(ctx context.Context, key string) (uuid.UUID, bool, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(uuid.UUID), args.Bool(1), args.Error(2)
}

func (m *MockDeduplicator) Complete(ctx context.Context, key string, orderID uuid.UUID) error {
	return m.Called(ctx, key, orderID).Error(0)
}

func (m *MockDeduplicator) Abort(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func foodItem(price money.Cents, title string) *catalog.FoodItem {
	return &catalog.FoodItem{
		ID:          uuid.Must(uuid.NewV4()),
		ListerID:    uuid.Must(uuid.NewV4()),
		Title:       title,
		Producer:    "Corner Bakery",
		Price:       price,
		IsAvailable: true,
	}
}

// snapshotOf builds a cart snapshot with one line per item, quantities in order.
func snapshotOf(owner uuid.UUID, items []*catalog.FoodItem, quantities []int) order.CartSnapshot {
	snap := order.CartSnapshot{CartID: uuid.Must(uuid.NewV4()), OwnerID: owner, Version: 3}
	for i, it := range items {
		snap.Lines = append(snap.Lines, order.SnapshotLine{FoodItemID: it.ID, Quantity: quantities[i], Item: it})
	}
	return snap
}

func checkoutRequest() order.CheckoutRequest {
	return order.CheckoutRequest{ShippingDetails: validShipping(), PaymentMethod: order.PaymentCreditCard}
}

func TestBuildOrder_TotalsInCents(t *testing.T) {
	owner := uuid.Must(uuid.NewV4())
	a := foodItem(300, "Croissant")
	b := foodItem(550, "Sourdough")
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	o, err := order.BuildOrder(snapshotOf(owner, []*catalog.FoodItem{a, b}, []int{2, 1}), checkoutRequest(), now)
	require.NoError(t, err)

	assert.Equal(t, money.Cents(1150), o.TotalAmount)
	assert.Equal(t, "11.50", o.TotalAmount.String())
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, owner, o.UserID)
	assert.Equal(t, now, o.OrderDate)
	assert.NotEqual(t, uuid.Nil, o.ID)

	want := []order.OrderItem{
		{FoodItemID: a.ID, Title: "Croissant", Producer: "Corner Bakery", UnitPrice: 300, Quantity: 2},
		{FoodItemID: b.ID, Title: "Sourdough", Producer: "Corner Bakery", UnitPrice: 550, Quantity: 1},
	}
	for i := range o.OrderItems {
		assert.NotEqual(t, uuid.Nil, o.OrderItems[i].ID)
		o.OrderItems[i].ID = uuid.Nil
	}
	assert.Empty(t, cmp.Diff(want, o.OrderItems))
}

func TestBuildOrder_Rejections(t *testing.T) {
	owner := uuid.Must(uuid.NewV4())

	t.Run("empty", func(t *testing.T) {
		_, err := order.BuildOrder(order.CartSnapshot{OwnerID: owner}, checkoutRequest(), time.Now())
		assert.ErrorIs(t, err, order.ErrEmptyCart)
	})

	t.Run("unavailable_and_deleted", func(t *testing.T) {
		withdrawn := foodItem(100, "Old bread")
		withdrawn.IsAvailable = false
		ok := foodItem(200, "Bagel")
		snap := snapshotOf(owner, []*catalog.FoodItem{withdrawn, ok}, []int{1, 1})
		deletedID := uuid.Must(uuid.NewV4())
		snap.Lines = append(snap.Lines, order.SnapshotLine{FoodItemID: deletedID, Quantity: 1})

		_, err := order.BuildOrder(snap, checkoutRequest(), time.Now())
		require.ErrorIs(t, err, order.ErrItemUnavailable)
		var uerr *order.UnavailableItemsError
		require.True(t, errors.As(err, &uerr))
		assert.Equal(t, []uuid.UUID{withdrawn.ID, deletedID}, uerr.FoodItemIDs)
	})

	t.Run("own_listing", func(t *testing.T) {
		mine := foodItem(100, "My jam")
		mine.ListerID = owner
		_, err := order.BuildOrder(snapshotOf(owner, []*catalog.FoodItem{mine}, []int{1}), checkoutRequest(), time.Now())
		var verr *order.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Contains(t, verr.Fields, "items")
	})

	t.Run("total_mismatch", func(t *testing.T) {
		req := checkoutRequest()
		stale := money.Cents(1000)
		req.ExpectedTotal = &stale
		_, err := order.BuildOrder(snapshotOf(owner, []*catalog.FoodItem{foodItem(300, "Croissant")}, []int{4}), req, time.Now())
		require.ErrorIs(t, err, order.ErrTotalMismatch)
		var merr *order.TotalMismatchError
		require.True(t, errors.As(err, &merr))
		assert.Equal(t, money.Cents(1000), merr.Expected)
		assert.Equal(t, money.Cents(1200), merr.Actual)
	})
}

func TestBuildOrder_SnapshotIsCopied(t *testing.T) {
	owner := uuid.Must(uuid.NewV4())
	a := foodItem(300, "Croissant")

	o, err := order.BuildOrder(snapshotOf(owner, []*catalog.FoodItem{a}, []int{2}), checkoutRequest(), time.Now())
	require.NoError(t, err)

	a.Price = 999
	a.Title = "Renamed"
	assert.Equal(t, money.Cents(300), o.OrderItems[0].UnitPrice)
	assert.Equal(t, "Croissant", o.OrderItems[0].Title)
	assert.Equal(t, money.Cents(600), o.TotalAmount)
}

func TestOrderService_Checkout(t *testing.T) {
	owner := uuid.Must(uuid.NewV4())
	snap := snapshotOf(owner, []*catalog.FoodItem{foodItem(300, "A"), foodItem(550, "B")}, []int{2, 1})

	tests := []struct {
		name       string
		req        func() order.CheckoutRequest
		checkout   func(ctx context.Context, ownerID uuid.UUID, build order.BuildFunc) (*order.Order, error)
		wantErrIs  error
		wantErrAs  bool
		wantTotal  money.Cents
		wantCalled bool
	}{
		{
			name: "success",
			req:  checkoutRequest,
			checkout: func(_ context.Context, _ uuid.UUID, build order.BuildFunc) (*order.Order, error) {
				return build(snap)
			},
			wantTotal:  1150,
			wantCalled: true,
		},
		{
			name: "empty_cart",
			req:  checkoutRequest,
			checkout: func(context.Context, uuid.UUID, order.BuildFunc) (*order.Order, error) {
				return nil, order.ErrEmptyCart
			},
			wantErrIs:  order.ErrEmptyCart,
			wantCalled: true,
		},
		{
			name: "invalid_shipping_never_reaches_storage",
			req: func() order.CheckoutRequest {
				r := checkoutRequest()
				r.ShippingDetails.PostalCode = "nope"
				r.PaymentMethod = "bitcoin"
				return r
			},
			wantErrAs: true,
		},
		{
			name: "storage_failure_is_wrapped",
			req:  checkoutRequest,
			checkout: func(context.Context, uuid.UUID, order.BuildFunc) (*order.Order, error) {
				return nil, errors.New("connection refused")
			},
			wantCalled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			repo := &mockOrderRepository{
				checkoutFunc: func(ctx context.Context, ownerID uuid.UUID, build order.BuildFunc) (*order.Order, error) {
					called = true
					assert.Equal(t, owner, ownerID)
					return tt.checkout(ctx, ownerID, build)
				},
			}
			svc := order.NewService(repo, nil)

			res, err := svc.Checkout(context.Background(), owner, tt.req())
			assert.Equal(t, tt.wantCalled, called)

			switch {
			case tt.wantErrIs != nil:
				assert.ErrorIs(t, err, tt.wantErrIs)
			case tt.wantErrAs:
				var verr *order.ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Contains(t, verr.Fields, "shippingDetails.postalCode")
				assert.Contains(t, verr.Fields, "paymentMethod")
			case tt.wantTotal != 0:
				require.NoError(t, err)
				assert.False(t, res.Replayed)
				assert.Equal(t, tt.wantTotal, res.Order.TotalAmount)
			default:
				require.Error(t, err)
				assert.Contains(t, err.Error(), "connection refused")
			}
		})
	}
}

func TestOrderService_Checkout_Idempotency(t *testing.T) {
	owner := uuid.Must(uuid.NewV4())
	key := owner.String() + ":abc"
	snap := snapshotOf(owner, []*catalog.FoodItem{foodItem(300, "A")}, []int{1})

	req := checkoutRequest()
	req.IdempotencyKey = "abc"

	t.Run("first_request_records_order", func(t *testing.T) {
		dedup := new(MockDeduplicator)
		repo := &mockOrderRepository{
			checkoutFunc: func(_ context.Context, _ uuid.UUID, build order.BuildFunc) (*order.Order, error) {
				return build(snap)
			},
		}
		dedup.On("Begin", mock.Anything, key).Return(uuid.Nil, true, nil).Once()
		dedup.On("Complete", mock.Anything, key, mock.AnythingOfType("uuid.UUID")).Return(nil).Once()

		res, err := order.NewService(repo, dedup).Checkout(context.Background(), owner, req)
		require.NoError(t, err)
		assert.False(t, res.Replayed)
		dedup.AssertExpectations(t)
	})

	t.Run("replay_returns_original", func(t *testing.T) {
		dedup := new(MockDeduplicator)
		existing := &order.Order{ID: uuid.Must(uuid.NewV4()), UserID: owner, Status: order.StatusPending, TotalAmount: 300}
		repo := &mockOrderRepository{
			checkoutFunc: func(context.Context, uuid.UUID, order.BuildFunc) (*order.Order, error) {
				t.Fatal("checkout must not run on replay")
				return nil, nil
			},
			getByIDFunc: func(_ context.Context, id uuid.UUID) (*order.Order, error) {
				assert.Equal(t, existing.ID, id)
				return existing, nil
			},
		}
		dedup.On("Begin", mock.Anything, key).Return(existing.ID, false, nil).Once()

		res, err := order.NewService(repo, dedup).Checkout(context.Background(), owner, req)
		require.NoError(t, err)
		assert.True(t, res.Replayed)
		assert.Equal(t, existing, res.Order)
		dedup.AssertExpectations(t)
	})

	t.Run("in_progress", func(t *testing.T) {
		dedup := new(MockDeduplicator)
		dedup.On("Begin", mock.Anything, key).Return(uuid.Nil, false, nil).Once()

		_, err := order.NewService(&mockOrderRepository{}, dedup).Checkout(context.Background(), owner, req)
		assert.ErrorIs(t, err, order.ErrCheckoutInProgress)
	})

	t.Run("failure_releases_key", func(t *testing.T) {
		dedup := new(MockDeduplicator)
		repo := &mockOrderRepository{
			checkoutFunc: func(context.Context, uuid.UUID, order.BuildFunc) (*order.Order, error) {
				return nil, order.ErrEmptyCart
			},
		}
		dedup.On("Begin", mock.Anything, key).Return(uuid.Nil, true, nil).Once()
		dedup.On("Abort", mock.Anything, key).Return(nil).Once()

		_, err := order.NewService(repo, dedup).Checkout(context.Background(), owner, req)
		assert.ErrorIs(t, err, order.ErrEmptyCart)
		dedup.AssertExpectations(t)
		dedup.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestOrderService_GetOrder(t *testing.T) {
	owner := uuid.Must(uuid.NewV4())
	stored := &order.Order{ID: uuid.Must(uuid.NewV4()), UserID: owner, Status: order.StatusPending}
	repo := &mockOrderRepository{
		getByIDFunc: func(_ context.Context, id uuid.UUID) (*order.Order, error) {
			if id == stored.ID {
				return stored, nil
			}
			return nil, order.ErrOrderNotFound
		},
	}
	svc := order.NewService(repo, nil)
	ctx := context.Background()

	got, err := svc.GetOrder(ctx, order.Actor{UserID: owner}, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored, got)

	_, err = svc.GetOrder(ctx, order.Actor{UserID: uuid.Must(uuid.NewV4()), Admin: true}, stored.ID)
	require.NoError(t, err)

	_, err = svc.GetOrder(ctx, order.Actor{UserID: uuid.Must(uuid.NewV4())}, stored.ID)
	assert.ErrorIs(t, err, order.ErrForbidden)

	_, err = svc.GetOrder(ctx, order.Actor{UserID: owner}, uuid.Must(uuid.NewV4()))
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestOrderService_ListOrders_AdminOnly(t *testing.T) {
	repo := &mockOrderRepository{
		listFunc: func(context.Context) ([]order.Order, error) {
			return []order.Order{{ID: uuid.Must(uuid.NewV4())}}, nil
		},
	}
	svc := order.NewService(repo, nil)

	_, err := svc.ListOrders(context.Background(), order.Actor{UserID: uuid.Must(uuid.NewV4())})
	assert.ErrorIs(t, err, order.ErrForbidden)

	orders, err := svc.ListOrders(context.Background(), order.Actor{UserID: uuid.Must(uuid.NewV4()), Admin: true})
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestOrderService_UpdateOrderStatus(t *testing.T) {
	owner := uuid.Must(uuid.NewV4())
	orderID := uuid.Must(uuid.NewV4())

	tests := []struct {
		name       string
		actor      order.Actor
		current    order.OrderStatus
		newStatus  order.OrderStatus
		updateErr  error
		wantErr    error
		wantUpdate bool
	}{
		{name: "owner_cancels_pending", actor: order.Actor{UserID: owner}, current: order.StatusPending, newStatus: order.StatusCancelled, wantUpdate: true},
		{name: "admin_ships", actor: order.Actor{Admin: true}, current: order.StatusProcessing, newStatus: order.StatusShipped, wantUpdate: true},
		{name: "stranger_forbidden", actor: order.Actor{UserID: uuid.Must(uuid.NewV4())}, current: order.StatusPending, newStatus: order.StatusCancelled, wantErr: order.ErrForbidden},
		{name: "delivered_is_terminal", actor: order.Actor{Admin: true}, current: order.StatusDelivered, newStatus: order.StatusCancelled, wantErr: order.ErrInvalidTransition},
		{name: "concurrent_change", actor: order.Actor{Admin: true}, current: order.StatusPending, newStatus: order.StatusProcessing, updateErr: order.ErrStatusConflict, wantErr: order.ErrStatusConflict, wantUpdate: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated := false
			repo := &mockOrderRepository{
				getByIDFunc: func(context.Context, uuid.UUID) (*order.Order, error) {
					return &order.Order{ID: orderID, UserID: owner, Status: tt.current}, nil
				},
				updateStatusFunc: func(_ context.Context, id uuid.UUID, from, to order.OrderStatus, _ time.Time) (*order.Order, error) {
					updated = true
					assert.Equal(t, tt.current, from)
					assert.Equal(t, tt.newStatus, to)
					if tt.updateErr != nil {
						return nil, tt.updateErr
					}
					return &order.Order{ID: id, UserID: owner, Status: to}, nil
				},
			}

			got, err := order.NewService(repo, nil).UpdateOrderStatus(context.Background(), tt.actor, orderID, tt.newStatus)
			assert.Equal(t, tt.wantUpdate, updated)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.newStatus, got.Status)
		})
	}
}

func TestOrderService_UpdateOrderStatus_UnknownStatus(t *testing.T) {
	svc := order.NewService(&mockOrderRepository{}, nil)
	_, err := svc.UpdateOrderStatus(context.Background(), order.Actor{Admin: true}, uuid.Must(uuid.NewV4()), "lost")

	var verr *order.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "status")
}
