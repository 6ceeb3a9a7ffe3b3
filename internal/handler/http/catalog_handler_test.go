package http_test

import (
	"net/http"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/vasiliy-maslov/sugar-marketplace/internal/catalog"
	apihttp "github.com/vasiliy-maslov/sugar-marketplace/internal/handler/http"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/money"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/user"
)

func TestCatalogHandler_List(t *testing.T) {
	listerID := uuid.Must(uuid.NewV4())
	mockService := new(MockCatalogService)
	router := newTestRouter(apihttp.NewCatalogHandler(mockService))

	mockService.On("ListFoodItems", mock.Anything, catalog.ListFilter{
		Category: "bakery",
		ListerID: listerID,
		Query:    "bread",
		Limit:    10,
		Offset:   20,
	}).Return([]catalog.FoodItem{{Title: "Sourdough", Price: 650}}, nil).Once()

	rr := doRequest(t, router, http.MethodGet,
		"/food-items?category=bakery&q=bread&lister="+listerID.String()+"&limit=10&offset=20", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"price":6.50`)

	rr = doRequest(t, router, http.MethodGet, "/food-items?limit=ten&lister=x", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeError(t, rr)
	assert.Contains(t, body.Details, "limit")
	assert.Contains(t, body.Details, "lister")

	mockService.AssertExpectations(t)
}

func TestCatalogHandler_Create(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	mockService := new(MockCatalogService)
	router := newTestRouter(apihttp.NewCatalogHandler(mockService))

	rr := doRequest(t, router, http.MethodPost, "/food-items", "", map[string]interface{}{"title": "Jam"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	mockService.On("CreateFoodItem", mock.Anything, mock.MatchedBy(func(item *catalog.FoodItem) bool {
		return item.ListerID == userID && item.Price == money.Cents(450) && item.IsAvailable
	})).Return(&catalog.FoodItem{ID: uuid.Must(uuid.NewV4()), ListerID: userID, Title: "Jam", Price: 450, IsAvailable: true}, nil).Once()

	rr = doRequest(t, router, http.MethodPost, "/food-items", bearer(t, userID, user.RoleUser), map[string]interface{}{
		"title":    "Jam",
		"producer": "Hill Farm",
		"category": "preserves",
		"price":    "4.50",
	})
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = doRequest(t, router, http.MethodPost, "/food-items", bearer(t, userID, user.RoleUser), map[string]interface{}{
		"title":    "Jam",
		"producer": "Hill Farm",
		"category": "preserves",
		"price":    4.505,
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	mockService.AssertExpectations(t)
}

func TestCatalogHandler_UpdateDelete(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	itemID := uuid.Must(uuid.NewV4())
	mockService := new(MockCatalogService)
	router := newTestRouter(apihttp.NewCatalogHandler(mockService))
	token := bearer(t, userID, user.RoleUser)

	mockService.On("UpdateFoodItem", mock.Anything, catalog.Editor{UserID: userID}, mock.MatchedBy(func(item *catalog.FoodItem) bool {
		return item.ID == itemID && !item.IsAvailable
	})).Return(nil, catalog.ErrNotLister).Once()

	rr := doRequest(t, router, http.MethodPut, "/food-items/"+itemID.String(), token, map[string]interface{}{
		"title":       "Jam",
		"producer":    "Hill Farm",
		"category":    "preserves",
		"price":       4,
		"isAvailable": false,
	})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	mockService.On("DeleteFoodItem", mock.Anything, catalog.Editor{UserID: userID}, itemID).Return(nil).Once()
	rr = doRequest(t, router, http.MethodDelete, "/food-items/"+itemID.String(), token, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	mockService.On("GetFoodItem", mock.Anything, itemID).Return(nil, catalog.ErrFoodItemNotFound).Once()
	rr = doRequest(t, router, http.MethodGet, "/food-items/"+itemID.String(), "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	mockService.AssertExpectations(t)
}
