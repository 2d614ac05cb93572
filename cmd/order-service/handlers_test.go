package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/autoparts-orders/internal/memstore"
	ord "github.com/MikeMC777/autoparts-orders/internal/order"
	"github.com/MikeMC777/autoparts-orders/internal/seed"
	"github.com/MikeMC777/autoparts-orders/internal/session"
	"github.com/MikeMC777/autoparts-orders/internal/user"
)

const testPassword = "secret-pass"

//
// ---------- HARNESS ----------
//

type testEnv struct {
	router *gin.Engine
	store  *memstore.Store
	demo   *seed.Demo
	users  *user.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := memstore.New()
	demo, err := seed.Run(context.Background(), seed.Repos{
		Users:    m.Users(),
		Shops:    m.Shops(),
		Products: m.Products(),
	}, testPassword)
	require.NoError(t, err)

	svc := ord.NewService(ord.Deps{
		Orders:   m.Orders(),
		Products: m.Products(),
		Shops:    m.Shops(),
		Users:    m.Users(),
		Tx:       m,
	})
	users := user.NewService(m.Users())
	r := newRouter(routerDeps{
		Orders:   svc,
		Auth:     users,
		Users:    m.Users(),
		Sessions: session.NewMemoryStore(time.Hour),
	})
	return &testEnv{router: r, store: m, demo: demo, users: users}
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T, email string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/auth/login", "", fmt.Sprintf(`{"email":%q,"password":%q}`, email, testPassword))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp loginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func (e *testEnv) stock(t *testing.T, productID string) int {
	t.Helper()
	p, err := e.store.Products().GetByID(context.Background(), productID)
	require.NoError(t, err)
	return p.Stock
}

func (e *testEnv) createOrder(t *testing.T, token, body string) ord.Order {
	t.Helper()
	w := e.do(t, http.MethodPost, "/orders", token, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var o ord.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &o))
	return o
}

func decodeOrder(t *testing.T, w *httptest.ResponseRecorder) ord.Order {
	t.Helper()
	var o ord.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &o), w.Body.String())
	return o
}

//
// ---------- TESTS ----------
//

func TestLogin_WrongPassword(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/auth/login", "", `{"email":"customer@autoparts.local","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout_RevokesToken(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "customer@autoparts.local")

	w := env.do(t, http.MethodPost, "/auth/logout", token, "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/orders", token, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateOrder_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/orders", "", `{"items":[{"product_id":"brake-pad-001","quantity":1}]}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateOrder_HappyPath(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "customer@autoparts.local")

	// 2 unidades a 5000 => subtotal 10000 y el stock baja de 40 a 38
	o := env.createOrder(t, token, `{
		"items":[{"product_id":"brake-pad-001","quantity":2}],
		"address":{"street":"12 Rue Joss","city":"Douala","country":"CM"},
		"payment_method":"mobile-money"
	}`)

	assert.Equal(t, ord.StatusPending, o.Status)
	assert.Equal(t, "10000", o.Subtotal.String())
	assert.Equal(t, "10000", o.Total.String())
	assert.Equal(t, env.demo.Shop.ID, o.ShopID)
	assert.Regexp(t, `^ORD-[0-9A-Z]+-[0-9A-Z]{4}$`, o.Number)
	require.Len(t, o.Items, 1)
	require.Len(t, o.StatusHistory, 1)
	require.NotNil(t, o.Address)
	assert.Equal(t, "Douala", o.Address.City)
	require.NotNil(t, o.Payment)
	assert.Equal(t, ord.PaymentMobileMoney, o.Payment.Method)
	assert.Equal(t, "XAF", o.Payment.Currency)

	assert.Equal(t, 38, env.stock(t, "brake-pad-001"))
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "customer@autoparts.local")

	// timing-belt-004 tiene 5 en stock, pedimos 6
	w := env.do(t, http.MethodPost, "/orders", token, `{"items":[{"product_id":"timing-belt-004","quantity":6}]}`)

	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "insufficient stock for product timing-belt-004")
	assert.Equal(t, 5, env.stock(t, "timing-belt-004"))
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "customer@autoparts.local")

	w := env.do(t, http.MethodPost, "/orders", token, `{"items":[{"product_id":404,"quantity":1}]}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "product 404 not found or inactive")
}

func TestCreateOrder_EmptyItems(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "customer@autoparts.local")

	w := env.do(t, http.MethodPost, "/orders", token, `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ===== GET /orders/:id =====
func TestGetOrder_NotFound(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "admin@autoparts.local")

	w := env.do(t, http.MethodGet, "/orders/"+uuid.NewString(), token, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOrder_ByNumberAndOwnership(t *testing.T) {
	env := newTestEnv(t)
	customer := env.login(t, "customer@autoparts.local")
	o := env.createOrder(t, customer, `{"items":[{"product_id":"oil-filter-002","quantity":1}]}`)

	w := env.do(t, http.MethodGet, "/orders/"+o.Number, customer, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, o.ID, decodeOrder(t, w).ID)

	_, err := env.users.Register(context.Background(), "Other Buyer", "other@autoparts.local", testPassword, user.RoleCustomer)
	require.NoError(t, err)
	other := env.login(t, "other@autoparts.local")

	w = env.do(t, http.MethodGet, "/orders/"+o.ID, other, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// el proveedor dueño de la tienda sí puede verla
	supplier := env.login(t, "supplier@autoparts.local")
	w = env.do(t, http.MethodGet, "/orders/"+o.ID, supplier, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

// ===== GET /orders =====
func TestListOrders_ScopedByRole(t *testing.T) {
	env := newTestEnv(t)
	customer := env.login(t, "customer@autoparts.local")
	env.createOrder(t, customer, `{"items":[{"product_id":"spark-plug-003","quantity":4}]}`)
	env.createOrder(t, customer, `{"items":[{"product_id":"spark-plug-003","quantity":1}]}`)

	var list []ord.Order
	w := env.do(t, http.MethodGet, "/orders?limit=10", customer, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	delivery := env.login(t, "delivery@autoparts.local")
	w = env.do(t, http.MethodGet, "/orders", delivery, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list)

	w = env.do(t, http.MethodGet, "/orders?status=bogus", customer, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ===== PATCH /orders/:id/status =====
func TestUpdateStatus_RejectsIllegalTransition(t *testing.T) {
	env := newTestEnv(t)
	customer := env.login(t, "customer@autoparts.local")
	o := env.createOrder(t, customer, `{"items":[{"product_id":"brake-pad-001","quantity":1}]}`)

	admin := env.login(t, "admin@autoparts.local")
	w := env.do(t, http.MethodPatch, "/orders/"+o.ID+"/status", admin, `{"status":"DELIVERED"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "PENDING")
	assert.Contains(t, w.Body.String(), "DELIVERED")

	w = env.do(t, http.MethodGet, "/orders/"+o.ID, admin, "")
	assert.Equal(t, ord.StatusPending, decodeOrder(t, w).Status)
}

func TestUpdateStatus_CancelRestocks(t *testing.T) {
	env := newTestEnv(t)
	customer := env.login(t, "customer@autoparts.local")
	o := env.createOrder(t, customer, `{"items":[
		{"product_id":"brake-pad-001","quantity":1},
		{"product_id":"oil-filter-002","quantity":3}
	]}`)
	require.Equal(t, 39, env.stock(t, "brake-pad-001"))
	require.Equal(t, 22, env.stock(t, "oil-filter-002"))

	supplier := env.login(t, "supplier@autoparts.local")
	w := env.do(t, http.MethodPatch, "/orders/"+o.ID+"/status", supplier, `{"status":"confirmed"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPatch, "/orders/"+o.Number+"/status", customer, `{"status":"CANCELLED","note":"Changed my mind"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got := decodeOrder(t, w)
	assert.Equal(t, ord.StatusCancelled, got.Status)
	require.NotNil(t, got.CancellationReason)
	assert.Equal(t, "Changed my mind", *got.CancellationReason)
	assert.Len(t, got.StatusHistory, 3)
	assert.Equal(t, 40, env.stock(t, "brake-pad-001"))
	assert.Equal(t, 25, env.stock(t, "oil-filter-002"))
}

// ===== PATCH /orders/:id/items/:itemId/cancel =====
func TestCancelItem_OnlyOnce(t *testing.T) {
	env := newTestEnv(t)
	customer := env.login(t, "customer@autoparts.local")
	o := env.createOrder(t, customer, `{"items":[
		{"product_id":"brake-pad-001","quantity":2},
		{"product_id":"spark-plug-003","quantity":2}
	]}`)
	require.Len(t, o.Items, 2)
	itemID := o.Items[1].ID

	path := "/orders/" + o.ID + "/items/" + itemID + "/cancel"
	w := env.do(t, http.MethodPatch, path, customer, `{"reason":"Not needed"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res ord.CancelItemResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "10000", res.Subtotal.String())
	assert.Equal(t, "10000", res.Total.String())
	assert.Equal(t, 100, env.stock(t, "spark-plug-003"))

	w = env.do(t, http.MethodPatch, path, customer, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "already cancelled")
	assert.Equal(t, 100, env.stock(t, "spark-plug-003"))

	w = env.do(t, http.MethodPatch, "/orders/"+o.ID+"/items/"+uuid.NewString()+"/cancel", customer, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ===== PATCH /orders/:id/assign-delivery =====
func TestAssignDelivery_RoleRestricted(t *testing.T) {
	env := newTestEnv(t)
	customer := env.login(t, "customer@autoparts.local")
	o := env.createOrder(t, customer, `{"items":[{"product_id":"brake-pad-001","quantity":1}]}`)
	body := fmt.Sprintf(`{"delivery_person_id":%q}`, env.demo.Delivery.ID)

	w := env.do(t, http.MethodPatch, "/orders/"+o.ID+"/assign-delivery", customer, body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	supplier := env.login(t, "supplier@autoparts.local")
	w = env.do(t, http.MethodPatch, "/orders/"+o.ID+"/assign-delivery", supplier, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decodeOrder(t, w)
	require.NotNil(t, got.DeliveryPersonID)
	assert.Equal(t, env.demo.Delivery.ID, *got.DeliveryPersonID)
	require.NotNil(t, got.DeliveryPerson)
	assert.Equal(t, env.demo.Delivery.Name, got.DeliveryPerson.Name)

	// el repartidor asignado ya puede consultar la orden
	delivery := env.login(t, "delivery@autoparts.local")
	w = env.do(t, http.MethodGet, "/orders/"+o.ID, delivery, "")
	assert.Equal(t, http.StatusOK, w.Code)

	// asignar a alguien que no es repartidor
	w = env.do(t, http.MethodPatch, "/orders/"+o.ID+"/assign-delivery", supplier,
		fmt.Sprintf(`{"delivery_person_id":%q}`, env.demo.Customer.ID))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
