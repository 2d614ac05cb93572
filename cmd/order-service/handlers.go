package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/MikeMC777/autoparts-orders/internal/httpx"
	ord "github.com/MikeMC777/autoparts-orders/internal/order"
	"github.com/MikeMC777/autoparts-orders/internal/session"
	"github.com/MikeMC777/autoparts-orders/internal/user"
)

type orderService interface {
	Create(ctx context.Context, actor ord.Actor, req ord.CreateOrderRequest) (*ord.Order, error)
	Get(ctx context.Context, actor ord.Actor, idOrNumber string) (*ord.Order, error)
	List(ctx context.Context, actor ord.Actor, q ord.ListQuery) ([]ord.Order, error)
	UpdateStatus(ctx context.Context, actor ord.Actor, idOrNumber string, req ord.UpdateStatusRequest) (*ord.Order, error)
	CancelItem(ctx context.Context, actor ord.Actor, idOrNumber, itemID string, req ord.CancelItemRequest) (*ord.CancelItemResult, error)
	AssignDelivery(ctx context.Context, actor ord.Actor, idOrNumber string, req ord.AssignDeliveryRequest) (*ord.Order, error)
}

type authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*user.User, error)
}

type errorResponse struct {
	Error string `json:"error"`
}

type loginRequest struct {
	Email    string `json:"email"    example:"customer@autoparts.local"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *user.User `json:"user"`
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ord.ErrValidation):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, ord.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, ord.ErrForbidden):
		c.JSON(http.StatusForbidden, errorResponse{Error: err.Error()})
	default:
		rid, _ := c.Get("rid")
		log.WithFields(log.Fields{"rid": rid, "error": err}).Error("request failed")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func actorOf(c *gin.Context) ord.Actor {
	u := httpx.CurrentUser(c)
	if u == nil {
		return ord.Actor{}
	}
	return ord.Actor{ID: u.ID, Role: u.Role}
}

// loginHandler godoc
// @Summary  Issue a bearer token
// @Tags     auth
// @Accept   json
// @Produce  json
// @Param    body body loginRequest true "Credentials"
// @Success  200 {object} loginResponse
// @Failure  401 {object} errorResponse
// @Router   /auth/login [post]
func loginHandler(users authenticator, sessions session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid json"})
			return
		}
		u, err := users.Authenticate(c.Request.Context(), req.Email, req.Password)
		if errors.Is(err, user.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
			return
		}
		if err != nil {
			writeError(c, err)
			return
		}
		token, exp, err := sessions.Issue(c.Request.Context(), u.ID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: exp, User: u})
	}
}

// @Summary  Revoke the current token
// @Tags     auth
// @Security BearerAuth
// @Success  204
// @Router   /auth/logout [post]
func logoutHandler(sessions session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := sessions.Revoke(c.Request.Context(), httpx.BearerToken(c)); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  List orders visible to the caller
// @Tags     orders
// @Security BearerAuth
// @Produce  json
// @Param    status query string false "Status filter"
// @Param    limit  query int    false "Page size (1-100)"
// @Param    offset query int    false "Offset"
// @Success  200 {array}  ord.Order
// @Failure  400 {object} errorResponse
// @Router   /orders [get]
func listOrdersHandler(svc orderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := ord.ListQuery{Status: ord.Status(c.Query("status"))}
		var err error
		if v := c.Query("limit"); v != "" {
			if q.Limit, err = strconv.Atoi(v); err != nil {
				c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be an integer"})
				return
			}
		}
		if v := c.Query("offset"); v != "" {
			if q.Offset, err = strconv.Atoi(v); err != nil {
				c.JSON(http.StatusBadRequest, errorResponse{Error: "offset must be an integer"})
				return
			}
		}
		orders, err := svc.List(c.Request.Context(), actorOf(c), q)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, orders)
	}
}

// @Summary  Get an order by id or order number
// @Tags     orders
// @Security BearerAuth
// @Produce  json
// @Param    id path string true "Order id or number"
// @Success  200 {object} ord.Order
// @Failure  403 {object} errorResponse
// @Failure  404 {object} errorResponse
// @Router   /orders/{id} [get]
func getOrderHandler(svc orderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.Get(c.Request.Context(), actorOf(c), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

// @Summary  Create an order
// @Tags     orders
// @Security BearerAuth
// @Accept   json
// @Produce  json
// @Param    body body ord.CreateOrderRequest true "Order"
// @Success  201 {object} ord.Order
// @Failure  400 {object} errorResponse
// @Failure  404 {object} errorResponse
// @Router   /orders [post]
func createOrderHandler(svc orderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ord.CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid json: " + err.Error()})
			return
		}
		o, err := svc.Create(c.Request.Context(), actorOf(c), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, o)
	}
}

// @Summary  Move an order to a new status
// @Tags     orders
// @Security BearerAuth
// @Accept   json
// @Produce  json
// @Param    id   path string                  true "Order id or number"
// @Param    body body ord.UpdateStatusRequest true "Target status"
// @Success  200 {object} ord.Order
// @Failure  400 {object} errorResponse
// @Failure  404 {object} errorResponse
// @Router   /orders/{id}/status [patch]
func updateStatusHandler(svc orderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ord.UpdateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid json"})
			return
		}
		o, err := svc.UpdateStatus(c.Request.Context(), actorOf(c), c.Param("id"), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

// @Summary  Cancel a single order item
// @Tags     orders
// @Security BearerAuth
// @Accept   json
// @Produce  json
// @Param    id     path string                true  "Order id or number"
// @Param    itemId path string                true  "Item id"
// @Param    body   body ord.CancelItemRequest false "Reason"
// @Success  200 {object} ord.CancelItemResult
// @Failure  400 {object} errorResponse
// @Failure  404 {object} errorResponse
// @Router   /orders/{id}/items/{itemId}/cancel [patch]
func cancelItemHandler(svc orderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ord.CancelItemRequest
		// body is optional
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid json"})
			return
		}
		res, err := svc.CancelItem(c.Request.Context(), actorOf(c), c.Param("id"), c.Param("itemId"), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary  Assign a delivery person
// @Tags     orders
// @Security BearerAuth
// @Accept   json
// @Produce  json
// @Param    id   path string                    true "Order id or number"
// @Param    body body ord.AssignDeliveryRequest true "Delivery person"
// @Success  200 {object} ord.Order
// @Failure  400 {object} errorResponse
// @Failure  403 {object} errorResponse
// @Router   /orders/{id}/assign-delivery [patch]
func assignDeliveryHandler(svc orderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ord.AssignDeliveryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid json"})
			return
		}
		o, err := svc.AssignDelivery(c.Request.Context(), actorOf(c), c.Param("id"), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}
