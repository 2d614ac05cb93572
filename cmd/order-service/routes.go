package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/MikeMC777/autoparts-orders/docs"
	"github.com/MikeMC777/autoparts-orders/internal/httpx"
	"github.com/MikeMC777/autoparts-orders/internal/metrics"
	"github.com/MikeMC777/autoparts-orders/internal/session"
	"github.com/MikeMC777/autoparts-orders/internal/user"
)

type routerDeps struct {
	Orders   orderService
	Auth     authenticator
	Users    httpx.UserGetter
	Sessions session.Store
}

// @title                      Autoparts Order Service API
// @version                    1.0
// @BasePath                   /
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
func newRouter(d routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger(), metrics.PrometheusMiddleware("order-service"))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.POST("/auth/login", loginHandler(d.Auth, d.Sessions))

	authed := r.Group("/", httpx.Auth(d.Sessions, d.Users))
	authed.POST("/auth/logout", logoutHandler(d.Sessions))

	orders := authed.Group("/orders")
	orders.GET("", listOrdersHandler(d.Orders))
	orders.POST("", createOrderHandler(d.Orders))
	orders.GET("/:id", getOrderHandler(d.Orders))
	orders.PATCH("/:id/status", updateStatusHandler(d.Orders))
	orders.PATCH("/:id/items/:itemId/cancel", cancelItemHandler(d.Orders))
	orders.PATCH("/:id/assign-delivery",
		httpx.RequireRoles(user.RoleAdmin, user.RoleSupplier),
		assignDeliveryHandler(d.Orders))

	return r
}
