package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"engagement-shop/internal/apperr"
	"engagement-shop/internal/metrics"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Deps struct {
	Users         UserService
	Catalog       CatalogService
	Orders        OrderService
	Payments      PaymentService
	Notifications NotificationService
	Coupons       CouponService
	Realtime      Realtime
}

type Server struct {
	Deps
	logger *slog.Logger
}

// New builds the echo instance serving the public API.
func New(deps Deps, bodyLimit string, logger *slog.Logger) *echo.Echo {
	s := &Server{Deps: deps, logger: logger}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(s.requestLogger())
	if bodyLimit != "" {
		e.Use(middleware.BodyLimit(bodyLimit))
	}

	s.routes(e)
	return e
}

func (s *Server) routes(e *echo.Echo) {
	g := e.Group("/api")
	auth := s.identity
	admin := RequireRoles("admin")

	g.GET("/ws", s.serveWS, auth)

	services := g.Group("/services")
	services.GET("", s.listServices)
	services.GET("/:id", s.getService)
	services.POST("", s.createService, auth, admin)
	services.PUT("/:id", s.updateService, auth, admin)
	services.DELETE("/:id", s.deactivateService, auth, admin)

	ord := g.Group("/orders", auth)
	ord.POST("", s.createOrder)
	ord.GET("/user", s.listUserOrders)
	ord.GET("/stats", s.orderStats, admin)
	ord.GET("", s.listOrders, admin)
	ord.GET("/:id", s.getOrder)
	ord.GET("/:id/check-status", s.checkOrderStatus)
	ord.POST("/:id/refill", s.requestRefill)
	ord.GET("/:id/refill-status", s.refillStatus)
	ord.POST("/:id/process", s.processOrder, admin)
	ord.POST("/:id/refund", s.refundOrder, admin)
	ord.POST("/:id/cancel", s.cancelOrder, admin)

	pay := g.Group("/payments")
	pay.POST("/webhook", s.paymentWebhook)
	pay.GET("/methods", s.paymentMethods)
	pay.POST("/guest/checkout", s.guestCheckout)
	pay.GET("/guest/status/:id", s.guestPaymentStatus)
	pay.POST("/checkout-session", s.createCheckoutSession, auth)
	pay.POST("/process", s.processPayment, auth)
	pay.GET("/history", s.transactionHistory, auth)
	pay.GET("/transactions", s.listTransactions, auth, admin)
	pay.GET("/transactions/:id", s.getTransaction, auth)
	pay.POST("/refund", s.refundTransaction, auth, admin)

	notif := g.Group("/notifications", auth)
	notif.GET("", s.listNotifications)
	notif.GET("/unread-count", s.unreadCount)
	notif.PATCH("/read-all", s.markAllRead)
	notif.PATCH("/:id/read", s.markRead)
	notif.DELETE("/:id", s.deleteNotification)
	notif.DELETE("", s.clearNotifications)
	notif.POST("/broadcast", s.broadcast, admin)

	prefs := g.Group("/notification-preferences", auth)
	prefs.GET("", s.getPreferences)
	prefs.PUT("", s.updatePreferences)
	prefs.DELETE("", s.resetPreferences)

	usr := g.Group("/users", auth)
	usr.GET("/profile", s.profile)
	usr.GET("", s.listUsers, admin)
	usr.POST("", s.createUser, admin)
	usr.GET("/:id", s.getUser, admin)
	usr.PUT("/:id/status", s.setUserStatus, admin)

	cp := g.Group("/coupons", auth)
	cp.POST("/validate", s.validateCoupon)
	cp.POST("", s.createCoupon, admin)
	cp.GET("", s.listCoupons, admin)
	cp.GET("/:id", s.getCoupon, admin)
	cp.PUT("/:id/toggle", s.toggleCoupon, admin)
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respond(c echo.Context, status int, data any) error {
	return c.JSON(status, envelope{Success: true, Data: data})
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		status  int
		message string
		httpErr *echo.HTTPError
	)
	if errors.As(err, &httpErr) {
		status = httpErr.Code
		message = fmt.Sprint(httpErr.Message)
	} else {
		kind := apperr.KindOf(err)
		status = kind.HTTPStatus()
		message = apperr.Message(err)
		if kind == apperr.KindInternal || kind == apperr.KindUpstream {
			s.logger.Error("Request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"kind", kind.String(),
				"error", err)
		}
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, envelope{Success: false, Error: message})
	}
	if writeErr != nil {
		s.logger.Error("Failed to write error response", "error", writeErr)
	}
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogRoutePath: true,
		LogStatus:    true,
		LogLatency:   true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			metrics.HTTPRequests.
				WithLabelValues(v.Method, v.RoutePath, strconv.Itoa(v.Status)).
				Observe(v.Latency.Seconds())

			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.Round(time.Microsecond),
			}
			if v.Error != nil {
				s.logger.Warn("Request", append(attrs, "error", v.Error)...)
				return nil
			}
			s.logger.Debug("Request", attrs...)
			return nil
		},
	})
}

// bind decodes the request body, hiding echo's decoder messages from clients.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}

type page struct {
	Limit  int
	Offset int
}

func pageParams(c echo.Context) (page, error) {
	p := page{Limit: defaultPageSize}
	err := echo.QueryParamsBinder(c).
		Int("limit", &p.Limit).
		Int("offset", &p.Offset).
		BindError()
	if err != nil || p.Limit < 1 || p.Offset < 0 {
		return page{}, apperr.Validation("invalid pagination")
	}
	p.Limit = min(p.Limit, maxPageSize)
	return p, nil
}
