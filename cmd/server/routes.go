package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/sudo-init-do/dutydinar/internal/admin"
	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/auth"
	"github.com/sudo-init-do/dutydinar/internal/config"
	"github.com/sudo-init-do/dutydinar/internal/db"
	"github.com/sudo-init-do/dutydinar/internal/marketplace"
	"github.com/sudo-init-do/dutydinar/internal/messaging"
	mware "github.com/sudo-init-do/dutydinar/internal/middleware"
	"github.com/sudo-init-do/dutydinar/internal/payments"
	"github.com/sudo-init-do/dutydinar/internal/user"
	"github.com/sudo-init-do/dutydinar/internal/wallet"
)

func newServer(cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = mware.NewValidator()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			slog.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAccept, "Idempotency-Key"},
		AllowCredentials: true,
	}))
	e.Use(middleware.BodyLimit("1M"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", ready)

	// Middleware is attached per route: an empty-prefix group would also
	// claim every unmatched path.
	limited := middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.AuthRateLimit)))
	session := mware.RequireSession
	sellers := mware.RequireRoles("seller", "admin")

	e.POST("/signup.php", auth.Signup, limited)
	e.POST("/login.php", auth.Login, limited)
	e.POST("/forgot_password.php", auth.ForgotPassword, limited)
	e.POST("/verify_reset_code.php", auth.VerifyResetCode, limited)
	e.POST("/reset_password.php", auth.ResetPassword, limited)

	e.POST("/logout.php", auth.Logout)
	e.GET("/check_session.php", auth.CheckSession)

	// Public catalogue
	e.GET("/get_products.php", marketplace.GetProducts)
	e.GET("/get_events.php", marketplace.GetEvents)
	e.GET("/get_reviews.php", marketplace.GetReviews)
	e.GET("/get_seller.php", user.GetSellerProfile)
	e.GET("/wallet_pass.php", wallet.GetPass)

	e.GET("/get_profile.php", user.GetProfile, session)
	e.POST("/update_profile.php", user.UpdateProfile, session)
	e.POST("/change_password.php", user.ChangePassword, session)
	e.DELETE("/delete_account.php", user.DeleteAccount, session)

	e.POST("/add_product.php", marketplace.AddProduct, session, sellers)
	e.POST("/update_product.php", marketplace.UpdateProduct, session, sellers)
	e.DELETE("/delete_product.php", marketplace.DeleteProduct, session, sellers)

	e.POST("/add_event.php", marketplace.AddEvent, session, sellers)
	e.POST("/update_event.php", marketplace.UpdateEvent, session, sellers)
	e.DELETE("/delete_event.php", marketplace.DeleteEvent, session, sellers)
	e.POST("/book_event.php", marketplace.BookEvent, session)
	e.GET("/get_bookings.php", marketplace.GetBookings, session)

	e.GET("/get_cart.php", marketplace.GetCart, session)
	e.POST("/add_cart.php", marketplace.AddToCart, session)
	e.POST("/update_cart.php", marketplace.UpdateCart, session)
	e.POST("/delete_cart.php", marketplace.DeleteFromCart, session)
	e.POST("/clear_cart.php", marketplace.ClearCart, session)

	e.GET("/get_wishlist.php", marketplace.GetWishlist, session)
	e.POST("/add_wishlist.php", marketplace.AddToWishlist, session)
	e.POST("/delete_wishlist.php", marketplace.DeleteFromWishlist, session)

	e.POST("/create_order.php", marketplace.CreateOrder, session)
	e.GET("/get_orders.php", marketplace.GetOrders, session)
	e.GET("/get_order_details.php", marketplace.GetOrderDetails, session)
	e.GET("/get_seller_orders.php", marketplace.GetSellerOrders, session, sellers)
	e.POST("/update_order_status.php", marketplace.UpdateOrderStatus, session, sellers)

	e.POST("/create_payment_intent.php", payments.CreatePaymentIntent, session)

	e.POST("/add_review.php", marketplace.AddReview, session)

	e.GET("/get_conversations.php", messaging.GetConversations, session)
	e.POST("/start_conversation.php", messaging.StartConversation, session)
	e.GET("/get_messages.php", messaging.GetMessages, session)
	e.POST("/send_message.php", messaging.SendMessage, session)
	e.GET("/ws/conversations/:id", messaging.ConversationWS, session)

	e.Match([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		"/admin_users.php", admin.Users, session, mware.AdminGuard)
	e.GET("/admin_analytics.php", admin.GetAnalytics, session, mware.AdminGuard)
	e.GET("/admin_orders.php", admin.ListOrders, session, mware.AdminGuard)

	return e
}

func ready(c echo.Context) error {
	if db.Conn == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db not initialized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := db.Conn.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
}
