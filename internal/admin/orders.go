package admin

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/db"
	"github.com/sudo-init-do/dutydinar/internal/marketplace"
)

// GET /admin_orders.php?id=|buyer_id=|seller_id=|status=
func ListOrders(c echo.Context) error {
	f := marketplace.OrderFilter{Status: c.QueryParam("status")}
	if f.Status != "" && !marketplace.IsValidStatus(f.Status) {
		return apperr.Respond(c, apperr.Validation("Invalid status"))
	}
	for name, dst := range map[string]*int64{"id": &f.OrderID, "buyer_id": &f.BuyerID, "seller_id": &f.SellerID} {
		v := c.QueryParam(name)
		if v == "" {
			continue
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return apperr.Respond(c, apperr.Validation("Invalid "+name))
		}
		*dst = id
	}
	f.Limit, f.Offset = pageParams(c)

	orders, err := marketplace.LoadOrders(c.Request().Context(), db.Conn, f)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("list admin orders", err))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"orders": orders}})
}
