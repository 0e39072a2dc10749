package marketplace

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/db"
)

const (
	kindProduct = "product"
	kindEvent   = "event"
)

// listing is the purchasable view of a product or an event.
type listing struct {
	kind      string
	id        int64
	sellerID  int64
	name      string
	price     decimal.Decimal
	moq       int
	available int
	eventDate time.Time
	location  string
}

// loadListing reads the product or event with an optional row lock clause
// such as "FOR SHARE" or "FOR UPDATE".
func loadListing(ctx context.Context, q db.Querier, productID, eventID int64, lock string) (listing, error) {
	var (
		l   listing
		err error
	)
	switch {
	case productID > 0:
		l = listing{kind: kindProduct, id: productID}
		err = q.QueryRow(ctx, `
			SELECT seller_id, name, price, min_order_quantity, stock
			FROM products WHERE id = $1 `+lock, productID).
			Scan(&l.sellerID, &l.name, &l.price, &l.moq, &l.available)
		if db.IsNoRows(err) {
			return l, apperr.NotFound("Product not found")
		}
	case eventID > 0:
		l = listing{kind: kindEvent, id: eventID, moq: 1}
		err = q.QueryRow(ctx, `
			SELECT seller_id, name, price, available_tickets, event_date, location
			FROM events WHERE id = $1 `+lock, eventID).
			Scan(&l.sellerID, &l.name, &l.price, &l.available, &l.eventDate, &l.location)
		if db.IsNoRows(err) {
			return l, apperr.NotFound("Event not found")
		}
	default:
		return l, apperr.Validation("product_id or event_id is required")
	}
	if err != nil {
		return l, apperr.Internal("load "+l.kind, err)
	}
	return l, nil
}

// checkQuantity enforces the minimum order quantity and availability of l.
func checkQuantity(l listing, qty int) error {
	if qty < 1 {
		return apperr.Validation("quantity must be at least 1")
	}
	switch l.kind {
	case kindProduct:
		if qty < l.moq {
			return apperr.New(apperr.CodeBelowMinimumOrder,
				fmt.Sprintf("Minimum order quantity for %s is %d", l.name, l.moq))
		}
		if qty > l.available {
			return apperr.New(apperr.CodeInsufficientStock,
				fmt.Sprintf("Only %d units of %s in stock", l.available, l.name))
		}
	case kindEvent:
		if qty > l.available {
			if l.available == 0 {
				return apperr.New(apperr.CodeSoldOut, fmt.Sprintf("%s is sold out", l.name))
			}
			return apperr.New(apperr.CodeSoldOut,
				fmt.Sprintf("Only %d tickets left for %s", l.available, l.name))
		}
	}
	return nil
}

// exactlyOne reports whether exactly one of the two ids is set.
func exactlyOne(productID, eventID int64) bool {
	return (productID > 0) != (eventID > 0)
}
