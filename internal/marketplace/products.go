package marketplace

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/db"
	mware "github.com/sudo-init-do/dutydinar/internal/middleware"
)

const productColumns = `
	p.id, p.seller_id, u.name, p.name, p.description, p.price, p.stock,
	p.min_order_quantity, p.category, p.image_url, p.created_at, p.updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SellerID, &p.SellerName, &p.Name, &p.Description, &p.Price, &p.Stock,
		&p.MinOrderQuantity, &p.Category, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// GetProducts returns one product when id is given, otherwise a filtered list.
// GET /get_products.php?id=|seller_id=|search=|category=
func GetProducts(c echo.Context) error {
	ctx := c.Request().Context()

	if c.QueryParam("id") != "" {
		id, ok := queryID(c, "id")
		if !ok {
			return apperr.Respond(c, apperr.Validation("Invalid product id"))
		}
		p, err := scanProduct(db.Conn.QueryRow(ctx,
			`SELECT `+productColumns+` FROM products p JOIN users u ON u.id = p.seller_id WHERE p.id = $1`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.Respond(c, apperr.NotFound("Product not found"))
		}
		if err != nil {
			return apperr.Respond(c, apperr.Internal("load product", err))
		}
		return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"product": p}})
	}

	var (
		where []string
		args  []any
	)
	if sellerID, ok := queryID(c, "seller_id"); ok {
		args = append(args, sellerID)
		where = append(where, fmt.Sprintf("p.seller_id = $%d", len(args)))
	}
	if search := strings.TrimSpace(c.QueryParam("search")); search != "" {
		args = append(args, "%"+search+"%")
		where = append(where, fmt.Sprintf("(p.name ILIKE $%d OR p.description ILIKE $%d)", len(args), len(args)))
	}
	if category := strings.TrimSpace(c.QueryParam("category")); category != "" {
		args = append(args, category)
		where = append(where, fmt.Sprintf("p.category = $%d", len(args)))
	}

	query := `SELECT ` + productColumns + ` FROM products p JOIN users u ON u.id = p.seller_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit, offset := page(c)
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY p.created_at DESC, p.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := db.Conn.Query(ctx, query, args...)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("list products", err))
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return apperr.Respond(c, apperr.Internal("scan product", err))
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return apperr.Respond(c, apperr.Internal("list products", err))
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"products": products}})
}

type ProductRequest struct {
	Name             string          `json:"name" validate:"required,max=200"`
	Description      string          `json:"description" validate:"max=5000"`
	Price            decimal.Decimal `json:"price"`
	Stock            int             `json:"stock" validate:"gte=0"`
	MinOrderQuantity int             `json:"min_order_quantity" validate:"gte=0"`
	Category         string          `json:"category" validate:"max=100"`
	ImageURL         string          `json:"image_url" validate:"max=2000"`
}

func validPrice(p decimal.Decimal) bool {
	return !p.IsNegative() && p.Exponent() >= -2
}

// POST /add_product.php
func AddProduct(c echo.Context) error {
	sellerID, _ := caller(c)
	req := new(ProductRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}
	if !validPrice(req.Price) || req.Price.IsZero() {
		return apperr.Respond(c, apperr.Validation("price must be a positive amount with at most 2 decimals"))
	}
	if req.MinOrderQuantity == 0 {
		req.MinOrderQuantity = 1
	}

	var id int64
	err := db.Conn.QueryRow(c.Request().Context(), `
		INSERT INTO products (seller_id, name, description, price, stock, min_order_quantity, category, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, sellerID, strings.TrimSpace(req.Name), req.Description, req.Price, req.Stock, req.MinOrderQuantity,
		strings.TrimSpace(req.Category), req.ImageURL).Scan(&id)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("insert product", err))
	}

	return c.JSON(http.StatusCreated, echo.Map{"success": true, "message": "Product added", "product_id": id})
}

type UpdateProductRequest struct {
	ID               int64            `json:"id" validate:"required,gt=0"`
	Name             *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Description      *string          `json:"description" validate:"omitempty,max=5000"`
	Price            *decimal.Decimal `json:"price"`
	Stock            *int             `json:"stock" validate:"omitempty,gte=0"`
	MinOrderQuantity *int             `json:"min_order_quantity" validate:"omitempty,gte=1"`
	Category         *string          `json:"category" validate:"omitempty,max=100"`
	ImageURL         *string          `json:"image_url" validate:"omitempty,max=2000"`
}

// UpdateProduct applies the fields present in the body. Sellers may only
// touch their own products; admins may edit any.
// POST /update_product.php
func UpdateProduct(c echo.Context) error {
	userID, _ := caller(c)
	req := new(UpdateProductRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}
	if req.Price != nil && (!validPrice(*req.Price) || req.Price.IsZero()) {
		return apperr.Respond(c, apperr.Validation("price must be a positive amount with at most 2 decimals"))
	}

	ctx := c.Request().Context()
	tag, err := db.Conn.Exec(ctx, `
		UPDATE products SET
			name = COALESCE($3, name),
			description = COALESCE($4, description),
			price = COALESCE($5, price),
			stock = COALESCE($6, stock),
			min_order_quantity = COALESCE($7, min_order_quantity),
			category = COALESCE($8, category),
			image_url = COALESCE($9, image_url),
			updated_at = NOW()
		WHERE id = $1 AND (seller_id = $2 OR $10)
	`, req.ID, userID, req.Name, req.Description, req.Price, req.Stock, req.MinOrderQuantity,
		req.Category, req.ImageURL, isAdmin(c))
	if err != nil {
		return apperr.Respond(c, apperr.Internal("update product", err))
	}
	if tag.RowsAffected() == 0 {
		return apperr.Respond(c, ownershipError(c, "products", "Product", req.ID))
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Product updated"})
}

// DELETE /delete_product.php?id=
func DeleteProduct(c echo.Context) error {
	userID, _ := caller(c)
	id, ok := queryID(c, "id")
	if !ok {
		return apperr.Respond(c, apperr.Validation("Valid product id is required"))
	}

	tag, err := db.Conn.Exec(c.Request().Context(),
		`DELETE FROM products WHERE id = $1 AND (seller_id = $2 OR $3)`, id, userID, isAdmin(c))
	if err != nil {
		return apperr.Respond(c, apperr.Internal("delete product", err))
	}
	if tag.RowsAffected() == 0 {
		return apperr.Respond(c, ownershipError(c, "products", "Product", id))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Product deleted"})
}

// ownershipError tells a missing listing apart from someone else's listing.
func ownershipError(c echo.Context, table, label string, id int64) error {
	var exists bool
	err := db.Conn.QueryRow(c.Request().Context(),
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return apperr.Internal("check "+table+" ownership", err)
	}
	if !exists {
		return apperr.NotFound(label + " not found")
	}
	return apperr.Forbidden("You can only modify your own " + strings.ToLower(label) + "s")
}
