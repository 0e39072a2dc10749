package wallet

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/config"
)

var issuer = NewIssuer("https://passes.dutydinar.local", "dev-only-secret")

// Configure points the package issuer at the configured pass host and key.
func Configure(cfg *config.Config) {
	issuer = NewIssuer(cfg.WalletPassBaseURL, cfg.JWTSecret)
}

// IssueLinks signs pass links with the package issuer.
func IssueLinks(p Pass) (Links, error) {
	links, _, err := issuer.Issue(p)
	return links, err
}

// GetPass resolves a pass token back into ticket details.
// GET /wallet_pass.php?token=...
func GetPass(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return apperr.Respond(c, apperr.Validation("token is required"))
	}
	pass, err := issuer.Verify(token)
	if err != nil {
		return apperr.Respond(c, apperr.NotFound("Wallet pass not found or expired"))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"pass": pass}})
}
