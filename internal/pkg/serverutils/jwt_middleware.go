package serverutils

import (
	"strings"

	"voice2note-be/internal/tenant"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// TenantLocal is the fiber Locals key holding the authenticated tenant.ID.
const TenantLocal = "tenant"

// JwtMiddleware accepts HS256 bearer tokens whose "tenant" claim is a tenant reference.
// Browsers cannot set headers on a websocket upgrade, so a "token" query parameter is
// accepted as well.
func JwtMiddleware(secret string) fiber.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(ctx *fiber.Ctx) error {
		tokenStr := ""
		if h := ctx.Get(fiber.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
			tokenStr = h[7:]
		} else {
			tokenStr = ctx.Query("token")
		}
		if tokenStr == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Missing token"))
		}

		token, err := parser.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err != nil || !token.Valid {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid claims"))
		}
		id, err := tenant.ParseClaim(claims["tenant"])
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid tenant claim"))
		}

		ctx.Locals(TenantLocal, id)
		return ctx.Next()
	}
}

// TenantFrom returns the tenant JwtMiddleware stored on the request.
func TenantFrom(ctx *fiber.Ctx) tenant.ID {
	id, _ := ctx.Locals(TenantLocal).(tenant.ID)
	return id
}

// SignTenantToken issues a token JwtMiddleware accepts. Used by tooling and tests.
func SignTenantToken(secret string, id tenant.ID, claims jwt.MapClaims) (string, error) {
	c := jwt.MapClaims{"tenant": id.String()}
	for k, v := range claims {
		c[k] = v
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}
