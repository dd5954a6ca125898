package transfer

import "github.com/golang-jwt/jwt/v5"

// TenantClaims identify the tenant an API session acts for.
type TenantClaims struct {
	TenantKey string `json:"tenant_key"`
	jwt.RegisteredClaims
}
