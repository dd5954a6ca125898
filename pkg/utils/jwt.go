package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maheshrc27/reshare/internal/transfer"
	"github.com/rs/zerolog/log"
)

const tokenIssuer = "reshare"

func GenerateToken(secretKey, tenantKey string, tokenDuration time.Duration) (string, error) {
	if tenantKey == "" {
		return "", errors.New("tenant key is empty")
	}

	now := time.Now()
	claims := transfer.TenantClaims{
		TenantKey: tenantKey,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   tenantKey,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(secretKey))
	if err != nil {
		log.Error().Err(err).Msg("error signing token")
		return "", err
	}
	return signedToken, nil
}

func ValidateToken(secretKey, tokenString string) (*transfer.TenantClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &transfer.TenantClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid token signing method")
		}
		return []byte(secretKey), nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*transfer.TenantClaims); ok && token.Valid && claims.TenantKey != "" {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
