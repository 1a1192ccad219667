package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/segments/pkg/httpcontext"
)

var errMissingUserID = errors.New("token has no usable user_id claim")

// JWTAuth validates the bearer token and forwards its user_id claim in the
// X-User-ID header. A client-supplied X-User-ID is never trusted.
func JWTAuth(secret, issuer string, logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			ctx.Request.Header.Del(httpcontext.HeaderUserID)

			tokenString := extractToken(ctx)
			if tokenString == "" {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				logger.Warn("invalid jwt token", zap.Error(err))
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}
			if issuer != "" && !claims.VerifyIssuer(issuer, true) {
				logger.Warn("jwt issuer mismatch", zap.Any("iss", claims["iss"]))
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}

			userID, err := userIDFromClaims(claims)
			if err != nil {
				logger.Warn("invalid jwt claims", zap.Error(err))
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}
			ctx.Request.Header.Set(httpcontext.HeaderUserID, strconv.FormatInt(userID, 10))

			next(ctx)
		}
	}
}

// user_id may arrive as a JSON number or a decimal string.
func userIDFromClaims(claims jwt.MapClaims) (int64, error) {
	var id int64
	switch v := claims["user_id"].(type) {
	case float64:
		id = int64(v)
		if float64(id) != v {
			return 0, errMissingUserID
		}
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, errMissingUserID
		}
		id = parsed
	default:
		return 0, errMissingUserID
	}
	if id <= 0 {
		return 0, errMissingUserID
	}
	return id, nil
}

func extractToken(ctx *fasthttp.RequestCtx) string {
	header := string(ctx.Request.Header.Peek("Authorization"))
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}
