package models

import (
	"fmt"
	"strings"
	"time"

	"Travault/pkg/config"
	constants "Travault/pkg/constant"
	"Travault/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"
)

const tokenIssuer = "travault"

// Claims JWT 声明
type Claims struct {
	UserID uint `json:"user_id"`
	jwt.RegisteredClaims
}

func tokenSecret() []byte {
	if config.GlobalConfig != nil && config.GlobalConfig.JWTSecret != "" {
		return []byte(config.GlobalConfig.JWTSecret)
	}
	return []byte("travault-dev-secret")
}

func tokenTTL() time.Duration {
	if config.GlobalConfig != nil && config.GlobalConfig.JWTExpire > 0 {
		return config.GlobalConfig.JWTExpire
	}
	return 7 * 24 * time.Hour
}

// IssueToken 签发 HS256 令牌
func IssueToken(userID uint, now time.Time) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   fmt.Sprint(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL())),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tokenSecret())
}

// ParseToken 校验签名与有效期
func ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tokenSecret(), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// TokenFromRequest 依次从 Authorization 头、token cookie、token 查询参数读取
func TokenFromRequest(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if v, err := c.Cookie(constants.TokenCookie); err == nil && v != "" {
		return v
	}
	return c.Query("token")
}

// AuthRequired 校验令牌并加载有效用户
func AuthRequired(c *gin.Context) {
	token := TokenFromRequest(c)
	if token == "" {
		response.AbortWithStatus(c, 401, "Access denied. No token provided.", nil)
		return
	}
	claims, err := ParseToken(token)
	if err != nil {
		response.AbortWithStatus(c, 401, "Invalid token.", nil)
		return
	}
	v, _ := c.Get(constants.DbField)
	db, ok := v.(*gorm.DB)
	if !ok {
		response.AbortWithStatus(c, 500, "Server error", nil)
		return
	}
	user, err := GetUserByID(db, claims.UserID)
	if err != nil || !user.IsActive {
		response.AbortWithStatus(c, 401, "Invalid token or user not found.", nil)
		return
	}
	c.Set(constants.UserField, fmt.Sprint(user.ID))
	c.Set(constants.UserObject, user)
	c.Next()
}

// VerifiedRequired 需在 AuthRequired 之后使用
func VerifiedRequired(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		response.AbortWithStatus(c, 401, "Access denied. No token provided.", nil)
		return
	}
	if !user.IsVerified {
		response.AbortWithStatus(c, 403, "Email verification required to access this feature.", nil)
		return
	}
	c.Next()
}

// CurrentUser 当前登录用户
func CurrentUser(c *gin.Context) *User {
	if v, ok := c.Get(constants.UserObject); ok {
		if u, ok := v.(*User); ok {
			return u
		}
	}
	return nil
}
