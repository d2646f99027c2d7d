package security

import (
	"github.com/golang-jwt/jwt/v5"
)

const JWTSecret string = "Taleweave"

// UserClaims 定义了 Token 中需要包含的业务信息
type UserClaims struct {
	UserID uint64   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}
