package auth

import (
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "sudooom.estate.chat/internal/errors"
	"sudooom.estate.chat/internal/model"
)

// Claims JWT 声明
type Claims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier 连接握手时的身份验证器
// 每个连接只验证一次，得到的身份作为后续所有鉴权的唯一依据
type Verifier struct {
	secretKey []byte
	logger    *slog.Logger
}

// NewVerifier 创建身份验证器
func NewVerifier(secret string, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		secretKey: []byte(secret),
		logger:    logger,
	}
}

// Verify 验证凭证并返回身份
// 凭证可以带 "Bearer " 前缀（来自 Authorization 头）
func (v *Verifier) Verify(credential string) (*model.Identity, error) {
	credential = strings.TrimSpace(strings.TrimPrefix(credential, "Bearer "))
	if credential == "" {
		v.logger.Warn("Connection rejected: missing credential")
		return nil, apperrors.ErrTokenMissing
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.ErrTokenInvalid
		}
		return v.secretKey, nil
	})
	if err != nil || !token.Valid {
		v.logger.Warn("Connection rejected: invalid credential", "error", err)
		return nil, apperrors.ErrTokenInvalid.Wrap(err)
	}

	identity := &model.Identity{
		ID:    claims.UserID,
		Email: claims.Email,
	}

	v.logger.Info("Connection authenticated", "user_id", identity.ID)
	return identity, nil
}

// Sign 为指定身份签发凭证（供测试和内部工具使用，签发服务在系统外部）
func (v *Verifier) Sign(identity *model.Identity, expire time.Duration) (string, error) {
	claims := &Claims{
		UserID: identity.ID,
		Email:  identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expire)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "estate-chat",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secretKey)
}
