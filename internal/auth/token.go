package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cartelera-live/cartelera/internal/domain"
	apperrors "github.com/cartelera-live/cartelera/internal/errors"
)

// Resolver verifies bearer tokens and maps them to a connection scope.
// Token issuance (login, device pairing) belongs to the admin backend; the
// fabric only consumes the resulting claims.
type Resolver struct {
	secret []byte
}

func NewResolver(secret string) *Resolver {
	return &Resolver{secret: []byte(secret)}
}

// Resolve validates an HS256 token and derives its scope. A token carrying
// device_id is a kiosk session; one carrying user_id is an admin session.
// local_id binds the session to one location; admin tokens may omit it to
// observe every location.
func (r *Resolver) Resolve(tokenStr string) (domain.Scope, error) {
	if tokenStr == "" {
		return domain.Scope{}, apperrors.InvalidScope("missing token")
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return r.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Scope{}, apperrors.InvalidScope("token verification failed")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Scope{}, apperrors.InvalidScope("unreadable claims")
	}

	localID, _ := numericClaim(claims, "local_id")

	if _, isDevice := claims["device_id"]; isDevice {
		if localID == 0 {
			return domain.Scope{}, apperrors.InvalidScope("device token without local_id")
		}
		return domain.Scope{LocalID: localID, Role: domain.RoleKiosk}, nil
	}
	if _, isUser := claims["user_id"]; isUser {
		return domain.Scope{LocalID: localID, Role: domain.RoleAdmin}, nil
	}
	return domain.Scope{}, apperrors.InvalidScope("token carries neither device_id nor user_id")
}

// IssueDeviceToken mints a kiosk token. Exists for tests and the pairing CLI;
// production issuance lives in the admin backend.
func (r *Resolver) IssueDeviceToken(deviceID string, localID int64, ttl time.Duration) (string, error) {
	return r.issue(jwt.MapClaims{
		"device_id": deviceID,
		"local_id":  localID,
		"iat":       time.Now().Unix(),
		"exp":       time.Now().Add(ttl).Unix(),
	})
}

// IssueUserToken mints an admin token. localID 0 produces an unbound
// monitor session.
func (r *Resolver) IssueUserToken(userID string, localID int64, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(ttl).Unix(),
	}
	if localID != 0 {
		claims["local_id"] = localID
	}
	return r.issue(claims)
}

func (r *Resolver) issue(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// numericClaim tolerates the JSON number representations jwt.Parse produces.
func numericClaim(claims jwt.MapClaims, key string) (int64, bool) {
	switch v := claims[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}
