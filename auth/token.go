package auth

import (
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/warp/backoffice/commerce"
)

// DefaultTokenTTL is the lifetime of an issued token.
const DefaultTokenTTL = time.Hour

// Claims are the JWT claims issued at login.
type Claims struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
	jwt.StandardClaims
}

// Identity is the authenticated caller.
type Identity struct {
	UserID commerce.UserID
	Role   Role
}

func (i Identity) IsEmployee() bool { return i.Role == RoleEmployee }

type TokenIssuer struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

// Issue signs a token for u.
func (t *TokenIssuer) Issue(u User) (string, time.Time, error) {
	now := t.now()
	ttl := t.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	expires := now.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: string(u.ID),
		Role:   u.Role,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: expires.Unix(),
			IssuedAt:  now.Unix(),
			Subject:   string(u.ID),
		},
	})
	signed, err := token.SignedString(t.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses and validates a signed token.
func (t *TokenIssuer) Verify(signed string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(signed, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.Secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", commerce.ErrUnauthorized, err)
	}
	if !token.Valid || claims.UserID == "" {
		return Identity{}, fmt.Errorf("%w: invalid token", commerce.ErrUnauthorized)
	}
	if claims.ExpiresAt < t.now().Unix() {
		return Identity{}, fmt.Errorf("%w: token expired", commerce.ErrUnauthorized)
	}
	return Identity{UserID: commerce.UserID(claims.UserID), Role: claims.Role}, nil
}

func (t *TokenIssuer) now() time.Time {
	if t.Now == nil {
		return time.Now()
	}
	return t.Now()
}
