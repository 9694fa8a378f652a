package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"kanchat-cli/internal/model"
)

// Claims is the subset of the access token the client reads. The client never
// verifies the signature; the server does that on every request.
type Claims struct {
	UserID    model.ID
	Username  string
	Email     string
	ExpiresAt *time.Time
}

func (c Claims) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

func ParseClaims(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") != 2 {
		return Claims{}, errors.New("not a jwt")
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Claims{}, err
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("invalid claims")
	}

	var c Claims
	// The board server puts a numeric user_id in its tokens; other issuers use sub.
	switch v := mc["user_id"].(type) {
	case float64:
		c.UserID = model.ID(fmt.Sprintf("%d", int64(v)))
	case string:
		c.UserID = model.ID(strings.TrimSpace(v))
	}
	if c.UserID.IsZero() {
		if sub, ok := mc["sub"].(string); ok {
			c.UserID = model.ID(strings.TrimSpace(sub))
		}
	}
	if v, ok := mc["username"].(string); ok {
		c.Username = strings.TrimSpace(v)
	} else if v, ok := mc["name"].(string); ok {
		c.Username = strings.TrimSpace(v)
	}
	if v, ok := mc["email"].(string); ok {
		c.Email = strings.TrimSpace(v)
	}
	if exp, ok := mc["exp"].(float64); ok {
		t := time.Unix(int64(exp), 0)
		c.ExpiresAt = &t
	}
	return c, nil
}
