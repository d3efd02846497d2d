package credentials

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// StateClaims is the payload of the OAuth state parameter. The registered
// ID claim carries the single-use nonce.
type StateClaims struct {
	OwnerID   string `json:"uid"`
	ReturnURL string `json:"ret"`
	jwt.RegisteredClaims
}

// StateSigner issues and verifies HS256-signed state tokens.
type StateSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewStateSigner(secret string, ttl time.Duration) *StateSigner {
	return &StateSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a state token for owner that expires after the signer's TTL.
func (s *StateSigner) Sign(ownerID, returnURL, nonce string) (string, error) {
	now := s.now()
	claims := &StateClaims{
		OwnerID:   ownerID,
		ReturnURL: returnURL,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks the signature and expiry and returns the claims.
func (s *StateSigner) Verify(tokenString string) (*StateClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &StateClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*StateClaims)
	if !ok || !token.Valid || claims.OwnerID == "" || claims.ID == "" {
		return nil, errors.New("invalid state token")
	}
	return claims, nil
}

// SanitizeReturnURL resolves where the browser goes after consent. Only a
// local path or a URL under appBaseURL is accepted; anything else falls back
// to the application root.
func SanitizeReturnURL(raw, appBaseURL string) string {
	base := strings.TrimRight(appBaseURL, "/")
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return base + "/"
	case strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") && !strings.HasPrefix(raw, "/\\"):
		return base + raw
	case raw == base || strings.HasPrefix(raw, base+"/") || strings.HasPrefix(raw, base+"?"):
		return raw
	}
	return base + "/"
}

// withQuery appends key=value pairs to target, keeping its existing query.
func withQuery(target string, kv ...string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	for i := 0; i+1 < len(kv); i += 2 {
		q.Set(kv[i], kv[i+1])
	}
	u.RawQuery = q.Encode()
	return u.String()
}
