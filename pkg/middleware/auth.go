package middleware

import (
	"fmt"
	"strings"
	"time"

	"engage-ledger/pkg/config"
	"engage-ledger/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

const (
	EditorPermission int64 = 0x2

	userKey = "auth_user"
	leeway  = 30 * time.Second
)

// Claims are the custom claims carried next to the registered ones.
type Claims struct {
	UserID  string           `json:"user_id,omitempty"`
	Admin   int64            `json:"admin,omitempty"`
	Orgs    map[string]int64 `json:"a,omitempty"`
	Wallets map[string]bool  `json:"w,omitempty"`
}

// User is the authenticated caller.
type User struct {
	ID     string
	Claims Claims
}

// CanEdit reports whether the caller holds at least editor permission on org.
func (u *User) CanEdit(orgID uuid.UUID) bool {
	return u.Claims.Orgs[orgID.String()] >= EditorPermission
}

// IsAdmin reports whether the caller may approve reward links.
func (u *User) IsAdmin() bool {
	return u.Claims.Admin > 0
}

// HasWalletClaim reports whether the caller has proven ownership of the
// wallet, keyed "chain/signer".
func (u *User) HasWalletClaim(chainID int64, signerAddress string) bool {
	return u.Claims.Wallets[fmt.Sprintf("%d/%s", chainID, signerAddress)]
}

// Verifier checks HS256 bearer tokens.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

func NewVerifier(cfg *config.Config) *Verifier {
	return &Verifier{
		secret:   []byte(cfg.Auth.Secret),
		issuer:   cfg.Auth.Issuer,
		audience: cfg.Auth.Audience,
		now:      time.Now,
	}
}

func (v *Verifier) Verify(raw string) (*User, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, err
	}

	var registered jwt.Claims
	var custom Claims
	if err := tok.Claims(v.secret, &registered, &custom); err != nil {
		return nil, err
	}

	expected := jwt.Expected{Issuer: v.issuer, Time: v.now()}
	if v.audience != "" {
		expected.AnyAudience = jwt.Audience{v.audience}
	}
	if err := registered.ValidateWithLeeway(expected, leeway); err != nil {
		return nil, err
	}

	id := registered.Subject
	if id == "" {
		id = custom.UserID
	}
	if id == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return &User{ID: id, Claims: custom}, nil
}

// Auth rejects requests without a valid bearer token.
func Auth(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			_ = c.Error(errutil.Unauthorized("missing bearer token", nil))
			c.Abort()
			return
		}

		user, err := v.Verify(raw)
		if err != nil {
			_ = c.Error(errutil.Unauthorized("invalid token", err))
			c.Abort()
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// CurrentUser returns the caller set by Auth.
func CurrentUser(c *gin.Context) (*User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*User)
	return u, ok
}
