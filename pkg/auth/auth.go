package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const issuer = "experiment-analytics"

// APIKeyPrefix marks service API keys presented as bearer credentials.
const APIKeyPrefix = "ak_"

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidAPIKey = errors.New("invalid API key")
)

// TokenType represents the type of authentication token
type TokenType string

const (
	TokenTypeUser    TokenType = "user"
	TokenTypeAPIKey  TokenType = "api_key"
	TokenTypeService TokenType = "service"
)

// Scope limits what an API key or service token may do
type Scope string

const (
	ScopeRead  Scope = "read"
	ScopeWrite Scope = "write"
)

// Claims represents JWT claims for the application
type Claims struct {
	UserID    string    `json:"user_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	OrgID     string    `json:"org_id,omitempty"`
	Role      string    `json:"role,omitempty"`
	Scope     Scope     `json:"scope,omitempty"`
	TokenType TokenType `json:"token_type"`
	TokenID   string    `json:"token_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager handles JWT token operations
type TokenManager struct {
	secret []byte
}

// NewTokenManager creates a new token manager
func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
	}
}

// GenerateUserToken generates a JWT token for an analyst with the given role
func (tm *TokenManager) GenerateUserToken(userID, email, orgID, role string, expiry time.Duration) (string, error) {
	claims := &Claims{
		UserID:           userID,
		Email:            email,
		OrgID:            orgID,
		Role:             role,
		TokenType:        TokenTypeUser,
		RegisteredClaims: registered(userID, expiry),
	}
	return tm.sign(claims)
}

// GenerateServiceToken generates a JWT token for service-to-service communication
func (tm *TokenManager) GenerateServiceToken(serviceID string, scope Scope, expiry time.Duration) (string, error) {
	claims := &Claims{
		Scope:            scope,
		TokenType:        TokenTypeService,
		RegisteredClaims: registered(serviceID, expiry),
	}
	return tm.sign(claims)
}

func registered(subject string, expiry time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    issuer,
		Subject:   subject,
	}
}

func (tm *TokenManager) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken validates and parses a JWT token
func (tm *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: bad claims", ErrInvalidToken)
	}

	return claims, nil
}

// APIKeyManager verifies service API keys against bcrypt hashes.
// Keys have the form ak_<id>_<secret>; hashes are looked up by ak_<id>.
type APIKeyManager struct {
	cost   int
	hashes map[string]string
}

// NewAPIKeyManager creates a new API key manager
func NewAPIKeyManager(cost int, hashes map[string]string) *APIKeyManager {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	copied := make(map[string]string, len(hashes))
	for id, hash := range hashes {
		copied[strings.ToLower(id)] = hash
	}
	return &APIKeyManager{
		cost:   cost,
		hashes: copied,
	}
}

// GenerateAPIKey generates a new random API key for id
func (akm *APIKeyManager) GenerateAPIKey(id string) (string, error) {
	if id == "" || strings.Contains(id, "_") {
		return "", fmt.Errorf("API key id must be non-empty and contain no underscore: %q", id)
	}

	bytes := make([]byte, 24)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return APIKeyPrefix + strings.ToLower(id) + "_" + hex.EncodeToString(bytes), nil
}

// HashAPIKey hashes an API key for storage
func (akm *APIKeyManager) HashAPIKey(apiKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), akm.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return string(hash), nil
}

// KeyID returns the lookup id (ak_<id>) of an API key
func KeyID(apiKey string) (string, bool) {
	if !strings.HasPrefix(apiKey, APIKeyPrefix) {
		return "", false
	}
	rest := apiKey[len(APIKeyPrefix):]
	i := strings.Index(rest, "_")
	if i <= 0 || i == len(rest)-1 {
		return "", false
	}
	return APIKeyPrefix + rest[:i], true
}

// VerifyAPIKey checks apiKey against its registered hash and returns
// read-scoped claims for it.
func (akm *APIKeyManager) VerifyAPIKey(apiKey string) (*Claims, error) {
	id, ok := KeyID(apiKey)
	if !ok {
		return nil, fmt.Errorf("%w: malformed", ErrInvalidAPIKey)
	}

	hash, ok := akm.hashes[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown key %s", ErrInvalidAPIKey, id)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(apiKey)); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAPIKey, id)
	}

	return &Claims{
		Scope:     ScopeRead,
		TokenType: TokenTypeAPIKey,
		TokenID:   id,
	}, nil
}

// Principal returns the identifier logged for the authenticated caller
func (c *Claims) Principal() string {
	switch c.TokenType {
	case TokenTypeAPIKey:
		return c.TokenID
	case TokenTypeService:
		return c.Subject
	default:
		return c.UserID
	}
}
