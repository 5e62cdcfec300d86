// Package main provides authentication for the CommitStore TCP server.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nickyhof/CommitStore/core"
)

// AuthConfig configures server authentication.
type AuthConfig struct {
	// Enabled requires AUTH before any other command. If false, the server
	// commits as its default identity.
	Enabled bool

	// JWTSecret is the shared secret for HMAC JWT validation.
	JWTSecret string

	// Issuer is the expected "iss" claim (optional).
	Issuer string

	// Audience is the expected "aud" claim (optional).
	Audience string

	// NameClaim is the claim holding the author name (default: "name").
	NameClaim string

	// EmailClaim is the claim holding the author email (default: "email").
	EmailClaim string
}

// Validate checks that an enabled config can verify tokens
func (c *AuthConfig) Validate() error {
	if c.Enabled && c.JWTSecret == "" {
		return errors.New("authentication enabled without a JWT secret")
	}
	return nil
}

func (c *AuthConfig) claimNames() (name, email string) {
	name, email = c.NameClaim, c.EmailClaim
	if name == "" {
		name = "name"
	}
	if email == "" {
		email = "email"
	}
	return name, email
}

// ConnectionState tracks per-connection authentication state.
type ConnectionState struct {
	identity      *core.Identity
	authenticated bool
	tokenExpiry   time.Time
}

// IsAuthenticated returns true if the connection has been authenticated.
func (cs *ConnectionState) IsAuthenticated() bool {
	return cs.authenticated
}

// Identity returns the connection's identity, or nil if not authenticated.
func (cs *ConnectionState) Identity() *core.Identity {
	return cs.identity
}

// validateJWT verifies a token and returns the identity it carries and its
// expiry (zero when the token has none).
func (s *Server) validateJWT(tokenString string) (core.Identity, time.Time, error) {
	if s.authConfig == nil || s.authConfig.JWTSecret == "" {
		return core.Identity{}, time.Time{}, errors.New("authentication not configured")
	}

	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if s.authConfig.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(s.authConfig.Issuer))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.authConfig.JWTSecret), nil
	}, parserOpts...)
	if err != nil {
		return core.Identity{}, time.Time{}, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return core.Identity{}, time.Time{}, errors.New("invalid token claims")
	}

	if s.authConfig.Audience != "" {
		audiences, _ := claims.GetAudience()
		if !slices.Contains(audiences, s.authConfig.Audience) {
			return core.Identity{}, time.Time{}, fmt.Errorf("invalid audience: expected %s", s.authConfig.Audience)
		}
	}

	nameClaim, emailClaim := s.authConfig.claimNames()
	name, _ := claims[nameClaim].(string)
	email, _ := claims[emailClaim].(string)
	if name == "" && email == "" {
		return core.Identity{}, time.Time{}, fmt.Errorf("token missing identity claims (%s or %s)", nameClaim, emailClaim)
	}

	var expiresAt time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}

	return core.Identity{Name: name, Email: email}, expiresAt, nil
}

// parseAuthCommand splits "AUTH JWT <token>" into its type and token.
func parseAuthCommand(line string) (authType, token string, err error) {
	parts := strings.Fields(line)
	if len(parts) == 0 || !strings.EqualFold(parts[0], "AUTH") {
		return "", "", errors.New("not an AUTH command")
	}
	if len(parts) != 3 {
		return "", "", errors.New("invalid AUTH command: expected AUTH <type> <credentials>")
	}

	authType = strings.ToUpper(parts[1])
	if authType != "JWT" {
		return "", "", fmt.Errorf("unsupported auth type: %s", parts[1])
	}
	return authType, parts[2], nil
}

// handleAuth processes an AUTH command and binds the identity to state.
func (s *Server) handleAuth(line string, state *ConnectionState) Response {
	fail := func(err error) Response {
		return Response{Success: false, Type: "auth", Error: err.Error()}
	}

	_, token, err := parseAuthCommand(line)
	if err != nil {
		return fail(err)
	}

	identity, expiresAt, err := s.validateJWT(token)
	if err != nil {
		s.log.WithError(err).Info("authentication failed")
		return fail(err)
	}

	state.identity = &identity
	state.authenticated = true
	state.tokenExpiry = expiresAt

	ar := AuthResponse{
		Authenticated: true,
		Identity:      identity.String(),
	}
	if !expiresAt.IsZero() {
		ar.ExpiresIn = int(time.Until(expiresAt).Seconds())
	}

	data, _ := json.Marshal(ar)
	return Response{
		Success: true,
		Type:    "auth",
		Result:  data,
	}
}
