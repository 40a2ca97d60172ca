package credentials

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"pulsefeed/internal/cache"
	"pulsefeed/internal/logger"
	"pulsefeed/internal/model"
)

// Resolver supplies valid access credentials and connection status to
// the aggregation engine. Token acquisition (OAuth consent) happens
// outside the engine; the resolver only stores, refreshes, and serves.
type Resolver interface {
	// ValidCredential returns a live access token for (user, provider),
	// refreshing if possible. Returns CredentialError when the user is
	// not connected or refresh fails.
	ValidCredential(ctx context.Context, userID, provider string) (string, error)
	// Connections reports per-provider connection status for a user.
	Connections(ctx context.Context, userID string) map[string]bool
}

// Token is one stored provider credential.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

func (t Token) expired(now time.Time) bool {
	return !t.Expiry.IsZero() && now.After(t.Expiry.Add(-time.Minute))
}

// Store is an in-memory resolver. Access tokens are read through the
// cache manager's token namespace; refresh goes through the provider's
// oauth2 endpoint when one is configured.
type Store struct {
	cache     *cache.Manager
	logger    *logger.Logger
	providers []string

	mu     sync.RWMutex
	tokens map[string]Token // keyed provider + "|" + userID
	oauth  map[string]*oauth2.Config
}

func NewStore(providers []string, cacheManager *cache.Manager, log *logger.Logger) *Store {
	return &Store{
		cache:     cacheManager,
		logger:    log.With("component", "credentials"),
		providers: providers,
		tokens:    make(map[string]Token),
		oauth:     make(map[string]*oauth2.Config),
	}
}

// SetOAuthConfig registers the oauth2 client used to refresh tokens for
// a provider.
func (s *Store) SetOAuthConfig(provider string, cfg *oauth2.Config) {
	s.mu.Lock()
	s.oauth[provider] = cfg
	s.mu.Unlock()
}

// SetToken stores a credential for (user, provider), e.g. after an
// external auth flow completes.
func (s *Store) SetToken(userID, provider string, token Token) {
	s.mu.Lock()
	s.tokens[provider+"|"+userID] = token
	s.mu.Unlock()

	s.cache.Tokens().Set(tokenKey(provider, userID), token.AccessToken, 0)
	// Connection status may have flipped; recompute on next read.
	s.cache.ConnStatus().Del(connKey(userID))
}

func (s *Store) ValidCredential(ctx context.Context, userID, provider string) (string, error) {
	if access, ok := cache.GetAs[string](s.cache.Tokens(), tokenKey(provider, userID)); ok {
		return access, nil
	}

	s.mu.RLock()
	token, ok := s.tokens[provider+"|"+userID]
	oauthCfg := s.oauth[provider]
	s.mu.RUnlock()

	if !ok {
		return "", &model.CredentialError{Provider: provider, Reason: "not connected"}
	}

	if token.expired(time.Now()) {
		refreshed, err := s.refresh(ctx, userID, provider, token, oauthCfg)
		if err != nil {
			return "", err
		}
		token = refreshed
	}

	// Cache for the remaining token lifetime, capped by the namespace
	// default.
	ttl := time.Duration(0)
	if !token.Expiry.IsZero() {
		ttl = time.Until(token.Expiry)
	}
	s.cache.Tokens().Set(tokenKey(provider, userID), token.AccessToken, ttl)
	return token.AccessToken, nil
}

func (s *Store) refresh(ctx context.Context, userID, provider string, token Token, oauthCfg *oauth2.Config) (Token, error) {
	if token.RefreshToken == "" || oauthCfg == nil {
		return Token{}, &model.CredentialError{Provider: provider, Reason: "token expired and no refresh available"}
	}

	source := oauthCfg.TokenSource(ctx, &oauth2.Token{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	})
	fresh, err := source.Token()
	if err != nil {
		s.logger.Warn("Token refresh failed for user", userID, "provider", provider, ":", err)
		return Token{}, &model.CredentialError{Provider: provider, Reason: "refresh failed"}
	}

	refreshed := Token{
		AccessToken:  fresh.AccessToken,
		RefreshToken: fresh.RefreshToken,
		Expiry:       fresh.Expiry,
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = token.RefreshToken
	}

	s.mu.Lock()
	s.tokens[provider+"|"+userID] = refreshed
	s.mu.Unlock()

	s.logger.Info("Refreshed token for user", userID, "provider", provider)
	return refreshed, nil
}

func (s *Store) Connections(ctx context.Context, userID string) map[string]bool {
	if cached, ok := cache.GetAs[map[string]bool](s.cache.ConnStatus(), connKey(userID)); ok {
		// Copy so callers can't mutate the cached map.
		out := make(map[string]bool, len(cached))
		for k, v := range cached {
			out[k] = v
		}
		return out
	}

	status := make(map[string]bool, len(s.providers))
	for _, provider := range s.providers {
		_, err := s.ValidCredential(ctx, userID, provider)
		status[provider] = err == nil
	}

	s.cache.ConnStatus().Set(connKey(userID), status, 0)

	out := make(map[string]bool, len(status))
	for k, v := range status {
		out[k] = v
	}
	return out
}

// MarkDisconnected drops a user's credential for a provider, e.g. after
// an Unauthorized fetch, so the next feed reflects reality without
// waiting out the status TTL.
func (s *Store) MarkDisconnected(userID, provider string) {
	s.mu.Lock()
	delete(s.tokens, provider+"|"+userID)
	s.mu.Unlock()

	s.cache.Tokens().Del(tokenKey(provider, userID))
	s.cache.ConnStatus().Del(connKey(userID))
}

func tokenKey(provider, userID string) string {
	return "access:" + provider + ":" + userID
}

func connKey(userID string) string {
	return "conn:" + userID
}
