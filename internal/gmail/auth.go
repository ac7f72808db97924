package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gm "google.golang.org/api/gmail/v1"
)

// Scopes requested during consent.
var Scopes = []string{gm.GmailReadonlyScope, gm.GmailSendScope, gm.GmailModifyScope}

// ErrNotAuthenticated means there is no usable token; run the gmail-auth
// command to create one.
var ErrNotAuthenticated = errors.New("gmail is not authenticated")

// LoadOAuthConfig reads the installed-app client secrets downloaded from
// the Google Cloud console.
func LoadOAuthConfig(credentialsFile string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read gmail credentials", goerr.V("path", credentialsFile))
	}
	cfg, err := google.ConfigFromJSON(b, Scopes...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse gmail credentials", goerr.V("path", credentialsFile))
	}
	return cfg, nil
}

// AuthCodeURL is the consent page the user must visit.
func AuthCodeURL(cfg *oauth2.Config) string {
	return cfg.AuthCodeURL("autoagent", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades a consent code for a token and stores it.
func Exchange(ctx context.Context, cfg *oauth2.Config, code, tokenFile string) (*oauth2.Token, error) {
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to exchange auth code")
	}
	if err := SaveToken(tokenFile, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

func LoadToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, goerr.Wrap(ErrNotAuthenticated, "token file not found", goerr.V("path", path))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read token", goerr.V("path", path))
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, goerr.Wrap(ErrNotAuthenticated, "token file is corrupt", goerr.V("path", path), goerr.V("cause", err.Error()))
	}
	return &tok, nil
}

func SaveToken(path string, tok *oauth2.Token) error {
	b, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to encode token")
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return goerr.Wrap(err, "failed to write token", goerr.V("path", path))
	}
	return nil
}

// savingTokenSource persists refreshed tokens so a restart does not need
// a new consent.
type savingTokenSource struct {
	base oauth2.TokenSource
	path string
	log  *slog.Logger

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, goerr.Wrap(ErrNotAuthenticated, "token refresh failed", goerr.V("cause", err.Error()))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := SaveToken(s.path, tok); err != nil {
			s.log.Warn("failed to persist refreshed token", "error", err)
		} else {
			s.log.Info("gmail token refreshed")
		}
	}
	return tok, nil
}

// TokenSource loads the stored token and wraps it in a refreshing source
// that writes new tokens back to tokenFile.
func TokenSource(ctx context.Context, cfg *oauth2.Config, tokenFile string, logger *slog.Logger) (oauth2.TokenSource, error) {
	tok, err := LoadToken(tokenFile)
	if err != nil {
		return nil, err
	}
	if !tok.Valid() && tok.RefreshToken == "" {
		return nil, goerr.Wrap(ErrNotAuthenticated, "token expired and has no refresh token")
	}
	return &savingTokenSource{
		base: cfg.TokenSource(ctx, tok),
		path: tokenFile,
		log:  logger,
		last: tok.AccessToken,
	}, nil
}
