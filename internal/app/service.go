package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"kisscoffee/site/internal/auth"
	"kisscoffee/site/internal/authpw"
	"kisscoffee/site/internal/config"
	"kisscoffee/site/internal/export"
	"kisscoffee/site/internal/history"
	"kisscoffee/site/internal/rbac"
	"kisscoffee/site/internal/search"
	"kisscoffee/site/internal/session"
	"kisscoffee/site/internal/settings"
	"kisscoffee/site/internal/store"
	"kisscoffee/site/internal/util"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	systemAuthor     = "Kiss Coffee"
	ownerDisplayName = "Owner"
)

type sessionStore interface {
	authpw.Throttle
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	Ping(ctx context.Context) error
}

// Deps are the backends a Service is built from. Archive, Search and Exporter
// may be nil.
type Deps struct {
	Documents store.DocumentStore
	Users     authpw.UserStore
	Sessions  sessionStore
	Search    *search.Service
	Archive   *history.Archive
	Exporter  *export.Service
	Logger    *slog.Logger
}

// Service is the backend of the site: the settings document, identity and
// sessions, plus the revision archive, menu search and exports hanging off
// accepted writes.
type Service struct {
	cfg       config.Config
	documents store.DocumentStore
	users     authpw.UserStore
	sessions  sessionStore
	passwords *authpw.Service
	search    *search.Service
	archive   *history.Archive
	exporter  *export.Service
	logger    *slog.Logger
	now       func() time.Time
}

func New(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	searchService := deps.Search
	if searchService == nil {
		searchService = search.NewService(nil, logger)
	}
	exporter := deps.Exporter
	if exporter == nil {
		exporter = export.NewService(nil)
	}
	return &Service{
		cfg:       cfg,
		documents: deps.Documents,
		users:     deps.Users,
		sessions:  deps.Sessions,
		passwords: authpw.NewService(deps.Users, deps.Sessions),
		search:    searchService,
		archive:   deps.Archive,
		exporter:  exporter,
		logger:    logger,
		now:       time.Now,
	}
}

// Bootstrap creates the owner account when configured, makes sure the
// settings document exists and seeds the menu index and revision archive.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.cfg.AdminEmail != "" {
		if _, err := s.passwords.EnsureOwner(ctx, s.cfg.AdminEmail, s.cfg.AdminPassword, ownerDisplayName); err != nil {
			return fmt.Errorf("bootstrap owner: %w", err)
		}
	}

	doc, err := s.documents.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap settings: %w", err)
	}
	s.search.IndexMenu(doc.Menu)

	if s.archive.Enabled() {
		revisions, err := s.archive.History(1)
		if err != nil {
			return fmt.Errorf("bootstrap history: %w", err)
		}
		if len(revisions) == 0 {
			if _, err := s.archive.Record(doc, systemAuthor, "Import settings baseline"); err != nil {
				return fmt.Errorf("bootstrap history: %w", err)
			}
		}
	}
	return nil
}

func (s *Service) FetchSettings(ctx context.Context) (settings.Settings, error) {
	return s.documents.Fetch(ctx)
}

// SaveSettings merges patch into the document. Accepted writes are archived
// and a replaced menu is reindexed; failures there are only logged.
func (s *Service) SaveSettings(ctx context.Context, patch settings.Patch, author string) error {
	if err := s.documents.Save(ctx, patch); err != nil {
		s.logger.Error("settings save failed", "fields", patch.Keys(), "author", author, "error", err)
		return err
	}
	s.afterSave(ctx, patch, author)
	return nil
}

func (s *Service) afterSave(ctx context.Context, patch settings.Patch, author string) {
	if patch.Empty() {
		return
	}
	if patch.Menu != nil {
		s.search.IndexMenu(*patch.Menu)
	}
	if !s.archive.Enabled() {
		return
	}
	doc, err := s.documents.Fetch(ctx)
	if err != nil {
		s.logger.Warn("history: read merged settings", "error", err)
		return
	}
	if author == "" {
		author = systemAuthor
	}
	message := "Update " + strings.Join(patch.Keys(), ", ")
	if _, err := s.archive.Record(doc, author, message); err != nil {
		s.logger.Warn("history: record revision", "author", author, "error", err)
	}
}

// SignIn checks the credentials and opens a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (auth.Session, error) {
	user, err := s.passwords.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		var throttled *authpw.ThrottleError
		if errors.As(err, &throttled) {
			s.logger.Warn("sign in throttled", "email", strings.ToLower(strings.TrimSpace(email)), "wait_seconds", throttled.Wait)
		} else if errors.Is(err, authpw.ErrInvalidCredentials) {
			s.logger.Info("sign in rejected", "email", strings.ToLower(strings.TrimSpace(email)))
		}
		return auth.Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token into a new session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (auth.Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return auth.Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	cached, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if errors.Is(err, session.ErrSessionNotFound) {
		return auth.Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return auth.Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return auth.Session{}, err
	}

	user, err := s.users.GetUserByID(ctx, cached.ID)
	if errors.Is(err, store.ErrNotFound) {
		return auth.Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return auth.Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (auth.Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := uuid.NewString()

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Name:  user.DisplayName,
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	if err != nil {
		return auth.Session{}, err
	}

	refresh := util.NewToken("rft", 32)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, now.Add(s.cfg.RefreshTTL)); err != nil {
		return auth.Session{}, err
	}

	return auth.Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Email:        user.Email,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken verifies an access token against revocations and the
// current user record.
func (s *Service) SessionFromToken(ctx context.Context, token string) (auth.Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return auth.Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return auth.Session{}, err
	}
	if revoked {
		return auth.Session{}, auth.ErrInvalidToken
	}

	user, err := s.users.GetUserByID(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return auth.Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return auth.Session{}, err
	}

	return auth.Session{
		Token:     token,
		UserID:    user.ID,
		Email:     user.Email,
		UserName:  user.DisplayName,
		Role:      user.Role,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Logout revokes the access token and the refresh token of sess.
func (s *Service) Logout(ctx context.Context, sess auth.Session) error {
	var errs []error
	if sess.JTI != "" && !sess.Expired(s.now()) {
		if err := s.sessions.RevokeAccessToken(ctx, sess.JTI, sess.ExpiresAt); err != nil {
			errs = append(errs, fmt.Errorf("revoke access token: %w", err))
		}
	}
	if sess.RefreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(sess.RefreshToken)); err != nil {
			errs = append(errs, fmt.Errorf("revoke refresh token: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// Ping checks the document store and the session store.
func (s *Service) Ping(ctx context.Context) map[string]error {
	return map[string]error{
		"database": s.documents.Ping(ctx),
		"sessions": s.sessions.Ping(ctx),
	}
}

func (s *Service) SearchMenu(q search.Query) search.Response {
	return s.search.Search(q)
}

func (s *Service) History(limit int) ([]history.Revision, error) {
	revisions, err := s.archive.History(limit)
	if errors.Is(err, history.ErrDisabled) {
		return nil, domainError(http.StatusNotFound, "HISTORY_DISABLED", "Revision history is not enabled", nil)
	}
	return revisions, err
}

func (s *Service) Revision(hash string) (settings.Settings, error) {
	doc, err := s.archive.Content(hash)
	if errors.Is(err, history.ErrDisabled) {
		return settings.Settings{}, domainError(http.StatusNotFound, "HISTORY_DISABLED", "Revision history is not enabled", nil)
	}
	if err != nil {
		return settings.Settings{}, domainError(http.StatusNotFound, "NOT_FOUND", "Revision not found", nil)
	}
	return doc, nil
}

// ExportMenu renders the stored settings document, or doc when given.
func (s *Service) ExportMenu(ctx context.Context, req export.Request, doc *settings.Settings) (*export.Result, error) {
	var current settings.Settings
	if doc != nil {
		current = *doc
	} else {
		fetched, err := s.documents.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		current = fetched
	}
	res, err := s.exporter.Export(ctx, req, current)
	if err != nil {
		s.logger.Warn("menu export failed", "format", req.Format, "publish", req.Publish, "error", err)
		return nil, err
	}
	return res, nil
}
