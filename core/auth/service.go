package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

var (
	// errors
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrAccountDeactivated   = errors.New("account deactivated")
	ErrInvalidToken         = errors.New("invalid token")
	ErrRefreshExpired       = errors.New("refresh has expired")
	ErrInvalidOAuthState    = errors.New("invalid or expired oauth state")
	ErrEmailNotVerified     = errors.New("email address not verified by provider")
	ErrOAuthNotConfigured   = errors.New("oauth provider not configured")
)

type (
	Service interface {
		Authenticate(ctx context.Context, uname, pwd string) (TokenPair, error)
		IssuePair(ctx context.Context, usr user.User, origIat ...int64) (TokenPair, error)
		// Refresh rotates a refresh token: the presented token is invalidated
		// and a brand new pair is issued.
		Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
		Logout(ctx context.Context, refreshToken string) error
		GoogleLoginURL(ctx context.Context) (string, error)
		GoogleCallback(ctx context.Context, state, code string) (TokenPair, error)
	}

	service struct {
		usrSvc   user.Service
		store    TokenStore
		oauthCfg *oauth2.Config
	}
)

var _ Service = (*service)(nil)

func NewService(usrSvc user.Service, store TokenStore, oauthCfg *oauth2.Config) Service {
	return &service{
		usrSvc:   usrSvc,
		store:    store,
		oauthCfg: oauthCfg,
	}
}

func refreshKey(tokenID string) string { return "refresh:" + tokenID }
func stateKey(state string) string     { return "oauthstate:" + state }

func (svc *service) Authenticate(ctx context.Context, uname, pwd string) (TokenPair, error) {
	usr, err := svc.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return TokenPair{}, ErrAuthenticationFailed
		}
		return TokenPair{}, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return TokenPair{}, ErrAuthenticationFailed
	}
	if !usr.Active() {
		return TokenPair{}, ErrAccountDeactivated
	}
	usr, err = svc.usrSvc.SetLastLogin(ctx, usr)
	if err != nil {
		return TokenPair{}, errors.Wrap(err, "setting lastLogin")
	}
	return svc.IssuePair(ctx, usr)
}

func (svc *service) IssuePair(ctx context.Context, usr user.User, origIat ...int64) (TokenPair, error) {
	now := NowFunc()

	var oriat int64
	if len(origIat) > 0 {
		oriat = origIat[0]
	} else {
		oriat = now.Unix()
	}

	access, err := GenerateToken(AccessClaims(usr, oriat))
	if err != nil {
		return TokenPair{}, errors.Wrap(err, "generating access token")
	}

	tokenID := uuid.New().String()
	refresh, err := GenerateToken(refreshClaims(usr, tokenID, oriat))
	if err != nil {
		return TokenPair{}, errors.Wrap(err, "generating refresh token")
	}
	if err = svc.store.Save(ctx, refreshKey(tokenID), usr.ID, core.Conf.Server.JWTRefreshExpirationDelta); err != nil {
		return TokenPair{}, errors.Wrap(err, "storing refresh token")
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(core.Conf.Server.JWTExpirationDelta).UTC(),
		RefreshExpiresAt: now.Add(core.Conf.Server.JWTRefreshExpirationDelta).UTC(),
	}, nil
}

func (svc *service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := ParseToken(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.Type != TokenTypeRefresh || claims.Id == "" {
		return TokenPair{}, ErrInvalidToken
	}

	// a rotated or revoked token has no live record
	if _, err = svc.store.Get(ctx, refreshKey(claims.Id)); err != nil {
		if errors.Cause(err) == ErrKeyNotFound {
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, errors.Wrap(err, "checking refresh token record")
	}

	usr, err := svc.usrSvc.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, errors.Wrap(err, "finding user by ID")
	}
	if !usr.Active() {
		return TokenPair{}, ErrAccountDeactivated
	}

	// cap the whole session's lifetime since the original login
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(core.Conf.Server.SessionMaxLifetime)
	if NowFunc().After(expTime) {
		_ = svc.store.Delete(ctx, refreshKey(claims.Id))
		return TokenPair{}, ErrRefreshExpired
	}

	// rotate
	if err = svc.store.Delete(ctx, refreshKey(claims.Id)); err != nil {
		return TokenPair{}, errors.Wrap(err, "rotating refresh token")
	}
	return svc.IssuePair(ctx, usr, claims.OrigIssuedAt)
}

func (svc *service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := ParseToken(refreshToken)
	if err != nil {
		return err
	}
	if claims.Type != TokenTypeRefresh || claims.Id == "" {
		return ErrInvalidToken
	}
	return svc.store.Delete(ctx, refreshKey(claims.Id))
}
