package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

var (
	stateTTL = 10 * time.Minute

	// GoogleUserInfoURL is overridable in tests.
	GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
)

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// GoogleLoginURL starts the authorization-code flow: it mints a single-use
// state nonce and returns the provider's consent URL.
func (svc *service) GoogleLoginURL(ctx context.Context) (string, error) {
	if svc.oauthCfg == nil {
		return "", ErrOAuthNotConfigured
	}

	stateBytes := make([]byte, 32)
	if _, err := rand.Read(stateBytes); err != nil {
		return "", errors.Wrap(err, "generating oauth state")
	}
	state := base64.RawURLEncoding.EncodeToString(stateBytes)

	if err := svc.store.Save(ctx, stateKey(state), "1", stateTTL); err != nil {
		return "", errors.Wrap(err, "storing oauth state")
	}
	return svc.oauthCfg.AuthCodeURL(state), nil
}

// GoogleCallback completes the flow: validates and consumes the state,
// exchanges the code, fetches the user's profile and signs them in,
// provisioning an account on first login.
func (svc *service) GoogleCallback(ctx context.Context, state, code string) (TokenPair, error) {
	if svc.oauthCfg == nil {
		return TokenPair{}, ErrOAuthNotConfigured
	}

	if _, err := svc.store.Consume(ctx, stateKey(state)); err != nil {
		if errors.Cause(err) == ErrKeyNotFound {
			return TokenPair{}, ErrInvalidOAuthState
		}
		return TokenPair{}, errors.Wrap(err, "consuming oauth state")
	}

	token, err := svc.oauthCfg.Exchange(ctx, code)
	if err != nil {
		return TokenPair{}, errors.Wrap(err, "exchanging oauth code")
	}

	info, err := svc.fetchGoogleUserInfo(ctx, token)
	if err != nil {
		return TokenPair{}, err
	}
	if !info.EmailVerified {
		return TokenPair{}, ErrEmailNotVerified
	}

	usr, err := svc.usrSvc.GetByEmail(ctx, info.Email)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return TokenPair{}, errors.Wrap(err, "finding user by email")
		}
		if usr, err = svc.usrSvc.CreateFromOAuth(ctx, info.Name, info.Email); err != nil {
			return TokenPair{}, errors.Wrap(err, "creating user from oauth profile")
		}
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

func (svc *service) fetchGoogleUserInfo(ctx context.Context, token *oauth2.Token) (googleUserInfo, error) {
	var info googleUserInfo

	client := svc.oauthCfg.Client(ctx, token)
	resp, err := client.Get(GoogleUserInfoURL)
	if err != nil {
		return info, errors.Wrap(err, "fetching oauth user info")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != 200 {
		return info, errors.Errorf("fetching oauth user info: status %d", resp.StatusCode)
	}
	if err = json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return info, errors.Wrap(err, "decoding oauth user info")
	}

	info.Email = core.CleanString(info.Email, true /* lower */)
	if info.Sub == "" || info.Email == "" {
		return info, errors.New("incomplete oauth user info")
	}
	return info, nil
}
