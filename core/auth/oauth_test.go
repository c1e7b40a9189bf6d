package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"golang.org/x/oauth2"

	"github.com/trezcool/shule/core/user"
	emailsvc "github.com/trezcool/shule/services/email"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
	testutil "github.com/trezcool/shule/tests"
)

// fakeGoogle stands in for Google's token and userinfo endpoints.
type fakeGoogle struct {
	srv  *httptest.Server
	info googleUserInfo
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()
	fg := new(fakeGoogle)

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fake-token","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(fg.info)
	})
	fg.srv = httptest.NewServer(mux)
	t.Cleanup(fg.srv.Close)

	origURL := GoogleUserInfoURL
	GoogleUserInfoURL = fg.srv.URL + "/userinfo"
	t.Cleanup(func() { GoogleUserInfoURL = origURL })

	return fg
}

func (fg *fakeGoogle) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		RedirectURL:  "http://localhost:8000/v1/auth/oauth/google/callback",
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  fg.srv.URL + "/auth",
			TokenURL: fg.srv.URL + "/token",
		},
	}
}

func newOAuthTestService(t *testing.T, cfg *oauth2.Config) (Service, user.Repository, TokenStore) {
	t.Helper()
	repo := inmemdb.NewUserRepository(inmemdb.NewDB())
	usrSvc := user.NewServiceMock(repo, emailsvc.NewConsoleServiceMock(), testutil.NopLogger{})
	store := NewMemoryStore()
	return NewService(usrSvc, store, cfg), repo, store
}

func loginState(t *testing.T, svc Service) string {
	t.Helper()
	loginURL, err := svc.GoogleLoginURL(context.Background())
	if err != nil {
		t.Fatalf("GoogleLoginURL() failed: %v", err)
	}
	u, err := url.Parse(loginURL)
	if err != nil {
		t.Fatalf("url.Parse() failed: %v", err)
	}
	state := u.Query().Get("state")
	if state == "" {
		t.Fatalf("no state in login URL %q", loginURL)
	}
	return state
}

func TestGoogleLoginURL(t *testing.T) {
	ctx := context.Background()

	svc, _, _ := newOAuthTestService(t, nil)
	if _, err := svc.GoogleLoginURL(ctx); err != ErrOAuthNotConfigured {
		t.Errorf("GoogleLoginURL() err = %v; want ErrOAuthNotConfigured", err)
	}

	fg := newFakeGoogle(t)
	svc, _, store := newOAuthTestService(t, fg.oauthConfig())

	state := loginState(t, svc)
	if _, err := store.Get(ctx, stateKey(state)); err != nil {
		t.Errorf("state nonce not stored: %v", err)
	}

	// each login attempt gets its own nonce
	if state2 := loginState(t, svc); state2 == state {
		t.Errorf("GoogleLoginURL() reused state nonce %q", state)
	}
}

func TestGoogleCallback(t *testing.T) {
	ctx := context.Background()

	svc, _, _ := newOAuthTestService(t, nil)
	if _, err := svc.GoogleCallback(ctx, "state", "code"); err != ErrOAuthNotConfigured {
		t.Errorf("GoogleCallback() err = %v; want ErrOAuthNotConfigured", err)
	}

	fg := newFakeGoogle(t)
	svc, repo, _ := newOAuthTestService(t, fg.oauthConfig())

	jon := testutil.CreateUser(t, repo, "Jon Doe", "jon", "jon@test.cd", "LordOfTheDance", user.StudentRoles, true)
	testutil.CreateUser(t, repo, "Jane Doe", "jane", "jane@test.cd", "LordOfTheFries", user.StudentRoles, false)

	t.Run("unknown state", func(t *testing.T) {
		if _, err := svc.GoogleCallback(ctx, "bogus", "code"); err != ErrInvalidOAuthState {
			t.Errorf("GoogleCallback() err = %v; want ErrInvalidOAuthState", err)
		}
	})

	t.Run("state is single-use", func(t *testing.T) {
		fg.info = googleUserInfo{Sub: "g-1", Name: "Jon Doe", Email: "jon@test.cd", EmailVerified: true}
		state := loginState(t, svc)
		if _, err := svc.GoogleCallback(ctx, state, "code"); err != nil {
			t.Fatalf("GoogleCallback() failed: %v", err)
		}
		if _, err := svc.GoogleCallback(ctx, state, "code"); err != ErrInvalidOAuthState {
			t.Errorf("GoogleCallback() replayed state err = %v; want ErrInvalidOAuthState", err)
		}
	})

	t.Run("unverified email", func(t *testing.T) {
		fg.info = googleUserInfo{Sub: "g-1", Name: "Jon Doe", Email: "jon@test.cd"}
		if _, err := svc.GoogleCallback(ctx, loginState(t, svc), "code"); err != ErrEmailNotVerified {
			t.Errorf("GoogleCallback() err = %v; want ErrEmailNotVerified", err)
		}
	})

	t.Run("deactivated account", func(t *testing.T) {
		fg.info = googleUserInfo{Sub: "g-2", Name: "Jane Doe", Email: "jane@test.cd", EmailVerified: true}
		if _, err := svc.GoogleCallback(ctx, loginState(t, svc), "code"); err != ErrAccountDeactivated {
			t.Errorf("GoogleCallback() err = %v; want ErrAccountDeactivated", err)
		}
	})

	t.Run("existing user signs in", func(t *testing.T) {
		fg.info = googleUserInfo{Sub: "g-1", Name: "Jon Doe", Email: "JON@test.cd", EmailVerified: true}
		pair, err := svc.GoogleCallback(ctx, loginState(t, svc), "code")
		if err != nil {
			t.Fatalf("GoogleCallback() failed: %v", err)
		}
		claims, err := ParseToken(pair.AccessToken)
		if err != nil {
			t.Fatalf("ParseToken() failed: %v", err)
		}
		if claims.Subject != jon.ID {
			t.Errorf("claims.Subject = %q; want %q", claims.Subject, jon.ID)
		}
	})

	t.Run("first login provisions a student account", func(t *testing.T) {
		fg.info = googleUserInfo{Sub: "g-3", Name: "New Kid", Email: "new.kid@test.cd", EmailVerified: true}
		pair, err := svc.GoogleCallback(ctx, loginState(t, svc), "code")
		if err != nil {
			t.Fatalf("GoogleCallback() failed: %v", err)
		}

		usr, err := repo.GetUser(ctx, user.GetFilter{Email: "new.kid@test.cd"})
		if err != nil {
			t.Fatalf("GetUser() failed: %v", err)
		}
		if !usr.IsStudent() || usr.IsTeacher() || usr.IsAdmin() {
			t.Errorf("provisioned roles = %v; want student only", usr.Roles)
		}
		if !usr.Active() {
			t.Errorf("provisioned user is not active")
		}
		if err = usr.CheckPassword(""); err == nil {
			t.Errorf("provisioned user has a usable empty password")
		}

		claims, err := ParseToken(pair.AccessToken)
		if err != nil {
			t.Fatalf("ParseToken() failed: %v", err)
		}
		if claims.Subject != usr.ID {
			t.Errorf("claims.Subject = %q; want %q", claims.Subject, usr.ID)
		}
	})
}
