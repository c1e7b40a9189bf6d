package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"net/url"
	"testing"

	"golang.org/x/oauth2"

	. "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core/auth"
	"github.com/trezcool/shule/core/user"
	emailsvc "github.com/trezcool/shule/services/email"
	testutil "github.com/trezcool/shule/tests"
)

func Test_authApi_login(t *testing.T) {
	resetDB(t)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "LordOfTheDance", []string{user.RoleStudent}, true)
	testutil.CreateUser(t, usrRepo, "N Dog", "ndog", "ndog@test.cd", "LordOfTheFries", []string{user.RoleStudent}, false)

	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest, body: marchallObj(t, LoginRequest{}),
			wantData: marchallObj(t, LoginRequest{Username: "this field is required", Password: "this field is required"}),
		},
		{
			name: "unknown user", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, LoginRequest{Username: "ghost", Password: "LordOfTheDance"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, LoginRequest{Username: "hero", Password: "LordOfTheRings"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "inactive user", wantCode: http.StatusForbidden,
			body:     marchallObj(t, LoginRequest{Username: "ndog", Password: "LordOfTheFries"}),
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "login with username", wantCode: http.StatusOK,
			body: marchallObj(t, LoginRequest{Username: "hero", Password: "LordOfTheDance"}),
		},
		{
			name: "login with email", wantCode: http.StatusOK,
			body: marchallObj(t, LoginRequest{Username: "HERO@test.cd", Password: "LordOfTheDance"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/auth/login"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)

			// cannot guess the tokens.. just check that the pair is complete
			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var pair auth.TokenPair
				if err := json.Unmarshal(rec.Body.Bytes(), &pair); err != nil {
					t.Errorf("json.Unmarshal() failed! err %v", err)
				}
				if pair.AccessToken == "" || pair.RefreshToken == "" {
					t.Error("failed! incomplete token pair")
				}
				claims, err := auth.ParseToken(pair.AccessToken)
				if err != nil {
					t.Fatalf("ParseToken(): %v", err)
				}
				if claims.Subject != student.ID {
					t.Errorf("failed! subject = %v; want %v", claims.Subject, student.ID)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_authApi_refreshToken(t *testing.T) {
	resetDB(t)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "LordOfTheDance", []string{user.RoleStudent}, true)
	pair := getTokenPair(t, student)

	refreshBody := func(token string) []byte {
		return marchallObj(t, RefreshRequest{RefreshToken: token})
	}

	tests := []httpTest{
		{
			name: "required field", wantCode: http.StatusBadRequest, body: marchallObj(t, RefreshRequest{}),
			wantData: marchallObj(t, RefreshRequest{RefreshToken: "this field is required"}),
		},
		{
			name: "garbage token", wantCode: http.StatusUnauthorized,
			body: refreshBody("not.a.jwt"), wantData: marchallObj(t, httpErr{Error: "invalid token"}),
		},
		{
			name: "access token rejected", wantCode: http.StatusUnauthorized,
			body: refreshBody(pair.AccessToken), wantData: marchallObj(t, httpErr{Error: "invalid token"}),
		},
		{name: "token refreshed", wantCode: http.StatusOK, body: refreshBody(pair.RefreshToken)},
		{
			name: "rotated token is dead", wantCode: http.StatusUnauthorized,
			body: refreshBody(pair.RefreshToken), wantData: marchallObj(t, httpErr{Error: "invalid token"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/auth/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var newPair auth.TokenPair
				if err := json.Unmarshal(rec.Body.Bytes(), &newPair); err != nil {
					t.Errorf("json.Unmarshal() failed! err %v", err)
				}
				if newPair.RefreshToken == "" || newPair.RefreshToken == pair.RefreshToken {
					t.Error("failed! refresh token not rotated")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_authApi_logout(t *testing.T) {
	resetDB(t)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "LordOfTheDance", []string{user.RoleStudent}, true)
	pair := getTokenPair(t, student)

	req, rec := newRequest(http.MethodPost, "/v1/auth/logout", marchallObj(t, RefreshRequest{RefreshToken: pair.RefreshToken}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout failed! code = %v; want %v", rec.Code, http.StatusNoContent)
	}

	// the revoked token can no longer refresh
	req, rec = newRequest(http.MethodPost, "/v1/auth/token-refresh", marchallObj(t, RefreshRequest{RefreshToken: pair.RefreshToken}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("refresh after logout! code = %v; want %v", rec.Code, http.StatusUnauthorized)
	}
}

func Test_authApi_googleLogin_notConfigured(t *testing.T) {
	tests := []httpTest{
		{name: "login", path: "/v1/auth/oauth/google", wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodGet, tt.path)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_authApi_googleCallback(t *testing.T) {
	resetDB(t)

	jon := testutil.CreateUser(t, usrRepo, "Jon", "jon111", "jon@test.cd", "", []string{user.RoleStudent}, true)

	// fake provider; the userinfo payload is swapped per case
	info := struct {
		Sub           string `json:"sub"`
		Name          string `json:"name"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}{}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fake-token","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(info)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	origInfoURL := auth.GoogleUserInfoURL
	auth.GoogleUserInfoURL = srv.URL + "/userinfo"
	defer func() { auth.GoogleUserInfoURL = origInfoURL }()

	oauthApp := NewServer(ServerDeps{
		Logger:        testutil.NopLogger{},
		UserSvc:       usrSvc,
		ClassSvc:      clsSvc,
		AssignmentSvc: asgSvc,
		AuthSvc: auth.NewService(usrSvc, auth.NewMemoryStore(), &oauth2.Config{
			ClientID:     "client",
			ClientSecret: "secret",
			RedirectURL:  "http://app.test/v1/auth/oauth/google/callback",
			Endpoint:     oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"},
		}),
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})

	// each callback needs a fresh single-use state from the login redirect
	loginState := func(t *testing.T) string {
		t.Helper()
		req, rec := newRequest(http.MethodGet, "/v1/auth/oauth/google")
		oauthApp.ServeHTTP(rec, req)
		if rec.Code != http.StatusTemporaryRedirect {
			t.Fatalf("google login failed! code = %v; want %v", rec.Code, http.StatusTemporaryRedirect)
		}
		loc, err := url.Parse(rec.Header().Get("Location"))
		if err != nil {
			t.Fatalf("url.Parse(): %v", err)
		}
		return loc.Query().Get("state")
	}
	callbackPath := func(state string) string {
		return "/v1/auth/oauth/google/callback?state=" + url.QueryEscape(state) + "&code=c0de"
	}

	t.Run("unknown state", func(t *testing.T) {
		tt := httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "invalid or expired oauth state"}),
		}
		req, rec := newRequest(http.MethodGet, callbackPath("lol"))
		oauthApp.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("unverified email", func(t *testing.T) {
		info.Sub, info.Name, info.Email, info.EmailVerified = "g-1", "New Kid", "kid@test.cd", false
		tt := httpTest{
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "email address not verified by provider"}),
		}
		req, rec := newRequest(http.MethodGet, callbackPath(loginState(t)))
		oauthApp.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("existing user signs in", func(t *testing.T) {
		info.Sub, info.Name, info.Email, info.EmailVerified = "g-2", "Jon", "JON@test.cd", true
		req, rec := newRequest(http.MethodGet, callbackPath(loginState(t)))
		oauthApp.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; want %v", rec.Code, http.StatusOK)
		}
		var pair auth.TokenPair
		if err := json.Unmarshal(rec.Body.Bytes(), &pair); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		claims, err := auth.ParseToken(pair.AccessToken)
		if err != nil {
			t.Fatalf("ParseToken(): %v", err)
		}
		if claims.Subject != jon.ID {
			t.Errorf("failed! subject = %v; want %v", claims.Subject, jon.ID)
		}
	})
}

func Test_authApi_passwordReset(t *testing.T) {
	resetDB(t)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "LordOfTheDance", []string{user.RoleStudent}, true)
	successData := marchallObj(t, SuccessResponse{Success: "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."})

	type extraTest struct {
		emailSent bool
		to        mail.Address
	}
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest, body: marchallObj(t, PasswordResetRequest{}),
			wantData: marchallObj(t, PasswordResetRequest{Email: "this field is required"}),
		},
		{
			name: "invalid email", wantCode: http.StatusBadRequest, body: marchallObj(t, PasswordResetRequest{Email: "lol"}),
			wantData: marchallObj(t, PasswordResetRequest{Email: "email must be a valid email address"}),
		},
		{
			name: "unknown email", wantCode: http.StatusOK, body: marchallObj(t, PasswordResetRequest{Email: "lol@test.com"}),
			wantData: successData, extra: extraTest{emailSent: false},
		},
		{
			name: "known email", wantCode: http.StatusOK, body: marchallObj(t, PasswordResetRequest{Email: student.Email}),
			wantData: successData, extra: extraTest{emailSent: true, to: mail.Address{Name: student.Name, Address: student.Email}},
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/auth/password-reset"

		t.Run(tt.name, func(t *testing.T) {
			emailsvc.ClearSentMessages()

			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if extra, ok := tt.extra.(extraTest); ok {
				if !extra.emailSent {
					if len(emailsvc.SentMessages) != 0 {
						t.Errorf("failed! %d emails sent; want 0", len(emailsvc.SentMessages))
					}
					return
				}
				if len(emailsvc.SentMessages) != 1 {
					t.Fatalf("failed! %d emails sent; want 1", len(emailsvc.SentMessages))
				}
				msg := emailsvc.SentMessages[0]
				if len(msg.To) != 1 || msg.To[0] != extra.to {
					t.Errorf("failed! email to = %v; want %v", msg.To, extra.to)
				}
			}
		})
	}
}

func Test_authApi_passwordResetConfirm(t *testing.T) {
	resetDB(t)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "LordOfTheDance", []string{user.RoleStudent}, true)
	token, err := user.MakeToken(student)
	if err != nil {
		t.Fatalf("MakeToken(): %v", err)
	}
	uid := user.EncodeUID(student)
	newPwd := "n0t-Ea5y-2-gu3ss"

	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest, body: []byte("{}"),
			wantData: marchallObj(t, user.ResetUserPassword{
				Token: "this field is required", UID: "this field is required",
				Password: "this field is required", PasswordConfirm: "this field is required",
			}),
		},
		{
			name: "invalid uid", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: token, UID: "lol", Password: newPwd, PasswordConfirm: newPwd}),
			wantData: marchallObj(t, map[string]string{"uid": "invalid token"}),
		},
		{
			name: "invalid token", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "lol", UID: uid, Password: newPwd, PasswordConfirm: newPwd}),
			wantData: marchallObj(t, map[string]string{"token": "invalid token"}),
		},
		{
			name: "password reset", wantCode: http.StatusOK,
			body:     marchallObj(t, user.ResetUserPassword{Token: token, UID: uid, Password: newPwd, PasswordConfirm: newPwd}),
			wantData: marchallObj(t, SuccessResponse{Success: "Password has been reset with the new password."}),
		},
		{
			name: "token is single-use", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: token, UID: uid, Password: newPwd, PasswordConfirm: newPwd}),
			wantData: marchallObj(t, map[string]string{"token": "invalid token"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/auth/password-reset-confirm"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	// the new password works
	if _, err := authSvc.Authenticate(context.Background(), student.Username, newPwd); err != nil {
		t.Errorf("Authenticate() with new password failed: %v", err)
	}
}
