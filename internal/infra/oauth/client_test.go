package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jsantic/authgate/internal/core/domain"
	"github.com/jsantic/authgate/internal/infra/config"
)

func testProviderSettings() config.OAuthProviderSettings {
	return config.OAuthProviderSettings{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://app.example.com/callback",
	}
}

func TestGitHubClient_ExchangeCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm returned error: %v", err)
		}
		if r.PostForm.Get("code") != "code-1" || r.PostForm.Get("client_id") != "client-id" {
			t.Fatalf("unexpected form: %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "gho_token",
			"token_type":   "bearer",
			"scope":        "read:user,user:email",
		})
	}))
	defer server.Close()

	client := NewGitHubClient(testProviderSettings())
	client.tokenURL = server.URL

	tokens, err := client.ExchangeCode(context.Background(), "code-1")
	if err != nil {
		t.Fatalf("ExchangeCode returned error: %v", err)
	}
	if tokens.AccessToken != "gho_token" {
		t.Fatalf("unexpected access token %s", tokens.AccessToken)
	}
	if tokens.RefreshToken != nil {
		t.Fatalf("github grants no refresh token here, got %v", *tokens.RefreshToken)
	}
}

func TestGitHubClient_ExchangeCodeProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"error":             "bad_verification_code",
			"error_description": "The code passed is incorrect or expired.",
		})
	}))
	defer server.Close()

	client := NewGitHubClient(testProviderSettings())
	client.tokenURL = server.URL

	if _, err := client.ExchangeCode(context.Background(), "stale"); err == nil {
		t.Fatalf("expected error for provider-reported failure")
	}
}

func TestGitHubClient_GetAccountPicksVerifiedPrimaryEmail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gho_token" {
			t.Fatalf("missing bearer token")
		}
		json.NewEncoder(w).Encode(map[string]any{"id": 42, "login": "dave"})
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"email": "old@example.com", "primary": false, "verified": true},
			{"email": "dave@example.com", "primary": true, "verified": true},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewGitHubClient(testProviderSettings())
	client.userURL = server.URL + "/user"
	client.emailsURL = server.URL + "/user/emails"

	account, err := client.GetAccount(context.Background(), &domain.OAuthTokens{AccessToken: "gho_token"})
	if err != nil {
		t.Fatalf("GetAccount returned error: %v", err)
	}
	if account.ID != "42" || account.Username != "dave" {
		t.Fatalf("unexpected account: %+v", account)
	}
	if account.Email == nil || *account.Email != "dave@example.com" {
		t.Fatalf("expected verified primary email, got %+v", account.Email)
	}
}

func TestGitHubClient_GetAccountNoVerifiedEmail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": 42, "login": "dave"})
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"email": "dave@example.com", "primary": true, "verified": false},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewGitHubClient(testProviderSettings())
	client.userURL = server.URL + "/user"
	client.emailsURL = server.URL + "/user/emails"

	account, err := client.GetAccount(context.Background(), &domain.OAuthTokens{AccessToken: "gho_token"})
	if err != nil {
		t.Fatalf("GetAccount returned error: %v", err)
	}
	if account.Email != nil {
		t.Fatalf("unverified email must be reported as absent, got %v", *account.Email)
	}
}

func TestGoogleClient_GetAccountFromIDToken(t *testing.T) {
	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":            "google-sub-1",
		"email":          "erin@example.com",
		"email_verified": true,
		"name":           "erin",
		"exp":            time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("irrelevant"))
	if err != nil {
		t.Fatalf("SignedString returned error: %v", err)
	}

	client := NewGoogleClient(testProviderSettings())

	account, err := client.GetAccount(context.Background(), &domain.OAuthTokens{
		AccessToken: "ya29.token",
		IDToken:     idToken,
	})
	if err != nil {
		t.Fatalf("GetAccount returned error: %v", err)
	}
	if account.ID != "google-sub-1" || account.Username != "erin" {
		t.Fatalf("unexpected account: %+v", account)
	}
	if account.Email == nil || *account.Email != "erin@example.com" {
		t.Fatalf("expected verified email, got %+v", account.Email)
	}
}

func TestGoogleClient_UnverifiedEmailOmitted(t *testing.T) {
	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":            "google-sub-2",
		"email":          "mallory@example.com",
		"email_verified": false,
	}).SignedString([]byte("irrelevant"))
	if err != nil {
		t.Fatalf("SignedString returned error: %v", err)
	}

	client := NewGoogleClient(testProviderSettings())

	account, err := client.GetAccount(context.Background(), &domain.OAuthTokens{IDToken: idToken})
	if err != nil {
		t.Fatalf("GetAccount returned error: %v", err)
	}
	if account.Email != nil {
		t.Fatalf("unverified email must be omitted, got %v", *account.Email)
	}
}

func TestGoogleClient_ExchangeCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm returned error: %v", err)
		}
		if r.PostForm.Get("grant_type") != "authorization_code" {
			t.Fatalf("unexpected grant type %s", r.PostForm.Get("grant_type"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "ya29.token",
			"refresh_token": "1//refresh",
			"expires_in":    3599,
			"token_type":    "Bearer",
		})
	}))
	defer server.Close()

	client := NewGoogleClient(testProviderSettings())
	client.tokenURL = server.URL

	tokens, err := client.ExchangeCode(context.Background(), "code-1")
	if err != nil {
		t.Fatalf("ExchangeCode returned error: %v", err)
	}
	if tokens.RefreshToken == nil || *tokens.RefreshToken != "1//refresh" {
		t.Fatalf("expected refresh token, got %+v", tokens.RefreshToken)
	}
	if tokens.ExpiresIn != 3599*time.Second {
		t.Fatalf("unexpected expiry %v", tokens.ExpiresIn)
	}
}
