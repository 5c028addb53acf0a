package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datallboy/optolib/internal/domain"
	"github.com/datallboy/optolib/internal/infra/logger"
	"github.com/datallboy/optolib/internal/store"
)

func newTestStore(t *testing.T) *store.PersistentStore {
	t.Helper()
	s, err := store.NewPersistentStore(filepath.Join(t.TempDir(), "optolib.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func fakeGoTrue(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var logouts atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "anon", r.Header.Get("apikey"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		switch r.URL.Query().Get("grant_type") {
		case "password":
			if body["password"] != "hunter22" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
				return
			}
		case "refresh_token":
			assert.Equal(t, "refresh-1", body["refresh_token"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"expires_in":    3600,
			"user":          map[string]string{"id": "u1", "email": body["email"]},
		})
	})
	mux.HandleFunc("POST /auth/v1/signup", func(w http.ResponseWriter, r *http.Request) {
		// Email confirmation pending: user but no session
		w.Write([]byte(`{"id":"u2","email":"new@example.com"}`))
	})
	mux.HandleFunc("POST /auth/v1/recover", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("POST /auth/v1/otp", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("POST /auth/v1/verify", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["token"] != "123456" {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"msg":"Token has expired or is invalid"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-otp",
			"refresh_token": "refresh-otp",
			"expires_in":    3600,
			"user":          map[string]string{"id": "u3", "phone": body["phone"]},
		})
	})
	mux.HandleFunc("POST /auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		logouts.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &logouts
}

func await(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no result delivered")
		return Result{}
	}
}

func TestSignInCachesSessionAndSignOutClearsIt(t *testing.T) {
	srv, logouts := fakeGoTrue(t)
	cache, err := NewCredentialCache(newTestStore(t), "local-secret")
	require.NoError(t, err)

	p := NewProvider(srv.URL, "anon", cache, logger.Discard())
	defer p.Close()

	res := await(t, p.SignIn("student@example.com", "hunter22"))
	require.NoError(t, res.Err)
	assert.Equal(t, KindSignedIn, res.Kind)
	require.NotNil(t, res.Session)
	assert.Equal(t, "student@example.com", res.Session.Email)
	assert.False(t, res.Session.Expired(time.Now()))

	cur, err := p.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", cur.AccessToken)

	res = await(t, p.SignOut())
	require.NoError(t, res.Err)
	assert.Equal(t, int32(1), logouts.Load())

	_, err = p.Current(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSignInFailures(t *testing.T) {
	srv, _ := fakeGoTrue(t)
	p := NewProvider(srv.URL, "anon", nil, logger.Discard())
	defer p.Close()

	res := await(t, p.SignIn("student@example.com", "wrong"))
	assert.ErrorIs(t, res.Err, domain.ErrUnauthorized)
	assert.Contains(t, res.Err.Error(), "Invalid login credentials")
	assert.Nil(t, res.Session)

	res = await(t, p.SignIn("not-an-email", "hunter22"))
	assert.ErrorIs(t, res.Err, domain.ErrInvalidInput)

	res = await(t, p.SignUp("new@example.com", "123"))
	assert.ErrorIs(t, res.Err, domain.ErrInvalidInput)
}

func TestSignUpResetAndRefresh(t *testing.T) {
	srv, _ := fakeGoTrue(t)
	p := NewProvider(srv.URL, "anon", nil, logger.Discard())
	defer p.Close()

	res := await(t, p.SignUp("new@example.com", "hunter22"))
	require.NoError(t, res.Err)
	assert.Equal(t, KindSignedUp, res.Kind)
	assert.Nil(t, res.Session, "confirmation pending")

	res = await(t, p.ResetPassword("new@example.com"))
	require.NoError(t, res.Err)
	assert.Equal(t, KindResetSent, res.Kind)

	res = await(t, p.Refresh("refresh-1"))
	require.NoError(t, res.Err)
	assert.Equal(t, KindRefreshed, res.Kind)
	assert.Equal(t, "access-1", res.Session.AccessToken)
}

func TestPhoneOTP(t *testing.T) {
	srv, _ := fakeGoTrue(t)
	p := NewProvider(srv.URL, "anon", nil, logger.Discard())
	defer p.Close()

	res := await(t, p.SendOTP("+1 (555) 123-4567"))
	require.NoError(t, res.Err)
	assert.Equal(t, KindOTPSent, res.Kind)

	res = await(t, p.VerifyOTP("+15551234567", "000000"))
	assert.ErrorIs(t, res.Err, domain.ErrUnauthorized)

	res = await(t, p.VerifyOTP("+15551234567", "123456"))
	require.NoError(t, res.Err)
	assert.Equal(t, "+15551234567", res.Session.Phone)

	res = await(t, p.SendOTP("5551234567"))
	assert.ErrorIs(t, res.Err, domain.ErrInvalidInput)
}

func TestCredentialCacheSealing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	cache, err := NewCredentialCache(s, "first-secret")
	require.NoError(t, err)

	want := Session{UserID: "u1", Email: "a@b.c", AccessToken: "tok", RefreshToken: "ref", ExpiresAt: time.Unix(2000000000, 0).UTC()}
	require.NoError(t, cache.Save(ctx, want))

	raw, err := s.GetCredential(ctx, providerName)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "tok")

	got, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	other, err := NewCredentialCache(s, "second-secret")
	require.NoError(t, err)
	_, err = other.Load(ctx)
	assert.ErrorIs(t, err, ErrSealBroken)

	_, err = NewCredentialCache(s, "  ")
	assert.Error(t, err)
}
