package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthServiceLoginStoresSession(t *testing.T) {
	ctx := context.Background()
	_, srv := newFakeAPI(t)
	slots := NewMemorySlots()
	store := NewSessionStore(ctx, slots)
	svc := NewAuthService(NewHTTPAuthGateway(srv.URL, time.Second))

	res, err := svc.Login(ctx, store, testEmail, testPassword)
	require.NoError(t, err)
	assert.Equal(t, "Login successful", res.Message)
	want := Session{Name: "Jane Doe", Email: testEmail, Token: testToken}
	assert.Equal(t, want, res.Session)
	assert.Equal(t, want, store.Current())
	assert.True(t, CanEnter(store.Current()).Allowed)

	// A fresh store over the same slots sees the same session.
	assert.Equal(t, want, NewSessionStore(ctx, slots).Current())

	svc.Logout(ctx, store)
	assert.Equal(t, Session{}, store.Current())
	assert.Equal(t, AccessDecision{Redirect: LoginPath}, CanEnter(store.Current()))
}

func TestAuthServiceLoginRejected(t *testing.T) {
	ctx := context.Background()
	_, srv := newFakeAPI(t)
	store := NewSessionStore(ctx, NewMemorySlots())
	_, _ = store.Apply(ctx, Transition{Kind: LoginSuccess, Payload: janeDoe})
	svc := NewAuthService(NewHTTPAuthGateway(srv.URL, time.Second))

	_, err := svc.Login(ctx, store, testEmail, "Wrong1234")
	var authErr *AuthFailureError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.Status)
	assert.Equal(t, "Invalid credentials", UserMessage(err))
	// The attempt started by resetting the previous identity.
	assert.Equal(t, Session{}, store.Current())
}

func TestAuthServiceInvalidInputNeverCallsServer(t *testing.T) {
	ctx := context.Background()
	api, srv := newFakeAPI(t)
	store := NewSessionStore(ctx, NewMemorySlots())
	_, _ = store.Apply(ctx, Transition{Kind: LoginSuccess, Payload: janeDoe})
	svc := NewAuthService(NewHTTPAuthGateway(srv.URL, time.Second))

	_, err := svc.Login(ctx, store, "not-an-email", testPassword)
	assert.ErrorIs(t, err, ErrInvalidEmail)
	_, err = svc.Login(ctx, store, testEmail, "short1")
	assert.ErrorIs(t, err, ErrWeakPassword)
	_, err = svc.Register(ctx, RegisterInput{FirstName: "A", LastName: "B", Email: testEmail, Password: "lettersonly"})
	assert.ErrorIs(t, err, ErrWeakPassword)

	assert.Zero(t, api.hit("login"))
	assert.Zero(t, api.hit("register"))
	// Rejected input leaves the session alone.
	assert.Equal(t, janeDoe, store.Current())
}

func TestAuthServiceIncompletePayload(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Login successful",
			"user":    map[string]string{"firstName": "Jane", "lastName": "Doe", "email": testEmail},
		})
	}))
	t.Cleanup(srv.Close)
	store := NewSessionStore(ctx, NewMemorySlots())

	_, err := NewAuthService(NewHTTPAuthGateway(srv.URL, time.Second)).Login(ctx, store, testEmail, testPassword)
	assert.ErrorIs(t, err, ErrIncompleteSession)
	assert.Equal(t, Session{}, store.Current())
}

func TestHTTPAuthGatewayNameKeepsEmptyLastName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"token": testToken,
			"user":  map[string]string{"firstName": "Jane", "lastName": "", "email": testEmail},
		})
	}))
	t.Cleanup(srv.Close)

	res, err := NewHTTPAuthGateway(srv.URL, time.Second).Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	assert.Equal(t, "Jane ", res.Session.Name)
}

func TestHTTPAuthGatewayGenericFailureMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("<html>oops</html>"))
	}))
	t.Cleanup(srv.Close)

	_, err := NewHTTPAuthGateway(srv.URL, time.Second).Login(context.Background(), testEmail, testPassword)
	var authErr *AuthFailureError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusInternalServerError, authErr.Status)
	assert.Equal(t, genericFailureMessage, UserMessage(err))
}

func TestHTTPAuthGatewayTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPAuthGateway(url, time.Second).Login(context.Background(), testEmail, testPassword)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, genericFailureMessage, UserMessage(err))

	_, err = NewHTTPAuthGateway("", time.Second).Login(context.Background(), testEmail, testPassword)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestHTTPAuthGatewayRejectsOverlappingLogin(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(entered) })
		<-release
		writeJSON(w, http.StatusOK, map[string]any{
			"token": testToken,
			"user":  map[string]string{"firstName": "Jane", "lastName": "Doe", "email": testEmail},
		})
	}))
	t.Cleanup(srv.Close)
	gw := NewHTTPAuthGateway(srv.URL, 5*time.Second)

	done := make(chan error, 1)
	go func() {
		_, err := gw.Login(context.Background(), testEmail, testPassword)
		done <- err
	}()
	<-entered

	_, err := gw.Login(context.Background(), testEmail, testPassword)
	assert.ErrorIs(t, err, ErrRequestInFlight)

	// Another browser has its own scope and is not turned away.
	other := make(chan error, 1)
	go func() {
		_, err := gw.Login(WithFormScope(context.Background(), "browser-2"), testEmail, testPassword)
		other <- err
	}()

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, <-other)

	// Once the first call has settled the form is usable again.
	res, err := gw.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	assert.Equal(t, testToken, res.Session.Token)
}

func TestAuthServiceRegister(t *testing.T) {
	ctx := context.Background()
	api, srv := newFakeAPI(t)
	svc := NewAuthService(NewHTTPAuthGateway(srv.URL, time.Second))

	msg, err := svc.Register(ctx, RegisterInput{FirstName: "Jane", LastName: "Doe", Email: "new@x.com", Password: testPassword})
	require.NoError(t, err)
	assert.Equal(t, "User registered successfully", msg)

	_, err = svc.Register(ctx, RegisterInput{FirstName: "Jane", LastName: "Doe", Email: "taken@x.com", Password: testPassword})
	var authErr *AuthFailureError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusConflict, authErr.Status)
	assert.Equal(t, "User already exists", UserMessage(err))
	assert.Equal(t, 2, api.hit("register"))
}
