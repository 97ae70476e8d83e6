package core

import (
	"context"
	"log"
)

// AuthService folds gateway outcomes into session transitions.
type AuthService struct {
	gateway AuthGateway
}

func NewAuthService(gateway AuthGateway) *AuthService {
	return &AuthService{gateway: gateway}
}

// Login resets the session, authenticates and stores the new identity.
// Invalid input is rejected before the session is touched.
func (s *AuthService) Login(ctx context.Context, store *SessionStore, email, password string) (LoginResult, error) {
	if err := ValidateCredentials(email, password); err != nil {
		return LoginResult{}, err
	}
	// LoginStart runs before the gateway's in-flight check, so a rejected
	// duplicate also clears the slots; the outstanding call rewrites them.
	if _, err := store.Apply(ctx, Transition{Kind: LoginStart}); err != nil {
		return LoginResult{}, err
	}

	res, err := s.gateway.Login(ctx, email, password)
	if err != nil {
		log.Printf("login failed email=%s err=%v", email, err)
		return LoginResult{}, err
	}

	sess, err := store.Apply(ctx, Transition{Kind: LoginSuccess, Payload: res.Session})
	if err != nil {
		log.Printf("login payload rejected email=%s err=%v", email, err)
		return LoginResult{}, err
	}
	res.Session = sess
	return res, nil
}

// Register creates the account and leaves the session untouched.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (string, error) {
	msg, err := s.gateway.Register(ctx, in)
	if err != nil {
		log.Printf("register failed email=%s err=%v", in.Email, err)
		return "", err
	}
	return msg, nil
}

// Logout clears the session. Navigation to the login view is up to the caller.
func (s *AuthService) Logout(ctx context.Context, store *SessionStore) Session {
	sess, _ := store.Apply(ctx, Transition{Kind: Logout})
	return sess
}
