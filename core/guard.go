package core

// LoginPath is where anonymous navigation into a protected view is sent.
const LoginPath = "/login"

// AccessDecision is the outcome of CanEnter. Redirect is set only when denied.
type AccessDecision struct {
	Allowed  bool
	Redirect string
}

// CanEnter allows a protected view iff the session carries a token.
func CanEnter(s Session) AccessDecision {
	if s.Token != "" {
		return AccessDecision{Allowed: true}
	}
	return AccessDecision{Redirect: LoginPath}
}
