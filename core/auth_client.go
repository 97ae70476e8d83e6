package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "expense-tracker-client/core"

// AuthGateway abstracts the remote login/register endpoints.
type AuthGateway interface {
	Login(ctx context.Context, email, password string) (LoginResult, error)
	Register(ctx context.Context, in RegisterInput) (string, error)
}

// RegisterInput is the signup form.
type RegisterInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// LoginResult carries the session payload and the server's greeting.
type LoginResult struct {
	Session Session
	Message string
}

type loginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	User    struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
	} `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type formScopeKey struct{}

// WithFormScope ties in-flight tracking to one caller, e.g. a browser id.
// Calls without a scope share the process-wide one.
func WithFormScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, formScopeKey{}, scope)
}

func formScope(ctx context.Context) string {
	s, _ := ctx.Value(formScopeKey{}).(string)
	return s
}

// HTTPAuthGateway calls {base}/auth/*. Each form (login, register) admits one
// outstanding call per scope; a second submission fails with ErrRequestInFlight.
type HTTPAuthGateway struct {
	client *http.Client
	base   string
	tracer trace.Tracer

	inflight sync.Map // "form|scope" -> struct{}
}

func NewHTTPAuthGateway(baseURL string, timeout time.Duration) *HTTPAuthGateway {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPAuthGateway{
		client: &http.Client{Timeout: timeout},
		base:   strings.TrimSuffix(baseURL, "/"),
		tracer: otel.Tracer(tracerName),
	}
}

// Login validates the credentials, then exchanges them for a session payload.
func (g *HTTPAuthGateway) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if err := ValidateCredentials(email, password); err != nil {
		return LoginResult{}, err
	}
	release, ok := g.acquire(ctx, "login")
	if !ok {
		return LoginResult{}, ErrRequestInFlight
	}
	defer release()

	payload := map[string]string{"email": email, "password": password}
	var body loginResponse
	if err := g.post(ctx, "/auth/login", payload, &body); err != nil {
		return LoginResult{}, err
	}

	return LoginResult{
		Session: Session{
			Name:  body.User.FirstName + " " + body.User.LastName,
			Email: body.User.Email,
			Token: body.Token,
		},
		Message: body.Message,
	}, nil
}

// Register validates the credentials and creates the account. It does not log in.
func (g *HTTPAuthGateway) Register(ctx context.Context, in RegisterInput) (string, error) {
	if err := ValidateCredentials(in.Email, in.Password); err != nil {
		return "", err
	}
	release, ok := g.acquire(ctx, "register")
	if !ok {
		return "", ErrRequestInFlight
	}
	defer release()

	var body messageResponse
	if err := g.post(ctx, "/auth/register", in, &body); err != nil {
		return "", err
	}
	return body.Message, nil
}

func (g *HTTPAuthGateway) acquire(ctx context.Context, form string) (func(), bool) {
	key := form + "|" + formScope(ctx)
	if _, busy := g.inflight.LoadOrStore(key, struct{}{}); busy {
		return nil, false
	}
	return func() { g.inflight.Delete(key) }, true
}

// post sends one JSON request. Non-2xx answers become *AuthFailureError; any
// failure to reach the server or decode a 2xx body wraps ErrTransport.
func (g *HTTPAuthGateway) post(ctx context.Context, path string, payload, out any) (err error) {
	ctx, span := g.tracer.Start(ctx, "auth "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if g.base == "" {
		return fmt.Errorf("%w: api base url not configured", ErrTransport)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	requestID := uuid.NewString()
	span.SetAttributes(attribute.String("request.id", requestID))
	log.Printf("auth request path=%s request_id=%s", path, requestID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.base+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &AuthFailureError{Status: resp.StatusCode, Message: failureMessage(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrTransport, path, err)
	}
	return nil
}

// failureMessage extracts the "message" field of an error body, falling back to the generic text.
func failureMessage(data []byte) string {
	var body messageResponse
	if err := json.Unmarshal(data, &body); err == nil && strings.TrimSpace(body.Message) != "" {
		return body.Message
	}
	return genericFailureMessage
}
