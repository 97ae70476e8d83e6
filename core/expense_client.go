package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrNotLoggedIn is returned when an expense call is attempted without a token.
var ErrNotLoggedIn = errors.New("not logged in")

// ErrInvalidExpense is returned for an incomplete add/edit form.
var ErrInvalidExpense = errors.New("invalid expense")

// APIError is a non-2xx answer of the expenses API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("expenses api returned status %d: %s", e.Status, e.Message)
}

// TokenSource yields the current bearer token; *SessionStore implements it.
type TokenSource interface {
	Token() string
}

// Expense is one record of the expenses API.
type Expense struct {
	ID              string  `json:"_id"`
	ExpenseName     string  `json:"expenseName"`
	ExpenseCategory string  `json:"expenseCategory"`
	Amount          float64 `json:"amount"`
	ExpenseDate     string  `json:"expenseDate"`
}

// UnmarshalJSON accepts both "_id" and "id"; the recent endpoint uses the latter.
func (e *Expense) UnmarshalJSON(b []byte) error {
	type plain Expense
	var aux struct {
		plain
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*e = Expense(aux.plain)
	if e.ID == "" {
		e.ID = aux.AltID
	}
	return nil
}

// Date parses ExpenseDate (RFC 3339 or YYYY-MM-DD) in UTC.
func (e Expense) Date() (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, e.ExpenseDate); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ExpenseInput is the add/edit form. ExpenseDate is YYYY-MM-DD.
type ExpenseInput struct {
	ExpenseName     string  `json:"expenseName"`
	ExpenseCategory string  `json:"expenseCategory"`
	Amount          float64 `json:"amount"`
	ExpenseDate     string  `json:"expenseDate"`
}

// Validate requires every field and a parseable date.
func (in ExpenseInput) Validate() error {
	if strings.TrimSpace(in.ExpenseName) == "" || strings.TrimSpace(in.ExpenseCategory) == "" {
		return fmt.Errorf("%w: name and category are required", ErrInvalidExpense)
	}
	if in.Amount < 0 {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidExpense)
	}
	if _, err := time.Parse(time.DateOnly, in.ExpenseDate); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidExpense)
	}
	return nil
}

// InputFrom prefills the edit form from an existing record.
func InputFrom(e Expense) ExpenseInput {
	in := ExpenseInput{ExpenseName: e.ExpenseName, ExpenseCategory: e.ExpenseCategory, Amount: e.Amount}
	if t, ok := e.Date(); ok {
		in.ExpenseDate = t.Format(time.DateOnly)
	}
	return in
}

// ExpenseQuery holds the server-side list parameters. Empty fields are omitted.
type ExpenseQuery struct {
	Name         string
	Category     string
	Date         string
	SortByAmount bool
	Year         string
}

func (q ExpenseQuery) values() url.Values {
	v := url.Values{}
	if q.Name != "" {
		v.Set("expenseName", q.Name)
	}
	if q.Category != "" {
		v.Set("expenseCategory", q.Category)
	}
	if q.Date != "" {
		v.Set("expenseDate", q.Date)
	}
	if q.SortByAmount {
		v.Set("sort", "amount")
	}
	if q.Year != "" {
		v.Set("year", q.Year)
	}
	return v
}

// ExpenseClient calls {base}/expen/expenses with the token of the current session.
type ExpenseClient struct {
	client *http.Client
	base   string
	tokens TokenSource
	tracer trace.Tracer
}

func NewExpenseClient(baseURL string, tokens TokenSource, timeout time.Duration) *ExpenseClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ExpenseClient{
		client: &http.Client{Timeout: timeout},
		base:   strings.TrimSuffix(baseURL, "/") + "/expen/expenses",
		tokens: tokens,
		tracer: otel.Tracer(tracerName),
	}
}

// WithTokens returns a client sharing c's transport that reads tokens from ts.
func (c *ExpenseClient) WithTokens(ts TokenSource) *ExpenseClient {
	cp := *c
	cp.tokens = ts
	return &cp
}

// Recent returns the latest transactions.
func (c *ExpenseClient) Recent(ctx context.Context) ([]Expense, error) {
	var out []Expense
	err := c.do(ctx, http.MethodGet, "/recent", nil, &out)
	return out, err
}

// Month returns transactions of the given month (1-12) and year.
func (c *ExpenseClient) Month(ctx context.Context, month time.Month, year int) ([]Expense, error) {
	var out []Expense
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/month/%d/%d", int(month), year), nil, &out)
	return out, err
}

// List returns expenses matching q.
func (c *ExpenseClient) List(ctx context.Context, q ExpenseQuery) ([]Expense, error) {
	path := ""
	if v := q.values(); len(v) > 0 {
		path = "?" + v.Encode()
	}
	var out []Expense
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *ExpenseClient) Create(ctx context.Context, in ExpenseInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "", in, nil)
}

func (c *ExpenseClient) Update(ctx context.Context, id string, in ExpenseInput) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidExpense)
	}
	if err := in.Validate(); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, "/"+url.PathEscape(id), in, nil)
}

func (c *ExpenseClient) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidExpense)
	}
	return c.do(ctx, http.MethodDelete, "/"+url.PathEscape(id), nil, nil)
}

func (c *ExpenseClient) do(ctx context.Context, method, path string, payload, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "expenses "+method, trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	token := ""
	if c.tokens != nil {
		token = c.tokens.Token()
	}
	if token == "" {
		return ErrNotLoggedIn
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}
	if resp.StatusCode >= 300 {
		log.Printf("expenses call failed method=%s path=%s status=%d", method, path, resp.StatusCode)
		return &APIError{Status: resp.StatusCode, Message: failureMessage(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode expenses response: %v", ErrTransport, err)
	}
	return nil
}
