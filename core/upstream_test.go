package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
)

const (
	testEmail    = "u@x.com"
	testPassword = "Passw0rd"
	testToken    = "abc"
)

// fakeAPI is an in-process stand-in for the remote auth + expenses API.
type fakeAPI struct {
	mu       sync.Mutex
	expenses []Expense
	nextID   int
	queries  []string
	hits     map[string]int
	token    string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{
		hits:  map[string]int{},
		token: testToken,
		expenses: []Expense{
			{ID: "e1", ExpenseName: "Groceries", ExpenseCategory: "Food", Amount: 42.5, ExpenseDate: "2024-03-10T00:00:00.000Z"},
			{ID: "e2", ExpenseName: "Train", ExpenseCategory: "Travel", Amount: 12, ExpenseDate: "2023-11-02T00:00:00.000Z"},
		},
		nextID: 3,
	}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *fakeAPI) hit(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hits[key]
}

func (a *fakeAPI) count(key string) {
	a.mu.Lock()
	a.hits[key]++
	a.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		a.count("login")
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Email != testEmail || req.Password != testPassword {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Login successful",
			"token":   a.token,
			"user":    map[string]string{"firstName": "Jane", "lastName": "Doe", "email": testEmail},
		})
	})

	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		a.count("register")
		var req RegisterInput
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch req.Email {
		case "taken@x.com":
			writeJSON(w, http.StatusConflict, map[string]string{"message": "User already exists"})
			return
		case "boom@x.com":
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "database down"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"message": "User registered successfully"})
	})

	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+a.token {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Token is not valid"})
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("GET /expen/expenses/recent", authed(func(w http.ResponseWriter, r *http.Request) {
		a.count("recent")
		a.mu.Lock()
		defer a.mu.Unlock()
		// The recent endpoint identifies records with "id".
		out := make([]map[string]any, 0, len(a.expenses))
		for _, e := range a.expenses {
			out = append(out, map[string]any{
				"id": e.ID, "expenseName": e.ExpenseName, "expenseCategory": e.ExpenseCategory,
				"amount": e.Amount, "expenseDate": e.ExpenseDate,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}))

	mux.HandleFunc("GET /expen/expenses/month/{m}/{y}", authed(func(w http.ResponseWriter, r *http.Request) {
		a.count("month:" + r.PathValue("m") + "/" + r.PathValue("y"))
		a.mu.Lock()
		defer a.mu.Unlock()
		writeJSON(w, http.StatusOK, a.expenses[:1])
	}))

	mux.HandleFunc("GET /expen/expenses", authed(func(w http.ResponseWriter, r *http.Request) {
		a.count("list")
		a.mu.Lock()
		defer a.mu.Unlock()
		a.queries = append(a.queries, r.URL.RawQuery)
		writeJSON(w, http.StatusOK, a.expenses)
	}))

	mux.HandleFunc("POST /expen/expenses", authed(func(w http.ResponseWriter, r *http.Request) {
		a.count("create")
		var in ExpenseInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad body"})
			return
		}
		a.mu.Lock()
		defer a.mu.Unlock()
		e := Expense{
			ID:              "e" + strconv.Itoa(a.nextID),
			ExpenseName:     in.ExpenseName,
			ExpenseCategory: in.ExpenseCategory,
			Amount:          in.Amount,
			ExpenseDate:     in.ExpenseDate + "T00:00:00.000Z",
		}
		a.nextID++
		a.expenses = append(a.expenses, e)
		writeJSON(w, http.StatusCreated, e)
	}))

	mux.HandleFunc("PUT /expen/expenses/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		a.count("update")
		var in ExpenseInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		a.mu.Lock()
		defer a.mu.Unlock()
		for i := range a.expenses {
			if a.expenses[i].ID == r.PathValue("id") {
				a.expenses[i].ExpenseName = in.ExpenseName
				a.expenses[i].ExpenseCategory = in.ExpenseCategory
				a.expenses[i].Amount = in.Amount
				a.expenses[i].ExpenseDate = in.ExpenseDate + "T00:00:00.000Z"
				writeJSON(w, http.StatusOK, a.expenses[i])
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Expense not found"})
	}))

	mux.HandleFunc("DELETE /expen/expenses/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		a.count("delete")
		a.mu.Lock()
		defer a.mu.Unlock()
		for i := range a.expenses {
			if a.expenses[i].ID == r.PathValue("id") {
				a.expenses = append(a.expenses[:i], a.expenses[i+1:]...)
				writeJSON(w, http.StatusOK, map[string]string{"message": "Expense deleted"})
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Expense not found"})
	}))

	return mux
}
