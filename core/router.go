package core

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
)

// NewRouter constructs the Gin engine with routes wired. rdb may be nil unless
// cfg.MirrorBackend is redis.
func NewRouter(cfg Config, store *sessions.CookieStore, authService *AuthService, expenses *ExpenseClient, rdb redis.Cmdable) *gin.Engine {
	r := gin.Default()
	startedAt := time.Now()

	// Global middleware: origin/CORS -> session -> CSRF
	r.Use(OriginRefererMiddleware(cfg))
	r.Use(SessionMiddleware(cfg, store, rdb))
	r.Use(CSRFMiddleware(cfg))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, CollectHealth(c.Request.Context(), cfg, rdb, startedAt))
	})

	api := r.Group("/api/v1")
	{
		api.GET("/session", func(c *gin.Context) {
			sess := sessionStoreFrom(c).Current()
			body := gin.H{
				"authenticated": sess.Authenticated(),
				"name":          nullable(sess.Name),
				"email":         nullable(sess.Email),
				"initial":       sess.Initial(),
			}
			if exp, ok := TokenExpiry(sess.Token); ok {
				body["expires_at"] = exp
			}
			c.JSON(http.StatusOK, body)
		})

		api.POST("/auth/register", func(c *gin.Context) {
			var req RegisterInput
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			msg, err := authService.Register(c.Request.Context(), req)
			if err != nil {
				respondUpstreamError(c, err)
				return
			}
			c.JSON(http.StatusCreated, gin.H{"message": msg, "redirect": LoginPath})
		})

		api.POST("/auth/login", func(c *gin.Context) {
			var req struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			res, err := authService.Login(c.Request.Context(), sessionStoreFrom(c), req.Email, req.Password)
			if err != nil {
				respondUpstreamError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"message":  res.Message,
				"user":     gin.H{"name": res.Session.Name, "email": res.Session.Email, "initial": res.Session.Initial()},
				"redirect": "/home",
			})
		})

		api.POST("/auth/logout", func(c *gin.Context) {
			authService.Logout(c.Request.Context(), sessionStoreFrom(c))
			c.JSON(http.StatusOK, gin.H{"redirect": LoginPath})
		})

		protected := api.Group("/expenses")
		protected.Use(RequireSession(false))
		{
			protected.GET("", func(c *gin.Context) {
				listExpenses(c, expenses)
			})

			protected.POST("", func(c *gin.Context) {
				var in ExpenseInput
				if err := c.ShouldBindJSON(&in); err != nil {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
					return
				}
				client := expenses.WithTokens(sessionStoreFrom(c))
				if err := client.Create(c.Request.Context(), in); err != nil {
					respondUpstreamError(c, err)
					return
				}
				refetch(c, client, http.StatusCreated)
			})

			protected.PUT("/:id", func(c *gin.Context) {
				var in ExpenseInput
				if err := c.ShouldBindJSON(&in); err != nil {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
					return
				}
				client := expenses.WithTokens(sessionStoreFrom(c))
				if err := client.Update(c.Request.Context(), c.Param("id"), in); err != nil {
					respondUpstreamError(c, err)
					return
				}
				refetch(c, client, http.StatusOK)
			})

			protected.DELETE("/:id", func(c *gin.Context) {
				client := expenses.WithTokens(sessionStoreFrom(c))
				if err := client.Delete(c.Request.Context(), c.Param("id")); err != nil {
					respondUpstreamError(c, err)
					return
				}
				refetch(c, client, http.StatusOK)
			})
		}
	}

	// Protected views. The guard runs on every navigation.
	views := r.Group("/")
	views.Use(RequireSession(true))
	{
		views.GET("/home", func(c *gin.Context) {
			sess := sessionStoreFrom(c).Current()
			client := expenses.WithTokens(sessionStoreFrom(c))
			ctx := c.Request.Context()

			recent, err := client.Recent(ctx)
			if err != nil {
				respondUpstreamError(c, err)
				return
			}
			now := time.Now()
			monthly, err := client.Month(ctx, now.Month(), now.Year())
			if err != nil {
				respondUpstreamError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"user":    gin.H{"name": sess.Name, "email": sess.Email, "initial": sess.Initial()},
				"recent":  nonNil(recent),
				"monthly": nonNil(monthly),
				"summary": Summarize(monthly, now),
			})
		})

		views.GET("/expenses", func(c *gin.Context) {
			listExpenses(c, expenses)
		})
	}

	return r
}

// listExpenses fetches with the server-side parameters, then applies the same
// filters locally so results do not depend on upstream support for them.
func listExpenses(c *gin.Context, expenses *ExpenseClient) {
	q := ExpenseQuery{
		Name:         strings.TrimSpace(c.Query("name")),
		Category:     strings.TrimSpace(c.Query("category")),
		Date:         strings.TrimSpace(c.Query("date")),
		SortByAmount: c.Query("sort") == "amount",
		Year:         strings.TrimSpace(c.Query("year")),
	}
	client := expenses.WithTokens(sessionStoreFrom(c))
	list, err := client.List(c.Request.Context(), q)
	if err != nil {
		respondUpstreamError(c, err)
		return
	}

	list = FilterExpenses(list, ExpenseFilter{Name: q.Name, Category: q.Category, Date: q.Date})
	if q.Year != "" {
		list = FilterByYear(list, q.Year)
	}
	if q.SortByAmount {
		list = SortByAmount(list)
	}
	c.JSON(http.StatusOK, gin.H{"items": nonNil(list)})
}

// refetch answers a mutation with the fresh list.
func refetch(c *gin.Context, client *ExpenseClient, status int) {
	list, err := client.List(c.Request.Context(), ExpenseQuery{})
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.JSON(status, gin.H{"items": nonNil(list)})
}

func nonNil(list []Expense) []Expense {
	if list == nil {
		return []Expense{}
	}
	return list
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
