package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"expense-tracker-client/core"
)

// env bundles what every command needs.
type env struct {
	cfg      core.Config
	store    *core.SessionStore
	auth     *core.AuthService
	expenses *core.ExpenseClient
	out      io.Writer
}

func main() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
	cfg := core.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if closer, err := core.SetupFileLogging(cfg, "expensectl.log"); err == nil {
		defer closer.Close()
	} else {
		log.SetOutput(io.Discard)
	}

	if shutdown, err := core.SetupTracing(ctx, cfg, "expensectl"); err == nil {
		defer shutdown(context.Background())
	} else {
		log.Printf("tracing disabled: %v", err)
	}

	var rdb *redis.Client
	if cfg.MirrorBackend == core.MirrorRedis {
		var err error
		rdb, err = core.NewRedisClient(cfg.RedisURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "redis: %v\n", err)
			os.Exit(1)
		}
		defer rdb.Close()
	}

	e := newEnv(ctx, cfg, profileSlots(cfg, rdb), os.Stdout)
	if err := newApp(e).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// profileSlots picks the durable mirror of the terminal profile. The cookie
// backend has no meaning outside a browser and falls back to the file store.
func profileSlots(cfg core.Config, rdb *redis.Client) core.SlotStore {
	switch cfg.MirrorBackend {
	case core.MirrorRedis:
		if rdb != nil {
			return core.NewRedisSlots(rdb, "profile:"+cfg.Profile)
		}
	case core.MirrorMemory:
		return core.NewMemorySlots()
	}
	return core.NewFileSlots(cfg.MirrorDir, cfg.Profile, cfg.MirrorKey)
}

func newEnv(ctx context.Context, cfg core.Config, slots core.SlotStore, out io.Writer) *env {
	store := core.NewSessionStore(ctx, slots)
	return &env{
		cfg:      cfg,
		store:    store,
		auth:     core.NewAuthService(core.NewHTTPAuthGateway(cfg.APIBaseURL, cfg.RequestTimeout())),
		expenses: core.NewExpenseClient(cfg.APIBaseURL, store, cfg.RequestTimeout()),
		out:      out,
	}
}

func newApp(e *env) *cli.App {
	return &cli.App{
		Name:  "expensectl",
		Usage: "track expenses from the terminal",
		Commands: []*cli.Command{
			{
				Name:  "signup",
				Usage: "create an account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "first-name", Required: true},
					&cli.StringFlag{Name: "last-name", Required: true},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", EnvVars: []string{"EXPENSE_PASSWORD"}, Required: true},
				},
				Action: func(c *cli.Context) error {
					msg, err := e.auth.Register(c.Context, core.RegisterInput{
						FirstName: c.String("first-name"),
						LastName:  c.String("last-name"),
						Email:     c.String("email"),
						Password:  c.String("password"),
					})
					if err != nil {
						return failure(err)
					}
					fmt.Fprintln(e.out, msg)
					fmt.Fprintln(e.out, "Now run: expensectl login")
					return nil
				},
			},
			{
				Name:  "login",
				Usage: "log in and remember the session",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", EnvVars: []string{"EXPENSE_PASSWORD"}, Required: true},
				},
				Action: func(c *cli.Context) error {
					res, err := e.auth.Login(c.Context, e.store, c.String("email"), c.String("password"))
					if err != nil {
						return failure(err)
					}
					if res.Message != "" {
						fmt.Fprintln(e.out, res.Message)
					}
					fmt.Fprintf(e.out, "Logged in as %s <%s>\n", res.Session.Name, res.Session.Email)
					return nil
				},
			},
			{
				Name:  "logout",
				Usage: "forget the session",
				Action: func(c *cli.Context) error {
					e.auth.Logout(c.Context, e.store)
					fmt.Fprintln(e.out, "Logged out.")
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "show the current session",
				Action: func(c *cli.Context) error {
					sess := e.store.Current()
					if !sess.Authenticated() {
						fmt.Fprintln(e.out, "Not logged in.")
						return nil
					}
					fmt.Fprintf(e.out, "%s <%s>\n", sess.Name, sess.Email)
					if exp, ok := core.TokenExpiry(sess.Token); ok {
						fmt.Fprintf(e.out, "token expires %s\n", exp.Local().Format(time.RFC1123))
					}
					return nil
				},
			},
			expensesCommand(e),
		},
	}
}

func expensesCommand(e *env) *cli.Command {
	formFlags := []cli.Flag{
		&cli.StringFlag{Name: "name", Required: true},
		&cli.StringFlag{Name: "category", Required: true},
		&cli.Float64Flag{Name: "amount", Required: true},
		&cli.StringFlag{Name: "date", Usage: "YYYY-MM-DD", Value: time.Now().Format(time.DateOnly)},
	}
	formInput := func(c *cli.Context) core.ExpenseInput {
		return core.ExpenseInput{
			ExpenseName:     c.String("name"),
			ExpenseCategory: c.String("category"),
			Amount:          c.Float64("amount"),
			ExpenseDate:     c.String("date"),
		}
	}

	return &cli.Command{
		Name:    "expenses",
		Aliases: []string{"x"},
		Usage:   "list and edit expenses (requires login)",
		Before: func(c *cli.Context) error {
			if d := core.CanEnter(e.store.Current()); !d.Allowed {
				return cli.Exit("not logged in; run: expensectl login", 2)
			}
			return nil
		},
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list expenses",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name"},
					&cli.StringFlag{Name: "category"},
					&cli.StringFlag{Name: "date"},
					&cli.StringFlag{Name: "year"},
					&cli.BoolFlag{Name: "sort-amount"},
				},
				Action: func(c *cli.Context) error {
					q := core.ExpenseQuery{
						Name:         c.String("name"),
						Category:     c.String("category"),
						Date:         c.String("date"),
						SortByAmount: c.Bool("sort-amount"),
						Year:         c.String("year"),
					}
					list, err := e.expenses.List(c.Context, q)
					if err != nil {
						return failure(err)
					}
					list = core.FilterExpenses(list, core.ExpenseFilter{Name: q.Name, Category: q.Category, Date: q.Date})
					if q.Year != "" {
						list = core.FilterByYear(list, q.Year)
					}
					if q.SortByAmount {
						list = core.SortByAmount(list)
					}
					printExpenses(e.out, list, "No expenses found.")
					return nil
				},
			},
			{
				Name:  "recent",
				Usage: "show recent transactions",
				Action: func(c *cli.Context) error {
					list, err := e.expenses.Recent(c.Context)
					if err != nil {
						return failure(err)
					}
					printExpenses(e.out, list, "No recent transactions.")
					return nil
				},
			},
			{
				Name:  "month",
				Usage: "show transactions of a month",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "month", Value: int(time.Now().Month())},
					&cli.IntFlag{Name: "year", Value: time.Now().Year()},
				},
				Action: func(c *cli.Context) error {
					month := c.Int("month")
					if month < 1 || month > 12 {
						return cli.Exit("month must be between 1 and 12", 2)
					}
					list, err := e.expenses.Month(c.Context, time.Month(month), c.Int("year"))
					if err != nil {
						return failure(err)
					}
					printExpenses(e.out, list, "No transactions for this month.")
					ov := core.Summarize(list, time.Date(c.Int("year"), time.Month(month), 1, 0, 0, 0, 0, time.UTC))
					fmt.Fprintf(e.out, "Total: %.2f\n", ov.Total)
					return nil
				},
			},
			{
				Name:  "add",
				Usage: "add an expense",
				Flags: formFlags,
				Action: func(c *cli.Context) error {
					if err := e.expenses.Create(c.Context, formInput(c)); err != nil {
						return failure(err)
					}
					return printAll(c.Context, e)
				},
			},
			{
				Name:  "edit",
				Usage: "update an expense; omitted fields keep their current value",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Required: true},
					&cli.StringFlag{Name: "name"},
					&cli.StringFlag{Name: "category"},
					&cli.Float64Flag{Name: "amount"},
					&cli.StringFlag{Name: "date", Usage: "YYYY-MM-DD"},
				},
				Action: func(c *cli.Context) error {
					current, err := findExpense(c.Context, e, c.String("id"))
					if err != nil {
						return err
					}
					in := core.InputFrom(current)
					if c.IsSet("name") {
						in.ExpenseName = c.String("name")
					}
					if c.IsSet("category") {
						in.ExpenseCategory = c.String("category")
					}
					if c.IsSet("amount") {
						in.Amount = c.Float64("amount")
					}
					if c.IsSet("date") {
						in.ExpenseDate = c.String("date")
					}
					if err := e.expenses.Update(c.Context, current.ID, in); err != nil {
						return failure(err)
					}
					return printAll(c.Context, e)
				},
			},
			{
				Name:  "delete",
				Usage: "delete an expense",
				Flags: []cli.Flag{&cli.StringFlag{Name: "id", Required: true}},
				Action: func(c *cli.Context) error {
					if err := e.expenses.Delete(c.Context, c.String("id")); err != nil {
						return failure(err)
					}
					return printAll(c.Context, e)
				},
			},
		},
	}
}

// findExpense loads the record being edited so its fields can prefill the form.
func findExpense(ctx context.Context, e *env, id string) (core.Expense, error) {
	list, err := e.expenses.List(ctx, core.ExpenseQuery{})
	if err != nil {
		return core.Expense{}, failure(err)
	}
	for _, x := range list {
		if x.ID == id {
			return x, nil
		}
	}
	return core.Expense{}, cli.Exit(fmt.Sprintf("expense %s not found", id), 1)
}

// printAll re-fetches the list after a mutation.
func printAll(ctx context.Context, e *env) error {
	list, err := e.expenses.List(ctx, core.ExpenseQuery{})
	if err != nil {
		return failure(err)
	}
	printExpenses(e.out, list, "No expenses found.")
	return nil
}

func printExpenses(out io.Writer, list []core.Expense, empty string) {
	if len(list) == 0 {
		fmt.Fprintln(out, empty)
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tAMOUNT\tDATE")
	for _, x := range list {
		date := x.ExpenseDate
		if t, ok := x.Date(); ok {
			date = t.Format(time.DateOnly)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n", x.ID, x.ExpenseName, x.ExpenseCategory, x.Amount, date)
	}
	tw.Flush()
}

// failure reports err once as a user-facing message.
func failure(err error) error {
	code := 1
	if errors.Is(err, core.ErrNotLoggedIn) {
		code = 2
	}
	return cli.Exit(core.UserMessage(err), code)
}
