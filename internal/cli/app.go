package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/Krchnk/valutatrade-wallet/internal/auth"
	"github.com/Krchnk/valutatrade-wallet/internal/domain"
	"github.com/Krchnk/valutatrade-wallet/internal/ledger"
	"github.com/Krchnk/valutatrade-wallet/internal/rates"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

type RateUpdater interface {
	RunUpdate(ctx context.Context) (rates.UpdateReport, error)
}

// App runs one command per invocation against the shared services. The
// logged-in user is taken from the persisted session.
type App struct {
	users    *auth.Service
	ledger   *ledger.Ledger
	rates    *rates.Cache
	updater  RateUpdater
	registry *domain.Registry
	ttl      time.Duration
	out      io.Writer
	validate *validator.Validate
}

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, args []string) error
}

func New(users *auth.Service, l *ledger.Ledger, cache *rates.Cache, updater RateUpdater, registry *domain.Registry, ttl time.Duration, out io.Writer) *App {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("flag")
	})
	return &App{
		users:    users,
		ledger:   l,
		rates:    cache,
		updater:  updater,
		registry: registry,
		ttl:      ttl,
		out:      out,
		validate: validate,
	}
}

func (a *App) commands() []command {
	return []command{
		{"register", "register --username NAME --password PASS", a.register},
		{"login", "login --username NAME --password PASS", a.login},
		{"logout", "logout", a.logout},
		{"whoami", "whoami", a.whoami},
		{"rename", "rename --username NEW", a.rename},
		{"show-portfolio", "show-portfolio [--base USD]", a.showPortfolio},
		{"buy", "buy --currency CODE --amount N", a.buy},
		{"sell", "sell --currency CODE --amount N", a.sell},
		{"deposit", "deposit --currency CODE --amount N", a.deposit},
		{"get-rate", "get-rate --from CODE --to CODE", a.getRate},
		{"update-rates", "update-rates", a.updateRates},
		{"show-rates", "show-rates [--limit N]", a.showRates},
		{"list-currencies", "list-currencies [--kind fiat|crypto]", a.listCurrencies},
	}
}

// Usage writes the list of commands.
func (a *App) Usage() {
	fmt.Fprintln(a.out, "commands:")
	for _, cmd := range a.commands() {
		fmt.Fprintf(a.out, "  %s\n", cmd.usage)
	}
}

// Run executes args[0] with the remaining flags and returns the exit code:
// ExitOK on success, ExitError for a refused operation, ExitUsage for a
// malformed command line.
func (a *App) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		a.Usage()
		return ExitUsage
	}

	var cmd *command
	for _, c := range a.commands() {
		if c.name == args[0] {
			cmd = &c
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(a.out, "unknown command %q\n", args[0])
		a.Usage()
		return ExitUsage
	}

	err := cmd.run(ctx, args[1:])
	var usage *usageError
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return ExitOK
	case errors.As(err, &usage):
		fmt.Fprintf(a.out, "%s\nusage: %s\n", usage.msg, cmd.usage)
		return ExitUsage
	}

	logrus.WithField("command", cmd.name).WithError(err).Debug("command failed")
	fmt.Fprintln(a.out, Describe(err))
	var notFound *domain.CurrencyNotFoundError
	if errors.As(err, &notFound) {
		codes := make([]string, 0)
		for _, c := range a.registry.List() {
			codes = append(codes, c.Code)
		}
		fmt.Fprintf(a.out, "Supported currencies: %s\n", strings.Join(codes, ", "))
	}
	return ExitError
}

// parse binds flags, rejects positional leftovers and validates dst.
func (a *App) parse(name string, args []string, dst any, bind func(fs *flag.FlagSet)) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if bind != nil {
		bind(fs)
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(a.out)
			fs.PrintDefaults()
			return err
		}
		return usagef("%v", err)
	}
	if fs.NArg() > 0 {
		return usagef("unexpected argument %q", fs.Arg(0))
	}
	if dst == nil {
		return nil
	}
	if err := a.validate.Struct(dst); err != nil {
		return usagef("%s", validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			msgs = append(msgs, fmt.Sprintf("--%s is required", fe.Field()))
			continue
		}
		msgs = append(msgs, strings.TrimSpace(fmt.Sprintf("--%s must be %s %s", fe.Field(), fe.Tag(), fe.Param())))
	}
	return strings.Join(msgs, "; ")
}
