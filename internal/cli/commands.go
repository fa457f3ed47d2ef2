package cli

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Krchnk/valutatrade-wallet/internal/auth"
	"github.com/Krchnk/valutatrade-wallet/internal/domain"
	"github.com/Krchnk/valutatrade-wallet/internal/ledger"
	"github.com/shopspring/decimal"
)

type credentialsArgs struct {
	Username string `flag:"username" validate:"required"`
	Password string `flag:"password" validate:"required"`
}

type renameArgs struct {
	Username string `flag:"username" validate:"required"`
}

type tradeArgs struct {
	Currency string `flag:"currency" validate:"required"`
	Amount   string `flag:"amount" validate:"required,numeric"`
}

type rateArgs struct {
	From string `flag:"from" validate:"required"`
	To   string `flag:"to" validate:"required"`
}

type portfolioArgs struct {
	Base string `flag:"base" validate:"omitempty,alpha"`
}

type ratesArgs struct {
	Limit int `flag:"limit" validate:"gte=0"`
}

type currenciesArgs struct {
	Kind string `flag:"kind" validate:"omitempty,oneof=fiat crypto FIAT CRYPTO"`
}

func (a *App) parseCredentials(name string, args []string) (credentialsArgs, error) {
	var in credentialsArgs
	err := a.parse(name, args, &in, func(fs *flag.FlagSet) {
		fs.StringVar(&in.Username, "username", "", "user name")
		fs.StringVar(&in.Password, "password", "", "password")
	})
	return in, err
}

func (a *App) register(ctx context.Context, args []string) error {
	in, err := a.parseCredentials("register", args)
	if err != nil {
		return err
	}
	user, err := a.users.Register(ctx, in.Username, in.Password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "User '%s' registered (id=%d). Log in with: login --username %s --password <password>\n",
		user.Username, user.UserID, user.Username)
	return nil
}

func (a *App) login(ctx context.Context, args []string) error {
	in, err := a.parseCredentials("login", args)
	if err != nil {
		return err
	}
	sess, err := a.users.Login(ctx, in.Username, in.Password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Logged in as '%s'\n", sess.Username())
	return nil
}

func (a *App) logout(ctx context.Context, args []string) error {
	if err := a.parse("logout", args, nil, nil); err != nil {
		return err
	}
	sess, err := a.users.Current(ctx)
	if err != nil {
		return err
	}
	if err := a.users.Logout(ctx, sess); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) whoami(ctx context.Context, args []string) error {
	if err := a.parse("whoami", args, nil, nil); err != nil {
		return err
	}
	sess, err := a.users.Current(ctx)
	if err != nil {
		return err
	}
	if !sess.IsAuthenticated() {
		fmt.Fprintln(a.out, "Not logged in")
		return nil
	}
	id, _ := sess.UserID()
	fmt.Fprintf(a.out, "%s (id=%d), logged in at %s\n", sess.Username(), id, sess.LoggedAt().Format(time.RFC3339))
	return nil
}

func (a *App) rename(ctx context.Context, args []string) error {
	var in renameArgs
	err := a.parse("rename", args, &in, func(fs *flag.FlagSet) {
		fs.StringVar(&in.Username, "username", "", "new user name")
	})
	if err != nil {
		return err
	}
	sess, err := a.users.Current(ctx)
	if err != nil {
		return err
	}
	renamed, err := a.users.Rename(ctx, sess, in.Username)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Renamed '%s' to '%s'\n", sess.Username(), renamed.Username())
	return nil
}

func (a *App) showPortfolio(ctx context.Context, args []string) error {
	var in portfolioArgs
	err := a.parse("show-portfolio", args, &in, func(fs *flag.FlagSet) {
		fs.StringVar(&in.Base, "base", domain.USD, "currency to value the portfolio in")
	})
	if err != nil {
		return err
	}
	sess, err := a.users.Current(ctx)
	if err != nil {
		return err
	}
	view, err := a.ledger.ShowPortfolio(ctx, sess, in.Base)
	if err != nil {
		return err
	}

	if len(view.Wallets) == 0 {
		fmt.Fprintf(a.out, "Portfolio of '%s' is empty\n", view.Username)
		return nil
	}

	fmt.Fprintf(a.out, "Portfolio of '%s' (base: %s):\n", view.Username, view.Base)
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "CURRENCY\tBALANCE\tVALUE (%s)\n", view.Base)
	for _, w := range view.Wallets {
		value := "n/a"
		if w.Priced {
			value = w.Value.StringFixed(domain.AmountPrecision)
			if w.Degraded {
				value += " (fallback)"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", w.Currency, w.Balance.String(), value)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, strings.Repeat("-", 40))
	fmt.Fprintf(a.out, "TOTAL: %s %s\n", view.Total.StringFixed(2), view.Base)

	if snap, ok, err := a.rates.Snapshot(); err == nil && ok {
		fmt.Fprintf(a.out, "Rates refreshed: %s\n", snap.LastRefresh.Format(time.RFC3339))
	}
	return nil
}

type tradeFunc func(ctx context.Context, sess auth.Session, code string, amount decimal.Decimal) (ledger.TradeResult, error)

func (a *App) buy(ctx context.Context, args []string) error {
	return a.trade(ctx, "buy", args, a.ledger.Buy)
}

func (a *App) sell(ctx context.Context, args []string) error {
	return a.trade(ctx, "sell", args, a.ledger.Sell)
}

func (a *App) deposit(ctx context.Context, args []string) error {
	return a.trade(ctx, "deposit", args, a.ledger.Deposit)
}

func (a *App) trade(ctx context.Context, name string, args []string, apply tradeFunc) error {
	var in tradeArgs
	err := a.parse(name, args, &in, func(fs *flag.FlagSet) {
		fs.StringVar(&in.Currency, "currency", "", "currency code")
		fs.StringVar(&in.Amount, "amount", "", "amount, a positive number")
	})
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(in.Amount)
	if err != nil {
		return usagef("--amount: %v", err)
	}

	sess, err := a.users.Current(ctx)
	if err != nil {
		return err
	}
	res, err := apply(ctx, sess, in.Currency, amount)
	if err != nil {
		return err
	}
	a.printTrade(res)
	return nil
}

func (a *App) printTrade(res ledger.TradeResult) {
	var verb, label string
	switch res.Action {
	case ledger.ActionBuy:
		verb, label = "Bought", "estimated cost"
	case ledger.ActionSell:
		verb, label = "Sold", "estimated revenue"
	default:
		verb = "Deposited"
	}

	line := fmt.Sprintf("%s %s %s", verb, res.Amount.StringFixed(domain.AmountPrecision), res.Currency)
	switch {
	case res.Value != nil:
		line += fmt.Sprintf(" at %.8f USD/%s (%s: %s USD)", res.Rate, res.Currency, label, res.Value.StringFixed(2))
		if res.Degraded {
			line += " [fallback rate]"
		}
	case res.PriceErr != nil:
		line += " (rate unavailable)"
	}
	fmt.Fprintln(a.out, line)
	fmt.Fprintf(a.out, "%s balance: %s -> %s\n", res.Currency,
		res.Before.StringFixed(domain.AmountPrecision), res.After.StringFixed(domain.AmountPrecision))
	if res.PriceErr != nil {
		fmt.Fprintln(a.out, Describe(res.PriceErr))
	}
}

func (a *App) getRate(ctx context.Context, args []string) error {
	var in rateArgs
	err := a.parse("get-rate", args, &in, func(fs *flag.FlagSet) {
		fs.StringVar(&in.From, "from", "", "source currency code")
		fs.StringVar(&in.To, "to", "", "target currency code")
	})
	if err != nil {
		return err
	}

	q, err := a.rates.GetRate(in.From, in.To, a.ttl)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Rate %s→%s: %.8f (updated: %s, source: %s)\n",
		q.From, q.To, q.Rate, q.UpdatedAt.Format(time.RFC3339), q.Source)
	if q.From != q.To && q.Rate > 0 {
		fmt.Fprintf(a.out, "Inverse %s→%s: %.8f\n", q.To, q.From, 1/q.Rate)
	}
	if q.Degraded {
		fmt.Fprintln(a.out, "Warning: fallback rate, run update-rates for live data")
	}
	return nil
}

func (a *App) updateRates(ctx context.Context, args []string) error {
	if err := a.parse("update-rates", args, nil, nil); err != nil {
		return err
	}
	report, err := a.updater.RunUpdate(ctx)
	for _, s := range report.Sources {
		if s.Err != nil {
			fmt.Fprintf(a.out, "  %s: failed: %v\n", s.Source, s.Err)
			continue
		}
		fmt.Fprintf(a.out, "  %s: %d pairs\n", s.Source, s.Pairs)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Rates updated: %d pairs, last refresh %s\n",
		len(report.Snapshot.Pairs), report.Snapshot.LastRefresh.Format(time.RFC3339))
	return nil
}

func (a *App) showRates(ctx context.Context, args []string) error {
	var in ratesArgs
	err := a.parse("show-rates", args, &in, func(fs *flag.FlagSet) {
		fs.IntVar(&in.Limit, "limit", 10, "number of history entries to show, 0 for none")
	})
	if err != nil {
		return err
	}

	snap, ok, err := a.rates.Snapshot()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrRatesUnavailable
	}

	keys := make([]string, 0, len(snap.Pairs))
	for k := range snap.Pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PAIR\tRATE\tUPDATED\tSOURCE")
	for _, k := range keys {
		p := snap.Pairs[k]
		fmt.Fprintf(tw, "%s\t%.8f\t%s\t%s\n", k, p.Rate, p.UpdatedAt.Format(time.RFC3339), p.Source)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	status := "fresh"
	if time.Since(snap.LastRefresh) > a.ttl {
		status = "stale"
	}
	fmt.Fprintf(a.out, "Last refresh: %s (%s)\n", snap.LastRefresh.Format(time.RFC3339), status)

	if in.Limit == 0 {
		return nil
	}
	history, err := a.rates.History(in.Limit)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return nil
	}
	fmt.Fprintln(a.out, "Recent history:")
	tw = tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	for _, h := range history {
		fmt.Fprintf(tw, "%s\t%.8f\t%s\n", h.ID, h.Rate, h.Source)
	}
	return tw.Flush()
}

func (a *App) listCurrencies(ctx context.Context, args []string) error {
	var in currenciesArgs
	err := a.parse("list-currencies", args, &in, func(fs *flag.FlagSet) {
		fs.StringVar(&in.Kind, "kind", "", "fiat or crypto")
	})
	if err != nil {
		return err
	}

	list := a.registry.List()
	if in.Kind != "" {
		list = list[:0:0]
		for _, code := range a.registry.Codes(domain.CurrencyKind(strings.ToUpper(in.Kind))) {
			c, err := a.registry.Get(code)
			if err != nil {
				return err
			}
			list = append(list, c)
		}
	}
	for _, c := range list {
		fmt.Fprintln(a.out, c.Display())
	}
	return nil
}
