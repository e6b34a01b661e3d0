package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"partnerledger/config"
	"partnerledger/native/partner"
	"partnerledger/native/rates"
	"partnerledger/native/withdrawal"
	"partnerledger/services/ledgerd"
	"partnerledger/services/ledgerd/auth"
	"partnerledger/storage/sqlstore"
)

const (
	defaultConfig = "services/ledgerd/config.yaml"
	defaultRates  = "services/ledgerd/rates.toml"
	dateLayout    = "2006-01-02"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "tax":
		err = runTax(os.Args[2:], os.Stdout)
	case "level":
		err = runLevel(os.Args[2:], os.Stdout)
	case "token":
		err = runToken(os.Args[2:], os.Stdout)
	case "balance":
		err = runBalance(os.Args[2:], os.Stdout)
	case "audit":
		err = runAudit(os.Args[2:], os.Stdout)
	case "expire":
		err = runExpire(os.Args[2:], os.Stdout)
	case "export":
		err = runExport(os.Args[2:], os.Stdout)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: ledgerctl <command> [flags]

Commands:
  tax      quote withdrawal tax for an amount and tax status
  level    evaluate the partner level for referral and volume figures
  token    mint a signed service token
  balance  show a user's bonus statistics
  audit    compare a user's projected balance with the folded ledger
  expire   run the bonus expiry sweep
  export   write partner statements for a date range
`)
}

func loadTables(path string) (*rates.Tables, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return rates.New(*cfg)
}

func runTax(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("tax", flag.ExitOnError)
	ratesPath := fs.String("rates", defaultRates, "Path to the rate tables")
	amount := fs.Int64("amount", 0, "Gross withdrawal amount")
	status := fs.String("status", string(rates.TaxIndividual), "Tax status of the payee")
	fs.Parse(args)

	tables, err := loadTables(*ratesPath)
	if err != nil {
		return err
	}
	quote, err := withdrawal.NewEngine(tables).Quote(*amount, rates.ParseTaxStatus(*status))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "amount=%d status=%s rate_bps=%d tax=%d net=%d %s\n",
		quote.Amount, quote.TaxStatus, quote.TaxRateBps, quote.TaxAmount, quote.NetAmount, tables.Currency())
	return nil
}

func runLevel(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("level", flag.ExitOnError)
	ratesPath := fs.String("rates", defaultRates, "Path to the rate tables")
	referrals := fs.Int64("referrals", 0, "Active referral count")
	volume := fs.Int64("volume", 0, "Team volume")
	fs.Parse(args)

	tables, err := loadTables(*ratesPath)
	if err != nil {
		return err
	}
	status := partner.Evaluate(tables, partner.Stats{ActiveReferrals: *referrals, TeamVolume: *volume})
	fmt.Fprintf(out, "level=%d name=%s display_bps=%d\n",
		status.Current.Number, status.Current.Name, status.Current.DisplayCommissionBps)
	if p := status.Progress; p != nil {
		fmt.Fprintf(out, "next=%s remaining_referrals=%d remaining_volume=%d progress=%d%%\n",
			p.Next.Name, p.RemainingReferrals, p.RemainingVolume, p.Percent)
	}
	return nil
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", defaultConfig, "Path to the ledgerd config file")
	subject := fs.String("subject", "", "Token subject recorded as the actor")
	scopes := fs.String("scopes", auth.ScopeCheckout, "Comma separated scopes")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	fs.Parse(args)

	if strings.TrimSpace(*subject) == "" {
		return errors.New("subject required")
	}
	cfg, err := ledgerd.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	var list []string
	for _, scope := range strings.Split(*scopes, ",") {
		if scope = strings.TrimSpace(scope); scope != "" {
			list = append(list, scope)
		}
	}
	token, err := auth.Issue(cfg.Auth.HMACSecret, cfg.Auth.Issuer, cfg.Auth.Audience, *subject, list, *ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func openApp(configPath string) (*ledgerd.App, error) {
	cfg, err := ledgerd.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	tables, err := loadTables(cfg.RatesPath)
	if err != nil {
		return nil, err
	}
	db, err := sqlstore.Open(cfg.DatabaseDSN, true)
	if err != nil {
		return nil, err
	}
	if err := sqlstore.AutoMigrate(db); err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return ledgerd.NewApp(cfg, sqlstore.New(db), tables, ledgerd.Options{Logger: logger})
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runBalance(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	configPath := fs.String("config", defaultConfig, "Path to the ledgerd config file")
	user := fs.String("user", "", "User identifier")
	fs.Parse(args)

	app, err := openApp(*configPath)
	if err != nil {
		return err
	}
	stats, err := app.Ledger.Stats(context.Background(), *user)
	if err != nil {
		return err
	}
	return printJSON(out, stats)
}

func runAudit(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	configPath := fs.String("config", defaultConfig, "Path to the ledgerd config file")
	user := fs.String("user", "", "User identifier")
	repair := fs.Bool("repair", false, "Overwrite a drifted projection with the folded balance")
	fs.Parse(args)

	app, err := openApp(*configPath)
	if err != nil {
		return err
	}
	report, err := app.Ledger.Audit(context.Background(), *user, *repair)
	if err != nil {
		return err
	}
	return printJSON(out, report)
}

func runExpire(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("expire", flag.ExitOnError)
	configPath := fs.String("config", defaultConfig, "Path to the ledgerd config file")
	at := fs.String("at", "", "Sweep time in RFC3339; defaults to now")
	fs.Parse(args)

	asOf := time.Now().UTC()
	if *at != "" {
		parsed, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			return fmt.Errorf("parse -at: %w", err)
		}
		asOf = parsed.UTC()
	}
	app, err := openApp(*configPath)
	if err != nil {
		return err
	}
	summary, err := app.Maintenance.Expire(context.Background(), asOf)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "expired users=%d entries=%d total=%d\n", summary.Users, summary.Entries, summary.Total)
	return nil
}

func runExport(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", defaultConfig, "Path to the ledgerd config file")
	from := fs.String("from", "", "First day of the period (YYYY-MM-DD)")
	to := fs.String("to", "", "Day after the period (YYYY-MM-DD)")
	fs.Parse(args)

	start, err := time.Parse(dateLayout, *from)
	if err != nil {
		return fmt.Errorf("parse -from: %w", err)
	}
	end, err := time.Parse(dateLayout, *to)
	if err != nil {
		return fmt.Errorf("parse -to: %w", err)
	}
	if !end.After(start) {
		return errors.New("-to must be after -from")
	}
	app, err := openApp(*configPath)
	if err != nil {
		return err
	}
	result, err := app.Exporter.Export(context.Background(), start, end)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %d files to %s (partners=%d commissions=%d entries=%d)\n",
		len(result.Files), result.Dir, result.Partners, result.Commissions, result.Entries)
	return nil
}
