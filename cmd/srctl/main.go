// Command srctl calculates, inspects and monitors stored S/R levels.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"LevelSentinel/internal/api"
	"LevelSentinel/internal/app"
	"LevelSentinel/internal/config"
	"LevelSentinel/internal/logger"
	"LevelSentinel/internal/model"
	"LevelSentinel/internal/notifier"

	"github.com/dustin/go-humanize"
)

const usage = `usage: srctl <command> [flags]

commands:
  calc     calculate and store levels for symbols x timeframes
  view     print the latest valid levels
  monitor  report store health
  token    print a batch trigger token for the HTTP API
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "srctl:", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("unknown command")

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errUsage
	}
	cmd, args := args[0], args[1:]

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(out)
	cfgPath := fs.String("config", envOr("CONFIG_PATH", "configs/config.yaml"), "config file")
	symbols := fs.String("symbols", "", "comma separated symbols, default from config")
	timeframes := fs.String("timeframes", "", "comma separated timeframes, default from config")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime (token)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *symbols != "" {
		cfg.Symbols = strings.Split(*symbols, ",")
	}
	if *timeframes != "" {
		cfg.Timeframes = strings.Split(*timeframes, ",")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := logger.Init(cfg.LogLevel, cfg.Env); err != nil {
		return err
	}
	defer logger.Sync()

	if cmd == "token" {
		if cfg.API.JWTSecret == "" {
			return errors.New("api.jwt_secret is not configured")
		}
		token, err := api.SignTriggerToken(cfg.API.JWTSecret, *ttl, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(out, token)
		return nil
	}

	rt, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	syms, _ := cfg.ParsedSymbols()
	tfs, _ := cfg.ParsedTimeframes()

	switch cmd {
	case "calc":
		return calc(ctx, rt, syms, tfs, out)
	case "view":
		return view(ctx, rt, syms, tfs, out)
	case "monitor":
		return monitor(ctx, rt, syms, tfs, out)
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("%w %q", errUsage, cmd)
	}
}

func calc(ctx context.Context, rt *app.Runtime, syms []model.Symbol, tfs []model.Timeframe, out io.Writer) error {
	summary, err := rt.Service.CalculateBatch(ctx, syms, tfs)
	if err != nil {
		return err
	}
	for _, job := range summary.Successes {
		r, err := rt.Service.LatestOne(ctx, job.Symbol, job.Timeframe)
		if err != nil {
			return err
		}
		if r != nil {
			fmt.Fprintf(out, "%s\n\n", notifier.FormatResult(r))
		}
	}
	fmt.Fprintf(out, "run %s: %d/%d ok in %s\n", summary.RunID, len(summary.Successes), summary.Total(),
		summary.Duration.Round(time.Millisecond))
	for _, f := range summary.Failures {
		fmt.Fprintf(out, "  FAILED %s %s [%s] %s\n", f.Symbol, f.Timeframe, f.Kind, f.Message)
	}
	if !summary.OK() {
		return fmt.Errorf("%d of %d jobs failed", len(summary.Failures), summary.Total())
	}
	return nil
}

func view(ctx context.Context, rt *app.Runtime, syms []model.Symbol, tfs []model.Timeframe, out io.Writer) error {
	for _, sym := range syms {
		results, err := rt.Service.Latest(ctx, sym, tfs)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Fprintf(out, "%s: no valid levels\n\n", sym)
			continue
		}
		for _, r := range results {
			fmt.Fprintf(out, "%s\n\n", notifier.FormatResult(r))
		}
	}
	return nil
}

func monitor(ctx context.Context, rt *app.Runtime, syms []model.Symbol, tfs []model.Timeframe, out io.Writer) error {
	st, err := rt.Service.Stats(ctx)
	if err != nil {
		return err
	}
	now := rt.Service.Now()

	fmt.Fprintf(out, "records: %s (valid %d, expired %d)\n", humanize.Comma(int64(st.Total)), st.Valid, st.Expired())
	if st.Total > 0 {
		fmt.Fprintf(out, "oldest:  %s\n", humanize.RelTime(st.Oldest, now, "ago", "from now"))
		fmt.Fprintf(out, "newest:  %s\n", humanize.RelTime(st.Newest, now, "ago", "from now"))
	}

	latest := make(map[model.Job]*model.SRResult, len(st.Latest))
	for _, r := range st.Latest {
		latest[model.Job{Symbol: r.Symbol, Timeframe: r.Timeframe}] = r
	}
	stale := 0
	for _, sym := range syms {
		for _, tf := range tfs {
			r, ok := latest[model.Job{Symbol: sym, Timeframe: tf}]
			switch {
			case !ok:
				stale++
				fmt.Fprintf(out, "  %-5s %-4s missing\n", sym, tf)
			case !r.ValidAt(now):
				stale++
				fmt.Fprintf(out, "  %-5s %-4s expired %s\n", sym, tf, humanize.RelTime(r.ValidUntil, now, "ago", "from now"))
			default:
				fmt.Fprintf(out, "  %-5s %-4s ok, calculated %s\n", sym, tf, humanize.RelTime(r.CalculatedAt, now, "ago", "from now"))
			}
		}
	}
	if stale > 0 {
		return fmt.Errorf("%d pairs without valid levels", stale)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
