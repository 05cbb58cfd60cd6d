package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/chain/txvm/errors"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Kleo-p/algo-wear/account"
	"github.com/Kleo-p/algo-wear/ledger"
)

// Config is read from the environment first. Flags override it.
type Config struct {
	Addr          string        `env:"WEAR_ADDR" envDefault:"localhost:2423"`
	DB            string        `env:"WEAR_DB" envDefault:"wear.db"`
	RoundInterval time.Duration `env:"WEAR_ROUND_INTERVAL" envDefault:"5s"`
	LogLevel      string        `env:"WEAR_LOG_LEVEL" envDefault:"info"`
	FundLimit     uint64        `env:"WEAR_FUND_LIMIT" envDefault:"1000000"`
}

func main() {
	err := rootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "parsing environment: %s\n", err)
		os.Exit(1)
	}

	cmd := &cobra.Command{
		Use:          "weard",
		Short:        "Run a sandbox ledger hosting wear listings",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&cfg.Addr, "addr", cfg.Addr, "server listen address")
	flags.StringVar(&cfg.DB, "db", cfg.DB, "path to db")
	flags.DurationVar(&cfg.RoundInterval, "interval", cfg.RoundInterval, "how long a round stays open")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flags.Uint64Var(&cfg.FundLimit, "fund-limit", cfg.FundLimit, "largest single /fund request, 0 disables funding")

	cmd.AddCommand(keygenCmd())
	return cmd
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an account keypair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := account.New()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "address: %s\nseed:    %s\n", kp.Address(), kp.Seed())
			return nil
		},
	}
}

func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	err := lvl.UnmarshalText([]byte(level))
	if err != nil {
		return nil, errors.Wrapf(err, "parsing log level %q", level)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func serve(ctx context.Context, cfg Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := sql.Open("sqlite3", cfg.DB)
	if err != nil {
		return errors.Wrap(err, "opening db")
	}
	defer db.Close()

	l, err := ledger.New(ctx, db, ledger.WithLogger(log), ledger.WithRoundInterval(cfg.RoundInterval))
	if err != nil {
		return errors.Wrap(err, "opening ledger")
	}
	go l.RunIndexer(ctx)

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", cfg.Addr)
	}

	s := &ledger.Server{L: l, Log: log, FundLimit: cfg.FundLimit}
	srv := &http.Server{Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("listening", zap.Stringer("addr", listener.Addr()), zap.Uint64("round", l.Height()), zap.String("db", cfg.DB))
	err = srv.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
