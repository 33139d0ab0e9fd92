// bank 是银行账户示例的命令行入口：执行命令、查看视图与事件历史、重建视图
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"
	_ "modernc.org/sqlite"

	"gocqrs/errors"
	"gocqrs/eventing"
	"gocqrs/examples/bank"
	"gocqrs/logging"
)

type rootOptions struct {
	configPath string
	dsn        string
	logLevel   string
	natsURL    string
	redisAddr  string
	retries    int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, closeApp := newRootCommand(os.Stdout)
	err := root.ExecuteContext(ctx)
	if closeErr := closeApp(); err == nil {
		err = closeErr
	}
	if err != nil {
		if payload := errors.UserPayload(err); payload != nil {
			fmt.Fprintln(os.Stderr, "rejected:", payload.Message)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newRootCommand 返回根命令与释放连接的函数；后者在任何情况下都应调用
func newRootCommand(out io.Writer) (*cobra.Command, func() error) {
	opts := &rootOptions{}
	var app *App

	root := &cobra.Command{
		Use:           "bank",
		Short:         "Event-sourced bank account demo",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd.Flags(), opts)
			if err != nil {
				return err
			}
			logger := logging.NewZerologLogger(nil, logging.ParseLevel(cfg.LogLevel))
			logging.SetLogger(logger)
			app, err = NewApp(cmd.Context(), cfg, logger)
			return err
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "bank.toml", "path to TOML config file")
	pf.StringVar(&opts.dsn, "dsn", "", "database DSN (overrides config)")
	pf.StringVar(&opts.logLevel, "log-level", "", "debug|info|warn|error")
	pf.StringVar(&opts.natsURL, "nats-url", "", "publish committed events to NATS JetStream")
	pf.StringVar(&opts.redisAddr, "redis-addr", "", "publish committed events to Redis Streams")
	pf.IntVar(&opts.retries, "retries", 0, "attempts on concurrency conflicts")

	appFn := func() *App { return app }
	root.AddCommand(
		commandCmd("open <account-id>", "Open an account", 1, appFn, out, func(args []string) (bank.Command, error) {
			return bank.OpenAccount{AccountID: args[0]}, nil
		}),
		commandCmd("deposit <account-id> <amount>", "Deposit money", 2, appFn, out, func(args []string) (bank.Command, error) {
			amount, err := parseAmount(args[1])
			return bank.DepositMoney{Amount: amount}, err
		}),
		withdrawCmd(appFn, out),
		commandCmd("write-check <account-id> <check-number> <amount>", "Write a check", 3, appFn, out, func(args []string) (bank.Command, error) {
			amount, err := parseAmount(args[2])
			return bank.WriteCheck{CheckNumber: args[1], Amount: amount}, err
		}),
		showCmd(appFn, out),
		historyCmd(appFn, out),
		rebuildCmd(appFn, out),
	)
	closeApp := func() error {
		if app == nil {
			return nil
		}
		err := app.Close()
		app = nil
		return err
	}
	return root, closeApp
}

// resolveConfig 配置文件与环境变量之上叠加显式设置的 flag
func resolveConfig(flags *pflag.FlagSet, opts *rootOptions) (Config, error) {
	cfg, err := LoadConfig(opts.configPath, nil)
	if err != nil {
		return cfg, err
	}
	changed := map[string]bool{}
	flags.Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if changed["dsn"] {
		cfg.Database.Database = opts.dsn
	}
	if changed["log-level"] {
		cfg.LogLevel = opts.logLevel
	}
	if changed["nats-url"] {
		cfg.NATS.URL = opts.natsURL
	}
	if changed["redis-addr"] {
		cfg.Redis.Addr = opts.redisAddr
	}
	if changed["retries"] {
		cfg.Retries = opts.retries
	}
	return cfg, cfg.Validate()
}

func commandCmd(use, short string, nargs int, app func() *App, out io.Writer, build func(args []string) (bank.Command, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			command, err := build(args)
			if err != nil {
				return err
			}
			return execute(cmd.Context(), app(), out, args[0], command)
		},
	}
}

func withdrawCmd(app func() *App, out io.Writer) *cobra.Command {
	var atmID string
	cmd := commandCmd("withdraw <account-id> <amount>", "Withdraw cash at an ATM", 2, app, out, func(args []string) (bank.Command, error) {
		amount, err := parseAmount(args[1])
		return bank.WithdrawMoney{Amount: amount, AtmID: atmID}, err
	})
	cmd.Flags().StringVar(&atmID, "atm", "ATM-0001", "ATM identifier")
	return cmd
}

func showCmd(app func() *App, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "show <account-id>",
		Short: "Print the account view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, found, err := app().Account(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("account %s not found", args[0])
			}
			return printJSON(out, view)
		},
	}
}

func historyCmd(app func() *App, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "history <account-id>",
		Short: "Print every committed event of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := app().History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, e := range events {
				payload, err := json.Marshal(e.Payload)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d\t%s@%s\t%s\n", e.Sequence, e.EventType(), e.EventVersion(), payload)
			}
			return nil
		},
	}
}

func rebuildCmd(app func() *App, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild every account view from the event log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := app().Rebuild(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "rebuilt %d accounts\n", n)
			return nil
		},
	}
}

func execute(ctx context.Context, app *App, out io.Writer, accountID string, command bank.Command) error {
	correlationID := uuid.NewString()
	md := eventing.NewMetadata(
		"correlation_id", correlationID,
		"source", "cli",
	)
	if err := app.Execute(ctx, accountID, command, md); err != nil {
		return err
	}
	fmt.Fprintf(out, "ok %s\n", correlationID)
	return nil
}

func parseAmount(s string) (float64, error) {
	amount, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return amount, nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
