package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"gopkg.in/urfave/cli.v1"

	"github.com/hotchain/hotledger/internal/accounts"
	"github.com/hotchain/hotledger/internal/auth"
	"github.com/hotchain/hotledger/internal/config"
	"github.com/hotchain/hotledger/internal/infra"
	"github.com/hotchain/hotledger/internal/logging"
	"github.com/hotchain/hotledger/internal/server"
)

var (
	logFormatFlag = cli.StringFlag{
		Name:  "log.format",
		Usage: "Log output format (text|json)",
		Value: "text",
	}
	logLevelFlag = cli.StringFlag{
		Name:  "log.level",
		Usage: "Log level (debug|info|warn|error)",
		Value: "info",
	}
	signerFlag = cli.StringFlag{
		Name:  "signer",
		Usage: "Account the action is signed by",
	}
	secretFlag = cli.StringFlag{
		Name:   "secret",
		Usage:  "Secret of the account to create",
		EnvVar: "HOTCTL_ACCOUNT_SECRET",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "hotctl"
	app.Usage = "operate the hotledger token contract"
	app.Flags = []cli.Flag{logFormatFlag, logLevelFlag}
	app.Commands = []cli.Command{
		{
			Name:   "migrate",
			Usage:  "Apply the ledger schema to DATABASE_URL",
			Action: migrateCommand,
		},
		{
			Name:   "settle",
			Usage:  "Drive the clearing bonus round until it closes or the step budget runs out",
			Action: settleCommand,
		},
		{
			Name:   "drain",
			Usage:  "Run every queued deferred action",
			Action: drainCommand,
		},
		{
			Name:   "queue",
			Usage:  "Print the number of queued deferred actions",
			Action: queueCommand,
		},
		{
			Name:      "account",
			Usage:     "Create an account, reserved contract and stake accounts included",
			ArgsUsage: "<name>",
			Flags:     []cli.Flag{secretFlag},
			Action:    accountCommand,
		},
		{
			Name:   "round",
			Usage:  "Print the bonus round registry",
			Action: roundCommand,
		},
		{
			Name:      "balance",
			Usage:     "Print the balance of an account",
			ArgsUsage: "<owner> <code>",
			Action:    balanceCommand,
		},
		{
			Name:      "action",
			Usage:     "Run a contract action as an operator",
			ArgsUsage: "<name> <json-args>",
			Flags:     []cli.Flag{signerFlag},
			Action:    actionCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type env struct {
	logger *slog.Logger
	comps  *server.Components
	db     *pgxpool.Pool
	cache  *redis.Client
}

func (e *env) Close() {
	if e.cache != nil {
		_ = e.cache.Close()
	}
	if e.db != nil {
		e.db.Close()
	}
}

func open(ctx *cli.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	e := &env{logger: logging.New(ctx.GlobalString(logLevelFlag.Name), ctx.GlobalString(logFormatFlag.Name))}
	bg := context.Background()
	if cfg.DatabaseURL != "" {
		if e.db, err = infra.NewPostgresPool(bg, cfg.DatabaseURL); err != nil {
			return nil, err
		}
	}
	if cfg.RedisURL != "" {
		if e.cache, err = infra.NewRedisClient(bg, cfg.RedisURL); err != nil {
			e.Close()
			return nil, err
		}
	}
	if e.comps, err = server.Assemble(bg, cfg, e.db, e.cache, e.logger); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func migrateCommand(ctx *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db, err := infra.NewPostgresPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return infra.Migrate(context.Background(), db)
}

func settleCommand(ctx *cli.Context) error {
	e, err := open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	report, err := e.comps.Settler.Settle(context.Background())
	printJSON(report)
	return err
}

func drainCommand(ctx *cli.Context) error {
	e, err := open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	report, err := e.comps.Runner.Drain(context.Background())
	printJSON(report)
	return err
}

func queueCommand(ctx *cli.Context) error {
	e, err := open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	depth, err := e.comps.Queue.Len(context.Background())
	if err != nil {
		return err
	}
	fmt.Println(depth)
	return nil
}

func accountCommand(ctx *cli.Context) error {
	secret := ctx.String(secretFlag.Name)
	if ctx.NArg() != 1 || secret == "" {
		return cli.NewExitError("usage: hotctl account --secret <secret> <name>", 2)
	}
	e, err := open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	account, err := e.comps.Accounts.Provision(context.Background(), accounts.Credentials{Name: ctx.Args().Get(0), Secret: secret})
	if err != nil {
		return err
	}
	fmt.Printf("created %s\n", account.Name)
	return nil
}

func roundCommand(ctx *cli.Context) error {
	e, err := open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	r, err := e.comps.Contract.Round(context.Background())
	if err != nil {
		return err
	}
	printJSON(r)
	return nil
}

func balanceCommand(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return cli.NewExitError("usage: hotctl balance <owner> <code>", 2)
	}
	e, err := open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	bal, err := e.comps.Contract.BalanceOf(context.Background(), ctx.Args().Get(0), ctx.Args().Get(1))
	if err != nil {
		return err
	}
	fmt.Println(bal.String())
	return nil
}

func actionCommand(ctx *cli.Context) error {
	signer := ctx.String(signerFlag.Name)
	if ctx.NArg() != 2 || signer == "" {
		return cli.NewExitError("usage: hotctl action --signer <account> <name> <json-args>", 2)
	}
	e, err := open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	signed := auth.WithSigners(context.Background(), signer)
	out, err := e.comps.Contract.Dispatch(signed, ctx.Args().Get(0), json.RawMessage(ctx.Args().Get(1)))
	if err != nil {
		return err
	}
	if out != nil {
		printJSON(out)
	}
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
