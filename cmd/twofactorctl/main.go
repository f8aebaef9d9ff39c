// Command twofactorctl operates the two-factor tables from a shell: it
// provisions users, checks codes, inspects lockouts and runs maintenance.
//
// Configuration comes from the environment (PG_*, REDIS_*, TWOFA_*) and an
// optional .env file in the working directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrymomot/twofactor/pkg/config"
	"github.com/dmitrymomot/twofactor/pkg/logger"
	"github.com/dmitrymomot/twofactor/pkg/pg"
	"github.com/dmitrymomot/twofactor/pkg/ratelimit"
	"github.com/dmitrymomot/twofactor/pkg/redis"
	"github.com/dmitrymomot/twofactor/pkg/twofactor"
	"github.com/dmitrymomot/twofactor/pkg/twofactor/pgstorage"
)

const usage = `Usage: twofactorctl [flags] <command> [args]

Commands:
  migrate                          apply database migrations
  provision <user-id> <label>      issue a secret and backup codes (-qr writes a PNG)
  confirm <user-id> <code>         enable two-factor with the first code
  verify <user-id> <code>          check a TOTP or backup code
  status <user-id>                 show enablement and backup code counts
  regenerate <user-id> <code>      verify, then replace unused backup codes
  disable <user-id> <code>         verify, then remove the credential
  purge <user-id>                  delete used backup codes
  attempts <user-id>               show attempt counters per method
  cleanup                          delete expired attempt records
  health                           ping Postgres and the attempt store
  code <secret>                    print the current TOTP code for a secret

Flags:
`

func main() {
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}

	var (
		store   = flag.String("store", "postgres", "attempt store: postgres or redis")
		env     = flag.String("env", logger.EnvDevelopment, "environment: development, staging or production")
		qrPath  = flag.String("qr", "", "provision: write the provisioning QR code PNG to this path")
		ip      = flag.String("ip", "", "client IP recorded with counted attempts")
		migrate = flag.Bool("migrate", false, "apply migrations before running the command")
	)
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	log := logger.New(
		logger.WithEnvironment(*env, "twofactorctl"),
		logger.WithOutput(os.Stderr),
	)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli{
		out:    os.Stdout,
		log:    log,
		qrPath: *qrPath,
		meta:   twofactor.AttemptMeta{ClientIP: *ip, UserAgent: "twofactorctl"},
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]

	// code needs no infrastructure.
	if cmd == "code" {
		exit(log, app.code(args))
		return
	}

	cleanup, err := app.setup(ctx, *store, *migrate || cmd == "migrate")
	if err != nil {
		exit(log, err)
	}
	defer cleanup()

	exit(log, app.run(ctx, cmd, args))
}

// setup connects to Postgres and the attempt store and builds the service.
func (c *cli) setup(ctx context.Context, store string, migrate bool) (func(), error) {
	var pgCfg pg.Config
	if err := config.Load(&pgCfg); err != nil {
		return nil, fmt.Errorf("load postgres config: %w", err)
	}

	cfg, err := twofactor.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load two-factor config: %w", err)
	}

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return nil, err
	}
	c.checks = map[string]func(context.Context) error{"postgres": pg.Healthcheck(pool)}
	closers := []func(){pool.Close}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if migrate {
		if err := pgstorage.Migrate(ctx, pool, pgCfg.MigrationsTable, c.log); err != nil {
			cleanup()
			return nil, err
		}
	}

	var attempts ratelimit.Store
	switch store {
	case "postgres":
		attempts = ratelimit.NewPostgresStore(pool, ratelimit.DefaultAttemptsTable)
	case "redis":
		var redisCfg redis.Config
		if err := config.Load(&redisCfg); err != nil {
			cleanup()
			return nil, fmt.Errorf("load redis config: %w", err)
		}
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			cleanup()
			return nil, err
		}
		c.checks["redis"] = redis.Healthcheck(client)
		closers = append(closers, func() {
			if err := client.Close(); err != nil {
				c.log.Error("failed to close redis client", logger.Error(err))
			}
		})
		attempts = ratelimit.NewRedisStore(client)
	default:
		cleanup()
		return nil, fmt.Errorf("unknown attempt store %q", store)
	}

	svc, err := twofactor.NewServiceFromConfig(pgstorage.New(pool), attempts, cfg, twofactor.WithLogger(c.log))
	if err != nil {
		cleanup()
		return nil, err
	}
	c.svc = svc
	return cleanup, nil
}

func exit(log *slog.Logger, err error) {
	if err == nil {
		return
	}

	var rl *twofactor.RateLimitedError
	switch {
	case errors.As(err, &rl):
		log.Warn("rate limited", logger.Method(rl.Method), logger.RetryAfter(rl.RetryAfter))
		os.Exit(3)
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	default:
		log.Error("command failed", logger.Error(err))
		os.Exit(1)
	}
}
