package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dmitrymomot/twofactor/pkg/qrcode"
	"github.com/dmitrymomot/twofactor/pkg/twofactor"
)

var errUsage = errors.New("invalid arguments")

type cli struct {
	svc    *twofactor.Service
	out    io.Writer
	log    *slog.Logger
	qrPath string
	meta   twofactor.AttemptMeta
	checks map[string]func(context.Context) error
}

func (c *cli) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "migrate":
		return c.print(map[string]string{"status": "migrated"})
	case "provision":
		return c.provision(ctx, args)
	case "confirm":
		return c.withUserAndCode(args, func(userID, code string) error {
			res, err := c.svc.ConfirmEnable(ctx, userID, code, c.meta)
			if err != nil {
				return err
			}
			return c.print(res)
		})
	case "verify":
		return c.withUserAndCode(args, func(userID, code string) error {
			res, err := c.svc.Verify(ctx, userID, code, c.meta)
			if err != nil {
				return err
			}
			return c.print(res)
		})
	case "status":
		return c.withUser(args, func(userID string) error {
			st, err := c.svc.Status(ctx, userID)
			if err != nil {
				return err
			}
			return c.print(st)
		})
	case "regenerate":
		return c.withUserAndCode(args, func(userID, code string) error {
			if _, err := c.svc.Verify(ctx, userID, code, c.meta); err != nil {
				return err
			}
			codes, err := c.svc.RegenerateBackupCodes(ctx, userID)
			if err != nil {
				return err
			}
			return c.print(map[string][]string{"backup_codes": codes})
		})
	case "disable":
		return c.withUserAndCode(args, func(userID, code string) error {
			if err := c.svc.Disable(ctx, userID, code, c.meta); err != nil {
				return err
			}
			return c.print(map[string]string{"status": "disabled"})
		})
	case "purge":
		return c.withUser(args, func(userID string) error {
			n, err := c.svc.PurgeUsedBackupCodes(ctx, userID)
			if err != nil {
				return err
			}
			return c.print(map[string]int64{"deleted": n})
		})
	case "attempts":
		return c.withUser(args, func(userID string) error {
			var out []*twofactor.AttemptStatus
			for _, m := range []twofactor.Method{twofactor.MethodTOTP, twofactor.MethodBackupCode} {
				st, err := c.svc.AttemptStatus(ctx, userID, m)
				if err != nil {
					return err
				}
				out = append(out, st)
			}
			return c.print(out)
		})
	case "cleanup":
		n, err := c.svc.CleanupAttempts(ctx)
		if err != nil {
			return err
		}
		return c.print(map[string]int64{"deleted": n})
	case "health":
		return c.health(ctx)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func (c *cli) provision(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: provision <user-id> <label>", errUsage)
	}

	p, err := c.svc.Provision(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	if c.qrPath != "" {
		png, err := qrcode.Generate(p.URI, qrcode.DefaultSize)
		if err != nil {
			return err
		}
		if err := os.WriteFile(c.qrPath, png, 0o600); err != nil {
			return fmt.Errorf("write qr code: %w", err)
		}
	}
	return c.print(p)
}

// code prints the current TOTP code. It reads the validator defaults from the
// environment without touching any store.
func (c *cli) code(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: code <secret>", errUsage)
	}

	cfg, err := twofactor.LoadConfig()
	if err != nil {
		return err
	}
	code, err := cfg.TOTP.Validator().Generate(args[0], time.Now())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, code)
	return err
}

func (c *cli) health(ctx context.Context) error {
	report := make(map[string]string, len(c.checks))
	var errs []error
	for name, check := range c.checks {
		if err := check(ctx); err != nil {
			report[name] = err.Error()
			errs = append(errs, err)
			continue
		}
		report[name] = "ok"
	}
	if err := c.print(report); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func (c *cli) withUser(args []string, fn func(userID string) error) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: expected <user-id>", errUsage)
	}
	return fn(args[0])
}

func (c *cli) withUserAndCode(args []string, fn func(userID, code string) error) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: expected <user-id> <code>", errUsage)
	}
	return fn(args[0], args[1])
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
