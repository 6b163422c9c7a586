package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"pdvledger/backend/internal/bootstrap"
	"pdvledger/backend/internal/config"
	"pdvledger/backend/internal/domain"
	"pdvledger/backend/internal/httpapi"
	"pdvledger/backend/internal/logger"
	"pdvledger/backend/internal/service"
)

var errMissingSecret = errors.New("AUTH_SECRET is not set")

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ledgerctl",
		Usage: "operate the sales ledger store",
		Before: func(c *cli.Context) error {
			_ = godotenv.Load()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "create the database and apply the schema",
				Action: runInit,
			},
			{
				Name:  "summary",
				Usage: "print the sales summary for an inclusive date interval",
				Flags: intervalFlags(),
				Action: func(c *cli.Context) error {
					return withService(c, func(ctx context.Context, svc *service.Service) error {
						summary, err := svc.SummaryInInterval(ctx, c.String("start"), c.String("end"))
						if err != nil {
							return err
						}
						return printJSON(c, summary)
					})
				},
			},
			{
				Name:   "export",
				Usage:  "write the interval report as an XLSX workbook",
				Flags:  append(intervalFlags(), &cli.StringFlag{Name: "dir", Value: ".", Usage: "output directory"}),
				Action: runExport,
			},
			{
				Name:  "resumes",
				Usage: "print today's per-method resumes",
				Action: func(c *cli.Context) error {
					return withService(c, func(ctx context.Context, svc *service.Service) error {
						resumes, err := svc.TodayResumes(ctx)
						if err != nil {
							return err
						}
						return printJSON(c, resumes)
					})
				},
			},
			{
				Name:  "purge-resumes",
				Usage: "delete resumes created more than --days days ago",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "days", Required: true},
				},
				Action: func(c *cli.Context) error {
					return withService(c, func(ctx context.Context, svc *service.Service) error {
						resp, err := svc.PurgeResumes(ctx, c.Int("days"))
						if err != nil {
							return err
						}
						return printJSON(c, resp)
					})
				},
			},
			{
				Name:  "token",
				Usage: "issue a bearer token signed with AUTH_SECRET",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Required: true},
					&cli.StringFlag{Name: "role", Value: httpapi.RoleOperator, Usage: "operator, manager or admin"},
				},
				Action: runToken,
			},
		},
	}
}

func intervalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "start", Required: true, Usage: "first day, YYYY-MM-DD"},
		&cli.StringFlag{Name: "end", Required: true, Usage: "last day, YYYY-MM-DD"},
	}
}

func withService(c *cli.Context, fn func(ctx context.Context, svc *service.Service) error) error {
	cfg := config.Load()
	log := logger.NewNop()
	ctx := c.Context

	repo, err := bootstrap.OpenRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer repo.Close()
	summaryCache, closeCache := bootstrap.OpenSummaryCache(ctx, cfg, log)
	defer closeCache()

	svc := service.New(repo,
		service.WithSummaryCache(summaryCache, cfg.SummaryCacheTTL),
		service.WithLogger(log),
	)
	return fn(service.WithActor(ctx, cliActor()), svc)
}

func runInit(c *cli.Context) error {
	cfg := config.Load()
	repo, err := bootstrap.OpenRepository(c.Context, cfg, logger.NewNop())
	if err != nil {
		return err
	}
	defer repo.Close()
	if err := repo.EnsureSchema(c.Context); err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, "schema ready")
	return err
}

func runExport(c *cli.Context) error {
	return withService(c, func(ctx context.Context, svc *service.Service) error {
		tmp, err := os.CreateTemp(c.String("dir"), ".export-*.xlsx")
		if err != nil {
			return err
		}
		defer os.Remove(tmp.Name())

		name, err := svc.ExportInterval(ctx, tmp, c.String("start"), c.String("end"))
		if closeErr := tmp.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
		target := filepath.Join(c.String("dir"), name)
		if err := os.Rename(tmp.Name(), target); err != nil {
			return err
		}
		_, err = fmt.Fprintln(c.App.Writer, target)
		return err
	})
}

func runToken(c *cli.Context) error {
	cfg := config.Load()
	if cfg.AuthSecret == "" {
		return errMissingSecret
	}
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), "")
	token, expiresAt, err := auth.IssueToken(c.String("user"), c.String("role"))
	if err != nil {
		return err
	}
	return printJSON(c, map[string]string{
		"access_token": token,
		"role":         c.String("role"),
		"expires_at":   expiresAt.Format(time.RFC3339),
	})
}

// cliActor attributes CLI writes in the history trail to the OS user.
func cliActor() domain.Actor {
	name := os.Getenv("USER")
	if name == "" {
		name = "ledgerctl"
	}
	return domain.Actor{Username: name, Role: httpapi.RoleAdmin}
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
