// cmd/preflight/main.go
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hamed0406/livemonitor/internal/config"
)

func main() {
	failed := false
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg := config.FromEnv()
	ok("APP_MODE=" + cfg.Mode)

	if len(cfg.AdminAPIKeys) == 0 {
		if cfg.Production() {
			fail("ADMIN_API_KEYS is empty (write routes would be open).")
		} else {
			warn("ADMIN_API_KEYS is empty; write routes are open.")
		}
	}
	if len(cfg.PublicAPIKeys) == 0 {
		warn("PUBLIC_API_KEYS is empty; read routes accept admin keys only or are open.")
	}
	for _, name := range []string{"ADMIN_API_KEYS", "PUBLIC_API_KEYS"} {
		if strings.Contains(os.Getenv(name), " ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}

	ok("API_ADDR=" + cfg.Addr)

	switch {
	case cfg.DatabaseURL != "":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		conn, err := pgx.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			fail("DATABASE_URL unreachable: " + err.Error())
		} else {
			if err := conn.Ping(ctx); err != nil {
				fail("DATABASE_URL ping failed: " + err.Error())
			} else {
				ok("DATABASE_URL reachable")
			}
			_ = conn.Close(ctx)
		}
		cancel()
	case cfg.SQLitePath != "":
		ok("SQLITE_PATH=" + cfg.SQLitePath)
	default:
		warn("no DATABASE_URL or SQLITE_PATH; services live in memory and vanish on restart.")
	}

	if cfg.SeedFile != "" {
		if s, err := config.LoadSeed(cfg.SeedFile); err != nil {
			fail("SEED_FILE: " + err.Error())
		} else {
			ok(fmt.Sprintf("SEED_FILE has %d services", len(s.Services)))
		}
	}

	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; CORS allows any origin and /ws only accepts same-origin browsers.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	if cfg.SlackWebhookURL != "" {
		if u, err := url.Parse(cfg.SlackWebhookURL); err != nil || u.Scheme != "https" {
			fail("SLACK_WEBHOOK_URL must be an https URL.")
		} else {
			ok("SLACK_WEBHOOK_URL present")
		}
	} else {
		warn("SLACK_WEBHOOK_URL empty; DOWN alerts are only logged.")
	}

	if failed {
		os.Exit(1)
	}
	ok("preflight passed")
}
