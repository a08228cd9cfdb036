// cmd/web/main.go
//
// mqa – HTTP entry point.
//
// Start-up sequence
// -----------------
//
//  1. Load configuration (conf/.env → conf/mqa.yaml → MQA_ env, with
//     `vault:` references resolved).
//
//  2. Start the daily rotating logger (tees to console when running in a
//     TTY).
//
//  3. Open the tabular store (memory, MySQL, or Google Sheets) and wrap it
//     with Prometheus instrumentation.
//
//  4. Open the attachment drive (none, Google Drive, S3, or local disk).
//
//  5. Build the Q&A service and the pending-action session store, then
//     initialise every registered component.
//
//  6. Router flow:
//
//     • Recoverer, security headers, optional HTTPS redirect
//     • request enrichment        – UA, Geo, request-scoped logger
//     • /healthz, /metrics         – liveness and Prometheus
//     • /files/*                  – only for the local drive
//     • component routes          – pages, forms, and /api/similar
//
//  7. Serve until SIGINT/SIGTERM, then drain for 15 s.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/yanizio/mqa/internal/component"
	"github.com/yanizio/mqa/internal/config"
	"github.com/yanizio/mqa/internal/database"
	"github.com/yanizio/mqa/internal/drive"
	"github.com/yanizio/mqa/internal/form"
	"github.com/yanizio/mqa/internal/locate"
	"github.com/yanizio/mqa/internal/logger"
	"github.com/yanizio/mqa/internal/middleware"
	"github.com/yanizio/mqa/internal/qna"
	"github.com/yanizio/mqa/internal/requestinfo"
	"github.com/yanizio/mqa/internal/server"
	"github.com/yanizio/mqa/internal/session"
	"github.com/yanizio/mqa/internal/sheet"
	"github.com/yanizio/mqa/internal/similarity"

	_ "github.com/yanizio/mqa/components/qna" // Q&A pages
)

const (
	sessionCapacity = 10000
	shutdownGrace   = 15 * time.Second
	filesPrefix     = "/files"
)

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logOut, err := logger.New(cfg.Log.Dir, cfg.Log.Level, runningInTTY())
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}
	defer logOut.Sync()

	if err := run(ctx, cfg); err != nil {
		logOut.Errorw("mqa stopped", "err", err)
		logOut.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logOut := zap.S()

	//
	// ── 1.  Forms and request metadata ─────────────────────────────────
	//
	form.SetTiming(time.Duration(cfg.Form.MinFillSeconds)*time.Second, 30*time.Minute)
	if cfg.Form.CSRFKey != "" {
		form.SetSecret([]byte(cfg.Form.CSRFKey))
	}
	if cfg.Geo.DBPath != "" {
		if err := requestinfo.InitGeo(cfg.Geo.DBPath); err != nil {
			logOut.Warnw("geoip disabled", "path", cfg.Geo.DBPath, "err", err)
		}
	}

	//
	// ── 2.  Store and drive ─────────────────────────────────────────────
	//
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	uploader, files, err := openDrive(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open drive: %w", err)
	}

	//
	// ── 3.  Service, sessions, components ──────────────────────────────
	//
	svc := qna.New(sheet.Instrument(store), uploader, serviceOptions(cfg))
	deps := component.Deps{
		Service:        svc,
		Sessions:       session.NewStore(sessionCapacity, cfg.HTTP.ForceHTTPS),
		MaxUploadBytes: 4 * cfg.Drive.MaxBytes,
	}
	if err := component.InitAll(deps); err != nil {
		return err
	}

	//
	// ── 4.  Router ──────────────────────────────────────────────────────
	//
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.Security)
	if cfg.HTTP.ForceHTTPS {
		r.Use(middleware.ForceHTTPS)
	}
	r.Use(requestinfo.Enrich)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	if files != nil {
		r.Handle(filesPrefix+"/*", http.StripPrefix(filesPrefix+"/", files))
	}
	if err := component.Mount(r); err != nil {
		return err
	}

	logOut.Infow("mqa ready",
		"store", cfg.Store.Backend,
		"drive", cfg.Drive.Backend,
		"locate", cfg.Locate.Strategy,
		"warn_threshold", cfg.Matcher.WarnThreshold,
	)
	return server.Run(ctx, server.New(cfg.HTTP.ListenAddr, r), shutdownGrace)
}

// serviceOptions maps configuration onto qna.Options.
func serviceOptions(cfg *config.Config) qna.Options {
	opts := qna.DefaultOptions()
	opts.Policy = similarity.Policy{
		ExactThreshold: cfg.Matcher.ExactThreshold,
		WarnThreshold:  cfg.Matcher.WarnThreshold,
		Limit:          cfg.Matcher.Limit,
		FoldCase:       cfg.Matcher.FoldCase,
	}
	opts.SuggestThreshold = cfg.Matcher.SuggestThreshold
	opts.AnswerRequired = cfg.Form.AnswerRequired
	opts.Strategy = locate.Strategy(cfg.Locate.Strategy)
	opts.MaxUploadBytes = cfg.Drive.MaxBytes
	return opts
}

// openStore builds the configured sheet backend.  The returned func
// releases it.
func openStore(ctx context.Context, cfg *config.Config) (sheet.Store, func(), error) {
	noop := func() {}
	c := cfg.Store

	switch c.Backend {
	case "memory":
		return sheet.NewMemory(), noop, nil

	case "mysql":
		db, err := database.Open(ctx, c.DSN)
		if err != nil {
			return nil, noop, err
		}
		st := sheet.NewSQL(db, c.SheetName)
		if err := st.Migrate(ctx); err != nil {
			db.Close()
			return nil, noop, err
		}
		return st, func() { db.Close() }, nil

	case "gsheets":
		st, err := sheet.NewGoogle(ctx, c.SpreadsheetID, c.SheetName, googleCreds(underRoot(cfg, c.CredentialsFile), c.CredentialsJSON)...)
		if err != nil {
			return nil, noop, err
		}
		return st, noop, nil
	}
	return nil, noop, fmt.Errorf("unknown store backend %q", c.Backend)
}

// openDrive builds the configured uploader.  files is non-nil only for
// the local backend, which is served under /files.
func openDrive(ctx context.Context, cfg *config.Config) (drive.Uploader, http.Handler, error) {
	c := cfg.Drive

	switch c.Backend {
	case "none":
		return nil, nil, nil

	case "gdrive":
		g, err := drive.NewGoogle(ctx, c.FolderID, googleCreds(underRoot(cfg, cfg.Store.CredentialsFile), cfg.Store.CredentialsJSON)...)
		if err != nil {
			return nil, nil, err
		}
		return g, nil, nil

	case "s3":
		s, err := drive.NewS3(ctx, drive.S3Options{
			Bucket:        c.Bucket,
			Region:        c.Region,
			Endpoint:      c.Endpoint,
			AccessKeyID:   c.AccessKeyID,
			SecretKey:     c.SecretKey,
			UsePathStyle:  c.UsePathStyle,
			PublicBaseURL: c.PublicBaseURL,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil

	case "local":
		l, err := drive.NewLocal(underRoot(cfg, c.LocalPath), filesPrefix)
		if err != nil {
			return nil, nil, err
		}
		return l, l.Handler(), nil
	}
	return nil, nil, errors.New("unknown drive backend " + c.Backend)
}

// underRoot anchors a relative config path at the repo root.
func underRoot(cfg *config.Config, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cfg.Paths.Root, p)
}

// googleCreds prefers an inline credential over a file path.
func googleCreds(file, inline string) []option.ClientOption {
	switch {
	case inline != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(inline))}
	case file != "":
		return []option.ClientOption{option.WithCredentialsFile(file)}
	}
	return nil
}
