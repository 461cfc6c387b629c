package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kingrea/auralynx/internal/api"
	"github.com/kingrea/auralynx/internal/auth"
	"github.com/kingrea/auralynx/internal/config"
	"github.com/kingrea/auralynx/internal/export"
	"github.com/kingrea/auralynx/internal/generation"
	"github.com/kingrea/auralynx/internal/logbook"
	"github.com/kingrea/auralynx/internal/logging"
	"github.com/kingrea/auralynx/internal/store"
	"github.com/kingrea/auralynx/internal/tui"
	"github.com/kingrea/auralynx/plugins"
)

// runtime is everything a command needs, built once per invocation.
type runtime struct {
	cfg       *config.Config
	client    *api.Client
	auth      *auth.Manager
	store     *store.Store
	logbook   *logbook.Logbook
	logger    *logging.Logger
	templates *plugins.Catalog
	uploader  *export.S3Uploader

	genOptions []generation.Option
}

// bootstrap loads config, opens storage and restores the auth session.
// Non-fatal problems are reported on warn.
func bootstrap(ctx context.Context, common *commonFlags, warn io.Writer) (*runtime, error) {
	var (
		cfg *config.Config
		err error
	)
	if home := strings.TrimSpace(common.home); home != "" {
		if err := config.InitDir(home); err != nil {
			return nil, fmt.Errorf("init %s: %w", home, err)
		}
		cfg, err = config.NewConfig(home)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if common.apiURL != "" {
		cfg.Settings.API.BaseURL = api.NormalizeBase(common.apiURL)
	}

	rt := &runtime{cfg: cfg}
	rt.logger, err = logging.New(cfg.LogsDir())
	if err != nil {
		return nil, err
	}
	rt.logbook, err = logbook.New(filepath.Join(cfg.LogsDir(), logbook.FileName))
	if err != nil {
		rt.Close()
		return nil, err
	}

	apiCfg := cfg.Settings.API
	rt.client = api.New(api.Config{
		BaseURL:   apiCfg.BaseURL,
		Timeout:   apiCfg.Timeout,
		Retries:   apiCfg.Retries,
		RateLimit: apiCfg.RateLimit,
		Logger:    rt.logger,
		Debug:     common.debug || apiCfg.Debug,
	})

	rt.store, err = store.Open(ctx, cfg.DatabasePath(), common.debug)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.auth, err = auth.NewManager(rt.client, rt.store.Tokens())
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.client.SetTokenSource(rt.auth)
	if err := rt.auth.Restore(ctx); err != nil {
		if errors.Is(err, auth.ErrSessionInvalid) {
			fmt.Fprintln(warn, "Your saved session has expired; sign in again to save songs.")
		}
		rt.logbook.Warn("Session restore: %v", err)
	}

	rt.templates, err = plugins.LoadTemplates(cfg.TemplatesDir())
	if err != nil {
		fmt.Fprintf(warn, "Ignoring lyric templates: %v\n", err)
		rt.logbook.Warn("Template plugins: %v", err)
		rt.templates = nil
	}

	s3cfg := cfg.Settings.Export.S3
	exportCfg := export.S3Config{
		Bucket:   s3cfg.Bucket,
		Region:   s3cfg.Region,
		Key:      s3cfg.Key,
		Secret:   s3cfg.Secret,
		Endpoint: s3cfg.Endpoint,
		Prefix:   s3cfg.Prefix,
	}
	if exportCfg.Enabled() {
		rt.uploader, err = export.NewS3Uploader(ctx, exportCfg)
		if err != nil {
			fmt.Fprintf(warn, "S3 export disabled: %v\n", err)
			rt.logbook.Warn("S3 export disabled: %v", err)
		}
	}
	return rt, nil
}

func (rt *runtime) deps() tui.Deps {
	return tui.Deps{
		Config:    rt.cfg,
		Client:    rt.client,
		Auth:      rt.auth,
		Store:     rt.store,
		Logbook:   rt.logbook,
		Templates: rt.templates,
		Uploader:  rt.uploader,
	}
}

// Close releases the database and log file.
func (rt *runtime) Close() {
	if rt.store != nil {
		_ = rt.store.Close()
	}
	_ = rt.logger.Close()
}
