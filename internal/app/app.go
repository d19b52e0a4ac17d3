// Package app собирает зависимости витрины и запускает HTTP API с фоновыми обработчиками.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// NewLogger настраивает logrus по конфигурации.
func NewLogger(cfg LogConfig) *log.Entry {
	logger := log.New()
	logger.SetOutput(os.Stdout)

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return logger.WithField("service", "storefront")
}

// Run собирает приложение и работает до отмены ctx или первой ошибки компонента.
func Run(ctx context.Context, cfg Config) error {
	logger := NewLogger(cfg.Log)
	build := version.Current()
	logger.WithFields(log.Fields{
		"version":    build.Version,
		"commit":     build.Commit,
		"go_version": build.GoVersion,
		"env":        cfg.Env,
	}).Info("starting storefront")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.WithError(err).Warn("failed to close dependencies")
		}
	}()

	return deps.Run(ctx)
}

// Run запускает HTTP-сервер и фоновые компоненты. Ошибка одного останавливает остальные.
func (d *Dependencies) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := d.Server.Run(gctx); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	for _, r := range d.runners {
		g.Go(func() error {
			d.Logger.WithField("runner", r.Name).Debug("runner started")
			if err := r.Run(gctx); err != nil {
				return fmt.Errorf("%s: %w", r.Name, err)
			}
			return nil
		})
	}

	err := g.Wait()
	d.Logger.Info("storefront stopped")
	return err
}
