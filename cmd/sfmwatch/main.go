package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/milk9111/sfmmaps/catalog"
	"github.com/milk9111/sfmmaps/config"
	"github.com/milk9111/sfmmaps/levels"
	"github.com/milk9111/sfmmaps/prefabs"
	"github.com/milk9111/sfmmaps/snapshot"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func init() {
	f := &log.TextFormatter{
		FullTimestamp: true,
	}
	log.SetFormatter(f)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := run(ctx, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string) error {
	var (
		configPath string
		dbPath     string
		debounce   time.Duration
		verbose    bool
	)
	flagSet := pflag.NewFlagSet("sfmwatch", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "YAML config file (default $SFMMAPS_CONFIG)")
	flagSet.StringVar(&dbPath, "db", "", "re-index changed levels into this catalog")
	flagSet.DurationVar(&debounce, "debounce", 0, "collapse repeated events for one file (default from config)")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log spec and script changes too")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sfmwatch [flags] [DIR...]\n\nWatches level directories and reports every change.\n\n")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if verbose {
		log.SetLevel(log.DebugLevel)
	}
	if !flagSet.Changed("debounce") {
		debounce = cfg.Watch.Debounce
	}
	dirs := flagSet.Args()
	if len(dirs) == 0 {
		dirs = cfg.Watch.Dirs
	}

	var cat *catalog.Catalog
	if dbPath != "" {
		if cat, err = catalog.Open(ctx, dbPath); err != nil {
			return err
		}
		defer cat.Close()
	}

	w, err := prefabs.NewWatcherDebounce(debounce, dirs...)
	if err != nil {
		return fmt.Errorf("watch %v: %w", dirs, err)
	}
	defer w.Close()
	log.WithFields(log.Fields{"dirs": dirs, "debounce": debounce}).Info("watching")

	h := &handler{cat: cat}
	for {
		select {
		case <-ctx.Done():
			log.Info("stopping")
			return nil
		case path, ok := <-w.Events:
			if !ok {
				return nil
			}
			h.handle(ctx, path)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("watch error")
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

type handler struct {
	cat *catalog.Catalog
}

// handle reports one changed file. Errors are logged rather than returned
// so a broken save never stops the watcher.
func (h *handler) handle(ctx context.Context, path string) {
	entry := log.WithField("file", path)
	if !prefabs.IsLevelFile(path) {
		entry.Debug("changed")
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			entry.Info("removed")
			if h.cat != nil {
				if err := h.cat.Remove(ctx, indexName(path)); err != nil {
					entry.WithError(err).Error("catalog remove failed")
				}
			}
			return
		}
		entry.WithError(err).Error("read failed")
		return
	}

	lvl, err := levels.Decode(string(data))
	if err != nil {
		entry.WithError(err).Error("decode failed")
		return
	}
	fp, err := snapshot.Fingerprint(lvl)
	if err != nil {
		entry.WithError(err).Error("fingerprint failed")
		return
	}
	entry = entry.WithFields(log.Fields{
		"name":        lvl.Head.Name,
		"maps":        len(lvl.Maps),
		"objects":     lvl.CountObjects(),
		"fingerprint": fp.String()[:16],
	})

	if h.cat != nil {
		changed, err := h.cat.Index(ctx, indexName(path), lvl)
		if err != nil {
			entry.WithError(err).Error("index failed")
			return
		}
		entry = entry.WithField("reindexed", changed)
	}
	entry.Info("level changed")
}

func indexName(path string) string {
	return filepath.ToSlash(filepath.Clean(path))
}
