// Command portalconf writes and validates portal configuration files and inspects the cooldowns saved
// next to them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/df-mc/portalguard/portal"
	"github.com/df-mc/portalguard/portal/cooldown"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		path       string
		reset      bool
		cooldowns  bool
		clearSaved bool
		watch      bool
		debugLevel bool
	)
	flagSet := pflag.NewFlagSet("portalconf", pflag.ContinueOnError)
	flagSet.StringVarP(&path, "config", "c", "portals.toml", "path to the portal configuration file")
	flagSet.BoolVar(&reset, "reset", false, "overwrite the configuration file with the defaults")
	flagSet.BoolVar(&cooldowns, "cooldowns", false, "list the cooldowns saved in the storage folder")
	flagSet.BoolVar(&clearSaved, "clear-cooldowns", false, "remove every cooldown saved in the storage folder")
	flagSet.BoolVar(&watch, "watch", false, "validate the configuration again whenever it changes")
	flagSet.BoolVar(&debugLevel, "debug", false, "log at debug level")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	level := slog.LevelInfo
	if debugLevel {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if reset {
		if err := portal.WriteUserConfig(path, portal.DefaultConfig()); err != nil {
			return err
		}
		log.Info("Wrote default configuration.", "path", path)
	}
	uc, err := portal.LoadUserConfig(path)
	if err != nil {
		return err
	}
	rules, err := uc.Rules()
	if err != nil {
		return err
	}
	log.Info("Configuration is valid.",
		"path", path,
		"enabled", rules.Enabled,
		"block_nether", rules.BlockNether,
		"block_end", rules.BlockEnd,
		"block_custom", rules.BlockCustom,
		"cooldown", rules.Cooldown.Duration,
		"max_stay", rules.Security.MaxStay,
		"languages", rules.Messages.Languages(),
	)

	if cooldowns || clearSaved {
		if !uc.Storage.SaveCooldowns {
			return fmt.Errorf("cooldowns are not saved: Storage.SaveCooldowns is disabled in %v", path)
		}
		provider, err := uc.CooldownProvider(filepath.Dir(path), log)
		if err != nil {
			return err
		}
		if err := inspectCooldowns(log, provider, clearSaved); err != nil {
			return err
		}
	}
	if watch {
		return watchConfig(log, path, rules)
	}
	return nil
}

func inspectCooldowns(log *slog.Logger, provider cooldown.Provider, clearSaved bool) (err error) {
	defer func() {
		if cerr := provider.Close(); err == nil {
			err = cerr
		}
	}()

	entries, err := provider.Load()
	if err != nil {
		return err
	}
	now := time.Now()
	for _, e := range entries {
		log.Info("Saved cooldown.", "id", e.ID, "remaining", e.Expires.Sub(now).Round(time.Second))
	}
	if clearSaved {
		if err := provider.Save(nil); err != nil {
			return err
		}
		log.Info("Cleared saved cooldowns.", "count", len(entries))
	}
	return nil
}

func watchConfig(log *slog.Logger, path string, rules *portal.Rules) error {
	holder := portal.NewRuleHolder(rules)
	r, err := portal.NewReloader(path, holder, log)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.Info("Watching configuration, press Ctrl+C to stop.", "path", path)
	return r.Run(ctx)
}
