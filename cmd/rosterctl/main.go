// Command rosterctl is the device-side client: it links facility accounts,
// imports activities and orders through the facility adapters, and keeps the
// local settings in sync with the rosterlink server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	appfacility "github.com/rosterlink/backend/internal/application/facility"
	"github.com/rosterlink/backend/internal/domain/integration"
	"github.com/rosterlink/backend/internal/infrastructure/config"
	"github.com/rosterlink/backend/internal/infrastructure/facility"
	"github.com/rosterlink/backend/internal/infrastructure/localstate"
	"github.com/rosterlink/backend/internal/infrastructure/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds what every command shares. State and adapters are opened lazily
// so commands like token never touch the state file.
type app struct {
	configPath string
	statePath  string
	output     string
	logLevel   string

	cfg   *config.Config
	log   *zap.Logger
	store *localstate.Store
}

func main() {
	a := &app{}
	root := newRootCmd(a)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	a.close()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "rosterctl",
		Short:        "Link facilities, import registrations and sync settings",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: ./config.toml)")
	root.PersistentFlags().StringVar(&a.statePath, "state", "", "local state file (overrides client.state_path)")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", outputTable, "output format: table, json or yaml")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		linkCmd(a),
		unlinkCmd(a),
		linkedCmd(a),
		activitiesCmd(a),
		ordersCmd(a),
		matchCmd(a),
		catalogCmd(a),
		syncCmd(a),
		tokenCmd(a),
	)
	return root
}

func (a *app) init() error {
	if err := validateOutput(a.output); err != nil {
		return err
	}
	logCfg := logger.DefaultConfig()
	logCfg.Level = a.logLevel
	logCfg.Output = "stderr"
	log, err := logger.New(logCfg)
	if err != nil {
		return err
	}
	a.log = log

	cfg, err := config.LoadFile(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if a.statePath != "" {
		a.cfg.Client.StatePath = a.statePath
	}
	return nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil && a.log != nil {
			a.log.Warn("Failed to close local state", zap.Error(err))
		}
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

// state opens the local state file and unlocks secrets when a passphrase is configured
func (a *app) state(ctx context.Context) (*localstate.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	path := a.cfg.Client.StatePath
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("no state path configured: %w", err)
		}
		path = filepath.Join(dir, "rosterlink", "state.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	store, err := localstate.Open(path, a.log)
	if err != nil {
		return nil, err
	}
	if pass := a.cfg.Client.Passphrase; pass != "" {
		if err := store.Unlock(ctx, pass); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to unlock local secrets: %w", err)
		}
	}
	a.store = store
	return store, nil
}

// facilities builds the adapter-boundary service over the configured vendors
func (a *app) facilities() (*appfacility.Service, error) {
	var adapters []integration.FacilityAdapter
	opts := []facility.Option{facility.WithLogger(a.log)}

	if a.cfg.Facilities.ResourceAPI.Enabled {
		adapter, err := facility.NewResourceAPIAdapter(facility.NewResourceAPIConfig(a.cfg.Facilities.ResourceAPI), opts...)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}
	if a.cfg.Facilities.Storefront.Enabled {
		adapter, err := facility.NewStorefrontAdapter(facility.NewStorefrontConfig(a.cfg.Facilities.Storefront), opts...)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}
	if len(adapters) == 0 {
		return nil, errors.New("no facility platform is enabled in the configuration")
	}
	return appfacility.NewService(facility.NewRegistry(adapters...), a.log), nil
}
