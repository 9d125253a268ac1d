package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/nest"
	"github.com/shimmeringbee/melcloud"
	"github.com/shimmeringbee/melcloud/config"
	"github.com/shimmeringbee/melcloud/registry"
)

type StartedAccount struct {
	Name     string
	Shutdown func()
}

const DefaultAccountStartTimeout = 30 * time.Second

func loadAccountConfigurations(dir string) ([]config.AccountConfig, error) {
	if err := os.MkdirAll(dir, DefaultDirectoryPermissions); err != nil {
		return nil, fmt.Errorf("failed to ensure account configuration directory exists: %w", err)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory listing for account configurations: %w", err)
	}

	var retCfgs []config.AccountConfig

	for _, file := range files {
		if !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		fullPath := filepath.Join(dir, file.Name())
		data, err := os.ReadFile(fullPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read account configuration file '%s': %w", fullPath, err)
		}

		cfg := config.AccountConfig{
			Name: strings.TrimSuffix(file.Name(), filepath.Ext(file.Name())),
		}

		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse account configuration file '%s': %w", fullPath, err)
		}

		retCfgs = append(retCfgs, cfg)
	}

	return retCfgs, nil
}

func startAccounts(cfgs []config.AccountConfig, reg *registry.Registry, bus *registry.EventBus, l logwrap.Logger) ([]StartedAccount, error) {
	var retAccounts []StartedAccount

	for _, cfg := range cfgs {
		if shutdown, err := startAccount(cfg, reg, bus, l); err != nil {
			return nil, fmt.Errorf("failed to start account '%s': %w", cfg.Name, err)
		} else {
			retAccounts = append(retAccounts, StartedAccount{
				Name:     cfg.Name,
				Shutdown: shutdown,
			})
		}
	}

	return retAccounts, nil
}

func startAccount(cfg config.AccountConfig, reg *registry.Registry, bus *registry.EventBus, l logwrap.Logger) (func(), error) {
	wl := logwrap.New(nest.Wrap(l))
	wl.AddOptionsToLogger(logwrap.Datum("account", cfg.Name))

	switch acCfg := cfg.Config.(type) {
	case *config.MELCloudAccountConfig:
		wl.AddOptionsToLogger(logwrap.Source("melcloud"))
		return startMELCloudAccount(*acCfg, reg, bus, wl)
	default:
		return nil, fmt.Errorf("unknown account type loaded: %s", cfg.Type)
	}
}

func startMELCloudAccount(cfg config.MELCloudAccountConfig, reg *registry.Registry, bus *registry.EventBus, l logwrap.Logger) (func(), error) {
	opts := []melcloud.Option{melcloud.WithLogger(l)}

	if cfg.BaseURL != "" {
		opts = append(opts, melcloud.WithBaseURL(cfg.BaseURL))
	}

	if cfg.ConfUpdateIntervalSeconds > 0 {
		opts = append(opts, melcloud.WithConfUpdateInterval(time.Duration(cfg.ConfUpdateIntervalSeconds)*time.Second))
	}

	if cfg.SetDebounceMilliseconds > 0 {
		opts = append(opts, melcloud.WithSetDebounce(time.Duration(cfg.SetDebounceMilliseconds)*time.Millisecond))
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultAccountStartTimeout)
	defer cancel()

	var client *melcloud.Client

	if cfg.Token != "" {
		client = melcloud.NewClient(cfg.Token, opts...)
	} else {
		var err error

		client, err = melcloud.Login(ctx, cfg.Email, cfg.Password, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to login to MELCloud: %w", err)
		}
	}

	devices, err := melcloud.GetDevices(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	for _, d := range devices.All() {
		reg.Add(d)
		l.LogInfo(ctx, "Registered device.", logwrap.Datum("identifier", registry.Identifier(d)), logwrap.Datum("type", string(d.DeviceType())))
	}

	interval := registry.DefaultPollInterval
	if cfg.PollIntervalSeconds > 0 {
		interval = time.Duration(cfg.PollIntervalSeconds) * time.Second
	}

	p := &registry.Poller{Registry: reg, Publisher: bus, Logger: l, Interval: interval}
	p.Start()

	return p.Stop, nil
}
