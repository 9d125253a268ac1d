package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	lw "github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/golog"
	"github.com/shimmeringbee/melcloud/registry"
)

func main() {
	ctx := context.Background()
	l := lw.New(golog.Wrap(log.New(os.Stderr, "", log.LstdFlags)))

	l.LogInfo(ctx, "melcloudd - MELCloud bridge - Starting...")

	directories := enumerateDirectories(ctx, l)

	l.LogInfo(ctx, "Directory enumeration complete.", lw.Datum("directories", directories))

	l, err := configureLogging(filepath.Join(directories.Config, "logging"), directories.Log, l)
	if err != nil {
		l.LogFatal(ctx, "Failed to configure logging.", lw.Err(err))
	}

	accountCfgs, err := loadAccountConfigurations(filepath.Join(directories.Config, "accounts"))
	if err != nil {
		l.LogFatal(ctx, "Failed to load account configurations.", lw.Err(err))
	}

	interfaceCfgs, err := loadInterfaceConfigurations(filepath.Join(directories.Config, "interfaces"))
	if err != nil {
		l.LogFatal(ctx, "Failed to load interface configurations.", lw.Err(err))
	}

	l.LogInfo(ctx, "Initialising device registry.")
	bus := registry.NewEventBus()
	reg := registry.New(bus)

	l.LogInfo(ctx, "Starting interfaces.")
	startedInterfaces, err := startInterfaces(interfaceCfgs, reg, bus, directories, l)
	if err != nil {
		l.LogFatal(ctx, "Failed to start interfaces.", lw.Err(err))
	}

	l.LogInfo(ctx, "Starting accounts.", lw.Datum("configCount", len(accountCfgs)))
	startedAccounts, err := startAccounts(accountCfgs, reg, bus, l)
	if err != nil {
		l.LogFatal(ctx, "Failed to start accounts.", lw.Err(err))
	}

	l.LogInfo(ctx, "MELCloud bridge ready.")

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, os.Kill)

	s := <-signalCh
	l.LogInfo(ctx, "Signal received, shutting down.", lw.Datum("signal", s.String()))

	for _, account := range startedAccounts {
		l.LogInfo(ctx, "Shutting down account.", lw.Datum("account", account.Name))
		account.Shutdown()
	}

	for _, intf := range startedInterfaces {
		l.LogInfo(ctx, "Shutting down interface.", lw.Datum("interface", intf.Name))

		if err := intf.Shutdown(); err != nil {
			l.LogError(ctx, "Failed to shutdown interface.", lw.Err(err), lw.Datum("interface", intf.Name))
		}
	}

	l.LogInfo(ctx, "Shut down complete.")
}
