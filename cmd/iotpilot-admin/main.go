// Command iotpilot-admin performs operator tasks that have no HTTP surface:
// migrations, bootstrap accounts and bulk device import.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Harshitk-cp/iotpilot/internal/access"
	"github.com/Harshitk-cp/iotpilot/internal/app"
	"github.com/Harshitk-cp/iotpilot/internal/config"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg    *config.Config
	logger *zap.Logger
)

// operator is the principal used for every CLI write.
var operator = access.Principal{Role: domain.RoleSuperAdmin, Email: "iotpilot-admin"}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "iotpilot-admin",
		Short:         "Administrative tasks for an IoT Pilot deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			logger, err = app.NewLogger(cfg.LogLevel)
			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
	root.AddCommand(
		newMigrateCmd(),
		newCreateCustomerCmd(),
		newCreateSuperAdminCmd(),
		newSeedCmd(),
		newImportDevicesCmd(),
		newVersionCmd(),
	)
	return root
}

// withContainer builds the full service graph for the duration of fn.
func withContainer(ctx context.Context, fn func(*app.Container) error) error {
	c, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
