// Package cli implements the vcsctl command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rpattn/rentalvc/internal/bootstrap"
	"github.com/rpattn/rentalvc/internal/config"
	"github.com/rpattn/rentalvc/internal/logging"
)

// RuntimeFactory opens the runtime a command runs against.
type RuntimeFactory func(ctx context.Context, cfg config.Config, logger *logrus.Entry) (*bootstrap.Runtime, error)

type globalOptions struct {
	configPath string
	author     string
	branch     string
}

type app struct {
	opts    globalOptions
	factory RuntimeFactory
}

// NewRootCommand builds vcsctl. A nil factory uses bootstrap.New.
func NewRootCommand(factory RuntimeFactory) *cobra.Command {
	if factory == nil {
		factory = bootstrap.New
	}
	a := &app{factory: factory}

	root := &cobra.Command{
		Use:   "vcsctl",
		Short: "Inspect and restore versioned rental records",
		Long: `vcsctl works with the version history of vehicles, customers, rentals
and payments: list history, compare versions, roll back, branch and prune.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&a.opts.configPath, "config", ".", "directory containing config.yaml")
	root.PersistentFlags().StringVar(&a.opts.author, "author", "", "author recorded on new versions (default \"system\")")
	root.PersistentFlags().StringVar(&a.opts.branch, "branch", "", "branch to operate on (default from config)")

	root.AddCommand(
		a.historyCommand(),
		a.rollbackCommand(),
		a.cleanupCommand(),
		a.statsCommand(),
		a.branchesCommand(),
		a.branchCommand(),
		a.compareCommand(),
		a.importCommand(),
	)
	return root
}

// Execute runs vcsctl against the configured store.
func Execute() {
	if err := NewRootCommand(nil).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withRuntime loads configuration, opens the runtime and runs fn with it.
func (a *app) withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *bootstrap.Runtime) error) error {
	cfg, _, err := config.Load(a.opts.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.NewWithOutput(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := a.factory(ctx, cfg, logrus.NewEntry(logger))
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func parseEntityID(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid entity id %q", value)
	}
	return id, nil
}

func parseVersionNumber(value string) (int64, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid version number %q", value)
	}
	return n, nil
}

func (a *app) branchOr(rt *bootstrap.Runtime) string {
	if a.opts.branch != "" {
		return a.opts.branch
	}
	return rt.Service.DefaultBranch()
}
