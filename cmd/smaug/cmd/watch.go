package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/elaiviaien/smaug/config"
	internalconfig "github.com/elaiviaien/smaug/internal/config"
	"github.com/elaiviaien/smaug/internal/logging"
	"github.com/elaiviaien/smaug/internal/monitor"
)

var (
	cfgPath  string
	pid      int32
	appPath  string
	interval time.Duration
	jsonOut  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print resource usage until interrupted or the watched process exits",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		r := &renderer{
			w:    out,
			json: cfg.Display.JSON,
		}
		if f, ok := out.(*os.File); ok && !r.json {
			r.clear = term.IsTerminal(int(f.Fd()))
		}

		return monitor.Run(ctx, cfg.ToMonitorOptions(), func(g *monitor.Group) error {
			return watch(ctx, g, cfg, r)
		})
	},
}

func init() {
	watchCmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	watchCmd.Flags().Int32VarP(&pid, "pid", "p", 0, "pid of the process to watch")
	watchCmd.Flags().StringVar(&appPath, "path", "", "application path measured for app_size")
	watchCmd.Flags().DurationVarP(&interval, "interval", "i", config.DefaultSnapshotInterval, "snapshot interval")
	watchCmd.Flags().BoolVar(&jsonOut, "json", false, "print one JSON object per snapshot")
}

// loadConfig reads the config file, if any, and applies flags that were
// set explicitly.
func loadConfig(cmd *cobra.Command) (*internalconfig.Config, error) {
	cfg := internalconfig.DefaultConfig()
	if cfgPath != "" {
		var err error
		if cfg, err = internalconfig.Load(cfgPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("pid") {
		cfg.Target.PID = pid
	}
	if flags.Changed("path") {
		cfg.Target.Path = appPath
	}
	if flags.Changed("interval") {
		cfg.Display.Interval = interval
	}
	if flags.Changed("json") {
		cfg.Display.JSON = jsonOut
	}
	if !flags.Changed("log-level") {
		if err := logging.SetLevel(cfg.Logging.Level); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// watch prints a snapshot every display interval until ctx is done or the
// watched process is gone.
func watch(ctx context.Context, g *monitor.Group, cfg *internalconfig.Config, r *renderer) error {
	log := logging.Component("watch")
	proc := g.ProcessProbe()

	ticker := time.NewTicker(cfg.Display.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("interrupted")
			return nil
		case <-ticker.C:
		}

		s, err := g.Snapshot(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("snapshot failed", zap.Error(err))
			continue
		}
		if err := r.render(s); err != nil {
			return err
		}

		if proc.PID() > 0 && !proc.TargetAlive(ctx) {
			log.Info("watched process exited", zap.Int32("pid", proc.PID()))
			return nil
		}
	}
}
