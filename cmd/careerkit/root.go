package main

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rushteam/careerkit/config"
	"github.com/rushteam/careerkit/pkg/logging"
)

const app = "careerkit"

type rootOptions struct {
	cfgFile string
	debug   bool
	json    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           app,
		Short:         "careerkit recommends careers from a user profile: retrieval, ranking and selection",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", app+".yaml", "config file")
	root.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "verbose/debug output")
	root.PersistentFlags().BoolVarP(&opts.json, "json", "j", false, "json format for logging")

	root.AddCommand(
		newRecommendCmd(opts),
		newOutcomeCmd(opts),
		newValidateCmd(opts),
	)
	return root
}

// loadConfig 读取配置，命令行的日志开关优先于配置文件。
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("debug") {
		cfg.Logging.Debug = o.debug
	}
	if cmd.Flags().Changed("json") {
		cfg.Logging.JSON = o.json
	}
	logger, err := logging.New(cfg.Logging.JSON, cfg.Logging.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("creating a logger: %w", err)
	}
	return cfg, logger, nil
}

// build 加载配置并组装推荐服务，调用方负责 Close。
func (o *rootOptions) build(ctx context.Context, cmd *cobra.Command) (*config.App, error) {
	cfg, logger, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	a, err := config.Build(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
