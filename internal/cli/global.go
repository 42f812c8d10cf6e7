package cli

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kubev2v/migration-executor/internal/config"
	"github.com/kubev2v/migration-executor/internal/platform"
	"github.com/kubev2v/migration-executor/internal/source"
	"github.com/kubev2v/migration-executor/pkg/log"
)

type GlobalOptions struct {
	ConfigFile string

	config *config.Config
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.ConfigFile, "config", o.ConfigFile, "Path to the executor's configuration file.")
}

func (o *GlobalOptions) Complete() error {
	cfg, err := config.New(o.ConfigFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	o.config = cfg

	logLvl, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		logLvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	zap.ReplaceGlobals(log.InitLog(logLvl))

	return nil
}

func (o *GlobalOptions) Validate() error {
	return o.config.Validate()
}

func (o *GlobalOptions) connectSource(ctx context.Context) (*source.VCenterClient, error) {
	endpoint, username, password, tlsVerify := o.config.SourceConnection()
	return source.Connect(ctx, endpoint, username, password, tlsVerify)
}

func (o *GlobalOptions) destinationClient() (platform.Client, error) {
	endpoint, token, tlsVerify := o.config.DestinationConnection()
	return platform.NewRestClient(endpoint, token, tlsVerify)
}
