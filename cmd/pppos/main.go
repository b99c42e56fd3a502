package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/pppos/pkg/cli/sh"
	"github.com/robotalks/pppos/pkg/env"
	fx "github.com/robotalks/pppos/pkg/framework"
)

var (
	configFile string
	console    bool
)

func init() {
	env.SetupFlags()
	flag.StringVar(&configFile, "config", configFile, "YAML config file, command line flags take precedence.")
	flag.BoolVar(&console, "console", console, "Run interactive console.")
}

func main() {
	defer glog.Flush()
	flag.Parse()
	if configFile != "" {
		if err := env.Default().LoadFile(configFile); err != nil {
			glog.Exitf("load config: %v", err)
		}
		// flags override the file.
		flag.CommandLine.Parse(os.Args[1:])
	}

	e := env.NewConfig().MustNewEnv()
	runner := fx.NewRunner().HandleSignals()
	runner.Go(e)

	if console {
		shell := sh.New(e.Bridge)
		runner.Go(fx.NamedRun("console", fx.RunFunc(func(ctx context.Context) error {
			// the daemon exits with the console.
			defer runner.Stop()
			return fx.RunWithContextCloser(ctx, shell, func() error {
				return shell.Run(flag.Args()...)
			})
		})))
	}

	if err := runner.Wait(); err != nil {
		glog.Exitf("%v", err)
	}
}
