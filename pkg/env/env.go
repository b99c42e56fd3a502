package env

import (
	"context"
	"fmt"
	"log"

	"github.com/golang/glog"

	"github.com/robotalks/pppos/pkg/engine/pppd"
	fx "github.com/robotalks/pppos/pkg/framework"
	"github.com/robotalks/pppos/pkg/pppos"
	"github.com/robotalks/pppos/pkg/report/mqtt"
	"github.com/robotalks/pppos/pkg/serial"
)

// Env is a bridge with its transport, engine and reporter.
type Env struct {
	Config    *Config
	IPConfig  pppos.IPConfig
	Transport pppos.Transport
	Engine    *pppd.Engine
	Stack     *pppd.Stack
	Bridge    *pppos.Bridge
	Reporter  *mqtt.Reporter

	// Dial opens the transport, serial.Open by default.
	Dial func(location string, opts serial.Options) (*serial.Stream, error)
}

// NewEnv creates Env from config. The transport is opened by Run.
func (c *Config) NewEnv() (*Env, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	ipcfg, err := c.IPConfig()
	if err != nil {
		return nil, err
	}
	engine := pppd.New(c.PPPDOptions...)
	if c.PPPD != "" {
		engine.Path = c.PPPD
	}
	stack := pppd.NewStack()
	stack.ResolvConf = c.ResolvConf

	bridge := pppos.New(engine, stack)
	bridge.CleanupDelay = c.CleanupDelay
	if c.WatchdogInterval > 0 {
		bridge.WatchdogInterval = c.WatchdogInterval
	}

	env := &Env{
		Config:   c,
		IPConfig: ipcfg,
		Engine:   engine,
		Stack:    stack,
		Bridge:   bridge,
		Dial:     serial.Open,
	}
	if c.MQTTBrokerURL != "" {
		if env.Reporter, err = mqtt.NewReporter(c.MQTTBrokerURL, c.ID, bridge); err != nil {
			return nil, fmt.Errorf("create MQTT reporter error: %w", err)
		}
		bridge.Notifier = env.Reporter
	}
	return env, nil
}

// MustNewEnv creates Env and fails on error.
func (c *Config) MustNewEnv() *Env {
	env, err := c.NewEnv()
	if err != nil {
		log.Fatalln(err)
	}
	return env
}

// Name implements framework.Named.
func (e *Env) Name() string {
	return "pppos"
}

// Run implements framework.Runnable. It opens the transport, begins the
// bridge and runs until ctx is done.
func (e *Env) Run(ctx context.Context) error {
	if e.Transport == nil {
		stream, err := e.Dial(e.Config.Serial, serial.Options{
			BaudRate:   e.Config.BaudRate,
			BufferSize: pppos.RxBufferSize,
		})
		if err != nil {
			return err
		}
		defer stream.Close()
		e.Transport = stream
		glog.Infof("env: opened transport %s", e.Config.Serial)
	}

	if err := e.Bridge.Begin(ctx, e.Transport, &e.IPConfig); err != nil {
		return err
	}
	runner := fx.NewRunnerWith(ctx)
	if e.Reporter != nil {
		runner.Go(e.Reporter)
	}
	runner.Go(fx.NamedRun("bridge", fx.RunFunc(func(context.Context) error {
		return e.Bridge.Wait()
	})))
	return runner.Wait()
}
