package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mage/mage-sdk-go/archivist"
	"github.com/mage/mage-sdk-go/mage"

	"github.com/google/gops/agent"
	"github.com/scott-cotton/cli"
)

func (cfg *RemoteConfig) client(cc *cli.Context) (*mage.Client, error) {
	mCfg, err := cfg.clientConfig()
	if err != nil {
		return nil, err
	}
	c, err := mage.New(mCfg, theLog)
	if err != nil {
		return nil, err
	}
	if cfg.Events {
		p := newEventPrinter(cc.Out, cfg.useColor(cc.Out))
		c.Events.Tap(p.print)
	}
	return c, nil
}

// interruptible returns a context cancelled on SIGINT or SIGTERM.
func interruptible() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func call(cfg *RemoteConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Command.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: call needs a command name and at most one parameter document", cli.ErrUsage)
	}
	var params any = map[string]any{}
	if len(args) == 2 {
		params, err = cfg.readDoc(cc, args[1])
		if err != nil {
			return err
		}
	}
	c, err := cfg.client(cc)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := interruptible()
	defer cancel()
	res, err := c.Call(ctx, args[0], params)
	if err != nil {
		return err
	}
	if len(res) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(res, &v); err != nil {
		return fmt.Errorf("error decoding result of %s: %w", args[0], err)
	}
	return cfg.write(cc.Out, v)
}

func get(cfg *RemoteConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Command.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("%w: get needs a topic", cli.ErrUsage)
	}
	if cfg.MaxAge < 0 {
		return fmt.Errorf("%w: -maxAge must not be negative", cli.ErrUsage)
	}
	index, err := parseIndex(args[1:])
	if err != nil {
		return err
	}
	c, err := cfg.client(cc)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := interruptible()
	defer cancel()
	v, err := c.Archivist.Get(ctx, args[0], index, &archivist.GetOptions{
		MaxAge:   time.Duration(cfg.MaxAge) * time.Second,
		Optional: cfg.Optional,
	})
	if err != nil {
		return err
	}
	if v == nil {
		return cfg.write(cc.Out, nil)
	}
	return cfg.write(cc.Out, v.Snapshot())
}

func listen(cfg *RemoteConfig, cc *cli.Context, args []string) error {
	tags, err := cfg.Command.Parse(cc, args)
	if err != nil {
		return err
	}
	if err := agent.Listen(agent.Options{}); err != nil {
		fmt.Fprintf(os.Stderr, "gops agent failed: %v\n", err)
	}
	defer agent.Close()

	ctx, cancel := interruptible()
	defer cancel()

	// -events would print each event twice.
	cfg.Events = false
	c, err := cfg.client(cc)
	if err != nil {
		return err
	}
	defer c.Close()

	p := newEventPrinter(cc.Out, cfg.useColor(cc.Out))
	if len(tags) == 0 {
		c.Events.Tap(p.print)
	} else {
		for _, tag := range tags {
			c.Events.On(tag, func(data json.RawMessage) {
				p.print(tag, data)
			})
		}
	}
	return c.Run(ctx)
}
