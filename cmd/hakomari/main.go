// Command hakomari is a CLI front-end for talking to hakomari USB
// devices: listing attached devices, listing/creating/destroying
// endpoints, and issuing verbs against one with stdin/stdout as the
// payload stream.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/bullno1/libhakomari"
)

func main() {
	app := &cli.App{
		Name:  "hakomari",
		Usage: "talk to hakomari USB devices",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "device", Aliases: []string{"d"}, Value: 0, Usage: "index of the device to operate on, from list-devices"},
			&cli.BoolFlag{Name: "no-input", Usage: "fail instead of prompting for a passphrase when a device demands one"},
		},
		Commands: []*cli.Command{
			listDevicesCommand,
			listCommand,
			createCommand,
			destroyCommand,
			queryCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "hakomari:", err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	var herr *hakomari.Error
	if errors.As(err, &herr) {
		switch herr.Kind {
		case hakomari.Invalid:
			return 2
		case hakomari.Denied:
			return 3
		case hakomari.AuthRequired:
			return 4
		case hakomari.Io:
			return 5
		}
	}
	return 1
}

var listDevicesCommand = &cli.Command{
	Name:  "list-devices",
	Usage: "list hakomari devices attached to this host",
	Action: func(c *cli.Context) error {
		ctx, err := hakomari.Open(loggerOption())
		if err != nil {
			return err
		}
		defer ctx.Close()

		devices, err := ctx.EnumerateDevices()
		if err != nil {
			return err
		}
		for i, d := range devices {
			fmt.Printf("%d: %s (%s)\n", i, d.UserName, d.SystemName)
		}
		return nil
	},
}

var listCommand = &cli.Command{
	Name:  "list",
	Usage: "list the endpoints present on a device",
	Action: func(c *cli.Context) error {
		return withDevice(c, func(dev *hakomari.Device) error {
			endpoints, err := dev.EnumerateEndpoints()
			if err != nil {
				return err
			}
			for _, ep := range endpoints {
				fmt.Println(ep.String())
			}
			return nil
		})
	},
}

var createCommand = &cli.Command{
	Name:      "create",
	Usage:     "create an endpoint",
	ArgsUsage: "<type> <name>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 2 {
			return cli.Exit("expected <type> <name>", 2)
		}
		ep, err := endpointFromArgs(c.Args().Get(0), c.Args().Get(1))
		if err != nil {
			return err
		}
		return withDevice(c, func(dev *hakomari.Device) error {
			return dev.CreateEndpoint(ep)
		})
	},
}

var destroyCommand = &cli.Command{
	Name:      "destroy",
	Usage:     "destroy an endpoint",
	ArgsUsage: "<type> <name>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 2 {
			return cli.Exit("expected <type> <name>", 2)
		}
		ep, err := endpointFromArgs(c.Args().Get(0), c.Args().Get(1))
		if err != nil {
			return err
		}
		return withDevice(c, func(dev *hakomari.Device) error {
			return dev.DestroyEndpoint(ep)
		})
	},
}

var queryCommand = &cli.Command{
	Name:      "query",
	Usage:     "issue a verb against an endpoint, streaming stdin as the payload and the reply to stdout",
	ArgsUsage: "<type> <name> <verb>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 3 {
			return cli.Exit("expected <type> <name> <verb>", 2)
		}
		ep, err := endpointFromArgs(c.Args().Get(0), c.Args().Get(1))
		if err != nil {
			return err
		}
		verb := c.Args().Get(2)
		return withDevice(c, func(dev *hakomari.Device) error {
			reply, _, err := dev.QueryEndpoint(ep, verb, hakomari.AsPayloadSource(os.Stdin))
			if err != nil {
				return err
			}
			_, err = io.Copy(os.Stdout, reply)
			return err
		})
	},
}

func endpointFromArgs(typeArg, nameArg string) (hakomari.EndpointDescriptor, error) {
	epType, err := hakomari.NewShortName(typeArg)
	if err != nil {
		return hakomari.EndpointDescriptor{}, err
	}
	epName, err := hakomari.NewShortName(nameArg)
	if err != nil {
		return hakomari.EndpointDescriptor{}, err
	}
	return hakomari.EndpointDescriptor{Type: epType, Name: epName}, nil
}

func loggerOption() hakomari.Option {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return func(*hakomari.Options) {}
	}
	return hakomari.WithLogger(logger)
}

// withDevice opens a Context scoped to one command invocation, enumerates
// devices, opens the one selected by --device, runs fn against it, and
// tears both down again regardless of fn's outcome.
func withDevice(c *cli.Context, fn func(dev *hakomari.Device) error) error {
	opts := []hakomari.Option{loggerOption()}
	if !c.Bool("no-input") {
		opts = append(opts, hakomari.WithAuthHandler(stdioAuthHandler{}))
	}

	ctx, err := hakomari.Open(opts...)
	if err != nil {
		return err
	}
	defer ctx.Close()

	if _, err := ctx.EnumerateDevices(); err != nil {
		return err
	}
	dev, err := ctx.OpenDevice(c.Int("device"))
	if err != nil {
		return err
	}
	defer ctx.CloseDevice(dev)

	return fn(dev)
}
