package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	natspkg "github.com/brojonat/solapi/service/nats"
	"github.com/brojonat/solapi/service/solana"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

var errEnoughEvents = errors.New("event count reached")

func watchEventsCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Stream transfer events from NATS JetStream",
		ArgsUsage: "[sender_address]",
		Description: `Subscribe to transfer status changes published to NATS JetStream.

Events are published to the subject: transfers.{sender_address}.
Without an address, events for every sender are streamed.

Example:
  solapi events watch 9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM --json`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "Exit after this many events (0 streams until interrupted)",
			},
		},
		Action: func(c *cli.Context) error {
			address := c.Args().First()
			if address != "" {
				if _, err := solana.ParsePublicKey(address); err != nil {
					return err
				}
			}

			subscriber, err := natspkg.NewSubscriber(c.String("nats-url"), newLogger(c))
			if err != nil {
				return err
			}
			defer subscriber.Close()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !jsonOutput(c) {
				fmt.Fprintf(os.Stderr, "Watching %s (Ctrl+C to stop)...\n\n", natspkg.SubjectFor(address))
			}

			limit := c.Int("count")
			seen := 0
			err = subscriber.SubscribeTransfers(ctx, address, func(e *natspkg.TransferEvent) error {
				if jsonOutput(c) {
					if err := outputJSON(c, e); err != nil {
						return err
					}
				} else {
					printEvent(e.Signature, e.Status, e.FromAddress, e.ToAddress, e.Lamports, e.Error)
				}
				seen++
				if limit > 0 && seen >= limit {
					return errEnoughEvents
				}
				return nil
			})
			if errors.Is(err, errEnoughEvents) {
				return nil
			}
			return err
		},
	}
}

func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Show the state of the transfer event stream",
		Action: func(c *cli.Context) error {
			nc, err := natspkg.Connect(c.String("nats-url"), "solapi-cli")
			if err != nil {
				return err
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			ctx := c.Context
			stream, err := js.Stream(ctx, natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to find stream %s: %w", natspkg.StreamName, err)
			}
			info, err := stream.Info(ctx)
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if jsonOutput(c) {
				return outputJSON(c, map[string]interface{}{
					"stream":    info.Config.Name,
					"subjects":  info.Config.Subjects,
					"max_age":   info.Config.MaxAge.String(),
					"messages":  info.State.Msgs,
					"bytes":     info.State.Bytes,
					"first_seq": info.State.FirstSeq,
					"last_seq":  info.State.LastSeq,
					"consumers": info.State.Consumers,
				})
			}

			printf("Stream:    %s\n", info.Config.Name)
			printf("Subjects:  %v\n", info.Config.Subjects)
			printf("Max age:   %s\n", info.Config.MaxAge)
			printf("Messages:  %d\n", info.State.Msgs)
			printf("Bytes:     %d\n", info.State.Bytes)
			printf("Sequence:  %d..%d\n", info.State.FirstSeq, info.State.LastSeq)
			printf("Consumers: %d\n", info.State.Consumers)
			return nil
		},
	}
}
