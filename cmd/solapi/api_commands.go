package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/brojonat/solapi/client"
	"github.com/brojonat/solapi/service/solana"
	"github.com/urfave/cli/v2"
)

func apiCommands() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Commands that go through a running solapi gateway",
		Subcommands: []*cli.Command{
			apiInfoCommand(),
			apiBalanceCommand(),
			apiAccountCommand(),
			apiTransactionCommand(),
			apiTransferCommand(),
			apiTransfersCommand(),
			apiAwaitCommand(),
			apiStreamCommand(),
		},
	}
}

func newAPIClient(c *cli.Context) *client.Client {
	return client.NewClient(c.String("server-url"), nil, newLogger(c))
}

func apiInfoCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show the gateway's service description",
		Action: func(c *cli.Context) error {
			info, err := newAPIClient(c).Info(c.Context)
			if err != nil {
				return err
			}
			return outputJSON(c, info)
		},
	}
}

func apiBalanceCommand() *cli.Command {
	return &cli.Command{
		Name:      "balance",
		Usage:     "Get the balance of an address",
		ArgsUsage: "ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("address is required")
			}
			bal, err := newAPIClient(c).Balance(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			if jsonOutput(c) {
				return outputJSON(c, bal)
			}
			printf("%s SOL (%d lamports)\n", formatSOL(bal.Lamports), bal.Lamports)
			return nil
		},
	}
}

func apiAccountCommand() *cli.Command {
	return &cli.Command{
		Name:      "account",
		Usage:     "Get account metadata",
		ArgsUsage: "ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("address is required")
			}
			acc, err := newAPIClient(c).Account(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			if jsonOutput(c) {
				return outputJSON(c, acc)
			}
			printf("Address: %s\n", acc.Address)
			printf("  Lamports:   %d\n", acc.Lamports)
			printf("  Owner:      %s\n", acc.Owner)
			printf("  Executable: %t\n", acc.Executable)
			printf("  Rent epoch: %d\n", acc.RentEpoch)
			return nil
		},
	}
}

func apiTransactionCommand() *cli.Command {
	return &cli.Command{
		Name:      "transaction",
		Aliases:   []string{"tx"},
		Usage:     "Get a transaction by signature",
		ArgsUsage: "SIGNATURE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("signature is required")
			}
			tx, err := newAPIClient(c).Transaction(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			if jsonOutput(c) {
				return outputJSON(c, tx)
			}
			printf("Signature: %s\n", tx.Signature)
			printf("  Slot:     %d\n", tx.Slot)
			printf("  Success:  %t\n", tx.Success)
			if tx.Fee != nil {
				printf("  Fee:      %d lamports\n", *tx.Fee)
			}
			if tx.Error != nil {
				printf("  Error:    %s\n", *tx.Error)
			}
			printf("  Accounts: %d\n", len(tx.Accounts))
			printf("  Explorer: %s\n", solana.ExplorerTxURL(tx.Signature, c.String("explorer-cluster")))
			return nil
		},
	}
}

func apiTransferCommand() *cli.Command {
	return &cli.Command{
		Name:  "transfer",
		Usage: "Ask the gateway to sign and send a SOL transfer",
		Description: `The private key is read from --keypair or --private-key and sent to the
gateway in the request body. Use this only against a gateway you operate.`,
		Flags: []cli.Flag{
			keypairFlag(false),
			&cli.StringFlag{
				Name:    "private-key",
				Usage:   "Base58 private key (instead of --keypair)",
				EnvVars: []string{"SOLANA_PRIVATE_KEY"},
			},
			&cli.StringFlag{
				Name:  "from",
				Usage: "Sender address (defaults to the key's public key)",
			},
			&cli.StringFlag{
				Name:     "to",
				Usage:    "Recipient address",
				Required: true,
			},
			&cli.Float64Flag{
				Name:     "amount",
				Usage:    "Amount in SOL",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "memo",
				Usage: "Attach a memo instruction",
			},
		},
		Action: func(c *cli.Context) error {
			req := client.TransferRequest{
				From:       c.String("from"),
				To:         c.String("to"),
				Amount:     c.Float64("amount"),
				PrivateKey: c.String("private-key"),
				Memo:       c.String("memo"),
			}
			if path := c.String("keypair"); path != "" {
				key, err := solana.LoadKeypairFile(path)
				if err != nil {
					return err
				}
				req.PrivateKey = key.String()
				if req.From == "" {
					req.From = key.PublicKey().String()
				}
			}
			if req.From == "" && req.PrivateKey != "" {
				key, err := solana.ParsePrivateKey(req.PrivateKey)
				if err != nil {
					return err
				}
				req.From = key.PublicKey().String()
			}
			if req.From == "" {
				return fmt.Errorf("--from is required when no key is given")
			}

			resp, err := newAPIClient(c).Transfer(c.Context, req)
			if err != nil {
				return err
			}
			if jsonOutput(c) {
				return outputJSON(c, resp)
			}
			printf("✓ %s\n", resp.Message)
			printf("  Signature: %s\n", resp.Signature)
			printf("  Explorer:  %s\n", solana.ExplorerTxURL(resp.Signature, c.String("explorer-cluster")))
			return nil
		},
	}
}

func apiTransfersCommand() *cli.Command {
	return &cli.Command{
		Name:  "transfers",
		Usage: "List transfers recorded by the gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "address",
				Aliases: []string{"a"},
				Usage:   "Only transfers sent from or to this address",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Maximum number of transfers",
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of transfers to skip",
			},
		},
		Action: func(c *cli.Context) error {
			transfers, err := newAPIClient(c).Transfers(c.Context, client.ListTransfersOptions{
				Address: c.String("address"),
				Limit:   c.Int("limit"),
				Offset:  c.Int("offset"),
			})
			if err != nil {
				return err
			}
			if jsonOutput(c) {
				return outputJSON(c, transfers)
			}

			w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SIGNATURE\tSTATUS\tFROM\tTO\tSOL\tCREATED")
			for _, t := range transfers {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					t.Signature,
					t.Status,
					t.FromAddress,
					t.ToAddress,
					formatSOL(t.Lamports),
					t.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d transfers\n", len(transfers))
			return nil
		},
	}
}

func apiAwaitCommand() *cli.Command {
	return &cli.Command{
		Name:      "await",
		Usage:     "Block until a transfer event matching criteria arrives",
		ArgsUsage: "[ADDRESS]",
		Description: `Streams transfer events from the gateway and exits on the first match.

Examples:
  # Wait for a transfer to finalize
  solapi api await --signature <SIG> --status finalized <SENDER>

  # Wait for any transfer from SENDER carrying at least 1 SOL
  solapi api await --must-jq '.lamports >= 1000000000' <SENDER>`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "signature",
				Usage: "Transfer signature to wait for",
			},
			&cli.StringSliceFlag{
				Name:  "status",
				Usage: "Accepted statuses (repeatable; any status when omitted)",
			},
			&cli.StringSliceFlag{
				Name:  "must-jq",
				Usage: "jq filter expression evaluated against the event that must be true (repeatable, all must match)",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "Maximum time to wait",
				Value:   5 * time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			address := c.Args().First()
			if address != "" {
				if _, err := solana.ParsePublicKey(address); err != nil {
					return err
				}
			}

			signature := c.String("signature")
			statuses := map[string]bool{}
			for _, s := range c.StringSlice("status") {
				statuses[s] = true
			}
			filters := c.StringSlice("must-jq")
			codes, err := compileJQ(filters)
			if err != nil {
				return err
			}
			logger := newLogger(c)

			matcher := func(e *client.TransferEvent) bool {
				if signature != "" && e.Signature != signature {
					return false
				}
				if len(statuses) > 0 && !statuses[e.Status] {
					return false
				}
				if len(codes) == 0 {
					return true
				}
				data, err := json.Marshal(e)
				if err != nil {
					return false
				}
				var doc interface{}
				if err := json.Unmarshal(data, &doc); err != nil {
					logger.Debug("failed to decode event", "error", err)
					return false
				}
				return matchesJQ(codes, doc)
			}

			if !jsonOutput(c) {
				target := address
				if target == "" {
					target = "any sender"
				}
				fmt.Fprintf(os.Stderr, "Waiting for transfer from %s...\n", target)
				if signature != "" {
					fmt.Fprintf(os.Stderr, "  Signature: %s\n", signature)
				}
				for _, filter := range filters {
					fmt.Fprintf(os.Stderr, "  jq Filter: %s\n", filter)
				}
				fmt.Fprintf(os.Stderr, "  Timeout: %v\n\n", c.Duration("timeout"))
			}

			ctx, cancel := withTimeout(c, c.Duration("timeout"))
			defer cancel()

			e, err := newAPIClient(c).AwaitTransfer(ctx, address, matcher)
			if err != nil {
				return fmt.Errorf("failed to await transfer: %w", err)
			}
			if jsonOutput(c) {
				return outputJSON(c, e)
			}
			printEvent(e.Signature, e.Status, e.FromAddress, e.ToAddress, e.Lamports, e.Error)
			return nil
		},
	}
}

func apiStreamCommand() *cli.Command {
	return &cli.Command{
		Name:      "stream",
		Usage:     "Print transfer events from the gateway until interrupted",
		ArgsUsage: "[ADDRESS]",
		Action: func(c *cli.Context) error {
			address := c.Args().First()
			if address != "" {
				if _, err := solana.ParsePublicKey(address); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			// The matcher never matches, so every event is printed until ctx ends.
			_, err := newAPIClient(c).AwaitTransfer(ctx, address, func(e *client.TransferEvent) bool {
				if jsonOutput(c) {
					if err := outputJSON(c, e); err != nil {
						fmt.Fprintf(os.Stderr, "failed to print event: %v\n", err)
					}
				} else {
					printEvent(e.Signature, e.Status, e.FromAddress, e.ToAddress, e.Lamports, e.Error)
				}
				return false
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func printEvent(signature, status, from, to string, lamports uint64, errMsg *string) {
	printf("%s %s\n", status, signature)
	printf("  %s -> %s (%s SOL)\n", from, to, formatSOL(lamports))
	if errMsg != nil {
		printf("  Error: %s\n", *errMsg)
	}
}
