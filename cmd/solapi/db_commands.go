package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/solapi/service/db"
	"github.com/urfave/cli/v2"
)

func listTransfersCommand() *cli.Command {
	return &cli.Command{
		Name:    "transfers",
		Usage:   "List recorded transfers, newest first",
		Aliases: []string{"ls"},
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
				Value:   db.DefaultListLimit,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of transfers to skip",
			},
			&cli.BoolFlag{
				Name:  "pending",
				Usage: "Only transfers that have not reached a terminal status, oldest first",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			var transfers []*db.Transfer
			if c.Bool("pending") {
				transfers, err = store.ListPendingTransfers(c.Context, int32(c.Int("limit")))
			} else {
				transfers, err = store.ListTransfers(c.Context, db.ListTransfersParams{
					Address: c.String("address"),
					Limit:   int32(c.Int("limit")),
					Offset:  int32(c.Int("offset")),
				})
			}
			if err != nil {
				return fmt.Errorf("failed to list transfers: %w", err)
			}

			if jsonOutput(c) {
				out := make([]map[string]interface{}, len(transfers))
				for i, t := range transfers {
					out[i] = transferOutput(t)
				}
				return outputJSON(c, out)
			}

			// Pretty table output
			w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SIGNATURE\tSTATUS\tFROM\tTO\tLAMPORTS\tUPDATED")
			for _, t := range transfers {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					t.Signature,
					t.Status,
					t.FromAddress,
					t.ToAddress,
					t.Lamports,
					t.UpdatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d transfers\n", len(transfers))
			return nil
		},
	}
}

func getTransferCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show a recorded transfer",
		ArgsUsage: "SIGNATURE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: signature")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			t, err := store.GetTransfer(c.Context, c.Args().First())
			if err != nil {
				return err
			}

			if jsonOutput(c) {
				return outputJSON(c, transferOutput(t))
			}

			printf("Transfer: %s\n", t.Signature)
			printf("  Status:   %s\n", t.Status)
			if t.Error != nil {
				printf("  Error:    %s\n", *t.Error)
			}
			printf("  From:     %s\n", t.FromAddress)
			printf("  To:       %s\n", t.ToAddress)
			printf("  Amount:   %s SOL (%d lamports)\n", formatSOL(t.Lamports), t.Lamports)
			printf("  Memo:     %s\n", formatOptional(t.Memo))
			printf("  Created:  %s\n", t.CreatedAt.Format(time.RFC3339))
			printf("  Updated:  %s\n", t.UpdatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the transfers table and its indexes if they do not exist",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.EnsureSchema(c.Context); err != nil {
				return fmt.Errorf("failed to apply schema: %w", err)
			}
			printf("✓ Schema applied\n")
			return nil
		},
	}
}

func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := db.Connect(c.Context, dbURL)
	if err != nil {
		return nil, nil, err
	}

	store := db.NewStore(pool, nil)
	closer := func() { pool.Close() }

	return store, closer, nil
}

func transferOutput(t *db.Transfer) map[string]interface{} {
	return map[string]interface{}{
		"signature":    t.Signature,
		"from_address": t.FromAddress,
		"to_address":   t.ToAddress,
		"lamports":     t.Lamports,
		"memo":         t.Memo,
		"status":       t.Status,
		"error":        t.Error,
		"created_at":   t.CreatedAt,
		"updated_at":   t.UpdatedAt,
	}
}

func formatOptional(s *string) string {
	if s != nil && *s != "" {
		return *s
	}
	return "(none)"
}
