package main

import (
	"fmt"

	"github.com/brojonat/solapi/service/solana"
	"github.com/urfave/cli/v2"
)

func prereqCommands() *cli.Command {
	return &cli.Command{
		Name:  "prereq",
		Usage: "Enrollment program commands",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "program",
				Usage: "Enrollment program ID",
				Value: solana.Turbin3PrereqProgramID.String(),
			},
		},
		Subcommands: []*cli.Command{
			prereqCheckCommand(),
			submitRsCommand(),
		},
	}
}

func prereqCheckCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Check whether a user has an enrollment record",
		ArgsUsage: "USER",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("user address is required")
			}
			user, err := solana.ParsePublicKey(c.Args().First())
			if err != nil {
				return err
			}
			program, err := solana.ParsePublicKey(c.String("program"))
			if err != nil {
				return err
			}

			status, err := newSolanaClient(c).PrereqStatus(c.Context, user, program)
			if err != nil {
				return err
			}

			if jsonOutput(c) {
				out := map[string]interface{}{
					"user":     status.User.String(),
					"record":   status.Record.Address.String(),
					"bump":     status.Record.Bump,
					"enrolled": status.Enrolled,
				}
				if status.Account != nil {
					out["lamports"] = status.Account.Lamports
					out["space"] = status.Account.Space
				}
				return outputJSON(c, out)
			}

			if !status.Enrolled {
				printf("✗ %s has no enrollment record\n", status.User)
				printf("  Expected at: %s\n", status.Record.Address)
				return nil
			}
			printf("✓ %s is enrolled\n", status.User)
			printf("  Record:   %s\n", status.Record.Address)
			printf("  Explorer: %s\n", solana.ExplorerAddressURL(status.Record.Address.String(), c.String("explorer-cluster")))
			return nil
		},
	}
}

func submitRsCommand() *cli.Command {
	return &cli.Command{
		Name:  "submit-rs",
		Usage: "Mint the completion NFT by calling submit_rs",
		Flags: []cli.Flag{
			keypairFlag(true),
			&cli.StringFlag{
				Name:  "collection",
				Usage: "MPL Core collection",
				Value: solana.Turbin3Collection.String(),
			},
			confirmTimeoutFlag(),
		},
		Action: func(c *cli.Context) error {
			signer, err := solana.LoadKeypairFile(c.String("keypair"))
			if err != nil {
				return err
			}
			collection, err := solana.ParsePublicKey(c.String("collection"))
			if err != nil {
				return err
			}
			program, err := solana.ParsePublicKey(c.String("program"))
			if err != nil {
				return err
			}

			sig, accounts, err := newSolanaClient(c).SubmitRs(c.Context, signer, collection, program)
			if err != nil {
				return err
			}

			explorer := solana.ExplorerTxURL(sig.String(), c.String("explorer-cluster"))
			if jsonOutput(c) {
				return outputJSON(c, map[string]interface{}{
					"signature":  sig.String(),
					"user":       accounts.User.String(),
					"record":     accounts.Record.String(),
					"mint":       accounts.Mint.String(),
					"collection": accounts.Collection.String(),
					"authority":  accounts.Authority.String(),
					"explorer":   explorer,
				})
			}
			printf("✓ submit_rs confirmed\n")
			printf("  Signature: %s\n", sig)
			printf("  Mint:      %s\n", accounts.Mint)
			printf("  Explorer:  %s\n", explorer)
			return nil
		},
	}
}
