package main

import (
	"fmt"

	"github.com/brojonat/solapi/service/solana"
	"github.com/urfave/cli/v2"
)

func pdaCommands() *cli.Command {
	return &cli.Command{
		Name:  "pda",
		Usage: "Program derived address commands",
		Subcommands: []*cli.Command{
			deriveCommand(),
			ataCommand(),
			metadataCommand(),
		},
	}
}

func deriveCommand() *cli.Command {
	return &cli.Command{
		Name:  "derive",
		Usage: "Derive a PDA from seeds",
		Description: `Seeds are applied in the order given: every --seed is used as raw UTF-8 bytes,
then every --pubkey-seed as the 32 bytes of a public key.

Example:
  solapi pda derive --program TRBZyQHB3m68FGeVsqTK39Wm4xejadjVhP5MAZaKWDM \
    --seed prereqs --pubkey-seed <USER>`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "program",
				Aliases:  []string{"p"},
				Usage:    "Program ID",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "seed",
				Usage: "UTF-8 seed (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "pubkey-seed",
				Usage: "Public key seed (repeatable)",
			},
		},
		Action: func(c *cli.Context) error {
			program, err := solana.ParsePublicKey(c.String("program"))
			if err != nil {
				return err
			}
			var seeds [][]byte
			for _, s := range c.StringSlice("seed") {
				seeds = append(seeds, []byte(s))
			}
			for _, s := range c.StringSlice("pubkey-seed") {
				key, err := solana.ParsePublicKey(s)
				if err != nil {
					return err
				}
				seeds = append(seeds, key.Bytes())
			}
			if len(seeds) == 0 {
				return fmt.Errorf("at least one --seed or --pubkey-seed is required")
			}

			derived, err := solana.FindAddress(program, seeds...)
			if err != nil {
				return err
			}
			return printDerived(c, derived)
		},
	}
}

func ataCommand() *cli.Command {
	return &cli.Command{
		Name:  "ata",
		Usage: "Derive the associated token account of an owner and mint",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "owner", Usage: "Wallet address", Required: true},
			&cli.StringFlag{Name: "mint", Usage: "Token mint", Required: true},
		},
		Action: func(c *cli.Context) error {
			owner, err := solana.ParsePublicKey(c.String("owner"))
			if err != nil {
				return err
			}
			mint, err := solana.ParsePublicKey(c.String("mint"))
			if err != nil {
				return err
			}
			derived, err := solana.FindAssociatedTokenAddress(owner, mint)
			if err != nil {
				return err
			}
			return printDerived(c, derived)
		},
	}
}

func metadataCommand() *cli.Command {
	return &cli.Command{
		Name:  "metadata",
		Usage: "Derive the Metaplex token metadata account of a mint",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mint", Usage: "Token mint", Required: true},
		},
		Action: func(c *cli.Context) error {
			mint, err := solana.ParsePublicKey(c.String("mint"))
			if err != nil {
				return err
			}
			derived, err := solana.FindMetadataAddress(mint)
			if err != nil {
				return err
			}
			return printDerived(c, derived)
		},
	}
}

func printDerived(c *cli.Context, derived solana.DerivedAddress) error {
	if jsonOutput(c) {
		return outputJSON(c, map[string]interface{}{
			"address": derived.Address.String(),
			"bump":    derived.Bump,
		})
	}
	printf("%s (bump %d)\n", derived.Address, derived.Bump)
	return nil
}
