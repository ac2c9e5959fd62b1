package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/brojonat/solapi/service/solana"
	"github.com/urfave/cli/v2"
)

func walletCommands() *cli.Command {
	return &cli.Command{
		Name:  "wallet",
		Usage: "Local keypair commands",
		Subcommands: []*cli.Command{
			keygenCommand(),
			toBase58Command(),
			fromBase58Command(),
			pubkeyCommand(),
		},
	}
}

func keygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Generate a new keypair",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Write the keypair to this file in solana-keygen format instead of printing it",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite --out if it exists",
			},
		},
		Action: func(c *cli.Context) error {
			key, err := solana.GenerateKeypair()
			if err != nil {
				return err
			}

			out := c.String("out")
			if out != "" {
				if _, err := os.Stat(out); err == nil && !c.Bool("force") {
					return fmt.Errorf("%s already exists (use --force to overwrite)", out)
				}
				if err := solana.WriteKeypairFile(out, key); err != nil {
					return err
				}
			}

			if jsonOutput(c) {
				result := map[string]interface{}{
					"public_key": key.PublicKey().String(),
				}
				if out != "" {
					result["file"] = out
				} else {
					result["keypair"] = solana.WalletJSON(key)
				}
				return outputJSON(c, result)
			}

			printf("✓ Generated keypair\n")
			printf("  Public key: %s\n", key.PublicKey())
			if out != "" {
				printf("  Written to: %s\n", out)
			} else {
				printf("  Keypair:    %s\n", solana.WalletJSON(key))
			}
			return nil
		},
	}
}

func toBase58Command() *cli.Command {
	return &cli.Command{
		Name:      "to-base58",
		Usage:     "Convert a solana-keygen byte array keypair to base58",
		ArgsUsage: "[KEYPAIR_FILE]",
		Description: `Reads the keypair file given as argument, or stdin when omitted.

Example:
  solapi wallet to-base58 ~/.config/solana/id.json`,
		Action: func(c *cli.Context) error {
			content, err := readInput(c.Args().First())
			if err != nil {
				return err
			}
			encoded, err := solana.WalletJSONToBase58(content)
			if err != nil {
				return err
			}
			if jsonOutput(c) {
				return outputJSON(c, map[string]string{"private_key": encoded})
			}
			printf("%s\n", encoded)
			return nil
		},
	}
}

func fromBase58Command() *cli.Command {
	return &cli.Command{
		Name:        "from-base58",
		Usage:       "Convert a base58 private key to the solana-keygen byte array format",
		ArgsUsage:   "[PRIVATE_KEY]",
		Description: `Reads the key given as argument, or stdin when omitted.`,
		Action: func(c *cli.Context) error {
			encoded := c.Args().First()
			if encoded == "" {
				content, err := readInput("")
				if err != nil {
					return err
				}
				encoded = string(content)
			}
			walletJSON, err := solana.Base58ToWalletJSON(strings.TrimSpace(encoded))
			if err != nil {
				return err
			}
			if jsonOutput(c) {
				return outputJSON(c, map[string]string{"keypair": walletJSON})
			}
			printf("%s\n", walletJSON)
			return nil
		},
	}
}

func pubkeyCommand() *cli.Command {
	return &cli.Command{
		Name:  "pubkey",
		Usage: "Print the public key of a keypair file",
		Flags: []cli.Flag{keypairFlag(true)},
		Action: func(c *cli.Context) error {
			key, err := solana.LoadKeypairFile(c.String("keypair"))
			if err != nil {
				return err
			}
			if jsonOutput(c) {
				return outputJSON(c, map[string]string{"public_key": key.PublicKey().String()})
			}
			printf("%s\n", key.PublicKey())
			return nil
		},
	}
}

func keypairFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "keypair",
		Aliases:  []string{"k"},
		Usage:    "Path to a solana-keygen keypair file",
		EnvVars:  []string{"SOLANA_KEYPAIR"},
		Required: required,
	}
}

// readInput reads path, or stdin when path is empty or "-".
func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		content, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return content, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return content, nil
}
