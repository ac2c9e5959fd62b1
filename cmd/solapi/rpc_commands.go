package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/brojonat/solapi/service/solana"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/urfave/cli/v2"
)

// newRPCClient is replaced in tests.
var newRPCClient = solana.NewRPCClient

const defaultConfirmTimeout = 60 * time.Second

func newSolanaClient(c *cli.Context) *solana.Client {
	rpcURL := c.String("rpc-url")
	confirmTimeout := c.Duration("confirm-timeout")
	if confirmTimeout <= 0 {
		confirmTimeout = defaultConfirmTimeout
	}
	return solana.NewClient(
		newRPCClient(rpcURL),
		solana.EndpointLabel(rpcURL),
		nil,
		newLogger(c),
		solana.WithCommitment(rpc.CommitmentType(c.String("commitment"))),
		solana.WithConfirmation(confirmTimeout, 500*time.Millisecond),
	)
}

func confirmTimeoutFlag() *cli.DurationFlag {
	return &cli.DurationFlag{
		Name:  "confirm-timeout",
		Usage: "How long to wait for the transaction to reach the commitment level",
		Value: defaultConfirmTimeout,
	}
}

func rpcCommands() *cli.Command {
	return &cli.Command{
		Name:  "rpc",
		Usage: "Commands that talk to a Solana RPC node directly",
		Subcommands: []*cli.Command{
			rpcVersionCommand(),
			rpcBalanceCommand(),
			rpcTransactionCommand(),
			airdropCommand(),
			rpcTransferCommand(),
			emptyCommand(),
			signVerifyCommand(),
		},
	}
}

func rpcVersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the solana-core version of the RPC node",
		Action: func(c *cli.Context) error {
			v, err := newSolanaClient(c).Version(c.Context)
			if err != nil {
				return err
			}
			if jsonOutput(c) {
				return outputJSON(c, map[string]string{
					"endpoint":    solana.EndpointLabel(c.String("rpc-url")),
					"solana_core": v,
				})
			}
			printf("%s (%s)\n", v, solana.EndpointLabel(c.String("rpc-url")))
			return nil
		},
	}
}

func rpcBalanceCommand() *cli.Command {
	return &cli.Command{
		Name:      "balance",
		Usage:     "Get the balance of an address",
		ArgsUsage: "ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("address is required")
			}
			address, err := solana.ParsePublicKey(c.Args().First())
			if err != nil {
				return err
			}
			lamports, err := newSolanaClient(c).GetBalance(c.Context, address)
			if err != nil {
				return err
			}
			if jsonOutput(c) {
				return outputJSON(c, map[string]interface{}{
					"address":  address.String(),
					"balance":  solana.LamportsToSOL(lamports),
					"lamports": lamports,
				})
			}
			printf("%s SOL (%d lamports)\n", formatSOL(lamports), lamports)
			return nil
		},
	}
}

func rpcTransactionCommand() *cli.Command {
	return &cli.Command{
		Name:      "transaction",
		Aliases:   []string{"tx"},
		Usage:     "Fetch a transaction and decode its transfers",
		ArgsUsage: "SIGNATURE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("signature is required")
			}
			sig, err := solana.ParseSignature(c.Args().First())
			if err != nil {
				return err
			}
			tx, err := newSolanaClient(c).GetTransaction(c.Context, sig)
			if err != nil {
				return err
			}
			if jsonOutput(c) {
				return outputJSON(c, transactionOutput(tx))
			}

			printf("Signature: %s\n", tx.Signature)
			printf("  Slot:    %d\n", tx.Slot)
			if tx.BlockTime != nil {
				printf("  Time:    %s\n", time.Unix(*tx.BlockTime, 0).UTC().Format(time.RFC3339))
			}
			printf("  Success: %t\n", tx.Success)
			if tx.Fee != nil {
				printf("  Fee:     %d lamports\n", *tx.Fee)
			}
			if tx.Err != nil {
				printf("  Error:   %s\n", *tx.Err)
			}
			if tx.Memo != nil {
				printf("  Memo:    %s\n", *tx.Memo)
			}
			for _, t := range tx.Transfers {
				printf("  %s transfer: %s -> %s (%d)\n", t.Program, t.Source, t.Destination, t.Amount)
			}
			printf("  Explorer: %s\n", solana.ExplorerTxURL(tx.Signature, c.String("explorer-cluster")))
			return nil
		},
	}
}

func transactionOutput(tx *solana.TransactionInfo) map[string]interface{} {
	accounts := tx.Accounts
	if accounts == nil {
		accounts = []string{}
	}
	return map[string]interface{}{
		"signature":  tx.Signature,
		"slot":       tx.Slot,
		"block_time": tx.BlockTime,
		"success":    tx.Success,
		"fee":        tx.Fee,
		"error":      tx.Err,
		"memo":       tx.Memo,
		"accounts":   accounts,
		"transfers":  tx.Transfers,
	}
}

func airdropCommand() *cli.Command {
	return &cli.Command{
		Name:      "airdrop",
		Usage:     "Request SOL from the devnet or testnet faucet",
		ArgsUsage: "ADDRESS",
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:  "amount",
				Usage: "Amount in SOL",
				Value: 1,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("address is required")
			}
			address, err := solana.ParsePublicKey(c.Args().First())
			if err != nil {
				return err
			}
			lamports, err := solana.SOLToLamports(c.Float64("amount"))
			if err != nil {
				return err
			}
			sig, err := newSolanaClient(c).RequestAirdrop(c.Context, address, lamports)
			if err != nil {
				return err
			}
			return printSubmitted(c, "airdrop", sig.String(), lamports)
		},
	}
}

func rpcTransferCommand() *cli.Command {
	return &cli.Command{
		Name:  "transfer",
		Usage: "Sign and send a SOL transfer from a local keypair",
		Flags: []cli.Flag{
			keypairFlag(true),
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
			confirmTimeoutFlag(),
		},
		Action: func(c *cli.Context) error {
			signer, err := solana.LoadKeypairFile(c.String("keypair"))
			if err != nil {
				return err
			}
			to, err := solana.ParsePublicKey(c.String("to"))
			if err != nil {
				return err
			}
			lamports, err := solana.SOLToLamports(c.Float64("amount"))
			if err != nil {
				return err
			}

			result, err := newSolanaClient(c).Transfer(c.Context, solana.TransferParams{
				Signer:   signer,
				To:       to,
				Lamports: lamports,
				Memo:     c.String("memo"),
			})
			return printTransferResult(c, result, err)
		},
	}
}

func emptyCommand() *cli.Command {
	return &cli.Command{
		Name:  "empty",
		Usage: "Send the whole balance of a keypair, minus the fee, to another address",
		Flags: []cli.Flag{
			keypairFlag(true),
			&cli.StringFlag{
				Name:     "to",
				Usage:    "Recipient address",
				Required: true,
			},
			confirmTimeoutFlag(),
		},
		Action: func(c *cli.Context) error {
			signer, err := solana.LoadKeypairFile(c.String("keypair"))
			if err != nil {
				return err
			}
			to, err := solana.ParsePublicKey(c.String("to"))
			if err != nil {
				return err
			}
			result, err := newSolanaClient(c).EmptyWallet(c.Context, signer, to)
			return printTransferResult(c, result, err)
		},
	}
}

func signVerifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "sign-verify",
		Usage: "Sign a message with a keypair and verify it against the public key",
		Flags: []cli.Flag{
			keypairFlag(true),
			&cli.StringFlag{
				Name:  "message",
				Usage: "Message to sign",
				Value: "I verify my solana Keypair!",
			},
		},
		Action: func(c *cli.Context) error {
			key, err := solana.LoadKeypairFile(c.String("keypair"))
			if err != nil {
				return err
			}
			sig, ok, err := solana.VerifyKeypair(key, []byte(c.String("message")))
			if err != nil {
				return err
			}
			if jsonOutput(c) {
				return outputJSON(c, map[string]interface{}{
					"public_key": key.PublicKey().String(),
					"signature":  sig.String(),
					"verified":   ok,
				})
			}
			if !ok {
				return fmt.Errorf("signature %s does not verify against %s", sig, key.PublicKey())
			}
			printf("✓ Signature verified\n")
			printf("  Public key: %s\n", key.PublicKey())
			printf("  Signature:  %s\n", sig)
			return nil
		},
	}
}

// printTransferResult reports a transfer. A submitted transfer that did not
// confirm still prints its signature before the error is returned.
func printTransferResult(c *cli.Context, result *solana.TransferResult, err error) error {
	if result == nil {
		return err
	}
	if err != nil {
		printf("Transfer %s was submitted but not confirmed\n", result.Signature)
		printf("  Explorer: %s\n", solana.ExplorerTxURL(result.Signature.String(), c.String("explorer-cluster")))
		return err
	}

	if jsonOutput(c) {
		out := map[string]interface{}{
			"signature": result.Signature.String(),
			"from":      result.From.String(),
			"to":        result.To.String(),
			"lamports":  result.Lamports,
			"explorer":  solana.ExplorerTxURL(result.Signature.String(), c.String("explorer-cluster")),
		}
		if result.Status != nil {
			out["status"] = result.Status.Status
			out["slot"] = result.Status.Slot
		}
		return outputJSON(c, out)
	}

	printf("✓ Transferred %s SOL\n", formatSOL(result.Lamports))
	printf("  From:      %s\n", result.From)
	printf("  To:        %s\n", result.To)
	printf("  Signature: %s\n", result.Signature)
	if result.Status != nil {
		printf("  Status:    %s (slot %d)\n", result.Status.Status, result.Status.Slot)
	}
	printf("  Explorer:  %s\n", solana.ExplorerTxURL(result.Signature.String(), c.String("explorer-cluster")))
	return nil
}

func printSubmitted(c *cli.Context, kind, signature string, lamports uint64) error {
	explorer := solana.ExplorerTxURL(signature, c.String("explorer-cluster"))
	if jsonOutput(c) {
		return outputJSON(c, map[string]interface{}{
			"kind":      kind,
			"signature": signature,
			"lamports":  lamports,
			"explorer":  explorer,
		})
	}
	printf("✓ Requested %s SOL %s\n", formatSOL(lamports), kind)
	printf("  Signature: %s\n", signature)
	printf("  Explorer:  %s\n", explorer)
	return nil
}

func formatSOL(lamports uint64) string {
	return strconv.FormatFloat(solana.LamportsToSOL(lamports), 'f', -1, 64)
}

// withTimeout bounds a command's context.
func withTimeout(c *cli.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, d)
}
