package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "solapi",
		Usage: "Solana HTTP gateway operator CLI",
		Description: `A command-line tool for working with Solana wallets and the solapi gateway.

Wallet, rpc, pda and prereq commands talk to Solana directly. The api command
goes through a running gateway. db, temporal and events inspect the transfer
tracking pipeline.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			walletCommands(),
			rpcCommands(),
			pdaCommands(),
			prereqCommands(),
			apiCommands(),
			// Database inspection commands
			{
				Name:  "db",
				Usage: "Transfer audit log inspection commands",
				Subcommands: []*cli.Command{
					listTransfersCommand(),
					getTransferCommand(),
					migrateCommand(),
				},
			},
			// Temporal inspection and management commands
			{
				Name:  "temporal",
				Usage: "Transfer tracking inspection and management commands",
				Subcommands: []*cli.Command{
					describeScheduleCommand(),
					pauseScheduleCommand(),
					resumeScheduleCommand(),
					deleteScheduleCommand(),
					upsertScheduleCommand(),
					reconcileCommand(),
					trackCommand(),
					trackResultCommand(),
				},
			},
			// NATS transfer event commands
			{
				Name:  "events",
				Usage: "NATS transfer event commands",
				Subcommands: []*cli.Command{
					watchEventsCommand(),
					inspectStreamCommand(),
				},
			},
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: globalFlags(),
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "rpc-url",
			Usage:   "Solana RPC endpoint",
			EnvVars: []string{"SOLANA_RPC_URL"},
			Value:   "https://api.devnet.solana.com",
		},
		&cli.StringFlag{
			Name:    "commitment",
			Usage:   "Commitment level for reads and confirmations (processed, confirmed, finalized)",
			EnvVars: []string{"SOLANA_COMMITMENT"},
			Value:   "confirmed",
		},
		&cli.StringFlag{
			Name:    "explorer-cluster",
			Usage:   "Cluster used in explorer links",
			EnvVars: []string{"EXPLORER_CLUSTER"},
			Value:   "devnet",
		},
		&cli.StringFlag{
			Name:    "server-url",
			Usage:   "solapi gateway URL",
			EnvVars: []string{"SERVER_URL"},
			Value:   "http://localhost:8080",
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Database connection URL",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "temporal-host",
			Usage:   "Temporal server address",
			EnvVars: []string{"TEMPORAL_HOST"},
			Value:   "localhost:7233",
		},
		&cli.StringFlag{
			Name:    "temporal-namespace",
			Usage:   "Temporal namespace",
			EnvVars: []string{"TEMPORAL_NAMESPACE"},
			Value:   "default",
		},
		&cli.StringFlag{
			Name:    "temporal-task-queue",
			Usage:   "Temporal task queue of the solapi worker",
			EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
			Value:   "solapi-transfers",
		},
		&cli.StringFlag{
			Name:    "nats-url",
			Usage:   "NATS server URL",
			EnvVars: []string{"NATS_URL"},
			Value:   "nats://localhost:4222",
		},
		&cli.BoolFlag{
			Name:    "json",
			Aliases: []string{"j"},
			Usage:   "Output in JSON format",
		},
		&cli.StringSliceFlag{
			Name:  "jq",
			Usage: "jq filter applied to JSON output (repeatable, applied in order; implies --json)",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Log debug output to stderr",
		},
	}
}
