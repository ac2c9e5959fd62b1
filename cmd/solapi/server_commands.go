package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/brojonat/solapi/client"
	"github.com/urfave/cli/v2"
)

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server health",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 5 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			serverURL := c.String("server-url")
			if serverURL == "" {
				return fmt.Errorf("server-url is required (set SERVER_URL env var or use --server-url)")
			}

			cl := client.NewClient(serverURL, &http.Client{Timeout: c.Duration("timeout")}, newLogger(c))
			health, err := cl.Health(c.Context)
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			if health["status"] != "healthy" {
				return fmt.Errorf("server reported status %q", health["status"])
			}

			if jsonOutput(c) {
				return outputJSON(c, health)
			}
			printf("✓ Server is healthy\n")
			printf("  URL: %s\n", serverURL)
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			printf("solapi CLI\n")
			printf("  Version: %s\n", version)
			printf("  Commit:  %s\n", commit)
			printf("  Built:   %s\n", date)
			return nil
		},
	}
}
