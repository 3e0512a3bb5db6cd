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
	app := &cli.App{
		Name:  "kora",
		Usage: "Solana gasless relayer CLI",
		Description: `A command-line tool for operating and debugging a kora relayer.

Use this CLI to validate configuration, inspect a running relayer, and
submit transactions for fee-payer signing.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Configuration commands",
				Subcommands: []*cli.Command{
					validateConfigCommand(),
				},
			},
			{
				Name:  "rpc",
				Usage: "Relayer RPC commands",
				Subcommands: []*cli.Command{
					livenessCommand(),
					getConfigCommand(),
					supportedTokensCommand(),
					payerSignerCommand(),
					blockhashCommand(),
					estimateFeeCommand(),
					signCommand(),
					signAndSendCommand(),
					transferCommand(),
				},
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Relayer server URL",
				EnvVars: []string{"KORA_SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "API key sent as x-api-key",
				EnvVars: []string{"KORA_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "hmac-secret",
				Usage:   "HMAC secret used to sign request bodies",
				EnvVars: []string{"KORA_HMAC_SECRET"},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
