package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/kora/client"
)

// newClient builds a relayer client from the global flags.
func newClient(c *cli.Context) *client.Client {
	var opts []client.Option
	if key := c.String("api-key"); key != "" {
		opts = append(opts, client.WithAPIKey(key))
	}
	if secret := c.String("hmac-secret"); secret != "" {
		opts = append(opts, client.WithHMACSecret(secret))
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	httpClient := &http.Client{Timeout: 60 * time.Second}
	return client.NewClient(c.String("server"), httpClient, logger, opts...)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func livenessCommand() *cli.Command {
	return &cli.Command{
		Name:  "liveness",
		Usage: "Check that the relayer is up",
		Action: func(c *cli.Context) error {
			if err := newClient(c).Liveness(context.Background()); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
}

func getConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "get-config",
		Usage: "Fetch the relayer's public configuration",
		Action: func(c *cli.Context) error {
			cfg, err := newClient(c).GetConfig(context.Background())
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
}

func supportedTokensCommand() *cli.Command {
	return &cli.Command{
		Name:  "supported-tokens",
		Usage: "List the mints the relayer will transact",
		Action: func(c *cli.Context) error {
			tokens, err := newClient(c).GetSupportedTokens(context.Background())
			if err != nil {
				return err
			}
			return printJSON(tokens)
		},
	}
}

func payerSignerCommand() *cli.Command {
	return &cli.Command{
		Name:  "payer-signer",
		Usage: "Ask the pool for a fee payer address",
		Action: func(c *cli.Context) error {
			signer, err := newClient(c).GetPayerSigner(context.Background())
			if err != nil {
				return err
			}
			return printJSON(signer)
		},
	}
}

func blockhashCommand() *cli.Command {
	return &cli.Command{
		Name:  "blockhash",
		Usage: "Fetch a recent blockhash",
		Action: func(c *cli.Context) error {
			bh, err := newClient(c).GetBlockhash(context.Background())
			if err != nil {
				return err
			}
			fmt.Println(bh)
			return nil
		},
	}
}

func estimateFeeCommand() *cli.Command {
	return &cli.Command{
		Name:      "estimate-fee",
		Usage:     "Price a base64-encoded transaction",
		ArgsUsage: "TRANSACTION_BASE64",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "fee-token",
				Usage: "Also price the fee in this mint's base units",
			},
			&cli.StringFlag{
				Name:  "signer-key",
				Usage: "Pin the estimate to a specific pool signer",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("transaction is required")
			}
			estimate, err := newClient(c).EstimateTransactionFee(context.Background(), c.Args().Get(0), client.EstimateOptions{
				FeeToken:  c.String("fee-token"),
				SignerKey: c.String("signer-key"),
			})
			if err != nil {
				return err
			}
			return printJSON(estimate)
		},
	}
}

func signCommand() *cli.Command {
	return &cli.Command{
		Name:      "sign",
		Usage:     "Sign a base64-encoded transaction",
		ArgsUsage: "TRANSACTION_BASE64",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "signer-key",
				Usage: "Pin signing to a specific pool signer",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("transaction is required")
			}
			signed, err := newClient(c).SignTransaction(context.Background(), c.Args().Get(0), c.String("signer-key"))
			if err != nil {
				return err
			}
			return printJSON(signed)
		},
	}
}

func signAndSendCommand() *cli.Command {
	return &cli.Command{
		Name:      "sign-and-send",
		Usage:     "Sign a transaction and submit it to the chain",
		ArgsUsage: "TRANSACTION_BASE64",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "signer-key",
				Usage: "Pin signing to a specific pool signer",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("transaction is required")
			}
			signed, err := newClient(c).SignAndSendTransaction(context.Background(), c.Args().Get(0), c.String("signer-key"))
			if err != nil {
				return err
			}
			return printJSON(signed)
		},
	}
}

func transferCommand() *cli.Command {
	return &cli.Command{
		Name:  "transfer",
		Usage: "Compose an unsigned transfer transaction",
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:     "amount",
				Usage:    "Amount in base units",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "token",
				Usage:    "Token mint (native mint for SOL)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "source",
				Usage:    "Sending wallet",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "destination",
				Usage:    "Receiving wallet",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "signer-key",
				Usage: "Pin the fee payer to a specific pool signer",
			},
		},
		Action: func(c *cli.Context) error {
			built, err := newClient(c).TransferTransaction(
				context.Background(),
				c.Uint64("amount"),
				c.String("token"),
				c.String("source"),
				c.String("destination"),
				c.String("signer-key"),
			)
			if err != nil {
				return err
			}
			return printJSON(built)
		},
	}
}
