package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/kora/service/config"
)

func validateConfigCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate a relayer config file and optional signer config",
		ArgsUsage: "CONFIG_TOML",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "signers",
				Usage: "Signer pool config file to validate alongside",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("config file is required")
			}

			cfg, err := config.Load(c.Args().Get(0))
			if err != nil {
				return err
			}

			errs, warns := cfg.Validate()
			for _, w := range warns {
				fmt.Printf("warning: %s\n", w)
			}
			for _, e := range errs {
				fmt.Printf("error: %v\n", e)
			}

			if signersPath := c.String("signers"); signersPath != "" {
				signerCfg, err := config.LoadSignerPool(signersPath)
				if err != nil {
					return err
				}
				for _, e := range signerCfg.Validate() {
					errs = append(errs, e)
					fmt.Printf("error: %v\n", e)
				}
			}

			if len(errs) > 0 {
				return fmt.Errorf("config has %d error(s)", len(errs))
			}
			fmt.Println("config is valid")
			return nil
		},
	}
}
