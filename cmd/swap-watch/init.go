package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

const sampleConfig = `version: 1
global:
  db_path: swap-watch.db
  confirmation_depth: 5
source:
  id: dai_usdc
  rpc_url: ${INFURA_WSS_ENDPOINT}
  contract: "0x5777d92f208679db4b9778590fa3cab3ac9e2168"
  event: Swap
tokens:
  a: { symbol: DAI, decimals: 18 }
  b: { symbol: USDC, decimals: 6 }
rules:
  - id: big_swaps
    where: ["amount_b > 100_000"]
    sinks: [slack]
    rate_limit: { capacity: 5, per_second: 0.5 }
sinks:
  - id: slack
    type: slack
    webhook_url: ${SLACK_WEBHOOK_URL}
`

const sampleEnv = `INFURA_WSS_ENDPOINT=wss://mainnet.infura.io/ws/v3/<project-id>
SLACK_WEBHOOK_URL=https://hooks.slack.com/services/<id>
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample config and .env",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if err := writeSample(cfgPath, sampleConfig, initForce); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", cfgPath)
		envPath := filepath.Join(filepath.Dir(cfgPath), ".env")
		if err := writeSample(envPath, sampleEnv, false); err != nil {
			if !errors.Is(err, os.ErrExist) {
				return err
			}
			fmt.Fprintf(out, "%s exists, left unchanged\n", envPath)
			return nil
		}
		fmt.Fprintf(out, "wrote %s\n", envPath)
		return nil
	},
}

func writeSample(path, body string, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if _, err := f.WriteString(body); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
