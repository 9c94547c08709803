package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/omercs/odatabatch/config"
	"github.com/omercs/odatabatch/decode"
	"github.com/omercs/odatabatch/logging"
)

// NewRootCmd creates the odatabatch command with its subcommands
func NewRootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:          "odatabatch",
		Short:        "Send OData batches described in yaml files",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level",
		config.EnvOrDefault(config.LOG_LEVEL_ENVIRONMENT_KEY, "ERROR"),
		"log level, one of TRACE, DEBUG, INFO or ERROR")

	newLogger := func(cmd *cobra.Command) (*logging.ServiceLogger, error) {
		logger, err := logging.NewWithWriter(logLevel, cmd.ErrOrStderr())
		if err != nil {
			return nil, err
		}
		return &logger, nil
	}

	cmd.AddCommand(newSendCmd(newLogger))
	cmd.AddCommand(newValidateCmd())

	return cmd
}

// readBatchFile decodes the batch file at path
func readBatchFile(path string) (decode.BatchEnvelope, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading batch file: %w", err)
	}

	envelope, err := decode.DecodeYAMLBatchEnvelope(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid batch file %s: %w", path, err)
	}

	return envelope, nil
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a batch file without sending it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			envelope, err := readBatchFile(args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "batch file is valid: %d operations in %d items\n", envelope.Len(), len(envelope))

			return nil
		},
	}
}
