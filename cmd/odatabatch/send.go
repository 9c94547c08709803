package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/omercs/odatabatch/batch"
	"github.com/omercs/odatabatch/client"
	"github.com/omercs/odatabatch/config"
	"github.com/omercs/odatabatch/logging"
)

const (
	outputText = "text"
	outputJSON = "json"
)

type sendOptions struct {
	serviceRoot   string
	timeout       time.Duration
	retries       int
	retryInterval time.Duration
	output        string
	dryRun        bool
}

// itemOutput is the json form of one printed item
type itemOutput struct {
	Status        int                 `json:"status"`
	StatusMessage string              `json:"status_message,omitempty"`
	ContentID     string              `json:"content_id,omitempty"`
	ChangeSet     string              `json:"changeset,omitempty"`
	Headers       map[string][]string `json:"headers,omitempty"`
	Body          []byte              `json:"body,omitempty"`
}

func newSendCmd(newLogger func(*cobra.Command) (*logging.ServiceLogger, error)) *cobra.Command {
	var opts sendOptions

	cmd := &cobra.Command{
		Use:   "send FILE",
		Short: "Send a batch file to an OData service",
		Example: `  # Send a batch and print every item
  odatabatch send --service-root https://services.odata.org/V2/OData/OData.svc batch.yaml

  # Print the encoded batch instead of sending it
  odatabatch send --dry-run batch.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd)
			if err != nil {
				return err
			}
			return runSend(cmd, args[0], opts, logger)
		},
	}

	cmd.Flags().StringVar(&opts.serviceRoot, "service-root",
		config.EnvOrDefault(config.UPSTREAM_SERVICE_ROOT_URL_ENVIRONMENT_KEY, ""),
		"service root url of the OData service")
	cmd.Flags().DurationVar(&opts.timeout, "timeout",
		time.Duration(config.EnvOrDefaultInt64(config.UPSTREAM_TIMEOUT_SECONDS_ENVIRONMENT_KEY, config.DEFAULT_UPSTREAM_TIMEOUT_SECONDS))*time.Second,
		"timeout of the whole batch exchange")
	cmd.Flags().IntVar(&opts.retries, "retries",
		config.EnvOrDefaultInt(config.UPSTREAM_RETRY_MAX_ATTEMPTS_ENVIRONMENT_KEY, config.DEFAULT_UPSTREAM_RETRY_MAX_ATTEMPTS),
		"number of attempts when the service can not be reached")
	cmd.Flags().DurationVar(&opts.retryInterval, "retry-interval",
		time.Duration(config.EnvOrDefaultInt64(config.UPSTREAM_RETRY_INTERVAL_MILLISECONDS_ENVIRONMENT_KEY, config.DEFAULT_UPSTREAM_RETRY_INTERVAL_MILLISECONDS))*time.Millisecond,
		"wait between attempts")
	cmd.Flags().StringVarP(&opts.output, "output", "o", outputText, "output format, text or json")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print the encoded batch without sending it")

	return cmd
}

func runSend(cmd *cobra.Command, path string, opts sendOptions, logger *logging.ServiceLogger) error {
	if opts.output != outputText && opts.output != outputJSON {
		return fmt.Errorf("unknown output format %q", opts.output)
	}

	envelope, err := readBatchFile(path)
	if err != nil {
		return err
	}

	b := envelope.Batch()

	if opts.dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "Content-Type: %s\n\n", b.ContentType())
		_, err := b.WriteTo(cmd.OutOrStdout())
		return err
	}

	if opts.serviceRoot == "" {
		return fmt.Errorf("--service-root or %s is required", config.UPSTREAM_SERVICE_ROOT_URL_ENVIRONMENT_KEY)
	}

	c, err := client.New(client.Config{
		ServiceRootURL:   opts.serviceRoot,
		Timeout:          opts.timeout,
		RetryMaxAttempts: opts.retries,
		RetryInterval:    opts.retryInterval,
	}, logger)
	if err != nil {
		return err
	}

	res, err := c.Execute(cmd.Context(), b)
	if err != nil {
		return err
	}
	defer res.Close()

	if opts.output == outputJSON {
		return printJSON(cmd.OutOrStdout(), res)
	}

	for n := 1; ; n++ {
		item, err := res.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading batch item %d: %w", n, err)
		}

		body, err := item.Bytes()
		if err != nil {
			return fmt.Errorf("error reading body of batch item %d: %w", n, err)
		}

		printItem(cmd.OutOrStdout(), n, item, body)
	}
}

// printJSON buffers every item and prints them as one json array
func printJSON(out io.Writer, res *batch.BatchResponse) error {
	results, err := res.All()
	if err != nil {
		return err
	}

	outputs := make([]itemOutput, 0, len(results))
	for _, result := range results {
		outputs = append(outputs, itemOutput{
			Status:        result.StatusCode,
			StatusMessage: result.StatusMessage,
			ContentID:     result.ContentID,
			ChangeSet:     result.ChangeSet,
			Headers:       result.Header.Map(),
			Body:          result.Body,
		})
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(outputs)
}

func printItem(out io.Writer, n int, item *batch.Response, body []byte) {
	fmt.Fprintf(out, "#%d %s", n, item.StartLine())
	if id := item.ContentID(); id != "" {
		fmt.Fprintf(out, " content-id=%s", id)
	}
	if cs := item.ChangeSet(); cs != "" {
		fmt.Fprintf(out, " changeset=%s", cs)
	}
	fmt.Fprintln(out)

	if len(body) > 0 {
		fmt.Fprintln(out, string(body))
	}
}
