package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"aigcpanel/internal/mapi"
)

func init() {
	rootCmd.AddCommand(cmdCall)
}

var cmdCall = &cobra.Command{
	Use:   "call <namespace.leaf> [arg...]",
	Short: "Call one bridge leaf and print its result as JSON",
	Long: `Each argument is sent as JSON when it parses as JSON and as a string
otherwise, so "mapictl call config.get theme light" works without quoting.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		callArgs, err := parseCallArgs(args[1:])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *mapi.Client) error {
			var out json.RawMessage
			if err := c.Bridge().Invoke(ctx, &out, args[0], callArgs...); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		})
	},
}

// parseCallArgs turns command-line words into bridge arguments.
func parseCallArgs(words []string) ([]any, error) {
	out := make([]any, 0, len(words))
	for i, word := range words {
		if json.Valid([]byte(word)) {
			out = append(out, json.RawMessage(word))
			continue
		}
		raw, err := json.Marshal(word)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out = append(out, json.RawMessage(raw))
	}
	return out, nil
}

func printJSON(w io.Writer, raw json.RawMessage) error {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
