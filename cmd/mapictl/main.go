// Command mapictl calls the running application's bridge namespaces over its
// IPC endpoint.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"aigcpanel/internal/ipc"
	"aigcpanel/internal/mapi"
)

var (
	endpointFlag string
	pipeNameFlag string
	timeoutFlag  time.Duration
)

// connectFn is replaced in tests.
var connectFn = func(ctx context.Context, endpoint string) (*mapi.Client, error) {
	bc, err := ipc.Connect(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return mapi.NewClient(bc), nil
}

var rootCmd = &cobra.Command{
	Use:           "mapictl [command]",
	Short:         "mapictl: call the AigcPanel bridge",
	Long:          `mapictl connects to a running AigcPanel instance and calls its namespaces.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&endpointFlag, "endpoint", "", "pipe or socket path (default: per-user endpoint)")
	rootCmd.PersistentFlags().StringVar(&pipeNameFlag, "pipe-name", "", "configured bridge pipe name, used when --endpoint is empty")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 10*time.Second, "per-command timeout")
}

func resolveEndpoint() string {
	if endpointFlag != "" {
		return endpointFlag
	}
	if pipeNameFlag != "" {
		return ipc.EndpointForName(pipeNameFlag)
	}
	return ipc.DefaultEndpoint()
}

// withClient connects, runs fn and closes the connection.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *mapi.Client) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
	defer cancel()

	endpoint := resolveEndpoint()
	client, err := connectFn(ctx, endpoint)
	if err != nil {
		if ipc.IsConnectionError(err) {
			return fmt.Errorf("AigcPanel is not running (endpoint %s)", endpoint)
		}
		return fmt.Errorf("connect to %s: %w", endpoint, err)
	}
	defer client.Close()
	return fn(ctx, client)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "mapictl:", err)
		os.Exit(1)
	}
}
