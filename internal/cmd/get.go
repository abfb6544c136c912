package cmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/niels/nweb/pkg/logging"
	"github.com/niels/nweb/pkg/retry"
	"github.com/spf13/cobra"
)

func newGetCmd(opts *options) *cobra.Command {
	var timeout int

	getCmd := &cobra.Command{
		Use:          "get <host:port> [path]",
		Short:        "Send one GET request and print the raw response",
		Args:         cobra.RangeArgs(1, 2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/"
			if len(args) == 2 {
				path = args[1]
			}

			retryOpts := retry.FromConfig(opts.cfg)
			retryOpts.IsRetryableFunc = retry.IsConnRefused
			retryOpts.Logger = func(format string, args ...interface{}) {
				logging.Debug(fmt.Sprintf(format, args...))
			}

			return fetch(cmd.Context(), cmd.OutOrStdout(), args[0], path, time.Duration(timeout)*time.Second, retryOpts)
		},
	}

	getCmd.Flags().IntVar(&timeout, "timeout", 10, "Connect and read timeout in seconds, 0 disables")
	return getCmd
}

// fetch sends a single GET for path to addr and copies the raw response to w
func fetch(ctx context.Context, w io.Writer, addr, path string, timeout time.Duration, retryOpts retry.Options) error {
	dialer := net.Dialer{Timeout: timeout}

	var conn net.Conn
	err := retry.Do(ctx, func() error {
		c, err := dialer.DialContext(ctx, "tcp", addr)
		conn = c
		return err
	}, retryOpts)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	if _, err := fmt.Fprintf(conn, "GET %s HTTP/1.1\r\nHost: %s\r\n\r\n", path, addr); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	n, err := io.Copy(w, conn)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if n == 0 {
		logging.Warn("Server closed the connection without a response")
	}

	logging.DebugWith("Response received", map[string]interface{}{
		"address": addr,
		"path":    path,
		"bytes":   n,
	})
	return nil
}
