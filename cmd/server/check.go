package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flagscore/gate/internal/limiter"
	"github.com/flagscore/gate/internal/transport"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newCheckCommand() *cobra.Command {
	var (
		addr    string
		gate    string
		key     string
		peek    bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Ask a running server's gRPC endpoint for a decision",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return fmt.Errorf("dial %s: %w", addr, err)
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client := transport.NewRateLimitClient(conn)
			call := client.Check
			if peek {
				call = client.Status
			}

			out, err := call(ctx, gate, key)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(out.AsMap())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:50051", "gRPC address of the server")
	cmd.Flags().StringVar(&gate, "gate", limiter.PresetStandard, "gate name")
	cmd.Flags().StringVar(&key, "key", "", "client key")
	cmd.Flags().BoolVar(&peek, "peek", false, "report the quota without consuming it")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}
