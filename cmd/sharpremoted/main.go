// Command sharpremoted is the reference out-of-process host executable: the
// child side of the silo protocol (spec §4.7). Its entire user-facing
// surface is the three-line stdout handshake; besides the parent PID
// positional argument the parent always supplies, it takes only a --name
// flag for the name presented during the endpoint handshake.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/carlosrabelo/sharpremote/internal/endpoint"
	"github.com/carlosrabelo/sharpremote/internal/silo"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var endpointName string

	cmd := &cobra.Command{
		Use:   "sharpremoted <parent-pid>",
		Short: "out-of-process remoting host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				cancel()
			}()

			return silo.Run(ctx, args[0], silo.ChildOptions{
				EndpointName:  endpointName,
				OfferCompress: true,
				Configure:     configureHost,
			})
		},
	}

	cmd.Flags().StringVar(&endpointName, "name", "sharpremoted", "name this host presents during the handshake")
	return cmd
}

// configureHost is the hook for registering the servant types this host can
// instantiate on behalf of a peer's SubjectHost.InstantiateByTypeName calls.
// This reference host registers none; embedders of this binary register
// their own types here.
func configureHost(e *endpoint.Endpoint) {
	_ = e
}
