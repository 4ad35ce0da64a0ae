// Command sharpremote-demo is a small client/server pair exercising the
// endpoint runtime end to end: an Echo servant hosted on the serve side, a
// proxy call against it from the connect side.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/carlosrabelo/sharpremote/internal/endpoint"
	"github.com/carlosrabelo/sharpremote/internal/grain"
	"github.com/carlosrabelo/sharpremote/internal/serializer"
	"github.com/carlosrabelo/sharpremote/pkg/logger"
)

const echoInterface = "Echo"
const echoMethod = "Echo"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sharpremote-demo",
		Short: "demonstrates the sharpremote endpoint runtime with a toy Echo servant",
	}
	root.AddCommand(newServeCmd(), newConnectCmd())
	return root
}

func withSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "host an Echo servant and wait for one peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withSignals(context.Background())
			defer cancel()

			e := endpoint.New(endpoint.Options{Name: "sharpremote-demo-server", OfferCompress: true})
			e.Registry.CreateServant(echoInterface, &echoServant{})

			ln, err := e.Bind(addr)
			if err != nil {
				return err
			}
			defer ln.Close()

			color.Green("sharpremote-demo: listening on %s, waiting for a peer...", ln.Addr())
			return e.Serve(ctx, ln)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:17321", "address to listen on")
	return cmd
}

func newConnectCmd() *cobra.Command {
	var addr, message string
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "connect to a serve instance and call Echo",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withSignals(context.Background())
			defer cancel()

			e := endpoint.New(endpoint.Options{Name: "sharpremote-demo-client", OfferCompress: true})
			if err := e.Connect(ctx, addr); err != nil {
				return err
			}
			defer e.Dispose()

			codec := serializer.NewBinaryCodec()
			var buf bytes.Buffer
			if err := codec.WriteString(&buf, message); err != nil {
				return err
			}

			// The server registers its Echo servant first, so it is
			// guaranteed grain id 1 (the allocator's first issued id).
			proxy := e.Registry.CreateProxy(grain.ID(1), echoInterface)
			result, isFault, err := proxy.Invoke(echoInterface, echoMethod, buf.Bytes())
			if err != nil {
				return err
			}
			if isFault {
				return fmt.Errorf("remote call faulted: %s", string(result))
			}

			reply, err := codec.ReadString(bytes.NewReader(result))
			if err != nil {
				return err
			}
			color.Cyan("echo reply: %s", reply)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:17321", "server address")
	cmd.Flags().StringVar(&message, "message", "hello from sharpremote-demo", "message to echo")
	return cmd
}

// echoServant implements endpoint.Invoker, reflecting a single string
// argument back to the caller.
type echoServant struct{}

func (echoServant) Invoke(interfaceName, methodName string, args []byte) ([]byte, bool, error) {
	if interfaceName != echoInterface || methodName != echoMethod {
		logger.Default.Warn("unexpected call %s.%s on echo servant", interfaceName, methodName)
		return nil, true, fmt.Errorf("unknown method %s.%s", interfaceName, methodName)
	}

	codec := serializer.NewBinaryCodec()
	msg, err := codec.ReadString(bytes.NewReader(args))
	if err != nil {
		return nil, true, err
	}

	var buf bytes.Buffer
	if err := codec.WriteString(&buf, "echo: "+msg); err != nil {
		return nil, true, err
	}
	return buf.Bytes(), false, nil
}
