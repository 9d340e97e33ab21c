package cmd

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/theapemachine/recall/pkg/retrieval"
	"github.com/theapemachine/recall/pkg/tools"
)

var (
	transportFlag   string
	addrFlag        string
	metricsAddrFlag string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the memory tools over MCP",
		Long:  longServe,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			hub, err := newHub(ctx)

			if err != nil {
				return err
			}

			defer func() {
				if err := hub.Close(context.WithoutCancel(ctx)); err != nil {
					log.Error("failed to close memory", "error", err)
				}
			}()

			srv := tools.NewServer(hub, version)
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			group, ctx := errgroup.WithContext(ctx)

			if metricsAddrFlag != "" {
				group.Go(func() error {
					return serveMetrics(ctx, hub)
				})
			}

			group.Go(func() error {
				defer cancel()

				switch transportFlag {
				case "sse":
					return serveSSE(ctx, srv)
				default:
					return serveStdio(ctx, srv, os.Stdin, os.Stdout)
				}
			})

			return group.Wait()
		},
	}
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&transportFlag, "transport", "stdio", "MCP transport, stdio or sse")
	serveCmd.Flags().StringVar(&addrFlag, "addr", "0.0.0.0:3210", "address the sse transport listens on")
	serveCmd.Flags().StringVar(&metricsAddrFlag, "metrics-addr", "", "address for the prometheus /metrics endpoint, empty disables it")
}

/*
serveStdio runs the stdio transport until input ends or ctx is cancelled, so
a failing sibling in the serve group stops it too.
*/
func serveStdio(ctx context.Context, srv *server.MCPServer, in io.Reader, out io.Writer) error {
	log.Info("serving memory tools", "transport", "stdio")

	err := server.NewStdioServer(srv).Listen(ctx, in, out)

	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

func serveSSE(ctx context.Context, srv *server.MCPServer) error {
	sse := server.NewSSEServer(srv)

	go func() {
		<-ctx.Done()

		shutdown, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := sse.Shutdown(shutdown); err != nil {
			log.Error("failed to stop sse server", "error", err)
		}
	}()

	log.Info("serving memory tools", "transport", "sse", "addr", addrFlag)

	if err := sse.Start(addrFlag); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func serveMetrics(ctx context.Context, hub *retrieval.Hub) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(hub.Metrics().Registry(), promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              metricsAddrFlag,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	log.Info("serving metrics", "addr", metricsAddrFlag)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

var longServe = `
Serve the memory tools to MCP clients. Every tool takes a user_id, and each
user gets an independent memory.

Examples:
  # Serve over stdio for a local MCP client
  recall serve

  # Serve over SSE with prometheus metrics
  recall serve --transport sse --addr 0.0.0.0:3210 --metrics-addr :9090
`
