package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/olgasafonova/cbeta-mcp-server/internal/dependency"
)

const (
	transportStdio = "stdio"
	transportHTTP  = "http"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           dependency.ServerName,
		Short:         "MCP gateway for the CBETA Online API",
		Long:          "Exposes CBETA Online search, catalog and reading endpoints as MCP tools over stdio or HTTP.",
		Version:       dependency.ServerVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newToolsCmd())
	root.AddCommand(newCallCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var transport, addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tools over MCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if transport != transportStdio && transport != transportHTTP {
				return fmt.Errorf("unknown transport %q (want stdio or http)", transport)
			}

			// Graceful shutdown context.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				a.Close(shutdownCtx)
			}()

			a.logger.Info("Starting CBETA MCP Server",
				"name", dependency.ServerName,
				"version", dependency.ServerVersion,
				"transport", transport,
				"api_url", a.cfg.APIURL,
				"tools", a.container.Registry().Len())

			if transport == transportHTTP {
				if addr == "" {
					addr = a.cfg.Addr()
				}
				a.logger.Info("MCP endpoint available", "url", a.cfg.BaseURL+"/mcp")
				return runHTTP(ctx, addr, newHTTPHandler(a.container, a.logger), a.logger)
			}

			if err := a.container.MCPServer().Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&transport, "transport", "t", transportStdio, "Transport: stdio or http")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default APP_HOST:APP_PORT)")
	return cmd
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the loaded tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tUNIT\tDESCRIPTION")
			for _, d := range a.container.Registry().List() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.Unit, d.Summary())
			}
			return w.Flush()
		},
	}
}

func newCallCmd() *cobra.Command {
	var args string

	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke one tool and print its response envelope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			name := positional[0]
			env := a.container.Dispatcher().InvokeJSON(cmd.Context(), name, json.RawMessage(args))

			out, err := json.MarshalIndent(env, "", "  ")
			if err != nil {
				return fmt.Errorf("encode response: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			if env.IsError() {
				return fmt.Errorf("%s: %s", name, env.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&args, "args", "a", "{}", "Tool arguments as a JSON object")
	return cmd
}
