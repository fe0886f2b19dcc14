package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/breadml/bakectl/internal/api"
	"github.com/breadml/bakectl/internal/mockapi"
)

var mockServeCmd = &cobra.Command{
	Use:   "mock-serve",
	Short: "Run an in-memory mock bakery for local development",
	Long: `Run a local bakery that accepts the same routes as the real service.
Jobs complete after a couple of status reads and chat completions echo
the last user message, so plans and sessions can be exercised offline:

  BREAD_API_KEY=local-key bakectl mock-serve --port 8188
  BAKECTL_API_BASE_URL=http://127.0.0.1:8188 \
  BAKECTL_API_INFERENCE_URL=http://127.0.0.1:8188 \
  BREAD_API_KEY=local-key bakectl run --plan examples/persona.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")

		token := os.Getenv("BREAD_API_KEY")
		if token == "" {
			return fmt.Errorf("BREAD_API_KEY must be set; clients authenticate against it")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		addr := fmt.Sprintf("127.0.0.1:%d", port)
		srv := &http.Server{
			Addr:    addr,
			Handler: mockapi.NewServer(token).Handler(),
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			fmt.Fprintf(os.Stderr, "mock bakery listening on %s\n", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			fmt.Fprintln(os.Stderr, "shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve bakectl tools over MCP (stdio transport)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := openJournal(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Bakery:  newBakeryClient(cfg),
			Journal: store,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	mockServeCmd.Flags().Int("port", 8188, "port to listen on")
}
