package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rxlens/rxlens/internal/analysis"
	"github.com/rxlens/rxlens/internal/chat"
	"github.com/rxlens/rxlens/internal/db"
	"github.com/rxlens/rxlens/internal/schedule"
	"github.com/rxlens/rxlens/internal/server"
	"github.com/rxlens/rxlens/internal/session"
	"github.com/rxlens/rxlens/internal/vision"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the rxlens HTTP server",
	Long:  `Starts the rxlens server with the prescription analysis API, SSE chat streaming, and websocket chat.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if servePort != 0 {
			cfg.Port = servePort
		}

		client, err := buildClient(cfg)
		if err != nil {
			return err
		}

		dbPath := filepath.Join(cfg.DataDir, "rxlens.db")
		database, err := db.Open(dbPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer database.Close()

		srv := server.New(server.Config{
			Port:     cfg.Port,
			AllowAll: true,
			ChatParams: vision.Params{
				Temperature: cfg.Chat.Temperature,
				MaxTokens:   cfg.Chat.MaxTokens,
				TopP:        cfg.Chat.TopP,
			},
		},
			session.NewStore(database),
			analysis.NewAnalyzer(client),
			chat.NewStreamer(client),
			schedule.NewGenerator(client),
		)

		// Graceful shutdown.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go func() {
			<-ctx.Done()
			fmt.Fprintln(os.Stderr, "\nShutting down server...")
			srv.Shutdown(context.Background())
		}()

		fmt.Fprintf(os.Stderr, "rxlens server v%s starting on port %d\n", Version, cfg.Port)
		fmt.Fprintf(os.Stderr, "  Database: %s\n", dbPath)
		fmt.Fprintf(os.Stderr, "  Model: %s\n", cfg.Model)

		return srv.Start()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
