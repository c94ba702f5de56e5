package commands

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/benegessarit/skill-composer/internal/config"
	"github.com/benegessarit/skill-composer/internal/httpserver"
	"github.com/benegessarit/skill-composer/internal/ui"
)

// ServeCmd runs the read-only HTTP API.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve span status, events and gate checks over HTTP",
	Long: `Serve a read-only HTTP API:

  GET /health
  GET /sessions?limit=N
  GET /sessions/{session}?all=true
  GET /sessions/{session}/events
  GET /sessions/{session}/stream   (WebSocket feed of new events)
  GET /events?date=YYYY-MM-DD&workflow=name
  GET /check?workflow=&step=&session=

Every endpoint except /health requires "Authorization: Bearer <token>"
(or ?access_token= on the WebSocket). When serveTokens is empty a token is
generated, saved to the config file and printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		addr := e.cfg.ServeAddr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}

		tokens := e.cfg.ServeTokens
		if len(tokens) == 0 {
			token, err := generateToken()
			if err != nil {
				return err
			}
			tokens = []string{token}
			if err := config.SetValue("serveTokens", token); err != nil {
				ui.ShowWarning("Could not save generated token: %v", err)
			}
			ui.ShowInfo("Generated token: %s", token)
		}

		s := httpserver.NewHTTPServer(httpserver.Deps{
			Tracker: e.tracker,
			Gate:    e.gate,
			Logger:  e.logger.Logger,
			Version: Version,
			Tokens:  tokens,
		})

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ui.ShowInfo("Listening on http://%s; Ctrl+C to stop", addr)
		return s.ListenAndServe(ctx, addr)
	},
}

func init() {
	ServeCmd.Flags().String("addr", "", "Listen address (default from serveAddr config)")
}

func generateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
