package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/MiiZZo/voicechat/internal/application/constant"
	"github.com/MiiZZo/voicechat/internal/media"
	"github.com/MiiZZo/voicechat/internal/mesh"
)

var joinFlags struct {
	server    string
	room      string
	name      string
	freq      float64
	gain      float64
	threshold float64
}

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a room as a diagnostic client sending a test tone.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJoin(cmd.Context())
	},
}

func init() {
	joinCmd.Flags().StringVar(&joinFlags.server, "server", "http://localhost:3000", "relay base URL")
	joinCmd.Flags().StringVar(&joinFlags.room, "room", "", "room id to join")
	joinCmd.Flags().StringVar(&joinFlags.name, "name", "", "display name")
	joinCmd.Flags().Float64Var(&joinFlags.freq, "freq", 440, "test tone frequency, Hz")
	joinCmd.Flags().Float64Var(&joinFlags.gain, "gain", 0.3, "test tone gain, 0..1")
	joinCmd.Flags().Float64Var(&joinFlags.threshold, "threshold", 0, "speaking threshold, (0, 1)")

	_ = joinCmd.MarkFlagRequired("room")
	_ = joinCmd.MarkFlagRequired("name")

	rootCmd.AddCommand(joinCmd)
}

func runJoin(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	slog.SetDefault(
		slog.New(
			slog.NewJSONHandler(
				os.Stderr,
				&slog.HandlerOptions{Level: slog.LevelWarn},
			),
		),
	)

	relayURL, err := relayWebsocketURL(joinFlags.server)
	if err != nil {
		return err
	}

	iceServers, err := fetchICEServers(ctx, joinFlags.server)
	if err != nil {
		slog.Warn("fetch ice servers", slog.Any(constant.Error, err))
	}

	orch, err := mesh.NewOrchestrator(mesh.Config{
		RelayURL:   relayURL,
		RoomID:     joinFlags.room,
		Username:   joinFlags.name,
		ICEServers: iceServers,
		Threshold:  joinFlags.threshold,
		Capture: func(context.Context) (media.Capture, error) {
			return media.NewToneCapture(joinFlags.freq, joinFlags.gain)
		},
		OnError: func(message string) {
			fmt.Fprintln(os.Stderr, "relay:", message)
		},
	})
	if err != nil {
		return err
	}

	if err := orch.Connect(ctx); err != nil {
		return err
	}
	defer orch.Disconnect()

	fmt.Printf("joined room %s as %s\n", joinFlags.room, joinFlags.name)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("leaving room")
			return nil
		case <-ticker.C:
			printRoomState(orch)
		}
	}
}

func printRoomState(orch *mesh.Orchestrator) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "[%s] me level=%.3f speaking=%v",
		orch.State(), orch.LocalLevel(), orch.LocalSpeaking())

	for _, p := range orch.Participants() {
		name := p.Username
		if name == "" {
			name = p.ID
		}

		fmt.Fprintf(&sb, " | %s linked=%v level=%.3f speaking=%v",
			name, p.Linked, p.Level, p.Speaking)
	}

	fmt.Println(sb.String())
}

// relayWebsocketURL derives the websocket endpoint from the relay base URL.
func relayWebsocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}

	u.Path = "/api/v1/ws"

	return u.String(), nil
}

func fetchICEServers(ctx context.Context, base string) ([]webrtc.ICEServer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/api/v1/ice", nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ice endpoint returned %s", resp.Status)
	}

	var servers []webrtc.ICEServer
	if err := json.NewDecoder(resp.Body).Decode(&servers); err != nil {
		return nil, fmt.Errorf("decode ice servers: %w", err)
	}

	return servers, nil
}
