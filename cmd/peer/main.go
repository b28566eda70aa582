package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/huddlekit/huddle/internal/api"
	"github.com/huddlekit/huddle/internal/client/media"
	"github.com/huddlekit/huddle/internal/client/peer"
	"github.com/huddlekit/huddle/internal/client/quality"
	"github.com/huddlekit/huddle/internal/client/signaling"
	"github.com/huddlekit/huddle/internal/config"
)

var (
	flagServer  string
	flagName    string
	flagPin     string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "huddle-peer",
	Short: "Terminal participant for a huddle room",
	Long: `huddle-peer joins a signaling room as a mesh participant. It negotiates
a direct connection to every other member and reports link state changes,
which makes it useful for soaking a relay deployment or standing in for a
browser client during development.`,
}

var joinCmd = &cobra.Command{
	Use:   "join <room-id>",
	Short: "Join a room and hold mesh connections until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJoin(args[0])
	},
}

func init() {
	joinCmd.Flags().StringVarP(&flagServer, "server", "s", "ws://localhost:13478", "relay base URL")
	joinCmd.Flags().StringVarP(&flagName, "name", "n", "peer-cli", "display name")
	joinCmd.Flags().StringVar(&flagPin, "pin", "", "participant id to prioritize for high quality")
	joinCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(joinCmd)
}

func runJoin(roomID string) error {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	})))

	cfg := config.DefaultAppConfig()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := signaling.NewClient(flagServer, roomID, flagName, cfg.Client)

	stream := media.NewLocalStream(nil)
	if err := stream.Acquire(); err != nil {
		return fmt.Errorf("failed to acquire local media: %w", err)
	}

	factory := peer.NewPionFactory(cfg.Client, stream, func(peerID string, track *webrtc.TrackRemote) {
		slog.Info("receiving remote track", "peerID", peerID, "kind", track.Kind().String())
	})

	mesh := peer.NewManager(cfg.Client, client, factory)
	defer mesh.Close()

	controller := quality.NewController(cfg.Quality, mesh, stream, client, client.ParticipantID)
	controller.Start()
	defer controller.Stop()

	if flagPin != "" {
		controller.Pin(flagPin)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- client.Run(ctx) }()

	go func() {
		for ev := range mesh.Events() {
			slog.Info("link state", "peerID", ev.PeerID, "state", ev.State, "error", ev.Err)
		}
	}()

	for {
		select {
		case env, ok := <-client.Incoming():
			if !ok {
				// Run has exited; surface why, including a kick
				return <-runErr
			}
			route(mesh, controller, env)

		case <-ctx.Done():
			return nil
		}
	}
}

func route(mesh *peer.Manager, controller *quality.Controller, env api.Envelope) {
	switch env.Type {
	case api.MessageSetQuality, api.MessageSetQualityRequest, api.MessageSetQualityDone:
		controller.HandleEnvelope(env)
	case api.MessageLeave:
		controller.Forget(env.From)
		mesh.HandleEnvelope(env)
	default:
		mesh.HandleEnvelope(env)
	}
}

func main() {
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		slog.Error("exiting", "error", err)
		os.Exit(1)
	}
}
