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

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/groovify/beatsync/internal/audio"
	"github.com/groovify/beatsync/internal/beatsync"
	"github.com/groovify/beatsync/internal/playback"
	"github.com/groovify/beatsync/internal/session"
	"github.com/groovify/beatsync/internal/transport"
)

const connectTimeout = 10 * time.Second

var createCmd = &cobra.Command{
	Use:   "create <room>",
	Short: "Create a room and become its admin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd.Context(), func(c *beatsync.Client) error { return c.CreateRoom(args[0]) })
	},
}

var joinCmd = &cobra.Command{
	Use:   "join <room>",
	Short: "Join an existing room as a listener",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd.Context(), func(c *beatsync.Client) error { return c.JoinRoom(args[0]) })
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Rejoin the room remembered from the last run",
	Long: `Connect and rejoin the room remembered in the state file with the
role held last time. Nothing happens if no room is remembered.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd.Context(), nil)
	},
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect without joining a room",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := session.NewFileStore(viper.GetString("state-file"))
		if err := store.Clear(); err != nil {
			return fmt.Errorf("forget previous room: %w", err)
		}
		return runSession(cmd.Context(), nil)
	},
}

func newPlayer() (playback.Player, error) {
	switch viper.GetString("audio") {
	case "simulated":
		return audio.NewSimulated(nil, logger), nil
	case "exec":
		return audio.NewExec(viper.GetString("audio-cmd"), nil, logger), nil
	default:
		return nil, fmt.Errorf("unknown audio output %q", viper.GetString("audio"))
	}
}

func newClient() (*beatsync.Client, error) {
	player, err := newPlayer()
	if err != nil {
		return nil, err
	}

	cfg := beatsync.Config{
		Server:         viper.GetString("server"),
		PlayLead:       viper.GetDuration("play-lead"),
		ClockInterval:  viper.GetDuration("clock-interval"),
		HealthInterval: viper.GetDuration("health-interval"),
		ResyncInterval: viper.GetDuration("resync-interval"),
		RejoinDelay:    viper.GetDuration("rejoin-delay"),
		ResyncDelay:    viper.GetDuration("resync-delay"),
		ClockTimeout:   viper.GetDuration("clock-timeout"),
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: connectTimeout,
	}

	return beatsync.New(cfg,
		transport.New(transport.WithLogger(logger), transport.WithDialer(dialer)),
		player,
		beatsync.WithLogger(logger),
		beatsync.WithStore(session.NewFileStore(viper.GetString("state-file"))),
	)
}

func runSession(ctx context.Context, initial func(*beatsync.Client) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := newClient()
	if err != nil {
		return err
	}

	sh := newShell(client, os.Stdout)
	client.OnNotice(sh.notice)

	if err := client.Start(); err != nil {
		return err
	}
	defer client.Close()

	if initial != nil {
		if err := waitConnected(ctx, client); err != nil {
			return err
		}
		if err := initial(client); err != nil {
			return err
		}
	}

	return sh.run(ctx, os.Stdin)
}

func waitConnected(ctx context.Context, client *beatsync.Client) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for !client.Snapshot().Connected {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("could not reach %s within %s", viper.GetString("server"), connectTimeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return nil
}
