package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/groovify/beatsync/internal/logging"
)

var (
	logger     zerolog.Logger
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "beatsync",
	Short: "BeatSync - listen to music in sync with your friends",
	Long: `BeatSync joins a listening room on a coordination server and plays the
room's songs in sync with every other member.

Once connected, type "help" for the list of room commands.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (yaml, json or toml)")
	flags.String("server", "http://localhost:8080", "Coordination server base URL")
	flags.String("state-file", defaultStateFile(), "Where the room session is remembered between runs")
	flags.String("log-level", "warn", "Logging level")
	flags.String("log-format", "console", "Log output format: json or console")
	flags.Duration("play-lead", 2*time.Second, "How far ahead a song is scheduled when played")
	flags.Duration("clock-interval", 30*time.Second, "Server clock refresh interval")
	flags.Duration("health-interval", 60*time.Second, "Queue staleness check interval")
	flags.Duration("clock-timeout", 5*time.Second, "Time allowed for one server clock request")
	flags.Duration("resync-interval", 30*time.Second, "Periodic queue resync interval")
	flags.Duration("rejoin-delay", 500*time.Millisecond, "Delay before rejoining the room after a reconnect")
	flags.Duration("resync-delay", time.Second, "Delay before requesting the queue after a reconnect")
	flags.String("audio", "simulated", "Audio output: simulated or exec")
	flags.String("audio-cmd", "", "Player command for --audio=exec with {url}, {start} and {title} placeholders")

	viper.BindPFlags(flags)
	viper.SetEnvPrefix("BEATSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(createCmd, joinCmd, resumeCmd, connectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	logger = logging.Setup(viper.GetString("log-level"), viper.GetString("log-format"), os.Stderr)
	return nil
}

func defaultStateFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "beatsync-session.json"
	}
	return filepath.Join(dir, "beatsync", "session.json")
}
