// Package commands implements attendancectl, the operator CLI of the Attendance API
package commands

import (
	"fmt"

	"github.com/nsvirk/attendanceapi/internal/clock"
	"github.com/nsvirk/attendanceapi/internal/config"
	"github.com/nsvirk/attendanceapi/internal/repository"
	"github.com/nsvirk/attendanceapi/internal/service"
	"github.com/nsvirk/attendanceapi/pkg/utils/zaplogger"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "attendancectl",
	Short: "Operate the Attendance API",
	Long: `attendancectl runs maintenance against the attendance database.
Sweep stale sessions, close a session by hand, list who is online and
issue tokens for testing.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "attendancectl %s (%s, %s)\n", version, commit, date)
	},
}

// loadServices connects to the stores named by the environment and wires the services
func loadServices() (*config.Config, *service.Services, error) {
	cfg, err := config.Get()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	timings, err := cfg.Timings()
	if err != nil {
		return nil, nil, err
	}
	zaplogger.SetLogLevel(cfg.ServerLogLevel)

	db, err := repository.ConnectPostgres(cfg)
	if err != nil {
		return nil, nil, err
	}
	redisClient, err := repository.ConnectRedis(cfg)
	if err != nil {
		return nil, nil, err
	}
	clk, err := clock.LoadClock(cfg.Timezone)
	if err != nil {
		return nil, nil, err
	}
	svc := service.NewServices(db, redisClient, clk, service.Options{
		Timings:      timings,
		PostgresDsn:  cfg.PostgresDsn,
		EventChannel: cfg.RedisSessionEventStream,
	})
	return cfg, svc, nil
}

// SetVersion sets the version information
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(presenceCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(hashKeyCmd)
	rootCmd.AddCommand(versionCmd)
}
