package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rowmesh/rowmesh/internal/config"
	"github.com/rowmesh/rowmesh/internal/netcoord"
)

var coordCmd = &cobra.Command{
	Use:   "coord",
	Short: "Cross-host coordination utility (latency + advisory GC rounds)",
	Long: `A small TCP utility for measuring peer latency and running advisory
GC watermark rounds. It is unrelated to the correctness of the core:
rowmesh GC is coordination-free and never waits for these rounds.`,
}

var coordServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Answer pings and watermark requests over TCP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		listen, _ := cmd.Flags().GetString("listen")
		if !cmd.Flags().Changed("listen") {
			listen = config.GetString("coord.listen")
		}
		logPath, _ := cmd.Flags().GetString("log")
		if !cmd.Flags().Changed("log") {
			logPath = config.GetString("coord.log")
		}

		t, cleanup, err := openTable()
		if err != nil {
			return err
		}
		defer cleanup()
		source := netcoord.TableWatermark{Table: t}

		server, err := netcoord.Serve(listen, source, netcoord.ServerOptions{
			LogPath:   logPath,
			LogOutput: os.Stderr,
		})
		if err != nil {
			return err
		}
		defer server.Close()

		fmt.Printf("coord listening on %s (ctrl-c to stop)\n", server.Addr())
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		return nil
	},
}

var coordPingCmd = &cobra.Command{
	Use:   "ping --peers <host:port>[,<host:port>...]",
	Short: "Measure round-trip latency to coord servers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		peers, samples, err := coordClientFlags(cmd)
		if err != nil {
			return err
		}

		client, err := netcoord.Dial(peers, config.GetDuration("coord.dial-timeout"))
		if err != nil {
			return err
		}
		defer client.Close()

		stats, err := client.MeasureRTT(samples)
		if err != nil {
			return err
		}

		if config.GetBool("json") {
			return json.NewEncoder(os.Stdout).Encode(stats)
		}
		for _, s := range stats {
			fmt.Printf("%s: mean=%s p50=%s p95=%s p99=%s (%d samples)\n",
				s.Peer, s.Mean, s.P50, s.P95, s.P99, s.Samples)
		}
		return nil
	},
}

var coordGcRoundCmd = &cobra.Command{
	Use:   "gc-round --peers <host:port>[,<host:port>...]",
	Short: "Run one advisory watermark round against coord servers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		peers, _, err := coordClientFlags(cmd)
		if err != nil {
			return err
		}
		gcID, _ := cmd.Flags().GetUint64("gc-id")

		client, err := netcoord.Dial(peers, config.GetDuration("coord.dial-timeout"))
		if err != nil {
			return err
		}
		defer client.Close()

		result, err := client.GcRound(gcID)
		if err != nil {
			return err
		}

		if config.GetBool("json") {
			return json.NewEncoder(os.Stdout).Encode(result)
		}
		fmt.Printf("round %d: watermarks=%v threshold=%d elapsed=%s\n",
			result.GcID, result.Watermarks, result.Threshold, result.Elapsed)
		return nil
	},
}

func coordClientFlags(cmd *cobra.Command) ([]string, int, error) {
	peersFlag, _ := cmd.Flags().GetString("peers")
	if peersFlag == "" {
		return nil, 0, fmt.Errorf("--peers is required")
	}
	peers := strings.Split(peersFlag, ",")

	samples, _ := cmd.Flags().GetInt("samples")
	if samples <= 0 {
		samples = config.GetInt("coord.samples")
	}
	return peers, samples, nil
}

func init() {
	coordServeCmd.Flags().String("listen", "127.0.0.1:9400", "listen address")
	coordServeCmd.Flags().String("log", "", "rotate server log to this file")
	coordPingCmd.Flags().String("peers", "", "comma-separated coord server addresses")
	coordPingCmd.Flags().Int("samples", 0, "ping samples per peer")
	coordGcRoundCmd.Flags().String("peers", "", "comma-separated coord server addresses")
	coordGcRoundCmd.Flags().Int("samples", 0, "unused; accepted for symmetry")
	coordGcRoundCmd.Flags().Uint64("gc-id", 1, "round identifier")

	coordCmd.AddCommand(coordServeCmd)
	coordCmd.AddCommand(coordPingCmd)
	coordCmd.AddCommand(coordGcRoundCmd)
	rootCmd.AddCommand(coordCmd)
}
