package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/felixgeelhaar/phishdrill/internal/metrics"
	"github.com/felixgeelhaar/phishdrill/internal/queue"
	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show provider routing statistics",
		Long: `Show provider routing statistics.

By default the counters of a running server are fetched over HTTP. With
--queue, router events are read from the AMQP event queue for --for and
aggregated locally.`,
		RunE: runStats,
	}
	f := cmd.Flags()
	f.String("server", "", "Server base URL (default from server.bind and server.port)")
	f.Bool("queue", false, "Aggregate events from the AMQP queue instead")
	f.Duration("for", 30*time.Second, "How long to read the queue")
	return cmd
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	v := viperForCmd(cmd)

	var snap metrics.Snapshot
	if v.GetBool("queue") {
		if cfg.AMQP.URL == "" {
			return fmt.Errorf("amqp.url is not configured")
		}
		logger, closeLog, err := setupLogging(cfg.Log, os.Stderr)
		if err != nil {
			return err
		}
		defer closeLog()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, v.GetDuration("for"))
		defer cancel()

		conn, err := queue.NewConnection(cfg.AMQP.URL, logger)
		if err != nil {
			return fmt.Errorf("connect amqp: %w", err)
		}
		defer conn.Close()

		collector := metrics.NewCollector()
		consumer := queue.NewConsumer(conn, collector, queue.DefaultConsumerConfig(), logger)
		if err := consumer.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		consumer.Stop()
		snap = collector.Snapshot()
	} else {
		base := v.GetString("server")
		if base == "" {
			base = "http://" + cfg.Server.Addr()
		}
		snap, err = fetchStats(cmd.Context(), base)
		if err != nil {
			return err
		}
	}

	printSnapshot(cmd.OutOrStdout(), snap)
	return nil
}

func fetchStats(ctx context.Context, base string) (metrics.Snapshot, error) {
	var snap metrics.Snapshot
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/v1/stats", nil)
	if err != nil {
		return snap, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return snap, fmt.Errorf("server not reachable at %s: %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return snap, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, fmt.Errorf("parse response: %w", err)
	}
	return snap, nil
}

func printSnapshot(w io.Writer, snap metrics.Snapshot) {
	fmt.Fprintln(w, "Routing Statistics")
	fmt.Fprintln(w, "==================")
	fmt.Fprintf(w, "Requests:   %d\n", snap.Requests)
	fmt.Fprintf(w, "Successes:  %d\n", snap.Successes)
	fmt.Fprintf(w, "Fallbacks:  %d\n", snap.Fallbacks)

	if len(snap.ByOp) > 0 {
		fmt.Fprintln(w, "\nBy Operation")
		fmt.Fprintln(w, "------------")
		for _, op := range sortedKeys(snap.ByOp) {
			fmt.Fprintf(w, "%-22s %d\n", op, snap.ByOp[op])
		}
	}

	if len(snap.Providers) > 0 {
		fmt.Fprintln(w, "\nProviders")
		fmt.Fprintln(w, "---------")
		names := make([]string, 0, len(snap.Providers))
		for name := range snap.Providers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			st := snap.Providers[name]
			fmt.Fprintf(w, "%-12s ok=%d failed=%d avg=%s\n", name, st.Successes, st.Failures, st.AvgLatency.Round(time.Millisecond))
			for _, kind := range sortedKeys(st.ErrorsByKind) {
				fmt.Fprintf(w, "  %-18s %d\n", kind, st.ErrorsByKind[kind])
			}
		}
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
