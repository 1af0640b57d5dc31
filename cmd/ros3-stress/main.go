// Command ros3-stress drives the messaging core under load: N
// publishers and M subscribers spread over a shared set of topics at a
// fixed per-publisher rate, with a periodic high-priority monitor task
// on the real-time executor. It reports throughput and end-to-end
// latency percentiles, as text or JSON.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/fatih/color"
	json "github.com/goccy/go-json"
	_ "github.com/joho/godotenv/autoload"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-robotics/ros3/bus"
	"github.com/agentic-robotics/ros3/codec"
	"github.com/agentic-robotics/ros3/msg"
	"github.com/agentic-robotics/ros3/pkg/slogx"
	"github.com/agentic-robotics/ros3/rt"
)

var log zerolog.Logger

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log = zerolog.New(output).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: slog.LevelWarn}),
	))
}

const sharedTopics = 10

type stressConfig struct {
	publishers  int
	subscribers int
	rate        int
	duration    time.Duration
	format      string
	jsonOutput  bool
}

type stressResults struct {
	TotalSent     uint64  `json:"total_sent"`
	TotalReceived uint64  `json:"total_received"`
	DurationSecs  float64 `json:"duration_secs"`
	Throughput    float64 `json:"throughput_msg_per_sec"`
	LatencyUS     struct {
		P50  float64 `json:"p50"`
		P95  float64 `json:"p95"`
		P99  float64 `json:"p99"`
		P999 float64 `json:"p999"`
		Max  float64 `json:"max"`
	} `json:"latency_us"`
	DeadlineMisses uint64 `json:"deadline_misses"`
}

func main() {
	cfg := stressConfig{}

	root := &cobra.Command{
		Use:   "ros3-stress",
		Short: "Stress test the in-process messaging core",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStress(cmd.Context(), cfg)
		},
	}

	flags := root.Flags()
	flags.IntVarP(&cfg.publishers, "publishers", "p", 10, "number of publishers to spawn")
	flags.IntVarP(&cfg.subscribers, "subscribers", "s", 10, "number of subscribers to spawn")
	flags.IntVarP(&cfg.rate, "rate", "r", 100, "message rate per publisher (Hz)")
	flags.DurationVarP(&cfg.duration, "duration", "d", 30*time.Second, "test duration")
	flags.StringVarP(&cfg.format, "format", "f", "cdr", "codec format (cdr/json)")
	flags.BoolVarP(&cfg.jsonOutput, "json", "j", false, "output JSON results")

	if err := root.ExecuteContext(context.Background()); err != nil {
		slog.Error("stress test failed", slogx.Error(err))
		os.Exit(1)
	}
}

func runStress(ctx context.Context, cfg stressConfig) error {
	format, err := codec.ParseFormat(cfg.format)
	if err != nil {
		return err
	}

	b, err := bus.New(
		bus.WithDefaultFormat(format),
		bus.WithDefaultCapacity(1024),
		bus.WithDefaultPolicy(bus.PolicyDropOldest),
	)
	if err != nil {
		return err
	}
	defer b.Shutdown()

	var deadlineMisses atomic.Uint64
	exec, err := rt.NewExecutor(
		rt.WithHighWorkers(2),
		rt.WithLowWorkers(4),
		rt.WithEventHandler(func(ev rt.TaskEvent) {
			if ev.State == rt.DeadlineMissed {
				deadlineMisses.Add(1)
			}
		}),
	)
	if err != nil {
		return err
	}
	defer exec.Shutdown()

	var sent, received atomic.Uint64
	transit := hdrhistogram.New(1, 60_000_000, 3)
	var transitMu sync.Mutex

	runCtx, cancel := context.WithTimeout(ctx, cfg.duration)
	defer cancel()

	grp, grpCtx := errgroup.WithContext(runCtx)

	// Subscribers drain their channels and record publish-to-receive
	// transit time.
	subs := make([]*bus.Subscriber, 0, cfg.subscribers)
	for i := 0; i < cfg.subscribers; i++ {
		sub, err := b.Subscribe(fmt.Sprintf("/stress/topic-%d/state", i%sharedTopics))
		if err != nil {
			return err
		}
		subs = append(subs, sub)
		grp.Go(func() error {
			for {
				env, err := sub.Recv(grpCtx)
				if err != nil {
					if errors.Is(err, bus.ErrSubscriberClosed) || grpCtx.Err() != nil {
						return nil
					}
					return err
				}
				received.Add(1)
				lat := time.Since(env.PublishedAt).Microseconds()
				if lat < 1 {
					lat = 1
				}
				transitMu.Lock()
				_ = transit.RecordValue(lat)
				transitMu.Unlock()
			}
		})
	}

	// Publishers push RobotState samples at the configured rate.
	interval := time.Second / time.Duration(cfg.rate)
	for i := 0; i < cfg.publishers; i++ {
		pub, err := b.Publisher(fmt.Sprintf("/stress/topic-%d/state", i%sharedTopics))
		if err != nil {
			return err
		}
		grp.Go(func() error {
			defer pub.Close()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			var seq uint64
			for {
				select {
				case <-grpCtx.Done():
					return nil
				case <-ticker.C:
					state := msg.RobotState{
						Position:  [3]float64{float64(seq), float64(seq), float64(seq)},
						Velocity:  [3]float64{0.1, 0.2, 0.3},
						Timestamp: time.Now().UnixNano(),
					}
					if err := pub.Publish(grpCtx, &state); err != nil {
						if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
							return nil
						}
						continue
					}
					sent.Add(1)
					seq++
				}
			}
		})
	}

	// High-priority monitor tick on the executor reports progress.
	monitor, err := exec.Submit(func(context.Context) error {
		log.Info().
			Uint64("sent", sent.Load()).
			Uint64("received", received.Load()).
			Msg("progress")
		return nil
	}, rt.WithPriority(rt.High), rt.Periodic(5*time.Second))
	if err != nil {
		return err
	}
	defer monitor.Cancel()

	start := time.Now()
	if err := grp.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	for _, sub := range subs {
		sub.Close()
	}

	results := stressResults{
		TotalSent:      sent.Load(),
		TotalReceived:  received.Load(),
		DurationSecs:   elapsed.Seconds(),
		Throughput:     float64(sent.Load()) / elapsed.Seconds(),
		DeadlineMisses: deadlineMisses.Load(),
	}
	transitMu.Lock()
	results.LatencyUS.P50 = float64(transit.ValueAtQuantile(50))
	results.LatencyUS.P95 = float64(transit.ValueAtQuantile(95))
	results.LatencyUS.P99 = float64(transit.ValueAtQuantile(99))
	results.LatencyUS.P999 = float64(transit.ValueAtQuantile(99.9))
	results.LatencyUS.Max = float64(transit.Max())
	transitMu.Unlock()

	return printResults(results, cfg.jsonOutput)
}

func printResults(r stressResults, asJSON bool) error {
	if asJSON {
		out, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	bold := color.New(color.Bold)
	yellow := color.New(color.FgYellow)
	green := color.New(color.FgGreen, color.Bold)

	bold.Println("Throughput:")
	fmt.Printf("  Total sent:      %s\n", yellow.Sprintf("%d", r.TotalSent))
	fmt.Printf("  Total received:  %s\n", yellow.Sprintf("%d", r.TotalReceived))
	fmt.Printf("  Duration:        %.2f seconds\n", r.DurationSecs)
	fmt.Printf("  Throughput:      %s msg/s\n", green.Sprintf("%.0f", r.Throughput))
	fmt.Println()

	bold.Println("Latency distribution (microseconds):")
	fmt.Printf("  p50  (median):   %s\n", yellow.Sprintf("%.1f", r.LatencyUS.P50))
	fmt.Printf("  p95:             %s\n", yellow.Sprintf("%.1f", r.LatencyUS.P95))
	fmt.Printf("  p99:             %s\n", yellow.Sprintf("%.1f", r.LatencyUS.P99))
	fmt.Printf("  p99.9:           %s\n", yellow.Sprintf("%.1f", r.LatencyUS.P999))
	fmt.Printf("  max:             %s\n", yellow.Sprintf("%.1f", r.LatencyUS.Max))
	fmt.Println()

	fmt.Printf("Deadline misses:   %d\n", r.DeadlineMisses)
	return nil
}
