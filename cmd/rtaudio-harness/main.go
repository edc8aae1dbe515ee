// Command rtaudio-harness is a headless demo binary that wires up a
// ProcessorGraph, audio server, and diagnostics endpoint, then calls
// ProcessorGraph.Process back to back on a silent input block for the
// configured duration, exercising the realtime scheduling path without
// any device or physical hardware. It exists to demonstrate the
// partition/schedule pipeline end-to-end, not to host real plugins.
package main

import (
	"context"
	"math"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	_ "go.uber.org/automaxprocs" // adjusts GOMAXPROCS to the container CPU quota on import

	"github.com/obsrt/rtcore/internal/config"
	"github.com/obsrt/rtcore/internal/diag"
	"github.com/obsrt/rtcore/internal/events"
	"github.com/obsrt/rtcore/internal/logging"
	"github.com/obsrt/rtcore/internal/sched"
	"github.com/obsrt/rtcore/pkg/audio/client"
	"github.com/obsrt/rtcore/pkg/audio/device"
	"github.com/obsrt/rtcore/pkg/audio/server"
	"github.com/obsrt/rtcore/pkg/framework/param"
	"github.com/obsrt/rtcore/pkg/graph"
	"github.com/obsrt/rtcore/pkg/midi"
)

const demoGainParamID = 1

func main() {
	var (
		blockSize   = pflag.Int("block-size", 512, "samples per callback block")
		sampleRate  = pflag.Float64("sample-rate", 48000, "sample rate in Hz")
		numChannels = pflag.Int("channels", 2, "channel count")
		duration    = pflag.Duration("duration", 5*time.Second, "how long to run the demo before exiting")
		jsonLogs    = pflag.Bool("json-logs", false, "emit JSON logs instead of console output")
	)
	pflag.Parse()

	if *jsonLogs {
		logging.SetJSON()
	}
	log := logging.Named("harness")
	log.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("automaxprocs applied")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	bus := events.New(cfg.EventsNATSURL, log)
	defer bus.Close()

	reg := prometheus.NewRegistry()
	metrics := diag.NewMetrics(reg)

	srv := server.New(func(key device.DeviceKey) (*device.Handler, error) {
		bus.Publish(events.KindDeviceOpened, string(key))
		metrics.DeviceReopenTotal.WithLabelValues(string(key)).Inc()
		return device.NewHandler(key, *numChannels, *numChannels), nil
	}, log)

	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = sched.PhysicalCoreCount()
	}
	g := graph.New(workers, cfg.PinWorkers, log)
	gain := newDemoGainNode()
	g.AddNode(gain, false)

	if err := g.Prepare(*sampleRate, *blockSize, *numChannels); err != nil {
		log.Fatal().Err(err).Msg("graph prepare failed")
	}
	g.Start()
	defer g.Stop()

	cli, err := client.New(srv)
	if err != nil {
		log.Fatal().Err(err).Msg("client registration failed")
	}
	defer cli.Close()
	bus.Publish(events.KindClientRegistered, cli.ID.String())

	statusFn := func() diag.StatusReport {
		return diag.StatusReport{
			ActiveClients:  1,
			SchedulerLevel: 1,
			GraphLatency:   g.ReportLatency(),
		}
	}
	diagServer := diag.NewServer(cfg.DiagJWTSecret, metrics, statusFn, log)
	httpSrv := &http.Server{Addr: cfg.DiagListenAddr, Handler: diagServer}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("diagnostics server stopped")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runDemo(ctx, g, *blockSize, *numChannels, *duration, log)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}

func runDemo(ctx context.Context, g *graph.ProcessorGraph, blockSize, numChannels int, duration time.Duration, log zerolog.Logger) {
	deadline := time.After(duration)
	eventQueue := midi.NewEventQueue()

	in := make([][]float32, numChannels)
	out := make([][]float32, numChannels)
	for ch := range in {
		in[ch] = make([]float32, blockSize)
		out[ch] = make([]float32, blockSize)
	}

	blocks := 0
	for {
		select {
		case <-ctx.Done():
			log.Info().Int("blocks", blocks).Msg("interrupted")
			return
		case <-deadline:
			log.Info().Int("blocks", blocks).Msg("demo complete")
			return
		default:
			g.Process(in, out, eventQueue)
			blocks++
		}
	}
}

// demoGainNode is a minimal graph.Processor driven by the framework's
// own parameter registry and smoother, the same building blocks a real
// plugin's gain stage would use, applied here to a single makeup-gain
// parameter so the harness exercises that path end to end.
type demoGainNode struct {
	registry *param.Registry
	smoother *param.Smoother
}

func newDemoGainNode() *demoGainNode {
	registry := param.NewRegistry()
	gainParam := param.GainParameter(demoGainParamID, "Gain").Default(-2).Build()
	registry.Add(gainParam)

	smoother := param.NewSmoother(param.ExponentialSmoothing, 0.995)
	smoother.Reset(gainParam.GetPlainValue())

	return &demoGainNode{registry: registry, smoother: smoother}
}

func (d *demoGainNode) Prepare(sampleRate float64, blockSize int) error { return nil }
func (d *demoGainNode) Latency() int                                   { return 0 }
func (d *demoGainNode) Release()                                       {}
func (d *demoGainNode) Process(in, out [][]float32, ev *midi.EventQueue) {
	if p := d.registry.Get(demoGainParamID); p != nil {
		d.smoother.SetTarget(p.GetPlainValue())
	}
	gainDB := d.smoother.Next()
	gain := float32(math.Pow(10, gainDB/20))
	for ch := range out {
		if ch >= len(in) {
			continue
		}
		for i := range out[ch] {
			if i < len(in[ch]) {
				out[ch][i] = in[ch][i] * gain
			}
		}
	}
}
