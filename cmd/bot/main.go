package main

import (
	"context"
	"flag"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"tradebot/internal/game"
	"tradebot/internal/obs"
	"tradebot/internal/ops"
	"tradebot/internal/poller"
	"tradebot/internal/round"
	"tradebot/internal/store"
	"tradebot/internal/store/memory"
	"tradebot/internal/store/pg"
	"tradebot/internal/transport/relay"
	"tradebot/internal/transport/vk"
	"tradebot/pkg/conn"
	"tradebot/pkg/exception"
)

// transport is what the poller and the coordinator need from a chat platform.
type transport interface {
	poller.Source
	poller.Sink
	game.RosterSource
}

func main() {
	if err := run(); err != nil {
		logs.Errorf("bot: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to JSON config (default: built-in memory/relay setup)")
	envPath := flag.String("env", ".env", "Path to .env file")
	transportFlag := flag.String("transport", "", "Override transport: vk or relay")
	storeFlag := flag.String("store", "", "Override store driver: memory or postgres")
	profileFlag := flag.Bool("pyroscope", false, "Enable continuous profiling")
	statsInterval := flag.Duration("stats-interval", time.Minute, "Metrics log interval (0=disable)")
	flag.Parse()

	if err := ops.LoadDotEnv(*envPath); err != nil {
		return err
	}
	loaded, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if err := ops.ApplyEnv(&loaded); err != nil {
		return err
	}
	if v := strings.TrimSpace(*transportFlag); v != "" {
		loaded.Transport.Kind = strings.ToLower(v)
	}
	if v := strings.TrimSpace(*storeFlag); v != "" {
		loaded.Store.Driver = strings.ToLower(v)
	}

	if *profileFlag || loaded.Profiling.Enabled {
		stop, err := startProfiler(loaded.Profiling)
		if err != nil {
			return err
		}
		defer stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(ctx, loaded.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logs.Errorf("bot: close store, err: %+v", err)
		}
	}()

	if err := st.Seed(ctx, loaded.Catalog.Listings, loaded.Catalog.Events); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	events, err := st.Events(ctx)
	if err != nil {
		return errors.Wrap(err, "load events")
	}
	logs.Infof("bot: catalog has %d securities and %d events", len(loaded.Catalog.Listings), len(events))

	seed := loaded.Game.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	engine := round.NewEngine(loaded.Game.FinalRound, round.NewRandomPicker(events, seed))

	var background sync.WaitGroup
	tr, err := openTransport(ctx, loaded.Transport, &background)
	if err != nil {
		return err
	}

	use, err := game.NewUsecase(st, tr, engine, game.Config{StartingCash: loaded.Game.StartingCash})
	if err != nil {
		return err
	}

	metrics := obs.NewMetrics()
	p, err := poller.New(tr, tr, use, metrics, loaded.Poller)
	if err != nil {
		return err
	}
	if err := p.Start(ctx); err != nil {
		return err
	}
	logs.Infof("bot: running with %s store and %s transport", loaded.Store.Driver, loaded.Transport.Kind)

	var ticker <-chan time.Time
	if *statsInterval > 0 {
		t := time.NewTicker(*statsInterval)
		defer t.Stop()
		ticker = t.C
	}

wait:
	for {
		select {
		case <-sys.Shutdown():
			break wait
		case <-ticker:
			logSnapshot(metrics.Snapshot())
		}
	}

	logs.Info("bot: shutting down")
	p.Stop()
	cancel()
	background.Wait()
	logSnapshot(metrics.Snapshot())
	return nil
}

func loadConfig(path string) (ops.Loaded, error) {
	if path == "" {
		return ops.DefaultLoaded(), nil
	}
	loaded, err := ops.Load(path)
	if err != nil {
		return ops.Loaded{}, err
	}
	logs.Infof("bot: config loaded from %s", path)
	return loaded, nil
}

func openStore(ctx context.Context, spec ops.StoreSpec) (store.Store, error) {
	switch spec.Driver {
	case ops.StoreMemory:
		return memory.New(), nil
	case ops.StorePostgres:
		client, err := conn.New(spec.Postgres)
		if err != nil {
			return nil, err
		}
		s, err := pg.New(client)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		if spec.Migrate {
			if err := s.Migrate(ctx); err != nil {
				_ = s.Close()
				return nil, err
			}
		}
		return s, nil
	default:
		return nil, errors.Wrapf(exception.ErrInvalidConfig, "unknown store driver %q", spec.Driver)
	}
}

func openTransport(ctx context.Context, spec ops.TransportSpec, background *sync.WaitGroup) (transport, error) {
	switch spec.Kind {
	case ops.TransportVK:
		c, err := vk.New(spec.VK)
		if err != nil {
			return nil, err
		}
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
		return c, nil
	case ops.TransportRelay:
		c, err := relay.New(spec.Relay)
		if err != nil {
			return nil, err
		}
		background.Add(1)
		go func() {
			defer background.Done()
			_ = c.Run(ctx)
		}()
		return c, nil
	default:
		return nil, errors.Wrapf(exception.ErrInvalidConfig, "unknown transport %q", spec.Kind)
	}
}

func startProfiler(spec ops.ProfilingSpec) (func(), error) {
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: spec.ApplicationName,
		ServerAddress:   spec.ServerAddress,
		Tags: map[string]string{
			"env": "local",
		},
		Logger: profilerLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "start pyroscope")
	}
	return func() { _ = profiler.Stop() }, nil
}

type profilerLogger struct{}

func (profilerLogger) Infof(format string, args ...interface{})  { logs.Infof(format, args...) }
func (profilerLogger) Debugf(_ string, _ ...interface{})         {}
func (profilerLogger) Errorf(format string, args ...interface{}) { logs.Errorf(format, args...) }

func logSnapshot(s obs.Snapshot) {
	logs.Infof("bot: metrics received=%d handled=%d failed=%d panics=%d replies=%d reply_failures=%d fetch_failures=%d conversations=%d handle_avg=%s handle_max=%s fetch_avg=%s",
		s.Received, s.Handled, s.Failed, s.Panics, s.Replies, s.ReplyFailures, s.FetchFailures, s.Conversations,
		s.HandleLatency.Avg, s.HandleLatency.Max, s.FetchLatency.Avg)
}
