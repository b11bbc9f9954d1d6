package ops

import (
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"tradebot/internal/model"
	"tradebot/internal/poller"
	"tradebot/internal/round"
	"tradebot/internal/transport/relay"
	"tradebot/internal/transport/vk"
	"tradebot/pkg/backoff"
	"tradebot/pkg/conn"
	"tradebot/pkg/exception"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	TransportVK    = "vk"
	TransportRelay = "relay"

	DefaultRelayURL       = "ws://localhost:8080/ws"
	DefaultPyroscopeAddr  = "http://localhost:4040"
	DefaultApplicationKey = "tradebot"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Store     StoreConfig     `json:"store"`
	Transport TransportConfig `json:"transport"`
	Game      GameConfig      `json:"game"`
	Catalog   CatalogConfig   `json:"catalog"`
	Poller    PollerConfig    `json:"poller"`
	Profiling ProfilingConfig `json:"profiling"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver   string      `json:"driver"`
	Postgres conn.Option `json:"postgres"`
	Migrate  *bool       `json:"migrate"`
}

// TransportConfig selects the chat transport.
type TransportConfig struct {
	Kind  string      `json:"kind"`
	VK    VKConfig    `json:"vk"`
	Relay RelayConfig `json:"relay"`
}

type VKConfig struct {
	Token   string `json:"token"`
	GroupID int64  `json:"groupId"`
	APIURL  string `json:"apiUrl"`
	Version string `json:"version"`
	Wait    string `json:"wait"`
}

type RelayConfig struct {
	URL           string `json:"url"`
	PollInterval  string `json:"pollInterval"`
	RosterTimeout string `json:"rosterTimeout"`
}

// GameConfig holds the game rules.
type GameConfig struct {
	StartingCash *decimal.Decimal `json:"startingCash"`
	FinalRound   int              `json:"finalRound"`
	// Seed fixes the event draw sequence. Zero picks a random seed.
	Seed uint64 `json:"seed"`
}

// CatalogConfig is seeded into the store at start-up.
type CatalogConfig struct {
	Securities []SecurityConfig `json:"securities"`
	Events     []EventConfig    `json:"events"`
}

type SecurityConfig struct {
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

type EventConfig struct {
	Text string          `json:"text"`
	Diff decimal.Decimal `json:"diff"`
}

type PollerConfig struct {
	ReplyTimeout string        `json:"replyTimeout"`
	FailureReply string        `json:"failureReply"`
	Backoff      BackoffConfig `json:"backoff"`
}

type BackoffConfig struct {
	Min    string  `json:"min"`
	Max    string  `json:"max"`
	Factor float64 `json:"factor"`
	Jitter float64 `json:"jitter"`
}

type ProfilingConfig struct {
	Enabled         bool   `json:"enabled"`
	ServerAddress   string `json:"serverAddress"`
	ApplicationName string `json:"applicationName"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Store     StoreSpec
	Transport TransportSpec
	Game      GameSpec
	Catalog   Catalog
	Poller    poller.Config
	Profiling ProfilingSpec
}

type StoreSpec struct {
	Driver   string
	Postgres conn.Option
	Migrate  bool
}

type TransportSpec struct {
	Kind  string
	VK    vk.Config
	Relay relay.Config
}

type GameSpec struct {
	StartingCash decimal.Decimal
	FinalRound   int
	Seed         uint64
}

type Catalog struct {
	Listings []model.SecurityListing
	Events   []model.Event
}

type ProfilingSpec struct {
	Enabled         bool
	ServerAddress   string
	ApplicationName string
}

// Load reads a JSON config file and resolves defaults.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "read config")
	}
	var cfg FileConfig
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "decode config")
	}
	return Resolve(cfg)
}

// DefaultLoaded is the configuration used without a config file: memory
// store, relay transport on localhost and the built-in catalog.
func DefaultLoaded() Loaded {
	loaded, err := Resolve(FileConfig{})
	if err != nil {
		panic(err)
	}
	return loaded
}

// Resolve validates cfg and fills defaults.
func Resolve(cfg FileConfig) (Loaded, error) {
	st, err := resolveStore(cfg.Store)
	if err != nil {
		return Loaded{}, err
	}
	tr, err := resolveTransport(cfg.Transport)
	if err != nil {
		return Loaded{}, err
	}
	catalog, err := resolveCatalog(cfg.Catalog)
	if err != nil {
		return Loaded{}, err
	}
	pc, err := resolvePoller(cfg.Poller)
	if err != nil {
		return Loaded{}, err
	}
	return Loaded{
		Store:     st,
		Transport: tr,
		Game:      resolveGame(cfg.Game),
		Catalog:   catalog,
		Poller:    pc,
		Profiling: resolveProfiling(cfg.Profiling),
	}, nil
}

func resolveStore(cfg StoreConfig) (StoreSpec, error) {
	driver := strings.ToLower(cfg.Driver)
	if driver == "" {
		driver = StoreMemory
	}
	if driver != StoreMemory && driver != StorePostgres {
		return StoreSpec{}, errors.Wrapf(exception.ErrInvalidConfig, "unknown store driver %q", cfg.Driver)
	}
	migrate := true
	if cfg.Migrate != nil {
		migrate = *cfg.Migrate
	}
	return StoreSpec{Driver: driver, Postgres: cfg.Postgres, Migrate: migrate}, nil
}

func resolveTransport(cfg TransportConfig) (TransportSpec, error) {
	kind := strings.ToLower(cfg.Kind)
	if kind == "" {
		kind = TransportRelay
	}
	if kind != TransportVK && kind != TransportRelay {
		return TransportSpec{}, errors.Wrapf(exception.ErrInvalidConfig, "unknown transport %q", cfg.Kind)
	}

	wait, err := parseDuration("transport.vk.wait", cfg.VK.Wait, vk.DefaultWait)
	if err != nil {
		return TransportSpec{}, err
	}
	pollInterval, err := parseDuration("transport.relay.pollInterval", cfg.Relay.PollInterval, relay.DefaultPollInterval)
	if err != nil {
		return TransportSpec{}, err
	}
	rosterTimeout, err := parseDuration("transport.relay.rosterTimeout", cfg.Relay.RosterTimeout, relay.DefaultRosterTimeout)
	if err != nil {
		return TransportSpec{}, err
	}

	relayURL := cfg.Relay.URL
	if relayURL == "" {
		relayURL = DefaultRelayURL
	}
	return TransportSpec{
		Kind: kind,
		VK: vk.Config{
			Token:   cfg.VK.Token,
			GroupID: cfg.VK.GroupID,
			APIURL:  cfg.VK.APIURL,
			Version: cfg.VK.Version,
			Wait:    wait,
		},
		Relay: relay.Config{
			URL:           relayURL,
			PollInterval:  pollInterval,
			RosterTimeout: rosterTimeout,
		},
	}, nil
}

func resolveGame(cfg GameConfig) GameSpec {
	spec := GameSpec{
		StartingCash: decimal.NewFromInt(1000),
		FinalRound:   round.DefaultFinalRound,
		Seed:         cfg.Seed,
	}
	if cfg.StartingCash != nil && cfg.StartingCash.IsPositive() {
		spec.StartingCash = model.Money(*cfg.StartingCash)
	}
	if cfg.FinalRound > 1 {
		spec.FinalRound = cfg.FinalRound
	}
	return spec
}

// DefaultCatalog is seeded when the config names no securities or events.
func DefaultCatalog() Catalog {
	return Catalog{
		Listings: []model.SecurityListing{
			{Code: "APPLE", Description: "apple corporation", Price: decimal.NewFromInt(10)},
			{Code: "COCA", Description: "coca-cola corp", Price: decimal.NewFromInt(10)},
		},
		Events: []model.Event{
			{Text: "Strong quarterly report", Diff: decimal.RequireFromString("1.1")},
			{Text: "Market correction", Diff: decimal.RequireFromString("0.9")},
			{Text: "Breakthrough product launch", Diff: decimal.RequireFromString("1.4")},
			{Text: "Regulatory scandal", Diff: decimal.RequireFromString("0.7")},
		},
	}
}

func resolveCatalog(cfg CatalogConfig) (Catalog, error) {
	def := DefaultCatalog()
	catalog := Catalog{}

	if len(cfg.Securities) == 0 {
		catalog.Listings = def.Listings
	}
	codes := make(map[string]struct{}, len(cfg.Securities))
	for _, s := range cfg.Securities {
		code := strings.ToUpper(strings.TrimSpace(s.Code))
		if code == "" {
			return Catalog{}, errors.Wrap(exception.ErrInvalidConfig, "security code is empty")
		}
		if _, dup := codes[code]; dup {
			return Catalog{}, errors.Wrapf(exception.ErrInvalidConfig, "duplicate security %s", code)
		}
		if !s.Price.IsPositive() {
			return Catalog{}, errors.Wrapf(exception.ErrInvalidConfig, "security %s price must be > 0", code)
		}
		codes[code] = struct{}{}
		catalog.Listings = append(catalog.Listings, model.SecurityListing{
			Code:        code,
			Description: s.Description,
			Price:       model.Money(s.Price),
		})
	}

	if len(cfg.Events) == 0 {
		catalog.Events = def.Events
	}
	for _, ev := range cfg.Events {
		if ev.Text == "" {
			return Catalog{}, errors.Wrap(exception.ErrInvalidConfig, "event text is empty")
		}
		if !ev.Diff.IsPositive() {
			return Catalog{}, errors.Wrapf(exception.ErrInvalidConfig, "event %q diff must be > 0", ev.Text)
		}
		catalog.Events = append(catalog.Events, model.Event{Text: ev.Text, Diff: ev.Diff})
	}
	return catalog, nil
}

func resolvePoller(cfg PollerConfig) (poller.Config, error) {
	replyTimeout, err := parseDuration("poller.replyTimeout", cfg.ReplyTimeout, poller.DefaultReplyTimeout)
	if err != nil {
		return poller.Config{}, err
	}
	def := backoff.Default()
	lo, err := parseDuration("poller.backoff.min", cfg.Backoff.Min, def.Min)
	if err != nil {
		return poller.Config{}, err
	}
	hi, err := parseDuration("poller.backoff.max", cfg.Backoff.Max, def.Max)
	if err != nil {
		return poller.Config{}, err
	}
	b := backoff.Backoff{Min: lo, Max: hi, Factor: cfg.Backoff.Factor, Jitter: cfg.Backoff.Jitter}
	if b.Factor == 0 {
		b.Factor = def.Factor
	}
	if b.Jitter == 0 {
		b.Jitter = def.Jitter
	}

	failure := cfg.FailureReply
	if failure == "" {
		failure = poller.DefaultFailureReply
	}
	return poller.Config{ReplyTimeout: replyTimeout, FailureReply: failure, Backoff: b}, nil
}

func resolveProfiling(cfg ProfilingConfig) ProfilingSpec {
	spec := ProfilingSpec{
		Enabled:         cfg.Enabled,
		ServerAddress:   cfg.ServerAddress,
		ApplicationName: cfg.ApplicationName,
	}
	if spec.ServerAddress == "" {
		spec.ServerAddress = DefaultPyroscopeAddr
	}
	if spec.ApplicationName == "" {
		spec.ApplicationName = DefaultApplicationKey
	}
	return spec
}

func parseDuration(field, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, errors.Wrapf(exception.ErrInvalidConfig, "%s: invalid duration %q", field, raw)
	}
	return d, nil
}
