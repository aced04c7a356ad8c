package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/pprof"
	"os"
	"reflect"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/kdindex/featureflag"
	kdhttp "github.com/aukilabs/kdindex/http"
	"github.com/aukilabs/kdindex/kdtree"
	"github.com/aukilabs/kdindex/models"
	"github.com/aukilabs/kdindex/snapshot"
	"github.com/golang/geo/r3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
)

const configFileEnv = "KDINDEX_CONFIG_FILE"

var (
	// The kdindex version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "kdindex_info",
		Help:        "kdindex information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// Keeps the config field names when the binary is obfuscated so that the cli
// package still generates readable options.
var _ = reflect.TypeOf(config{})

type config struct {
	AdminAddr          string        `cli:""        env:"KDINDEX_ADMIN_ADDR"           toml:"admin_addr"           help:"Admin listening address."`
	MaxAdminConns      int           `cli:",hidden" env:"KDINDEX_MAX_ADMIN_CONNS"      toml:"max_admin_conns"      help:"Maximum simultaneous admin connections (0 for unlimited)."`
	LogLevel           string        `cli:""        env:"KDINDEX_LOG_LEVEL"            toml:"log_level"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"KDINDEX_LOG_INDENT"           toml:"log_indent"           help:"Indent logs."`
	ConfigFile         string        `cli:""        env:"KDINDEX_CONFIG_FILE"          toml:"-"                    help:"TOML file with default options. Flags and environment variables take precedence."`
	Particles          int           `cli:""        env:"KDINDEX_PARTICLES"            toml:"particles"            help:"The number of particles in the world."`
	WorldSize          float64       `cli:""        env:"KDINDEX_WORLD_SIZE"           toml:"world_size"           help:"The edge length of the world cube."`
	MaxSpeed           float64       `cli:""        env:"KDINDEX_MAX_SPEED"            toml:"max_speed"            help:"The maximum initial speed of a particle."`
	TimeStep           time.Duration `cli:",hidden" env:"KDINDEX_TIME_STEP"            toml:"time_step"            help:"The simulated time elapsed at each tick."`
	FrameDuration      time.Duration `cli:",hidden" env:"KDINDEX_FRAME_DURATION"       toml:"frame_duration"       help:"The wall clock duration of a tick."`
	Ticks              int           `cli:""        env:"KDINDEX_TICKS"                toml:"ticks"                help:"The number of ticks to run (0 runs until interrupted)."`
	RebalanceInterval  int           `cli:",hidden" env:"KDINDEX_REBALANCE_INTERVAL"   toml:"rebalance_interval"   help:"The number of ticks between rebalances in incremental mode."`
	Neighbors          int           `cli:""        env:"KDINDEX_NEIGHBORS"            toml:"neighbors"            help:"The number of neighbors queried for each sampled particle."`
	Samples            int           `cli:",hidden" env:"KDINDEX_SAMPLES"              toml:"samples"              help:"The number of particles sampled for neighbor queries at each tick."`
	SnapshotFile       string        `cli:""        env:"KDINDEX_SNAPSHOT_FILE"        toml:"snapshot_file"        help:"The file where snapshots are stored (empty disables snapshots)."`
	SnapshotInterval   int           `cli:",hidden" env:"KDINDEX_SNAPSHOT_INTERVAL"    toml:"snapshot_interval"    help:"The number of ticks between snapshots."`
	SnapshotRetention  int           `cli:",hidden" env:"KDINDEX_SNAPSHOT_RETENTION"   toml:"snapshot_retention"   help:"The number of snapshots kept (0 keeps them all)."`
	LogSummaryInterval int           `cli:",hidden" env:"KDINDEX_LOG_SUMMARY_INTERVAL" toml:"log_summary_interval" help:"The number of ticks between index operation summaries."`
	FeatureFlags       []string      `cli:",hidden" env:"KDINDEX_FEATURE_FLAGS"        toml:"feature_flags"        help:"Comma separated feature flags"`
	Seed               int           `cli:",hidden" env:"KDINDEX_SEED"                 toml:"seed"                 help:"The seed of the particle generator."`
	Version            bool          `cli:""        env:"-"                            toml:"-"                    help:"Show version."`
	Help               bool          `cli:""        env:"-"                            toml:"-"                    help:"Show help."`
}

func defaultConfig() config {
	return config{
		AdminAddr:          ":18190",
		MaxAdminConns:      64,
		LogLevel:           logs.InfoLevel.String(),
		Particles:          4096,
		WorldSize:          100,
		MaxSpeed:           5,
		TimeStep:           time.Millisecond * 10,
		FrameDuration:      time.Millisecond * 15,
		RebalanceInterval:  32,
		Neighbors:          8,
		Samples:            16,
		SnapshotInterval:   64,
		SnapshotRetention:  16,
		LogSummaryInterval: 256,
		Seed:               1,
	}
}

func main() {
	conf := defaultConfig()

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	if err := loadConfigFile(configFilePath(os.Args[1:]), &conf); err != nil {
		logs.Fatal(err)
	}

	cli.Register().
		Help("Runs a particle world indexed by a KD-tree.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	featureFlags := featureflag.New(conf.FeatureFlags)
	r := rand.New(rand.NewSource(int64(conf.Seed)))

	world, err := models.NewWorld("kdindex", kdtree.Cube(r3.Vector{}, conf.WorldSize/2))
	if err != nil {
		logs.Fatal(errors.New("creating world failed").Wrap(err))
	}
	if err := world.SpawnRandom(r, conf.Particles, conf.MaxSpeed); err != nil {
		logs.Fatal(errors.New("spawning particles failed").Wrap(err))
	}

	treeOpts := []kdtree.Option{
		kdtree.WithName(world.Name),
		kdtree.WithCapacity(conf.Particles),
	}
	featureFlags.IfSet(featureflag.FlagDisableParallelFlatten, func() {
		treeOpts = append(treeOpts, kdtree.WithParallelDepth(0))
	})
	idx := kdtree.IndexWithLogs(kdtree.New(treeOpts...))
	idx = kdtree.IndexWithMetrics(idx)

	sim := simulation{
		World:              world,
		Index:              idx,
		FeatureFlags:       featureFlags,
		TimeStep:           conf.TimeStep.Seconds(),
		Neighbors:          conf.Neighbors,
		Samples:            conf.Samples,
		RebalanceInterval:  uint64(conf.RebalanceInterval),
		SnapshotInterval:   uint64(conf.SnapshotInterval),
		LogSummaryInterval: uint64(conf.LogSummaryInterval),
		rand:               r,
	}

	var wg sync.WaitGroup

	if conf.SnapshotFile != "" {
		store, err := snapshot.Open(conf.SnapshotFile, time.Second)
		if err != nil {
			logs.Fatal(errors.New("opening snapshot store failed").Wrap(err))
		}
		defer store.Close()

		sim.Snapshots = snapshot.NewWriter(store, 4, conf.SnapshotRetention)

		wg.Add(1)
		go func() {
			defer wg.Done()
			sim.Snapshots.Run(ctx)
		}()
	}

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", kdhttp.HandleHealthCheck)
	admin.HandleFunc("/ready", kdhttp.HandleReadyCheck(sim.readinessCheck))
	admin.HandleFunc("/version", kdhttp.HandleVersion(version))
	admin.HandleFunc("/debug/tree", kdhttp.HandleTreeStats(idx))
	admin.HandleFunc("/debug/tree/nearest", kdhttp.HandleNearest(idx))
	admin.HandleFunc("/debug/tree/range", kdhttp.HandleRange(idx))
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()

		switch err := sim.run(ctx, conf.FrameDuration, uint64(conf.Ticks)); {
		case err == nil:
			logs.WithTag("ticks", world.Ticks()).Info("simulation finished")

		case err == context.Canceled:
			logs.WithTag("ticks", world.Ticks()).Info("simulation stopped")

		default:
			logs.WithTag("ticks", world.Ticks()).
				Error(errors.New("simulation failed").Wrap(err))
		}
	}()

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("world_id", world.ID).
		WithTag("particles", world.Len()).
		WithTag("feature_flags", featureFlags.List()).
		Info("starting kdindex")

	kdhttp.ListenAndServe(ctx, conf.MaxAdminConns,
		&http.Server{Addr: conf.AdminAddr, Handler: metrics.HTTPHandler(&admin,
			kdhttp.MetricsPathFormatter)},
	)

	wg.Wait()
}

// configFilePath returns the config file given on the command line, falling
// back to the environment.
func configFilePath(args []string) string {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "config-file" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return os.Getenv(configFileEnv)
}

// loadConfigFile decodes the TOML file at path into conf. An empty path is
// ignored.
func loadConfigFile(path string, conf *config) error {
	if path == "" {
		return nil
	}

	md, err := toml.DecodeFile(path, conf)
	if err != nil {
		return errors.New("loading config file failed").
			WithTag("file_name", path).
			Wrap(err)
	}

	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return errors.New("unknown config file keys").
			WithTag("file_name", path).
			WithTag("keys", keys)
	}
	return nil
}

func validateConfig(conf config) error {
	if conf.AdminAddr == "" {
		return errors.New("admin address is empty")
	}

	if conf.MaxAdminConns < 0 {
		return errors.New("max admin connections must not be negative").
			WithTag("max_admin_conns", conf.MaxAdminConns)
	}

	if conf.Particles <= 0 {
		return errors.New("particles must be positive").
			WithTag("particles", conf.Particles)
	}

	if !(conf.WorldSize > 0) {
		return errors.New("world size must be positive").
			WithTag("world_size", conf.WorldSize)
	}

	if conf.MaxSpeed < 0 {
		return errors.New("max speed must not be negative").
			WithTag("max_speed", conf.MaxSpeed)
	}

	if conf.TimeStep <= 0 || conf.FrameDuration <= 0 {
		return errors.New("time step and frame duration must be positive").
			WithTag("time_step", conf.TimeStep).
			WithTag("frame_duration", conf.FrameDuration)
	}

	if conf.Neighbors < 0 || conf.Samples < 0 {
		return errors.New("neighbors and samples must not be negative").
			WithTag("neighbors", conf.Neighbors).
			WithTag("samples", conf.Samples)
	}

	if conf.Ticks < 0 ||
		conf.RebalanceInterval < 0 ||
		conf.SnapshotInterval < 0 ||
		conf.SnapshotRetention < 0 ||
		conf.LogSummaryInterval < 0 {
		return errors.New("tick counts must not be negative").
			WithTag("ticks", conf.Ticks).
			WithTag("rebalance_interval", conf.RebalanceInterval).
			WithTag("snapshot_interval", conf.SnapshotInterval).
			WithTag("snapshot_retention", conf.SnapshotRetention).
			WithTag("log_summary_interval", conf.LogSummaryInterval)
	}

	if conf.SnapshotFile != "" && conf.SnapshotInterval == 0 {
		return errors.New("snapshot interval must be positive when snapshots are enabled")
	}

	return nil
}
