package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"runtime"
	"time"

	"github.com/pkg/profile"
	"github.com/plus3/tessera/ecs"
	"github.com/plus3/tessera/internal/config"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", "", "Path to a TOML or YAML config file.")
	duration := flag.Duration("duration", 0, "The total duration the test should run for.")
	entityCount := flag.Int("entities", 0, "The initial number of entities to create.")
	executor := flag.String("executor", "", "Executor to use: single or parallel.")
	workers := flag.Int("workers", -1, "Worker count for the parallel executor (0 = GOMAXPROCS).")
	profileMode := flag.String("profile", "", "Profile to record: cpu, mem or off.")
	gcPauseMetrics := flag.Bool("gc-pause-metrics", false, "Enable detailed GC pause metrics in the report.")
	flag.Parse()

	cfg := config.Defaults()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "duration":
			cfg.Stress.Duration = *duration
		case "entities":
			cfg.Stress.Entities = *entityCount
		case "executor":
			cfg.Scheduler.Executor = *executor
		case "workers":
			cfg.Scheduler.Workers = *workers
		case "profile":
			cfg.Stress.Profile = *profileMode
		case "gc-pause-metrics":
			cfg.Stress.GCPauseMetrics = *gcPauseMetrics
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid flags: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("stress test failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	switch cfg.Stress.Profile {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	}

	log.Info("starting ECS stress test",
		zap.String("executor", cfg.Scheduler.Executor),
		zap.Int("entities", cfg.Stress.Entities),
		zap.Duration("duration", cfg.Stress.Duration),
	)

	// 1. Setup Registry, World, and Scheduler
	registry := ecs.NewComponentRegistry()
	registerComponents(registry)
	world := ecs.NewWorld(registry, ecs.WithLogger(log))
	defer world.Close()
	ecs.InitResource(world, Population{Target: cfg.Stress.Entities})

	opts, err := schedulerOptions(cfg.Scheduler)
	if err != nil {
		return err
	}
	scheduler := ecs.NewScheduler(world, opts...)
	if err := registerSystems(scheduler, cfg.Stress.Seed); err != nil {
		return err
	}
	if err := scheduler.Build(); err != nil {
		return err
	}

	// 2. Populate the World with initial entities
	rng := rand.New(rand.NewPCG(uint64(cfg.Stress.Seed), 0))
	for i := 0; i < cfg.Stress.Entities; i++ {
		world.Spawn(randomComponents(rng)...)
	}
	log.Info("population complete", zap.Int("entities", world.Entities().Len()))

	// 3. Run the simulation loop
	report := &Report{
		Duration:       cfg.Stress.Duration,
		Executor:       cfg.Scheduler.Executor,
		Entities:       cfg.Stress.Entities,
		Components:     componentCount,
		Systems:        systemCount,
		GCPauseMetrics: cfg.Stress.GCPauseMetrics,
		UpdateTime: Stats{
			Samples: make([]time.Duration, 0),
		},
	}

	runtime.ReadMemStats(&report.MemStatsStart)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Stress.Duration)
	defer cancel()

	// a zero tick rate runs frames back to back
	var tick <-chan time.Time
	if cfg.Scheduler.TickRate > 0 {
		ticker := time.NewTicker(cfg.Scheduler.TickRate)
		defer ticker.Stop()
		tick = ticker.C
	}

	startTime := time.Now()
	lastFrameTime := time.Now()

Loop:
	for {
		select {
		case <-ctx.Done():
			break Loop
		default:
			if tick != nil {
				select {
				case <-ctx.Done():
					break Loop
				case <-tick:
				}
			}
			deltaTime := time.Since(lastFrameTime)
			lastFrameTime = time.Now()

			updateStart := time.Now()
			if err := scheduler.Once(float64(deltaTime) / float64(time.Second)); err != nil {
				return err
			}
			report.UpdateTime.Samples = append(report.UpdateTime.Samples, time.Since(updateStart))
			report.TotalUpdates++
		}
	}

	report.TotalTime = time.Since(startTime)
	report.UpdateTime.Finalize()
	runtime.ReadMemStats(&report.MemStatsEnd)
	report.Scheduler = scheduler.GetStats()
	report.Storage = world.CollectStats()
	report.Population = *ecs.Resource[Population](world)

	log.Info("simulation finished", zap.Int64("updates", report.TotalUpdates))

	// 4. Generate Report to Console
	fmt.Println("\n\n--- Stress Test Report ---")
	if err := report.Generate(os.Stdout); err != nil {
		return err
	}
	fmt.Println("--- End of Report ---")
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

// schedulerOptions maps the scheduler config section to scheduler options.
func schedulerOptions(cfg config.SchedulerConfig) ([]ecs.SchedulerOption, error) {
	var opts []ecs.SchedulerOption
	switch cfg.Executor {
	case "single":
		opts = append(opts, ecs.WithExecutor(ecs.SingleThreaded))
	case "parallel":
		opts = append(opts, ecs.WithExecutor(ecs.MultiThreaded))
	default:
		return nil, eris.Errorf("unknown executor %q", cfg.Executor)
	}
	if cfg.Workers > 0 {
		opts = append(opts, ecs.WithWorkers(cfg.Workers))
	}
	switch cfg.ApplyPolicy {
	case "boundary":
		opts = append(opts, ecs.WithApplyPolicy(ecs.ApplyAtBoundary))
	case "immediate":
		opts = append(opts, ecs.WithApplyPolicy(ecs.ApplyImmediate))
	default:
		return nil, eris.Errorf("unknown apply policy %q", cfg.ApplyPolicy)
	}
	switch cfg.Ambiguity {
	case "ignore":
		opts = append(opts, ecs.WithAmbiguityDetection(ecs.AmbiguityIgnore))
	case "warn":
		opts = append(opts, ecs.WithAmbiguityDetection(ecs.AmbiguityWarn))
	case "error":
		opts = append(opts, ecs.WithAmbiguityDetection(ecs.AmbiguityError))
	default:
		return nil, eris.Errorf("unknown ambiguity level %q", cfg.Ambiguity)
	}
	return opts, nil
}
