package main

import (
	"bytes"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/plus3/tessera/ecs"
	"github.com/plus3/tessera/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

func newStressWorld(t *testing.T, entities int, kind string) (*ecs.World, *ecs.Scheduler) {
	t.Helper()
	registry := ecs.NewComponentRegistry()
	registerComponents(registry)
	world := ecs.NewWorld(registry, ecs.WithLogger(zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))))
	t.Cleanup(world.Close)
	ecs.InitResource(world, Population{Target: entities})

	cfg := config.Defaults().Scheduler
	cfg.Executor = kind
	cfg.Ambiguity = "error"
	opts, err := schedulerOptions(cfg)
	require.NoError(t, err)
	scheduler := ecs.NewScheduler(world, opts...)
	require.NoError(t, registerSystems(scheduler, 7))
	require.NoError(t, scheduler.Build())

	rng := rand.New(rand.NewPCG(7, 0))
	for i := 0; i < entities; i++ {
		world.Spawn(randomComponents(rng)...)
	}
	return world, scheduler
}

func TestStressSchedule(t *testing.T) {
	_, scheduler := newStressWorld(t, 10, "parallel")

	assert.Equal(t, []ecs.SystemSet{preUpdate, ecs.DefaultSet, postUpdate}, scheduler.Stages())
	assert.Equal(t, [][]string{
		{"spawnerSystem"},
		{"movementSystem", "decaySystem"},
		{"burnSystem"},
		{"reaperSystem"},
		{"tallySystem"},
	}, scheduler.Waves())
	assert.Empty(t, scheduler.Ambiguities())
}

func TestStressPopulationIsConserved(t *testing.T) {
	for _, kind := range []string{"single", "parallel"} {
		t.Run(kind, func(t *testing.T) {
			const initial = 300
			world, scheduler := newStressWorld(t, initial, kind)

			for frame := 0; frame < 40; frame++ {
				require.NoError(t, scheduler.Once(0.5))

				pop := ecs.Resource[Population](world)
				alive := world.Entities().Len()
				assert.Equal(t, int64(initial)+pop.Spawned-pop.Reaped, int64(alive), "frame %d", frame)
				assert.LessOrEqual(t, alive, initial)
			}

			pop := ecs.Resource[Population](world)
			assert.Positive(t, pop.Reaped)
			assert.Positive(t, pop.Spawned)

			stats := scheduler.GetStats()
			assert.Equal(t, int64(40), stats.Runs)
			for _, s := range stats.Systems {
				assert.Equal(t, int64(40), s.ExecutionCount, s.Name)
			}
		})
	}
}

func TestBurningIsTransient(t *testing.T) {
	world, scheduler := newStressWorld(t, 500, "single")

	for range 20 {
		require.NoError(t, scheduler.Once(0.01))
	}
	burning := ecs.NewQuery[struct {
		Burning *Burning `ecs:"read"`
	}](world)
	for item := range burning.Values() {
		assert.Positive(t, item.Burning.Ticks)
		assert.LessOrEqual(t, item.Burning.Ticks, 10)
	}
}

func TestSchedulerOptions(t *testing.T) {
	cfg := config.Defaults().Scheduler
	opts, err := schedulerOptions(cfg)
	require.NoError(t, err)
	assert.Len(t, opts, 3)

	cfg.Workers = 2
	opts, err = schedulerOptions(cfg)
	require.NoError(t, err)
	assert.Len(t, opts, 4)

	bad := cfg
	bad.Executor = "fibers"
	_, err = schedulerOptions(bad)
	assert.Error(t, err)

	bad = cfg
	bad.ApplyPolicy = "later"
	_, err = schedulerOptions(bad)
	assert.Error(t, err)

	bad = cfg
	bad.Ambiguity = "panic"
	_, err = schedulerOptions(bad)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	log, err := newLogger(config.LoggingConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))

	log, err = newLogger(config.LoggingConfig{Level: "bogus", Format: "console"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestReportGenerate(t *testing.T) {
	world, scheduler := newStressWorld(t, 50, "single")
	require.NoError(t, scheduler.Once(0.1))

	report := &Report{
		Executor:       "single",
		GCPauseMetrics: true,
		Entities:       50,
		Components:     componentCount,
		Systems:        systemCount,
		UpdateTime:     Stats{Samples: []time.Duration{3, 1, 2}},
		Scheduler:      scheduler.GetStats(),
		Storage:        world.CollectStats(),
	}
	report.UpdateTime.Finalize()
	assert.Equal(t, time.Duration(1), report.UpdateTime.Min)
	assert.Equal(t, time.Duration(3), report.UpdateTime.Max)
	assert.Equal(t, time.Duration(2), report.UpdateTime.Avg)
	assert.Equal(t, time.Duration(2), report.UpdateTime.P50)
	assert.Equal(t, time.Duration(3), report.UpdateTime.P99)

	var buf bytes.Buffer
	require.NoError(t, report.Generate(&buf))
	out := buf.String()
	assert.Contains(t, out, "- **Executor:** single")
	assert.Contains(t, out, "- **Stages:** 3")
	assert.Contains(t, out, "| movementSystem | Update | 1 |")
	assert.Contains(t, out, "- **Live Entities:**")
	assert.Contains(t, out, "## GC Pause Durations")
}
