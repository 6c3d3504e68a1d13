package main

import (
	"fmt"
	"io"
	"runtime"
	"slices"
	"text/template"
	"time"

	"github.com/plus3/tessera/ecs"
)

type Report struct {
	// Configuration
	Duration   time.Duration
	Executor   string
	Entities   int
	Components int
	Systems    int

	// Results
	TotalUpdates   int64
	TotalTime      time.Duration
	UpdateTime     Stats
	GCPauseMetrics bool
	MemStatsStart  runtime.MemStats
	MemStatsEnd    runtime.MemStats
	Scheduler      *ecs.SchedulerStats
	Storage        ecs.StorageStats
	Population     Population
}

// Stats summarises frame time samples.
type Stats struct {
	Min     time.Duration
	Max     time.Duration
	Avg     time.Duration
	P50     time.Duration
	P99     time.Duration
	Samples []time.Duration
}

// Finalize computes the summary. It sorts Samples in place.
func (s *Stats) Finalize() {
	if len(s.Samples) == 0 {
		return
	}
	slices.Sort(s.Samples)

	var total time.Duration
	for _, sample := range s.Samples {
		total += sample
	}
	s.Min = s.Samples[0]
	s.Max = s.Samples[len(s.Samples)-1]
	s.Avg = total / time.Duration(len(s.Samples))
	s.P50 = s.percentile(50)
	s.P99 = s.percentile(99)
}

// percentile uses the nearest-rank method over sorted samples.
func (s *Stats) percentile(p int) time.Duration {
	rank := (p*len(s.Samples) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return s.Samples[rank-1]
}

const reportTemplate = `
# ECS Stress Test Report

## Test Configuration
- **Run Duration:** {{.Duration}}
- **Executor:** {{.Executor}}
- **Initial Entities:** {{.Entities}}
- **Components:** {{.Components}}
- **Systems:** {{.Systems}}

## Performance Results
- **Total Updates:** {{.TotalUpdates}}
- **Total Test Time:** {{.TotalTime}}
- **Update Time (Frame):**
  - **Avg:** {{.UpdateTime.Avg}}
  - **P50:** {{.UpdateTime.P50}}
  - **P99:** {{.UpdateTime.P99}}
  - **Min:** {{.UpdateTime.Min}}
  - **Max:** {{.UpdateTime.Max}}
{{with .Scheduler}}
## Schedule
- **Stages:** {{.Stages}}
- **Waves:** {{.Waves}}
- **Runs:** {{.Runs}}

| System | Set | Runs | Avg | Min | Max |
|---|---|---|---|---|---|
{{- range .Systems}}
| {{.Name}} | {{.Set}} | {{.ExecutionCount}} | {{.AvgDuration}} | {{.MinDuration}} | {{.MaxDuration}} |
{{- end}}
{{end}}
## Storage
- **Live Entities:** {{.Storage.TotalEntityCount}}
- **Archetypes:** {{.Storage.ArchetypeCount}}
- **Tables:** {{.Storage.TableCount}}
- **Sparse Sets:** {{.Storage.SparseSetCount}}
- **Spawned:** {{.Population.Spawned}}
- **Reaped:** {{.Population.Reaped}}

## Memory Usage (MiB)
- Heap Alloc:  {{mb .MemStatsStart.HeapAlloc}} -> {{mb .MemStatsEnd.HeapAlloc}}
- Total Alloc: {{mb .MemStatsStart.TotalAlloc}} -> {{mb .MemStatsEnd.TotalAlloc}}
- Sys Memory:  {{mb .MemStatsStart.Sys}} -> {{mb .MemStatsEnd.Sys}}
- Num GC:      {{usub .MemStatsEnd.NumGC .MemStatsStart.NumGC}}
{{if .GCPauseMetrics}}
## GC Pause Durations
- **Total GC Pause:** {{nsub .MemStatsEnd.PauseTotalNs .MemStatsStart.PauseTotalNs}}
- **Last GC Pause:** {{lastPause .MemStatsEnd}}
{{end}}`

var reportFuncs = template.FuncMap{
	"mb": func(v uint64) string {
		return fmt.Sprintf("%.2f", float64(v)/1024/1024)
	},
	"usub": func(a, b uint32) uint32 {
		return a - b
	},
	"nsub": func(a, b uint64) time.Duration {
		return time.Duration(a - b)
	},
	"lastPause": func(m runtime.MemStats) time.Duration {
		if m.NumGC == 0 {
			return 0
		}
		return time.Duration(m.PauseNs[(m.NumGC+255)%256])
	},
}

var reportTmpl = template.Must(template.New("report").Funcs(reportFuncs).Parse(reportTemplate))

func (r *Report) Generate(w io.Writer) error {
	return reportTmpl.Execute(w, r)
}
