package telemetry

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.opentelemetry.io/otel"
)

// InstrumentPerfStats samples process health into otel gauges for as
// long as ctx lives. the cpu sampler blocks for its measurement
// window, so the loop's effective period is the tick plus a minute.
func InstrumentPerfStats(ctx context.Context) {
	meter := otel.Meter("go.perf_stats")
	cpuGauge, _ := meter.Float64Gauge("cpu_usage")
	heapGauge, _ := meter.Int64Gauge("allocated_mb")
	liveObjectsGauge, _ := meter.Int64Gauge("live_objects")
	goroutineGauge, _ := meter.Int64Gauge("goroutine_count")

	go func() {
		ticker := time.NewTicker(time.Second * 30)
		defer ticker.Stop()

		var stats runtime.MemStats
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			runtime.ReadMemStats(&stats)
			heapGauge.Record(ctx, int64(stats.Alloc/1024/1024))
			liveObjectsGauge.Record(ctx, int64(stats.Mallocs-stats.Frees))
			goroutineGauge.Record(ctx, int64(runtime.NumGoroutine()))

			usage, err := cpu.PercentWithContext(ctx, time.Minute, false)
			if err == nil && len(usage) > 0 {
				cpuGauge.Record(ctx, usage[0])
			}
		}
	}()
}
