// internal/metrics/aggregator.go
package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mwiater/examrag/internal/logging"
	"github.com/mwiater/examrag/internal/providers"
)

// Aggregator collects per-model performance metrics. It is safe for
// concurrent use.
type Aggregator struct {
	mutex    sync.Mutex
	metrics  map[string]*ModelMetrics
	filePath string
	now      func() time.Time
}

// NewAggregator returns an aggregator persisted at filePath. Existing
// metrics there are loaded; an empty path keeps everything in memory.
func NewAggregator(filePath string) *Aggregator {
	agg := &Aggregator{
		metrics:  make(map[string]*ModelMetrics),
		filePath: filePath,
		now:      time.Now,
	}
	agg.load()
	return agg
}

func (a *Aggregator) load() {
	if a.filePath == "" {
		return
	}
	data, err := os.ReadFile(a.filePath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logging.LogEvent("[METRICS] read %s: %v", a.filePath, err)
		}
		return
	}

	var list []*ModelMetrics
	if err := json.Unmarshal(data, &list); err != nil {
		logging.LogEvent("[METRICS] ignoring malformed %s: %v", a.filePath, err)
		return
	}
	for _, m := range list {
		if m != nil && m.ModelName != "" {
			a.metrics[m.ModelName] = m
		}
	}
}

// Save writes the metrics file. It is a no-op without a path.
func (a *Aggregator) Save() error {
	if a.filePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(a.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(a.filePath), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	logging.LogEvent("[METRICS] Saving metrics to %s", a.filePath)
	return os.WriteFile(a.filePath, data, 0o644)
}

func (a *Aggregator) model(name string) *ModelMetrics {
	m, ok := a.metrics[name]
	if !ok {
		m = &ModelMetrics{ModelName: name}
		a.metrics[name] = m
	}
	m.LastUpdatedUTC = a.now().UTC()
	return m
}

// RecordChat folds one completed chat call into the model's stats.
func (a *Aggregator) RecordChat(meta providers.StreamMetadata, ttft, total time.Duration) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	m := a.model(meta.Model)
	updateStats(&m.Chat, meta, ttft, total)

	bucket := getBucket(meta.PromptTokens)
	for i := range m.PerformanceBuckets {
		if m.PerformanceBuckets[i].Bucket == bucket {
			updateStats(&m.PerformanceBuckets[i].Stats, meta, ttft, total)
			return
		}
	}
	b := PerformanceBucket{Dimension: "input_tokens", Bucket: bucket}
	updateStats(&b.Stats, meta, ttft, total)
	m.PerformanceBuckets = append(m.PerformanceBuckets, b)
}

// RecordEmbed folds one embedding call's latency into the model's stats.
func (a *Aggregator) RecordEmbed(model string, d time.Duration) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.model(model).EmbedMillis.Add(float64(d.Milliseconds()))
}

// RecordError counts a failed call against the model.
func (a *Aggregator) RecordError(model string) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.model(model).Errors++
}

// Snapshot returns copies of every model's metrics ordered by name.
func (a *Aggregator) Snapshot() []ModelMetrics {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	out := make([]ModelMetrics, 0, len(a.metrics))
	for _, m := range a.metrics {
		c := *m
		c.PerformanceBuckets = append([]PerformanceBucket(nil), m.PerformanceBuckets...)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelName < out[j].ModelName })
	return out
}

func updateStats(stats *RunningAggregatedStats, meta providers.StreamMetadata, ttft, total time.Duration) {
	stats.TotalRequests++
	stats.TTFTMillis.Add(float64(ttft.Milliseconds()))
	stats.InputTokens.Add(float64(meta.PromptTokens))
	stats.OutputTokens.Add(float64(meta.CompletionTokens))
	stats.TotalDurationMillis.Add(float64(total.Milliseconds()))
}

// getBucket maps a prompt size to its bucket label.
func getBucket(inputTokens int) string {
	switch {
	case inputTokens <= 256:
		return "0-256"
	case inputTokens <= 1024:
		return "257-1024"
	case inputTokens <= 4096:
		return "1025-4096"
	case inputTokens <= 8192:
		return "4097-8192"
	default:
		return "8192+"
	}
}
