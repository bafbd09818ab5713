// Package stats implements the process-wide JCache statistics singleton:
// atomic byte/operation counters, a short-mutex-guarded bandwidth
// histogram, and a JSON dump plus textual summary at teardown.
//
// Grounded on the teacher's pkg/metrics/prometheus's promauto.With(registry)
// idiom for metric registration; per-call tracing lives in the cached-file
// facade, which calls internal/telemetry directly around the journal and
// vector-cache operations this package counts. The cyclic relationship
// between the cached-file
// facade (writer) and the teardown report (reader) is modeled, per
// spec.md §9, as two independent collaborators sharing this object rather
// than a back-reference: the facade calls RecordRead/RecordVectorRead, a
// separate Dump/Summary call reads the snapshot at exit.
package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sys/unix"
)

// Stats is the process-wide singleton described in spec.md §5/§6. It has
// an init-at-load / flush-on-exit lifecycle, per spec.md's "only long-lived
// mutable singleton in the core" note.
type Stats struct {
	appName   string
	pid       int
	startTime time.Time

	bytesRead    atomic.Uint64
	bytesReadV   atomic.Uint64
	bytesCached  atomic.Uint64
	bytesCachedV atomic.Uint64
	readOps      atomic.Uint64
	readVOps     atomic.Uint64
	readVReadOps atomic.Uint64
	nReadFiles   atomic.Uint64
	totalSize    atomic.Uint64

	hits   atomic.Uint64
	misses atomic.Uint64

	histMu      sync.Mutex
	urls        []string
	urlSeen     map[string]bool
	bytesPerSec []float64

	prom *promMetrics
}

type promMetrics struct {
	bytesTotal   *prometheus.CounterVec
	readOpsTotal *prometheus.CounterVec
	hitRatio     prometheus.Gauge
}

// New returns an initialized Stats object. Pass a non-nil registerer to
// also mirror counters into Prometheus (e.g. prometheus.DefaultRegisterer);
// pass nil to skip metrics registration entirely.
func New(appName string, reg prometheus.Registerer) *Stats {
	s := &Stats{
		appName:   appName,
		pid:       os.Getpid(),
		startTime: time.Now(),
		urlSeen:   make(map[string]bool),
	}
	if reg != nil {
		s.prom = &promMetrics{
			bytesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
				Name: "jcache_bytes_total",
				Help: "Total bytes served by JCache, by path and hit/miss.",
			}, []string{"path", "hit"}),
			readOpsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
				Name: "jcache_read_ops_total",
				Help: "Total read operations served by JCache, by path.",
			}, []string{"path"}),
			hitRatio: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
				Name: "jcache_hit_ratio",
				Help: "Unsmoothed global cache hit ratio.",
			}),
		}
	}
	return s
}

// RecordRead implements cachedfile.Recorder for point reads.
func (s *Stats) RecordRead(bytesServed uint64, hit bool, elapsed time.Duration) {
	s.readOps.Add(1)
	s.bytesRead.Add(bytesServed)
	if hit {
		s.bytesCached.Add(bytesServed)
	}
	s.recordHitMiss("read", bytesServed, hit, elapsed)
}

// RecordVectorRead implements cachedfile.Recorder for vector reads.
func (s *Stats) RecordVectorRead(bytesServed uint64, hit bool, elapsed time.Duration) {
	s.readVOps.Add(1)
	s.bytesReadV.Add(bytesServed)
	if hit {
		s.bytesCachedV.Add(bytesServed)
	}
	s.recordHitMiss("readv", bytesServed, hit, elapsed)
}

// RecordVectorChunk records one chunk within a vector-read request, for
// the readVreadOps counter (distinct from readVOps, the number of whole
// vector requests).
func (s *Stats) RecordVectorChunk() {
	s.readVReadOps.Add(1)
}

// RecordOpen records that a new remote object was opened, contributing
// its size to the process-wide total data size.
func (s *Stats) RecordOpen(url string, size uint64) {
	s.nReadFiles.Add(1)
	s.totalSize.Add(size)

	s.histMu.Lock()
	if !s.urlSeen[url] {
		s.urlSeen[url] = true
		s.urls = append(s.urls, url)
	}
	s.histMu.Unlock()
}

func (s *Stats) recordHitMiss(op string, bytesServed uint64, hit bool, elapsed time.Duration) {
	if hit {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}

	if elapsed > 0 && bytesServed > 0 {
		bps := float64(bytesServed) / elapsed.Seconds()
		s.histMu.Lock()
		s.bytesPerSec = append(s.bytesPerSec, bps)
		s.histMu.Unlock()
	}

	if s.prom != nil {
		hitLabel := "miss"
		if hit {
			hitLabel = "hit"
		}
		s.prom.bytesTotal.WithLabelValues(op, hitLabel).Add(float64(bytesServed))
		s.prom.readOpsTotal.WithLabelValues(op).Inc()
		s.prom.hitRatio.Set(s.HitRate())
	}
}

// HitRate returns the UNSMOOTHED global hit ratio (hits / (hits+misses)),
// 0 when there have been no requests yet. Per spec.md §9 this deliberately
// differs from PerFileHitRate's +1 smoothing — the inconsistency in the
// original is preserved rather than unified.
func (s *Stats) HitRate() float64 {
	hits := s.hits.Load()
	misses := s.misses.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// PerFileHitRate returns the +1-smoothed hit ratio for a single file's
// (hits, total) pair, matching the original per-file stats computation
// that spec.md §9 flags as inconsistent with the global aggregator.
func PerFileHitRate(hits, total uint64) float64 {
	return float64(hits+1) / float64(total+1)
}

// Snapshot is the JSON-serializable teardown dump, schema exactly per
// spec.md §6.
type Snapshot struct {
	AppName       string    `json:"appname"`
	PID           int       `json:"pid"`
	BytesRead     uint64    `json:"bytesRead"`
	BytesReadV    uint64    `json:"bytesReadV"`
	BytesCached   uint64    `json:"bytesCached"`
	BytesCachedV  uint64    `json:"bytesCachedV"`
	ReadOps       uint64    `json:"readOps"`
	ReadVOps      uint64    `json:"readVOps"`
	ReadVReadOps  uint64    `json:"readVreadOps"`
	NReadFiles    uint64    `json:"nreadfiles"`
	TotalDataSize uint64    `json:"totaldatasize"`
	URLs          []string  `json:"urls"`
	BytesPerSec   []float64 `json:"bytes_per_second"`
	UserTime      float64   `json:"userTime"`
	RealTime      float64   `json:"realTime"`
	SysTime       float64   `json:"sysTime"`
	StartTime     int64     `json:"startTime"`
}

// Snapshot builds the current Snapshot. realTime is wall-clock since New;
// user/sys times come from getrusage(2).
func (s *Stats) Snapshot() Snapshot {
	s.histMu.Lock()
	urls := append([]string(nil), s.urls...)
	bps := append([]float64(nil), s.bytesPerSec...)
	s.histMu.Unlock()

	real := time.Since(s.startTime).Seconds()
	userTime, sysTime := cpuTimes()

	return Snapshot{
		AppName:       s.appName,
		PID:           s.pid,
		BytesRead:     s.bytesRead.Load(),
		BytesReadV:    s.bytesReadV.Load(),
		BytesCached:   s.bytesCached.Load(),
		BytesCachedV:  s.bytesCachedV.Load(),
		ReadOps:       s.readOps.Load(),
		ReadVOps:      s.readVOps.Load(),
		ReadVReadOps:  s.readVReadOps.Load(),
		NReadFiles:    s.nReadFiles.Load(),
		TotalDataSize: s.totalSize.Load(),
		URLs:          urls,
		BytesPerSec:   bps,
		UserTime:      userTime,
		RealTime:      real,
		SysTime:       sysTime,
		StartTime:     s.startTime.Unix(),
	}
}

func cpuTimes() (user, sys float64) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, 0
	}
	toSec := func(tv unix.Timeval) float64 {
		return float64(tv.Sec) + float64(tv.Usec)/1e6
	}
	return toSec(ru.Utime), toSec(ru.Stime)
}

// DumpJSON writes the current Snapshot as JSON to dir/<appname>-<pid>.json,
// matching the JCache plugin's "json" configuration key (a directory
// prefix for the dump).
func (s *Stats) DumpJSON(dir string) error {
	snap := s.Snapshot()
	path := fmt.Sprintf("%s/%s-%d.json", dir, s.appName, s.pid)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("stats: dump: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// WriteSummary renders a human-readable teardown table, used unless the
// JCache "summary" configuration key is "false".
func (s *Stats) WriteSummary(w io.Writer) {
	snap := s.Snapshot()
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"metric", "value"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	rows := [][]string{
		{"bytes read", fmt.Sprintf("%d", snap.BytesRead)},
		{"bytes read (vector)", fmt.Sprintf("%d", snap.BytesReadV)},
		{"bytes served from cache", fmt.Sprintf("%d", snap.BytesCached)},
		{"bytes served from cache (vector)", fmt.Sprintf("%d", snap.BytesCachedV)},
		{"read ops", fmt.Sprintf("%d", snap.ReadOps)},
		{"vector read ops", fmt.Sprintf("%d", snap.ReadVOps)},
		{"vector read chunk ops", fmt.Sprintf("%d", snap.ReadVReadOps)},
		{"files opened", fmt.Sprintf("%d", snap.NReadFiles)},
		{"total data size", fmt.Sprintf("%d", snap.TotalDataSize)},
		{"hit rate (unsmoothed)", fmt.Sprintf("%.4f", s.HitRate())},
		{"real time (s)", fmt.Sprintf("%.3f", snap.RealTime)},
	}
	for _, r := range rows {
		table.Append(r)
	}
	table.Render()
}
