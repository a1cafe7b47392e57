package metrics

// Collector captures counters, gauges and histograms.
type Collector interface {
	IncCounter(name string, labels map[string]string, delta float64)
	SetGauge(name string, labels map[string]string, value float64)
	ObserveHistogram(name string, labels map[string]string, value float64)
}

// Metric names shared by the cache and the coordinator.
const (
	CacheHits         = "cache_hits_total"
	CacheMisses       = "cache_misses_total"
	CacheEvictions    = "cache_evictions_total"
	CacheRejected     = "cache_rejected_total"
	CacheBytes        = "cache_bytes"
	Computations      = "computations_total"
	ComputeSeconds    = "compute_duration_seconds"
	RegistryDatasets  = "registry_datasets"
	RPCRequests       = "rpc_requests_total"
	DropNotifications = "drop_notifications_total"
)

// Nop discards everything.
type Nop struct{}

func (Nop) IncCounter(string, map[string]string, float64)       {}
func (Nop) SetGauge(string, map[string]string, float64)         {}
func (Nop) ObserveHistogram(string, map[string]string, float64) {}

// OrNop returns c, or Nop when c is nil.
func OrNop(c Collector) Collector {
	if c == nil {
		return Nop{}
	}
	return c
}
