package models

// CacheStats summarizes the point-cache tier.
type CacheStats struct {
	Backend   string `json:"backend"`
	TotalKeys int    `json:"total_keys"`
	Hits      int64  `json:"hits"`
	Misses    int64  `json:"misses"`
	Sets      int64  `json:"sets"`
	Errors    int64  `json:"errors"`
	Evictions int64  `json:"evictions"`
}

// PoolStats summarizes one pre-generation pool.
type PoolStats struct {
	Size          int     `json:"size"`
	Threshold     int     `json:"threshold"`
	Requests      int64   `json:"requests"`
	Refills       int64   `json:"refills"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// TierStats is the full observability snapshot of the cache manager.
type TierStats struct {
	Cache       CacheStats           `json:"cache"`
	Pools       map[string]PoolStats `json:"pools"`
	TotalPooled int                  `json:"total_pooled"`
}

// PipelineStats counts orchestrator outcomes since process start.
type PipelineStats struct {
	CacheHits     int64 `json:"cache_hits"`
	PoolHits      int64 `json:"pool_hits"`
	Generated     int64 `json:"generated"`
	Degraded      int64 `json:"degraded"`
	ParseFailures int64 `json:"parse_failures"`
	MutationCalls int64 `json:"mutation_calls"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
