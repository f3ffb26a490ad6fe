package health

import (
	"context"
	"encoding/json"
	"runtime"
	"sort"
	"strconv"
	"time"

	"agrihill-backend/internal/application/live"
	"agrihill-backend/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// DBPinger is optional for health check. If nil, the process runs on the in-memory store.
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// Feed is a live view whose subscription state is reported.
type Feed interface {
	State() live.State
}

// CollectResult is the /health/json shape.
type CollectResult struct {
	Status       string               `json:"status"`
	Runtime      RuntimeInfo          `json:"runtime"`
	Traffic      TrafficInfo          `json:"traffic"`
	Dependencies map[string]DepStatus `json:"dependencies"`
	Feeds        map[string]FeedInfo  `json:"feeds"`
	PostFailures map[string]int       `json:"postFailures"`
}

type RuntimeInfo struct {
	UptimeSeconds int64      `json:"uptimeSeconds"`
	Memory        MemoryInfo `json:"memory"`
	Goroutines    int        `json:"goroutines"`
	Platform      string     `json:"platform"`
	GoVersion     string     `json:"goVersion"`
}

type MemoryInfo struct {
	RSS      int `json:"rss"`
	HeapUsed int `json:"heapUsed"`
}

type TrafficInfo struct {
	TotalRequests   int         `json:"totalRequests"`
	SuccessCount    int         `json:"successCount"`
	FailedCount     int         `json:"failedCount"`
	SuccessRate     string      `json:"successRate"`
	AvgResponseTime interface{} `json:"avgResponseTime"`
	LastRequest     interface{} `json:"lastRequest"`
}

type DepStatus struct {
	Status string      `json:"status"`
	PingMs interface{} `json:"pingMs"`
}

// FeedInfo summarizes one live view.
type FeedInfo struct {
	Status    string     `json:"status"`
	Records   int        `json:"records"`
	Version   uint64     `json:"version"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	Error     string     `json:"error,omitempty"`
}

func feedInfo(st live.State) FeedInfo {
	info := FeedInfo{Status: "live", Records: len(st.Remote), Version: st.Version}
	if !st.UpdatedAt.IsZero() {
		t := st.UpdatedAt
		info.UpdatedAt = &t
	}
	switch {
	case st.Closed:
		info.Status = "closed"
	case st.Err != nil:
		info.Status = "error"
		info.Error = st.Err.Error()
	case st.Loading:
		info.Status = "loading"
	}
	return info
}

// CollectHealth gathers health data from Redis, the optional DB and the live feeds.
func CollectHealth(ctx context.Context, rdb *redis.Client, db DBPinger, feeds map[string]Feed) CollectResult {
	result := CollectResult{
		Dependencies: make(map[string]DepStatus),
		Feeds:        make(map[string]FeedInfo, len(feeds)),
		PostFailures: map[string]int{},
	}

	dbStatus := "memory"
	var dbPingMs *int64
	if db != nil {
		start := time.Now()
		if err := db.PingContext(ctx); err == nil {
			ms := time.Since(start).Milliseconds()
			dbPingMs = &ms
			dbStatus = "connected"
		} else {
			dbStatus = "error"
		}
	}
	result.Dependencies["database"] = DepStatus{Status: dbStatus, PingMs: dbPingMs}

	redisStatus := "disconnected"
	var redisPingMs *int64
	stats := TrafficInfo{AvgResponseTime: 0, SuccessRate: "100"}
	startTimeMs := time.Now().UnixMilli()

	if rdb != nil {
		start := time.Now()
		if err := rdb.Ping(ctx).Err(); err == nil {
			ms := time.Since(start).Milliseconds()
			redisPingMs = &ms
			redisStatus = "connected"

			vals, _ := rdb.MGet(ctx,
				middleware.KeyReqTotal, middleware.KeyReqErrors, middleware.KeyResTime,
				middleware.KeyResCount, middleware.KeyStartTime, middleware.KeyLastReq,
			).Result()
			get := func(i int) string {
				if i < len(vals) {
					if s, ok := vals[i].(string); ok {
						return s
					}
				}
				return ""
			}

			if s := get(4); s != "" {
				if t, err := strconv.ParseInt(s, 10, 64); err == nil {
					startTimeMs = t
				}
			} else {
				rdb.Set(ctx, middleware.KeyStartTime, startTimeMs, 0)
			}

			stats.TotalRequests, _ = strconv.Atoi(get(0))
			stats.FailedCount, _ = strconv.Atoi(get(1))
			stats.SuccessCount = stats.TotalRequests - stats.FailedCount
			if stats.TotalRequests > 0 {
				stats.SuccessRate = strconv.FormatFloat(float64(stats.SuccessCount)/float64(stats.TotalRequests)*100, 'f', 1, 64)
			}
			timeSum, _ := strconv.ParseFloat(get(2), 64)
			countSum, _ := strconv.Atoi(get(3))
			if countSum > 0 {
				stats.AvgResponseTime = strconv.FormatFloat(timeSum/float64(countSum), 'f', 2, 64)
			}
			if s := get(5); s != "" {
				var lastReq map[string]interface{}
				_ = json.Unmarshal([]byte(s), &lastReq)
				stats.LastRequest = lastReq
			}

			failures, _ := rdb.HGetAll(ctx, middleware.KeyPostFailed).Result()
			for class, n := range failures {
				result.PostFailures[class], _ = strconv.Atoi(n)
			}
		} else {
			redisStatus = "error"
		}
	}
	result.Dependencies["redis"] = DepStatus{Status: redisStatus, PingMs: redisPingMs}
	result.Traffic = stats

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	uptimeSec := (time.Now().UnixMilli() - startTimeMs) / 1000
	if uptimeSec < 0 {
		uptimeSec = 0
	}
	result.Runtime = RuntimeInfo{
		UptimeSeconds: uptimeSec,
		Memory:        MemoryInfo{RSS: int(m.Sys / 1024 / 1024), HeapUsed: int(m.HeapInuse / 1024 / 1024)},
		Goroutines:    runtime.NumGoroutine(),
		Platform:      runtime.GOOS + " (" + runtime.GOARCH + ")",
		GoVersion:     runtime.Version(),
	}

	feedsOK := true
	for _, name := range sortedNames(feeds) {
		info := feedInfo(feeds[name].State())
		if info.Status == "error" || info.Status == "closed" {
			feedsOK = false
		}
		result.Feeds[name] = info
	}

	if dbStatus != "error" && redisStatus == "connected" && feedsOK {
		result.Status = "ok"
	} else {
		result.Status = "issue"
	}
	return result
}

func sortedNames(feeds map[string]Feed) []string {
	names := make([]string, 0, len(feeds))
	for n := range feeds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
