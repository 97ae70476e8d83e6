package core

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// HealthStatus is the /healthz payload.
type HealthStatus struct {
	Status        string `json:"status"`
	Mirror        string `json:"mirror"`
	MirrorOK      bool   `json:"mirror_ok"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// CollectHealth reports on the durable mirror. Only the redis backend can be
// unreachable; a failed ping marks the status degraded.
func CollectHealth(ctx context.Context, cfg Config, rdb redis.Cmdable, startedAt time.Time) HealthStatus {
	st := HealthStatus{Status: "ok", Mirror: cfg.MirrorBackend, MirrorOK: true}

	if cfg.MirrorBackend == MirrorRedis {
		st.MirrorOK = false
		if rdb != nil {
			pingCtx, cancel := context.WithTimeout(ctx, time.Second)
			st.MirrorOK = rdb.Ping(pingCtx).Err() == nil
			cancel()
		}
		if !st.MirrorOK {
			st.Status = "degraded"
		}
	}

	if !startedAt.IsZero() {
		st.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	}
	return st
}
