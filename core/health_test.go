package core

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestCollectHealthCookieMirror(t *testing.T) {
	st := CollectHealth(context.Background(), Config{MirrorBackend: MirrorCookie}, nil, time.Now().Add(-3*time.Second))
	if st.Status != "ok" || !st.MirrorOK {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.UptimeSeconds < 3 {
		t.Fatalf("uptime = %d", st.UptimeSeconds)
	}
}

func TestCollectHealthRedisMirror(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	cfg := Config{MirrorBackend: MirrorRedis}

	if st := CollectHealth(context.Background(), cfg, rdb, time.Time{}); st.Status != "ok" || !st.MirrorOK {
		t.Fatalf("reachable redis reported as %+v", st)
	}

	mr.Close()
	if st := CollectHealth(context.Background(), cfg, rdb, time.Time{}); st.Status != "degraded" || st.MirrorOK {
		t.Fatalf("closed redis reported as %+v", st)
	}
	if st := CollectHealth(context.Background(), cfg, nil, time.Time{}); st.MirrorOK {
		t.Fatalf("missing client reported as %+v", st)
	}
}
