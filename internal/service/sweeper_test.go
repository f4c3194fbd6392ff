package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/gallerybot/internal/config"
	"github.com/xiaot623/gogo/gallerybot/internal/domain"
	"github.com/xiaot623/gogo/gallerybot/tests/helpers"
)

type countingPruner struct {
	n atomic.Int32
}

func (p *countingPruner) Prune() int {
	p.n.Add(1)
	return 0
}

func TestSessionSweeperPurgesAndStops(t *testing.T) {
	ctx := context.Background()
	db := helpers.NewTestSQLiteStore(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := config.Default()
	cfg.Sweep.Interval = 10 * time.Millisecond
	svc := New(db, &fakeLLM{}, cfg, zap.NewNop())

	if err := db.CreateMessage(ctx, &domain.Message{
		MessageID:  "msg_old",
		SessionKey: "old@b.com",
		Role:       domain.RoleUser,
		Content:    "hello?",
		CreatedAt:  time.Now().Add(-49 * time.Hour),
	}); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if err := db.CreateMessage(ctx, &domain.Message{
		MessageID:  "msg_new",
		SessionKey: "new@b.com",
		Role:       domain.RoleUser,
		Content:    "hello!",
		CreatedAt:  time.Now(),
	}); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	pruner := &countingPruner{}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		svc.RunSessionSweeper(runCtx, pruner)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		sess, err := db.GetSession(ctx, "old@b.com")
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if sess == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected stale session to be purged")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	<-done

	if pruner.n.Load() == 0 {
		t.Fatalf("expected rate buckets to be pruned")
	}
	sess, err := db.GetSession(ctx, "new@b.com")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess == nil {
		t.Fatalf("expected active session to survive")
	}
}

func TestTriggerSweepRunsOneAtATime(t *testing.T) {
	svc, _ := newTestService(t, &fakeLLM{})

	svc.sweeping.Store(true)
	svc.triggerSweep()
	svc.Close()
	if !svc.sweeping.Load() {
		t.Fatalf("a running sweep must not be replaced")
	}
	svc.sweeping.Store(false)

	svc.triggerSweep()
	svc.Close()
	if svc.sweeping.Load() {
		t.Fatalf("sweep guard should be released after the sweep")
	}
}
