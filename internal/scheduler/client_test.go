package scheduler

import (
	"context"
	"testing"

	"trialops_backend/internal/config"

	"github.com/alicebob/miniredis/v2"
)

func testClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client, err := NewClient(&config.Config{
		RedisURL:   "redis://" + mr.Addr(),
		AsynqQueue: "trialops",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestNewClientRequiresRedisURL(t *testing.T) {
	if _, err := NewClient(&config.Config{}); err == nil {
		t.Fatalf("expected error without redis url")
	}
}

func TestNewClientRejectsMalformedURL(t *testing.T) {
	if _, err := NewClient(&config.Config{RedisURL: "://nope"}); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestEnqueueAnalyzeBatch(t *testing.T) {
	client, mr := testClient(t)

	err := client.EnqueueAnalyzeBatch(context.Background(), AnalyzeBatchPayload{
		TrialID: "CT-001",
		Domain:  "LB",
		Source:  "central_lab",
	})
	if err != nil {
		t.Fatalf("enqueue analyze batch: %v", err)
	}
	if len(mr.Keys()) == 0 {
		t.Fatalf("expected queued task in redis")
	}
}

func TestEnqueueSweepAndOutboxDispatch(t *testing.T) {
	client, mr := testClient(t)

	if err := client.EnqueueSweep(context.Background()); err != nil {
		t.Fatalf("enqueue sweep: %v", err)
	}
	if err := client.EnqueueOutboxDispatch(context.Background(), 50); err != nil {
		t.Fatalf("enqueue outbox dispatch: %v", err)
	}
	if len(mr.Keys()) == 0 {
		t.Fatalf("expected queued tasks in redis")
	}
}

func TestRedisClientOptTLS(t *testing.T) {
	opt, err := redisClientOpt("rediss://cache.example.com:6380", true)
	if err != nil {
		t.Fatalf("parse tls url: %v", err)
	}
	if opt.TLSConfig == nil || !opt.TLSConfig.InsecureSkipVerify {
		t.Fatalf("expected insecure TLS config, got %+v", opt.TLSConfig)
	}

	opt, err = redisClientOpt("redis://cache.example.com:6379", false)
	if err != nil {
		t.Fatalf("parse plain url: %v", err)
	}
	if opt.TLSConfig != nil {
		t.Fatalf("expected no TLS config for plain url")
	}
}

func TestTaskPayloadRoundTrip(t *testing.T) {
	task, err := NewAnalyzeBatchTask(AnalyzeBatchPayload{
		TrialID:   "CT-001",
		Domain:    "AE",
		Source:    "edc",
		RecordIDs: []string{"AE-1", "AE-2"},
	})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	payload, err := ParseAnalyzeBatchPayload(task)
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if payload.TrialID != "CT-001" || payload.Domain != "AE" || len(payload.RecordIDs) != 2 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}
