package natsq

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/calliope-hq/calliope/internal/domain"
)

func TestDecodeJob(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		wantOK bool
	}{
		{"valid", `{"entity_type":"document","entity_id":"d1"}`, true},
		{"not_json", `who needs brackets`, false},
		{"missing_type", `{"entity_id":"d1"}`, false},
		{"missing_id", `{"entity_type":"document"}`, false},
		{"empty", ``, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			job, ok := decodeJob([]byte(tc.data))
			if ok != tc.wantOK {
				t.Fatalf("decodeJob(%q) ok = %v, want %v", tc.data, ok, tc.wantOK)
			}
			if ok && (job.EntityType != "document" || job.EntityID != "d1") {
				t.Errorf("unexpected job: %+v", job)
			}
		})
	}
}

func TestDeliver_SendsDecodedJob(t *testing.T) {
	q := &Queue{logger: zap.NewNop()}
	ch := make(chan domain.EmbedJob, 1)

	q.deliver(context.Background(), ch, []byte(`{"entity_type":"note","entity_id":"n1"}`))

	select {
	case job := <-ch:
		if job.EntityType != "note" || job.EntityID != "n1" {
			t.Errorf("unexpected job: %+v", job)
		}
	default:
		t.Fatal("expected a job on the channel")
	}
}

func TestDeliver_DropsMalformed(t *testing.T) {
	q := &Queue{logger: zap.NewNop()}
	ch := make(chan domain.EmbedJob, 1)

	q.deliver(context.Background(), ch, []byte(`not json`))

	if len(ch) != 0 {
		t.Fatal("malformed payload must not reach the channel")
	}
}

// Dispatches racing a cancelled subscription must neither panic nor block.
// The select inside deliver may pick either ready case after cancellation;
// both have to be safe, so the job channel is never closed on shutdown.
func TestDeliver_RaceWithCancelDoesNotPanic(t *testing.T) {
	q := &Queue{logger: zap.NewNop()}
	ch := make(chan domain.EmbedJob, subscribeBuffer)
	payload := []byte(`{"entity_type":"document","entity_id":"d1"}`)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.deliver(ctx, ch, payload)
		}()
	}
	cancel()
	wg.Wait()

	// The channel stays open; whatever was delivered before the race is
	// still drainable.
	for len(ch) > 0 {
		<-ch
	}
}
