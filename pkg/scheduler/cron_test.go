package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronRunsJobs(t *testing.T) {
	cr := NewCron(nil)
	var runs int32
	_, err := cr.AddWithCtx("@every 1s", "count", func(ctx context.Context) {
		atomic.AddInt32(&runs, 1)
	})
	require.NoError(t, err)
	assert.Len(t, cr.Entries(), 1)

	cr.Start()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 1 }, 3*time.Second, 50*time.Millisecond)
	cr.Stop()
}

func TestCronRejectsBadExpression(t *testing.T) {
	cr := NewCron(time.UTC)
	_, err := cr.Add("not a schedule", "bad", FuncJob(func(context.Context) {}))
	assert.Error(t, err)
}

func TestCronStopCancelsContext(t *testing.T) {
	cr := NewCron(nil)
	started := make(chan struct{})
	cancelled := make(chan struct{})
	_, err := cr.AddWithCtx("@every 1s", "block", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	})
	require.NoError(t, err)
	cr.Start()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not start")
	}
	cr.Stop()
	select {
	case <-cancelled:
	default:
		t.Fatal("job context was not cancelled")
	}
}
