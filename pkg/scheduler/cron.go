package scheduler

import (
	"context"
	"time"

	"Travault/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// zapCronLogger 将 cron 的日志转到 zap
type zapCronLogger struct{}

func (zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Lg().Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Lg().Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}

// Cron 任务在 Stop 时会收到取消的 context
type Cron struct {
	c      *cron.Cron
	loc    *time.Location
	ctx    context.Context
	cancel context.CancelFunc
}

func NewCron(loc *time.Location) *Cron {
	if loc == nil {
		loc = time.UTC
	}
	l := zapCronLogger{}
	c := cron.New(cron.WithLocation(loc), cron.WithLogger(l), cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)))
	ctx, cancel := context.WithCancel(context.Background())
	return &Cron{c: c, loc: loc, ctx: ctx, cancel: cancel}
}

func (cr *Cron) Start() { cr.c.Start() }

// Stop 取消运行中任务的 context 并等待其结束
func (cr *Cron) Stop() {
	cr.cancel()
	<-cr.c.Stop().Done()
}

func (cr *Cron) Add(expr string, name string, job Job) (cron.EntryID, error) {
	return cr.c.AddFunc(expr, func() {
		start := time.Now()
		job.Run(cr.ctx)
		logger.Debug("cron job finished", zap.String("job", name), zap.Duration("elapsed", time.Since(start)))
	})
}

func (cr *Cron) AddWithCtx(expr string, name string, fn func(ctx context.Context)) (cron.EntryID, error) {
	return cr.Add(expr, name, FuncJob(fn))
}

func (cr *Cron) Entries() []cron.Entry { return cr.c.Entries() }
