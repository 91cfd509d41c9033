// Package schedule runs the periodic scrape of every active winery.
package schedule

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Job is the work run on every tick.
type Job func(ctx context.Context) error

// Runner fires a Job on a cron schedule with a seconds field. A tick that
// arrives while the previous run is still going is skipped.
type Runner struct {
	cron *cron.Cron
	spec string
	job  Job
	id   cron.EntryID
	ctx  context.Context // set by Run before the cron starts
}

// New parses spec (six fields, seconds first) and binds job to it.
func New(spec string, job Job) (*Runner, error) {
	logger := cronLogger{log: zap.L().Named("cron")}
	r := &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		spec: spec,
		job:  job,
		ctx:  context.Background(),
	}

	id, err := r.cron.AddFunc(spec, r.tick)
	if err != nil {
		return nil, eris.Wrapf(err, "schedule: parse spec %q", spec)
	}
	r.id = id
	return r, nil
}

// Next returns the next time the job will fire after t.
func (r *Runner) Next(t time.Time) time.Time {
	return r.cron.Entry(r.id).Schedule.Next(t)
}

// Run starts the schedule and blocks until ctx is done, then waits for a
// run in progress to return. ctx is passed to every job.
func (r *Runner) Run(ctx context.Context) error {
	r.ctx = ctx
	r.cron.Start()
	zap.L().Info("schedule: started", zap.String("spec", r.spec), zap.Time("next", r.Next(time.Now())))

	<-ctx.Done()
	stopped := r.cron.Stop()
	<-stopped.Done()
	zap.L().Info("schedule: stopped")
	return nil
}

func (r *Runner) tick() {
	start := time.Now()
	zap.L().Info("schedule: run starting")
	if err := r.job(r.ctx); err != nil {
		zap.L().Error("schedule: run failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return
	}
	zap.L().Info("schedule: run complete", zap.Duration("elapsed", time.Since(start)))
}

// ServeMetrics serves h at /metrics on ln until ctx is done.
func ServeMetrics(ctx context.Context, ln net.Listener, h http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("schedule: serving metrics", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "schedule: metrics server")
	}
	return nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
