package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AzielCF/az-prospector/dispatch/domain"
	cronlib "github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// cronLogger adapta logrus a cron.Logger
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(kvFields(keysAndValues)).Debug("[SCHEDULER] " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(kvFields(keysAndValues)).WithError(err).Error("[SCHEDULER] " + msg)
}

func kvFields(kv []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}

// Scheduler dispara el ciclo de despacho y el reaper. SkipIfStillRunning descarta
// el disparo si la ejecución anterior no terminó; no se encola.
// El job de despacho siempre se registra; dispatch_enabled se lee en cada ciclo (StopDisabled).
type Scheduler struct {
	cron         *cronlib.Cron
	orchestrator *Orchestrator
	reaper       *Reaper
	runOnStart   bool
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

type SchedulerConfig struct {
	DispatchInterval time.Duration
	ReaperInterval   time.Duration
	// RunOnStart lanza un ciclo al arrancar sin esperar al primer intervalo
	RunOnStart bool
}

func NewScheduler(o *Orchestrator, r *Reaper, cfg SchedulerConfig) (*Scheduler, error) {
	logger := cronLogger{entry: logrus.WithField("component", "scheduler")}
	c := cronlib.New(cronlib.WithChain(
		cronlib.Recover(logger),
		cronlib.SkipIfStillRunning(logger),
	), cronlib.WithLogger(logger))

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: c, orchestrator: o, reaper: r, runOnStart: cfg.RunOnStart, ctx: ctx, cancel: cancel}

	if o != nil {
		if cfg.DispatchInterval <= 0 {
			cfg.DispatchInterval = 5 * time.Minute
		}
		if _, err := c.AddFunc(every(cfg.DispatchInterval), s.runDispatch); err != nil {
			cancel()
			return nil, fmt.Errorf("schedule dispatch: %w", err)
		}
	}
	if r != nil {
		if cfg.ReaperInterval <= 0 {
			cfg.ReaperInterval = 2 * time.Hour
		}
		if _, err := c.AddFunc(every(cfg.ReaperInterval), s.runReaper); err != nil {
			cancel()
			return nil, fmt.Errorf("schedule reaper: %w", err)
		}
	}
	return s, nil
}

func every(d time.Duration) string {
	return "@every " + d.String()
}

func (s *Scheduler) runDispatch() {
	if _, err := s.orchestrator.RunCycle(s.ctx); err != nil && !errors.Is(err, domain.ErrCycleInProgress) {
		logrus.WithError(err).Error("[DISPATCH] Cycle failed, will retry on next run")
	}
}

func (s *Scheduler) runReaper() {
	_, _ = s.reaper.Run(s.ctx)
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logrus.Infof("[SCHEDULER] Started with %d jobs", len(s.cron.Entries()))

	if s.runOnStart && s.orchestrator != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runDispatch()
		}()
	}
}

// Stop deja de disparar y espera a que terminen los jobs en curso
func (s *Scheduler) Stop(ctx context.Context) {
	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logrus.Warn("[SCHEDULER] Shutdown deadline reached with a job still running")
	}
	s.cancel()
}
