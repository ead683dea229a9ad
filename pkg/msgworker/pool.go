package msgworker

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Job es una unidad de trabajo entrante (p.ej. una respuesta de WhatsApp).
// Jobs con la misma Key siempre caen en el mismo worker y se procesan en orden.
type Job struct {
	Key     string
	Handler func(ctx context.Context) error
}

// PoolStats contiene métricas en tiempo real del pool
type PoolStats struct {
	NumWorkers      int   `json:"num_workers"`
	QueueSize       int   `json:"queue_size"`
	ActiveWorkers   int   `json:"active_workers"`
	QueuedJobs      int   `json:"queued_jobs"`
	TotalDispatched int64 `json:"total_dispatched"`
	TotalProcessed  int64 `json:"total_processed"`
	TotalDropped    int64 `json:"total_dropped"`
	TotalErrors     int64 `json:"total_errors"`
}

// Pool reparte jobs entre workers por hash de la clave
type Pool struct {
	numWorkers int
	queueSize  int
	workers    []*worker
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopped    int32

	totalDispatched int64
	totalProcessed  int64
	totalDropped    int64
	totalErrors     int64
}

type worker struct {
	id           int
	queue        chan Job
	ctx          context.Context
	cancel       context.CancelFunc
	isProcessing int32
	pool         *Pool
}

// NewPool crea el pool; Start lo pone en marcha
func NewPool(numWorkers, queueSize int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Pool{
		numWorkers: numWorkers,
		queueSize:  queueSize,
		workers:    make([]*worker, numWorkers),
	}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		w := &worker{
			id:     i,
			queue:  make(chan Job, p.queueSize),
			ctx:    workerCtx,
			cancel: cancel,
			pool:   p,
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(&p.wg)
	}
	logrus.Infof("[WORKER_POOL] Started with %d workers, queue size: %d", p.numWorkers, p.queueSize)
}

// TryDispatch encola sin bloquear; false si la cola del worker está llena o el pool parado.
// Los webhooks la usan para responder 503 en lugar de perder el evento en silencio.
func (p *Pool) TryDispatch(job Job) (ok bool) {
	if atomic.LoadInt32(&p.stopped) == 1 || p.workers[0] == nil {
		atomic.AddInt64(&p.totalDropped, 1)
		return false
	}

	shard := p.shardFor(job.Key)

	defer func() {
		// envío sobre una cola cerrada durante Stop
		if r := recover(); r != nil {
			ok = false
		}
		if ok {
			atomic.AddInt64(&p.totalDispatched, 1)
		} else {
			atomic.AddInt64(&p.totalDropped, 1)
			logrus.Warnf("[WORKER_POOL] Worker %d queue full (or stopped), dropping job for %s", shard, job.Key)
		}
	}()

	select {
	case p.workers[shard].queue <- job:
		return true
	default:
		return false
	}
}

// Stop cierra las colas y espera a que los workers drenen lo pendiente
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		atomic.StoreInt32(&p.stopped, 1)
		for _, w := range p.workers {
			if w == nil {
				continue
			}
			close(w.queue)
		}
		p.wg.Wait()
		for _, w := range p.workers {
			if w != nil {
				w.cancel()
			}
		}
		logrus.Info("[WORKER_POOL] All workers stopped")
	})
}

func (p *Pool) shardFor(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(p.numWorkers))
}

func (p *Pool) Stats() PoolStats {
	stats := PoolStats{
		NumWorkers:      p.numWorkers,
		QueueSize:       p.queueSize,
		TotalDispatched: atomic.LoadInt64(&p.totalDispatched),
		TotalProcessed:  atomic.LoadInt64(&p.totalProcessed),
		TotalDropped:    atomic.LoadInt64(&p.totalDropped),
		TotalErrors:     atomic.LoadInt64(&p.totalErrors),
	}
	for _, w := range p.workers {
		if w == nil {
			continue
		}
		if atomic.LoadInt32(&w.isProcessing) == 1 {
			stats.ActiveWorkers++
		}
		stats.QueuedJobs += len(w.queue)
	}
	return stats
}

// run procesa hasta que la cola se cierra; Stop cierra las colas antes de cancelar,
// así los jobs ya aceptados se completan.
func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()
	for job := range w.queue {
		w.process(job)
	}
	logrus.Debugf("[WORKER_POOL] Worker %d shutting down", w.id)
}

func (w *worker) process(job Job) {
	atomic.StoreInt32(&w.isProcessing, 1)
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&w.pool.totalErrors, 1)
			logrus.Errorf("[WORKER_POOL] Worker %d panic for %s: %v", w.id, job.Key, r)
		}
		atomic.StoreInt32(&w.isProcessing, 0)
		atomic.AddInt64(&w.pool.totalProcessed, 1)
	}()

	if err := job.Handler(w.ctx); err != nil {
		atomic.AddInt64(&w.pool.totalErrors, 1)
		logrus.WithError(err).Errorf("[WORKER_POOL] Worker %d job failed for %s", w.id, job.Key)
	}
}
