package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	settingsDomain "github.com/AzielCF/az-prospector/core/settings/domain"
	"github.com/AzielCF/az-prospector/dispatch/domain"
	"github.com/AzielCF/az-prospector/dispatch/governor"
	"github.com/AzielCF/az-prospector/infrastructure/messaging"
	leadsDomain "github.com/AzielCF/az-prospector/leads/domain"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBatchSize       = 10
	DefaultAttemptCooldown = 30 * time.Minute
)

// Motivos de fin de ciclo
const (
	StopNoLeads        = "no_eligible_leads"
	StopWindowClosed   = "window_closed"
	StopQuotaExhausted = "quota_exhausted"
	StopRateLimited    = "rate_limited"
	StopCheckFailed    = "number_check_unavailable"
	StopPartialBatch   = "partial_batch"
	StopDisabled       = "disabled"
	StopStoreError     = "store_error"
	StopCancelled      = "cancelled"
)

// RuntimeConfigLoader entrega la configuración vigente al inicio de cada ciclo
type RuntimeConfigLoader interface {
	LoadRuntimeConfig(ctx context.Context) (settingsDomain.RuntimeConfig, error)
}

// LeadNotifier es el sink secundario (webhook); su fallo nunca revierte el marcado
type LeadNotifier interface {
	Notify(ctx context.Context, leads []*leadsDomain.Lead) error
}

// CycleReport resume un ciclo de despacho
type CycleReport struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Product      string    `json:"product,omitempty"`
	Batches      int       `json:"batches"`
	Fetched      int       `json:"fetched"`
	Delivered    int       `json:"delivered"`
	NonRetryable int       `json:"non_retryable"`
	Failed       int       `json:"failed"`
	Deferred     int       `json:"deferred"`
	Skipped      int       `json:"skipped"`
	StopReason   string    `json:"stop_reason"`
	WebhookError string    `json:"webhook_error,omitempty"`
}

// Processed son los leads que quedaron en Sent en este ciclo
func (r CycleReport) Processed() int {
	return r.Delivered + r.NonRetryable
}

type OrchestratorConfig struct {
	BatchSize       int
	AttemptCooldown time.Duration
}

// Orchestrator ejecuta ciclos fetch → validate → send → mark, estrictamente secuenciales
type Orchestrator struct {
	repo     leadsDomain.LeadRepository
	sender   domain.Sender
	governor *governor.RateGovernor
	settings RuntimeConfigLoader
	notifier LeadNotifier
	lock     domain.CycleLock
	cfg      OrchestratorConfig

	// sleep es reemplazable en tests
	sleep func(ctx context.Context, d time.Duration) error

	mu   sync.RWMutex
	last *CycleReport
}

type OrchestratorOption func(*Orchestrator)

func WithSettings(loader RuntimeConfigLoader) OrchestratorOption {
	return func(o *Orchestrator) { o.settings = loader }
}

func WithNotifier(n LeadNotifier) OrchestratorOption {
	return func(o *Orchestrator) { o.notifier = n }
}

func WithCycleLock(l domain.CycleLock) OrchestratorOption {
	return func(o *Orchestrator) { o.lock = l }
}

func WithSleep(fn func(ctx context.Context, d time.Duration) error) OrchestratorOption {
	return func(o *Orchestrator) { o.sleep = fn }
}

func NewOrchestrator(repo leadsDomain.LeadRepository, sender domain.Sender, gov *governor.RateGovernor, cfg OrchestratorConfig, opts ...OrchestratorOption) *Orchestrator {
	if cfg.BatchSize <= 0 || cfg.BatchSize > DefaultBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.AttemptCooldown < 0 {
		cfg.AttemptCooldown = 0
	}
	o := &Orchestrator{
		repo:     repo,
		sender:   sender,
		governor: gov,
		cfg:      cfg,
		lock:     NewMemoryCycleLock(),
		sleep:    messaging.SleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// LastReport devuelve el último ciclo completado, nil si todavía no corrió ninguno
func (o *Orchestrator) LastReport() *CycleReport {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return nil
	}
	r := *o.last
	return &r
}

func (o *Orchestrator) Governor() *governor.RateGovernor { return o.governor }

func (o *Orchestrator) Sender() domain.Sender { return o.sender }

// GovernorConfig traduce la configuración de runtime a la política del governor
func GovernorConfig(rc settingsDomain.RuntimeConfig) governor.Config {
	return governor.Config{
		HourlyLimit: rc.HourlyLimit,
		DailyLimit:  rc.DailyLimit,
		MinDelay:    rc.MinDelay,
		MaxDelay:    rc.MaxDelay,
		Days:        rc.BusinessDays,
		StartHour:   rc.StartHour,
		EndHour:     rc.EndHour,
		Location:    rc.Location(),
	}
}

// RunCycle ejecuta un ciclo completo. Devuelve ErrCycleInProgress si otro ciclo tiene el lock
// y ErrStoreUnavailable envuelto si el store falla; los fallos por lead nunca abortan el lote.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{ID: uuid.New().String(), StartedAt: o.governor.Now()}
	log := logrus.WithField("cycle_id", report.ID)

	token, ok, err := o.lock.TryAcquire(ctx)
	if err != nil {
		return report, fmt.Errorf("dispatch lock: %w", err)
	}
	if !ok {
		log.Info("[DISPATCH] Another cycle is in flight, skipping")
		return report, domain.ErrCycleInProgress
	}
	defer func() {
		// el ciclo puede haber sido cancelado; el release usa su propio contexto
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.lock.Release(releaseCtx, token); err != nil {
			log.WithError(err).Warn("[DISPATCH] Failed to release cycle lock")
		}
	}()

	err = o.runLocked(ctx, &report, log)
	report.FinishedAt = o.governor.Now()

	o.mu.Lock()
	snapshot := report
	o.last = &snapshot
	o.mu.Unlock()

	log.WithFields(logrus.Fields{
		"fetched":       report.Fetched,
		"delivered":     report.Delivered,
		"non_retryable": report.NonRetryable,
		"failed":        report.Failed,
		"deferred":      report.Deferred,
		"stop":          report.StopReason,
	}).Infof("[DISPATCH] Cycle finished in %s", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	return report, err
}

func (o *Orchestrator) runLocked(ctx context.Context, report *CycleReport, log *logrus.Entry) error {
	var product *leadsDomain.Product
	if o.settings != nil {
		rc, err := o.settings.LoadRuntimeConfig(ctx)
		if err != nil {
			report.StopReason = StopStoreError
			return fmt.Errorf("load runtime config: %w", err)
		}
		if !rc.DispatchEnabled {
			report.StopReason = StopDisabled
			return nil
		}
		o.governor.Configure(GovernorConfig(rc))
		if p, ok := leadsDomain.ParseProduct(rc.Mode); ok {
			product = &p
			report.Product = string(p)
		}
	}

	if reason := o.admission(); reason != "" {
		report.StopReason = reason
		log.Debugf("[DISPATCH] Not admitted: %s", reason)
		return nil
	}

	for {
		if ctx.Err() != nil {
			report.StopReason = StopCancelled
			return nil
		}

		batch, err := o.repo.FetchEligible(ctx, o.cfg.BatchSize, product, o.cfg.AttemptCooldown)
		if err != nil {
			report.StopReason = StopStoreError
			return err
		}
		if len(batch) == 0 {
			report.StopReason = StopNoLeads
			return nil
		}
		report.Batches++
		report.Fetched += len(batch)

		res := o.processBatch(ctx, batch, report, log)
		if err := o.commit(ctx, res, report, log); err != nil {
			report.StopReason = StopStoreError
			return err
		}

		if res.stop != "" {
			report.StopReason = res.stop
			return nil
		}
		if res.handled < len(batch) {
			report.StopReason = StopPartialBatch
			return nil
		}
	}
}

// admission comprueba ventana y cuota; "" significa que se puede enviar
func (o *Orchestrator) admission() string {
	if !o.governor.WithinBusinessWindow(o.governor.Now()) {
		return StopWindowClosed
	}
	if !o.governor.HasQuota() {
		return StopQuotaExhausted
	}
	return ""
}

type batchResult struct {
	processed []*leadsDomain.Lead
	failed    []int64
	handled   int
	stop      string
	storeErr  error
}

type phoneState int

const (
	phoneProcessed phoneState = iota + 1
	phoneFailed
	phoneDeferred
)

func (o *Orchestrator) processBatch(ctx context.Context, batch []*leadsDomain.Lead, report *CycleReport, log *logrus.Entry) batchResult {
	var res batchResult
	seen := make(map[string]phoneState, len(batch))

	for _, lead := range batch {
		leadLog := log.WithFields(logrus.Fields{"lead_id": lead.ID, "phone": lead.Phone})

		phone, err := leadsDomain.ParsePhoneNumber(lead.Phone)
		if err != nil {
			leadLog.WithError(err).Info("[DISPATCH] Invalid phone, marking Failed")
			res.failed = append(res.failed, lead.ID)
			res.handled++
			report.Failed++
			continue
		}

		// dos filas Pending con el mismo teléfono: solo la primera se contacta
		if state, dup := seen[phone.String()]; dup {
			switch state {
			case phoneFailed:
				res.failed = append(res.failed, lead.ID)
				report.Failed++
				res.handled++
			case phoneProcessed:
				report.Skipped++
				res.handled++
			default:
				report.Skipped++
			}
			continue
		}

		if reason := o.admission(); reason != "" {
			res.stop = reason
			break
		}

		exists, err := o.sender.Validate(ctx, phone)
		if err != nil {
			// sin verificación no se cierra el lead; el backend probablemente está caído
			seen[phone.String()] = phoneDeferred
			report.Deferred++
			res.stop = StopCheckFailed
			leadLog.WithError(err).Warn("[DISPATCH] Number check unavailable, lead stays Pending, ending cycle")
			break
		}
		if !exists {
			leadLog.Info("[DISPATCH] Number rejected by validation, marking Failed")
			seen[phone.String()] = phoneFailed
			res.failed = append(res.failed, lead.ID)
			res.handled++
			report.Failed++
			continue
		}

		// pausa entre envíos, también entre lotes del mismo ciclo
		if report.Delivered+report.NonRetryable+report.Deferred > 0 {
			if err := o.sleep(ctx, o.governor.NextDelay()); err != nil {
				res.stop = StopCancelled
				break
			}
			if reason := o.admission(); reason != "" {
				res.stop = reason
				break
			}
		}

		if err := o.repo.MarkAttempted(ctx, lead.ID); err != nil {
			res.storeErr = err
			res.stop = StopStoreError
			break
		}

		msg := domain.Message{
			LeadID:       lead.ID,
			BusinessName: lead.BusinessName,
			Pitch:        leadsDomain.PitchFor(lead.TargetProduct),
		}
		out := o.sender.Send(ctx, phone, msg)

		outLog := leadLog.WithFields(logrus.Fields{"outcome": out.Kind.String(), "attempts": out.Attempts})
		switch out.Kind {
		case domain.Delivered:
			o.governor.RecordSend()
			seen[phone.String()] = phoneProcessed
			res.processed = append(res.processed, lead)
			res.handled++
			report.Delivered++
			outLog.WithField("ref", out.Ref).Infof("[DISPATCH] Sent to %s", lead.BusinessName)
		case domain.NonRetryable:
			seen[phone.String()] = phoneProcessed
			res.processed = append(res.processed, lead)
			res.handled++
			report.NonRetryable++
			outLog.Warnf("[DISPATCH] Permanent failure, closing lead: %s", out.Reason)
		case domain.RateLimited:
			seen[phone.String()] = phoneDeferred
			report.Deferred++
			res.stop = StopRateLimited
			outLog.Warnf("[DISPATCH] Backend rate limit persists, ending cycle: %v", out.Err())
		default:
			seen[phone.String()] = phoneDeferred
			report.Deferred++
			outLog.Warnf("[DISPATCH] Transient failure, lead stays Pending: %v", out.Err())
		}

		if res.stop != "" {
			break
		}
	}
	return res
}

// commit persiste el lote en bloque y notifica al sink
func (o *Orchestrator) commit(ctx context.Context, res batchResult, report *CycleReport, log *logrus.Entry) error {
	// la escritura final no debe perderse por un ciclo cancelado a mitad de lote
	writeCtx := context.WithoutCancel(ctx)

	var errs []error
	if res.storeErr != nil {
		errs = append(errs, res.storeErr)
	}

	if len(res.failed) > 0 {
		if _, err := o.repo.MarkFailed(writeCtx, res.failed); err != nil {
			errs = append(errs, err)
		}
	}

	if len(res.processed) > 0 {
		ids := make([]int64, len(res.processed))
		for i, l := range res.processed {
			ids[i] = l.ID
		}
		n, err := o.repo.MarkSent(writeCtx, ids)
		if err != nil {
			log.WithError(err).Errorf("[DISPATCH] Failed to mark %d delivered leads as Sent", len(ids))
			errs = append(errs, err)
		} else {
			log.Infof("[DISPATCH] Marked %s leads as Sent", humanize.Comma(n))
		}

		if err == nil && o.notifier != nil {
			if nerr := o.notifier.Notify(writeCtx, res.processed); nerr != nil {
				report.WebhookError = nerr.Error()
				if !errors.Is(nerr, domain.ErrWebhookDeliveryFailed) {
					log.WithError(nerr).Warn("[DISPATCH] Webhook notification failed")
				}
			}
		}
	}

	return errors.Join(errs...)
}
