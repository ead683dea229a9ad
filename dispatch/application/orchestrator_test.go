package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	settingsDomain "github.com/AzielCF/az-prospector/core/settings/domain"
	"github.com/AzielCF/az-prospector/dispatch/domain"
	"github.com/AzielCF/az-prospector/dispatch/governor"
	leadsDomain "github.com/AzielCF/az-prospector/leads/domain"
	leadsRepo "github.com/AzielCF/az-prospector/leads/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var saoPaulo = time.FixedZone("BRT", -3*3600)

// lunes 2 de marzo de 2026, 10:00 local
var mondayMorning = time.Date(2026, 3, 2, 10, 0, 0, 0, saoPaulo)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeSender struct {
	mu            sync.Mutex
	invalid       map[string]bool
	checkErr      error
	outcomes      map[string]domain.Outcome
	validateCalls map[string]int
	sent          []string
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		invalid:       map[string]bool{},
		outcomes:      map[string]domain.Outcome{},
		validateCalls: map[string]int{},
	}
}

func (s *fakeSender) Name() string { return "fake" }

func (s *fakeSender) Validate(_ context.Context, phone leadsDomain.PhoneNumber) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validateCalls[phone.String()]++
	if s.checkErr != nil {
		return false, s.checkErr
	}
	return !s.invalid[phone.String()], nil
}

func (s *fakeSender) Send(_ context.Context, phone leadsDomain.PhoneNumber, msg domain.Message) domain.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, phone.String())
	if out, ok := s.outcomes[phone.String()]; ok {
		return out
	}
	return domain.DeliveredOutcome(fmt.Sprintf("ref-%d", msg.LeadID))
}

func (s *fakeSender) sentTo() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

type fakeNotifier struct {
	calls [][]*leadsDomain.Lead
	err   error
}

func (n *fakeNotifier) Notify(_ context.Context, leads []*leadsDomain.Lead) error {
	n.calls = append(n.calls, leads)
	return n.err
}

type fakeSettings struct {
	rc  settingsDomain.RuntimeConfig
	err error
}

func (f fakeSettings) LoadRuntimeConfig(context.Context) (settingsDomain.RuntimeConfig, error) {
	return f.rc, f.err
}

type fixture struct {
	db         *gorm.DB
	repo       *leadsRepo.LeadGormRepository
	sender     *fakeSender
	wahaSender domain.Sender
	clock      *fakeClock
	gov        *governor.RateGovernor
	sleeps     []time.Duration
}

func newFixture(t *testing.T, hourly, daily int) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	repo := leadsRepo.NewLeadGormRepository(db)
	require.NoError(t, repo.InitSchema(context.Background()))

	clock := &fakeClock{now: mondayMorning}
	gov := governor.New(governor.Config{
		HourlyLimit: hourly,
		DailyLimit:  daily,
		MinDelay:    30 * time.Second,
		MaxDelay:    90 * time.Second,
		Days:        []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday},
		StartHour:   9,
		EndHour:     18,
		Location:    saoPaulo,
	}, governor.WithClock(clock.Now))

	return &fixture{db: db, repo: repo, sender: newFakeSender(), clock: clock, gov: gov}
}

func (f *fixture) orchestrator(opts ...OrchestratorOption) *Orchestrator {
	opts = append([]OrchestratorOption{WithSleep(func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	})}, opts...)
	return NewOrchestrator(f.repo, f.sender, f.gov, OrchestratorConfig{BatchSize: 10, AttemptCooldown: DefaultAttemptCooldown}, opts...)
}

func (f *fixture) addLead(t *testing.T, name, phone string, product leadsDomain.Product) *leadsDomain.Lead {
	t.Helper()
	lead := &leadsDomain.Lead{BusinessName: name, Category: "restaurante", Phone: phone, TargetProduct: product}
	inserted, err := f.repo.InsertIfAbsent(context.Background(), lead)
	require.NoError(t, err)
	require.True(t, inserted)
	return lead
}

func (f *fixture) status(t *testing.T, id int64) *leadsDomain.Lead {
	t.Helper()
	lead, err := f.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return lead
}

func TestRunCycle_HourlyLimitScenario(t *testing.T) {
	f := newFixture(t, 3, 100)
	var leads []*leadsDomain.Lead
	for i := 0; i < 5; i++ {
		leads = append(leads, f.addLead(t, fmt.Sprintf("Negocio %d", i), fmt.Sprintf("558199999000%d", i), leadsDomain.ProductZappy))
	}
	o := f.orchestrator()

	report, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Delivered)
	assert.Equal(t, StopQuotaExhausted, report.StopReason)

	for i, l := range leads {
		got := f.status(t, l.ID)
		if i < 3 {
			assert.Equal(t, leadsDomain.StatusSent, got.Status, "lead %d", i)
			assert.NotNil(t, got.SentAt)
		} else {
			assert.Equal(t, leadsDomain.StatusPending, got.Status, "lead %d", i)
			assert.Nil(t, got.SentAt)
		}
	}
	// pausa entre envíos, nunca después del último
	assert.Len(t, f.sleeps, 2)

	// misma hora: sin cuota
	report, err = o.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Delivered)
	assert.Equal(t, StopQuotaExhausted, report.StopReason)

	// siguiente hora: salen los dos restantes
	f.clock.Advance(time.Hour)
	report, err = o.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Delivered)
	assert.Equal(t, StopNoLeads, report.StopReason)

	for _, l := range leads {
		assert.Equal(t, leadsDomain.StatusSent, f.status(t, l.ID).Status)
	}
	assert.Len(t, f.sender.sentTo(), 5)
}

func TestRunCycle_WindowClosedSendsNothing(t *testing.T) {
	f := newFixture(t, 20, 100)
	for i := 0; i < 4; i++ {
		f.addLead(t, fmt.Sprintf("Loja %d", i), fmt.Sprintf("558199998000%d", i), leadsDomain.ProductLojaky)
	}
	// domingo
	f.clock.Advance(6 * 24 * time.Hour)

	report, err := f.orchestrator().RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopWindowClosed, report.StopReason)
	assert.Zero(t, report.Fetched)
	assert.Empty(t, f.sender.sentTo())
}

func TestRunCycle_QuotaExhaustedMidBatch(t *testing.T) {
	const limit = 4
	f := newFixture(t, limit, 100)
	for i := 0; i < limit+3; i++ {
		f.addLead(t, fmt.Sprintf("Bar %d", i), fmt.Sprintf("55819999970%02d", i), leadsDomain.ProductZappy)
	}

	report, err := f.orchestrator().RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, limit, report.Delivered)

	stats, err := f.repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(limit), stats.ByStatus[leadsDomain.StatusSent])
	assert.Equal(t, int64(3), stats.ByStatus[leadsDomain.StatusPending])
}

func TestRunCycle_InvalidPhoneNeverSent(t *testing.T) {
	f := newFixture(t, 20, 100)
	bad := f.addLead(t, "Sem WhatsApp", "5581999996000", leadsDomain.ProductZappy)
	good := f.addLead(t, "Com WhatsApp", "5581999996001", leadsDomain.ProductZappy)
	f.sender.invalid["5581999996000"] = true

	report, err := f.orchestrator().RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, f.sender.validateCalls["5581999996000"])
	assert.Equal(t, []string{"5581999996001"}, f.sender.sentTo())
	assert.Equal(t, leadsDomain.StatusFailed, f.status(t, bad.ID).Status)
	assert.Equal(t, leadsDomain.StatusSent, f.status(t, good.ID).Status)
}

func TestRunCycle_OutcomeHandling(t *testing.T) {
	f := newFixture(t, 20, 100)
	delivered := f.addLead(t, "A", "5581999995001", leadsDomain.ProductZappy)
	permanent := f.addLead(t, "B", "5581999995002", leadsDomain.ProductZappy)
	transient := f.addLead(t, "C", "5581999995003", leadsDomain.ProductZappy)
	f.sender.outcomes["5581999995002"] = domain.NonRetryableOutcome("number does not exist")
	f.sender.outcomes["5581999995003"] = domain.TransientOutcome("timeout")

	notifier := &fakeNotifier{}
	report, err := f.orchestrator(WithNotifier(notifier)).RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.NonRetryable)
	assert.Equal(t, 1, report.Deferred)
	assert.Equal(t, StopPartialBatch, report.StopReason)

	assert.Equal(t, leadsDomain.StatusSent, f.status(t, delivered.ID).Status)
	assert.Equal(t, leadsDomain.StatusSent, f.status(t, permanent.ID).Status)
	pending := f.status(t, transient.ID)
	assert.Equal(t, leadsDomain.StatusPending, pending.Status)
	assert.NotNil(t, pending.SendAttemptedAt)

	// solo cuentan en la cuota los entregados
	assert.Equal(t, 1, f.gov.Status().HourlySent)

	require.Len(t, notifier.calls, 1)
	assert.Len(t, notifier.calls[0], 2)

	// el lead transitorio queda en enfriamiento: el siguiente ciclo no lo reintenta
	report, err = f.orchestrator().RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopNoLeads, report.StopReason)
}

func TestRunCycle_RateLimitedEndsCycle(t *testing.T) {
	f := newFixture(t, 20, 100)
	f.addLead(t, "A", "5581999994001", leadsDomain.ProductZappy)
	limited := f.addLead(t, "B", "5581999994002", leadsDomain.ProductZappy)
	f.addLead(t, "C", "5581999994003", leadsDomain.ProductZappy)
	f.sender.outcomes["5581999994002"] = domain.RateLimitedOutcome(time.Minute, "429")

	report, err := f.orchestrator().RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopRateLimited, report.StopReason)
	assert.Equal(t, 1, report.Delivered)
	assert.Len(t, f.sender.sentTo(), 2)
	assert.Equal(t, leadsDomain.StatusPending, f.status(t, limited.ID).Status)
}

func TestRunCycle_NumberCheckOutageKeepsPending(t *testing.T) {
	f := newFixture(t, 20, 100)
	first := f.addLead(t, "A", "5581999992001", leadsDomain.ProductZappy)
	second := f.addLead(t, "B", "5581999992002", leadsDomain.ProductZappy)
	f.sender.checkErr = fmt.Errorf("%w: HTTP 503", domain.ErrNumberCheckUnavailable)

	report, err := f.orchestrator().RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopCheckFailed, report.StopReason)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 1, report.Deferred)
	assert.Empty(t, f.sender.sentTo())
	assert.Equal(t, 1, f.sender.validateCalls["5581999992001"])
	assert.Zero(t, f.sender.validateCalls["5581999992002"])

	lead := f.status(t, first.ID)
	assert.Equal(t, leadsDomain.StatusPending, lead.Status)
	assert.Nil(t, lead.SendAttemptedAt)
	assert.Equal(t, leadsDomain.StatusPending, f.status(t, second.ID).Status)

	// con la verificación de vuelta el siguiente ciclo los envía
	f.sender.checkErr = nil
	report, err = f.orchestrator().RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Delivered)
}

func TestRunCycle_SamePhoneContactedOnce(t *testing.T) {
	f := newFixture(t, 20, 100)
	first := f.addLead(t, "Filial Centro", "5581999993000", leadsDomain.ProductZappy)
	second := f.addLead(t, "Filial Norte", "5581999993000", leadsDomain.ProductZappy)

	o := f.orchestrator()
	report, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.Skipped)

	f.clock.Advance(time.Hour)
	_, err = o.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"5581999993000"}, f.sender.sentTo())
	assert.Equal(t, leadsDomain.StatusSent, f.status(t, first.ID).Status)
	assert.Equal(t, leadsDomain.StatusPending, f.status(t, second.ID).Status)
}

func TestRunCycle_WebhookFailureKeepsSent(t *testing.T) {
	f := newFixture(t, 20, 100)
	lead := f.addLead(t, "A", "5581999992001", leadsDomain.ProductZappy)
	notifier := &fakeNotifier{err: fmt.Errorf("%w: boom", domain.ErrWebhookDeliveryFailed)}

	report, err := f.orchestrator(WithNotifier(notifier)).RunCycle(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, report.WebhookError)
	assert.Equal(t, leadsDomain.StatusSent, f.status(t, lead.ID).Status)
}

func TestRunCycle_RuntimeConfig(t *testing.T) {
	f := newFixture(t, 20, 100)
	zappy := f.addLead(t, "Pizzaria", "5581999991001", leadsDomain.ProductZappy)
	lojaky := f.addLead(t, "Boutique", "5581999991002", leadsDomain.ProductLojaky)

	rc := settingsDomain.RuntimeConfig{
		Mode:            "lojaky",
		DispatchEnabled: true,
		HourlyLimit:     20,
		DailyLimit:      100,
		MinDelay:        time.Second,
		MaxDelay:        2 * time.Second,
		BusinessDays:    []time.Weekday{time.Monday},
		StartHour:       9,
		EndHour:         18,
		Timezone:        "America/Sao_Paulo",
	}

	report, err := f.orchestrator(WithSettings(fakeSettings{rc: rc})).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Lojaky", report.Product)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, leadsDomain.StatusPending, f.status(t, zappy.ID).Status)
	assert.Equal(t, leadsDomain.StatusSent, f.status(t, lojaky.ID).Status)

	rc.DispatchEnabled = false
	report, err = f.orchestrator(WithSettings(fakeSettings{rc: rc})).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopDisabled, report.StopReason)
}

func TestRunCycle_SingleFlight(t *testing.T) {
	f := newFixture(t, 20, 100)
	lock := NewMemoryCycleLock()
	token, ok, err := lock.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	o := f.orchestrator(WithCycleLock(lock))
	_, err = o.RunCycle(context.Background())
	assert.True(t, errors.Is(err, domain.ErrCycleInProgress))

	require.NoError(t, lock.Release(context.Background(), token))
	_, err = o.RunCycle(context.Background())
	assert.NoError(t, err)
	assert.NotNil(t, o.LastReport())
}

func TestRunCycle_StoreUnavailable(t *testing.T) {
	f := newFixture(t, 20, 100)
	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	report, err := f.orchestrator().RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, leadsDomain.ErrStoreUnavailable))
	assert.Equal(t, StopStoreError, report.StopReason)
}
