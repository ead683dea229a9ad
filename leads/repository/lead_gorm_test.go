package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AzielCF/az-prospector/leads/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestRepo(t *testing.T) *LeadGormRepository {
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

	repo := NewLeadGormRepository(db)
	if err := repo.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	return repo
}

func insertLead(t *testing.T, repo *LeadGormRepository, name, phone string, product domain.Product) *domain.Lead {
	t.Helper()
	lead := &domain.Lead{BusinessName: name, Category: "restaurante", Phone: phone, TargetProduct: product}
	inserted, err := repo.InsertIfAbsent(context.Background(), lead)
	require.NoError(t, err)
	require.True(t, inserted)
	return lead
}

func TestInsertIfAbsent_DuplicateIsNoop(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	first := insertLead(t, repo, "Pizzaria Bella", "5581999990001", domain.ProductZappy)
	assert.NotZero(t, first.ID)

	dup := &domain.Lead{BusinessName: "Pizzaria Bella", Category: "restaurante", Phone: "5581999990002", TargetProduct: domain.ProductZappy}
	inserted, err := repo.InsertIfAbsent(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	// Same business under another category is a distinct row.
	other := &domain.Lead{BusinessName: "Pizzaria Bella", Category: "lanchonete", Phone: "5581999990001", TargetProduct: domain.ProductZappy}
	inserted, err = repo.InsertIfAbsent(ctx, other)
	require.NoError(t, err)
	assert.True(t, inserted)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Total)
	assert.EqualValues(t, 2, stats.ByStatus[domain.StatusPending])
	assert.EqualValues(t, 2, stats.Categories)
}

func TestFetchEligible_OrderAndPlausibility(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	a := insertLead(t, repo, "A", "5581999990001", domain.ProductZappy)
	insertLead(t, repo, "Landline", "558133334444", domain.ProductZappy)
	insertLead(t, repo, "NoPhone", "", domain.ProductZappy)
	b := insertLead(t, repo, "B", "5581999990002", domain.ProductZappy)
	insertLead(t, repo, "Retail", "5581999990003", domain.ProductLojaky)

	zappy := domain.ProductZappy
	leads, err := repo.FetchEligible(ctx, 10, &zappy, 0)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, a.ID, leads[0].ID)
	assert.Equal(t, b.ID, leads[1].ID)

	all, err := repo.FetchEligible(ctx, 10, nil, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := repo.FetchEligible(ctx, 1, nil, 0)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, a.ID, limited[0].ID)
}

func TestFetchEligible_ExcludesContactedPhone(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	first := insertLead(t, repo, "Loja Centro", "5581999990001", domain.ProductLojaky)
	second := &domain.Lead{BusinessName: "Loja Centro", Category: "roupas", Phone: "5581999990001", TargetProduct: domain.ProductLojaky}
	_, err := repo.InsertIfAbsent(ctx, second)
	require.NoError(t, err)

	n, err := repo.MarkSent(ctx, []int64{first.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	for _, st := range []domain.LeadStatus{domain.StatusSent, domain.StatusHot, domain.StatusCold, domain.StatusConverted} {
		require.NoError(t, repo.db.Model(&leadModel{}).Where("id = ?", first.ID).Update("status", string(st)).Error)
		leads, err := repo.FetchEligible(ctx, 10, nil, 0)
		require.NoError(t, err)
		assert.Emptyf(t, leads, "phone held by a %s lead must not be eligible", st)
	}

	// A Failed sibling does not block the phone.
	require.NoError(t, repo.db.Model(&leadModel{}).Where("id = ?", first.ID).Update("status", string(domain.StatusFailed)).Error)
	leads, err := repo.FetchEligible(ctx, 10, nil, 0)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, second.ID, leads[0].ID)
}

func TestFetchEligible_SkipsRecentAttempt(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	lead := insertLead(t, repo, "A", "5581999990001", domain.ProductZappy)
	require.NoError(t, repo.MarkAttempted(ctx, lead.ID))

	leads, err := repo.FetchEligible(ctx, 10, nil, 30*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, leads)

	later := time.Now().UTC().Add(time.Hour)
	repo.now = func() time.Time { return later }
	leads, err = repo.FetchEligible(ctx, 10, nil, 30*time.Minute)
	require.NoError(t, err)
	assert.Len(t, leads, 1)
}

func TestMarkSent_Idempotent(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	a := insertLead(t, repo, "A", "5581999990001", domain.ProductZappy)
	b := insertLead(t, repo, "B", "5581999990002", domain.ProductZappy)

	n, err := repo.MarkSent(ctx, []int64{a.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	stored, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.SentAt)
	firstSentAt := *stored.SentAt

	later := time.Now().UTC().Add(2 * time.Hour)
	repo.now = func() time.Time { return later }

	n, err = repo.MarkSent(ctx, []int64{a.ID, b.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	stored, err = repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, firstSentAt.Equal(*stored.SentAt), "sent_at must not change on re-mark")
	assert.Equal(t, domain.StatusSent, stored.Status)
}

func TestMarkHot_ReplayIsNoop(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	phone := domain.MustParsePhoneNumber("5581999990001")

	lead := insertLead(t, repo, "A", phone.String(), domain.ProductZappy)

	n, err := repo.MarkHot(ctx, phone)
	require.NoError(t, err)
	assert.Zero(t, n, "Pending leads do not become Hot")

	_, err = repo.MarkSent(ctx, []int64{lead.ID})
	require.NoError(t, err)

	n, err = repo.MarkHot(ctx, phone)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = repo.MarkHot(ctx, phone)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.MarkConverted(ctx, lead.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestMarkCold_Threshold(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := insertLead(t, repo, "Old", "5581999990001", domain.ProductZappy)
	recent := insertLead(t, repo, "Recent", "5581999990002", domain.ProductZappy)

	repo.now = func() time.Time { return now.Add(-49 * time.Hour) }
	_, err := repo.MarkSent(ctx, []int64{old.ID})
	require.NoError(t, err)

	repo.now = func() time.Time { return now.Add(-10 * time.Minute) }
	_, err = repo.MarkSent(ctx, []int64{recent.ID})
	require.NoError(t, err)

	repo.now = func() time.Time { return now }
	n, err := repo.MarkCold(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	stored, err := repo.GetByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCold, stored.Status)

	stored, err = repo.GetByID(ctx, recent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, stored.Status)
}

func TestResetStatusAndClearAll(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	a := insertLead(t, repo, "A", "5581999990001", domain.ProductZappy)
	insertLead(t, repo, "B", "5581999990002", domain.ProductZappy)

	n, err := repo.MarkFailed(ctx, []int64{a.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = repo.ResetStatus(ctx, domain.StatusFailed, domain.StatusSent)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	stored, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, stored.Status)
	assert.NotNil(t, stored.SentAt)

	sent := domain.StatusSent
	listed, err := repo.List(ctx, domain.LeadFilter{Status: &sent})
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	n, err = repo.ClearAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = repo.GetByID(ctx, a.ID)
	assert.True(t, errors.Is(err, domain.ErrLeadNotFound))
}
