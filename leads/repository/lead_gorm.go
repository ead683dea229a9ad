package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AzielCF/az-prospector/leads/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultListLimit caps operator listings
const DefaultListLimit = 1000

// --- Persistence Model ---

type leadModel struct {
	ID              int64   `gorm:"primaryKey;autoIncrement"`
	BusinessName    string  `gorm:"uniqueIndex:idx_leads_identity,priority:1;not null"`
	Category        string  `gorm:"uniqueIndex:idx_leads_identity,priority:2;not null"`
	Phone           *string `gorm:"index:idx_leads_phone"`
	Neighborhood    string
	Rating          string
	TargetProduct   string     `gorm:"index:idx_leads_product;not null"`
	Status          string     `gorm:"index:idx_leads_status;not null;default:'Pending'"`
	CreatedAt       time.Time  `gorm:"index:idx_leads_created_at;not null"`
	SentAt          *time.Time `gorm:"index:idx_leads_sent_at"`
	SendAttemptedAt *time.Time
	UpdatedAt       time.Time `gorm:"not null"`
}

func (leadModel) TableName() string {
	return "leads"
}

// --- Repository Implementation ---

type LeadGormRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLeadGormRepository(db *gorm.DB) *LeadGormRepository {
	return &LeadGormRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the timestamp source used for sent_at and cooldowns.
func (r *LeadGormRepository) WithClock(now func() time.Time) *LeadGormRepository {
	r.now = now
	return r
}

func (r *LeadGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&leadModel{})
}

// InsertIfAbsent returns false when (business_name, category) already exists.
func (r *LeadGormRepository) InsertIfAbsent(ctx context.Context, lead *domain.Lead) (bool, error) {
	now := r.now()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now
	lead.Status = domain.StatusPending
	lead.SentAt = nil
	lead.SendAttemptedAt = nil

	m := toLeadModel(lead)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "business_name"}, {Name: "category"}},
			DoNothing: true,
		}).
		Create(&m)
	if result.Error != nil {
		return false, storeErr("insert lead", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	lead.ID = m.ID
	return true, nil
}

func (r *LeadGormRepository) GetByID(ctx context.Context, id int64) (*domain.Lead, error) {
	var m leadModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLeadNotFound
		}
		return nil, storeErr("get lead", err)
	}
	return fromLeadModel(m), nil
}

// FetchEligible returns Pending leads with a plausible Brazilian mobile, oldest first.
// Leads whose phone already belongs to a contacted row are excluded in the same query,
// so two concurrent cycles can never pick two rows for one phone after either is marked.
// Rows with a send attempt newer than attemptCooldown are skipped too.
func (r *LeadGormRepository) FetchEligible(ctx context.Context, limit int, product *domain.Product, attemptCooldown time.Duration) ([]*domain.Lead, error) {
	if limit <= 0 {
		return nil, nil
	}

	q := r.db.WithContext(ctx).Model(&leadModel{}).
		Where("leads.status = ?", string(domain.StatusPending)).
		Where("leads.phone IS NOT NULL").
		Where("LENGTH(leads.phone) BETWEEN ? AND ?", domain.MinPhoneLength, domain.MaxPhoneLength).
		Where("SUBSTR(leads.phone, 1, 2) = ? AND SUBSTR(leads.phone, 3, 1) <> '0' AND SUBSTR(leads.phone, 5, 1) = '9'", domain.CountryCode).
		Where("NOT EXISTS (SELECT 1 FROM leads dup WHERE dup.phone = leads.phone AND dup.id <> leads.id AND dup.status IN ?)",
			statusStrings(domain.ContactedStatuses))

	if product != nil {
		q = q.Where("leads.target_product = ?", string(*product))
	}
	if attemptCooldown > 0 {
		q = q.Where("(leads.send_attempted_at IS NULL OR leads.send_attempted_at < ?)", r.now().Add(-attemptCooldown))
	}

	var models []leadModel
	if err := q.Order("leads.created_at ASC, leads.id ASC").Limit(limit).Find(&models).Error; err != nil {
		return nil, storeErr("fetch eligible", err)
	}
	return fromLeadModels(models), nil
}

// MarkAttempted records that a vendor call is about to happen for a Pending lead.
func (r *LeadGormRepository) MarkAttempted(ctx context.Context, id int64) error {
	now := r.now()
	err := r.db.WithContext(ctx).Model(&leadModel{}).
		Where("id = ? AND status = ?", id, string(domain.StatusPending)).
		Updates(map[string]interface{}{"send_attempted_at": now, "updated_at": now}).Error
	if err != nil {
		return storeErr("mark attempted", err)
	}
	return nil
}

// MarkSent moves Pending ids to Sent. Ids already past Pending are left untouched,
// so sent_at is written exactly once.
func (r *LeadGormRepository) MarkSent(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := r.now()
	return r.transition(ctx, "mark sent",
		byIDs(ids),
		domain.StatusPending,
		map[string]interface{}{"status": string(domain.StatusSent), "sent_at": now, "updated_at": now})
}

func (r *LeadGormRepository) MarkFailed(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return r.transition(ctx, "mark failed",
		byIDs(ids),
		domain.StatusPending,
		map[string]interface{}{"status": string(domain.StatusFailed), "updated_at": r.now()})
}

// MarkHot only touches rows still Sent, so replays report zero.
func (r *LeadGormRepository) MarkHot(ctx context.Context, phone domain.PhoneNumber) (int64, error) {
	if phone.IsZero() {
		return 0, nil
	}
	return r.transition(ctx, "mark hot",
		func(db *gorm.DB) *gorm.DB { return db.Where("phone = ?", phone.String()) },
		domain.StatusSent,
		map[string]interface{}{"status": string(domain.StatusHot), "updated_at": r.now()})
}

func (r *LeadGormRepository) MarkCold(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := r.now()
	cutoff := now.Add(-olderThan)
	return r.transition(ctx, "mark cold",
		func(db *gorm.DB) *gorm.DB {
			return db.Where("sent_at IS NOT NULL AND sent_at < ?", cutoff)
		},
		domain.StatusSent,
		map[string]interface{}{"status": string(domain.StatusCold), "updated_at": now})
}

func (r *LeadGormRepository) MarkConverted(ctx context.Context, id int64) (int64, error) {
	return r.transition(ctx, "mark converted",
		byIDs([]int64{id}),
		domain.StatusHot,
		map[string]interface{}{"status": string(domain.StatusConverted), "updated_at": r.now()})
}

// ResetStatus is the operator override; the caller decides which pairs are allowed.
// Moving into Sent keeps an existing sent_at, moving out of it clears it.
func (r *LeadGormRepository) ResetStatus(ctx context.Context, from, to domain.LeadStatus) (int64, error) {
	now := r.now()
	updates := map[string]interface{}{"status": string(to), "updated_at": now}
	switch to {
	case domain.StatusPending, domain.StatusFailed:
		updates["sent_at"] = nil
	default:
		updates["sent_at"] = gorm.Expr("COALESCE(sent_at, ?)", now)
	}
	return r.transition(ctx, "reset status", nil, from, updates)
}

// transition is the conditional update every status change goes through:
// only rows currently in from are touched.
func (r *LeadGormRepository) transition(ctx context.Context, op string, scope func(*gorm.DB) *gorm.DB, from domain.LeadStatus, updates map[string]interface{}) (int64, error) {
	q := r.db.WithContext(ctx).Model(&leadModel{})
	if scope != nil {
		q = q.Scopes(scope)
	}
	result := q.Where("status = ?", string(from)).Updates(updates)
	if result.Error != nil {
		return 0, storeErr(op, result.Error)
	}
	return result.RowsAffected, nil
}

func (r *LeadGormRepository) ClearAll(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&leadModel{})
	if result.Error != nil {
		return 0, storeErr("clear leads", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *LeadGormRepository) List(ctx context.Context, filter domain.LeadFilter) ([]*domain.Lead, error) {
	q := r.db.WithContext(ctx).Model(&leadModel{})

	if filter.Status != nil {
		q = q.Where("status = ?", string(*filter.Status))
	}
	if filter.TargetProduct != nil {
		q = q.Where("target_product = ?", string(*filter.TargetProduct))
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.Neighborhood != "" {
		q = q.Where("neighborhood = ?", filter.Neighborhood)
	}
	if filter.HasPhone != nil {
		if *filter.HasPhone {
			q = q.Where("phone IS NOT NULL")
		} else {
			q = q.Where("phone IS NULL")
		}
	}

	limit := filter.Limit
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var models []leadModel
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, storeErr("list leads", err)
	}
	return fromLeadModels(models), nil
}

func (r *LeadGormRepository) Stats(ctx context.Context) (*domain.LeadStats, error) {
	stats := &domain.LeadStats{
		ByStatus:  make(map[domain.LeadStatus]int64),
		ByProduct: make(map[domain.Product]int64),
	}
	db := r.db.WithContext(ctx)

	if err := db.Model(&leadModel{}).Count(&stats.Total).Error; err != nil {
		return nil, storeErr("count leads", err)
	}

	var byStatus []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&leadModel{}).Select("status, count(*) as count").Group("status").Scan(&byStatus).Error; err != nil {
		return nil, storeErr("count by status", err)
	}
	for _, s := range domain.AllStatuses {
		stats.ByStatus[s] = 0
	}
	for _, row := range byStatus {
		stats.ByStatus[domain.LeadStatus(row.Status)] = row.Count
	}

	var byProduct []struct {
		TargetProduct string
		Count         int64
	}
	if err := db.Model(&leadModel{}).Select("target_product, count(*) as count").Group("target_product").Scan(&byProduct).Error; err != nil {
		return nil, storeErr("count by product", err)
	}
	for _, row := range byProduct {
		stats.ByProduct[domain.Product(row.TargetProduct)] = row.Count
	}

	if err := db.Model(&leadModel{}).Distinct("category").Count(&stats.Categories).Error; err != nil {
		return nil, storeErr("count categories", err)
	}
	if err := db.Model(&leadModel{}).Where("neighborhood <> ''").Distinct("neighborhood").Count(&stats.Neighborhoods).Error; err != nil {
		return nil, storeErr("count neighborhoods", err)
	}

	return stats, nil
}

// Helpers

func byIDs(ids []int64) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("id IN ?", ids)
	}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

func statusStrings(statuses []domain.LeadStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func toLeadModel(l *domain.Lead) leadModel {
	m := leadModel{
		ID:              l.ID,
		BusinessName:    l.BusinessName,
		Category:        l.Category,
		Neighborhood:    l.Neighborhood,
		Rating:          l.Rating,
		TargetProduct:   string(l.TargetProduct),
		Status:          string(l.Status),
		CreatedAt:       l.CreatedAt,
		SentAt:          l.SentAt,
		SendAttemptedAt: l.SendAttemptedAt,
		UpdatedAt:       l.UpdatedAt,
	}
	if l.Phone != "" {
		phone := l.Phone
		m.Phone = &phone
	}
	return m
}

func fromLeadModel(m leadModel) *domain.Lead {
	l := &domain.Lead{
		ID:              m.ID,
		BusinessName:    m.BusinessName,
		Category:        m.Category,
		Neighborhood:    m.Neighborhood,
		Rating:          m.Rating,
		TargetProduct:   domain.Product(m.TargetProduct),
		Status:          domain.LeadStatus(m.Status),
		CreatedAt:       m.CreatedAt,
		SentAt:          m.SentAt,
		SendAttemptedAt: m.SendAttemptedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if m.Phone != nil {
		l.Phone = *m.Phone
	}
	return l
}

func fromLeadModels(models []leadModel) []*domain.Lead {
	out := make([]*domain.Lead, 0, len(models))
	for _, m := range models {
		out = append(out, fromLeadModel(m))
	}
	return out
}
