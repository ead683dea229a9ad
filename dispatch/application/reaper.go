package application

import (
	"context"
	"time"

	leadsDomain "github.com/AzielCF/az-prospector/leads/domain"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

const DefaultColdThreshold = 48 * time.Hour

// Reaper pasa a Cold los leads Sent que no respondieron dentro del umbral
type Reaper struct {
	repo      leadsDomain.LeadRepository
	threshold time.Duration
}

func NewReaper(repo leadsDomain.LeadRepository, threshold time.Duration) *Reaper {
	if threshold <= 0 {
		threshold = DefaultColdThreshold
	}
	return &Reaper{repo: repo, threshold: threshold}
}

func (r *Reaper) Threshold() time.Duration { return r.threshold }

func (r *Reaper) Run(ctx context.Context) (int64, error) {
	n, err := r.repo.MarkCold(ctx, r.threshold)
	if err != nil {
		logrus.WithError(err).Error("[REAPER] Failed to mark cold leads")
		return 0, err
	}
	if n > 0 {
		logrus.Infof("[REAPER] %s leads without reply after %s marked Cold", humanize.Comma(n), r.threshold)
	} else {
		logrus.Debug("[REAPER] No cold leads")
	}
	return n, nil
}
