package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/AzielCF/az-prospector/core/config"
	coreDB "github.com/AzielCF/az-prospector/core/database"
	settingsApp "github.com/AzielCF/az-prospector/core/settings/application"
	settingsDomain "github.com/AzielCF/az-prospector/core/settings/domain"
	dispatchApp "github.com/AzielCF/az-prospector/dispatch/application"
	dispatchDomain "github.com/AzielCF/az-prospector/dispatch/domain"
	"github.com/AzielCF/az-prospector/dispatch/governor"
	dispatchRepo "github.com/AzielCF/az-prospector/dispatch/repository"
	"github.com/AzielCF/az-prospector/infrastructure/cloudapi"
	"github.com/AzielCF/az-prospector/infrastructure/messaging"
	"github.com/AzielCF/az-prospector/infrastructure/valkey"
	"github.com/AzielCF/az-prospector/infrastructure/waha"
	"github.com/AzielCF/az-prospector/infrastructure/whatsapp"
	"github.com/AzielCF/az-prospector/integrations/leadsink"
	leadsApp "github.com/AzielCF/az-prospector/leads/application"
	"github.com/AzielCF/az-prospector/leads/repository"
	"github.com/AzielCF/az-prospector/pkg/timeutils"
	"github.com/AzielCF/az-prospector/pkg/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// services agrupa las dependencias construidas para un comando
type services struct {
	cfg *config.Config
	db  *gorm.DB
	vk  *valkey.Client

	leadRepo *repository.LeadGormRepository
	leads    *leadsApp.LeadService
	settings *settingsApp.SettingsService
	session  *whatsapp.Session
	sender   dispatchDomain.Sender
	governor *governor.RateGovernor
	orch     *dispatchApp.Orchestrator
	reaper   *dispatchApp.Reaper
	replies  *dispatchApp.ReplyHandler
	sink     *leadsink.Sink
}

type bootOptions struct {
	// messaging construye el sender (y abre la sesión whatsmeow si aplica)
	messaging bool
}

// bootstrap abre la base, migra el esquema y arma los servicios.
func bootstrap(ctx context.Context, opts bootOptions) (*services, error) {
	cfg := config.Global
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}

	db, err := coreDB.NewDatabase(cfg)
	if err != nil {
		return nil, err
	}
	a := &services{cfg: cfg, db: db}

	if err := a.migrate(ctx); err != nil {
		a.close()
		return nil, err
	}

	defaults, err := runtimeDefaults(cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.settings = settingsApp.NewSettingsService(db, defaults)
	a.leads = leadsApp.NewLeadService(a.leadRepo)
	a.reaper = dispatchApp.NewReaper(a.leadRepo, cfg.Reaper.Threshold)
	a.replies = dispatchApp.NewReplyHandler(a.leadRepo)

	if cfg.Valkey.Enabled {
		vk, err := valkey.NewClient(valkey.FromAppConfig(cfg.Valkey))
		if err != nil {
			// sin valkey el lock queda en memoria (una sola instancia)
			logrus.WithError(err).Warn("[VALKEY] Unavailable, falling back to in-process cycle lock")
		} else {
			a.vk = vk
		}
	}

	if !opts.messaging {
		return a, nil
	}

	if err := a.buildSender(ctx); err != nil {
		a.close()
		return nil, err
	}

	rc, err := a.settings.LoadRuntimeConfig(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	a.governor = governor.New(dispatchApp.GovernorConfig(rc))
	a.sink = leadsink.New(cfg.Sink)

	orchOpts := []dispatchApp.OrchestratorOption{
		dispatchApp.WithSettings(a.settings),
	}
	if a.sink.Enabled() {
		orchOpts = append(orchOpts, dispatchApp.WithNotifier(a.sink))
	}
	if a.vk != nil {
		serverID := utils.GetPersistentServerID(cfg.App.ServerID, cfg.Paths.Storages)
		logrus.WithField("server_id", serverID).Info("[DISPATCH] Using distributed cycle lock")
		orchOpts = append(orchOpts, dispatchApp.WithCycleLock(dispatchRepo.NewValkeyCycleLock(a.vk, cfg.Dispatch.LockTTL, serverID)))
	}
	a.orch = dispatchApp.NewOrchestrator(a.leadRepo, a.sender, a.governor, dispatchApp.OrchestratorConfig{
		BatchSize:       cfg.Dispatch.BatchSize,
		AttemptCooldown: cfg.Dispatch.AttemptCooldown,
	}, orchOpts...)

	return a, nil
}

func (a *services) migrate(ctx context.Context) error {
	a.leadRepo = repository.NewLeadGormRepository(a.db)
	if err := a.leadRepo.InitSchema(ctx); err != nil {
		return fmt.Errorf("migrate leads: %w", err)
	}
	settings := settingsApp.NewSettingsService(a.db, settingsDomain.RuntimeConfig{})
	if err := settings.InitSchema(ctx); err != nil {
		return fmt.Errorf("migrate settings: %w", err)
	}
	return nil
}

func (a *services) buildSender(ctx context.Context) error {
	m := a.cfg.Messaging
	retry := messaging.RetryPolicy{
		MaxAttempts: m.MaxAttempts,
		BaseBackoff: m.BaseBackoff,
		MaxWait:     m.MaxWait,
	}

	switch m.Backend {
	case config.BackendWAHA:
		if m.WAHA.URL == "" {
			return errors.New("WAHA_API_URL is required for the waha backend")
		}
		a.sender = waha.NewSender(m.WAHA, m.SendTimeout, retry)
	case config.BackendCloudAPI:
		if m.CloudAPI.Token == "" || m.CloudAPI.PhoneNumberID == "" {
			return errors.New("WHATSAPP_TOKEN and WHATSAPP_PHONE_ID are required for the cloudapi backend")
		}
		a.sender = cloudapi.NewSender(m.CloudAPI, m.SendTimeout, retry)
	case config.BackendWhatsmeow:
		session, err := whatsapp.OpenSession(ctx, m.Whatsmeow)
		if err != nil {
			return err
		}
		a.session = session
		a.sender = whatsapp.NewSender(session.Client(), m.SendTimeout, retry)
	default:
		return fmt.Errorf("unknown messaging backend %q", m.Backend)
	}

	if checker, ok := a.sender.(dispatchDomain.SessionChecker); ok {
		st := checker.CheckSession(ctx)
		entry := logrus.WithFields(logrus.Fields{"backend": st.Backend, "account": st.Account})
		if st.Connected {
			entry.Info("[MESSAGING] Session ready")
		} else {
			entry.Warnf("[MESSAGING] Session not ready: %s", st.Detail)
		}
	}
	return nil
}

func (a *services) close() {
	if a.session != nil {
		a.session.Close()
	}
	if a.vk != nil {
		a.vk.Close()
	}
	if a.db != nil {
		if err := coreDB.Close(a.db); err != nil {
			logrus.WithError(err).Warn("[APP] Failed to close database")
		}
	}
}

// runtimeDefaults traduce la config de entorno al snapshot por defecto de settings
func runtimeDefaults(cfg *config.Config) (settingsDomain.RuntimeConfig, error) {
	days, err := timeutils.ParseWeekdays(cfg.Governor.BusinessDays)
	if err != nil {
		return settingsDomain.RuntimeConfig{}, fmt.Errorf("BUSINESS_DAYS: %w", err)
	}
	return settingsDomain.RuntimeConfig{
		Mode:            cfg.Governor.Mode,
		DispatchEnabled: cfg.Dispatch.Enabled,
		HourlyLimit:     cfg.Governor.HourlyLimit,
		DailyLimit:      cfg.Governor.DailyLimit,
		MinDelay:        cfg.Governor.MinDelay,
		MaxDelay:        cfg.Governor.MaxDelay,
		BusinessDays:    days,
		StartHour:       cfg.Governor.StartHour,
		EndHour:         cfg.Governor.EndHour,
		Timezone:        cfg.Governor.Timezone,
		Categories:      cfg.Governor.Categories,
		Cities:          cfg.Governor.Cities,
	}, nil
}
