package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AzielCF/az-prospector/core/config"
	settingsDomain "github.com/AzielCF/az-prospector/core/settings/domain"
	dispatchApp "github.com/AzielCF/az-prospector/dispatch/application"
	leadsRest "github.com/AzielCF/az-prospector/leads/adapter/rest"
	"github.com/AzielCF/az-prospector/pkg/msgworker"
	"github.com/AzielCF/az-prospector/ui/rest"
	"github.com/AzielCF/az-prospector/ui/rest/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API together with the dispatch and reaper schedulers",
	RunE:  serve,
}

func init() {
	serveCmd.Flags().String("basic-auth", "", "Basic auth for API (format: user:pass,user2:pass2)")
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg := config.Global

	// Override basic auth if flag is provided
	if baFlag, _ := cmd.Flags().GetString("basic-auth"); baFlag != "" {
		cfg.App.BasicAuth = strings.Split(baFlag, ",")
	}
	if len(cfg.App.BasicAuth) == 0 {
		logrus.Fatalln("APP_BASIC_AUTH is required. Nothing should be public; please set APP_BASIC_AUTH=<user>:<secret>[,<user2>:<secret2>] and restart.")
	}

	account := make(map[string]string)
	for _, basicAuth := range cfg.App.BasicAuth {
		ba := strings.SplitN(basicAuth, ":", 2)
		if len(ba) != 2 {
			logrus.Fatalln("Basic auth is not valid, please this following format <user>:<secret>")
		}
		account[ba[0]] = ba[1]
	}

	ctx := context.Background()
	a, err := bootstrap(ctx, bootOptions{messaging: true})
	if err != nil {
		return err
	}
	defer a.close()

	pool := msgworker.NewPool(cfg.Inbound.Workers, cfg.Inbound.QueueSize)
	pool.Start(ctx)

	if a.session != nil {
		a.session.OnReply(func(ctx context.Context, phone string) {
			if _, err := a.replies.HandleReply(ctx, phone); err != nil {
				logrus.WithError(err).WithField("phone", phone).Warn("[INBOUND] Failed to record reply")
			}
		})
	}

	scheduler, err := dispatchApp.NewScheduler(a.orch, a.reaper, dispatchApp.SchedulerConfig{
		DispatchInterval: cfg.Dispatch.Interval,
		ReaperInterval:   cfg.Reaper.Interval,
		RunOnStart:       true,
	})
	if err != nil {
		return err
	}
	scheduler.Start()

	fiberConfig := fiber.Config{
		EnableTrustedProxyCheck: true,
		Network:                 "tcp",
		AppName:                 "Az-Prospector",
		ServerHeader:            "Hidden",
	}
	if len(cfg.App.TrustedProxies) > 0 {
		fiberConfig.TrustedProxies = cfg.App.TrustedProxies
		fiberConfig.ProxyHeader = fiber.HeaderXForwardedFor
	}

	app := fiber.New(fiberConfig)
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.App.CorsAllowedOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.Recovery())
	app.Use(limiter.New(limiter.Config{
		Max:        1000,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}))
	if cfg.App.Debug {
		app.Use(logger.New())
	}

	// Webhooks del proveedor: autenticados con el verify token, no con basic auth
	rest.InitRestInbound(app.Group(cfg.App.BasePath), a.replies, pool, cfg.Inbound.VerifyToken)

	apiGroup := app.Group(cfg.App.BasePath + "/api")
	apiGroup.Use(basicauth.New(basicauth.Config{
		Users: account,
		Next: func(c *fiber.Ctx) bool {
			// Allow CORS preflight without credentials.
			return c.Method() == fiber.MethodOptions
		},
	}))

	leadsRest.NewLeadHandler(a.leads).RegisterRoutes(apiGroup)
	rest.InitRestSettings(apiGroup, a.settings, func(rc settingsDomain.RuntimeConfig) {
		a.governor.Configure(dispatchApp.GovernorConfig(rc))
	})
	rest.InitRestDispatch(apiGroup, a.orch, a.reaper)
	var cache rest.Pinger
	if a.vk != nil {
		cache = a.vk
	}
	rest.InitRestHealth(apiGroup, a.db, a.sender, cache)

	apiGroup.All("/*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "API Endpoint not found",
			"path":  c.Path(),
		})
	})

	// Graceful shutdown handler
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[REST] Reception of termination signal, shutting down gracefully...")
		if err := app.Shutdown(); err != nil {
			logrus.Errorf("[REST] Error during Fiber shutdown: %v", err)
		}
	}()

	logrus.WithFields(logrus.Fields{
		"backend": a.sender.Name(),
		"port":    cfg.App.Port,
	}).Info("[APP] Prospector started")

	listenErr := app.Listen(":" + cfg.App.Port)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	scheduler.Stop(shutdownCtx)
	pool.Stop()
	logrus.Info("[APP] Application stopped cleanly.")

	return listenErr
}
