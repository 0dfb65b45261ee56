// Package cli provides the main command-line interface and process
// lifecycle for the adaptor framework: configuration loading, service
// construction, the two HTTP listeners (document serving + dashboard),
// and graceful shutdown.
package cli

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/docuhub/gsadapt/adaptor"
	"github.com/docuhub/gsadapt/adaptor/fsadaptor"
	"github.com/docuhub/gsadapt/admin"
	"github.com/docuhub/gsadapt/authn"
	"github.com/docuhub/gsadapt/authz"
	"github.com/docuhub/gsadapt/common"
	"github.com/docuhub/gsadapt/config"
	"github.com/docuhub/gsadapt/dashboard"
	"github.com/docuhub/gsadapt/docid"
	"github.com/docuhub/gsadapt/feed"
	"github.com/docuhub/gsadapt/journal"
	"github.com/docuhub/gsadapt/push"
	"github.com/docuhub/gsadapt/schedule"
	"github.com/docuhub/gsadapt/server"
	"github.com/docuhub/gsadapt/session"
	"github.com/docuhub/gsadapt/unzip"
)

// cfgFile holds the path to the configuration file specified via
// --config, falling back to ./.gsadapt.yaml and $HOME/.gsadapt.yaml.
var cfgFile string

// contentRoot is the filesystem root fsadaptor serves, for the bundled
// reference adaptor used when no external adaptor plugin is configured.
var contentRoot string

// RootCmd is the adaptor framework's single entrypoint: load config,
// start both HTTP listeners and the push scheduler, run until signaled.
var RootCmd = &cobra.Command{
	Use:   "gsadapt",
	Short: "an adaptor framework bridging a content repository to a search indexer",
	Long: `gsadapt bridges an arbitrary content repository to a search indexer:
it advertises document ids on a schedule, serves document content and
metadata on demand, and answers batch authorization queries out of band.`,
	Run: runServer,
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./.gsadapt.yaml or $HOME/.gsadapt.yaml)")
	RootCmd.PersistentFlags().StringVar(&contentRoot, "content-root", common.GetEnv("GSADAPT_CONTENT_ROOT", "."), "root directory served by the bundled reference adaptor")

	RootCmd.PersistentFlags().String("hostname", "", "public hostname this server advertises in docid URLs")
	RootCmd.PersistentFlags().Int("port", 0, "document server port")
	RootCmd.PersistentFlags().Int("dashboard-port", 0, "dashboard server port")
	RootCmd.PersistentFlags().String("gsa-hostname", "", "indexer hostname to push feeds to")

	viper.BindPFlag("server.hostname", RootCmd.PersistentFlags().Lookup("hostname"))
	viper.BindPFlag("server.port", RootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("server.dashboardPort", RootCmd.PersistentFlags().Lookup("dashboard-port"))
	viper.BindPFlag("gsa.hostname", RootCmd.PersistentFlags().Lookup("gsa-hostname"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(".")
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".gsadapt")
	}

	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("using config file:", viper.ConfigFileUsed())
	}
}

func runServer(cmd *cobra.Command, args []string) {
	logger := common.ServiceLogger("cli")

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	common.ConfigureLogger(common.LoggerConfig{
		Level:      common.LogLevel(cfg.LogLevel),
		Format:     cfg.LogFormat,
		TimeFormat: common.DefaultLoggerConfig().TimeFormat,
	})

	j := journal.New()
	baseURL := &url.URL{Scheme: schemeFor(cfg.Secure), Host: fmt.Sprintf("%s:%d", cfg.ServerHostname, cfg.ServerPort)}
	codec := docid.NewNamespacedCodec(baseURL, cfg.DocIDPath)

	var a adaptor.Adaptor = fsadaptor.New(contentRoot)
	viper.SetDefault("adaptor.unzip", true)
	if viper.GetBool("adaptor.unzip") {
		a = unzip.Wrap(a)
	}
	if err := a.InitConfig(cfg); err != nil {
		logger.WithError(err).Fatal("adaptor InitConfig failed")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Init(ctx); err != nil {
		logger.WithError(err).Fatal("adaptor Init failed")
	}

	resolve := func(id docid.DocID) (string, error) {
		u, err := codec.Encode(id)
		if err != nil {
			return "", err
		}
		return u.String(), nil
	}
	sender := feed.NewSender(http.DefaultClient, cfg.GSAHostname, cfg.Secure)
	pushCfg := push.DefaultConfig(cfg.FeedName)
	pushCfg.MaxURLs = cfg.FeedMaxURLs
	pushCfg.ManifestCfg.CharacterEncoding = cfg.GSACharacterEncoding
	pushCfg.ManifestCfg.NoRecrawl = cfg.FeedNoRecrawlBitEnabled
	pushCfg.ManifestCfg.CrawlImmediately = cfg.FeedCrawlImmediatelyBitEnabled
	engine := push.NewEngine(pushCfg, a, sender, resolve, j)

	scheduler := schedule.New(engine)
	if err := scheduler.Start(cfg.AdaptorFullListingSchedule); err != nil {
		logger.WithError(err).Fatal("failed to start scheduler")
	}

	watcher := config.NewWatcher(viper.GetViper())
	watcher.Subscribe(func(reloaded *config.Config) {
		if err := scheduler.Reschedule(reloaded.AdaptorFullListingSchedule); err != nil {
			logger.WithError(err).Error("config reload: failed to reschedule full listing")
		}
	})

	docsSessions := session.NewDefaultStore()
	cookieKey := []byte(viper.GetString("session.cookieKey"))
	if len(cookieKey) == 0 {
		cookieKey = mustRandomKey(32)
		logger.WithField("session.cookieKey", common.MaskSecret(string(cookieKey))).Warn("no session.cookieKey configured, generated an ephemeral one")
	}
	cookieCodec := session.NewCookieCodec(cookieKey, nil)

	docsEcho := server.New("docs", server.DefaultConfig(cfg.ServerPort))
	docsGroup := docsEcho.Group("")

	docsHandler := server.NewDocsHandler(codec, a, j, server.GSAIdentifier{IPs: cfg.GSAIps}, cfg.ServerHostname)
	docsHandler.Register(docsGroup)

	authzResponder := authz.NewResponder(codec, a, baseURL)
	authzKey := []byte(viper.GetString("authz.signingKey"))
	if len(authzKey) == 0 {
		authzKey = mustRandomKey(32)
		logger.WithField("authz.signingKey", common.MaskSecret(string(authzKey))).Warn("no authz.signingKey configured, generated an ephemeral one")
	}
	authz.NewHandler(authzResponder, authzKey, cfg.ServerHostname).Register(docsGroup, "/authz")

	if viper.GetString("authn.issuerURL") != "" {
		oidcCtx := context.Background()
		provider, err := authn.NewProvider(
			oidcCtx,
			viper.GetString("authn.issuerURL"),
			viper.GetString("authn.clientID"),
			viper.GetString("authn.clientSecret"),
			viper.GetString("authn.redirectURL"),
			viper.GetString("authn.groupsClaim"),
		)
		if err != nil {
			logger.WithError(err).Fatal("failed to initialize OIDC provider")
		}
		orchestrator := authn.NewOrchestrator(docsSessions, provider)
		authn.NewHandler(orchestrator, docsSessions, cookieCodec).Register(docsGroup, "/authn/login", "/authn/callback")
	}

	var dashboardEcho *echo.Echo
	if cfg.DashboardPort > 0 {
		dashboardEcho = server.New("dashboard", server.DefaultConfig(cfg.DashboardPort))
		dashboardSessions := session.NewDefaultStore()

		adminHash := viper.GetString("admin.passwordHash")
		if adminHash != "" {
			gate := admin.NewGate(
				admin.NewBcryptAuthenticator(viper.GetString("admin.username"), adminHash),
				dashboardSessions,
				cookieCodec,
			)
			gate.RegisterLogin(dashboardEcho, "/admin/login")

			dashGroup := dashboardEcho.Group("", gate.Middleware())
			monitor := dashboard.DefaultMonitor(j)
			dashboard.NewHandler(monitor, j, dashboardSessions, cookieCodec).Register(dashGroup, "/rpc", "/xsrf-token")
		} else {
			logger.Warn("admin.passwordHash not configured, dashboard port will reject every request")
		}
	}

	go func() {
		defer common.LogPanic(logger)
		logger.WithField("port", cfg.ServerPort).Info("starting document server")
		if err := docsEcho.Start(fmt.Sprintf(":%d", cfg.ServerPort)); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("document server failed")
		}
	}()
	if dashboardEcho != nil {
		go func() {
			defer common.LogPanic(logger)
			logger.WithField("port", cfg.DashboardPort).Info("starting dashboard server")
			if err := dashboardEcho.Start(fmt.Sprintf(":%d", cfg.DashboardPort)); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Fatal("dashboard server failed")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	// Cancellation sequence: scheduler removal + in-flight push
	// interruption, then scheduler stop, then HTTP servers (with grace),
	// then adaptor teardown.
	scheduler.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := docsEcho.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("document server shutdown error")
	}
	if dashboardEcho != nil {
		if err := dashboardEcho.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("dashboard server shutdown error")
		}
	}

	destroyCtx, destroyCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer destroyCancel()
	if err := a.Destroy(destroyCtx); err != nil {
		logger.WithError(err).Error("adaptor destroy error")
	}
}

func schemeFor(secure bool) string {
	if secure {
		return "https"
	}
	return "http"
}

func mustRandomKey(n int) []byte {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return buf
}
