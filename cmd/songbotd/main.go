// Command songbotd starts the song-request bot process: the credential
// supervisors, the player core, and the HTTP surface that connects them to
// a dashboard operator and the providers' OAuth flows.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/ashspire/songbot/internal/authstore"
	"github.com/ashspire/songbot/internal/credential"
	"github.com/ashspire/songbot/internal/credsup"
	"github.com/ashspire/songbot/internal/httpapi"
	"github.com/ashspire/songbot/internal/injector"
	"github.com/ashspire/songbot/internal/oauthflow"
	"github.com/ashspire/songbot/internal/observability/logging"
	"github.com/ashspire/songbot/internal/observability/metrics"
	"github.com/ashspire/songbot/internal/player"
	"github.com/ashspire/songbot/internal/providers"
	"github.com/ashspire/songbot/internal/providers/spotify"
	"github.com/ashspire/songbot/internal/providers/youtube"
	"github.com/ashspire/songbot/internal/settingsstore"
	"github.com/ashspire/songbot/internal/supervisor"
)

// keyValueFlag collects repeated "name=value" flags into a map, used for
// per-provider OAuth client id/secret/redirect overrides on the command
// line in addition to the environment variable form.
type keyValueFlag map[string]string

func (kv *keyValueFlag) String() string {
	if kv == nil || len(*kv) == 0 {
		return ""
	}
	parts := make([]string, 0, len(*kv))
	for key, value := range *kv {
		parts = append(parts, fmt.Sprintf("%s=%s", key, value))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func (kv *keyValueFlag) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid format %q, expected provider=value", value)
	}
	name := strings.ToLower(strings.TrimSpace(parts[0]))
	if name == "" {
		return fmt.Errorf("provider name is required")
	}
	if *kv == nil {
		*kv = make(map[string]string)
	}
	(*kv)[name] = strings.TrimSpace(parts[1])
	return nil
}

func applyOAuthEnvOverrides(configs []oauthflow.ProviderConfig) []oauthflow.ProviderConfig {
	if len(configs) == 0 {
		return configs
	}
	ids := make(map[string]string)
	secrets := make(map[string]string)
	redirects := make(map[string]string)
	for _, cfg := range configs {
		normalized := sanitizeEnvName(cfg.Name)
		if v := strings.TrimSpace(os.Getenv(fmt.Sprintf("SONGBOT_OAUTH_%s_CLIENT_ID", normalized))); v != "" {
			ids[cfg.Name] = v
		}
		if v := strings.TrimSpace(os.Getenv(fmt.Sprintf("SONGBOT_OAUTH_%s_CLIENT_SECRET", normalized))); v != "" {
			secrets[cfg.Name] = v
		}
		if v := strings.TrimSpace(os.Getenv(fmt.Sprintf("SONGBOT_OAUTH_%s_REDIRECT_URL", normalized))); v != "" {
			redirects[cfg.Name] = v
		}
	}
	return oauthflow.OverrideCredentials(configs, ids, secrets, redirects)
}

func sanitizeEnvName(name string) string {
	upper := strings.ToUpper(name)
	var builder strings.Builder
	for _, r := range upper {
		switch {
		case r >= 'A' && r <= 'Z':
			builder.WriteRune(r)
		case r >= '0' && r <= '9':
			builder.WriteRune(r)
		default:
			builder.WriteRune('_')
		}
	}
	return builder.String()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return fallback
}

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "json", "log format (json or text)")
	enableMetrics := flag.Bool("metrics", false, "mount the /metrics endpoint")

	settingsDriver := flag.String("settings-driver", "", "settings store driver (memory or postgres)")
	settingsDSN := flag.String("settings-postgres-dsn", "", "Postgres DSN for the settings store")
	authDriver := flag.String("auth-driver", "", "authorization grant store driver (memory or postgres)")
	authDSN := flag.String("auth-postgres-dsn", "", "Postgres DSN for the authorization store")
	playerDriver := flag.String("player-driver", "", "player queue persistence driver (memory or postgres)")
	playerDSN := flag.String("player-postgres-dsn", "", "Postgres DSN for the player queue")

	redisAddr := flag.String("redis-addr", "", "Redis address for cross-replica credential rotation bridging (optional)")
	redisPassword := flag.String("redis-password", "", "Redis password")

	oauthProviders := flag.String("oauth-providers", "", "inline JSON or path to an OAuth provider configuration file")
	var oauthClientIDs keyValueFlag
	var oauthClientSecrets keyValueFlag
	var oauthRedirects keyValueFlag
	flag.Var(&oauthClientIDs, "oauth-client-id", "override provider=clientID, may be repeated")
	flag.Var(&oauthClientSecrets, "oauth-client-secret", "override provider=clientSecret, may be repeated")
	flag.Var(&oauthRedirects, "oauth-redirect-url", "override provider=redirectURL, may be repeated")

	dashboardUser := flag.String("dashboard-user", "", "dashboard operator username")
	dashboardPass := flag.String("dashboard-password", "", "dashboard operator password")
	dashboardSecret := flag.String("dashboard-session-secret", "", "secret used to sign dashboard session cookies")

	deviceID := flag.String("device-id", "", "playback device id the player drives")
	provider := flag.String("provider", "", "song provider (spotify or youtube)")

	spotifyRPS := flag.Float64("spotify-rate-rps", 3, "Spotify API request rate limit in requests per second")
	spotifyBurst := flag.Int("spotify-rate-burst", 5, "Spotify API request rate limit burst allowance")
	youtubeRPS := flag.Float64("youtube-rate-rps", 3, "YouTube API request rate limit in requests per second")
	youtubeBurst := flag.Int("youtube-rate-burst", 5, "YouTube API request rate limit burst allowance")

	credentialExpiresWithin := flag.Duration("credential-refresh-margin", 0, "how far ahead of expiry a token is refreshed")
	credentialCheckInterval := flag.Duration("credential-check-interval", 0, "how often a credential is re-evaluated absent an external trigger")

	shutdownTimeout := flag.Duration("shutdown-timeout", 10*time.Second, "grace period for in-flight work during shutdown")

	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("SONGBOT_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("SONGBOT_LOG_FORMAT")),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listenAddr := firstNonEmpty(*addr, os.Getenv("SONGBOT_ADDR"), ":8080")

	settings, closeSettings, err := buildSettingsStore(ctx, *settingsDriver, *settingsDSN)
	if err != nil {
		logger.Error("failed to initialise settings store", "error", err)
		os.Exit(1)
	}
	defer closeSettings()

	// The authorization store's schema migration must run at startup even
	// though no chat frontend consults it in this process.
	if _, err := buildAuthStore(ctx, *authDriver, *authDSN); err != nil {
		logger.Error("failed to initialise authorization store", "error", err)
		os.Exit(1)
	}

	persistence, err := buildPlayerPersistence(ctx, *playerDriver, *playerDSN)
	if err != nil {
		logger.Error("failed to initialise player persistence", "error", err)
		os.Exit(1)
	}

	var broker *injector.RedisBroker
	if redisAddress := firstNonEmpty(*redisAddr, os.Getenv("SONGBOT_REDIS_ADDR")); redisAddress != "" {
		broker, err = injector.NewRedisBroker(injector.RedisBrokerConfig{
			Addr:     redisAddress,
			Password: firstNonEmpty(*redisPassword, os.Getenv("SONGBOT_REDIS_PASSWORD")),
			Logger:   logger,
		})
		if err != nil {
			logger.Error("failed to configure redis credential bridge", "error", err)
			os.Exit(1)
		}
		if err := broker.Ping(ctx); err != nil {
			logger.Error("redis credential bridge unreachable", "error", err)
			os.Exit(1)
		}
		defer broker.Close()
	}

	providerConfigs, err := oauthflow.ResolveConfigSources(firstNonEmpty(*oauthProviders, os.Getenv("SONGBOT_OAUTH_PROVIDERS")))
	if err != nil {
		logger.Error("failed to load oauth provider configuration", "error", err)
		os.Exit(1)
	}
	providerConfigs = applyOAuthEnvOverrides(providerConfigs)
	providerConfigs = oauthflow.OverrideCredentials(providerConfigs, oauthClientIDs, oauthClientSecrets, oauthRedirects)

	oauthManager, err := oauthflow.NewManager(providerConfigs)
	if err != nil {
		logger.Error("failed to initialise oauth manager", "error", err)
		os.Exit(1)
	}

	inj := injector.New()
	group := supervisor.New(logger)

	expiresWithin := resolveDuration(*credentialExpiresWithin, "SONGBOT_CREDENTIAL_REFRESH_MARGIN", 5*time.Minute)
	checkInterval := resolveDuration(*credentialCheckInterval, "SONGBOT_CREDENTIAL_CHECK_INTERVAL", 30*time.Second)

	providerName := strings.ToLower(firstNonEmpty(*provider, os.Getenv("SONGBOT_PROVIDER"), "spotify"))

	var songProvider providers.Client
	var handle *credential.Handle
	var key injector.Key[credential.Token]

	switch providerName {
	case "youtube":
		handle = credential.New()
		key = injector.NewKey[credential.Token]("youtube")
		songProvider = youtube.New(handle, rate.NewLimiter(rate.Limit(*youtubeRPS), *youtubeBurst))
	default:
		providerName = "spotify"
		handle = credential.New()
		key = injector.NewKey[credential.Token]("spotify")
		songProvider = spotify.New(handle, rate.NewLimiter(rate.Limit(*spotifyRPS), *spotifyBurst))
	}

	registerCredentialSupervisor(group, inj, logger, broker, providerName, settings, handle, key, providerConfigs, expiresWithin, checkInterval)

	songPlayer := player.New(player.Config{
		Provider:    songProvider,
		Settings:    settingsstore.NewScoped(settings, "player"),
		Persistence: persistence,
		Logger:      logger,
		DeviceID:    firstNonEmpty(*deviceID, os.Getenv("SONGBOT_DEVICE_ID")),
	})
	if err := songPlayer.LoadQueue(ctx); err != nil {
		logger.Error("failed to load song queue", "error", err)
		os.Exit(1)
	}
	group.Add("player-device-sync", songPlayer.RunDeviceSync)

	onGrant := func(ctx context.Context, grant oauthflow.Grant) error {
		conn := credsup.Connection{
			AccessToken:  grant.AccessToken,
			RefreshToken: grant.RefreshToken,
			ClientID:     grant.ClientID,
			Scopes:       grant.Scopes,
		}
		if grant.ExpiresIn != nil {
			conn.ExpiresAt = time.Now().Add(*grant.ExpiresIn)
		}
		raw, err := json.Marshal(conn)
		if err != nil {
			return fmt.Errorf("marshal connection: %w", err)
		}
		scoped := settingsstore.NewScoped(settings, grant.Provider)
		return scoped.Set(ctx, "connection", raw)
	}

	var sessions *httpapi.SessionManager
	if secret := firstNonEmpty(*dashboardSecret, os.Getenv("SONGBOT_DASHBOARD_SESSION_SECRET")); secret != "" {
		sessions, err = httpapi.NewSessionManager(secret, 24*time.Hour)
		if err != nil {
			logger.Error("failed to initialise dashboard session manager", "error", err)
			os.Exit(1)
		}
	}

	server, err := httpapi.New(httpapi.Config{
		OAuth:         oauthManager,
		OnGrant:       onGrant,
		Player:        songPlayer,
		Sessions:      sessions,
		Logger:        logger,
		DashboardUser: firstNonEmpty(*dashboardUser, os.Getenv("SONGBOT_DASHBOARD_USER")),
		DashboardPass: firstNonEmpty(*dashboardPass, os.Getenv("SONGBOT_DASHBOARD_PASSWORD")),
	})
	if err != nil {
		logger.Error("failed to initialise http server", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/", server.Routes())
	if resolveBool(*enableMetrics, "SONGBOT_METRICS_ENABLED") {
		mux.Handle("/metrics", metrics.Handler())
	}

	var handler http.Handler = mux
	handler = metrics.HTTPMiddleware(nil, handler)
	handler = logging.RequestLogger(logging.RequestLoggerConfig{Logger: logger})(handler)
	handler = httpapi.RequestContext(logger, handler)

	httpServer := &http.Server{
		Addr:    listenAddr,
		Handler: handler,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("songbotd listening", "addr", listenAddr, "provider", providerName)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	go func() {
		if err := group.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("supervised task group exited", "error", err)
			errs <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errs:
		logger.Error("process error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}

	logger.Info("songbotd stopped")
}

func registerCredentialSupervisor(
	group *supervisor.Group,
	inj *injector.Injector,
	logger *slog.Logger,
	broker *injector.RedisBroker,
	providerName string,
	settings settingsstore.Store,
	handle *credential.Handle,
	key injector.Key[credential.Token],
	configs []oauthflow.ProviderConfig,
	expiresWithin time.Duration,
	checkInterval time.Duration,
) {
	var endpoint oauth2.Endpoint
	var clientSecret string
	for _, cfg := range configs {
		if strings.EqualFold(cfg.Name, providerName) {
			endpoint = oauth2.Endpoint{AuthURL: cfg.AuthorizeURL, TokenURL: cfg.TokenURL}
			clientSecret = cfg.ClientSecret
			break
		}
	}

	sup := &credsup.Supervisor{
		Provider:      providerName,
		Settings:      settingsstore.NewScoped(settings, providerName),
		Injector:      inj,
		Key:           key,
		Handle:        handle,
		Refresher:     credsup.OAuth2Refresher(endpoint, clientSecret),
		Broker:        broker,
		ExpiresWithin: expiresWithin,
		CheckInterval: checkInterval,
		Logger:        logger,
	}
	group.Add(providerName+"-credential-supervisor", sup.Run)

	if broker != nil {
		group.Add(providerName+"-credential-bridge", func(ctx context.Context) error {
			injector.BridgeWithRetry(ctx, broker, providerName, inj, key, 2*time.Second)
			return nil
		})
	}
}

func buildSettingsStore(ctx context.Context, driver, dsn string) (settingsstore.Store, func(), error) {
	schema, err := settingsstore.NewSchemaSet()
	if err != nil {
		return nil, nil, err
	}
	driver = strings.ToLower(strings.TrimSpace(firstNonEmpty(driver, os.Getenv("SONGBOT_SETTINGS_DRIVER"), "memory")))
	switch driver {
	case "postgres":
		resolvedDSN := firstNonEmpty(dsn, os.Getenv("SONGBOT_SETTINGS_POSTGRES_DSN"))
		store, err := settingsstore.NewPostgresStore(ctx, resolvedDSN, schema)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close(context.Background())
			return nil, nil, err
		}
		return store, func() { _ = store.Close(context.Background()) }, nil
	default:
		return settingsstore.NewMemoryStore(schema), func() {}, nil
	}
}

func buildAuthStore(ctx context.Context, driver, dsn string) (*authstore.Auth, error) {
	driver = strings.ToLower(strings.TrimSpace(firstNonEmpty(driver, os.Getenv("SONGBOT_AUTH_DRIVER"), "memory")))
	var persistence authstore.Persistence
	switch driver {
	case "postgres":
		resolvedDSN := firstNonEmpty(dsn, os.Getenv("SONGBOT_AUTH_POSTGRES_DSN"))
		p, err := authstore.NewPostgresPersistence(ctx, resolvedDSN)
		if err != nil {
			return nil, err
		}
		if err := p.Migrate(ctx); err != nil {
			return nil, err
		}
		persistence = p
	default:
		persistence = authstore.NewMemoryPersistence()
	}
	schema, err := authstore.DefaultSchema()
	if err != nil {
		return nil, fmt.Errorf("load default authorization schema: %w", err)
	}
	return authstore.New(ctx, persistence, schema)
}

func buildPlayerPersistence(ctx context.Context, driver, dsn string) (player.Persistence, error) {
	driver = strings.ToLower(strings.TrimSpace(firstNonEmpty(driver, os.Getenv("SONGBOT_PLAYER_DRIVER"), "memory")))
	switch driver {
	case "postgres":
		resolvedDSN := firstNonEmpty(dsn, os.Getenv("SONGBOT_PLAYER_POSTGRES_DSN"))
		p, err := player.NewPostgresPersistence(ctx, resolvedDSN)
		if err != nil {
			return nil, err
		}
		if err := p.Migrate(ctx); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return player.NewMemoryPersistence(), nil
	}
}
