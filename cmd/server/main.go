package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/yultyyev/better-auth-firebase-auth/internal/firebaseauth"
	"github.com/yultyyev/better-auth-firebase-auth/internal/firebaseauthpg"
	"github.com/yultyyev/better-auth-firebase-auth/internal/web"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

var buildAdminVerifier = func(ctx context.Context, configuration firebaseauth.AdminVerifierConfig) (firebaseauth.AdminTokenVerifier, error) {
	return firebaseauth.NewAdminVerifier(ctx, configuration)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "firebase-auth-server",
		Short: "Demo host server exposing the Firebase sign-in plugin endpoints",
		RunE:  runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("firebase_project_id", "", "Firebase project id for admin token verification")
	rootCmd.Flags().String("firebase_credentials_file", "", "Service account credentials file; empty uses application default credentials")
	rootCmd.Flags().String("firebase_api_key", "", "Firebase web API key; required for server-side email/password and password reset flows")
	rootCmd.Flags().String("password_reset_url", "", "Continue URL attached to password reset emails")
	rootCmd.Flags().Int("session_expires_days", 7, "Session TTL in days")
	rootCmd.Flags().Bool("use_client_side_tokens", true, "Expect the browser to exchange email credentials with Firebase")
	rootCmd.Flags().Bool("override_email_password_flow", false, "Route native email sign-in/sign-up through Firebase")
	rootCmd.Flags().Bool("server_side_only", false, "Register no HTTP endpoints")
	rootCmd.Flags().String("database_url", "", "Storage URL (sqlite:// or postgres:// for GORM, pgx:// for the raw pgx adapter; empty for in-memory)")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled")
	rootCmd.Flags().Bool("dev_unverified_tokens", false, "Decode ID tokens without signature verification (local development only)")

	_ = viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("firebase_project_id", rootCmd.Flags().Lookup("firebase_project_id"))
	_ = viper.BindPFlag("firebase_credentials_file", rootCmd.Flags().Lookup("firebase_credentials_file"))
	_ = viper.BindPFlag("firebase_api_key", rootCmd.Flags().Lookup("firebase_api_key"))
	_ = viper.BindPFlag("password_reset_url", rootCmd.Flags().Lookup("password_reset_url"))
	_ = viper.BindPFlag("session_expires_days", rootCmd.Flags().Lookup("session_expires_days"))
	_ = viper.BindPFlag("use_client_side_tokens", rootCmd.Flags().Lookup("use_client_side_tokens"))
	_ = viper.BindPFlag("override_email_password_flow", rootCmd.Flags().Lookup("override_email_password_flow"))
	_ = viper.BindPFlag("server_side_only", rootCmd.Flags().Lookup("server_side_only"))
	_ = viper.BindPFlag("database_url", rootCmd.Flags().Lookup("database_url"))
	_ = viper.BindPFlag("enable_cors", rootCmd.Flags().Lookup("enable_cors"))
	_ = viper.BindPFlag("cors_allowed_origins", rootCmd.Flags().Lookup("cors_allowed_origins"))
	_ = viper.BindPFlag("dev_unverified_tokens", rootCmd.Flags().Lookup("dev_unverified_tokens"))

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	configCodeMissingProjectID = "config.missing_firebase_project_id"
	configCodeVerifierInit     = "config.admin_verifier_init"
	configCodeStoreInit        = "config.store_init"
)

func configError(code string, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadPluginConfig reads plugin settings from viper-bound flags.
func LoadPluginConfig() firebaseauth.Config {
	configuration := firebaseauth.DefaultConfig()
	configuration.UseClientSideTokens = viper.GetBool("use_client_side_tokens")
	configuration.OverrideEmailPasswordFlow = viper.GetBool("override_email_password_flow")
	configuration.ServerSideOnly = viper.GetBool("server_side_only")
	if days := viper.GetInt("session_expires_days"); days > 0 {
		configuration.SessionExpiresInDays = days
	}
	if apiKey := viper.GetString("firebase_api_key"); apiKey != "" {
		configuration.Client = &firebaseauth.ClientConfig{
			APIKey:           apiKey,
			PasswordResetURL: viper.GetString("password_reset_url"),
		}
	}
	return configuration
}

func buildStore(ctx context.Context, logger *zap.Logger, databaseURL string) (firebaseauth.Store, error) {
	if databaseURL == "" {
		logger.Info("using in-memory store")
		return firebaseauth.NewMemoryStore(), nil
	}
	if len(databaseURL) > 6 && databaseURL[:6] == "pgx://" {
		pool, poolErr := firebaseauthpg.BuildPool(ctx, "postgres://"+databaseURL[6:])
		if poolErr != nil {
			return nil, poolErr
		}
		if schemaErr := firebaseauthpg.EnsureSchema(ctx, pool); schemaErr != nil {
			return nil, schemaErr
		}
		logger.Info("using pgx store")
		return firebaseauthpg.NewStore(pool), nil
	}
	databaseStore, storeErr := firebaseauth.NewDatabaseStore(ctx, databaseURL)
	if storeErr != nil {
		return nil, storeErr
	}
	logger.Info("using database store", zap.String("driver", databaseStore.Driver()))
	return databaseStore, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	if commandContext == nil {
		commandContext = context.Background()
	}

	pluginConfig := LoadPluginConfig()

	var verifier firebaseauth.AdminTokenVerifier
	if viper.GetBool("dev_unverified_tokens") {
		logger.Warn("token signatures are NOT verified; never use this mode in production",
			zap.String("code", "config.dev_unverified_tokens"))
		verifier = firebaseauth.NewUnverifiedTokenVerifier()
	} else {
		projectID := viper.GetString("firebase_project_id")
		if projectID == "" {
			return configError(configCodeMissingProjectID, "firebase_project_id must be provided")
		}
		builtVerifier, verifierErr := buildAdminVerifier(commandContext, firebaseauth.AdminVerifierConfig{
			ProjectID:       projectID,
			CredentialsFile: viper.GetString("firebase_credentials_file"),
		})
		if verifierErr != nil {
			return fmt.Errorf("%s: %w", configCodeVerifierInit, verifierErr)
		}
		verifier = builtVerifier
	}

	store, storeErr := buildStore(commandContext, logger, viper.GetString("database_url"))
	if storeErr != nil {
		return fmt.Errorf("%s: %w", configCodeStoreInit, storeErr)
	}

	metrics := firebaseauth.NewCounterMetrics()
	plugin, pluginErr := firebaseauth.NewPlugin(pluginConfig, verifier, store, logger, metrics)
	if pluginErr != nil {
		return pluginErr
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if viper.GetBool("enable_cors") {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, viper.GetStringSlice("cors_allowed_origins"))
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	router.GET("/healthz", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, metrics.Snapshot())
	})

	firebaseauth.MountRoutes(router, plugin)

	server := &http.Server{
		Addr:              viper.GetString("listen_addr"),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", server.Addr))
	if err := serveHTTP(server); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startedAt := time.Now()
		contextGin.Next()
		logger.Info("request",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.Duration("elapsed", time.Since(startedAt)))
	}
}
