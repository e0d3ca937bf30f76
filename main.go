package main

import (
	"context"
	"encoding/hex"
	"log"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/fpbe/auth-engine/internal/config"
	"github.com/fpbe/auth-engine/internal/db"
	"github.com/fpbe/auth-engine/internal/handler"
	"github.com/fpbe/auth-engine/internal/kv"
	"github.com/fpbe/auth-engine/internal/service"
)

// @title Authentication & Session Security Engine API
// @version 1.0
// @description Issues, verifies, rotates and revokes session credentials.
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	postgres, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer postgres.Pool.Close()

	if err := postgres.EnsureAuthSchema(ctx); err != nil {
		log.Fatalf("schema: %v", err)
	}

	var store kv.Store
	if cfg.Redis.Addr != "" {
		store, err = kv.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
	} else {
		log.Printf("REDIS_ADDR not set, using in-process key-value store")
		store = kv.NewMemory(nil)
	}

	keys, err := service.NewKeyManager(service.KeyManagerConfig{
		Store:            store,
		RotationInterval: cfg.Keys.RotationInterval,
		GracePeriod:      cfg.Keys.GracePeriod,
	})
	if err != nil {
		log.Fatalf("key manager: %v", err)
	}
	go keys.Run(ctx)

	revocations := service.NewRevocationStore(store, cfg.Token.RevocationCheckTimeout, cfg.Token.FailOpenOnRevocationTimeout)

	tokens := service.NewTokenService(service.TokenServiceConfig{
		Keys:        keys,
		Revocations: revocations,
		AccessTTL:   cfg.Token.AccessTTL,
		RefreshTTL:  cfg.Token.RefreshTTL,
	})

	vaultKey, err := hex.DecodeString(cfg.Biometric.VaultKeyHex)
	if err != nil || len(vaultKey) != 32 {
		log.Fatalf("BIOMETRIC_VAULT_KEY must be 64 hex chars (32 bytes)")
	}
	vault, err := service.NewBiometricVault(service.BiometricVaultConfig{
		Repo:           postgres,
		Counters:       store,
		Key:            vaultKey,
		MinQuality:     cfg.Biometric.MinQuality,
		MatchThreshold: cfg.Biometric.MatchThreshold,
		MaxAttempts:    cfg.Biometric.MaxAttemptsPerHour,
	})
	if err != nil {
		log.Fatalf("biometric vault: %v", err)
	}

	devices := service.NewDeviceTrustAssessor(postgres, cfg.Device.TrustThreshold, nil)

	auth := service.NewAuthService(service.AuthServiceConfig{
		Credentials: postgres,
		Tokens:      tokens,
		Lockout: service.LockoutPolicy{
			Threshold: cfg.Lockout.Threshold,
			BaseDelay: cfg.Lockout.BaseDelay,
			CapDelay:  cfg.Lockout.CapDelay,
		},
		Devices:     devices,
		Vault:       vault,
		AllowSignup: cfg.Auth.AllowSignup,
	})

	authHandler := handler.NewAuthHandler(auth, vault)
	deviceHandler := handler.NewDeviceHandler(devices)
	keyHandler := handler.NewKeyHandler(keys)

	router := gin.Default()
	if len(cfg.Server.AllowedOrigins) > 0 {
		router.Use(handler.CORSMiddleware(cfg.Server.AllowedOrigins, true))
	}
	router.GET("/healthz", handler.Healthz)
	router.GET("/openapi.json", handler.OpenAPIDoc)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/register", authHandler.Register)
		v1.POST("/auth/login", authHandler.Login)
		v1.POST("/auth/login/biometric", authHandler.LoginBiometric)
		v1.POST("/auth/refresh", authHandler.Refresh)
		v1.POST("/auth/logout", authHandler.Logout)
		v1.POST("/auth/device/assess", deviceHandler.Assess)

		authed := v1.Group("/")
		authed.Use(handler.AuthMiddleware(tokens))
		{
			authed.POST("auth/biometric/enroll", authHandler.EnrollBiometric)
			authed.GET("auth/session", authHandler.Session)
			authed.POST("admin/keys/rotate", keyHandler.Rotate)
		}
	}

	log.Printf("listening on %s", cfg.Server.ListenAddr)
	if err := router.Run(cfg.Server.ListenAddr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
