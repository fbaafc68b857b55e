package app

import (
	"time"

	"github.com/yungbote/recall-backend/internal/platform/envutil"
	"github.com/yungbote/recall-backend/internal/platform/gcp"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

type Config struct {
	Port        string
	Environment string
	Version     string

	JWTSecretKey string
	TokenTTL     time.Duration

	ObjectStorage gcp.ObjectStorageConfig
	Vector        VectorProviderConfig
}

// LoadConfig resolves app-level configuration. Component-level knobs
// (worker concurrency, retrieve limits, provider credentials) are read by
// the components themselves.
func LoadConfig(log *logger.Logger) (Config, error) {
	storageCfg, err := gcp.ResolveObjectStorageConfigFromEnv()
	if err != nil {
		return Config{}, err
	}

	vecCfg, err := resolveVectorProviderConfig(storageCfg.Mode)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:          envutil.Str("PORT", "8080"),
		Environment:   envutil.Str("APP_ENV", "development"),
		Version:       envutil.Str("APP_VERSION", "dev"),
		JWTSecretKey:  envutil.Str("JWT_SECRET_KEY", "defaultsecret"),
		TokenTTL:      envutil.Dur("TOKEN_TTL", time.Hour),
		ObjectStorage: storageCfg,
		Vector:        vecCfg,
	}

	log.Info("Configuration loaded",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"object_storage_mode", cfg.ObjectStorage.Mode,
		"vector_provider", cfg.Vector.Provider,
		"vector_provider_source", cfg.Vector.ModeSource,
	)
	return cfg, nil
}
