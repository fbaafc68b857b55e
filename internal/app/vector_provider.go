package app

import (
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"os"
	"strings"
	"time"

	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/platform/pinecone"
	"github.com/yungbote/recall-backend/internal/platform/qdrant"
)

var (
	newPineconeClient      = pinecone.New
	newPineconeVectorStore = pinecone.NewVectorStore
	newQdrantVectorStore   = qdrant.NewVectorStore
)

type VectorProviderBootstrapErrorCode string

const (
	VectorProviderBootstrapErrorInvalidProvider      VectorProviderBootstrapErrorCode = "invalid_provider"
	VectorProviderBootstrapErrorMissingQdrantURL     VectorProviderBootstrapErrorCode = "missing_qdrant_url"
	VectorProviderBootstrapErrorInvalidQdrantURL     VectorProviderBootstrapErrorCode = "invalid_qdrant_url"
	VectorProviderBootstrapErrorMissingQdrantColl    VectorProviderBootstrapErrorCode = "missing_qdrant_collection"
	VectorProviderBootstrapErrorMissingQdrantVector  VectorProviderBootstrapErrorCode = "missing_qdrant_vector_dim"
	VectorProviderBootstrapErrorInvalidQdrantVector  VectorProviderBootstrapErrorCode = "invalid_qdrant_vector_dim"
	VectorProviderBootstrapErrorQdrantConfigFailed   VectorProviderBootstrapErrorCode = "qdrant_config_failed"
	VectorProviderBootstrapErrorConnectFailed        VectorProviderBootstrapErrorCode = "connect_failed"
	VectorProviderBootstrapErrorProviderInitFailed   VectorProviderBootstrapErrorCode = "provider_init_failed"
	VectorProviderBootstrapCodeDisabledMissingAPIKey VectorProviderBootstrapErrorCode = "disabled_missing_api_key"
)

type VectorProviderBootstrapError struct {
	Code              VectorProviderBootstrapErrorCode
	Provider          string
	ObjectStorageMode string
	Cause             error
}

func (e *VectorProviderBootstrapError) Error() string {
	if e == nil {
		return "vector provider bootstrap failed"
	}
	return fmt.Sprintf(
		"vector provider bootstrap failed (code=%s provider=%q object_storage_mode=%q): %v",
		e.Code,
		e.Provider,
		e.ObjectStorageMode,
		e.Cause,
	)
}

func (e *VectorProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveVectorStore builds the configured vector store. A nil store with a
// nil error means dense search is disabled (provider off, or pinecone with
// no API key) and retrieval falls back to SQL-side scoring.
func resolveVectorStore(log *logger.Logger, cfg Config) (pinecone.Client, pinecone.VectorStore, error) {
	mode := string(cfg.ObjectStorage.Mode)
	provider := string(cfg.Vector.Provider)

	switch cfg.Vector.Provider {
	case VectorProviderOff:
		log.Warn("Vector provider disabled; dense search falls back to SQL",
			"provider_mode_source", cfg.Vector.ModeSource,
		)
		return nil, nil, nil

	case VectorProviderQdrant:
		log.Info("Selecting vector store provider",
			"provider", provider,
			"object_storage_mode", mode,
			"provider_mode_source", cfg.Vector.ModeSource,
			"qdrant_url", cfg.Vector.Qdrant.URL,
			"qdrant_collection", cfg.Vector.Qdrant.Collection,
			"qdrant_namespace_prefix", cfg.Vector.Qdrant.NamespacePrefix,
			"qdrant_vector_dim", cfg.Vector.Qdrant.VectorDim,
		)
		vs, err := newQdrantVectorStore(log, cfg.Vector.Qdrant)
		if err != nil {
			classified := classifyVectorProviderBootstrapError(provider, mode, err)
			log.Error("Vector store provider bootstrap failed",
				"provider", provider,
				"object_storage_mode", mode,
				"error_code", vectorProviderBootstrapErrorCode(classified),
				"error", classified,
			)
			return nil, nil, classified
		}
		return nil, instrumentVectorStore(provider, vs), nil

	case VectorProviderPinecone:
		log.Info("Selecting vector store provider",
			"provider", provider,
			"object_storage_mode", mode,
			"provider_mode_source", cfg.Vector.ModeSource,
		)
		apiKey := strings.TrimSpace(os.Getenv("PINECONE_API_KEY"))
		if apiKey == "" {
			log.Warn("PINECONE_API_KEY not set; vector search disabled")
			return nil, nil, nil
		}
		pc, err := newPineconeClient(log, pinecone.Config{
			APIKey:     apiKey,
			APIVersion: strings.TrimSpace(os.Getenv("PINECONE_API_VERSION")),
			BaseURL:    strings.TrimSpace(os.Getenv("PINECONE_BASE_URL")),
			Timeout:    30 * time.Second,
		})
		if err != nil {
			classified := classifyVectorProviderBootstrapError(provider, mode, err)
			log.Error("Vector store provider bootstrap failed",
				"provider", provider,
				"object_storage_mode", mode,
				"error_code", vectorProviderBootstrapErrorCode(classified),
				"error", classified,
			)
			return nil, nil, classified
		}
		vs, err := newPineconeVectorStore(log, pc)
		if err != nil {
			classified := classifyVectorProviderBootstrapError(provider, mode, err)
			log.Error("Vector store provider bootstrap failed",
				"provider", provider,
				"object_storage_mode", mode,
				"error_code", vectorProviderBootstrapErrorCode(classified),
				"error", classified,
			)
			return nil, nil, classified
		}
		return pc, instrumentVectorStore(provider, vs), nil

	default:
		err := &VectorProviderBootstrapError{
			Code:              VectorProviderBootstrapErrorInvalidProvider,
			Provider:          provider,
			ObjectStorageMode: mode,
			Cause:             fmt.Errorf("unsupported vector provider %q", provider),
		}
		log.Error("Vector store provider selection failed",
			"provider", provider,
			"object_storage_mode", mode,
			"error_code", err.Code,
			"error", err,
		)
		return nil, nil, err
	}
}

func classifyVectorProviderBootstrapError(provider, objectStorageMode string, err error) error {
	var urlErr *neturl.Error
	if errors.As(err, &urlErr) {
		return &VectorProviderBootstrapError{
			Code:              VectorProviderBootstrapErrorConnectFailed,
			Provider:          provider,
			ObjectStorageMode: objectStorageMode,
			Cause:             err,
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &VectorProviderBootstrapError{
			Code:              VectorProviderBootstrapErrorConnectFailed,
			Provider:          provider,
			ObjectStorageMode: objectStorageMode,
			Cause:             err,
		}
	}
	errLower := strings.ToLower(err.Error())
	if strings.Contains(errLower, "ready check failed") || strings.Contains(errLower, "connection refused") {
		return &VectorProviderBootstrapError{
			Code:              VectorProviderBootstrapErrorConnectFailed,
			Provider:          provider,
			ObjectStorageMode: objectStorageMode,
			Cause:             err,
		}
	}

	var cfgErr *qdrant.ConfigError
	if errors.As(err, &cfgErr) {
		code := VectorProviderBootstrapErrorQdrantConfigFailed
		switch cfgErr.Code {
		case qdrant.ConfigErrorMissingURL:
			code = VectorProviderBootstrapErrorMissingQdrantURL
		case qdrant.ConfigErrorInvalidURL:
			code = VectorProviderBootstrapErrorInvalidQdrantURL
		case qdrant.ConfigErrorMissingCollection:
			code = VectorProviderBootstrapErrorMissingQdrantColl
		case qdrant.ConfigErrorMissingVectorDim:
			code = VectorProviderBootstrapErrorMissingQdrantVector
		case qdrant.ConfigErrorInvalidVectorDim:
			code = VectorProviderBootstrapErrorInvalidQdrantVector
		}
		return &VectorProviderBootstrapError{
			Code:              code,
			Provider:          provider,
			ObjectStorageMode: objectStorageMode,
			Cause:             err,
		}
	}

	return &VectorProviderBootstrapError{
		Code:              VectorProviderBootstrapErrorProviderInitFailed,
		Provider:          provider,
		ObjectStorageMode: objectStorageMode,
		Cause:             err,
	}
}

func vectorProviderBootstrapErrorCode(err error) VectorProviderBootstrapErrorCode {
	var bootstrapErr *VectorProviderBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return VectorProviderBootstrapErrorConnectFailed
}
