package app

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/yungbote/recall-backend/internal/platform/gcp"
	"github.com/yungbote/recall-backend/internal/platform/qdrant"
)

type VectorProvider string

const (
	VectorProviderPinecone VectorProvider = "pinecone"
	VectorProviderQdrant   VectorProvider = "qdrant"
	VectorProviderOff      VectorProvider = "off"
)

type VectorProviderConfigErrorCode string

const (
	VectorProviderConfigErrorInvalidProvider      VectorProviderConfigErrorCode = "invalid_provider"
	VectorProviderConfigErrorInvalidStorageMode   VectorProviderConfigErrorCode = "invalid_storage_mode"
	VectorProviderConfigErrorMissingQdrantURL     VectorProviderConfigErrorCode = "missing_qdrant_url"
	VectorProviderConfigErrorInvalidQdrantURL     VectorProviderConfigErrorCode = "invalid_qdrant_url"
	VectorProviderConfigErrorMissingQdrantColl    VectorProviderConfigErrorCode = "missing_qdrant_collection"
	VectorProviderConfigErrorMissingQdrantVector  VectorProviderConfigErrorCode = "missing_qdrant_vector_dim"
	VectorProviderConfigErrorInvalidQdrantVector  VectorProviderConfigErrorCode = "invalid_qdrant_vector_dim"
	VectorProviderConfigErrorUnknownQdrantFailure VectorProviderConfigErrorCode = "qdrant_config_error"
)

type VectorProviderConfigError struct {
	Code        VectorProviderConfigErrorCode
	Provider    VectorProvider
	StorageMode string
	Cause       error
}

func (e *VectorProviderConfigError) Error() string {
	if e == nil {
		return "invalid vector provider config"
	}
	return fmt.Sprintf(
		"invalid vector provider config (code=%s provider=%q object_storage_mode=%q): %v",
		e.Code,
		e.Provider,
		e.StorageMode,
		e.Cause,
	)
}

func (e *VectorProviderConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

type VectorProviderConfig struct {
	Provider   VectorProvider
	ModeSource string
	Qdrant     qdrant.Config
}

// resolveVectorProviderConfig picks the vector backend. An explicit
// VECTOR_PROVIDER wins; otherwise the object storage mode decides: the
// emulator stack runs qdrant locally, real GCS pairs with pinecone.
// "off" disables dense search and every caller falls back to SQL scoring.
func resolveVectorProviderConfig(storageMode gcp.ObjectStorageMode) (VectorProviderConfig, error) {
	if raw := strings.TrimSpace(strings.ToLower(os.Getenv("VECTOR_PROVIDER"))); raw != "" {
		switch VectorProvider(raw) {
		case VectorProviderPinecone:
			return VectorProviderConfig{Provider: VectorProviderPinecone, ModeSource: "explicit"}, nil
		case VectorProviderQdrant:
			qcfg, err := qdrant.ResolveConfigFromEnv()
			if err != nil {
				return VectorProviderConfig{}, mapVectorProviderConfigError(storageMode, err)
			}
			return VectorProviderConfig{Provider: VectorProviderQdrant, ModeSource: "explicit", Qdrant: qcfg}, nil
		case VectorProviderOff:
			return VectorProviderConfig{Provider: VectorProviderOff, ModeSource: "explicit"}, nil
		default:
			return VectorProviderConfig{}, &VectorProviderConfigError{
				Code:        VectorProviderConfigErrorInvalidProvider,
				Provider:    VectorProvider(raw),
				StorageMode: string(storageMode),
				Cause:       fmt.Errorf("unsupported VECTOR_PROVIDER %q", raw),
			}
		}
	}

	switch storageMode {
	case gcp.ObjectStorageModeGCSEmulator:
		qcfg, err := qdrant.ResolveConfigFromEnv()
		if err != nil {
			return VectorProviderConfig{}, mapVectorProviderConfigError(storageMode, err)
		}
		return VectorProviderConfig{
			Provider:   VectorProviderQdrant,
			ModeSource: "object_storage_mode_default",
			Qdrant:     qcfg,
		}, nil
	case gcp.ObjectStorageModeGCS:
		return VectorProviderConfig{
			Provider:   VectorProviderPinecone,
			ModeSource: "object_storage_mode_default",
		}, nil
	default:
		return VectorProviderConfig{}, &VectorProviderConfigError{
			Code:        VectorProviderConfigErrorInvalidStorageMode,
			Provider:    "",
			StorageMode: string(storageMode),
			Cause:       fmt.Errorf("unsupported object storage mode %q", storageMode),
		}
	}
}

func mapVectorProviderConfigError(storageMode gcp.ObjectStorageMode, err error) error {
	var qerr *qdrant.ConfigError
	if errors.As(err, &qerr) {
		code := VectorProviderConfigErrorUnknownQdrantFailure
		switch qerr.Code {
		case qdrant.ConfigErrorMissingURL:
			code = VectorProviderConfigErrorMissingQdrantURL
		case qdrant.ConfigErrorInvalidURL:
			code = VectorProviderConfigErrorInvalidQdrantURL
		case qdrant.ConfigErrorMissingCollection:
			code = VectorProviderConfigErrorMissingQdrantColl
		case qdrant.ConfigErrorMissingVectorDim:
			code = VectorProviderConfigErrorMissingQdrantVector
		case qdrant.ConfigErrorInvalidVectorDim:
			code = VectorProviderConfigErrorInvalidQdrantVector
		}
		return &VectorProviderConfigError{
			Code:        code,
			Provider:    VectorProviderQdrant,
			StorageMode: string(storageMode),
			Cause:       err,
		}
	}
	return &VectorProviderConfigError{
		Code:        VectorProviderConfigErrorUnknownQdrantFailure,
		Provider:    VectorProviderQdrant,
		StorageMode: string(storageMode),
		Cause:       err,
	}
}
