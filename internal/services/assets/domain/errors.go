package domain

import (
	"errors"

	apperrors "github.com/louisbranch/bridgeassets/internal/platform/errors"
	"github.com/louisbranch/bridgeassets/internal/services/assets/codec"
	"github.com/louisbranch/bridgeassets/internal/services/assets/storage"
)

// errEntryNotFound is returned for missing bridges, sections, and assets,
// and for bridges the caller does not own.
func errEntryNotFound(message string) error {
	return apperrors.New(apperrors.CodeEntryNotFound, message)
}

// storeError maps registry failures onto domain codes.
func storeError(message string, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.Wrap(apperrors.CodeEntryNotFound, message, err)
	}
	return apperrors.Wrap(apperrors.CodeUnhandled, message, err)
}

// codecError maps codec failures onto domain codes.
func codecError(kind storage.AssetKind, message string, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	switch {
	case errors.Is(err, codec.ErrUnsupportedFormat):
		return apperrors.WrapWithMetadata(apperrors.CodeUnsupportedFormat, message, map[string]string{"Kind": string(kind)}, err)
	case errors.Is(err, codec.ErrDecode):
		return apperrors.Wrap(apperrors.CodeDecodeFailed, message, err)
	case errors.Is(err, codec.ErrGeometry):
		return apperrors.Wrap(apperrors.CodeInvalidGeometry, message, err)
	default:
		return apperrors.Wrap(apperrors.CodeUnhandled, message, err)
	}
}

// blobError maps blob store failures onto StorageFailure.
func blobError(message string, err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.CodeStorageFailure, message, err)
}
