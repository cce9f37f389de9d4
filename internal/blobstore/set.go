package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/EhsanAmini770/charity-info-sub000/internal/models"
)

// Set holds the configured backends in preference order and resolves a
// record's backend kind to the backend that serves it.
type Set struct {
	order  []Backend
	byKind map[models.StorageBackend]Backend
	logger *slog.Logger
}

// NewSet builds a set. The first backend is preferred for writes; the rest
// are tried in order when it is unavailable or fails with a storage error.
func NewSet(logger *slog.Logger, preferred Backend, fallbacks ...Backend) (*Set, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Set{byKind: make(map[models.StorageBackend]Backend), logger: logger}
	for _, b := range append([]Backend{preferred}, fallbacks...) {
		if b == nil {
			continue
		}
		if _, dup := s.byKind[b.Kind()]; dup {
			return nil, fmt.Errorf("duplicate %s backend", b.Kind())
		}
		s.byKind[b.Kind()] = b
		s.order = append(s.order, b)
	}
	if len(s.order) == 0 {
		return nil, fmt.Errorf("at least one blob backend is required")
	}
	return s, nil
}

// Backend returns the backend for kind.
func (s *Set) Backend(kind models.StorageBackend) (Backend, bool) {
	b, ok := s.byKind[kind]
	return b, ok
}

// Backends returns the backends in preference order.
func (s *Set) Backends() []Backend {
	out := make([]Backend, len(s.order))
	copy(out, s.order)
	return out
}

// Write stores content on the first backend that accepts it. When
// declaredSize is non-negative the stored byte count must match it.
func (s *Set) Write(ctx context.Context, content io.ReadSeeker, suggestedName string, declaredSize int64) (models.StorageBackend, WriteResult, error) {
	var errs []error
	attempted := false
	for _, b := range s.order {
		if !b.Available() {
			s.logger.Debug("blob backend unavailable, skipping", "backend", b.Kind())
			errs = append(errs, fmt.Errorf("%s: %w", b.Kind(), ErrUnavailable))
			continue
		}
		if attempted {
			if _, err := content.Seek(0, io.SeekStart); err != nil {
				errs = append(errs, fmt.Errorf("rewind content: %w", err))
				break
			}
		}
		attempted = true

		res, err := b.Write(ctx, content, suggestedName)
		if err == nil && declaredSize >= 0 && res.Size != declaredSize {
			if _, delErr := b.Delete(ctx, res.Ref); delErr != nil {
				s.logger.Warn("remove short blob failed", "backend", b.Kind(), "ref", res.Ref, "error", delErr)
			}
			err = &StorageError{Backend: b.Kind(), Op: "write", Err: fmt.Errorf("stored %d bytes, expected %d", res.Size, declaredSize)}
		}
		if err == nil {
			return b.Kind(), res, nil
		}
		if !IsStorageFailure(err) && !errors.Is(err, ErrUnavailable) {
			return "", WriteResult{}, err
		}
		s.logger.Warn("blob write failed, trying next backend", "backend", b.Kind(), "error", err)
		errs = append(errs, err)
	}
	return "", WriteResult{}, fmt.Errorf("%w: %w", ErrNoBackend, errors.Join(errs...))
}

// Close closes every backend.
func (s *Set) Close() error {
	var errs []error
	for _, b := range s.order {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s backend: %w", b.Kind(), err))
		}
	}
	return errors.Join(errs...)
}
