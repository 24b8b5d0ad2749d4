package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrFilterCollectionNotFound is returned when a project has no saved filter collection.
var ErrFilterCollectionNotFound = errors.New("filter collection not found")

// ErrInvalidProject rejects blank project names.
var ErrInvalidProject = errors.New("invalid project name")

// FilterCollectionRepository stores one FilterCollection document per project.
// Documents are opaque here; validation and decoding belong to the caller.
type FilterCollectionRepository interface {
	Load(ctx context.Context, project string) ([]byte, error)
	Save(ctx context.Context, project string, document []byte) error
	Delete(ctx context.Context, project string) error
	List(ctx context.Context) ([]string, error)
}

func normalizeProject(project string) (string, error) {
	trimmed := strings.TrimSpace(project)
	if trimmed == "" {
		return "", fmt.Errorf("%w: project is required", ErrInvalidProject)
	}
	return trimmed, nil
}
