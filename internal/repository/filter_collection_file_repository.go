package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const filterCollectionExt = ".xml"

type fileFilterCollectionRepository struct {
	dir string
}

// NewFileFilterCollectionRepository keeps each project's document in
// dir/<escaped project>.xml.
func NewFileFilterCollectionRepository(dir string) FilterCollectionRepository {
	return &fileFilterCollectionRepository{dir: dir}
}

func (r *fileFilterCollectionRepository) Load(ctx context.Context, project string) ([]byte, error) {
	path, err := r.path(project)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFilterCollectionNotFound, project)
		}
		return nil, fmt.Errorf("failed to read filter collection: %w", err)
	}
	return data, nil
}

// Save writes through a temp file and renames it so readers never see a
// partial document.
func (r *fileFilterCollectionRepository) Save(ctx context.Context, project string, document []byte) error {
	path, err := r.path(project)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to prepare filter directory: %w", err)
	}

	tmp, err := os.CreateTemp(r.dir, ".filter-*"+filterCollectionExt)
	if err != nil {
		return fmt.Errorf("failed to create temp filter file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(document); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write filter collection: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp filter file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to store filter collection: %w", err)
	}
	return nil
}

func (r *fileFilterCollectionRepository) Delete(ctx context.Context, project string) error {
	path, err := r.path(project)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFilterCollectionNotFound, project)
		}
		return fmt.Errorf("failed to delete filter collection: %w", err)
	}
	return nil
}

func (r *fileFilterCollectionRepository) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list filter collections: %w", err)
	}

	projects := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, filterCollectionExt) {
			continue
		}
		project, err := url.PathUnescape(strings.TrimSuffix(name, filterCollectionExt))
		if err != nil {
			continue
		}
		projects = append(projects, project)
	}
	sort.Strings(projects)
	return projects, nil
}

func (r *fileFilterCollectionRepository) path(project string) (string, error) {
	name, err := normalizeProject(project)
	if err != nil {
		return "", err
	}
	// PathEscape leaves dots alone; "." and ".." must not reach the file system.
	escaped := strings.ReplaceAll(url.PathEscape(name), ".", "%2E")
	return filepath.Join(r.dir, escaped+filterCollectionExt), nil
}
