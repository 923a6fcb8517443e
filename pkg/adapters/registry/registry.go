// Package registry checks proposed artifact names against the wiki that
// hosts the chart definitions, which may differ from the wiki being ported.
package registry

import (
	"context"
	"fmt"

	"github.com/chartport/chartport/internal/domain"
)

// PageChecker is the subset of the content API the registry needs
type PageChecker interface {
	PageExists(ctx context.Context, title string) (bool, error)
}

// Registry answers whether an artifact name is already taken. A name is
// taken when a Data: page with that name and the chart extension exists.
type Registry struct {
	checker PageChecker
}

// New creates a registry backed by a content API client
func New(checker PageChecker) *Registry {
	return &Registry{checker: checker}
}

// Exists reports whether the artifact name is already in use
func (r *Registry) Exists(ctx context.Context, name string) (bool, error) {
	title := "Data:" + name + domain.ChartExt
	exists, err := r.checker.PageExists(ctx, title)
	if err != nil {
		return false, fmt.Errorf("probe %q: %w", title, err)
	}
	return exists, nil
}
