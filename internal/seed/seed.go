// Package seed loads catalog and directory fixtures from YAML.
package seed

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/sudo-init-do/fieldhub/internal/auth"
	"github.com/sudo-init-do/fieldhub/internal/catalog"
	"github.com/sudo-init-do/fieldhub/internal/directory"
)

// File is the on-disk fixture layout.
type File struct {
	Services   []catalog.Service     `yaml:"services"`
	Providers  []directory.Provider  `yaml:"providers"`
	Requesters []directory.Requester `yaml:"requesters"`
}

// CatalogWriter and DirectoryWriter are satisfied by both the postgres and memory stores.
type CatalogWriter interface {
	Upsert(ctx context.Context, s catalog.Service) error
}

type DirectoryWriter interface {
	UpsertProvider(ctx context.Context, p directory.Provider) error
	UpsertRequester(ctx context.Context, r directory.Requester) error
}

func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	emails := map[string]bool{}
	for i, s := range f.Services {
		if s.ID == uuid.Nil || s.Name == "" {
			return fmt.Errorf("services[%d]: id and name are required", i)
		}
		if s.BasePrice < 0 {
			return fmt.Errorf("services[%d]: base_price must not be negative", i)
		}
	}
	for i, p := range f.Providers {
		if p.ID == uuid.Nil || p.Email == "" {
			return fmt.Errorf("providers[%d]: id and email are required", i)
		}
		email := directory.NormalizeContact(p.Email)
		if emails[email] {
			return fmt.Errorf("providers[%d]: duplicate email %s", i, email)
		}
		emails[email] = true
	}
	for i, r := range f.Requesters {
		if r.ID == uuid.Nil {
			return fmt.Errorf("requesters[%d]: id is required", i)
		}
		if r.Role == "" {
			f.Requesters[i].Role = auth.RoleRequester
		} else if !auth.ValidRole(r.Role) {
			return fmt.Errorf("requesters[%d]: invalid role %q", i, r.Role)
		}
	}
	return nil
}

// Apply upserts every record.
func (f *File) Apply(ctx context.Context, services CatalogWriter, people DirectoryWriter) error {
	for _, s := range f.Services {
		if err := services.Upsert(ctx, s); err != nil {
			return err
		}
	}
	for _, p := range f.Providers {
		if err := people.UpsertProvider(ctx, p); err != nil {
			return err
		}
	}
	for _, r := range f.Requesters {
		if err := people.UpsertRequester(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
