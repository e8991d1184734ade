// Package profile persists printer identities: how to reach a printer,
// its paper width and which one is the default.
package profile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nixxel-company-limited/posprint/adapter"
	"github.com/nixxel-company-limited/posprint/receipt"
)

var (
	ErrNotFound  = errors.New("printer profile not found")
	ErrNoDefault = errors.New("no default printer profile")
	ErrInvalid   = errors.New("invalid printer profile")
)

// Profile is a saved printer.
type Profile struct {
	ID              string             `json:"id" yaml:"id"`
	Name            string             `json:"name" yaml:"name"`
	Kind            adapter.Kind       `json:"kind" yaml:"kind"`
	Address         string             `json:"address" yaml:"address"`
	PaperWidth      receipt.PaperWidth `json:"paper_width" yaml:"paper_width"`
	IsDefault       bool               `json:"is_default" yaml:"is_default"`
	LastConnectedAt *time.Time         `json:"last_connected_at,omitempty" yaml:"last_connected_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at" yaml:"created_at"`
}

// New returns a profile with a fresh id.
func New(name string, kind adapter.Kind, address string, width receipt.PaperWidth) Profile {
	return Profile{
		ID:         uuid.NewString(),
		Name:       name,
		Kind:       kind,
		Address:    address,
		PaperWidth: width,
		CreatedAt:  time.Now().UTC(),
	}
}

// Validate checks the fields every store requires.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalid)
	}
	if _, err := adapter.ParseKind(string(p.Kind)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if !p.PaperWidth.Valid() {
		return fmt.Errorf("%w: paper width %d", ErrInvalid, int(p.PaperWidth))
	}
	return nil
}

// Store is the persistence port for profiles. At most one stored profile
// has IsDefault set; saving a default profile clears the flag on the rest.
type Store interface {
	List(ctx context.Context) ([]Profile, error)
	Get(ctx context.Context, id string) (Profile, error)
	Save(ctx context.Context, p Profile) error
	Delete(ctx context.Context, id string) error
	SetDefault(ctx context.Context, id string) error
	Default(ctx context.Context) (Profile, error)
}

// LastUsed returns the most recently connected profile.
func LastUsed(profiles []Profile) (Profile, bool) {
	var (
		best  Profile
		found bool
	)
	for _, p := range profiles {
		if p.LastConnectedAt == nil {
			continue
		}
		if !found || p.LastConnectedAt.After(*best.LastConnectedAt) {
			best, found = p, true
		}
	}
	return best, found
}

// Preferred picks the profile to connect to on startup: the default one,
// falling back to the most recently used.
func Preferred(ctx context.Context, s Store) (Profile, error) {
	p, err := s.Default(ctx)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNoDefault) {
		return Profile{}, err
	}
	all, err := s.List(ctx)
	if err != nil {
		return Profile{}, err
	}
	if p, ok := LastUsed(all); ok {
		return p, nil
	}
	return Profile{}, ErrNoDefault
}

// Match finds the stored profile that reaches kind at address, so a printer
// named inline is recorded once no matter how often it is connected.
func Match(ctx context.Context, s Store, kind adapter.Kind, address string) (Profile, bool, error) {
	all, err := s.List(ctx)
	if err != nil {
		return Profile{}, false, err
	}
	for _, p := range all {
		if p.Kind == kind && p.Address == address {
			return p, true, nil
		}
	}
	return Profile{}, false, nil
}

func sortProfiles(ps []Profile) {
	sort.SliceStable(ps, func(i, j int) bool {
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.Before(ps[j].CreatedAt)
		}
		return ps[i].Name < ps[j].Name
	})
}
