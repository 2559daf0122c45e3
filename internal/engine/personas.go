package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dusktreader/site-nine/internal/config"
	"github.com/dusktreader/site-nine/internal/db"
	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/events"
	"github.com/dusktreader/site-nine/internal/repo"
)

// SuggestPersona returns the least used persona of role not in exclude, ties
// broken by name. ErrNoPersonaAvailable is returned when none remain.
func (e Engine) SuggestPersona(ctx context.Context, role domain.Role, exclude []string) (domain.Persona, error) {
	r, err := domain.ParseRole(string(role))
	if err != nil {
		return domain.Persona{}, invalid("role", err)
	}
	names := make([]string, 0, len(exclude))
	for _, name := range exclude {
		names = append(names, strings.ToLower(strings.TrimSpace(name)))
	}
	var p domain.Persona
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		p, err = e.Repo.LeastUsedPersonaTx(ctx, tx, r, names)
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w for role %s", ErrNoPersonaAvailable, r)
		}
		return err
	})
	return p, err
}

// RecordMissionStart bumps a persona's mission counter and last mission time.
func (e Engine) RecordMissionStart(ctx context.Context, name string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.IncrementPersonaMissionsTx(ctx, tx, name, e.timestamp()); err != nil {
			return wrapNotFound(err, "persona", name)
		}
		return nil
	})
}

func (e Engine) AddPersona(ctx context.Context, seed config.PersonaSeed) (domain.Persona, error) {
	p, err := personaFromSeed(seed)
	if err != nil {
		return p, err
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		p.CreatedAt = e.timestamp()
		if err := e.Repo.InsertPersonaTx(ctx, tx, p); err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("%w: persona %s already exists", ErrDuplicateKey, p.Name)
			}
			return err
		}
		return e.event(ctx, tx, "persona.added", events.KindPersona, p.Name, events.EventPayload{"role": p.Role})
	})
	return p, err
}

// SeedPersonas inserts every persona from the catalog that is not already
// present and returns how many were added.
func (e Engine) SeedPersonas(ctx context.Context) (int, error) {
	seeds, err := e.Config.AllPersonas()
	if err != nil {
		return 0, err
	}
	personas := make([]domain.Persona, 0, len(seeds))
	for _, s := range seeds {
		p, err := personaFromSeed(s)
		if err != nil {
			return 0, err
		}
		personas = append(personas, p)
	}
	var added int
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		added = 0
		now := e.timestamp()
		for _, p := range personas {
			p.CreatedAt = now
			ok, err := e.Repo.InsertPersonaIfMissingTx(ctx, tx, p)
			if err != nil {
				return err
			}
			if ok {
				added++
			}
		}
		if added == 0 {
			return nil
		}
		return e.event(ctx, tx, "persona.seeded", events.KindPersona, "", events.EventPayload{"added": added})
	})
	return added, err
}

func (e Engine) GetPersona(ctx context.Context, name string) (domain.Persona, error) {
	p, err := e.Repo.GetPersona(ctx, strings.ToLower(name))
	if err != nil {
		return p, wrapNotFound(err, "persona", name)
	}
	return p, nil
}

func (e Engine) ListPersonas(ctx context.Context, f repo.PersonaFilters) ([]domain.Persona, error) {
	return e.Repo.ListPersonas(ctx, f)
}

func personaFromSeed(s config.PersonaSeed) (domain.Persona, error) {
	name := strings.TrimSpace(s.Name)
	if name == "" || name != strings.ToLower(name) {
		return domain.Persona{}, invalidf("name", "persona name %q must be non-empty lowercase", s.Name)
	}
	role, err := domain.ParseRole(s.Role)
	if err != nil {
		return domain.Persona{}, invalid("role", err)
	}
	if strings.TrimSpace(s.Mythology) == "" {
		return domain.Persona{}, invalidf("mythology", "mythology is required")
	}
	return domain.Persona{Name: name, Role: role, Mythology: s.Mythology, Description: s.Description}, nil
}
