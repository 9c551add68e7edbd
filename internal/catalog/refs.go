package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/screenarc/tmdb-harvester/internal/tmdb"
)

// Shared reference entities are created on first sight and never deleted.
// Person is the one mutable reference: every sighting refreshes its fields.

func upsertGenre(ctx context.Context, tx pgx.Tx, g tmdb.Genre) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO genres (id, name) VALUES ($1, $2)
		 ON CONFLICT (id) DO NOTHING`,
		g.ID, g.Name)
	if err != nil {
		return fmt.Errorf("upsert genre %d: %w", g.ID, err)
	}
	return nil
}

func upsertCompany(ctx context.Context, tx pgx.Tx, c tmdb.Company) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO production_companies (id, name, logo_path, origin_country)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		c.ID, c.Name, c.LogoPath, c.OriginCountry)
	if err != nil {
		return fmt.Errorf("upsert company %d: %w", c.ID, err)
	}
	return nil
}

func upsertCountry(ctx context.Context, tx pgx.Tx, c tmdb.Country) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO production_countries (iso_3166_1, name) VALUES ($1, $2)
		 ON CONFLICT (iso_3166_1) DO NOTHING`,
		c.ISO31661, c.Name)
	if err != nil {
		return fmt.Errorf("upsert country %s: %w", c.ISO31661, err)
	}
	return nil
}

func upsertLanguage(ctx context.Context, tx pgx.Tx, l tmdb.Language) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO spoken_languages (iso_639_1, english_name, name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (iso_639_1) DO NOTHING`,
		l.ISO6391, l.EnglishName, l.Name)
	if err != nil {
		return fmt.Errorf("upsert language %s: %w", l.ISO6391, err)
	}
	return nil
}

func upsertKeyword(ctx context.Context, tx pgx.Tx, k tmdb.Keyword) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO keywords (id, name) VALUES ($1, $2)
		 ON CONFLICT (id) DO NOTHING`,
		k.ID, k.Name)
	if err != nil {
		return fmt.Errorf("upsert keyword %d: %w", k.ID, err)
	}
	return nil
}

func upsertProvider(ctx context.Context, tx pgx.Tx, p tmdb.Provider) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO watch_providers (id, provider_name, logo_path, display_priority)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		p.ProviderID, p.ProviderName, p.LogoPath, p.DisplayPriority)
	if err != nil {
		return fmt.Errorf("upsert watch provider %d: %w", p.ProviderID, err)
	}
	return nil
}

func upsertNetwork(ctx context.Context, tx pgx.Tx, n tmdb.Network) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO tv_networks (id, name, logo_path, origin_country)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		n.ID, n.Name, n.LogoPath, n.OriginCountry)
	if err != nil {
		return fmt.Errorf("upsert network %d: %w", n.ID, err)
	}
	return nil
}

// upsertPerson refreshes mutable person fields on every sighting,
// last-write-wins.
func upsertPerson(ctx context.Context, tx pgx.Tx, p tmdb.PersonRef) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO people (id, name, original_name, gender, adult,
			known_for_department, popularity, profile_path)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			original_name = EXCLUDED.original_name,
			gender = EXCLUDED.gender,
			adult = EXCLUDED.adult,
			known_for_department = EXCLUDED.known_for_department,
			popularity = EXCLUDED.popularity,
			profile_path = EXCLUDED.profile_path`,
		p.ID, p.Name, p.OriginalName, p.Gender, p.Adult,
		p.KnownForDepartment, p.Popularity, p.ProfilePath)
	if err != nil {
		return fmt.Errorf("upsert person %d: %w", p.ID, err)
	}
	return nil
}
