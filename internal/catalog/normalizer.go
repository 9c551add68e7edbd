// Package catalog implements the upsert engine: it maps one detail payload
// onto the shared relational entity graph, idempotently, inside a single
// transaction per content item.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/screenarc/tmdb-harvester/internal/tmdb"
)

// Persistence caps, by payload order.
const (
	maxCast    = 50
	maxCrew    = 100
	maxSimilar = 20
)

// DB is the transactional slice of pgxpool.Pool the normalizer needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Normalizer writes detail payloads into the entity graph. All writes for
// one item run inside one transaction, rolled back on any error, so a failed
// normalization leaves no partial state.
type Normalizer struct {
	db     DB
	logger *zap.Logger
	now    func() time.Time
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(db DB, logger *zap.Logger) *Normalizer {
	return &Normalizer{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NormalizeMovie persists one movie payload and its child collections.
func (n *Normalizer) NormalizeMovie(ctx context.Context, m *tmdb.Movie) error {
	if m.ID <= 0 {
		return fmt.Errorf("movie payload missing id")
	}
	if m.Title == "" {
		return fmt.Errorf("movie %d payload missing title", m.ID)
	}

	tx, err := n.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin movie transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := n.writeMovie(ctx, tx, m); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit movie %d: %w", m.ID, err)
	}
	return nil
}

func (n *Normalizer) writeMovie(ctx context.Context, tx pgx.Tx, m *tmdb.Movie) error {
	// Reference entities first so every junction row has a parent.
	for _, g := range m.Genres {
		if err := upsertGenre(ctx, tx, g); err != nil {
			return err
		}
	}
	for _, c := range m.ProductionCompanies {
		if err := upsertCompany(ctx, tx, c); err != nil {
			return err
		}
	}
	for _, c := range m.ProductionCountries {
		if err := upsertCountry(ctx, tx, c); err != nil {
			return err
		}
	}
	for _, l := range m.SpokenLanguages {
		if err := upsertLanguage(ctx, tx, l); err != nil {
			return err
		}
	}

	if err := n.upsertMovieRow(ctx, tx, m); err != nil {
		return err
	}

	if err := replaceJunction(ctx, tx, "movie_genres", "movie_id", "genre_id",
		m.ID, genreIDs(m.Genres)); err != nil {
		return err
	}
	if err := replaceJunction(ctx, tx, "movie_production_companies", "movie_id", "company_id",
		m.ID, companyIDs(m.ProductionCompanies)); err != nil {
		return err
	}

	if err := n.writeMovieCredits(ctx, tx, m); err != nil {
		return err
	}
	if err := n.writeMovieExternalIDs(ctx, tx, m.ID, m.ExternalIDs); err != nil {
		return err
	}
	if err := n.writeMovieKeywords(ctx, tx, m.ID, m.Keywords.All()); err != nil {
		return err
	}
	if err := n.writeMovieWatchProviders(ctx, tx, m.ID, m.WatchProviders); err != nil {
		return err
	}
	if err := n.writeMovieTranslations(ctx, tx, m.ID, m.Translations.Translations); err != nil {
		return err
	}
	if err := n.writeSimilarMovies(ctx, tx, m.ID, m.Similar.Results); err != nil {
		return err
	}
	return nil
}

func (n *Normalizer) upsertMovieRow(ctx context.Context, tx pgx.Tx, m *tmdb.Movie) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO movies (
			id, imdb_id, title, original_title, original_language, overview,
			tagline, status, adult, video, homepage, budget, revenue, runtime,
			release_date, popularity, vote_average, vote_count, poster_path,
			backdrop_path, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21)
		 ON CONFLICT (id) DO UPDATE SET
			imdb_id = EXCLUDED.imdb_id,
			title = EXCLUDED.title,
			original_title = EXCLUDED.original_title,
			original_language = EXCLUDED.original_language,
			overview = EXCLUDED.overview,
			tagline = EXCLUDED.tagline,
			status = EXCLUDED.status,
			adult = EXCLUDED.adult,
			video = EXCLUDED.video,
			homepage = EXCLUDED.homepage,
			budget = EXCLUDED.budget,
			revenue = EXCLUDED.revenue,
			runtime = EXCLUDED.runtime,
			release_date = EXCLUDED.release_date,
			popularity = EXCLUDED.popularity,
			vote_average = EXCLUDED.vote_average,
			vote_count = EXCLUDED.vote_count,
			poster_path = EXCLUDED.poster_path,
			backdrop_path = EXCLUDED.backdrop_path,
			updated_at = EXCLUDED.updated_at`,
		m.ID, m.IMDbID, m.Title, m.OriginalTitle, m.OriginalLanguage,
		m.Overview, m.Tagline, m.Status, m.Adult, m.Video, m.Homepage,
		m.Budget, m.Revenue, m.Runtime, tmdb.ParseDate(m.ReleaseDate),
		m.Popularity, m.VoteAverage, m.VoteCount, m.PosterPath,
		m.BackdropPath, n.now())
	if err != nil {
		return fmt.Errorf("upsert movie %d: %w", m.ID, err)
	}
	return nil
}

func (n *Normalizer) writeMovieCredits(ctx context.Context, tx pgx.Tx, m *tmdb.Movie) error {
	if err := clearChildren(ctx, tx, "movie_cast", "movie_id", m.ID); err != nil {
		return err
	}
	if err := clearChildren(ctx, tx, "movie_crew", "movie_id", m.ID); err != nil {
		return err
	}
	for _, c := range capCast(m.Credits.Cast) {
		if err := upsertPerson(ctx, tx, c.PersonRef); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO movie_cast (movie_id, person_id, character, credit_id, cast_order)
			 VALUES ($1, $2, $3, $4, $5)`,
			m.ID, c.ID, c.Character, c.CreditID, c.Order)
		if err != nil {
			return fmt.Errorf("insert movie cast row: %w", err)
		}
	}
	for _, c := range capCrew(m.Credits.Crew) {
		if err := upsertPerson(ctx, tx, c.PersonRef); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO movie_crew (movie_id, person_id, department, job, credit_id)
			 VALUES ($1, $2, $3, $4, $5)`,
			m.ID, c.ID, c.Department, c.Job, c.CreditID)
		if err != nil {
			return fmt.Errorf("insert movie crew row: %w", err)
		}
	}
	return nil
}

func (n *Normalizer) writeMovieExternalIDs(ctx context.Context, tx pgx.Tx, movieID int64, ext tmdb.ExternalIDs) error {
	if ext.Empty() {
		return nil
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO movie_external_ids (movie_id, imdb_id, wikidata_id,
			facebook_id, instagram_id, twitter_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (movie_id) DO UPDATE SET
			imdb_id = EXCLUDED.imdb_id,
			wikidata_id = EXCLUDED.wikidata_id,
			facebook_id = EXCLUDED.facebook_id,
			instagram_id = EXCLUDED.instagram_id,
			twitter_id = EXCLUDED.twitter_id`,
		movieID, ext.IMDbID, ext.WikidataID, ext.FacebookID,
		ext.InstagramID, ext.TwitterID)
	if err != nil {
		return fmt.Errorf("upsert movie external ids: %w", err)
	}
	return nil
}

// writeMovieKeywords clears the junction and re-adds with duplicate-insert
// tolerance, so a keyword repeated within one payload cannot abort the
// transaction.
func (n *Normalizer) writeMovieKeywords(ctx context.Context, tx pgx.Tx, movieID int64, kws []tmdb.Keyword) error {
	if err := clearChildren(ctx, tx, "movie_keywords", "movie_id", movieID); err != nil {
		return err
	}
	for _, k := range kws {
		if err := upsertKeyword(ctx, tx, k); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO movie_keywords (movie_id, keyword_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			movieID, k.ID)
		if err != nil {
			return fmt.Errorf("insert movie keyword link: %w", err)
		}
	}
	return nil
}

func (n *Normalizer) writeMovieWatchProviders(ctx context.Context, tx pgx.Tx, movieID int64, wp tmdb.WatchProviders) error {
	if err := clearChildren(ctx, tx, "movie_watch_providers", "movie_id", movieID); err != nil {
		return err
	}
	for country, offers := range wp.Results {
		for _, group := range offers.ByType() {
			for _, p := range group.Providers {
				if err := upsertProvider(ctx, tx, p); err != nil {
					return err
				}
				_, err := tx.Exec(ctx,
					`INSERT INTO movie_watch_providers (movie_id, provider_id, country_code, type)
					 VALUES ($1, $2, $3, $4)`,
					movieID, p.ProviderID, country, group.Type)
				if err != nil {
					return fmt.Errorf("insert movie watch provider row: %w", err)
				}
			}
		}
	}
	return nil
}

func (n *Normalizer) writeMovieTranslations(ctx context.Context, tx pgx.Tx, movieID int64, ts []tmdb.Translation) error {
	if err := clearChildren(ctx, tx, "movie_translations", "movie_id", movieID); err != nil {
		return err
	}
	for _, tr := range ts {
		_, err := tx.Exec(ctx,
			`INSERT INTO movie_translations (movie_id, iso_639_1, iso_3166_1,
				name, title, overview, homepage, tagline)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			movieID, tr.ISO6391, tr.ISO31661, tr.Data.Name, tr.Data.Title,
			tr.Data.Overview, tr.Data.Homepage, tr.Data.Tagline)
		if err != nil {
			return fmt.Errorf("insert movie translation row: %w", err)
		}
	}
	return nil
}

func (n *Normalizer) writeSimilarMovies(ctx context.Context, tx pgx.Tx, movieID int64, similar []tmdb.SimilarEntry) error {
	if err := clearChildren(ctx, tx, "similar_movies", "movie_id", movieID); err != nil {
		return err
	}
	if len(similar) > maxSimilar {
		similar = similar[:maxSimilar]
	}
	for _, s := range similar {
		_, err := tx.Exec(ctx,
			`INSERT INTO similar_movies (movie_id, similar_movie_id) VALUES ($1, $2)`,
			movieID, s.ID)
		if err != nil {
			return fmt.Errorf("insert similar movie row: %w", err)
		}
	}
	return nil
}

// clearChildren deletes all owned child rows of one kind before wholesale
// re-insertion.
func clearChildren(ctx context.Context, tx pgx.Tx, table, fkColumn string, id int64) error {
	_, err := tx.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table, fkColumn), id)
	if err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	return nil
}

// replaceJunction clears and re-adds a membership junction in payload order.
func replaceJunction(ctx context.Context, tx pgx.Tx, table, fkColumn, refColumn string, id int64, refIDs []int64) error {
	if err := clearChildren(ctx, tx, table, fkColumn, id); err != nil {
		return err
	}
	for _, refID := range refIDs {
		_, err := tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES ($1, $2)`, table, fkColumn, refColumn),
			id, refID)
		if err != nil {
			return fmt.Errorf("insert %s link: %w", table, err)
		}
	}
	return nil
}

func capCast(cast []tmdb.CastMember) []tmdb.CastMember {
	if len(cast) > maxCast {
		return cast[:maxCast]
	}
	return cast
}

func capCrew(crew []tmdb.CrewMember) []tmdb.CrewMember {
	if len(crew) > maxCrew {
		return crew[:maxCrew]
	}
	return crew
}

func genreIDs(gs []tmdb.Genre) []int64 {
	ids := make([]int64, 0, len(gs))
	for _, g := range gs {
		ids = append(ids, g.ID)
	}
	return ids
}

func companyIDs(cs []tmdb.Company) []int64 {
	ids := make([]int64, 0, len(cs))
	for _, c := range cs {
		ids = append(ids, c.ID)
	}
	return ids
}

func networkIDs(ns []tmdb.Network) []int64 {
	ids := make([]int64, 0, len(ns))
	for _, n := range ns {
		ids = append(ids, n.ID)
	}
	return ids
}
