package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/screenarc/tmdb-harvester/internal/tmdb"
)

// NormalizeTVSeries persists one series payload and its child collections.
func (n *Normalizer) NormalizeTVSeries(ctx context.Context, s *tmdb.TVSeries) error {
	if s.ID <= 0 {
		return fmt.Errorf("tv series payload missing id")
	}
	if s.Name == "" {
		return fmt.Errorf("tv series %d payload missing name", s.ID)
	}

	tx, err := n.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tv series transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := n.writeTVSeries(ctx, tx, s); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tv series %d: %w", s.ID, err)
	}
	return nil
}

func (n *Normalizer) writeTVSeries(ctx context.Context, tx pgx.Tx, s *tmdb.TVSeries) error {
	for _, g := range s.Genres {
		if err := upsertGenre(ctx, tx, g); err != nil {
			return err
		}
	}
	for _, c := range s.ProductionCompanies {
		if err := upsertCompany(ctx, tx, c); err != nil {
			return err
		}
	}
	for _, c := range s.ProductionCountries {
		if err := upsertCountry(ctx, tx, c); err != nil {
			return err
		}
	}
	for _, l := range s.SpokenLanguages {
		if err := upsertLanguage(ctx, tx, l); err != nil {
			return err
		}
	}
	for _, nw := range s.Networks {
		if err := upsertNetwork(ctx, tx, nw); err != nil {
			return err
		}
	}

	if err := n.upsertTVSeriesRow(ctx, tx, s); err != nil {
		return err
	}

	if err := replaceJunction(ctx, tx, "tv_series_genres", "tv_series_id", "genre_id",
		s.ID, genreIDs(s.Genres)); err != nil {
		return err
	}
	if err := replaceJunction(ctx, tx, "tv_series_production_companies", "tv_series_id", "company_id",
		s.ID, companyIDs(s.ProductionCompanies)); err != nil {
		return err
	}
	if err := replaceJunction(ctx, tx, "tv_series_networks", "tv_series_id", "network_id",
		s.ID, networkIDs(s.Networks)); err != nil {
		return err
	}

	if err := n.writeTVCreators(ctx, tx, s); err != nil {
		return err
	}
	if err := n.writeTVSeasons(ctx, tx, s); err != nil {
		return err
	}
	if err := n.writeTVCredits(ctx, tx, s); err != nil {
		return err
	}
	if err := n.writeTVEpisodeInfo(ctx, tx, s); err != nil {
		return err
	}
	if err := n.writeTVExternalIDs(ctx, tx, s.ID, s.ExternalIDs); err != nil {
		return err
	}
	if err := n.writeTVKeywords(ctx, tx, s.ID, s.Keywords.All()); err != nil {
		return err
	}
	if err := n.writeTVWatchProviders(ctx, tx, s.ID, s.WatchProviders); err != nil {
		return err
	}
	if err := n.writeTVTranslations(ctx, tx, s.ID, s.Translations.Translations); err != nil {
		return err
	}
	if err := n.writeSimilarTVSeries(ctx, tx, s.ID, s.Similar.Results); err != nil {
		return err
	}
	return nil
}

func (n *Normalizer) upsertTVSeriesRow(ctx context.Context, tx pgx.Tx, s *tmdb.TVSeries) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO tv_series (
			id, name, original_name, original_language, overview, tagline,
			status, type, adult, homepage, in_production, first_air_date,
			last_air_date, number_of_episodes, number_of_seasons, popularity,
			vote_average, vote_count, poster_path, backdrop_path, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			original_name = EXCLUDED.original_name,
			original_language = EXCLUDED.original_language,
			overview = EXCLUDED.overview,
			tagline = EXCLUDED.tagline,
			status = EXCLUDED.status,
			type = EXCLUDED.type,
			adult = EXCLUDED.adult,
			homepage = EXCLUDED.homepage,
			in_production = EXCLUDED.in_production,
			first_air_date = EXCLUDED.first_air_date,
			last_air_date = EXCLUDED.last_air_date,
			number_of_episodes = EXCLUDED.number_of_episodes,
			number_of_seasons = EXCLUDED.number_of_seasons,
			popularity = EXCLUDED.popularity,
			vote_average = EXCLUDED.vote_average,
			vote_count = EXCLUDED.vote_count,
			poster_path = EXCLUDED.poster_path,
			backdrop_path = EXCLUDED.backdrop_path,
			updated_at = EXCLUDED.updated_at`,
		s.ID, s.Name, s.OriginalName, s.OriginalLanguage, s.Overview,
		s.Tagline, s.Status, s.Type, s.Adult, s.Homepage, s.InProduction,
		tmdb.ParseDate(s.FirstAirDate), tmdb.ParseDate(s.LastAirDate),
		s.NumberOfEpisodes, s.NumberOfSeasons, s.Popularity, s.VoteAverage,
		s.VoteCount, s.PosterPath, s.BackdropPath, n.now())
	if err != nil {
		return fmt.Errorf("upsert tv series %d: %w", s.ID, err)
	}
	return nil
}

func (n *Normalizer) writeTVCreators(ctx context.Context, tx pgx.Tx, s *tmdb.TVSeries) error {
	if err := clearChildren(ctx, tx, "tv_series_creators", "tv_series_id", s.ID); err != nil {
		return err
	}
	for _, c := range s.CreatedBy {
		if err := upsertPerson(ctx, tx, c.PersonRef); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO tv_series_creators (tv_series_id, person_id, credit_id)
			 VALUES ($1, $2, $3)`,
			s.ID, c.ID, c.CreditID)
		if err != nil {
			return fmt.Errorf("insert tv creator row: %w", err)
		}
	}
	return nil
}

func (n *Normalizer) writeTVSeasons(ctx context.Context, tx pgx.Tx, s *tmdb.TVSeries) error {
	if err := clearChildren(ctx, tx, "tv_seasons", "tv_series_id", s.ID); err != nil {
		return err
	}
	for _, season := range s.Seasons {
		_, err := tx.Exec(ctx,
			`INSERT INTO tv_seasons (id, tv_series_id, season_number, name,
				overview, air_date, episode_count, poster_path, vote_average)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			season.ID, s.ID, season.SeasonNumber, season.Name, season.Overview,
			tmdb.ParseDate(season.AirDate), season.EpisodeCount,
			season.PosterPath, season.VoteAverage)
		if err != nil {
			return fmt.Errorf("insert tv season row: %w", err)
		}
	}
	return nil
}

func (n *Normalizer) writeTVCredits(ctx context.Context, tx pgx.Tx, s *tmdb.TVSeries) error {
	if err := clearChildren(ctx, tx, "tv_series_cast", "tv_series_id", s.ID); err != nil {
		return err
	}
	if err := clearChildren(ctx, tx, "tv_series_crew", "tv_series_id", s.ID); err != nil {
		return err
	}
	for _, c := range capCast(s.Credits.Cast) {
		if err := upsertPerson(ctx, tx, c.PersonRef); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO tv_series_cast (tv_series_id, person_id, character, credit_id, cast_order)
			 VALUES ($1, $2, $3, $4, $5)`,
			s.ID, c.ID, c.Character, c.CreditID, c.Order)
		if err != nil {
			return fmt.Errorf("insert tv cast row: %w", err)
		}
	}
	for _, c := range capCrew(s.Credits.Crew) {
		if err := upsertPerson(ctx, tx, c.PersonRef); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO tv_series_crew (tv_series_id, person_id, department, job, credit_id)
			 VALUES ($1, $2, $3, $4, $5)`,
			s.ID, c.ID, c.Department, c.Job, c.CreditID)
		if err != nil {
			return fmt.Errorf("insert tv crew row: %w", err)
		}
	}
	return nil
}

func (n *Normalizer) writeTVEpisodeInfo(ctx context.Context, tx pgx.Tx, s *tmdb.TVSeries) error {
	if err := clearChildren(ctx, tx, "tv_episode_info", "tv_series_id", s.ID); err != nil {
		return err
	}
	episodes := []struct {
		kind string
		ep   *tmdb.Episode
	}{
		{"last_episode_to_air", s.LastEpisodeToAir},
		{"next_episode_to_air", s.NextEpisodeToAir},
	}
	for _, e := range episodes {
		if e.ep == nil {
			continue
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO tv_episode_info (id, tv_series_id, episode_type,
				season_number, episode_number, name, overview, air_date,
				runtime, vote_average, vote_count, production_code, still_path)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			e.ep.ID, s.ID, e.kind, e.ep.SeasonNumber, e.ep.EpisodeNumber,
			e.ep.Name, e.ep.Overview, tmdb.ParseDate(e.ep.AirDate),
			e.ep.Runtime, e.ep.VoteAverage, e.ep.VoteCount,
			e.ep.ProductionCode, e.ep.StillPath)
		if err != nil {
			return fmt.Errorf("insert tv episode info row: %w", err)
		}
	}
	return nil
}

func (n *Normalizer) writeTVExternalIDs(ctx context.Context, tx pgx.Tx, seriesID int64, ext tmdb.ExternalIDs) error {
	if ext.Empty() {
		return nil
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO tv_series_external_ids (tv_series_id, imdb_id, tvdb_id,
			tvrage_id, wikidata_id, facebook_id, instagram_id, twitter_id,
			freebase_mid, freebase_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (tv_series_id) DO UPDATE SET
			imdb_id = EXCLUDED.imdb_id,
			tvdb_id = EXCLUDED.tvdb_id,
			tvrage_id = EXCLUDED.tvrage_id,
			wikidata_id = EXCLUDED.wikidata_id,
			facebook_id = EXCLUDED.facebook_id,
			instagram_id = EXCLUDED.instagram_id,
			twitter_id = EXCLUDED.twitter_id,
			freebase_mid = EXCLUDED.freebase_mid,
			freebase_id = EXCLUDED.freebase_id`,
		seriesID, ext.IMDbID, ext.TVDBID, ext.TVRageID, ext.WikidataID,
		ext.FacebookID, ext.InstagramID, ext.TwitterID, ext.FreebaseMID,
		ext.FreebaseID)
	if err != nil {
		return fmt.Errorf("upsert tv external ids: %w", err)
	}
	return nil
}

func (n *Normalizer) writeTVKeywords(ctx context.Context, tx pgx.Tx, seriesID int64, kws []tmdb.Keyword) error {
	if err := clearChildren(ctx, tx, "tv_series_keywords", "tv_series_id", seriesID); err != nil {
		return err
	}
	for _, k := range kws {
		if err := upsertKeyword(ctx, tx, k); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO tv_series_keywords (tv_series_id, keyword_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			seriesID, k.ID)
		if err != nil {
			return fmt.Errorf("insert tv keyword link: %w", err)
		}
	}
	return nil
}

func (n *Normalizer) writeTVWatchProviders(ctx context.Context, tx pgx.Tx, seriesID int64, wp tmdb.WatchProviders) error {
	if err := clearChildren(ctx, tx, "tv_series_watch_providers", "tv_series_id", seriesID); err != nil {
		return err
	}
	for country, offers := range wp.Results {
		for _, group := range offers.ByType() {
			for _, p := range group.Providers {
				if err := upsertProvider(ctx, tx, p); err != nil {
					return err
				}
				_, err := tx.Exec(ctx,
					`INSERT INTO tv_series_watch_providers (tv_series_id, provider_id, country_code, type)
					 VALUES ($1, $2, $3, $4)`,
					seriesID, p.ProviderID, country, group.Type)
				if err != nil {
					return fmt.Errorf("insert tv watch provider row: %w", err)
				}
			}
		}
	}
	return nil
}

func (n *Normalizer) writeTVTranslations(ctx context.Context, tx pgx.Tx, seriesID int64, ts []tmdb.Translation) error {
	if err := clearChildren(ctx, tx, "tv_series_translations", "tv_series_id", seriesID); err != nil {
		return err
	}
	for _, tr := range ts {
		_, err := tx.Exec(ctx,
			`INSERT INTO tv_series_translations (tv_series_id, iso_639_1,
				iso_3166_1, name, overview, homepage, tagline)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			seriesID, tr.ISO6391, tr.ISO31661, tr.Data.Name,
			tr.Data.Overview, tr.Data.Homepage, tr.Data.Tagline)
		if err != nil {
			return fmt.Errorf("insert tv translation row: %w", err)
		}
	}
	return nil
}

func (n *Normalizer) writeSimilarTVSeries(ctx context.Context, tx pgx.Tx, seriesID int64, similar []tmdb.SimilarEntry) error {
	if err := clearChildren(ctx, tx, "similar_tv_series", "tv_series_id", seriesID); err != nil {
		return err
	}
	if len(similar) > maxSimilar {
		similar = similar[:maxSimilar]
	}
	for _, s := range similar {
		_, err := tx.Exec(ctx,
			`INSERT INTO similar_tv_series (tv_series_id, similar_tv_series_id) VALUES ($1, $2)`,
			seriesID, s.ID)
		if err != nil {
			return fmt.Errorf("insert similar tv series row: %w", err)
		}
	}
	return nil
}
