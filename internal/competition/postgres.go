package competition

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fxarena/internal/model"
	"fxarena/internal/types"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateCompetition(ctx context.Context, c model.Competition) error {
	_, err := s.pool.Exec(ctx, `
		insert into competitions (id, name, entry_fee_tokens, starting_cash_cents, rake_bps,
			starts_at, ends_at, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, c.ID, c.Name, c.EntryFeeTokens, c.StartingCashCents, c.RakeBps, c.StartsAt, c.EndsAt, c.CreatedAt)
	return err
}

func (s *PostgresStore) GetCompetition(ctx context.Context, id string) (model.Competition, error) {
	var c model.Competition
	err := s.pool.QueryRow(ctx, `
		select id, name, entry_fee_tokens, starting_cash_cents, rake_bps, starts_at, ends_at, created_at
		from competitions where id = $1
	`, id).Scan(&c.ID, &c.Name, &c.EntryFeeTokens, &c.StartingCashCents, &c.RakeBps,
		&c.StartsAt, &c.EndsAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Competition{}, ErrCompetitionNotFound
	}
	return c, err
}

func (s *PostgresStore) CreateEntry(ctx context.Context, e model.Entry) error {
	ct, err := s.pool.Exec(ctx, `
		insert into entries (id, competition_id, user_id, cash_cents, equity_cents,
			high_water_mark_cents, drawdown_pct, disqualified, paid, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		on conflict (competition_id, user_id) do nothing
	`, e.ID, e.CompetitionID, e.UserID, e.CashCents, e.EquityCents, e.HighWaterMarkCents,
		e.DrawdownPct, e.Disqualified, e.Paid, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrEntryExists
	}
	return nil
}

const entryCols = `id, competition_id, user_id, cash_cents, equity_cents,
	high_water_mark_cents, drawdown_pct, disqualified, paid, created_at, updated_at`

func scanEntry(row pgx.Row) (model.Entry, error) {
	var e model.Entry
	err := row.Scan(&e.ID, &e.CompetitionID, &e.UserID, &e.CashCents, &e.EquityCents,
		&e.HighWaterMarkCents, &e.DrawdownPct, &e.Disqualified, &e.Paid, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (s *PostgresStore) GetEntry(ctx context.Context, competitionID, userID string) (model.Entry, error) {
	e, err := scanEntry(s.pool.QueryRow(ctx, `
		select `+entryCols+` from entries where competition_id = $1 and user_id = $2
	`, competitionID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Entry{}, ErrEntryNotFound
	}
	return e, err
}

func (s *PostgresStore) ListEntries(ctx context.Context, competitionID string) ([]model.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		select `+entryCols+` from entries where competition_id = $1 order by equity_cents desc
	`, competitionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateEntry(ctx context.Context, e model.Entry) error {
	ct, err := s.pool.Exec(ctx, `
		update entries
		set cash_cents = $2, equity_cents = $3, high_water_mark_cents = $4, drawdown_pct = $5,
			disqualified = $6, paid = $7, updated_at = $8
		where id = $1
	`, e.ID, e.CashCents, e.EquityCents, e.HighWaterMarkCents, e.DrawdownPct,
		e.Disqualified, e.Paid, e.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (s *PostgresStore) CreateChallenge(ctx context.Context, c model.Challenge) error {
	_, err := s.pool.Exec(ctx, `
		insert into challenges (id, challenger_id, invitee_id, stake_tokens, rake_bps,
			duration_hours, status, terms_version, challenger_accepted_version,
			invitee_accepted_version, challenger_funded, invitee_funded, competition_id,
			winner_user_id, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, c.ID, c.ChallengerID, c.InviteeID, c.StakeTokens, c.RakeBps, c.DurationHours,
		string(c.Status), c.TermsVersion, c.ChallengerAccepted, c.InviteeAccepted,
		c.ChallengerFunded, c.InviteeFunded, nullEmpty(c.CompetitionID),
		nullEmpty(c.WinnerUserID), c.CreatedAt, c.UpdatedAt)
	return err
}

const challengeCols = `id, challenger_id, invitee_id, stake_tokens, rake_bps, duration_hours,
	status, terms_version, challenger_accepted_version, invitee_accepted_version,
	challenger_funded, invitee_funded, competition_id, winner_user_id, created_at, updated_at`

func scanChallenge(row pgx.Row) (model.Challenge, error) {
	var c model.Challenge
	var status string
	var competitionID, winnerID *string
	err := row.Scan(&c.ID, &c.ChallengerID, &c.InviteeID, &c.StakeTokens, &c.RakeBps,
		&c.DurationHours, &status, &c.TermsVersion, &c.ChallengerAccepted, &c.InviteeAccepted,
		&c.ChallengerFunded, &c.InviteeFunded, &competitionID, &winnerID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}
	c.Status = types.ChallengeStatus(status)
	if competitionID != nil {
		c.CompetitionID = *competitionID
	}
	if winnerID != nil {
		c.WinnerUserID = *winnerID
	}
	return c, nil
}

func (s *PostgresStore) GetChallenge(ctx context.Context, id string) (model.Challenge, error) {
	c, err := scanChallenge(s.pool.QueryRow(ctx, `
		select `+challengeCols+` from challenges where id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Challenge{}, ErrChallengeNotFound
	}
	return c, err
}

func (s *PostgresStore) UpdateChallenge(ctx context.Context, id string, fn func(c *model.Challenge) error) (model.Challenge, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return model.Challenge{}, err
	}
	defer tx.Rollback(ctx)

	c, err := scanChallenge(tx.QueryRow(ctx, `
		select `+challengeCols+` from challenges where id = $1 for update
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Challenge{}, ErrChallengeNotFound
	}
	if err != nil {
		return model.Challenge{}, err
	}
	if err := fn(&c); err != nil {
		return model.Challenge{}, err
	}
	c.UpdatedAt = time.Now().UTC()
	if _, err := tx.Exec(ctx, `
		update challenges
		set stake_tokens = $2, rake_bps = $3, duration_hours = $4, status = $5,
			terms_version = $6, challenger_accepted_version = $7, invitee_accepted_version = $8,
			challenger_funded = $9, invitee_funded = $10, competition_id = $11,
			winner_user_id = $12, updated_at = $13
		where id = $1
	`, c.ID, c.StakeTokens, c.RakeBps, c.DurationHours, string(c.Status), c.TermsVersion,
		c.ChallengerAccepted, c.InviteeAccepted, c.ChallengerFunded, c.InviteeFunded,
		nullEmpty(c.CompetitionID), nullEmpty(c.WinnerUserID), c.UpdatedAt); err != nil {
		return model.Challenge{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Challenge{}, err
	}
	return c, nil
}

func nullEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
