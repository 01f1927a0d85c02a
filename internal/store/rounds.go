package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"round-settlement/internal/game"

	"github.com/jackc/pgx/v5"
)

const roundColumns = `id, room_id, min_stake, max_stake, max_players, deadline, status, total_pot,
	server_seed, commit_hash, winner, refunds, transparency, cancel_reason, version,
	created_at, locked_at, completed_at, cancelled_at`

func (s *Store) Create(ctx context.Context, r *game.Round) error {
	winner, refunds, transparency, err := encodeRoundJSON(r)
	if err != nil {
		return err
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO rounds (`+roundColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,1,$15,$16,$17,$18)`,
		r.ID, r.RoomID, r.MinStake, r.MaxStake, r.MaxPlayers, r.Deadline, string(r.Status), r.TotalPot,
		r.ServerSeed, r.CommitHash, winner, refunds, transparency, r.CancelReason,
		r.CreatedAt, r.LockedAt, r.CompletedAt, r.CancelledAt)
	if err != nil {
		if isUniqueViolation(err, "rounds_pkey") {
			return game.ErrVersionConflict
		}
		return err
	}
	if err := insertPlayers(ctx, tx, r.ID, r.Players, 0); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	r.Version = 1
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*game.Round, error) {
	rounds, err := s.queryRounds(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(rounds) == 0 {
		return nil, ErrNotFound
	}
	return rounds[0], nil
}

// Update writes r under an optimistic version check. Players are append-only:
// rows past the stored count are inserted and their transfer proofs claimed.
func (s *Store) Update(ctx context.Context, r *game.Round) error {
	winner, refunds, transparency, err := encodeRoundJSON(r)
	if err != nil {
		return err
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var version int64
	if err := tx.QueryRow(ctx, `SELECT version FROM rounds WHERE id = $1 FOR UPDATE`, r.ID).Scan(&version); err != nil {
		return mapNotFound(err)
	}
	if version != r.Version {
		return game.ErrVersionConflict
	}
	var stored int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM round_players WHERE round_id = $1`, r.ID).Scan(&stored); err != nil {
		return err
	}
	if err := insertPlayers(ctx, tx, r.ID, r.Players, stored); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `UPDATE rounds SET
		status = $2, total_pot = $3, winner = $4, refunds = $5, transparency = $6,
		cancel_reason = $7, locked_at = $8, completed_at = $9, cancelled_at = $10,
		version = version + 1
		WHERE id = $1`,
		r.ID, string(r.Status), r.TotalPot, winner, refunds, transparency,
		r.CancelReason, r.LockedAt, r.CompletedAt, r.CancelledAt)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	r.Version++
	return nil
}

func insertPlayers(ctx context.Context, tx pgx.Tx, roundID string, players []game.Player, from int) error {
	for i := from; i < len(players); i++ {
		p := players[i]
		if _, err := tx.Exec(ctx, `INSERT INTO round_players (round_id, seq, account_id, stake_amount, transfer_proof, joined_at)
			VALUES ($1,$2,$3,$4,$5,$6)`, roundID, i, p.AccountID, p.StakeAmount, p.TransferProof, p.JoinedAt); err != nil {
			if isUniqueViolation(err, "round_players_pkey") {
				return game.ErrDuplicatePlayer
			}
			return err
		}
		if p.TransferProof == "" {
			continue
		}
		if _, err := tx.Exec(ctx, `INSERT INTO consumed_proofs (transfer_proof, round_id, account_id) VALUES ($1,$2,$3)`,
			p.TransferProof, roundID, p.AccountID); err != nil {
			if isUniqueViolation(err, "consumed_proofs_pkey") {
				return game.ErrProofReused
			}
			return err
		}
	}
	return nil
}

func (s *Store) ProofConsumed(ctx context.Context, proof string) (bool, error) {
	var exists bool
	err := s.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM consumed_proofs WHERE transfer_proof = $1)`, proof).Scan(&exists)
	return exists, err
}

func (s *Store) List(ctx context.Context, f RoundFilter) ([]*game.Round, error) {
	where := make([]string, 0, 4)
	args := make([]any, 0, 6)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.RoomID != "" {
		add("room_id = $%d", f.RoomID)
	}
	if f.DeadlineBefore != nil {
		add("deadline < $%d", *f.DeadlineBefore)
	}
	if f.LockedBefore != nil {
		add("locked_at < $%d", *f.LockedBefore)
	}
	q := `SELECT ` + roundColumns + ` FROM rounds`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, f.limit(), offset)
	q += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	return s.queryRounds(ctx, q, args...)
}

func (s *Store) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*game.Round, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.queryRounds(ctx, `SELECT `+roundColumns+` FROM rounds
		WHERE id IN (SELECT round_id FROM round_players WHERE account_id = $1)
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, accountID, limit, offset)
}

func (s *Store) PurgeFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM rounds
		WHERE (status = 'completed' AND completed_at < $1)
		   OR (status = 'cancelled' AND cancelled_at < $1)`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) queryRounds(ctx context.Context, q string, args ...any) ([]*game.Round, error) {
	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	out := make([]*game.Round, 0)
	byID := map[string]*game.Round{}
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, r)
		byID[r.ID] = r
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(out))
	for _, r := range out {
		ids = append(ids, r.ID)
	}
	prows, err := s.Pool.Query(ctx, `SELECT round_id, account_id, stake_amount, transfer_proof, joined_at
		FROM round_players WHERE round_id = ANY($1) ORDER BY round_id, seq`, ids)
	if err != nil {
		return nil, err
	}
	defer prows.Close()
	for prows.Next() {
		var roundID string
		var p game.Player
		if err := prows.Scan(&roundID, &p.AccountID, &p.StakeAmount, &p.TransferProof, &p.JoinedAt); err != nil {
			return nil, err
		}
		if r := byID[roundID]; r != nil {
			r.Players = append(r.Players, p)
		}
	}
	return out, prows.Err()
}

func scanRound(row pgx.Row) (*game.Round, error) {
	var (
		r                             game.Round
		status                        string
		winner, refunds, transparency []byte
	)
	err := row.Scan(&r.ID, &r.RoomID, &r.MinStake, &r.MaxStake, &r.MaxPlayers, &r.Deadline, &status, &r.TotalPot,
		&r.ServerSeed, &r.CommitHash, &winner, &refunds, &transparency, &r.CancelReason, &r.Version,
		&r.CreatedAt, &r.LockedAt, &r.CompletedAt, &r.CancelledAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	r.Status = game.Status(status)
	r.Players = []game.Player{}
	if len(winner) > 0 {
		var w game.Winner
		if err := json.Unmarshal(winner, &w); err != nil {
			return nil, fmt.Errorf("decode winner for %s: %w", r.ID, err)
		}
		r.Winner = &w
	}
	if len(refunds) > 0 {
		if err := json.Unmarshal(refunds, &r.Refunds); err != nil {
			return nil, fmt.Errorf("decode refunds for %s: %w", r.ID, err)
		}
	}
	if len(transparency) > 0 {
		if err := json.Unmarshal(transparency, &r.Transparency); err != nil {
			return nil, fmt.Errorf("decode transparency for %s: %w", r.ID, err)
		}
	}
	return &r, nil
}

func encodeRoundJSON(r *game.Round) (winner, refunds, transparency []byte, err error) {
	if r.Winner != nil {
		if winner, err = json.Marshal(r.Winner); err != nil {
			return nil, nil, nil, err
		}
	}
	if len(r.Refunds) > 0 {
		if refunds, err = json.Marshal(r.Refunds); err != nil {
			return nil, nil, nil, err
		}
	}
	if len(r.Transparency) > 0 {
		if transparency, err = json.Marshal(r.Transparency); err != nil {
			return nil, nil, nil, err
		}
	}
	return winner, refunds, transparency, nil
}
