package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/pascal/internal/domain"
)

// uniqueViolation is the SQLSTATE Postgres reports for a duplicate key.
const uniqueViolation = "23505"

// MarketStore implements domain.MarketStore on the markets table. Each row
// keeps the flattened record as a JSONB document next to the columns used
// for filtering and ordering.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Insert writes a new market record and returns its row id.
func (s *MarketStore) Insert(ctx context.Context, rec domain.MarketRecord) (int64, error) {
	rec.ID = 0
	doc, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("postgres: marshal market %s: %w", rec.PublicKey, err)
	}

	const query = `
		INSERT INTO markets (public_key, status, category, document)
		VALUES ($1, $2, $3, $4::jsonb)
		RETURNING id`

	var id int64
	err = s.pool.QueryRow(ctx, query,
		rec.PublicKey, string(rec.Status), rec.Meta.Category, string(doc),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, fmt.Errorf("postgres: insert market %s: %w", rec.PublicKey, domain.ErrAlreadyExists)
		}
		return 0, fmt.Errorf("postgres: insert market %s: %w", rec.PublicKey, err)
	}
	return id, nil
}

// UpdatePricing overwrites the price summary, outcome summary and totals of
// the market identified by publicKey. Every other document field is kept.
func (s *MarketStore) UpdatePricing(ctx context.Context, publicKey string, p domain.MarketPricing) error {
	const query = `
		UPDATE markets SET
			document = document || jsonb_build_object(
				'prices',               $2::jsonb,
				'outcomes',             $3::jsonb,
				'liquidityTotal',       $4::float8,
				'matchedTotal',         $5::float8,
				'totalUnmatchedOrders', $6::float8
			),
			updated_at = NOW()
		WHERE public_key = $1`

	tag, err := s.pool.Exec(ctx, query,
		publicKey, jsonOrNull(p.Prices), jsonOrNull(p.Outcomes),
		p.LiquidityTotal, p.MatchedTotal, p.TotalUnmatchedOrders,
	)
	if err != nil {
		return fmt.Errorf("postgres: update pricing %s: %w", publicKey, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update pricing %s: %w", publicKey, domain.ErrNotFound)
	}
	return nil
}

// List returns every market matching filter in the requested order.
func (s *MarketStore) List(ctx context.Context, filter domain.MarketFilter, sort domain.MarketSort) ([]domain.MarketRecord, error) {
	query := `
		SELECT id, document, created_at, updated_at
		FROM markets
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR category = $2)`

	switch sort {
	case domain.SortByNewest:
		query += ` ORDER BY created_at DESC, id DESC`
	default:
		query += ` ORDER BY CASE status
				WHEN 'open'    THEN 0
				WHEN 'locked'  THEN 1
				WHEN 'settled' THEN 2
				ELSE 3
			END, created_at DESC, id DESC`
	}

	rows, err := s.pool.Query(ctx, query, string(filter.Status), filter.Category)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	markets := []domain.MarketRecord{}
	for rows.Next() {
		rec, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// GetByPublicKey returns the market with the given program account key.
func (s *MarketStore) GetByPublicKey(ctx context.Context, publicKey string) (domain.MarketRecord, error) {
	const query = `
		SELECT id, document, created_at, updated_at
		FROM markets
		WHERE public_key = $1`

	rec, err := scanMarket(s.pool.QueryRow(ctx, query, publicKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MarketRecord{}, fmt.Errorf("postgres: get market %s: %w", publicKey, domain.ErrNotFound)
	}
	if err != nil {
		return domain.MarketRecord{}, fmt.Errorf("postgres: get market %s: %w", publicKey, err)
	}
	return rec, nil
}

// scanMarket decodes one markets row. Column values win over any stale
// copies inside the document.
func scanMarket(row pgx.Row) (domain.MarketRecord, error) {
	var (
		id                   int64
		doc                  []byte
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&id, &doc, &createdAt, &updatedAt); err != nil {
		return domain.MarketRecord{}, err
	}

	var rec domain.MarketRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return domain.MarketRecord{}, fmt.Errorf("decode market %d: %w", id, err)
	}
	rec.ID = id
	rec.CreatedAt = createdAt
	rec.UpdatedAt = updatedAt
	return rec, nil
}

// jsonOrNull passes raw JSON through as text, mapping an empty value to SQL
// JSON null.
func jsonOrNull(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	return string(raw)
}
