package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertObservationSQL = `INSERT INTO price_history (
        symbol,
        price,
        phase,
        observed_at
    ) VALUES (
        $1,$2,$3,$4
    );`

	recentObservationsSQL = `SELECT
        id,
        symbol,
        price::text,
        phase,
        observed_at
    FROM price_history
    WHERE symbol = $1
      AND observed_at >= $2
    ORDER BY observed_at DESC
    LIMIT $3;`

	phasePricesSQL = `SELECT
        phase,
        price::text
    FROM price_history
    WHERE symbol = $1
      AND phase IS NOT NULL
      AND observed_at >= $2
      AND observed_at < $3
    ORDER BY observed_at;`

	observationsBetweenSQL = `SELECT
        id,
        symbol,
        price::text,
        phase,
        observed_at
    FROM price_history
    WHERE symbol = $1
      AND observed_at >= $2
      AND observed_at < $3
    ORDER BY observed_at;`

	recentBySymbolSQL = `SELECT
        id,
        symbol,
        price::text,
        phase,
        observed_at
    FROM price_history
    ORDER BY observed_at DESC
    LIMIT $1;`

	pruneObservationsSQL = `DELETE FROM price_history WHERE observed_at < $1;`

	listTrackedSQL = `SELECT ticker_symbol, user_id FROM tracked_stocks ORDER BY ticker_symbol;`

	trackSymbolSQL = `INSERT INTO tracked_stocks (user_id, ticker_symbol)
    VALUES ($1, $2)
    ON CONFLICT (user_id, ticker_symbol) DO NOTHING;`

	untrackSymbolSQL = `DELETE FROM tracked_stocks WHERE user_id = $1 AND ticker_symbol = $2;`

	recipientsForSQL = `SELECT users.email, users.phone
    FROM users
    JOIN tracked_stocks ON users.id = tracked_stocks.user_id
    WHERE tracked_stocks.ticker_symbol = $1;`

	insertAlertSQL = `INSERT INTO alerts (
        event_id,
        symbol,
        message,
        change_pct,
        phase
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    RETURNING id, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        event_id::text,
        symbol,
        message,
        change_pct::text,
        phase,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	lastAlertAtSQL = `SELECT created_at FROM alerts
    WHERE symbol = $1
    ORDER BY created_at DESC
    LIMIT 1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ObservationStore defines operations on the per-symbol price history.
type ObservationStore interface {
	AppendObservation(ctx context.Context, obs PriceObservation) error
	RecentObservations(ctx context.Context, symbol string, since time.Time, limit int) ([]PriceObservation, error)
	PhasePrices(ctx context.Context, symbol string, dayStart, dayEnd time.Time) (map[string]decimal.Decimal, error)
	PruneObservations(ctx context.Context, olderThan time.Time) (int64, error)
	ObservationsBetween(ctx context.Context, symbol string, from, to time.Time) ([]PriceObservation, error)
	RecentAcrossSymbols(ctx context.Context, limit int) ([]PriceObservation, error)
}

// TrackingStore supplies the tracked-symbol set and recipient contacts.
type TrackingStore interface {
	ListTrackedSymbols(ctx context.Context) ([]TrackedSymbol, error)
	TrackSymbol(ctx context.Context, userID int64, symbol string) error
	UntrackSymbol(ctx context.Context, userID int64, symbol string) error
	RecipientsFor(ctx context.Context, symbol string) ([]Recipient, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	LastAlertAt(ctx context.Context, symbol string) (time.Time, bool, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to price history, tracking, and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Best effort: the lock is session scoped and dies with the connection.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// AppendObservation inserts a new price observation. Insert only, no update-in-place.
func (s *Store) AppendObservation(ctx context.Context, obs PriceObservation) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var phase interface{}
	if obs.Phase != nil {
		phase = *obs.Phase
	}

	observedAt := obs.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	if _, execErr := pool.Exec(ctx, insertObservationSQL,
		obs.Symbol,
		obs.Price.String(),
		phase,
		observedAt,
	); execErr != nil {
		return fmt.Errorf("append observation: %w", execErr)
	}
	return nil
}

// RecentObservations returns the latest observations for a symbol since the given
// time, newest first.
func (s *Store) RecentObservations(ctx context.Context, symbol string, since time.Time, limit int) ([]PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, recentObservationsSQL, symbol, since, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("recent observations: %w", queryErr)
	}
	defer rows.Close()

	return collectObservations(rows, limit)
}

// PhasePrices maps phase label to price for one symbol within a calendar day.
// When a phase was recorded more than once, the latest row wins.
func (s *Store) PhasePrices(ctx context.Context, symbol string, dayStart, dayEnd time.Time) (map[string]decimal.Decimal, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, phasePricesSQL, symbol, dayStart, dayEnd)
	if queryErr != nil {
		return nil, fmt.Errorf("phase prices: %w", queryErr)
	}
	defer rows.Close()

	prices := make(map[string]decimal.Decimal)
	for rows.Next() {
		var phase string
		var priceStr string
		if err := rows.Scan(&phase, &priceStr); err != nil {
			return nil, err
		}
		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse phase price: %w", convErr)
		}
		prices[phase] = price
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return prices, nil
}

// PruneObservations deletes observations older than the cutoff and reports the count.
func (s *Store) PruneObservations(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	cmdTag, execErr := pool.Exec(ctx, pruneObservationsSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("prune observations: %w", execErr)
	}
	return cmdTag.RowsAffected(), nil
}

// ObservationsBetween lists a symbol's observations within a time window, oldest first.
func (s *Store) ObservationsBetween(ctx context.Context, symbol string, from, to time.Time) ([]PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, observationsBetweenSQL, symbol, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("observations between: %w", queryErr)
	}
	defer rows.Close()

	return collectObservations(rows, 0)
}

// RecentAcrossSymbols lists the most recent observations regardless of symbol.
func (s *Store) RecentAcrossSymbols(ctx context.Context, limit int) ([]PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, recentBySymbolSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("recent across symbols: %w", queryErr)
	}
	defer rows.Close()

	return collectObservations(rows, limit)
}

// ListTrackedSymbols reads the current tracked-symbol set.
func (s *Store) ListTrackedSymbols(ctx context.Context) ([]TrackedSymbol, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listTrackedSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list tracked symbols: %w", queryErr)
	}
	defer rows.Close()

	tracked := make([]TrackedSymbol, 0)
	for rows.Next() {
		var t TrackedSymbol
		if err := rows.Scan(&t.Symbol, &t.OwnerID); err != nil {
			return nil, err
		}
		tracked = append(tracked, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return tracked, nil
}

// TrackSymbol adds a symbol to a user's tracked set.
func (s *Store) TrackSymbol(ctx context.Context, userID int64, symbol string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, trackSymbolSQL, userID, symbol); execErr != nil {
		return fmt.Errorf("track symbol: %w", execErr)
	}
	return nil
}

// UntrackSymbol removes a symbol from a user's tracked set.
func (s *Store) UntrackSymbol(ctx context.Context, userID int64, symbol string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, untrackSymbolSQL, userID, symbol)
	if execErr != nil {
		return fmt.Errorf("untrack symbol: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// RecipientsFor resolves contact info of every user tracking the symbol.
func (s *Store) RecipientsFor(ctx context.Context, symbol string) ([]Recipient, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, recipientsForSQL, symbol)
	if queryErr != nil {
		return nil, fmt.Errorf("recipients for %s: %w", symbol, queryErr)
	}
	defer rows.Close()

	recipients := make([]Recipient, 0)
	for rows.Next() {
		var email, phone sql.NullString
		if err := rows.Scan(&email, &phone); err != nil {
			return nil, err
		}
		var r Recipient
		if email.Valid && email.String != "" {
			value := email.String
			r.Email = &value
		}
		if phone.Valid && phone.String != "" {
			value := phone.String
			r.Phone = &value
		}
		recipients = append(recipients, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return recipients, nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	var phase interface{}
	if alert.Phase != nil {
		phase = *alert.Phase
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.EventID,
		alert.Symbol,
		alert.Message,
		alert.ChangePct.String(),
		phase,
	)

	rec := alert
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		var changeStr string
		var phase sql.NullString
		if err := rows.Scan(
			&rec.ID,
			&rec.EventID,
			&rec.Symbol,
			&rec.Message,
			&changeStr,
			&phase,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		var convErr error
		rec.ChangePct, convErr = decimal.NewFromString(changeStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse change pct: %w", convErr)
		}
		if phase.Valid {
			value := phase.String
			rec.Phase = &value
		}

		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// LastAlertAt returns when the most recent alert for a symbol was recorded.
func (s *Store) LastAlertAt(ctx context.Context, symbol string) (time.Time, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return time.Time{}, false, err
	}

	var at time.Time
	scanErr := pool.QueryRow(ctx, lastAlertAtSQL, symbol).Scan(&at)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("last alert at: %w", scanErr)
	}
	return at, true, nil
}

func collectObservations(rows pgx.Rows, sizeHint int) ([]PriceObservation, error) {
	observations := make([]PriceObservation, 0, sizeHint)
	for rows.Next() {
		obs, scanErr := scanObservation(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		observations = append(observations, obs)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return observations, nil
}

func scanObservation(rows pgx.Rows) (PriceObservation, error) {
	var (
		id         int64
		symbol     string
		priceStr   string
		phase      sql.NullString
		observedAt time.Time
	)

	if err := rows.Scan(&id, &symbol, &priceStr, &phase, &observedAt); err != nil {
		return PriceObservation{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return PriceObservation{}, fmt.Errorf("parse price: %w", err)
	}

	obs := PriceObservation{
		ID:         id,
		Symbol:     symbol,
		Price:      price,
		ObservedAt: observedAt,
	}
	if phase.Valid {
		value := phase.String
		obs.Phase = &value
	}

	return obs, nil
}
