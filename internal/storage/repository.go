package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertAlertSQL = `INSERT INTO alerts (
        address,
        risk_score,
        risk_level,
        confidence,
        reason,
        key_findings,
        tx_hash,
        report_hash,
        explorer_url
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    RETURNING id, address, risk_score, risk_level, confidence, reason, key_findings, tx_hash, report_hash, explorer_url, created_at;`

	listRecentAlertsSQL = `SELECT
        id, address, risk_score, risk_level, confidence, reason, key_findings, tx_hash, report_hash, explorer_url, created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	listAlertsByAddressSQL = `SELECT
        id, address, risk_score, risk_level, confidence, reason, key_findings, tx_hash, report_hash, explorer_url, created_at
    FROM alerts
    WHERE address = $1
    ORDER BY created_at DESC;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	insertSubmissionSQL = `INSERT INTO submissions (
        cycle_id,
        address,
        risk_score,
        risk_level,
        report_hash,
        tx_hash,
        block_number,
        gas_used
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    RETURNING id, created_at;`

	listSubmissionsBetweenSQL = `SELECT
        id, cycle_id, address, risk_score, risk_level, report_hash, tx_hash, block_number, gas_used, created_at
    FROM submissions
    WHERE created_at >= $1
      AND created_at < $2
    ORDER BY created_at;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AlertStore defines the persistence operations for alerts.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	ListAlertsByAddress(ctx context.Context, address string) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// SubmissionStore defines the persistence operations for submission audits.
type SubmissionStore interface {
	InsertSubmission(ctx context.Context, rec SubmissionRecord) (SubmissionRecord, error)
	ListSubmissionsBetween(ctx context.Context, from, to time.Time) ([]SubmissionRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to alerts and submission audits.
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

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
// The lock guards against two agent instances writing reports for the same targets.
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
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		strings.ToLower(alert.Address),
		alert.RiskScore,
		alert.RiskLevel,
		alert.Confidence,
		alert.Reason,
		alert.KeyFindings,
		alert.TxHash,
		alert.ReportHash,
		alert.ExplorerURL,
	)

	rec, scanErr := scanAlert(row)
	if scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists the most recent alerts.
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

	return collectAlerts(rows, limit)
}

// ListAlertsByAddress lists every alert recorded for one address.
func (s *Store) ListAlertsByAddress(ctx context.Context, address string) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAlertsByAddressSQL, strings.ToLower(address))
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts by address: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows, 0)
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

// InsertSubmission audits a mined report submission.
func (s *Store) InsertSubmission(ctx context.Context, rec SubmissionRecord) (SubmissionRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return SubmissionRecord{}, err
	}

	row := pool.QueryRow(ctx, insertSubmissionSQL,
		rec.CycleID,
		strings.ToLower(rec.Address),
		rec.RiskScore,
		rec.RiskLevel,
		rec.ReportHash,
		rec.TxHash,
		rec.BlockNumber,
		rec.GasUsed,
	)
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return SubmissionRecord{}, fmt.Errorf("insert submission: %w", scanErr)
	}
	rec.Address = strings.ToLower(rec.Address)
	return rec, nil
}

// ListSubmissionsBetween lists submissions within a time window, oldest first.
func (s *Store) ListSubmissionsBetween(ctx context.Context, from, to time.Time) ([]SubmissionRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSubmissionsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list submissions between: %w", queryErr)
	}
	defer rows.Close()

	return collectSubmissions(rows, 0)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (AlertRecord, error) {
	var (
		rec      AlertRecord
		txHash   sql.NullString
		repHash  sql.NullString
		explorer sql.NullString
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Address,
		&rec.RiskScore,
		&rec.RiskLevel,
		&rec.Confidence,
		&rec.Reason,
		&rec.KeyFindings,
		&txHash,
		&repHash,
		&explorer,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}
	if txHash.Valid {
		value := txHash.String
		rec.TxHash = &value
	}
	if repHash.Valid {
		value := repHash.String
		rec.ReportHash = &value
	}
	if explorer.Valid {
		value := explorer.String
		rec.ExplorerURL = &value
	}
	return rec, nil
}

func collectAlerts(rows pgx.Rows, sizeHint int) ([]AlertRecord, error) {
	alerts := make([]AlertRecord, 0, sizeHint)
	for rows.Next() {
		rec, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func collectSubmissions(rows pgx.Rows, sizeHint int) ([]SubmissionRecord, error) {
	records := make([]SubmissionRecord, 0, sizeHint)
	for rows.Next() {
		var rec SubmissionRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.CycleID,
			&rec.Address,
			&rec.RiskScore,
			&rec.RiskLevel,
			&rec.ReportHash,
			&rec.TxHash,
			&rec.BlockNumber,
			&rec.GasUsed,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}
