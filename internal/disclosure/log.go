package disclosure

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Action names the autonomous decision a disclosure entry records.
type Action string

const (
	ActionOnChainSubmission Action = "onchain_submission"
	ActionAlertGenerated    Action = "alert_generated"
	ActionSkipDuplicate     Action = "skip_duplicate"
	ActionSkipThreshold     Action = "skip_threshold"
	ActionSubmissionFailed  Action = "submission_failed"
)

// Entry records one autonomous decision: what was decided, why, and
// what on-chain action resulted. Entries are never mutated or deleted.
type Entry struct {
	CycleID        uint64    `json:"cycleId"`
	Address        string    `json:"address"`
	Action         Action    `json:"action"`
	RiskScore      int       `json:"riskScore"`
	RiskLevel      string    `json:"riskLevel"`
	TxHash         *string   `json:"txHash"`
	ReportHash     string    `json:"reportHash"`
	Model          string    `json:"modelIdentifier"`
	AnalyzersUsed  []string  `json:"analyzersUsed"`
	ScoringFormula string    `json:"scoringFormulaDescription"`
	Autonomous     bool      `json:"autonomous"`
	Timestamp      time.Time `json:"timestamp"`
}

// Log is the append-only audit trail. Every entry is buffered in memory
// and written immediately as one JSON line; the file survives restarts
// while the buffer holds only the current process's entries.
type Log struct {
	path   string
	logger zerolog.Logger

	mu      sync.RWMutex
	file    *os.File
	entries []Entry
}

// Open creates (or appends to) the disclosure log at path. An empty
// path keeps the log memory-only.
func Open(path string, logger zerolog.Logger) (*Log, error) {
	l := &Log{
		path:   path,
		logger: logger.With().Str("component", "disclosure").Logger(),
	}

	if path != "" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create disclosure log dir: %w", err)
			}
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open disclosure log: %w", err)
		}
		l.file = file
	}

	return l, nil
}

// Append records one entry. Failures to persist are logged but do not
// lose the in-memory entry; the audit trail requirement is served best
// by keeping whatever copies survive.
func (l *Log) Append(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	file := l.file
	l.mu.Unlock()

	if file != nil {
		line, err := json.Marshal(entry)
		if err != nil {
			l.logger.Error().Err(err).Msg("failed to marshal disclosure entry")
			return
		}
		if _, err := file.Write(append(line, '\n')); err != nil {
			l.logger.Error().Err(err).Msg("failed to persist disclosure entry")
		}
	}

	l.logger.Info().
		Uint64("cycle", entry.CycleID).
		Str("address", entry.Address).
		Str("action", string(entry.Action)).
		Int("score", entry.RiskScore).
		Msg("disclosure recorded")
}

// Recent returns up to limit of the newest in-memory entries, newest
// last.
func (l *Log) Recent(limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]Entry, limit)
	copy(out, l.entries[len(l.entries)-limit:])
	return out
}

// Count returns the number of entries recorded by this process.
func (l *Log) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// History reads the full on-disk log, including entries from previous
// runs. Unparseable lines are skipped.
func (l *Log) History() ([]Entry, error) {
	if l.path == "" {
		return l.Recent(0), nil
	}

	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read disclosure history: %w", err)
	}
	defer file.Close()

	var entries []Entry
	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			l.logger.Warn().Err(err).Msg("skipping malformed disclosure line")
			continue
		}
		entries = append(entries, entry)
	}
	if err := sc.Err(); err != nil {
		return entries, fmt.Errorf("scan disclosure history: %w", err)
	}
	return entries, nil
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
