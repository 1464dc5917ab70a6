package alerting

import (
	"strings"
	"sync"
	"time"
)

// Alert is one high-level finding produced by an agent cycle.
type Alert struct {
	ID          int       `json:"id"`
	Address     string    `json:"address"`
	RiskScore   int       `json:"riskScore"`
	RiskLevel   string    `json:"riskLevel"`
	Confidence  string    `json:"confidence"`
	Reason      string    `json:"reason"`
	KeyFindings []string  `json:"keyFindings,omitempty"`
	TxHash      string    `json:"txHash,omitempty"`
	ReportHash  string    `json:"reportHash,omitempty"`
	ExplorerURL string    `json:"explorerUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Stats summarizes the alert store for the API.
type Stats struct {
	Total        int            `json:"total"`
	ByLevel      map[string]int `json:"byLevel"`
	HighRisk     int            `json:"highRisk"`
	AverageScore float64        `json:"averageScore"`
}

// ConfidenceFor buckets a composite score into a coarse confidence
// tier for alert consumers.
func ConfidenceFor(score int) string {
	switch {
	case score >= 80:
		return "high"
	case score >= 50:
		return "medium"
	default:
		return "low"
	}
}

// Store keeps alerts in memory, newest last. IDs are assigned on Add
// and are unique within a process.
type Store struct {
	mu     sync.RWMutex
	alerts []Alert
	nextID int
}

// NewStore constructs an empty alert store.
func NewStore() *Store {
	return &Store{nextID: 1}
}

// Add assigns an ID and appends the alert, returning the stored copy.
func (s *Store) Add(alert Alert) Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert.ID = s.nextID
	s.nextID++
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	if alert.Confidence == "" {
		alert.Confidence = ConfidenceFor(alert.RiskScore)
	}
	alert.Address = strings.ToLower(alert.Address)
	s.alerts = append(s.alerts, alert)
	return alert
}

// Recent returns up to limit of the newest alerts, newest first.
func (s *Store) Recent(limit int) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.alerts) {
		limit = len(s.alerts)
	}
	out := make([]Alert, 0, limit)
	for i := len(s.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.alerts[i])
	}
	return out
}

// ByAddress returns every alert for one address, newest first.
func (s *Store) ByAddress(address string) []Alert {
	address = strings.ToLower(address)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Alert
	for i := len(s.alerts) - 1; i >= 0; i-- {
		if s.alerts[i].Address == address {
			out = append(out, s.alerts[i])
		}
	}
	return out
}

// ByLevel returns every alert at the given risk level, newest first.
func (s *Store) ByLevel(level string) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Alert
	for i := len(s.alerts) - 1; i >= 0; i-- {
		if strings.EqualFold(s.alerts[i].RiskLevel, level) {
			out = append(out, s.alerts[i])
		}
	}
	return out
}

// HighRisk returns alerts with a score of at least 80, newest first.
func (s *Store) HighRisk() []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Alert
	for i := len(s.alerts) - 1; i >= 0; i-- {
		if s.alerts[i].RiskScore >= 80 {
			out = append(out, s.alerts[i])
		}
	}
	return out
}

// GetStats computes aggregate counts over the full store.
func (s *Store) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Total:   len(s.alerts),
		ByLevel: make(map[string]int),
	}
	sum := 0
	for _, alert := range s.alerts {
		stats.ByLevel[alert.RiskLevel]++
		if alert.RiskScore >= 80 {
			stats.HighRisk++
		}
		sum += alert.RiskScore
	}
	if stats.Total > 0 {
		stats.AverageScore = float64(sum) / float64(stats.Total)
	}
	return stats
}
