package storage

import "time"

// AlertRecord is the persisted form of a generated alert.
type AlertRecord struct {
	ID          int64
	Address     string
	RiskScore   int
	RiskLevel   string
	Confidence  string
	Reason      string
	KeyFindings []string
	TxHash      *string
	ReportHash  *string
	ExplorerURL *string
	CreatedAt   time.Time
}

// SubmissionRecord audits one on-chain report submission.
type SubmissionRecord struct {
	ID          int64
	CycleID     int64
	Address     string
	RiskScore   int
	RiskLevel   string
	ReportHash  string
	TxHash      string
	BlockNumber int64
	GasUsed     int64
	CreatedAt   time.Time
}
