package scanner

// Reason records why an address became an analysis candidate.
type Reason string

const (
	ReasonContractDeployment Reason = "contract_deployment"
	ReasonLargeValueTransfer Reason = "large_value_transfer"
)

// Target is a candidate address discovered during a scan. Targets are
// cycle-scoped; they are created once per unique address per scan and
// never persisted.
type Target struct {
	Address        string `json:"address"`
	Origin         string `json:"origin"`
	TxHash         string `json:"txHash"`
	BlockNumber    uint64 `json:"blockNumber"`
	BlockTimestamp uint64 `json:"blockTimestamp"`
	Reason         Reason `json:"reason"`
}
