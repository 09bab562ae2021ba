package delta

// Set of topics consumed by the processor.
const (
	TopicBlockAuthor     = "canonical-block-author"
	TopicTransactionFees = "canonical-transaction-fees"
)

// TopicMinerFeesEtherDeltas carries the joined miner fee delta for a height.
// It is published and consumed again by the processor.
const TopicMinerFeesEtherDeltas = "canonical-miner-fees-ether-deltas"

// Set of topics published for the ledger aggregator.
const (
	TopicPremineBalanceDelta        = "premine-balance-delta"
	TopicHardForkBalanceDelta       = "hard-fork-balance-delta"
	TopicTransactionFeeBalanceDelta = "transaction-fee-balance-delta"
	TopicMinerFeeBalanceDelta       = "miner-fee-balance-delta"
)

// Streams maps the public name of each output stream to its topic.
var Streams = map[string]string{
	"premine":         TopicPremineBalanceDelta,
	"hard-fork":       TopicHardForkBalanceDelta,
	"transaction-fee": TopicTransactionFeeBalanceDelta,
	"miner-fee":       TopicMinerFeeBalanceDelta,
}
