package delta

import (
	"fmt"
	"time"

	"github.com/ardanlabs/ethdelta/foundation/blockchain/genesis"
	"github.com/ardanlabs/ethdelta/foundation/blockchain/hardfork"
	"github.com/ardanlabs/ethdelta/foundation/stream"
	"github.com/ardanlabs/ethdelta/foundation/stream/state"
)

// DefaultJoinWindow is how far apart a block header and its fee list may be
// and still be joined into a miner fee delta.
const DefaultJoinWindow = 24 * time.Hour

// EventHandler defines a function that is called when events
// occur in the processing of records.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to construct a topology.
type Config struct {
	Genesis    genesis.Genesis
	HardForks  hardfork.Table
	JoinWindow time.Duration
	EvHandler  EventHandler
}

// Topology wires every stage of the ether balance delta processing. It
// consumes the canonical block author and transaction fee topics and
// publishes the four balance delta topics.
type Topology struct {
	genesis   genesis.Genesis
	hardForks hardfork.Table
	evHandler EventHandler

	dedup     OncePerBlock
	join      stream.Join[BlockHeader, FeeList, Delta]
	minerFees MinerFeeReducer

	premine  Reverser
	hardFork Reverser
	txFee    Reverser
	minerFee Reverser
}

// New constructs a topology for use.
func New(cfg Config) *Topology {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	window := cfg.JoinWindow
	if window <= 0 {
		window = DefaultJoinWindow
	}

	return &Topology{
		genesis:   cfg.Genesis,
		hardForks: cfg.HardForks,
		evHandler: ev,

		dedup:     NewOncePerBlock(),
		join:      stream.NewJoin[BlockHeader, FeeList, Delta]("miner-fee-join", window, JoinMinerFee),
		minerFees: NewMinerFeeReducer(),

		premine:  NewReverser("premine"),
		hardFork: NewReverser("hard-fork"),
		txFee:    NewReverser("transaction-fee"),
		minerFee: NewReverser("miner-fee"),
	}
}

// Sources returns the topics the topology consumes.
func (t *Topology) Sources() []string {
	return []string{
		TopicBlockAuthor,
		TopicTransactionFees,
		TopicMinerFeesEtherDeltas,
	}
}

// Stores returns the names of every state store the topology keeps.
func (t *Topology) Stores() []string {
	stores := []string{
		t.dedup.Store(),
		t.minerFees.Store(),
		t.premine.Store(),
		t.hardFork.Store(),
		t.txFee.Store(),
		t.minerFee.Store(),
	}

	return append(stores, t.join.Stores()...)
}

// Process handles one message and returns the messages to publish. Every
// state change is staged in the transaction and committed by the caller.
func (t *Topology) Process(tx *state.Tx, msg stream.Message) ([]stream.Message, error) {
	switch msg.Topic {
	case TopicBlockAuthor:
		return t.processBlockAuthor(tx, msg)

	case TopicTransactionFees:
		return t.processTransactionFees(tx, msg)

	case TopicMinerFeesEtherDeltas:
		return t.processMinerFeeDelta(tx, msg)
	}

	return nil, fmt.Errorf("unknown topic[%s]", msg.Topic)
}

// =============================================================================

func (t *Topology) processBlockAuthor(tx *state.Tx, msg stream.Message) ([]stream.Message, error) {
	rec, err := stream.Decode[BlockHeader](msg)
	if err != nil {
		return nil, err
	}

	var out []stream.Message

	forward, err := t.dedup.Filter(tx, rec)
	if err != nil {
		return nil, err
	}

	switch {
	case !forward:
		t.evHandler("delta: block: height[%d]: redelivered, skipping synthetic deltas", rec.Key)

	default:
		if list, ok := PremineDeltas(t.genesis, rec); ok {
			m, err := t.publish(tx, t.premine, TopicPremineBalanceDelta, list)
			if err != nil {
				return nil, err
			}
			out = append(out, m)
		}

		if list, ok := HardForkDeltas(t.hardForks, rec); ok {
			m, err := t.publish(tx, t.hardFork, TopicHardForkBalanceDelta, list)
			if err != nil {
				return nil, err
			}
			out = append(out, m)
		}
	}

	joined, err := t.join.Left(tx, rec)
	if err != nil {
		return nil, err
	}

	return t.appendJoined(out, joined)
}

func (t *Topology) processTransactionFees(tx *state.Tx, msg stream.Message) ([]stream.Message, error) {
	rec, err := stream.Decode[FeeList](msg)
	if err != nil {
		return nil, err
	}

	m, err := t.publish(tx, t.txFee, TopicTransactionFeeBalanceDelta, TransactionFeeDeltas(rec))
	if err != nil {
		return nil, err
	}
	out := []stream.Message{m}

	joined, err := t.join.Right(tx, rec)
	if err != nil {
		return nil, err
	}

	return t.appendJoined(out, joined)
}

func (t *Topology) processMinerFeeDelta(tx *state.Tx, msg stream.Message) ([]stream.Message, error) {
	rec, err := stream.Decode[Delta](msg)
	if err != nil {
		return nil, err
	}

	list, ok, err := t.minerFees.Reduce(tx, rec)
	if err != nil {
		return nil, err
	}

	if !ok {
		t.evHandler("delta: miner fee: height[%d]: tombstone ignored", rec.Key)
		return nil, nil
	}

	m, err := t.publish(tx, t.minerFee, TopicMinerFeeBalanceDelta, list)
	if err != nil {
		return nil, err
	}

	return []stream.Message{m}, nil
}

// appendJoined encodes the joined miner fee deltas for republication.
func (t *Topology) appendJoined(out []stream.Message, joined []stream.Record[Delta]) ([]stream.Message, error) {
	for _, rec := range joined {
		m, err := stream.Encode(TopicMinerFeesEtherDeltas, rec)
		if err != nil {
			return nil, err
		}

		t.evHandler("delta: join: height[%d]: tombstone[%t]", rec.Key, m.Tombstone)
		out = append(out, m)
	}

	return out, nil
}

// publish runs the list through the reverser of its category and encodes the
// result for the output topic.
func (t *Topology) publish(tx *state.Tx, r Reverser, topicName string, rec stream.Record[List]) (stream.Message, error) {
	rec, err := r.Apply(tx, rec)
	if err != nil {
		return stream.Message{}, err
	}

	m, err := stream.Encode(topicName, rec)
	if err != nil {
		return stream.Message{}, err
	}

	if list, ok := rec.Value.Get(); ok {
		t.evHandler("delta: publish: topic[%s] height[%d] hash[%s] apply[%t] deltas[%d] reversals[%d]", topicName, rec.Key, list.Hash, list.Apply, len(list.Deltas), len(list.Reversals))
	} else {
		t.evHandler("delta: publish: topic[%s] height[%d] tombstone", topicName, rec.Key)
	}

	return m, nil
}
