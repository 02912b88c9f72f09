// Package distribution implements the Distribution actor: gossiping newly
// applied events to peers (push), serving and issuing catch-up range
// requests for subjects a peer has fallen behind on (pull). The
// ProvideSignatures/SignaturesReceived fields of messages.DistributionMessage
// are not acted on here, and there is no LCE discovery query. Transport is abstracted
// so tests exercise the protocol without real sockets, the same shape as
// the teacher's networking layer sitting behind an interface.
package distribution

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/taple-project/taple-core-go/identifier"
	"github.com/taple-project/taple-core-go/messages"
	"github.com/taple-project/taple-core-go/messagetask"
	"github.com/taple-project/taple-core-go/model"
	"github.com/taple-project/taple-core-go/observability/metrics"
)

// Transport delivers one encoded message to one peer.
type Transport interface {
	Send(ctx context.Context, peer string, msg messages.TapleMessage) error
}

// LedgerReader is the narrow slice of the Ledger's read surface Distribution
// needs to serve push/pull requests.
type LedgerReader interface {
	GetEvent(subjectID identifier.Identifier, sn uint64) (model.Event, error)
	Range(subjectID identifier.Identifier, from, to uint64) ([]model.Event, error)
	HeadFor(subjectID identifier.Identifier) (model.Subject, error)
}

// Sink receives events discovered via push or pull for local application.
// The Distributor itself does not verify or apply events: that is the
// Ledger's job, reached through whatever wiring the node assembles.
type Sink interface {
	IngestEvent(subjectID identifier.Identifier, ev model.Event) error
}

// Distributor is the Distribution actor.
type Distributor struct {
	self      identifier.Identifier
	transport Transport
	reader    LedgerReader
	sink      Sink
	mtCfg     messagetask.Config

	mu    sync.Mutex
	peers []string
}

func New(self identifier.Identifier, transport Transport, reader LedgerReader, sink Sink, mtCfg messagetask.Config) *Distributor {
	return &Distributor{self: self, transport: transport, reader: reader, sink: sink, mtCfg: mtCfg}
}

// AddPeer registers a peer address as a gossip target.
func (d *Distributor) AddPeer(peer string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers = append(d.peers, peer)
}

func (d *Distributor) peerList() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.peers...)
}

// Push broadcasts subjectID's event at sn to every known peer, retrying
// per the configured replication factor via messagetask.
func (d *Distributor) Push(ctx context.Context, subjectID identifier.Identifier, sn uint64) error {
	ev, err := d.reader.GetEvent(subjectID, sn)
	if err != nil {
		return err
	}
	msg := messages.TapleMessage{
		Kind:          messages.KindDistribution,
		Sender:        d.self,
		CorrelationID: uuid.NewString(),
		Distribution: &messages.DistributionMessage{
			SubjectID: subjectID,
			Push:      &ev,
		},
	}

	targets := d.peerList()
	if len(targets) == 0 {
		return nil
	}
	task := messagetask.New(d.mtCfg, targets, func(ctx context.Context, peer string) error {
		return d.transport.Send(ctx, peer, msg)
	})
	if err := task.Run(ctx); err != nil {
		metrics.DistributionPushes.WithLabelValues("failed").Inc()
		return err
	}
	metrics.DistributionPushes.WithLabelValues("ok").Inc()
	return nil
}

// RequestRange pulls [from, to] for subjectID from a specific peer (used
// once a node notices a gap it cannot fill locally).
func (d *Distributor) RequestRange(ctx context.Context, peer string, subjectID identifier.Identifier, from, to uint64) error {
	msg := messages.TapleMessage{
		Kind:          messages.KindDistribution,
		Sender:        d.self,
		Target:        identifier.Identifier(peer),
		CorrelationID: uuid.NewString(),
		Distribution: &messages.DistributionMessage{
			SubjectID:  subjectID,
			PullFromSN: from,
			PullToSN:   to,
		},
	}
	return d.transport.Send(ctx, peer, msg)
}

// HandleMessage processes one inbound DistributionMessage: it applies a
// pushed or pulled event through the Sink, or answers a pull request by
// sending a reply back over the same transport. A message carrying none of
// Push or PullEvents is treated as a pull request for [PullFromSN, PullToSN].
func (d *Distributor) HandleMessage(ctx context.Context, from string, msg messages.TapleMessage) error {
	if msg.Kind != messages.KindDistribution || msg.Distribution == nil {
		return fmt.Errorf("distribution: not a distribution message")
	}
	dm := msg.Distribution

	if dm.Push != nil {
		return d.sink.IngestEvent(dm.SubjectID, *dm.Push)
	}

	if len(dm.PullEvents) > 0 {
		for _, ev := range dm.PullEvents {
			if err := d.sink.IngestEvent(dm.SubjectID, ev); err != nil {
				return err
			}
		}
		return nil
	}

	if dm.PullToSN >= dm.PullFromSN && dm.PullEvents == nil && dm.Push == nil {
		events, err := d.reader.Range(dm.SubjectID, dm.PullFromSN, dm.PullToSN)
		if err != nil {
			return err
		}
		reply := messages.TapleMessage{
			Kind:          messages.KindDistribution,
			Sender:        d.self,
			CorrelationID: msg.CorrelationID,
			Distribution: &messages.DistributionMessage{
				SubjectID:  dm.SubjectID,
				PullFromSN: dm.PullFromSN,
				PullToSN:   dm.PullToSN,
				PullEvents: events,
			},
		}
		return d.transport.Send(ctx, from, reply)
	}

	return nil
}
