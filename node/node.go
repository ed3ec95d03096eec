/*
Package node runs a validator: the history clock, the leader election, the
block proposer and the gossip protocol that ties a set of nodes together.
*/
package node

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gitzhang10/pohchain/chain"
	"github.com/gitzhang10/pohchain/config"
	"github.com/gitzhang10/pohchain/conn"
	"github.com/gitzhang10/pohchain/mempool"
	"github.com/gitzhang10/pohchain/poh"
	"github.com/gitzhang10/pohchain/sign"
	"github.com/gitzhang10/pohchain/stake"
	"github.com/gitzhang10/pohchain/vote"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// session binds a live connection to the validator that registered on it.
type session struct {
	conn      *conn.NetConn
	validator string
}

type Node struct {
	name       string
	id         string // hex public key
	self       stake.Validator
	privateKey []byte
	conf       *config.Config
	logger     hclog.Logger

	sequencer *poh.Sequencer
	registry  *stake.Registry
	ledger    *stake.Ledger
	election  *stake.Election
	pool      *mempool.Pool
	chain     *chain.Chain
	votes     *vote.Tracker

	trans *conn.NetworkTransport

	sessionLock sync.Mutex
	sessions    map[string]*session // map from session id to session

	replicaLock sync.Mutex
	replicas    map[string]*poh.Replica // map from validator id to its history mirror

	seen *expirable.LRU[sign.Hash, struct{}]

	rngLock sync.Mutex
	rng     *rand.Rand

	finalized        atomic.Uint64
	blocksProposed   atomic.Uint64
	votesCounted     atomic.Uint64
	votesFailed      atomic.Uint64
	messagesSent     atomic.Uint64
	messagesReceived atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewNode(conf *config.Config) (*Node, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	verifier, _ := mempool.VerifierByName(conf.SignatureScheme)

	var n Node
	n.name = conf.Name
	n.conf = conf
	n.privateKey = conf.PrivateKey
	n.id = sign.KeyID(conf.PublicKey)
	n.self = stake.Validator{ID: n.id, PublicKey: conf.PublicKey}
	n.logger = hclog.New(&hclog.LoggerOptions{
		Name:   "poh-node",
		Output: hclog.DefaultOutput,
		Level:  hclog.Level(conf.LogLevel),
	}).With("node", n.name)

	n.sequencer = poh.NewSequencer(n.logger.Named("sequencer"))
	n.registry = stake.NewRegistry()
	n.ledger = stake.NewLedger()
	n.election = stake.NewElection(n.ledger, n.registry)
	n.pool = mempool.NewPool(verifier)
	n.chain = chain.New()
	n.votes = vote.NewTracker(n.ledger, n.registry)

	n.sessions = make(map[string]*session)
	n.replicas = make(map[string]*poh.Replica)
	n.seen = expirable.NewLRU[sign.Hash, struct{}](conf.GossipCacheSize, nil, conf.GossipCacheTTL)
	n.rng = rand.New(rand.NewSource(time.Now().UnixNano()))

	n.registry.Register(n.self)
	if err := n.ledger.Deposit(n.id, conf.FaucetAmount); err != nil {
		return nil, fmt.Errorf("seed own stake: %w", err)
	}
	return &n, nil
}

// ID returns the validator id of the node.
func (n *Node) ID() string {
	return n.id
}

// Start runs the background tasks until ctx is done or Close is called.
// Without StartP2PListen the node runs offline.
func (n *Node) Start(ctx context.Context) {
	n.ctx, n.cancel = context.WithCancel(ctx)
	n.elect()

	n.run(func(ctx context.Context) { n.sequencer.Run(ctx, n.conf.TickInterval) })
	n.run(n.electionLoop)
	n.run(n.proposeLoop)
	n.run(n.redialLoop)
	n.run(n.keepaliveLoop)
	if n.conf.StatusInterval > 0 {
		n.run(n.StatusLoop)
	}
	n.logger.Info("node started", "id", n.id, "address", n.Addr())
}

func (n *Node) run(task func(ctx context.Context)) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		task(n.ctx)
	}()
}

// Close stops the background tasks, the listener and every connection.
func (n *Node) Close() error {
	if n.cancel != nil {
		n.cancel()
	}
	var err error
	if n.trans != nil {
		err = n.trans.Close()
	}
	n.wg.Wait()
	return err
}

func (n *Node) electionLoop(ctx context.Context) {
	ticker := time.NewTicker(n.conf.ElectionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.elect()
		}
	}
}

// elect draws the leader for the current tip over the stake of the registered
// validators. The draw is seeded by the tip hash, so nodes sharing the tip and
// the validator set agree on the leader.
func (n *Node) elect() (string, bool) {
	tip, height := n.chain.Tip()
	seed := int64(binary.BigEndian.Uint64(tip[:8]))
	leader, ok := n.election.ElectSeeded(seed)
	if ok {
		n.logger.Debug("leader elected", "height", height, "leader", leader, "self", leader == n.id)
	} else {
		n.logger.Info("no leader elected", "height", height)
	}
	return leader, ok
}

// isLeader re-runs the election against the current tip and stakes instead of
// trusting the last stored outcome, which may predate a block or a
// registration. A node with configured peers does not lead before one of them
// has registered.
func (n *Node) isLeader() bool {
	if !n.conf.EnforceLeader {
		return true
	}
	if len(n.conf.Peers) > 0 && n.registry.Len() < 2 {
		n.logger.Debug("waiting for peers to register before leading")
		return false
	}
	leader, ok := n.elect()
	return ok && leader == n.id
}

// SubmitTransaction admits tx into the local pool and gossips it.
func (n *Node) SubmitTransaction(tx mempool.Transaction) bool {
	return n.admitTransaction(tx, "")
}

// Deposit stakes amount for validator id on this node.
func (n *Node) Deposit(id string, amount uint64) error {
	return n.ledger.Deposit(id, amount)
}
