package node

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gitzhang10/pohchain/chain"
	"github.com/gitzhang10/pohchain/config"
	"github.com/gitzhang10/pohchain/conn"
	"github.com/gitzhang10/pohchain/mempool"
	"github.com/gitzhang10/pohchain/poh"
	"github.com/gitzhang10/pohchain/sign"
	"github.com/gitzhang10/pohchain/stake"
	"github.com/hashicorp/go-hclog"
)

// testConfig returns a config for a node on a random loopback port. Blocks
// are only proposed when a test calls propose.
func testConfig(name string) *config.Config {
	conf := config.Default()
	conf.Name = name
	conf.ListenAddr = "127.0.0.1:0"
	conf.TickInterval = 10 * time.Millisecond
	conf.BlockInterval = time.Hour
	conf.ElectionInterval = time.Hour
	conf.StatusInterval = 0
	conf.RedialInterval = 0
	conf.IdleTimeout = 0
	conf.LogLevel = int(hclog.Error)
	return conf
}

func startNode(t *testing.T, conf *config.Config) *Node {
	t.Helper()
	n, err := NewNode(conf)
	if err != nil {
		t.Fatal(err)
	}
	if err := n.StartP2PListen(); err != nil {
		t.Fatal(err)
	}
	n.Start(context.Background())
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHistoryClock(t *testing.T) {
	n := startNode(t, testConfig("node0"))
	waitFor(t, "history", func() bool { return n.Status().HistoryLength >= 5 })
	if bad := poh.Verify(sign.Zero, n.sequencer.Slice(0)); bad != -1 {
		t.Fatalf("own history breaks at %d", bad)
	}
}

func TestSingleNodeBlock(t *testing.T) {
	n := startNode(t, testConfig("node0"))
	waitFor(t, "history", func() bool { return n.Status().HistoryLength >= 3 })

	if leader, ok := n.election.Leader(); !ok || leader != n.ID() {
		t.Fatal("the only validator should lead")
	}
	tx := mempool.Transaction{Sender: "alice", Receiver: "bob", Amount: 10, Signature: []byte{1}}
	if !n.SubmitTransaction(tx) {
		t.Fatal("transaction rejected")
	}
	if n.SubmitTransaction(tx) {
		t.Fatal("duplicate transaction admitted")
	}
	if n.SubmitTransaction(mempool.Transaction{Sender: "alice", Receiver: "bob", Amount: 1}) {
		t.Fatal("unsigned transaction admitted")
	}
	if n.Status().PoolSize != 1 {
		t.Fatal("pool should hold one transaction")
	}

	b, ok := n.propose()
	if !ok {
		t.Fatal("leader did not propose")
	}
	if b.Height != 1 || len(b.Transactions) != 1 || b.Transactions[0].Amount != 10 {
		t.Fatalf("unexpected block %+v", b)
	}
	if b.HistoryOffset != 0 || len(b.HistoryWindow) < 3 {
		t.Fatal("first block should carry the history from the start")
	}
	st := n.Status()
	if st.Height != 1 || st.PoolSize != 0 || st.Finalized != 1 {
		t.Fatalf("unexpected status %+v", st)
	}

	next, _ := n.propose()
	if next.HistoryOffset != b.HistoryOffset+uint64(len(b.HistoryWindow)) {
		t.Fatal("history window should continue where the last block stopped")
	}
	if next.ParentHash != b.BlockHash || next.Height != 2 {
		t.Fatal("second block does not extend the first")
	}
}

func TestTwoNodes(t *testing.T) {
	confA := testConfig("node0")
	confA.EnforceLeader = false
	a := startNode(t, confA)
	b := startNode(t, testConfig("node1"))

	if err := b.Connect(a.Addr()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "registration", func() bool {
		return a.registry.Has(b.ID()) && b.registry.Has(a.ID())
	})
	if a.ledger.Stake(b.ID()) != a.conf.FaucetAmount {
		t.Fatal("new validator should get the faucet amount")
	}

	tx := mempool.Transaction{Sender: "alice", Receiver: "bob", Amount: 3, Signature: []byte{9}}
	if !a.SubmitTransaction(tx) {
		t.Fatal("transaction rejected")
	}
	waitFor(t, "transaction gossip", func() bool { return b.pool.Len() == 1 })

	waitFor(t, "history", func() bool { return a.sequencer.Len() >= 3 })
	blk, ok := a.propose()
	if !ok {
		t.Fatal("no block proposed")
	}
	waitFor(t, "block acceptance", func() bool {
		_, h := b.chain.Tip()
		return h == 1
	})
	if got, _ := b.chain.Block(1); got.BlockHash != blk.BlockHash {
		t.Fatal("follower accepted a different block")
	}
	waitFor(t, "pool cleanup", func() bool { return b.pool.Len() == 0 })
	waitFor(t, "finality", func() bool { return a.Status().Finalized == 1 })
	waitFor(t, "history mirror", func() bool {
		return b.replica(a.ID()).Len() == len(blk.HistoryWindow)
	})
}

// rawClient speaks the wire protocol over a plain socket.
type rawClient struct {
	t *testing.T
	c net.Conn
}

func dialRaw(t *testing.T, addr string) *rawClient {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return &rawClient{t: t, c: c}
}

func (r *rawClient) send(msg Message) {
	r.t.Helper()
	data, err := encodeMessage(msg)
	if err != nil {
		r.t.Fatal(err)
	}
	if err := conn.WriteFrame(r.c, data); err != nil {
		r.t.Fatal(err)
	}
}

func (r *rawClient) sendRaw(data []byte) {
	r.t.Helper()
	if err := conn.WriteFrame(r.c, data); err != nil {
		r.t.Fatal(err)
	}
}

// expect reads frames until one of kind arrives.
func (r *rawClient) expect(kind Kind) Message {
	r.t.Helper()
	return r.expectWithout(kind, "")
}

// expectWithout is expect, failing if a message of kind forbidden arrives first.
func (r *rawClient) expectWithout(kind, forbidden Kind) Message {
	r.t.Helper()
	_ = r.c.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		data, err := conn.ReadFrame(r.c, conn.DefaultMaxFrameSize)
		if err != nil {
			r.t.Fatal(err)
		}
		msg, err := decodeMessage(data)
		if err != nil {
			r.t.Fatal(err)
		}
		switch msg.Kind() {
		case kind:
			return msg
		case forbidden:
			r.t.Fatalf("unexpected %s while waiting for %s", forbidden, kind)
		}
	}
}

// registerRaw announces a fresh validator over client and returns its id.
func registerRaw(client *rawClient) string {
	client.t.Helper()
	_, pub := sign.GenSchnorrKeys()
	id := sign.KeyID(pub)
	client.expect(RegisterValidatorKind)
	client.send(RegisterValidator{Validator: stake.Validator{ID: id, PublicKey: pub}})
	return id
}

// testHistory returns n valid entries chained from the zero digest.
func testHistory(n int) []poh.HistoryEntry {
	clock := time.Unix(1700000000, 0)
	seq := poh.NewSequencerWithClock(nil, func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
	for i := 0; i < n; i++ {
		seq.Tick()
	}
	return seq.Slice(0)
}

func TestRetransmissionRequest(t *testing.T) {
	n := startNode(t, testConfig("node0"))
	waitFor(t, "history", func() bool { return n.sequencer.Len() >= 10 })

	client := dialRaw(t, n.Addr())
	reg := client.expect(RegisterValidatorKind).(RegisterValidator)
	if reg.Validator.ID != n.ID() {
		t.Fatal("node announced a different id")
	}

	client.send(RetransmissionRequest{Index: 5})
	reply := client.expect(HistoryEntriesKind).(HistoryEntries)
	if reply.Start != 5 || len(reply.Entries) < 5 {
		t.Fatalf("unexpected reply start=%d len=%d", reply.Start, len(reply.Entries))
	}
	for i := 0; i < 5; i++ {
		want, _ := n.sequencer.Entry(uint64(5 + i))
		if reply.Entries[i] != want {
			t.Fatalf("entry %d differs", 5+i)
		}
	}

	client.send(RetransmissionRequest{Index: 20000})
	reply = client.expect(HistoryEntriesKind).(HistoryEntries)
	if reply.Start != 20000 || len(reply.Entries) != 0 {
		t.Fatal("request beyond the history should be answered with no entries")
	}
}

func TestGarbageFrameKeepsConnection(t *testing.T) {
	n := startNode(t, testConfig("node0"))
	client := dialRaw(t, n.Addr())
	client.expect(RegisterValidatorKind)

	client.sendRaw([]byte("definitely not a message"))
	client.sendRaw([]byte(`{"kind":"Mystery","payload":{}}`))
	client.send(RetransmissionRequest{Index: 0})
	client.expect(HistoryEntriesKind)
}

func TestRegisterStakeAndDisconnect(t *testing.T) {
	n := startNode(t, testConfig("node0"))
	_, pub := sign.GenSchnorrKeys()
	id := sign.KeyID(pub)

	client := dialRaw(t, n.Addr())
	client.expect(RegisterValidatorKind)
	client.send(RegisterValidator{Validator: stake.Validator{ID: id, PublicKey: pub}})
	client.send(StakeTokens{ValidatorID: id, Amount: 50})
	client.send(RetransmissionRequest{Index: 0})
	client.expect(HistoryEntriesKind)

	if !n.registry.Has(id) {
		t.Fatal("validator not registered")
	}
	if got := n.ledger.Stake(id); got != n.conf.FaucetAmount+50 {
		t.Fatalf("stake = %d", got)
	}

	_, otherPub := sign.GenSchnorrKeys()
	liar := dialRaw(t, n.Addr())
	liar.expect(RegisterValidatorKind)
	liar.send(RegisterValidator{Validator: stake.Validator{ID: "someone-else", PublicKey: otherPub}})
	liar.send(RetransmissionRequest{Index: 0})
	liar.expect(HistoryEntriesKind)
	if n.registry.Has("someone-else") || n.registry.Len() != 2 {
		t.Fatal("registration with a forged id accepted")
	}

	_ = client.c.Close()
	waitFor(t, "deregistration", func() bool { return !n.registry.Has(id) })
	if n.ledger.Stake(id) != n.conf.FaucetAmount+50 {
		t.Fatal("stake should survive a disconnect")
	}
}

func TestVotesFromUnknownSessionsIgnored(t *testing.T) {
	conf := testConfig("node0")
	conf.EnforceLeader = false
	n := startNode(t, conf)
	waitFor(t, "history", func() bool { return n.sequencer.Len() >= 2 })

	_, pub := sign.GenSchnorrKeys()
	id := sign.KeyID(pub)
	if err := n.Deposit(id, 1000); err != nil {
		t.Fatal(err)
	}
	client := dialRaw(t, n.Addr())
	client.expect(RegisterValidatorKind)
	client.send(RegisterValidator{Validator: stake.Validator{ID: id, PublicKey: pub}})
	client.send(RetransmissionRequest{Index: 0})
	client.expect(HistoryEntriesKind)

	blk, _ := n.propose()
	client.expect(BlockProposalKind)
	if n.Status().Finalized != 0 {
		t.Fatal("own stake alone is not two thirds")
	}

	stranger := dialRaw(t, n.Addr())
	stranger.expect(RegisterValidatorKind)
	stranger.send(ConsensusVote{Block: blk, Vote: true})
	stranger.send(RetransmissionRequest{Index: 0})
	stranger.expect(HistoryEntriesKind)
	if st := n.Status(); st.Finalized != 0 || st.VotesFailed != 1 || st.VotesCounted != 0 {
		t.Fatalf("vote from an unregistered session counted: %+v", st)
	}

	client.send(ConsensusVote{Block: blk, Vote: true})
	waitFor(t, "finality", func() bool { return n.Status().Finalized == blk.Height })
	if st := n.Status(); st.VotesCounted != 1 || st.BlocksProposed != 1 {
		t.Fatalf("unexpected counters %+v", st)
	}
}

func TestLeaderGatingKeepsOneChain(t *testing.T) {
	a := startNode(t, testConfig("node0"))
	confB := testConfig("node1")
	confB.Peers = []string{a.Addr()}
	b := startNode(t, confB)

	if _, ok := b.propose(); ok {
		t.Fatal("node proposed before any configured peer registered")
	}
	if err := b.EstablishP2PConns(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "registration", func() bool {
		return a.registry.Has(b.ID()) && b.registry.Has(a.ID())
	})

	nodes := []*Node{a, b}
	proposers := make(map[uint64]string)
	for round := 0; round < 4; round++ {
		blocks := make([]chain.Block, len(nodes))
		oks := make([]bool, len(nodes))
		var wg sync.WaitGroup
		for i, n := range nodes {
			wg.Add(1)
			go func(i int, n *Node) {
				defer wg.Done()
				blocks[i], oks[i] = n.propose()
			}(i, n)
		}
		wg.Wait()

		proposed := 0
		for i, ok := range oks {
			if !ok {
				continue
			}
			proposed++
			h := blocks[i].Height
			if other, dup := proposers[h]; dup {
				t.Fatalf("height %d proposed by %s and %s", h, other, nodes[i].name)
			}
			proposers[h] = nodes[i].name
		}
		if proposed == 0 {
			t.Fatalf("round %d: no node led", round)
		}
		waitFor(t, "a shared tip", func() bool {
			tipA, _ := a.chain.Tip()
			tipB, _ := b.chain.Tip()
			return tipA == tipB
		})
	}

	_, height := a.chain.Tip()
	if height < 4 {
		t.Fatalf("height %d after 4 rounds", height)
	}
	waitFor(t, "finality of the tip", func() bool {
		return a.Status().Finalized == height || b.Status().Finalized == height
	})
}

func TestCorruptWindowRequestsRetransmission(t *testing.T) {
	n := startNode(t, testConfig("node0"))
	client := dialRaw(t, n.Addr())
	id := registerRaw(client)

	window := testHistory(6)
	window[3].Hash[0] ^= 0xff
	blk := chain.New().Assemble(id, 0, window, nil, 1700000010)
	client.send(BlockProposal{Block: blk})

	req := client.expectWithout(RetransmissionRequestKind, ConsensusVoteKind).(RetransmissionRequest)
	if req.Index != 3 {
		t.Fatalf("retransmission requested from %d, want 3", req.Index)
	}
	client.send(RetransmissionRequest{Index: 0})
	client.expectWithout(HistoryEntriesKind, ConsensusVoteKind)
	if _, h := n.chain.Tip(); h != 0 {
		t.Fatal("block with a broken history window accepted")
	}
}

func TestHistoryMismatchRequestsRest(t *testing.T) {
	n := startNode(t, testConfig("node0"))
	client := dialRaw(t, n.Addr())
	id := registerRaw(client)

	good := testHistory(6)
	bad := make([]poh.HistoryEntry, len(good))
	copy(bad, good)
	bad[3].Hash[0] ^= 0xff

	client.send(HistoryEntries{Start: 0, Entries: bad})
	req := client.expect(RetransmissionRequestKind).(RetransmissionRequest)
	if req.Index != 3 {
		t.Fatalf("retransmission requested from %d, want 3", req.Index)
	}

	// the same broken entry again makes no progress and is not re-requested
	client.send(HistoryEntries{Start: 3, Entries: bad[3:]})
	client.send(RetransmissionRequest{Index: 0})
	client.expectWithout(HistoryEntriesKind, RetransmissionRequestKind)
	if got := n.replica(id).Len(); got != 3 {
		t.Fatalf("replica holds %d entries, want 3", got)
	}

	client.send(HistoryEntries{Start: 10, Entries: good[3:4]})
	req = client.expect(RetransmissionRequestKind).(RetransmissionRequest)
	if req.Index != 3 {
		t.Fatalf("gap answered with a request from %d, want 3", req.Index)
	}

	client.send(HistoryEntries{Start: 3, Entries: good[3:]})
	client.send(RetransmissionRequest{Index: 0})
	client.expectWithout(HistoryEntriesKind, RetransmissionRequestKind)
	if got := n.replica(id).Len(); got != 6 {
		t.Fatalf("replica holds %d entries, want 6", got)
	}
}

func TestStartWithoutListener(t *testing.T) {
	conf := testConfig("node0")
	conf.Peers = []string{"127.0.0.1:1"}
	conf.RedialInterval = 10 * time.Millisecond
	conf.IdleTimeout = 30 * time.Millisecond
	n, err := NewNode(conf)
	if err != nil {
		t.Fatal(err)
	}
	n.Start(context.Background())
	waitFor(t, "history", func() bool { return n.Status().HistoryLength >= 5 })
	if n.Addr() != "" {
		t.Fatal("offline node reports an address")
	}
	if err := n.Close(); err != nil {
		t.Fatal(err)
	}
}
