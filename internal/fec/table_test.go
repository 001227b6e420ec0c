package fec

import (
	"testing"
	"time"

	"github.com/go-logr/logr"
	"go.uber.org/mock/gomock"
)

func newTestTable(t *testing.T, k, m int) *BlockTable {
	t.Helper()
	scheme, err := NewRSScheme(k, m)
	if err != nil {
		t.Fatal(err)
	}
	return NewBlockTable(scheme, 0, 0, nil, logr.Discard())
}

func TestBlockTableSingleLossRecovery(t *testing.T) {
	table := newTestTable(t, 4, 2)
	scheme, _ := NewRSScheme(4, 2)

	source := [][]byte{
		{0x01, 0x01}, {0x02, 0x02}, {0x03, 0x03}, {0x04, 0x04},
	}
	parity, err := scheme.RepairShards(source)
	if err != nil {
		t.Fatal(err)
	}

	const isn = int32(1000)
	feed := func(seq int32) {
		idx := seq - isn
		if _, err := table.ReceiveSource(seq, 7, source[idx]); err != nil {
			t.Fatalf("ReceiveSource(%d): %v", seq, err)
		}
	}
	feed(isn)
	feed(isn + 1)
	// skip isn+2 (dropped)
	feed(isn + 3)

	var rebuilt []Rebuilt
	for i, p := range parity {
		rb, malformed, err := table.ReceiveParity(uint16(isn), i, 4, 7, p)
		if err != nil {
			t.Fatalf("ReceiveParity: %v", err)
		}
		if malformed {
			t.Fatalf("parity %d unexpectedly malformed", i)
		}
		rebuilt = append(rebuilt, rb...)
	}

	if len(rebuilt) != 1 {
		t.Fatalf("got %d rebuilt packets, want 1: %+v", len(rebuilt), rebuilt)
	}
	if rebuilt[0].Seq != isn+2 {
		t.Fatalf("rebuilt seq = %d, want %d", rebuilt[0].Seq, isn+2)
	}
	if rebuilt[0].Payload[0] != 0x03 {
		t.Fatalf("rebuilt payload = %v, want starting with 0x03", rebuilt[0].Payload)
	}
}

func TestBlockTableOverCapacityYieldsNothing(t *testing.T) {
	table := newTestTable(t, 4, 2)
	scheme, _ := NewRSScheme(4, 2)
	source := [][]byte{{1}, {2}, {3}, {4}}
	parity, err := scheme.RepairShards(source)
	if err != nil {
		t.Fatal(err)
	}
	const isn = int32(0)
	if _, err := table.ReceiveSource(isn+3, 0, source[3]); err != nil {
		t.Fatal(err)
	}
	var total []Rebuilt
	for i, p := range parity {
		rb, _, err := table.ReceiveParity(uint16(isn), i, 4, 0, p)
		if err != nil {
			t.Fatal(err)
		}
		total = append(total, rb...)
	}
	if len(total) != 0 {
		t.Fatalf("expected zero rebuilt packets over capacity, got %d", len(total))
	}
}

func TestBlockTableIdempotentDuplicateShard(t *testing.T) {
	table := newTestTable(t, 2, 1)
	if _, err := table.ReceiveSource(0, 0, []byte{1}); err != nil {
		t.Fatal(err)
	}
	if _, err := table.ReceiveSource(0, 0, []byte{1}); err != nil {
		t.Fatal(err)
	}
	table.mu.Lock()
	blk := table.blocks[0]
	count := blk.haveCount
	table.mu.Unlock()
	if count != 1 {
		t.Fatalf("haveCount after duplicate = %d, want 1", count)
	}
}

func TestBlockTableRejectsMismatchedK(t *testing.T) {
	table := newTestTable(t, 4, 2)
	_, malformed, err := table.ReceiveParity(0, 0, 99, 0, []byte{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if !malformed {
		t.Fatalf("expected malformed=true for mismatched k")
	}
}

func TestBlockTableTTLEvictionWithMockClock(t *testing.T) {
	ctrl := gomock.NewController(t)
	clock := NewMockClock(ctrl)

	scheme, err := NewRSScheme(2, 1)
	if err != nil {
		t.Fatal(err)
	}
	t0 := time.Unix(0, 0)
	table := NewBlockTable(scheme, 0, 100*time.Millisecond, clock, logr.Discard())

	// The first receive reads the clock twice: once in gc and once when
	// creating the block.
	clock.EXPECT().Now().Return(t0).Times(2)
	if _, err := table.ReceiveSource(0, 0, []byte{1}); err != nil {
		t.Fatal(err)
	}
	if table.Len() != 1 {
		t.Fatalf("expected one live block before TTL expiry")
	}

	// A later receive, far past the TTL, should sweep the old block on GC.
	later := t0.Add(time.Second)
	clock.EXPECT().Now().Return(later).AnyTimes()
	if _, err := table.ReceiveSource(100, 0, []byte{2}); err != nil {
		t.Fatal(err)
	}
	table.mu.Lock()
	_, stillThere := table.blocks[0]
	table.mu.Unlock()
	if stillThere {
		t.Fatalf("block at base 0 should have been evicted by TTL")
	}
}

func TestBlockTableEnforcesMaxGroups(t *testing.T) {
	scheme, err := NewRSScheme(2, 1)
	if err != nil {
		t.Fatal(err)
	}
	table := NewBlockTable(scheme, 3, time.Hour, nil, logr.Discard())
	for i := int32(0); i < 10; i++ {
		// blocks span k=2 sequence numbers, so each i is index 0 of a
		// distinct block base; no block completes, so all stay live.
		seq := i * 2
		if _, err := table.ReceiveSource(seq, 0, []byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if table.Len() > 3 {
		t.Fatalf("Len() = %d, exceeds MAX_GROUPS=3", table.Len())
	}
}
