package pcap

import (
	"testing"
	"time"
)

type fakeSource struct {
	queued []Packet
}

func (f *fakeSource) Dispatch(max int) ([]Packet, error) {
	if max > len(f.queued) {
		max = len(f.queued)
	}
	out := f.queued[:max]
	f.queued = f.queued[max:]
	return out, nil
}

func TestDispatchHonorsCeiling(t *testing.T) {
	src := &fakeSource{}
	for i := 0; i < pcapDispatchMax+20; i++ {
		src.queued = append(src.queued, Packet{Data: []byte{byte(i)}, TS: time.Now()})
	}

	pkts, err := src.Dispatch(pcapDispatchMax)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(pkts) != pcapDispatchMax {
		t.Fatalf("Dispatch returned %d packets, want %d", len(pkts), pcapDispatchMax)
	}
	if len(src.queued) != 20 {
		t.Fatalf("remaining queue = %d, want 20", len(src.queued))
	}
}

func TestHandlerConstructedWithSource(t *testing.T) {
	src := &fakeSource{}
	h := New(src)
	if h.src != src {
		t.Fatalf("New did not retain source")
	}
}
