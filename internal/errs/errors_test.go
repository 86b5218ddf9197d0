package errs

import "testing"

func TestNewCarriesCodeAndMessage(t *testing.T) {
	e := New(Peer, "bad frame")

	if e.Code() != Peer {
		t.Fatalf("Code() = %v, want %v", e.Code(), Peer)
	}
	if e.Error() != "bad frame" {
		t.Fatalf("Error() = %q, want %q", e.Error(), "bad frame")
	}
	if e.HasParent() {
		t.Fatalf("HasParent() = true, want false")
	}
}

func TestAddChainsParents(t *testing.T) {
	root := New(Resource, "pool exhausted")
	wrapped := New(Fatal, "worker aborted").Add(root)

	if !wrapped.HasParent() {
		t.Fatalf("HasParent() = false, want true")
	}
	if !wrapped.Is(Resource) {
		t.Fatalf("Is(Resource) = false, want true")
	}
	if wrapped.Error() != "worker aborted: pool exhausted" {
		t.Fatalf("Error() = %q", wrapped.Error())
	}
}

func TestIsSearchesParentChain(t *testing.T) {
	deep := New(Again, "retry")
	mid := New(Peer, "reject").Add(deep)
	top := New(Fatal, "close").Add(mid)

	if !top.Is(Again) {
		t.Fatalf("Is(Again) on nested parent chain = false, want true")
	}
	if top.Is(Policy) {
		t.Fatalf("Is(Policy) = true, want false")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := New(Unknown, "io error")
	w := Wrap(cause, Peer, "read failed")

	if !w.HasParent() {
		t.Fatalf("Wrap did not attach cause as parent")
	}
	if w.Code() != Peer {
		t.Fatalf("Code() = %v, want %v", w.Code(), Peer)
	}
}

func TestCodeStringFallsBackToDecimal(t *testing.T) {
	c := Code(9001)
	if c.String() != "9001" {
		t.Fatalf("String() = %q, want %q", c.String(), "9001")
	}
}
