package node

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/vs"
)

func TestEncodeCanonical(t *testing.T) {
	n1 := new(Node)
	n1.add(Entry{Step: "b", Kind: KindContents, Key: vs.Key{2}})
	n1.add(Entry{Step: "a", Kind: KindNode, Key: vs.Key{1}})
	n1.add(Entry{Step: "c", Kind: KindContents, Key: vs.Key{3}})

	n2 := new(Node)
	n2.add(Entry{Step: "c", Kind: KindContents, Key: vs.Key{3}})
	n2.add(Entry{Step: "a", Kind: KindNode, Key: vs.Key{1}})
	n2.add(Entry{Step: "b", Kind: KindContents, Key: vs.Key{2}})

	if !bytes.Equal(n1.Encode(), n2.Encode()) {
		t.Error("equal nodes have different encodings")
	}

	got, err := Decode(n1.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(n1.Entries(), got.Entries()); diff != "" {
		t.Errorf("mismatch after decoding (-want +got):\n%s", diff)
	}
}

func TestEmptyNode(t *testing.T) {
	var n Node
	if !n.IsEmpty() {
		t.Error("zero node is not empty")
	}
	if len(n.Encode()) != 0 {
		t.Errorf("empty node encodes to %d bytes, want 0", len(n.Encode()))
	}
	got, err := Decode(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsEmpty() {
		t.Error("decoded empty node is not empty")
	}
}

func TestDecodeErrors(t *testing.T) {
	dup := new(Node)
	dup.add(Entry{Step: "a", Kind: KindContents, Key: vs.Key{1}})
	enc := dup.Encode()
	enc = append(enc, enc...)
	if _, err := Decode(enc); err == nil {
		t.Error("got no error decoding a node with a duplicate step")
	}

	if _, err := Decode([]byte{0x0a, 0x05, 0x0a}); err == nil {
		t.Error("got no error decoding a truncated node")
	}
}

func TestPath(t *testing.T) {
	p := ParsePath("/a//b/c/")
	if diff := cmp.Diff(Path{"a", "b", "c"}, p); diff != "" {
		t.Errorf("ParsePath mismatch (-want +got):\n%s", diff)
	}
	if p.String() != "a/b/c" {
		t.Errorf("got %q, want a/b/c", p.String())
	}
	if !p.HasPrefix(Path{"a", "b"}) || p.HasPrefix(Path{"b"}) {
		t.Error("HasPrefix wrong")
	}
	q := p[:1].Append("x")
	if diff := cmp.Diff(Path{"a", "b", "c"}, p); diff != "" {
		t.Errorf("Append modified its receiver (-want +got):\n%s", diff)
	}
	if q.String() != "a/x" {
		t.Errorf("got %q, want a/x", q.String())
	}
}
