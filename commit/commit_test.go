package commit

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/vs"
)

func TestCodec(t *testing.T) {
	root := vs.Blob("root").Key()
	c := &Commit{
		Node:    &root,
		Parents: []vs.Key{vs.Blob("p2").Key(), vs.Blob("p1").Key()},
		Info: Info{
			Date:     time.Date(2021, 8, 7, 15, 13, 35, 0, time.UTC),
			Author:   "bobg",
			Messages: []string{"first line", "second line"},
			ID:       "x",
		},
	}
	got, err := Decode(c.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(c, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if got.Key() != c.Key() {
		t.Error("key changed after decoding")
	}

	bare, err := Decode((&Commit{}).Encode())
	if err != nil {
		t.Fatal(err)
	}
	if bare.Node != nil || len(bare.Parents) != 0 || !bare.Date.IsZero() {
		t.Errorf("got %+v, want the zero commit", bare)
	}
}
