package mem

import (
	"context"
	"testing"

	"github.com/bobg/vs"
	"github.com/bobg/vs/testutil"
)

func TestStore(t *testing.T) {
	testutil.ReadWrite(context.Background(), t, New())
}

func TestAllKeys(t *testing.T) {
	testutil.AllKeys(context.Background(), t, func() vs.Store { return New() })
}

func TestTags(t *testing.T) {
	testutil.Tags(context.Background(), t, New())
}
