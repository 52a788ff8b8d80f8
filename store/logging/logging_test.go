package logging

import (
	"bytes"
	"context"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/bobg/vs/store/mem"
	"github.com/bobg/vs/testutil"
)

func TestStore(t *testing.T) {
	buf := new(bytes.Buffer)
	log.SetOutput(buf)
	defer log.SetOutput(os.Stderr)

	ctx := context.Background()
	s := New(mem.New())
	testutil.ReadWrite(ctx, t, s)
	testutil.Tags(ctx, t, s)

	out := buf.String()
	for _, want := range []string{"Put ", "Get ", "TestAndSet(", "GetTag("} {
		if !strings.Contains(out, want) {
			t.Errorf("log output has no %q", want)
		}
	}
}
