package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/vs"
	"github.com/bobg/vs/store"
)

func (c maincmd) put(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}

	blob, err := io.ReadAll(os.Stdin)
	if err != nil {
		return errors.Wrap(err, "reading stdin")
	}
	k, added, err := c.s.Put(ctx, blob)
	if err != nil {
		return errors.Wrap(err, "storing blob")
	}

	log.Printf("key %s (added: %v)", c.keyStr(k), added)
	return nil
}

func (c maincmd) get(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() != 1 {
		return errors.New("usage: get KEY")
	}

	k, err := vs.ParseKey(fs.Arg(0))
	if err != nil {
		return errors.Wrapf(err, "parsing key %s", fs.Arg(0))
	}
	blob, err := c.s.Get(ctx, k)
	if err != nil {
		return errors.Wrapf(err, "getting blob %s", k)
	}
	_, err = os.Stdout.Write(blob)
	return errors.Wrap(err, "writing blob to stdout")
}

func (c maincmd) sync(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() == 0 {
		return errors.New("usage: sync CONFIG...")
	}

	stores := []vs.Store{c.s}
	for _, filename := range fs.Args() {
		s, err := storeFromConfig(ctx, filename)
		if err != nil {
			return err
		}
		stores = append(stores, s)
	}
	return store.Sync(ctx, stores)
}
