package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/vs"
	"github.com/bobg/vs/commit"
)

func (c maincmd) log(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		branchName = fs.String("branch", "main", "branch name")
		depth      = fs.Int("depth", -1, "how many generations to show (negative for all)")
	)
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}

	bs, err := c.branchStore()
	if err != nil {
		return err
	}
	head, err := bs.Head(ctx, *branchName)
	if err != nil {
		return errors.Wrapf(err, "getting head of %s", *branchName)
	}
	h := bs.History()
	keys, err := h.Ancestors(ctx, head, *depth)
	if err != nil {
		return errors.Wrapf(err, "listing history of %s", *branchName)
	}
	for _, k := range keys {
		cm, err := h.Get(ctx, k)
		if err != nil {
			return err
		}
		fmt.Printf("commit %s\n", c.keyStr(k))
		if len(cm.Parents) > 1 {
			parents := make([]string, 0, len(cm.Parents))
			for _, p := range cm.Parents {
				parents = append(parents, c.keyStr(p))
			}
			fmt.Printf("Merge: %s\n", strings.Join(parents, " "))
		}
		if cm.Author != "" {
			fmt.Printf("Author: %s\n", cm.Author)
		}
		if !cm.Date.IsZero() {
			fmt.Printf("Date:   %s\n", cm.Date.Local().Format(time.RFC1123Z))
		}
		for _, m := range cm.Messages {
			fmt.Printf("\n    %s\n", m)
		}
		fmt.Println()
	}
	return nil
}

func (c maincmd) merge(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		from    = fs.String("from", "", "branch to merge from")
		into    = fs.String("into", "main", "branch to merge into")
		message = fs.String("m", "", "commit message")
		author  = fs.String("author", defaultAuthor(), "commit author")
	)
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if *from == "" {
		return errors.New("missing -from")
	}

	bs, err := c.branchStore()
	if err != nil {
		return err
	}
	src, err := bs.Head(ctx, *from)
	if err != nil {
		return errors.Wrapf(err, "getting head of %s", *from)
	}

	info := commit.Info{Date: time.Now(), Author: *author}
	if *message != "" {
		info.Messages = []string{*message}
	} else {
		info.Messages = []string{fmt.Sprintf("Merge %s into %s", *from, *into)}
	}
	k, err := bs.Merge(ctx, *into, src, info, nil)
	if err != nil {
		return err
	}
	log.Printf("%s: %s", *into, c.keyStr(k))
	return nil
}

func (c maincmd) branches(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}

	bs, err := c.branchStore()
	if err != nil {
		return err
	}
	return bs.List(ctx, func(name string, head vs.Key) error {
		fmt.Printf("%s %s\n", c.keyStr(head), name)
		return nil
	})
}
