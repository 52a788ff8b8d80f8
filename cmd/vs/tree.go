package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/vs"
	"github.com/bobg/vs/branch"
	"github.com/bobg/vs/commit"
	"github.com/bobg/vs/node"
	"github.com/bobg/vs/view"
)

// treeFlags are the flags shared by the subcommands that work on a branch's tree.
type treeFlags struct {
	branch  *string
	message *string
	author  *string
}

func addTreeFlags(fs *flag.FlagSet) treeFlags {
	return treeFlags{
		branch:  fs.String("branch", "main", "branch name"),
		message: fs.String("m", "", "commit message"),
		author:  fs.String("author", defaultAuthor(), "commit author"),
	}
}

func defaultAuthor() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}

func (tf treeFlags) info() commit.Info {
	info := commit.Info{Date: time.Now(), Author: *tf.author}
	if *tf.message != "" {
		info.Messages = []string{*tf.message}
	}
	return info
}

// edit runs f on a view of the whole tree at the head of the branch
// and commits the result.
func (c maincmd) edit(ctx context.Context, tf treeFlags, f func(*view.View) error) error {
	bs, err := c.branchStore()
	if err != nil {
		return err
	}
	root, err := bs.Root(ctx, *tf.branch)
	if err != nil {
		return errors.Wrapf(err, "getting tree of %s", *tf.branch)
	}
	v := view.New(bs.History().Graph(), root, nil)
	if err = f(v); err != nil {
		return err
	}
	k, err := bs.Update(ctx, *tf.branch, v, tf.info())
	if err != nil {
		return errors.Wrapf(err, "committing to %s", *tf.branch)
	}
	log.Printf("%s: commit %s", *tf.branch, c.keyStr(k))
	return nil
}

func (c maincmd) write(ctx context.Context, fs *flag.FlagSet, args []string) error {
	tf := addTreeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() != 1 {
		return errors.New("usage: write [-branch NAME] [-m MESSAGE] PATH < CONTENTS")
	}
	p := node.ParsePath(fs.Arg(0))

	blob, err := io.ReadAll(os.Stdin)
	if err != nil {
		return errors.Wrap(err, "reading stdin")
	}

	return c.edit(ctx, tf, func(v *view.View) error {
		return v.Update(ctx, p, blob)
	})
}

func (c maincmd) rm(ctx context.Context, fs *flag.FlagSet, args []string) error {
	tf := addTreeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() != 1 {
		return errors.New("usage: rm [-branch NAME] [-m MESSAGE] PATH")
	}
	p := node.ParsePath(fs.Arg(0))

	return c.edit(ctx, tf, func(v *view.View) error {
		return v.Remove(ctx, p)
	})
}

// treeRoot is the root node of the tree at -commit if given,
// and at the head of -branch otherwise.
func treeRoot(ctx context.Context, bs *branch.Store, branchName, commitStr string) (vs.Key, error) {
	if commitStr == "" {
		return bs.Root(ctx, branchName)
	}
	k, err := vs.ParseKey(commitStr)
	if err != nil {
		return vs.Zero, errors.Wrapf(err, "parsing commit %s", commitStr)
	}
	root, err := bs.History().Node(ctx, k)
	if err != nil {
		return vs.Zero, err
	}
	if root == nil {
		return bs.History().Graph().Empty(ctx)
	}
	return *root, nil
}

func (c maincmd) read(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		branchName = fs.String("branch", "main", "branch name")
		commitStr  = fs.String("commit", "", "commit to read from (default: branch head)")
	)
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() != 1 {
		return errors.New("usage: read [-branch NAME | -commit KEY] PATH")
	}

	bs, err := c.branchStore()
	if err != nil {
		return err
	}
	root, err := treeRoot(ctx, bs, *branchName, *commitStr)
	if err != nil {
		return err
	}
	p := node.ParsePath(fs.Arg(0))
	k, ok, err := bs.History().Graph().ReadContents(ctx, root, p)
	if err != nil {
		return errors.Wrapf(err, "reading %s", p)
	}
	if !ok {
		return errors.Wrapf(vs.ErrNotFound, "reading %s", p)
	}
	blob, err := c.s.Get(ctx, k)
	if err != nil {
		return errors.Wrapf(err, "getting contents of %s", p)
	}
	_, err = os.Stdout.Write(blob)
	return errors.Wrap(err, "writing contents to stdout")
}

func (c maincmd) ls(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		branchName = fs.String("branch", "main", "branch name")
		commitStr  = fs.String("commit", "", "commit to list from (default: branch head)")
		long       = fs.Bool("l", false, "show keys")
	)
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}

	bs, err := c.branchStore()
	if err != nil {
		return err
	}
	root, err := treeRoot(ctx, bs, *branchName, *commitStr)
	if err != nil {
		return err
	}

	g := bs.History().Graph()
	p := node.ParsePath(strings.Join(fs.Args(), "/"))
	nk, ok, err := g.ReadNode(ctx, root, p)
	if err != nil {
		return errors.Wrapf(err, "reading %s", p)
	}
	if !ok {
		return errors.Wrapf(vs.ErrNotFound, "reading %s", p)
	}
	entries, err := g.List(ctx, nk)
	if err != nil {
		return errors.Wrapf(err, "listing %s", p)
	}
	for _, e := range entries {
		name := e.Step
		if e.Kind == node.KindNode {
			name += "/"
		}
		if *long {
			fmt.Printf("%s %s\n", c.keyStr(e.Key), name)
		} else {
			fmt.Println(name)
		}
	}
	return nil
}
