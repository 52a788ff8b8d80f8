// Command vs is a command-line interface to versioned stores.
//
// The store is described by a config file
// (JSON, YAML, or TOML; default vsconf.json)
// whose "type" entry names a registered backend
// and whose other entries configure it.
// Environment variables prefixed VS_ override config entries.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/bobg/subcmd"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/bobg/vs"
	"github.com/bobg/vs/branch"
	"github.com/bobg/vs/commit"
	"github.com/bobg/vs/node"
	"github.com/bobg/vs/store"
	_ "github.com/bobg/vs/store/bt"
	_ "github.com/bobg/vs/store/compress"
	_ "github.com/bobg/vs/store/file"
	_ "github.com/bobg/vs/store/gcs"
	_ "github.com/bobg/vs/store/logging"
	_ "github.com/bobg/vs/store/lru"
	_ "github.com/bobg/vs/store/mem"
	_ "github.com/bobg/vs/store/pg"
	_ "github.com/bobg/vs/store/replica"
	_ "github.com/bobg/vs/store/sqlite3"
)

type maincmd struct {
	s   vs.Store
	cid bool
}

func main() {
	var (
		config = flag.String("config", "vsconf.json", "path to config file")
		cid    = flag.Bool("cid", false, "print keys as CIDs")
	)
	flag.Parse()

	if *config == "" {
		log.Fatal("Config value not set")
	}

	ctx := context.Background()

	s, err := storeFromConfig(ctx, *config)
	if err != nil {
		log.Fatal(err)
	}

	err = subcmd.Run(ctx, maincmd{s: s, cid: *cid}, flag.Args())
	if err != nil {
		log.Fatal(err)
	}
}

func (c maincmd) Subcmds() map[string]subcmd.Subcmd {
	return map[string]subcmd.Subcmd{
		"branches": c.branches,
		"get":      c.get,
		"log":      c.log,
		"ls":       c.ls,
		"merge":    c.merge,
		"put":      c.put,
		"read":     c.read,
		"rm":       c.rm,
		"sync":     c.sync,
		"write":    c.write,
	}
}

func storeFromConfig(ctx context.Context, filename string) (vs.Store, error) {
	v := viper.New()
	v.SetConfigFile(filename)
	v.SetEnvPrefix("VS")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", filename)
	}

	typ := v.GetString("type")
	if typ == "" {
		return nil, errors.Errorf("config file %s missing `type` parameter", filename)
	}

	s, err := store.Create(ctx, typ, v.AllSettings())
	return s, errors.Wrapf(err, "creating %s-type store", typ)
}

func (c maincmd) branchStore() (*branch.Store, error) {
	tags, ok := c.s.(vs.TagStore)
	if !ok {
		return nil, errors.Errorf("%T store has no tags", c.s)
	}
	return branch.New(tags, commit.New(node.New(c.s))), nil
}

func (c maincmd) keyStr(k vs.Key) string {
	if !c.cid {
		return k.String()
	}
	id, err := k.CID()
	if err != nil {
		return k.String()
	}
	return id.String()
}
