// Command bigdict inspects and manipulates a persisted dict store from the
// shell. Values are treated as arbitrary JSON documents.
//
//	bigdict -path ./store create -shards 4
//	bigdict -path ./store set mykey '{"a": 1}'
//	bigdict -path ./store get mykey
//	bigdict -path ./store del mykey
//	bigdict -path ./store keys
//	bigdict -path ./store len
//	bigdict -path ./store compact
//	bigdict -path ./store destroy
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	gojson "github.com/goccy/go-json"

	"bigdict/internal/logging"
	"bigdict/pkg/bigdict"
)

func main() {
	path := flag.String("path", "", "store directory")
	logLevel := flag.String("log-level", "warn", "log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	flag.Usage = usage
	flag.Parse()

	logging.Init(*logLevel, *logFormat)

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	if *path == "" {
		log.Fatal("-path is required")
	}

	cmd, args := args[0], args[1:]
	if err := run(*path, cmd, args); err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func run(path, cmd string, args []string) error {
	switch cmd {
	case "create":
		return runCreate(path, args)
	case "set":
		return runSet(path, args)
	case "get":
		return runGet(path, args)
	case "del":
		return runDel(path, args)
	case "keys":
		return runKeys(path)
	case "len":
		return runLen(path)
	case "compact":
		return runCompact(path)
	case "destroy":
		return runDestroy(path)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func openRO(path string) (*bigdict.Dict[any], error) {
	return bigdict.Open[any](path)
}

func openRW(path string) (*bigdict.Dict[any], error) {
	return bigdict.Open[any](path, bigdict.WithReadWrite())
}

func runCreate(path string, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	shards := fs.Int("shards", 1, "shard count, a power of two in [1,256]")
	fs.Parse(args)

	d, err := bigdict.New[any](path, bigdict.WithShards(*shards))
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Flush(); err != nil {
		return err
	}
	fmt.Printf("created %s with %d shards\n", d.Path(), d.Shards())
	return nil
}

func runSet(path string, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: set <key> <json-value>")
	}
	var v any
	if err := gojson.Unmarshal([]byte(args[1]), &v); err != nil {
		return fmt.Errorf("value is not valid JSON: %w", err)
	}
	d, err := openRW(path)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Set(args[0], v); err != nil {
		return err
	}
	return d.Flush()
}

func runGet(path string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: get <key>")
	}
	d, err := openRO(path)
	if err != nil {
		return err
	}
	defer d.Close()
	raw, ok, err := d.GetBuffer(args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("key not found")
	}
	fmt.Println(string(raw))
	return nil
}

func runDel(path string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: del <key>")
	}
	d, err := openRW(path)
	if err != nil {
		return err
	}
	defer d.Close()
	existed, err := d.Delete(args[0])
	if err != nil {
		return err
	}
	if !existed {
		return fmt.Errorf("key not found")
	}
	return d.Flush()
}

func runKeys(path string) error {
	d, err := openRO(path)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.ForEachKey(func(k string) error {
		fmt.Println(k)
		return nil
	})
}

func runLen(path string) error {
	d, err := openRO(path)
	if err != nil {
		return err
	}
	defer d.Close()
	n, err := d.Len()
	if err != nil {
		return err
	}
	fmt.Println(n)
	return nil
}

func runCompact(path string) error {
	d, err := openRW(path)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Compact()
}

func runDestroy(path string) error {
	d, err := openRW(path)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Destroy()
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: bigdict -path <dir> [flags] <command> [args]

commands:
  create [-shards N]     create a new store
  set <key> <json>       store a JSON value under key
  get <key>              print the raw stored value
  del <key>              delete key
  keys                   list all keys
  len                    print the entry count
  compact                rewrite shards to reclaim space
  destroy                delete the store from disk

flags:
`)
	flag.PrintDefaults()
}
