// Package main provides the command-line client for the key-value server.
// It sends a single set, get or rm request over TCP and prints the result.
package main

import (
	"fmt"
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/jassi-singh/ember-kv/internal/client"
	"github.com/jassi-singh/ember-kv/internal/protocol"
)

const defaultAddr = "127.0.0.1:4000"

func main() {
	addr := flag.String("addr", defaultAddr, "server address (HOST:PORT)")
	verbose := flag.BoolP("verbose", "v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	os.Exit(run(*addr, flag.Args()))
}

func run(addr string, args []string) int {
	if len(args) == 0 {
		printUsage()
		return 1
	}

	switch args[0] {
	case "set":
		if len(args) != 3 {
			fmt.Fprintln(os.Stderr, "Usage: kvs-client set <key> <value>")
			return 1
		}
		return doSet(addr, args[1], args[2])
	case "get":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "Usage: kvs-client get <key>")
			return 1
		}
		return doGet(addr, args[1])
	case "rm":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "Usage: kvs-client rm <key>")
			return 1
		}
		return doRm(addr, args[1])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: kvs-client {set <key> <value> | get <key> | rm <key>} [--addr HOST:PORT]")
}

func doSet(addr, key, value string) int {
	resp, err := client.Set(addr, key, value)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if resp.Err != "" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", resp.Err)
		return 1
	}
	return 0
}

func doGet(addr, key string) int {
	resp, err := client.Get(addr, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if resp.Err != "" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", resp.Err)
		return 1
	}
	if !resp.Found || resp.Value == nil {
		fmt.Println("Key not found!")
		return 0
	}
	fmt.Println(*resp.Value)
	return 0
}

func doRm(addr, key string) int {
	resp, err := client.Rm(addr, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if resp.Err == protocol.KindNonExistentKey {
		fmt.Fprintln(os.Stderr, "Key not found!")
		return 1
	}
	if resp.Err != "" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", resp.Err)
		return 1
	}
	return 0
}
