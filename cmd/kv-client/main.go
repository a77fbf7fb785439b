package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"imgkv/internal/client"
)

const usage = `kv-client talks to a running kv-server.

Usage:
  kv-client [flags] put <key> [file]     store file (or stdin) under key
  kv-client [flags] get <key>            write the value to stdout
  kv-client [flags] gray <key>           write the grayscale PNG to stdout
  kv-client [flags] delete <key>         remove key (admin)
  kv-client [flags] clear                remove every key (admin)
  kv-client [flags] stats                print store counts (admin)

Flags:
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "kv-client: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	var serverURL, token, contentType string
	var timeout time.Duration

	flagSet := pflag.NewFlagSet("kv-client", pflag.ContinueOnError)
	flagSet.StringVar(&serverURL, "server", envOr("KV_SERVER_URL", "http://localhost:3000"), "kv-server base URL")
	flagSet.StringVar(&token, "token", os.Getenv("KV_ADMIN_TOKEN"), "admin bearer token")
	flagSet.StringVarP(&contentType, "content-type", "t", "", "content type for put")
	flagSet.DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	flagSet.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		flagSet.Usage()
		return errors.New("missing command")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	c := client.New(serverURL, token)

	cmd, rest := rest[0], rest[1:]
	switch cmd {
	case "put":
		if len(rest) < 1 || len(rest) > 2 {
			return errors.New("usage: put <key> [file]")
		}
		var body []byte
		var err error
		if len(rest) == 2 {
			body, err = os.ReadFile(rest[1])
		} else {
			body, err = io.ReadAll(stdin)
		}
		if err != nil {
			return err
		}
		if err := c.Put(ctx, rest[0], contentType, body); err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, "OK")
		return err
	case "get", "gray":
		if len(rest) != 1 {
			return fmt.Errorf("usage: %s <key>", cmd)
		}
		var body []byte
		var err error
		if cmd == "get" {
			body, _, err = c.Get(ctx, rest[0])
		} else {
			body, err = c.Grayscale(ctx, rest[0])
		}
		if err != nil {
			return err
		}
		_, err = stdout.Write(body)
		return err
	case "delete":
		if len(rest) != 1 {
			return errors.New("usage: delete <key>")
		}
		return c.Delete(ctx, rest[0])
	case "clear":
		return c.DeleteAll(ctx)
	case "stats":
		st, err := c.Stats(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
