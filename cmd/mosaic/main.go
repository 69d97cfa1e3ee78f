// Command mosaic is a minimal CLI over the Mosaic core: key
// management, record construction and verification, a local record
// store, and DHT announce/lookup/bootstrap operations.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/justinmoon/mosaic-core/bootstrap"
	"github.com/justinmoon/mosaic-core/cidutil"
	"github.com/justinmoon/mosaic-core/dht"
	"github.com/justinmoon/mosaic-core/keys"
	"github.com/justinmoon/mosaic-core/record"
	"github.com/justinmoon/mosaic-core/store"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "record":
		return cmdRecord(args[1:], out, errOut)
	case "dht":
		return cmdDHT(args[1:], out, errOut)
	case "store":
		return cmdStore(args[1:], out, errOut)
	case "bootstrap":
		return cmdBootstrap(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "mosaic: keys, records and DHT operations")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  mosaic key gen [--encrypt] [--passphrase-env VAR]")
	fmt.Fprintln(w, "  mosaic key inspect --secret <mosec0...>")
	fmt.Fprintln(w, "  mosaic record build --secret <mosec0...> --kind <name> [--payload-file <f>] [--expires <dur>] [--out <f>]")
	fmt.Fprintln(w, "  mosaic record verify <file> [--address <moref0...>]")
	fmt.Fprintln(w, "  mosaic record json <file>")
	fmt.Fprintln(w, "  mosaic record cid <file>")
	fmt.Fprintln(w, "  mosaic store put --dir <d> <file>")
	fmt.Fprintln(w, "  mosaic store get --dir <d> --address <moref0...> [--out <f>]")
	fmt.Fprintln(w, "  mosaic store list --dir <d>")
	fmt.Fprintln(w, "  mosaic dht announce --address <moref0...> --port <n> --bootstrap <host:port,...>")
	fmt.Fprintln(w, "  mosaic dht lookup --address <moref0...> --bootstrap <host:port,...>")
	fmt.Fprintln(w, "  mosaic dht serve --listen <addr:port> [--bootstrap <host:port,...>] [--verbose]")
	fmt.Fprintln(w, "  mosaic bootstrap publish-server --secret <mosec0...> --url <wss://...> [--url ...] --bootstrap <host:port,...>")
	fmt.Fprintln(w, "  mosaic bootstrap resolve-server --key <mopub0...> --bootstrap <host:port,...>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - record kinds: key-schedule, profile, microblog-root, reply-comment, blog-post, chat-message, note")
	fmt.Fprintln(w, "  - --encrypt reads the passphrase from the env var named by --passphrase-env (default MOSAIC_PASSPHRASE)")
	fmt.Fprintln(w, "  - record build writes canonical record bytes (stdout unless --out)")
}

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: mosaic key <gen|inspect> ...")
		return 2
	}
	switch args[0] {
	case "gen":
		fs := flag.NewFlagSet("key gen", flag.ContinueOnError)
		fs.SetOutput(errOut)
		encrypt := fs.Bool("encrypt", false, "print an encrypted export instead of the plain secret")
		passEnv := fs.String("passphrase-env", "MOSAIC_PASSPHRASE", "environment variable holding the passphrase for --encrypt")
		logN := fs.Uint("scrypt-log-n", 18, "scrypt work factor for --encrypt")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		sec, err := keys.Generate(rand.Reader)
		if err != nil {
			fmt.Fprintf(errOut, "generate: %v\n", err)
			return 1
		}
		fmt.Fprintf(out, "public: %s\n", sec.Public())
		if *encrypt {
			pass := os.Getenv(*passEnv)
			if pass == "" {
				fmt.Fprintf(errOut, "--encrypt needs a passphrase in $%s\n", *passEnv)
				return 2
			}
			enc, err := sec.Encrypt(pass, uint8(*logN))
			if err != nil {
				fmt.Fprintf(errOut, "encrypt: %v\n", err)
				return 1
			}
			fmt.Fprintf(out, "encrypted: %x\n", []byte(enc))
			return 0
		}
		fmt.Fprintf(out, "secret: %s\n", sec.Printable())
		return 0
	case "inspect":
		fs := flag.NewFlagSet("key inspect", flag.ContinueOnError)
		fs.SetOutput(errOut)
		secretStr := fs.String("secret", "", "printable secret key")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		sec, err := keys.ParseSecretKey(*secretStr)
		if err != nil {
			fmt.Fprintf(errOut, "parse secret: %v\n", err)
			return 1
		}
		fmt.Fprintf(out, "public: %s\n", sec.Public())
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n", args[0])
		return 2
	}
}

var kindNames = map[string]record.Kind{
	"key-schedule":   record.KindKeySchedule,
	"profile":        record.KindProfile,
	"microblog-root": record.KindMicroblogRoot,
	"reply-comment":  record.KindReplyComment,
	"blog-post":      record.KindBlogPost,
	"chat-message":   record.KindChatMessage,
	"note":           record.KindNote,
}

func cmdRecord(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: mosaic record <build|verify|json|cid> ...")
		return 2
	}
	switch args[0] {
	case "build":
		return cmdRecordBuild(args[1:], out, errOut)
	case "verify":
		return cmdRecordVerify(args[1:], out, errOut)
	case "json":
		fs := flag.NewFlagSet("record json", flag.ContinueOnError)
		fs.SetOutput(errOut)
		if err := fs.Parse(args[1:]); err != nil || fs.NArg() != 1 {
			fmt.Fprintln(errOut, "usage: mosaic record json <file>")
			return 2
		}
		rec, code := readRecord(fs.Arg(0), errOut)
		if code != 0 {
			return code
		}
		j, err := rec.ExportJSON()
		if err != nil {
			fmt.Fprintf(errOut, "export: %v\n", err)
			return 1
		}
		fmt.Fprintln(out, string(j))
		return 0
	case "cid":
		fs := flag.NewFlagSet("record cid", flag.ContinueOnError)
		fs.SetOutput(errOut)
		if err := fs.Parse(args[1:]); err != nil || fs.NArg() != 1 {
			fmt.Fprintln(errOut, "usage: mosaic record cid <file>")
			return 2
		}
		rec, code := readRecord(fs.Arg(0), errOut)
		if code != 0 {
			return code
		}
		fmt.Fprintln(out, cidutil.CIDv1RawBlake3(rec.Bytes()))
		return 0
	default:
		fmt.Fprintf(errOut, "unknown record subcommand: %s\n", args[0])
		return 2
	}
}

func cmdRecordBuild(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("record build", flag.ContinueOnError)
	fs.SetOutput(errOut)
	secretStr := fs.String("secret", "", "printable secret key of the author")
	kindName := fs.String("kind", "note", "record kind")
	payloadFile := fs.String("payload-file", "", "payload file (default: read stdin)")
	expires := fs.Duration("expires", 0, "expiration relative to now (0 = none)")
	outFile := fs.String("out", "", "write record bytes here instead of stdout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	sec, err := keys.ParseSecretKey(*secretStr)
	if err != nil {
		fmt.Fprintf(errOut, "parse secret: %v\n", err)
		return 1
	}
	kind, ok := kindNames[*kindName]
	if !ok {
		fmt.Fprintf(errOut, "unknown kind %q\n", *kindName)
		return 2
	}

	var payload []byte
	if *payloadFile != "" {
		payload, err = os.ReadFile(*payloadFile)
	} else {
		payload, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(errOut, "read payload: %v\n", err)
		return 1
	}

	h := record.Header{Kind: kind, Timestamp: record.Now()}
	if *expires > 0 {
		h.Expiration = h.Timestamp + record.Timestamp(expires.Milliseconds())
	}
	rec, err := record.Build(h, payload, sec)
	if err != nil {
		fmt.Fprintf(errOut, "build: %v\n", err)
		return 1
	}

	if *outFile != "" {
		if err := os.WriteFile(*outFile, rec.Bytes(), 0o644); err != nil {
			fmt.Fprintf(errOut, "write: %v\n", err)
			return 1
		}
	} else {
		if _, err := out.Write(rec.Bytes()); err != nil {
			fmt.Fprintf(errOut, "write: %v\n", err)
			return 1
		}
	}
	fmt.Fprintf(errOut, "address: %s\n", rec.Address())
	return 0
}

func cmdRecordVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("record verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	addrStr := fs.String("address", "", "expected address (optional)")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: mosaic record verify [--address <moref0...>] <file>")
		return 2
	}
	b, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read: %v\n", err)
		return 1
	}

	var rec *record.Record
	if *addrStr != "" {
		addr, perr := record.ParseAddress(*addrStr)
		if perr != nil {
			fmt.Fprintf(errOut, "parse address: %v\n", perr)
			return 1
		}
		rec, err = record.DecodeExpected(b, addr)
	} else {
		rec, err = record.Decode(b)
	}
	if err != nil {
		fmt.Fprintf(errOut, "decode: %v\n", err)
		return 1
	}
	if err := rec.Verify(time.Now()); err != nil {
		fmt.Fprintf(errOut, "verify: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "address: %s\n", rec.Address())
	fmt.Fprintf(out, "author:  %s\n", rec.Author())
	fmt.Fprintf(out, "kind:    %s\n", rec.Kind())
	fmt.Fprintf(out, "time:    %s\n", rec.Timestamp())
	return 0
}

func readRecord(path string, errOut io.Writer) (*record.Record, int) {
	b, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(errOut, "read: %v\n", err)
		return nil, 1
	}
	rec, err := record.Decode(b)
	if err != nil {
		fmt.Fprintf(errOut, "decode: %v\n", err)
		return nil, 1
	}
	return rec, 0
}

func dialDHT(bootstrapList string, listen string, serve, verbose bool, errOut io.Writer) (*dht.Client, int) {
	cfg := dht.Config{
		Address: listen,
		Serve:   serve,
	}
	if bootstrapList != "" {
		cfg.Bootstrap = strings.Split(bootstrapList, ",")
	}
	if verbose {
		log, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(errOut, "logger: %v\n", err)
			return nil, 1
		}
		cfg.Logger = log
	}
	client, err := dht.New(cfg)
	if err != nil {
		fmt.Fprintf(errOut, "dht: %v\n", err)
		return nil, 1
	}
	if len(cfg.Bootstrap) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := client.Bootstrap(ctx); err != nil {
			client.Close()
			fmt.Fprintf(errOut, "bootstrap: %v\n", err)
			return nil, 1
		}
	}
	return client, 0
}

func cmdDHT(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: mosaic dht <announce|lookup|serve> ...")
		return 2
	}
	switch args[0] {
	case "announce":
		fs := flag.NewFlagSet("dht announce", flag.ContinueOnError)
		fs.SetOutput(errOut)
		addrStr := fs.String("address", "", "record address to announce")
		port := fs.Int("port", 0, "port peers should connect to")
		boot := fs.String("bootstrap", "", "comma-separated bootstrap host:port list")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		addr, err := record.ParseAddress(*addrStr)
		if err != nil {
			fmt.Fprintf(errOut, "parse address: %v\n", err)
			return 1
		}
		client, code := dialDHT(*boot, ":0", false, false, errOut)
		if code != 0 {
			return code
		}
		defer client.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := client.Announce(ctx, addr, *port); err != nil {
			fmt.Fprintf(errOut, "announce: %v\n", err)
			return 1
		}
		fmt.Fprintln(out, "announced")
		return 0
	case "lookup":
		fs := flag.NewFlagSet("dht lookup", flag.ContinueOnError)
		fs.SetOutput(errOut)
		addrStr := fs.String("address", "", "record address to look up")
		boot := fs.String("bootstrap", "", "comma-separated bootstrap host:port list")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		addr, err := record.ParseAddress(*addrStr)
		if err != nil {
			fmt.Fprintf(errOut, "parse address: %v\n", err)
			return 1
		}
		client, code := dialDHT(*boot, ":0", false, false, errOut)
		if code != 0 {
			return code
		}
		defer client.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		peers, err := client.Lookup(ctx, addr)
		if err != nil {
			fmt.Fprintf(errOut, "lookup: %v\n", err)
			return 1
		}
		for _, p := range peers {
			fmt.Fprintln(out, p)
		}
		if len(peers) == 0 {
			fmt.Fprintln(errOut, "no peers")
		}
		return 0
	case "serve":
		fs := flag.NewFlagSet("dht serve", flag.ContinueOnError)
		fs.SetOutput(errOut)
		listen := fs.String("listen", ":6881", "UDP address to listen on")
		boot := fs.String("bootstrap", "", "comma-separated bootstrap host:port list")
		verbose := fs.Bool("verbose", false, "log DHT traffic")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		client, code := dialDHT(*boot, *listen, true, *verbose, errOut)
		if code != 0 {
			return code
		}
		defer client.Close()
		fmt.Fprintf(out, "serving on %s as %s\n", client.LocalAddr(), client.NodeID())
		select {} // runs until killed
	default:
		fmt.Fprintf(errOut, "unknown dht subcommand: %s\n", args[0])
		return 2
	}
}

func cmdStore(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: mosaic store <put|get|list> ...")
		return 2
	}
	switch args[0] {
	case "put":
		fs := flag.NewFlagSet("store put", flag.ContinueOnError)
		fs.SetOutput(errOut)
		dir := fs.String("dir", "", "store directory")
		if err := fs.Parse(args[1:]); err != nil || fs.NArg() != 1 {
			fmt.Fprintln(errOut, "usage: mosaic store put --dir <d> <file>")
			return 2
		}
		st, code := openStore(*dir, errOut)
		if code != 0 {
			return code
		}
		rec, code := readRecord(fs.Arg(0), errOut)
		if code != 0 {
			return code
		}
		if err := st.Put(rec); err != nil {
			fmt.Fprintf(errOut, "put: %v\n", err)
			return 1
		}
		fmt.Fprintln(out, rec.Address())
		return 0
	case "get":
		fs := flag.NewFlagSet("store get", flag.ContinueOnError)
		fs.SetOutput(errOut)
		dir := fs.String("dir", "", "store directory")
		addrStr := fs.String("address", "", "record address")
		outFile := fs.String("out", "", "write record bytes here instead of stdout")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		st, code := openStore(*dir, errOut)
		if code != 0 {
			return code
		}
		addr, err := record.ParseAddress(*addrStr)
		if err != nil {
			fmt.Fprintf(errOut, "parse address: %v\n", err)
			return 1
		}
		rec, err := st.Get(addr)
		if err != nil {
			fmt.Fprintf(errOut, "get: %v\n", err)
			return 1
		}
		if *outFile != "" {
			if err := os.WriteFile(*outFile, rec.Bytes(), 0o644); err != nil {
				fmt.Fprintf(errOut, "write: %v\n", err)
				return 1
			}
			return 0
		}
		if _, err := out.Write(rec.Bytes()); err != nil {
			fmt.Fprintf(errOut, "write: %v\n", err)
			return 1
		}
		return 0
	case "list":
		fs := flag.NewFlagSet("store list", flag.ContinueOnError)
		fs.SetOutput(errOut)
		dir := fs.String("dir", "", "store directory")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		st, code := openStore(*dir, errOut)
		if code != 0 {
			return code
		}
		addrs, err := st.List()
		if err != nil {
			fmt.Fprintf(errOut, "list: %v\n", err)
			return 1
		}
		for _, a := range addrs {
			fmt.Fprintln(out, a)
		}
		return 0
	default:
		fmt.Fprintf(errOut, "unknown store subcommand: %s\n", args[0])
		return 2
	}
}

func openStore(dir string, errOut io.Writer) (*store.FS, int) {
	if dir == "" {
		fmt.Fprintln(errOut, "--dir is required")
		return nil, 2
	}
	st, err := store.NewFS(dir)
	if err != nil {
		fmt.Fprintf(errOut, "open store: %v\n", err)
		return nil, 1
	}
	return st, 0
}

func cmdBootstrap(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: mosaic bootstrap <publish-server|resolve-server> ...")
		return 2
	}
	switch args[0] {
	case "publish-server":
		fs := flag.NewFlagSet("bootstrap publish-server", flag.ContinueOnError)
		fs.SetOutput(errOut)
		secretStr := fs.String("secret", "", "printable secret key of the server")
		boot := fs.String("bootstrap", "", "comma-separated bootstrap host:port list")
		var urls stringList
		fs.Var(&urls, "url", "transport URL (repeatable)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		sec, err := keys.ParseSecretKey(*secretStr)
		if err != nil {
			fmt.Fprintf(errOut, "parse secret: %v\n", err)
			return 1
		}
		sb, err := bootstrap.ServerBootstrapFromURLs(urls, 0)
		if err != nil {
			fmt.Fprintf(errOut, "urls: %v\n", err)
			return 1
		}
		client, code := dialDHT(*boot, ":0", false, false, errOut)
		if code != 0 {
			return code
		}
		defer client.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := sb.Publish(ctx, client, sec); err != nil {
			fmt.Fprintf(errOut, "publish: %v\n", err)
			return 1
		}
		fmt.Fprintf(out, "published seq %d for %s\n", sb.Seq(), sec.Public())
		return 0
	case "resolve-server":
		fs := flag.NewFlagSet("bootstrap resolve-server", flag.ContinueOnError)
		fs.SetOutput(errOut)
		keyStr := fs.String("key", "", "printable public key of the server")
		boot := fs.String("bootstrap", "", "comma-separated bootstrap host:port list")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		pub, err := keys.ParsePublicKey(*keyStr)
		if err != nil {
			fmt.Fprintf(errOut, "parse key: %v\n", err)
			return 1
		}
		client, code := dialDHT(*boot, ":0", false, false, errOut)
		if code != 0 {
			return code
		}
		defer client.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		sb, err := bootstrap.ResolveServer(ctx, client, pub)
		if err != nil {
			fmt.Fprintf(errOut, "resolve: %v\n", err)
			return 1
		}
		if sb == nil {
			fmt.Fprintln(errOut, "no record published")
			return 1
		}
		for _, u := range sb.URLs() {
			fmt.Fprintln(out, strings.TrimSuffix(u.String(), "/"))
		}
		return 0
	default:
		fmt.Fprintf(errOut, "unknown bootstrap subcommand: %s\n", args[0])
		return 2
	}
}

// stringList collects repeated flag values.
type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }
