// Command memfsctl is the wire protocol client, grounded on
// cmd/muscle/muscle.go's sub-command dispatch (a flag.FlagSet per command,
// a global -base/-verbosity pair bound by newFlagSet, a final switch on
// os.Args[1]) and adapted to memfsd's namespace: ls/cat operate on the
// filesystem surface, connection manipulates the "os"/"connector"
// registries by writing text commands to "ctl".
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/nicolagi/memfs/config"
	"github.com/nicolagi/memfs/kernel"
	"github.com/nicolagi/memfs/wire"
)

var globalContext struct {
	base     string
	logLevel string
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&globalContext.base, "base", config.DefaultBaseDirectoryPath, "`directory` for configuration")
	var levels []string
	for _, l := range log.AllLevels {
		levels = append(levels, l.String())
	}
	fs.StringVar(&globalContext.logLevel, "verbosity", "warning", "sets the log `level`, among "+strings.Join(levels, ", "))
	return fs
}

func exitUsage(msg string) {
	_, _ = fmt.Fprintln(os.Stderr, msg)
	_, _ = fmt.Fprintf(os.Stderr, `Usage: %s COMMAND [ARGS]

Commands:

	ls PATH: list the children of a branch, or the path itself if it's a leaf
	cat PATH: print the contents of a leaf
	connection CMD ...: manage a connection registry; CMD is one of
		os new NAME KIND
		os ls
		os rm NAME
		connector new NAME KIND [ARGS]
		connector ls
		connector rm NAME
`, os.Args[0])
	os.Exit(2)
}

func main() {
	fs := newFlagSet("memfsctl")
	if len(os.Args) < 2 {
		exitUsage("command name required")
	}
	cmd := os.Args[1]
	_ = fs.Parse(os.Args[2:])
	rest := fs.Args()

	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.JSONFormatter{})
	ll, err := log.ParseLevel(globalContext.logLevel)
	if err != nil {
		log.Fatalf("Could not parse log level %q: %v", globalContext.logLevel, err)
	}
	log.SetLevel(ll)

	cfg, err := config.Load(globalContext.base)
	if err != nil {
		log.Fatalf("Could not load config from %q: %v", globalContext.base, err)
	}

	conn, err := net.Dial(cfg.ListenNet, cfg.ListenAddr)
	if err != nil {
		log.Fatalf("Could not dial %s!%s: %v", cfg.ListenNet, cfg.ListenAddr, err)
	}
	defer func() { _ = conn.Close() }()
	client := wire.NewClient(conn)

	switch cmd {
	case "ls":
		if len(rest) != 1 {
			exitUsage("ls: exactly one path argument required")
		}
		if err := runLs(client, rest[0]); err != nil {
			log.Fatalf("ls %s: %v", rest[0], err)
		}
	case "cat":
		if len(rest) != 1 {
			exitUsage("cat: exactly one path argument required")
		}
		if err := runCat(client, rest[0]); err != nil {
			log.Fatalf("cat %s: %v", rest[0], err)
		}
	case "connection":
		if len(rest) < 1 {
			exitUsage("connection: a sub-command is required")
		}
		if err := runConnection(client, rest); err != nil {
			log.Fatalf("connection: %v", err)
		}
	default:
		exitUsage(fmt.Sprintf("%q: command not recognized", cmd))
	}
}

func runLs(client *wire.Client, path string) error {
	isBranch, err := client.GetEntry(path)
	if err != nil {
		return err
	}
	if !isBranch {
		fmt.Println(path)
		return nil
	}
	return client.List(path, func(e kernel.ListEntry) bool {
		if e.IsBranch {
			fmt.Println(e.Name + "/")
		} else {
			fmt.Println(e.Name)
		}
		return true
	})
}

func runCat(client *wire.Client, path string) error {
	handle, err := client.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = client.CloseHandle(handle) }()

	md, err := client.Metadata(path)
	if err != nil {
		return err
	}

	const chunkSize = 64 * 1024
	var addr kernel.Size
	for addr < md.Size {
		n := uint64(chunkSize)
		if remaining := md.Size - addr; n > remaining {
			n = remaining
		}
		buf := make([]byte, n)
		if err := client.Read(handle, []kernel.RWRange{{Addr: addr, Buf: buf}}); err != nil {
			return err
		}
		if _, err := os.Stdout.Write(buf); err != nil {
			return err
		}
		addr += kernel.Size(n)
	}
	return nil
}

// runConnection writes one command to the "ctl" leaf and prints its
// response, mirroring cmd/musclefs/musclefs.go's controlFile round trip
// (write a command, read back the buffered output).
func runConnection(client *wire.Client, args []string) error {
	handle, err := client.Open("ctl")
	if err != nil {
		return err
	}
	defer func() { _ = client.CloseHandle(handle) }()

	command := []byte(strings.Join(args, " "))
	if err := client.Write(handle, []kernel.RORange{{Addr: 0, Buf: command}}); err != nil {
		return err
	}

	md, err := client.Metadata("ctl")
	if err != nil {
		return err
	}
	if md.Size == 0 {
		return nil
	}
	buf := make([]byte, md.Size)
	if err := client.Read(handle, []kernel.RWRange{{Addr: 0, Buf: buf}}); err != nil {
		return err
	}
	_, err = os.Stdout.Write(buf)
	return err
}
