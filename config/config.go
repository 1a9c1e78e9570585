// Package config loads and saves memfsd's configuration file, grounded on
// internal/config/config.go's line-based "key value" parser and per-GOOS
// mount-command synthesis, generalized from storage-backend selection to
// connector-backend selection.
package config

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"io/ioutil"
	mathrand "math/rand"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	// DefaultBaseDirectoryPath is where memfsd stores its configuration
	// file. It defaults to $MEMFS_BASE if set, otherwise $HOME/lib/memfs.
	// Commands override this via the -base flag.
	DefaultBaseDirectoryPath string
)

func init() {
	if base := os.Getenv("MEMFS_BASE"); base != "" {
		DefaultBaseDirectoryPath = base
	} else {
		DefaultBaseDirectoryPath = os.ExpandEnv("$HOME/lib/memfs")
	}
}

// C is memfsd's configuration: which connector(s) to open at startup and
// where to expose the resulting namespace.
type C struct {
	// ListenNet/ListenAddr is where the wire protocol server
	// (wire.ServeConn) listens.
	ListenNet  string
	ListenAddr string

	// FUSEMount, if non-empty, is mounted at startup via fuseadapter.Mount.
	FUSEMount string

	// NinePListenNet/NinePListenAddr, if non-empty, start a supplemental
	// 9P listener served by ninep.Ops.
	NinePListenNet  string
	NinePListenAddr string

	// ReadOnly disallows Write through the FUSE mount and the 9P listener;
	// the wire protocol listener does not consult it.
	ReadOnly bool

	// Connector selects the connector backend bound under the name
	// "default" in the connector registry: "file", "s3", or "memory"
	// (mainly for tests). "" or "self" binds no connector; the "self" OS
	// view over the running host's /proc is mounted either way.
	Connector string

	// These only make sense if Connector is "file".
	FilePath string

	// These only make sense if Connector is "s3".
	S3Region string
	S3Bucket string
	S3Key    string

	// Directory holding memfsd's config file.
	base string
}

// Load loads the configuration from the file called "config" in the
// provided base directory.
func Load(base string) (*C, error) {
	filename := filepath.Join(base, "config")
	if fi, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	} else if fi.Mode()&0077 != 0 {
		return nil, fmt.Errorf("config.Load %q: mode is %#o, want at most %#o",
			filename, fi.Mode()&0777, fi.Mode()&0700)
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	c, err := load(f)
	if err != nil {
		return nil, err
	}
	c.base = base
	if c.ListenNet == "" && c.ListenAddr == "" {
		c.ListenNet = "unix"
	}
	if c.ListenNet == "unix" && c.ListenAddr == "" {
		c.ListenAddr = filepath.Join(clientNamespace(), "memfs")
	}
	if c.Connector == "" {
		c.Connector = "self"
	}
	return c, nil
}

func load(f io.Reader) (*C, error) {
	c := C{}
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		i := strings.IndexAny(line, " \t")
		if i == -1 {
			return nil, fmt.Errorf("load: no separator in %q", line)
		}
		switch key, val := line[:i], strings.TrimSpace(line[i:]); key {
		case "listen-net":
			c.ListenNet = val
		case "listen-addr":
			c.ListenAddr = val
		case "fuse-mount":
			c.FUSEMount = val
		case "ninep-listen-net":
			c.NinePListenNet = val
		case "ninep-listen-addr":
			c.NinePListenAddr = val
		case "read-only":
			c.ReadOnly = val == "true"
		case "connector":
			c.Connector = val
		case "file-path":
			c.FilePath = val
		case "s3-region":
			c.S3Region = val
		case "s3-bucket":
			c.S3Bucket = val
		case "s3-key":
			c.S3Key = val
		default:
			return nil, fmt.Errorf("load: unknown key %q", key)
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return &c, nil
}

func (c *C) BaseDirectory() string { return c.base }

// See https://www.kernel.org/doc/Documentation/filesystems/9p.txt.
func linuxMountCommand(net string, addr string, mountpoint string) (string, error) {
	uid, gid := os.Getuid(), os.Getgid()
	switch net {
	case "unix":
		return fmt.Sprintf("sudo mount -t 9p %v %v -o trans=unix,dfltuid=%d,dfltgid=%d", addr, mountpoint, uid, gid), nil
	case "tcp":
		parts := strings.Split(addr, ":")
		if len(parts) != 2 {
			return "", errors.Errorf("malformed host-port pair: %q", addr)
		}
		return fmt.Sprintf("sudo mount -t 9p %v %v -o trans=tcp,port=%v,dfltuid=%d,dfltgid=%d", parts[0], mountpoint, parts[1], uid, gid), nil
	default:
		return "", errors.Errorf("unhandled network type: %v", net)
	}
}

// See mount_9p(8).
func netbsdMountCommand(net string, addr string, mountpoint string) (string, error) {
	if net != "tcp" {
		return "", errors.Errorf("unsupported network: %q", net)
	}
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return "", errors.Errorf("malformed host-port pair: %q", addr)
	}
	return fmt.Sprintf("sudo mount_9p -p %v %v %v", parts[1], parts[0], mountpoint), nil
}

// NinePMountCommand returns the shell command to mount the supplemental 9P
// listener at the given mountpoint.
func (c *C) NinePMountCommand(mountpoint string) (string, error) {
	switch runtime.GOOS {
	case "linux":
		return linuxMountCommand(c.NinePListenNet, c.NinePListenAddr, mountpoint)
	case "netbsd":
		return netbsdMountCommand(c.NinePListenNet, c.NinePListenAddr, mountpoint)
	default:
		return "", fmt.Errorf("don't know how to mount on %v", runtime.GOOS)
	}
}

// Initialize generates an initial configuration at the given directory.
func Initialize(baseDir string) error {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return fmt.Errorf("%q: could not mkdir: %w", baseDir, err)
	}
	p := filepath.Join(baseDir, "config")
	_, err := os.Stat(p)
	if err == nil {
		return fmt.Errorf("%q: already exists", p)
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("%q: could not determine if it exists: %w", p, err)
	}

	var buf bytes.Buffer
	mathrand.Seed(time.Now().UnixNano())
	port := 49152 + mathrand.Intn(65535-49152)
	buf.WriteString("listen-net tcp\n")
	fmt.Fprintf(&buf, "listen-addr 127.0.0.1:%d\n", port)
	buf.WriteString("connector self\n")
	buf.WriteString("fuse-mount /mnt/memfs\n")
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Errorf("could not read random bytes: %w", err)
	}
	if err := ioutil.WriteFile(p, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("config.Initialize %q: %w", p, err)
	}
	return nil
}

var dotZero = regexp.MustCompile(`\A(.*:\d+)\.0\z`)

// clientNamespace returns the path to the name space directory.
func clientNamespace() string {
	ns := os.Getenv("NAMESPACE")
	if ns != "" {
		return ns
	}

	disp := os.Getenv("DISPLAY")
	if disp == "" {
		disp = ":0.0"
	}

	if m := dotZero.FindStringSubmatch(disp); m != nil {
		disp = m[1]
	}

	disp = strings.Replace(disp, "/", "_", -1)

	return fmt.Sprintf("/tmp/ns.%s.%s", os.Getenv("USER"), disp)
}
