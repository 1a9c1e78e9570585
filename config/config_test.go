package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ParsesKnownKeys(t *testing.T) {
	r := strings.NewReader(strings.Join([]string{
		"# a comment line",
		"listen-net tcp",
		"listen-addr 127.0.0.1:9999",
		"fuse-mount /mnt/memfs",
		"connector file",
		"file-path /tmp/dump.bin",
		"read-only true",
	}, "\n"))

	c, err := load(r)
	require.NoError(t, err)
	assert.Equal(t, "tcp", c.ListenNet)
	assert.Equal(t, "127.0.0.1:9999", c.ListenAddr)
	assert.Equal(t, "/mnt/memfs", c.FUSEMount)
	assert.Equal(t, "file", c.Connector)
	assert.Equal(t, "/tmp/dump.bin", c.FilePath)
	assert.True(t, c.ReadOnly)
}

func TestLoad_RejectsUnknownKey(t *testing.T) {
	r := strings.NewReader("bogus-key value\n")
	_, err := load(r)
	assert.Error(t, err)
}

func TestLoad_RejectsLineWithoutSeparator(t *testing.T) {
	r := strings.NewReader("listen-net\n")
	_, err := load(r)
	assert.Error(t, err)
}

func TestNinePMountCommand_UnixTransport(t *testing.T) {
	c := &C{NinePListenNet: "unix", NinePListenAddr: "/tmp/ns/memfs9p"}
	cmd, err := c.NinePMountCommand("/mnt/memfs9p")
	if err != nil {
		// Only linux/netbsd are supported; skip elsewhere.
		t.Skipf("unsupported GOOS for mount command synthesis: %v", err)
	}
	assert.Contains(t, cmd, "/tmp/ns/memfs9p")
	assert.Contains(t, cmd, "/mnt/memfs9p")
}
