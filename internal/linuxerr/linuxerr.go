// Package linuxerr names the errno sentinels that 9P error replies are
// conventionally built from, so callers can wrap one with fmt.Errorf's %w
// and still have errors.Is match against syscall.Errno.
package linuxerr

import "syscall"

// EINVAL is returned for requests that are malformed in a way the caller
// should not retry as-is, such as a directory read at an offset that does
// not land on an entry boundary.
const EINVAL = syscall.EINVAL
