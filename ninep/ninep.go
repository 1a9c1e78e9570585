// Package ninep is a supplemental 9P presentation for a kernel.Frontend,
// grounded on cmd/musclefs/musclefs.go's ops/fsNode pattern (srv.ReqOps,
// srv.FidOps, one *sync.Mutex serializing the whole tree). Unlike musclefs,
// path resolution and metadata both come straight from the Frontend, so a
// fid's Aux is just the resolved path plus its last-known NodeMetadata,
// rather than a node type of its own.
package ninep

import (
	"fmt"
	"os/user"
	"strings"
	"sync"
	"time"

	"github.com/lionkov/go9p/p"
	"github.com/lionkov/go9p/p/srv"

	"github.com/nicolagi/memfs/internal/p9util"
	"github.com/nicolagi/memfs/kernel"
)

var (
	_ srv.ReqOps = (*Ops)(nil)
	_ srv.FidOps = (*Ops)(nil)
)

// fidNode is what Fid.Aux points to: the path this fid has walked to, and a
// handle if it's been opened as a file.
type fidNode struct {
	path     string
	md       kernel.NodeMetadata
	handle   uint64
	isOpen   bool
	readBuf  p9util.DirBuffer
	listPath string
}

// Ops adapts a kernel.Frontend to go9p's srv.ReqOps/srv.FidOps, serializing
// every request behind one mutex since Frontend's own locking is per call,
// not per fid walk.
type Ops struct {
	mu       sync.Mutex
	frontend *kernel.Frontend
	readonly bool
	root     *fidNode
	uid, gid string
}

func NewOps(frontend *kernel.Frontend, readonly bool) (*Ops, error) {
	u, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("ninep: resolve current user: %w", err)
	}
	g, err := user.LookupGroupId(u.Gid)
	if err != nil {
		return nil, fmt.Errorf("ninep: resolve current group: %w", err)
	}
	md, kerr := frontend.Metadata("")
	if kerr != nil {
		return nil, fmt.Errorf("ninep: resolve root metadata: %w", kerr)
	}
	return &Ops{
		frontend: frontend,
		readonly: readonly,
		root:     &fidNode{path: "", md: md},
		uid:      u.Username,
		gid:      g.Name,
	}, nil
}

func pathQid(path string, md kernel.NodeMetadata) (qid p.Qid) {
	qid.Path = fnv64a(path)
	if md.IsBranch {
		qid.Type = p.QTDIR
	}
	return
}

// fnv64a gives a stable qid path without an auto-incrementing node ID
// table: paths here are resolved fresh on every walk rather than cached as
// stable node identities, so a content-derived qid path is the simplest
// thing that stays stable for the same path within one Frontend's lifetime.
func fnv64a(s string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}

func dirFromMetadata(path string, md kernel.NodeMetadata, uid, gid string) p.Dir {
	name := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		name = path[i+1:]
	}
	if name == "" {
		name = "/"
	}
	mode := uint32(0444)
	if md.IsBranch {
		mode = p.DMDIR | 0555
	} else if md.HasWrite {
		mode |= 0200
	}
	now := uint32(time.Now().Unix())
	return p.Dir{
		Qid:   pathQid(path, md),
		Mode:  mode,
		Uid:   uid,
		Gid:   gid,
		Atime: now,
		Mtime: now,
		Name:  name,
		Length: md.Size,
	}
}

func logRespondError(r *srv.Req, err error) {
	r.RespondError(err)
}

func (o *Ops) ReqProcess(r *srv.Req)  { r.Process() }
func (o *Ops) ReqRespond(r *srv.Req)  { r.PostProcess() }
func (o *Ops) FidDestroy(fid *srv.Fid) {
	if fid.Aux == nil {
		return
	}
	node := fid.Aux.(*fidNode)
	if node.isOpen {
		_ = o.frontend.Close(node.handle)
	}
}

func (o *Ops) Attach(r *srv.Req) {
	o.mu.Lock()
	defer o.mu.Unlock()
	qid := pathQid(o.root.path, o.root.md)
	r.Fid.Aux = &fidNode{path: o.root.path, md: o.root.md}
	r.RespondRattach(&qid)
}

func (o *Ops) Walk(r *srv.Req) {
	o.mu.Lock()
	defer o.mu.Unlock()

	node := r.Fid.Aux.(*fidNode)
	if len(r.Tc.Wname) == 0 {
		r.Newfid.Aux = &fidNode{path: node.path, md: node.md}
		r.RespondRwalk(nil)
		return
	}

	path := node.path
	var qids []p.Qid
	var md kernel.NodeMetadata
	for _, name := range r.Tc.Wname {
		if name == ".." {
			if i := strings.LastIndexByte(path, '/'); i >= 0 {
				path = path[:i]
			} else {
				path = ""
			}
		} else if path == "" {
			path = name
		} else {
			path = path + "/" + name
		}
		var kerr *kernel.Error
		md, kerr = o.frontend.Metadata(path)
		if kerr != nil {
			break
		}
		qids = append(qids, pathQid(path, md))
	}

	if len(qids) == 0 && len(r.Tc.Wname) > 0 {
		logRespondError(r, fmt.Errorf("no such file or directory"))
		return
	}
	if len(qids) == len(r.Tc.Wname) {
		r.Newfid.Aux = &fidNode{path: path, md: md}
	}
	r.RespondRwalk(qids)
}

func (o *Ops) Open(r *srv.Req) {
	o.mu.Lock()
	defer o.mu.Unlock()
	node := r.Fid.Aux.(*fidNode)
	qid := pathQid(node.path, node.md)
	if node.md.IsBranch {
		node.listPath = node.path
		if err := o.fillDirBuffer(node); err != nil {
			logRespondError(r, err)
			return
		}
		r.RespondRopen(&qid, 0)
		return
	}
	handle, kerr := o.frontend.Open(node.path)
	if kerr != nil {
		logRespondError(r, kerr)
		return
	}
	node.handle = handle
	node.isOpen = true
	r.RespondRopen(&qid, 0)
}

func (o *Ops) fillDirBuffer(node *fidNode) error {
	node.readBuf.Reset()
	kerr := o.frontend.List(node.listPath, func(e kernel.ListEntry) bool {
		childPath := e.Name
		if node.listPath != "" {
			childPath = node.listPath + "/" + e.Name
		}
		md := kernel.NodeMetadata{IsBranch: e.IsBranch}
		dir := dirFromMetadata(childPath, md, o.uid, o.gid)
		node.readBuf.Write(&dir)
		return true
	})
	if kerr != nil {
		return kerr
	}
	return nil
}

func (o *Ops) Create(r *srv.Req) {
	logRespondError(r, fmt.Errorf("create: not supported"))
}

func (o *Ops) Read(r *srv.Req) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := p.InitRread(r.Rc, r.Tc.Count); err != nil {
		logRespondError(r, err)
		return
	}
	node := r.Fid.Aux.(*fidNode)
	if node.md.IsBranch {
		count, err := node.readBuf.Read(r.Rc.Data[:r.Tc.Count], int(r.Tc.Offset))
		if err != nil {
			logRespondError(r, err)
			return
		}
		p.SetRreadCount(r.Rc, uint32(count))
		r.Respond()
		return
	}

	var n int
	var readErr *kernel.Error
	kerr := o.frontend.Read(node.handle, kernel.VecOps[kernel.RWRange]{
		In: []kernel.RWRange{{Addr: r.Tc.Offset, Buf: r.Rc.Data[:r.Tc.Count]}},
		Out: func(rng kernel.RWRange) bool {
			n += len(rng.Buf)
			return true
		},
		OutFail: func(fr kernel.FailRange[kernel.RWRange]) bool {
			readErr = fr.Err
			return true
		},
	})
	if kerr != nil {
		logRespondError(r, kerr)
		return
	}
	if n == 0 && readErr != nil && readErr.Kind != kernel.KindOutOfBounds {
		logRespondError(r, readErr)
		return
	}
	p.SetRreadCount(r.Rc, uint32(n))
	r.Respond()
}

func (o *Ops) Write(r *srv.Req) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.readonly {
		logRespondError(r, fmt.Errorf("write: read-only mount"))
		return
	}
	node := r.Fid.Aux.(*fidNode)
	if node.md.IsBranch {
		logRespondError(r, fmt.Errorf("write: is a directory"))
		return
	}
	var n int
	var failErr *kernel.Error
	kerr := o.frontend.Write(node.handle, kernel.VecOps[kernel.RORange]{
		In: []kernel.RORange{{Addr: r.Tc.Offset, Buf: r.Tc.Data}},
		Out: func(rng kernel.RORange) bool {
			n += len(rng.Buf)
			return true
		},
		OutFail: func(fr kernel.FailRange[kernel.RORange]) bool {
			failErr = fr.Err
			return true
		},
	})
	if kerr != nil {
		logRespondError(r, kerr)
		return
	}
	if n == 0 && failErr != nil {
		logRespondError(r, failErr)
		return
	}
	r.RespondRwrite(uint32(n))
}

func (o *Ops) Clunk(r *srv.Req) {
	o.mu.Lock()
	defer o.mu.Unlock()
	node := r.Fid.Aux.(*fidNode)
	if node.isOpen {
		_ = o.frontend.Close(node.handle)
		node.isOpen = false
	}
	r.RespondRclunk()
}

func (o *Ops) Remove(r *srv.Req) {
	logRespondError(r, fmt.Errorf("remove: not supported"))
}

func (o *Ops) Stat(r *srv.Req) {
	o.mu.Lock()
	defer o.mu.Unlock()
	node := r.Fid.Aux.(*fidNode)
	dir := dirFromMetadata(node.path, node.md, o.uid, o.gid)
	r.RespondRstat(&dir)
}

func (o *Ops) Wstat(r *srv.Req) {
	logRespondError(r, fmt.Errorf("wstat: not supported"))
}
