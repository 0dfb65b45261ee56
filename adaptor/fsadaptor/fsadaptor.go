// Package fsadaptor is a reference Adaptor implementation serving files
// under a root directory, used to exercise the rest of the module end to
// end. Docids are paths relative to the root, joined with "/". ACLs are
// derived from a sibling "<name>.acl.json" file when present; a file with
// no sibling ACL file resolves to an empty LEAF_NODE ACL, which — per the
// acl package's default-deny rule for a residual INDETERMINATE result —
// denies everyone until a sidecar explicitly permits someone.
package fsadaptor

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/docuhub/gsadapt/acl"
	"github.com/docuhub/gsadapt/adaptor"
	"github.com/docuhub/gsadapt/config"
	"github.com/docuhub/gsadapt/docid"
	"github.com/docuhub/gsadapt/feed"
	"github.com/docuhub/gsadapt/push"
)

// aclFile is the on-disk JSON shape for a "*.acl.json" sidecar.
type aclFile struct {
	PermitUsers  []string `json:"permitUsers,omitempty"`
	DenyUsers    []string `json:"denyUsers,omitempty"`
	PermitGroups []string `json:"permitGroups,omitempty"`
	DenyGroups   []string `json:"denyGroups,omitempty"`
}

// Adaptor serves a directory tree as docids, one per regular file,
// relative to Root.
type Adaptor struct {
	Root string
}

// New builds an Adaptor rooted at root.
func New(root string) *Adaptor {
	return &Adaptor{Root: root}
}

func (a *Adaptor) InitConfig(cfg *config.Config) error { return nil }

func (a *Adaptor) Init(ctx context.Context) error { return nil }

func (a *Adaptor) Destroy(ctx context.Context) error { return nil }

// GetDocIds walks Root and pushes one record per regular, non-ACL-sidecar
// file.
func (a *Adaptor) GetDocIds(ctx context.Context, pusher push.PushContext) error {
	var batch []feed.Record
	const batchSize = 100

	err := filepath.WalkDir(a.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || isACLSidecar(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(a.Root, path)
		if err != nil {
			return err
		}
		id := docid.DocID(filepath.ToSlash(rel))

		info, err := d.Info()
		if err != nil {
			return err
		}

		record := feed.NewRecordBuilder(id).LastModified(info.ModTime()).Build()
		batch = append(batch, record)

		if len(batch) >= batchSize {
			if err := pusher.Send(ctx, batch); err != nil {
				return err
			}
			batch = nil
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(batch) > 0 {
		return pusher.Send(ctx, batch)
	}
	return nil
}

func isACLSidecar(name string) bool {
	return strings.HasSuffix(name, ".acl.json")
}

// GetDocContent serves the file at Root/id.
func (a *Adaptor) GetDocContent(ctx context.Context, req *adaptor.Request, resp adaptor.ResponseWriter) error {
	path := a.pathFor(req.ID)
	info, err := os.Stat(path)
	if err != nil {
		return adaptor.ErrNotFound
	}

	if req.HasLastAccess && !info.ModTime().After(req.LastAccess) {
		resp.RespondNotModified()
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return adaptor.ErrNotFound
	}
	defer f.Close()

	resp.SetContentType(contentTypeFor(path))
	buf := make([]byte, 32*1024)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			if _, writeErr := resp.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
		}
		if readErr != nil {
			break
		}
	}
	return nil
}

func (a *Adaptor) pathFor(id docid.DocID) string {
	return filepath.Join(a.Root, filepath.FromSlash(string(id)))
}

func contentTypeFor(path string) string {
	switch filepath.Ext(path) {
	case ".html", ".htm":
		return "text/html"
	case ".txt":
		return "text/plain"
	case ".json":
		return "application/json"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// IsUserAuthorized resolves authorization for ids by walking each one's ACL
// inheritance chain (sidecar file, then parent directory sidecars up to
// Root) via acl.Resolver/acl.Chain. A directory's ACL is its
// "<dir>/_dir.acl.json" sidecar; a missing parent sidecar resolves to the
// empty LEAF_NODE ACL, which denies.
func (a *Adaptor) IsUserAuthorized(ctx context.Context, user string, groups []string, ids []docid.DocID) (map[docid.DocID]acl.AuthzStatus, error) {
	resolver := acl.NewResolver(a)
	return resolver.ResolveBatch(ctx, ids, user, groups)
}

// Resolve implements acl.Retriever: one ACL per requested docid, read from
// its "<name>.acl.json" sidecar if present, else treated as a LEAF_NODE
// with an empty ACL (no permit or deny entries, no inheritance), which the
// evaluator denies.
func (a *Adaptor) Resolve(ctx context.Context, ids []docid.DocID) (map[docid.DocID]*acl.ACL, error) {
	out := make(map[docid.DocID]*acl.ACL, len(ids))
	for _, id := range ids {
		sidecar := a.pathFor(id) + ".acl.json"
		data, err := os.ReadFile(sidecar)
		if err != nil {
			continue // absent: resolver treats this as the empty LEAF_NODE ACL
		}
		var raw aclFile
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		parent := parentOf(id)
		built, err := acl.New(raw.PermitUsers, raw.DenyUsers, raw.PermitGroups, raw.DenyGroups, parent, parent != "", acl.AndBothPermit)
		if err != nil {
			continue
		}
		out[id] = built
	}
	return out, nil
}

// parentOf returns the docid of id's containing directory's own document,
// by convention "<dir>/_dir", or "" if id is already at the root.
func parentOf(id docid.DocID) docid.DocID {
	p := filepath.FromSlash(string(id))
	dir := filepath.Dir(p)
	if filepath.Base(p) == "_dir" {
		dir = filepath.Dir(dir)
	}
	if dir == "." || dir == "/" {
		return ""
	}
	return docid.DocID(filepath.ToSlash(dir) + "/_dir")
}
