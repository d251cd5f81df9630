package imapfs

import (
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
)

// dirHandle is a snapshot of one directory's entries taken at OpenDir time.
// Unlike the mail store, which has no notion of a stable listing cursor,
// this snapshot lets ReadDir answer repeated, possibly-paginated requests
// consistently even if the directory is mutated mid-listing.
type dirHandle struct {
	entries []fuseutil.Dirent
}

func newDirHandle(self, parent fuseops.InodeID, children map[string]fuseops.InodeID) *dirHandle {
	entries := make([]fuseutil.Dirent, 0, len(children)+2)
	entries = append(entries,
		fuseutil.Dirent{Offset: 1, Inode: self, Name: ".", Type: fuseutil.DT_Directory},
		fuseutil.Dirent{Offset: 2, Inode: parent, Name: "..", Type: fuseutil.DT_Directory},
	)

	offset := fuseops.DirOffset(3)
	for name, inode := range children {
		entries = append(entries, fuseutil.Dirent{
			Offset: offset,
			Inode:  inode,
			Name:   name,
			Type:   fuseutil.DT_Unknown,
		})
		offset++
	}

	return &dirHandle{entries: entries}
}

// ReadDir fills op.Dst starting at op.Offset and records the number of bytes
// written in op.BytesRead. Entries are indexed by position, not by any mail-store cursor:
// offset N means "the Nth entry in this handle's snapshot".
func (dh *dirHandle) ReadDir(op *fuseops.ReadDirOp) {
	index := int(op.Offset)
	if index < 0 || index > len(dh.entries) {
		op.BytesRead = 0
		return
	}

	n := 0
	for _, e := range dh.entries[index:] {
		written := fuseutil.WriteDirent(op.Dst[n:], e)
		if written == 0 {
			break
		}
		n += written
	}
	op.BytesRead = n
}
