// Package imapfs implements the userspace-filesystem bridge surface: root
// discovery/initialization, the open-node cache, path resolution, and the
// operation handlers fuseutil.FileSystemServer dispatches to.
package imapfs

import (
	"context"
	"errors"
	"os"
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/syncutil"

	"github.com/waweber/imapfs/cfg"
	"github.com/waweber/imapfs/internal/mailbox"
	"github.com/waweber/imapfs/internal/node"
)

// openNode is one live entry in the inode table: a decoded Node plus the
// bookkeeping the bridge's lookup-count protocol needs.
type openNode struct {
	node        node.Node
	parent      fuseops.InodeID
	name        string
	lookupCount uint64
}

// FileSystem answers the bridge's operation surface against a single
// mailbox.Store. Every handler that touches the inode tables or a node
// holds fs.mu for its whole duration, so operations run one at a time even
// when the bridge dispatches them concurrently. The store connection is
// guarded by the Store implementation itself.
type FileSystem struct {
	fuseutil.NotImplementedFileSystem

	store    mailbox.Store
	uid      uint32
	gid      uint32
	fileMode os.FileMode
	dirMode  os.FileMode

	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	nextInodeID fuseops.InodeID
	// GUARDED_BY(mu)
	inodes map[fuseops.InodeID]*openNode
	// GUARDED_BY(mu)
	nodeInodes map[string]fuseops.InodeID

	// GUARDED_BY(mu)
	nextHandleID fuseops.HandleID
	// GUARDED_BY(mu)
	dirHandles map[fuseops.HandleID]*dirHandle
}

// New performs the startup handshake against store and returns a FileSystem
// ready to be handed to fuseutil.NewFileSystemServer.
//
// Root discovery: fetching the all-zero identifier either finds an
// existing, well-formed root directory, finds nothing (a brand new
// mailbox, which is initialized on the spot), or finds something that does
// not decrypt to a directory under the configured key (ErrWrongKey).
func New(ctx context.Context, store mailbox.Store, fsCfg cfg.FileSystemConfig) (*FileSystem, error) {
	root, err := node.Open(ctx, store, node.RootID)
	switch {
	case errors.Is(err, mailbox.ErrNotFound):
		root = node.InitRoot(store)
		if err := root.Flush(ctx); err != nil {
			return nil, err
		}
	case errors.Is(err, node.ErrCorrupt):
		return nil, ErrWrongKey
	case err != nil:
		return nil, err
	case !root.IsDir():
		return nil, ErrWrongKey
	}

	fs := &FileSystem{
		store:       store,
		uid:         fsCfg.Uid,
		gid:         fsCfg.Gid,
		fileMode:    os.FileMode(fsCfg.FileMode),
		dirMode:     os.FileMode(fsCfg.DirMode),
		nextInodeID: fuseops.RootInodeID + 1,
		inodes:      make(map[fuseops.InodeID]*openNode),
		nodeInodes:  make(map[string]fuseops.InodeID),
		dirHandles:  make(map[fuseops.HandleID]*dirHandle),
	}
	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)

	fs.inodes[fuseops.RootInodeID] = &openNode{
		node:        root,
		parent:      fuseops.RootInodeID,
		lookupCount: 1,
	}
	fs.nodeInodes[root.ID()] = fuseops.RootInodeID

	return fs, nil
}

func (fs *FileSystem) checkInvariants() {
	for id, on := range fs.inodes {
		if fs.nodeInodes[on.node.ID()] != id {
			panic("imapfs: inode/node table mismatch")
		}
	}
}

func (fs *FileSystem) lookupLocked(id fuseops.InodeID) (*openNode, error) {
	on, ok := fs.inodes[id]
	if !ok {
		return nil, fuse.ENOENT
	}
	return on, nil
}

// inodeForChild returns the inode bookkeeping for a directory's child,
// opening it from the store and minting a fresh inode ID on first lookup.
// The caller holds fs.mu.
func (fs *FileSystem) inodeForChild(ctx context.Context, parent fuseops.InodeID, childID, name string) (fuseops.InodeID, *openNode, error) {
	if id, ok := fs.nodeInodes[childID]; ok {
		on := fs.inodes[id]
		on.lookupCount++
		return id, on, nil
	}

	n, err := node.Open(ctx, fs.store, childID)
	if err != nil {
		return 0, nil, mapErr(err)
	}

	id := fs.nextInodeID
	fs.nextInodeID++
	on := &openNode{node: n, parent: parent, name: name, lookupCount: 1}
	fs.inodes[id] = on
	fs.nodeInodes[childID] = id
	return id, on, nil
}

func (fs *FileSystem) attributesFor(n node.Node) fuseops.InodeAttributes {
	attr := n.Attr()
	mode := fs.fileMode
	nlink := uint32(1)
	if attr.IsDir {
		mode = fs.dirMode | os.ModeDir
		nlink = 2
	}
	return fuseops.InodeAttributes{
		Size:  uint64(attr.Size),
		Nlink: nlink,
		Mode:  mode,
		Uid:   fs.uid,
		Gid:   fs.gid,
	}
}

func (fs *FileSystem) Init(ctx context.Context, op *fuseops.InitOp) error {
	return nil
}

func (fs *FileSystem) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	op.BlockSize = node.BlockSize
	op.IoSize = node.BlockSize
	return nil
}

func (fs *FileSystem) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentOn, err := fs.lookupLocked(op.Parent)
	if err != nil {
		return err
	}
	parentDir, ok := parentOn.node.(*node.Dir)
	if !ok {
		return syscall.ENOTDIR
	}

	childID, exists := parentDir.ChildByName(op.Name)
	if !exists {
		return fuse.ENOENT
	}

	id, on, err := fs.inodeForChild(ctx, op.Parent, childID, op.Name)
	if err != nil {
		return err
	}

	op.Entry.Child = id
	op.Entry.Attributes = fs.attributesFor(on.node)
	return nil
}

func (fs *FileSystem) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	on, err := fs.lookupLocked(op.Inode)
	if err != nil {
		return err
	}
	op.Attributes = fs.attributesFor(on.node)
	return nil
}

// SetInodeAttributes handles truncate (op.Size) and utime (op.Mtime).
// Mode/ownership changes are accepted but not persisted: the filesystem
// reports fixed modes and ownership for every node.
func (fs *FileSystem) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	on, err := fs.lookupLocked(op.Inode)
	if err != nil {
		return err
	}

	if op.Size != nil {
		file, ok := on.node.(*node.File)
		if !ok {
			return syscall.EISDIR
		}
		if err := file.Truncate(ctx, int64(*op.Size)); err != nil {
			return err
		}
	}
	if op.Mtime != nil {
		on.node.Touch()
	}

	op.Attributes = fs.attributesFor(on.node)
	return nil
}

func (fs *FileSystem) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	on, ok := fs.inodes[op.Inode]
	if !ok {
		return nil
	}
	if op.N >= on.lookupCount {
		delete(fs.inodes, op.Inode)
		delete(fs.nodeInodes, on.node.ID())
	} else {
		on.lookupCount -= op.N
	}
	return nil
}

func (fs *FileSystem) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentOn, err := fs.lookupLocked(op.Parent)
	if err != nil {
		return err
	}
	parentDir, ok := parentOn.node.(*node.Dir)
	if !ok {
		return syscall.ENOTDIR
	}
	if _, exists := parentDir.ChildByName(op.Name); exists {
		return fuse.EEXIST
	}

	child := node.NewDir(fs.store)
	if err := child.Flush(ctx); err != nil {
		return err
	}

	parentDir.AddChild(child.ID(), op.Name)
	if err := parentDir.Flush(ctx); err != nil {
		return err
	}

	id := fs.nextInodeID
	fs.nextInodeID++
	fs.inodes[id] = &openNode{node: child, parent: op.Parent, name: op.Name, lookupCount: 1}
	fs.nodeInodes[child.ID()] = id

	op.Entry.Child = id
	op.Entry.Attributes = fs.attributesFor(child)
	return nil
}

func (fs *FileSystem) mknodLocked(ctx context.Context, parent fuseops.InodeID, name string) (fuseops.InodeID, *node.File, error) {
	parentOn, err := fs.lookupLocked(parent)
	if err != nil {
		return 0, nil, err
	}
	parentDir, ok := parentOn.node.(*node.Dir)
	if !ok {
		return 0, nil, syscall.ENOTDIR
	}
	if _, exists := parentDir.ChildByName(name); exists {
		return 0, nil, fuse.EEXIST
	}

	child := node.NewFile(fs.store)
	if err := child.Flush(ctx); err != nil {
		return 0, nil, err
	}

	parentDir.AddChild(child.ID(), name)
	if err := parentDir.Flush(ctx); err != nil {
		return 0, nil, err
	}

	id := fs.nextInodeID
	fs.nextInodeID++
	fs.inodes[id] = &openNode{node: child, parent: parent, name: name, lookupCount: 1}
	fs.nodeInodes[child.ID()] = id

	return id, child, nil
}

func (fs *FileSystem) MkNode(ctx context.Context, op *fuseops.MkNodeOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	id, child, err := fs.mknodLocked(ctx, op.Parent, op.Name)
	if err != nil {
		return err
	}

	op.Entry.Child = id
	op.Entry.Attributes = fs.attributesFor(child)
	return nil
}

func (fs *FileSystem) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	id, child, err := fs.mknodLocked(ctx, op.Parent, op.Name)
	if err != nil {
		return err
	}

	op.Entry.Child = id
	op.Entry.Attributes = fs.attributesFor(child)
	op.Handle = fuseops.HandleID(id)
	return nil
}

func (fs *FileSystem) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentOn, err := fs.lookupLocked(op.Parent)
	if err != nil {
		return err
	}
	parentDir, ok := parentOn.node.(*node.Dir)
	if !ok {
		return syscall.ENOTDIR
	}

	childID, exists := parentDir.ChildByName(op.Name)
	if !exists {
		return fuse.ENOENT
	}

	childInodeID, on, err := fs.inodeForChild(ctx, op.Parent, childID, op.Name)
	if err != nil {
		return err
	}
	childDir, ok := on.node.(*node.Dir)
	if !ok {
		return syscall.ENOTDIR
	}
	if !childDir.Empty() {
		return fuse.ENOTEMPTY
	}

	parentDir.RemoveChild(childID)
	if err := parentDir.Flush(ctx); err != nil {
		return err
	}
	if err := childDir.Delete(ctx); err != nil {
		return err
	}

	delete(fs.inodes, childInodeID)
	delete(fs.nodeInodes, childID)
	return nil
}

func (fs *FileSystem) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentOn, err := fs.lookupLocked(op.Parent)
	if err != nil {
		return err
	}
	parentDir, ok := parentOn.node.(*node.Dir)
	if !ok {
		return syscall.ENOTDIR
	}

	childID, exists := parentDir.ChildByName(op.Name)
	if !exists {
		return fuse.ENOENT
	}

	childInodeID, on, err := fs.inodeForChild(ctx, op.Parent, childID, op.Name)
	if err != nil {
		return err
	}
	childFile, ok := on.node.(*node.File)
	if !ok {
		return syscall.EISDIR
	}

	parentDir.RemoveChild(childID)
	if err := parentDir.Flush(ctx); err != nil {
		return err
	}
	if err := childFile.Delete(ctx); err != nil {
		return err
	}

	delete(fs.inodes, childInodeID)
	delete(fs.nodeInodes, childID)
	return nil
}

// Rename renames a child within or across parent directories. Overwrite is
// always refused, matching the mailbox model's lack of atomic replace.
//
// Fixes a bug present in the original: an inter-parent rename must add the
// child to the new parent under the NEW name, not the old one.
func (fs *FileSystem) Rename(ctx context.Context, op *fuseops.RenameOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	oldParentOn, err := fs.lookupLocked(op.OldParent)
	if err != nil {
		return err
	}
	oldParentDir, ok := oldParentOn.node.(*node.Dir)
	if !ok {
		return syscall.ENOTDIR
	}

	childID, exists := oldParentDir.ChildByName(op.OldName)
	if !exists {
		return fuse.ENOENT
	}

	newParentOn, err := fs.lookupLocked(op.NewParent)
	if err != nil {
		return err
	}
	newParentDir, ok := newParentOn.node.(*node.Dir)
	if !ok {
		return syscall.ENOTDIR
	}

	if _, exists := newParentDir.ChildByName(op.NewName); exists {
		return fuse.EEXIST
	}

	oldParentDir.RemoveChild(childID)
	newParentDir.AddChild(childID, op.NewName)

	if err := oldParentDir.Flush(ctx); err != nil {
		return err
	}
	if op.OldParent != op.NewParent {
		if err := newParentDir.Flush(ctx); err != nil {
			return err
		}
	}

	if id, ok := fs.nodeInodes[childID]; ok {
		on := fs.inodes[id]
		on.parent = op.NewParent
		on.name = op.NewName
	}
	return nil
}

func (fs *FileSystem) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	on, err := fs.lookupLocked(op.Inode)
	if err != nil {
		return err
	}
	dir, ok := on.node.(*node.Dir)
	if !ok {
		return syscall.ENOTDIR
	}

	snapshot := dir.Children()
	children := make(map[string]fuseops.InodeID, len(snapshot))
	for id, name := range snapshot {
		childInodeID, _, err := fs.inodeForChild(ctx, op.Inode, id, name)
		if err != nil {
			return err
		}
		children[name] = childInodeID
	}

	handleID := fs.nextHandleID
	fs.nextHandleID++
	fs.dirHandles[handleID] = newDirHandle(op.Inode, on.parent, children)
	op.Handle = handleID
	return nil
}

func (fs *FileSystem) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dh, ok := fs.dirHandles[op.Handle]
	if !ok {
		return fuse.ENOENT
	}
	dh.ReadDir(op)
	return nil
}

func (fs *FileSystem) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.dirHandles, op.Handle)
	return nil
}

func (fs *FileSystem) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	on, err := fs.lookupLocked(op.Inode)
	if err != nil {
		return err
	}
	if _, ok := on.node.(*node.File); !ok {
		return syscall.EISDIR
	}
	op.Handle = fuseops.HandleID(op.Inode)
	return nil
}

func (fs *FileSystem) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	on, err := fs.lookupLocked(op.Inode)
	if err != nil {
		return err
	}
	file, ok := on.node.(*node.File)
	if !ok {
		return syscall.EISDIR
	}

	if _, err := file.Seek(ctx, op.Offset, mailbox.SeekSet); err != nil {
		return err
	}
	size := len(op.Dst)
	data, err := file.Read(ctx, &size)
	if err != nil {
		return err
	}
	op.BytesRead = copy(op.Dst, data)
	return nil
}

func (fs *FileSystem) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	on, err := fs.lookupLocked(op.Inode)
	if err != nil {
		return err
	}
	file, ok := on.node.(*node.File)
	if !ok {
		return syscall.EISDIR
	}

	if _, err := file.Seek(ctx, op.Offset, mailbox.SeekSet); err != nil {
		return err
	}
	return file.Write(ctx, op.Data)
}

func (fs *FileSystem) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	on, err := fs.lookupLocked(op.Inode)
	if err != nil {
		return err
	}
	file, ok := on.node.(*node.File)
	if !ok {
		return nil
	}
	return file.Flush(ctx)
}

func (fs *FileSystem) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	on, ok := fs.inodes[fuseops.InodeID(op.Handle)]
	if !ok {
		return nil
	}
	if file, ok := on.node.(*node.File); ok {
		return file.Flush(ctx)
	}
	return nil
}
