package node

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/waweber/imapfs/internal/mailbox"
)

// BlockSize is the fixed size of every block Message composing a File.
const BlockSize = 262144

// File is a virtual file composed of fixed-size blocks, each its own
// Message. Reads and writes walk the range of blocks they touch, keeping at
// most the blocks actually in flight resident.
type File struct {
	store mailbox.Store
	msg   *mailbox.Message
	ctime time.Time
	mtime time.Time
	size  int64

	blocks     map[int]string          // block index -> block subject
	openBlocks map[int]*mailbox.Message // block index -> resident Message

	pos   int64
	dirty bool
}

func newFile(store mailbox.Store, msg *mailbox.Message) *File {
	now := Clock.Now()
	return &File{
		store:      store,
		msg:        msg,
		ctime:      now,
		mtime:      now,
		blocks:     make(map[int]string),
		openBlocks: make(map[int]*mailbox.Message),
		dirty:      true,
	}
}

// NewFile creates a fresh, empty file under a random identifier.
func NewFile(store mailbox.Store) *File {
	return newFile(store, mailbox.Create(store))
}

func decodeFile(store mailbox.Store, msg *mailbox.Message, data []byte) (*File, error) {
	lines := strings.Split(string(data), "\r\n")
	if len(lines) < 2 || lines[0] != "f" {
		return nil, invalidBody('f', "missing header")
	}

	fields := strings.Split(lines[1], "\t")
	if len(fields) != 3 {
		return nil, invalidBody('f', "malformed header fields")
	}
	ctime, err := parseUnix(fields[0])
	if err != nil {
		return nil, invalidBody('f', "malformed ctime")
	}
	mtime, err := parseUnix(fields[1])
	if err != nil {
		return nil, invalidBody('f', "malformed mtime")
	}
	size, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, invalidBody('f', "malformed size")
	}

	blocks := make(map[int]string)
	for _, line := range lines[2:] {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			return nil, invalidBody('f', "malformed block entry")
		}
		idx, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, invalidBody('f', "malformed block index")
		}
		blocks[idx] = parts[1]
	}

	return &File{
		store:      store,
		msg:        msg,
		ctime:      ctime,
		mtime:      mtime,
		size:       size,
		blocks:     blocks,
		openBlocks: make(map[int]*mailbox.Message),
	}, nil
}

func (f *File) ID() string  { return f.msg.Subject() }
func (f *File) IsDir() bool { return false }

func (f *File) Attr() Attr {
	return Attr{IsDir: false, Size: f.size}
}

func (f *File) Touch() {
	f.mtime = Clock.Now()
	f.dirty = true
}

// Size returns the file's current logical length.
func (f *File) Size() int64 { return f.size }

func blockIndex(pos int64) int { return int(pos / BlockSize) }

// Seek repositions the cursor. SEEK_END is computed as size - offset,
// matching mailbox.Message's semantics at the file level. Crossing a block
// boundary evicts (flushes) whichever block the old position lived in, to
// bound memory during streaming access.
func (f *File) Seek(ctx context.Context, offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case mailbox.SeekSet:
		newPos = offset
	case mailbox.SeekCur:
		newPos = f.pos + offset
	case mailbox.SeekEnd:
		newPos = f.size - offset
	default:
		return 0, fmt.Errorf("node: invalid whence %d", whence)
	}
	if newPos < 0 {
		newPos = 0
	}

	oldIdx := blockIndex(f.pos)
	newIdx := blockIndex(newPos)
	if newIdx != oldIdx {
		if err := f.evictBlock(ctx, oldIdx); err != nil {
			return 0, err
		}
	}
	f.pos = newPos
	return f.pos, nil
}

func (f *File) evictBlock(ctx context.Context, idx int) error {
	msg, ok := f.openBlocks[idx]
	if !ok {
		return nil
	}
	delete(f.openBlocks, idx)
	return msg.Close(ctx)
}

// openBlock returns the resident Message for block idx, opening it from the
// store or allocating a fresh one if idx has never been written.
func (f *File) openBlock(ctx context.Context, idx int) (*mailbox.Message, error) {
	if msg, ok := f.openBlocks[idx]; ok {
		return msg, nil
	}

	id, ok := f.blocks[idx]
	if !ok {
		msg := mailbox.Create(f.store)
		f.blocks[idx] = msg.Subject()
		f.openBlocks[idx] = msg
		f.dirty = true
		return msg, nil
	}

	msg, err := mailbox.Open(ctx, f.store, id)
	if err != nil {
		return nil, err
	}
	f.openBlocks[idx] = msg
	return msg, nil
}

// Read returns up to size bytes starting at the cursor, clamped to the
// file's logical size, advancing the cursor. A nil size reads everything
// remaining.
func (f *File) Read(ctx context.Context, size *int) ([]byte, error) {
	remaining := f.size - f.pos
	if remaining < 0 {
		remaining = 0
	}
	n := remaining
	if size != nil && int64(*size) < n {
		n = int64(*size)
	}

	out := make([]byte, 0, n)
	pos := f.pos
	left := n
	for left > 0 {
		idx := blockIndex(pos)
		offsetInBlock := pos % BlockSize
		chunk := BlockSize - offsetInBlock
		if chunk > left {
			chunk = left
		}

		block, err := f.openBlock(ctx, idx)
		if err != nil {
			return nil, err
		}
		needed := offsetInBlock + chunk
		if int64(block.Len()) < needed {
			block.Truncate(needed)
		}
		if _, err := block.Seek(offsetInBlock, mailbox.SeekSet); err != nil {
			return nil, err
		}
		c := int(chunk)
		out = append(out, block.Read(&c)...)

		pos += chunk
		left -= chunk
		if err := f.evictBlock(ctx, idx); err != nil {
			return nil, err
		}
	}

	f.pos = pos
	return out, nil
}

// Write writes buf at the cursor, growing the file (via Truncate, so the
// grown region reads back as placeholder bytes) if the write extends past
// the current size, then advances the cursor.
func (f *File) Write(ctx context.Context, buf []byte) error {
	end := f.pos + int64(len(buf))
	if end > f.size {
		if err := f.Truncate(ctx, end); err != nil {
			return err
		}
	}

	pos := f.pos
	left := buf
	for len(left) > 0 {
		idx := blockIndex(pos)
		offsetInBlock := pos % BlockSize
		chunk := BlockSize - offsetInBlock
		if chunk > int64(len(left)) {
			chunk = int64(len(left))
		}

		block, err := f.openBlock(ctx, idx)
		if err != nil {
			return err
		}
		if _, err := block.Seek(offsetInBlock, mailbox.SeekSet); err != nil {
			return err
		}
		block.Write(left[:chunk])

		pos += chunk
		left = left[chunk:]
		if err := f.evictBlock(ctx, idx); err != nil {
			return err
		}
	}

	f.pos = pos
	f.dirty = true
	f.mtime = Clock.Now()
	return nil
}

// Truncate sets the file's logical size. Shrinking deletes every block
// strictly beyond the new last block index; the last retained block is not
// trimmed, since size alone bounds reads. Growing first cuts any bytes such
// a shrink left in the block holding the old end, so the newly-exposed
// range reads as placeholder bytes the next time a block in it is opened
// (see Read).
func (f *File) Truncate(ctx context.Context, size int64) error {
	if size < f.size {
		lastIdx := -1
		if size > 0 {
			lastIdx = int((size - 1) / BlockSize)
		}
		for idx := range f.blocks {
			if idx > lastIdx {
				if err := f.deleteBlock(ctx, idx); err != nil {
					return err
				}
			}
		}
		if f.pos > size {
			f.pos = size
		}
	} else if size > f.size {
		if idx := blockIndex(f.size); f.blocks[idx] != "" {
			block, err := f.openBlock(ctx, idx)
			if err != nil {
				return err
			}
			if keep := f.size % BlockSize; int64(block.Len()) > keep {
				block.Truncate(keep)
				if err := f.evictBlock(ctx, idx); err != nil {
					return err
				}
			}
		}
	}

	f.size = size
	f.dirty = true
	f.mtime = Clock.Now()
	return nil
}

func (f *File) deleteBlock(ctx context.Context, idx int) error {
	if msg, ok := f.openBlocks[idx]; ok {
		if err := msg.Close(ctx); err != nil {
			return err
		}
		delete(f.openBlocks, idx)
	}
	if id, ok := f.blocks[idx]; ok {
		if err := mailbox.Unlink(ctx, f.store, id); err != nil {
			return err
		}
		delete(f.blocks, idx)
	}
	return nil
}

func (f *File) encode() []byte {
	var b bytes.Buffer
	b.WriteString("f\r\n")
	fmt.Fprintf(&b, "%d\t%d\t%d\r\n", f.ctime.Unix(), f.mtime.Unix(), f.size)
	for idx, id := range f.blocks {
		fmt.Fprintf(&b, "%d\t%s\r\n", idx, id)
	}
	return b.Bytes()
}

func (f *File) Flush(ctx context.Context) error {
	if !f.dirty {
		return nil
	}
	f.msg.Truncate(0)
	if _, err := f.msg.Seek(0, mailbox.SeekSet); err != nil {
		return err
	}
	f.msg.Write(f.encode())
	if err := f.msg.Flush(ctx); err != nil {
		return err
	}
	f.dirty = false
	return nil
}

// Close flushes and releases every resident block, then flushes the
// descriptor.
func (f *File) Close(ctx context.Context) error {
	for idx, msg := range f.openBlocks {
		if err := msg.Close(ctx); err != nil {
			return err
		}
		delete(f.openBlocks, idx)
	}
	return f.Flush(ctx)
}

// Delete unlinks every block this file ever allocated, then its
// descriptor.
func (f *File) Delete(ctx context.Context) error {
	for idx := range f.openBlocks {
		delete(f.openBlocks, idx)
	}
	for idx, id := range f.blocks {
		if err := mailbox.Unlink(ctx, f.store, id); err != nil {
			return err
		}
		delete(f.blocks, idx)
	}
	return f.msg.Delete(ctx)
}
