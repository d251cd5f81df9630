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

// Dir is a directory node: a descriptor Message plus a child-identifier to
// child-name mapping. Name uniqueness within a directory is enforced by the
// filesystem core, not here.
type Dir struct {
	msg   *mailbox.Message
	ctime time.Time
	mtime time.Time

	children map[string]string // id -> name
	dirty    bool
}

func newDir(msg *mailbox.Message) *Dir {
	now := Clock.Now()
	return &Dir{
		msg:      msg,
		ctime:    now,
		mtime:    now,
		children: make(map[string]string),
		dirty:    true,
	}
}

// NewDir creates a fresh, empty directory under a random identifier.
func NewDir(store mailbox.Store) *Dir {
	return newDir(mailbox.Create(store))
}

func decodeDir(msg *mailbox.Message, data []byte) (*Dir, error) {
	lines := strings.Split(string(data), "\r\n")
	if len(lines) < 2 || lines[0] != "d" {
		return nil, invalidBody('d', "missing header")
	}

	times := strings.Split(lines[1], "\t")
	if len(times) != 2 {
		return nil, invalidBody('d', "malformed timestamps")
	}
	ctime, err := parseUnix(times[0])
	if err != nil {
		return nil, invalidBody('d', "malformed ctime")
	}
	mtime, err := parseUnix(times[1])
	if err != nil {
		return nil, invalidBody('d', "malformed mtime")
	}

	children := make(map[string]string)
	for _, line := range lines[2:] {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			return nil, invalidBody('d', "malformed child entry")
		}
		children[parts[0]] = parts[1]
	}

	return &Dir{msg: msg, ctime: ctime, mtime: mtime, children: children}, nil
}

func (d *Dir) ID() string  { return d.msg.Subject() }
func (d *Dir) IsDir() bool { return true }

func (d *Dir) Attr() Attr {
	return Attr{IsDir: true, Size: 4096}
}

func (d *Dir) Touch() {
	d.mtime = Clock.Now()
	d.dirty = true
}

// AddChild records name as belonging to id. The caller must have already
// verified name does not collide with an existing child.
func (d *Dir) AddChild(id, name string) {
	d.children[id] = name
	d.Touch()
}

// RemoveChild drops id from the children map. It is a no-op if id is not
// present.
func (d *Dir) RemoveChild(id string) {
	if _, ok := d.children[id]; !ok {
		return
	}
	delete(d.children, id)
	d.Touch()
}

// ChildByName performs a linear scan for the identifier bound to name.
func (d *Dir) ChildByName(name string) (string, bool) {
	for id, n := range d.children {
		if n == name {
			return id, true
		}
	}
	return "", false
}

// Children returns a snapshot of id -> name pairs currently held.
func (d *Dir) Children() map[string]string {
	out := make(map[string]string, len(d.children))
	for id, name := range d.children {
		out[id] = name
	}
	return out
}

// Empty reports whether the directory has no children.
func (d *Dir) Empty() bool { return len(d.children) == 0 }

func (d *Dir) encode() []byte {
	var b bytes.Buffer
	b.WriteString("d\r\n")
	fmt.Fprintf(&b, "%d\t%d\r\n", d.ctime.Unix(), d.mtime.Unix())
	for id, name := range d.children {
		fmt.Fprintf(&b, "%s\t%s\r\n", id, name)
	}
	return b.Bytes()
}

func (d *Dir) Flush(ctx context.Context) error {
	if !d.dirty {
		return nil
	}
	d.msg.Truncate(0)
	if _, err := d.msg.Seek(0, mailbox.SeekSet); err != nil {
		return err
	}
	d.msg.Write(d.encode())
	if err := d.msg.Flush(ctx); err != nil {
		return err
	}
	d.dirty = false
	return nil
}

func (d *Dir) Close(ctx context.Context) error {
	return d.Flush(ctx)
}

func (d *Dir) Delete(ctx context.Context) error {
	return d.msg.Delete(ctx)
}

func parseUnix(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(n, 0).UTC(), nil
}
