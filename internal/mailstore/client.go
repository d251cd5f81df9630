// Package mailstore wraps an IMAP mailbox as an opaque blob store keyed by
// message subject: put_message/get_message/delete_message/search_by_subject,
// plus a bounded subject->UID cache so repeated lookups of the same node
// don't round-trip a SEARCH every time.
package mailstore

import (
	"context"
	"crypto/tls"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/waweber/imapfs/internal/envelope"
	"github.com/waweber/imapfs/internal/logger"
)

// DefaultCacheSize bounds the number of subject->UID entries retained
// between SEARCH round-trips when no override is configured.
const DefaultCacheSize = 4096

// Config describes how to reach and authenticate against the mail server.
type Config struct {
	Addr       string // host:port
	TLS        bool
	User       string
	Password   string
	Mailbox    string
	CacheSize  int // entries; <=0 uses DefaultCacheSize
	AppendSeen bool
	AppendDraft bool
}

// Client is a live connection to a single selected mailbox. It implements
// the Store interface consumed by internal/mailbox.
type Client struct {
	cfg    Config
	codec  *envelope.Codec
	conn   *client.Client
	mu     sync.Mutex
	cache  subjectCache
}

// Dial connects, authenticates, and selects cfg.Mailbox.
func Dial(cfg Config, codec *envelope.Codec) (*Client, error) {
	var c *client.Client
	var err error

	if cfg.TLS {
		c, err = client.DialTLS(cfg.Addr, &tls.Config{ServerName: hostOf(cfg.Addr)})
	} else {
		c, err = client.Dial(cfg.Addr)
	}
	if err != nil {
		return nil, fmt.Errorf("mailstore: dial %s: %w", cfg.Addr, err)
	}

	if err := c.Login(cfg.User, cfg.Password); err != nil {
		c.Close()
		return nil, fmt.Errorf("mailstore: login: %w", err)
	}

	if _, err := c.Select(cfg.Mailbox, false); err != nil {
		c.Logout()
		return nil, fmt.Errorf("mailstore: select %q: %w", cfg.Mailbox, err)
	}

	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}

	return &Client{
		cfg:   cfg,
		codec: codec,
		conn:  c,
		cache: newSubjectCache(size),
	}, nil
}

func hostOf(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}

// Logout closes the IMAP session.
func (c *Client) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Logout()
}

// SearchBySubject returns every UID currently bearing the given subject,
// ascending. It never consults or populates the cache.
func (c *Client) SearchBySubject(ctx context.Context, subject string) ([]uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("Subject", subject)

	uids, err := c.conn.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("mailstore: search subject %q: %w", subject, err)
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

// UIDForSubject returns the newest UID bearing subject, preferring the
// cache. A cache miss triggers a SearchBySubject and seeds the cache.
// "Newest" is the highest UID: UIDs are assumed to grow with append order
// within the selected mailbox.
func (c *Client) UIDForSubject(ctx context.Context, subject string) (uint32, bool, error) {
	if uid, ok := c.cache.get(subject); ok {
		return uid, true, nil
	}

	uids, err := c.SearchBySubject(ctx, subject)
	if err != nil {
		return 0, false, err
	}
	if len(uids) == 0 {
		return 0, false, nil
	}

	newest := uids[len(uids)-1]
	c.cache.put(subject, newest)
	return newest, true, nil
}

// GetMessage fetches and decrypts the message body for uid.
func (c *Client) GetMessage(ctx context.Context, uid uint32) ([]byte, error) {
	c.mu.Lock()
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	section := &imap.BodySectionName{Peek: true, Path: []int{1}}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.conn.UidFetch(seqset, items, messages)
	}()

	var body []byte
	for msg := range messages {
		r := msg.GetBody(section)
		if r == nil {
			continue
		}
		buf := make([]byte, 0, 4096)
		chunk := make([]byte, 4096)
		for {
			n, rerr := r.Read(chunk)
			if n > 0 {
				buf = append(buf, chunk[:n]...)
			}
			if rerr != nil {
				break
			}
		}
		body = buf
	}

	err := <-done
	c.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("mailstore: fetch uid %d: %w", uid, err)
	}
	if body == nil {
		return nil, fmt.Errorf("mailstore: uid %d not found", uid)
	}

	plaintext, err := c.codec.DecryptMessage(string(body))
	if err != nil {
		return nil, fmt.Errorf("mailstore: decrypt uid %d: %w", uid, err)
	}

	return plaintext, nil
}

// PutMessage encrypts plaintext and appends a new message with subject,
// returning the UID the server assigned. The cache is refreshed to point
// at the new UID.
func (c *Client) PutMessage(ctx context.Context, subject string, plaintext []byte) (uint32, error) {
	encoded, err := c.codec.EncryptMessage(plaintext)
	if err != nil {
		return 0, fmt.Errorf("mailstore: encrypt: %w", err)
	}

	raw, err := buildMessage(subject, encoded, time.Now())
	if err != nil {
		return 0, fmt.Errorf("mailstore: build message: %w", err)
	}
	flags := appendFlags(c.cfg)

	c.mu.Lock()
	err = c.conn.Append(c.cfg.Mailbox, flags, time.Now(), newLiteral(raw))
	c.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("mailstore: append subject %q: %w", subject, err)
	}

	// go-imap's client does not surface APPENDUID; re-search to learn the
	// new UID. This is the same "tolerate a cache miss" path a reader
	// takes, so no separate code path is needed.
	c.cache.invalidate(subject)
	uid, ok, err := c.UIDForSubject(ctx, subject)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("mailstore: appended subject %q but could not re-find it", subject)
	}

	logger.Tracef("mailstore: put subject=%s uid=%d", subject, uid)
	return uid, nil
}

// DeleteMessage flags uid \Deleted without expunging.
func (c *Client) DeleteMessage(ctx context.Context, uid uint32) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	c.mu.Lock()
	err := c.conn.UidStore(seqset, imap.FormatFlagsOp(imap.AddFlags, true), []interface{}{imap.DeletedFlag}, nil)
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("mailstore: delete uid %d: %w", uid, err)
	}
	return nil
}

// InvalidateSubject drops subject's cached UID, if any.
//
// DeleteMessage takes a bare UID and never calls this itself: it has no
// subject to invalidate by. Every caller that deletes a message already
// knows the subject it was bound to (internal/mailbox.Message.Delete,
// Unlink) and is expected to call InvalidateSubject right after
// DeleteMessage succeeds, the same way PutMessage invalidates-then-reseeds
// internally. Even a caller that forgets is safe: message subjects are
// freshly generated UUIDs (see internal/mailbox.Create) that are never
// reused, so a stale entry left pointing at a deleted UID can never be
// handed out for a different, live message — it just sits until evicted.
func (c *Client) InvalidateSubject(subject string) {
	c.cache.invalidate(subject)
}

func appendFlags(cfg Config) []string {
	var flags []string
	if cfg.AppendSeen {
		flags = append(flags, imap.SeenFlag)
	}
	if cfg.AppendDraft {
		flags = append(flags, imap.DraftFlag)
	}
	return flags
}
