package imapfs

import (
	"errors"

	"github.com/jacobsa/fuse"

	"github.com/waweber/imapfs/internal/mailbox"
)

// ErrWrongKey indicates the root node exists but its decrypted body is not
// a well-formed directory under the configured passphrase: almost always
// the wrong key was supplied.
var ErrWrongKey = errors.New("imapfs: wrong key")

// mapErr translates errors raised while resolving or mutating nodes into
// the POSIX-style codes the bridge expects. A referenced node that
// disappeared from the mail store between path resolution and use reports
// the same ENOENT a missing path component would. Anything else is passed
// through unchanged and surfaces to the bridge as an I/O error.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mailbox.ErrNotFound) {
		return fuse.ENOENT
	}
	return err
}
