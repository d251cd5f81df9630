package mailbox

import "errors"

// ErrNotFound is returned by Open when no message currently exists under
// the requested subject.
var ErrNotFound = errors.New("mailbox: not found")
