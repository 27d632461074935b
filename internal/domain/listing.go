package domain

// Category says which section of the remote listing an entry came from.
type Category int

const (
	CategoryCommitted Category = iota
	CategoryStaged
)

func (c Category) String() string {
	switch c {
	case CategoryCommitted:
		return "committed"
	case CategoryStaged:
		return "staged"
	default:
		return "unknown"
	}
}

// ListEntry is one decoded entry of a remote block listing.
type ListEntry struct {
	ID       string
	Category Category
	Size     int64
}

// BlockList is the decoded answer to a block listing request.
type BlockList struct {
	// Found is false when the store answered 404. That means no blocks
	// exist remotely, not that the lookup failed.
	Found bool
	// ContentLength is the committed object length, -1 when the store did
	// not report a committed object.
	ContentLength int64
	Entries       []ListEntry
}

// ObjectExists reports whether a committed object is visible remotely.
func (l *BlockList) ObjectExists() bool {
	if l == nil || !l.Found {
		return false
	}
	if l.ContentLength >= 0 {
		return true
	}
	for _, e := range l.Entries {
		if e.Category == CategoryCommitted {
			return true
		}
	}
	return false
}
