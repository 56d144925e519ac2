package memory

import "fmt"

// Options selects and configures a Store backend.
type Options struct {
	Driver      string // "sqlite" (default), "bolt", or "memory"
	Path        string // database file; ignored for "memory"
	MaxMessages int
	PureGo      bool // sqlite only: use modernc.org/sqlite instead of cgo
}

// Open constructs the backend named by opts.Driver.
func Open(opts Options) (Store, error) {
	switch opts.Driver {
	case "", "sqlite":
		return NewSQLiteStore(opts.Path, opts.MaxMessages, opts.PureGo)
	case "bolt":
		return NewBoltStore(opts.Path, opts.MaxMessages)
	case "memory":
		return NewMemStore(opts.MaxMessages), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q (valid: sqlite, bolt, memory)", opts.Driver)
	}
}
