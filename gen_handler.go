//go:build !wasm

package zorm

// Gen generates record types for the model structs of a source tree.
type Gen struct {
	logFn   func(messages ...any)
	rootDir string
}

// NewGen creates a generator with rootDir defaulting to ".".
func NewGen() *Gen {
	return &Gen{rootDir: "."}
}

// SetLog sets the log function for warnings and informational messages.
// If not set, messages are silently discarded.
func (g *Gen) SetLog(fn func(messages ...any)) {
	g.logFn = fn
}

// SetRootDir sets the directory Run scans.
func (g *Gen) SetRootDir(dir string) {
	g.rootDir = dir
}

func (g *Gen) log(messages ...any) {
	if g.logFn != nil {
		g.logFn(messages...)
	}
}
