// Package typeshed embeds the minimal stubs for the standard library
// modules the checker understands natively.
package typeshed

import (
	"embed"
	"io/fs"
	"path"
	"strings"
)

//go:embed *.pyi all:collections
var stubs embed.FS

// Prefix marks paths of embedded stubs.
const Prefix = "<typeshed>/"

// Lookup returns the virtual path and contents of the stub for a dotted
// module name. Packages resolve to their __init__.pyi.
func Lookup(module string) (string, []byte, bool) {
	rel := strings.ReplaceAll(module, ".", "/")
	for _, candidate := range []string{rel + ".pyi", path.Join(rel, "__init__.pyi")} {
		src, err := fs.ReadFile(stubs, candidate)
		if err == nil {
			return Prefix + candidate, src, true
		}
	}
	return "", nil, false
}

// IsStubPath reports whether a path names an embedded stub.
func IsStubPath(p string) bool {
	return strings.HasPrefix(p, Prefix)
}

// Modules lists the dotted names of every embedded module.
func Modules() []string {
	var out []string
	_ = fs.WalkDir(stubs, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, ".pyi") {
			return nil
		}
		mod := strings.TrimSuffix(p, ".pyi")
		mod = strings.TrimSuffix(mod, "/__init__")
		out = append(out, strings.ReplaceAll(mod, "/", "."))
		return nil
	})
	return out
}
