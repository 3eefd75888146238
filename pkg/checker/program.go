package checker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/hashicorp/go-set/v3"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/vito/typhon/pkg/binder"
	"github.com/vito/typhon/pkg/checker/typeshed"
	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// SourceFile is one module known to a Program.
type SourceFile struct {
	Path string
	// Module is the dotted module name.
	Module  string
	Version int
	AST     *pyast.Module
	// Bind is nil until the file is first needed.
	Bind *binder.File

	// importers are the paths of files that resolved an import to this one.
	importers *set.Set[string]
	binding   bool
	// nextID numbers nodes parsed from string annotations.
	nextID pyast.NodeID
}

// IsStub reports whether the file is a .pyi stub.
func (f *SourceFile) IsStub() bool {
	return f.AST.IsStub
}

func (f *SourceFile) declRef(n pyast.Node) types.DeclRef {
	return types.DeclRef{File: f.Path, Node: int(n.ID())}
}

// Program owns the files under analysis and the evaluator that checks them.
type Program struct {
	config  *Config
	version [2]int

	files map[string]*SourceFile
	// roots are the files the user asked to check.
	roots *set.Set[string]
	// resolved caches import resolution: key to path, "" when missing.
	resolved map[string]string
	builtins *SourceFile

	cache *TypeCache
	diags *diagnosticSink
	eval  *Evaluator
}

// NewProgram creates a program with the embedded stubs available.
func NewProgram(config *Config) (*Program, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	version, _ := config.Version()
	p := &Program{
		config:   config,
		version:  version,
		files:    map[string]*SourceFile{},
		roots:    set.New[string](0),
		resolved: map[string]string{},
		cache:    newTypeCache(),
		diags:    newDiagnosticSink(),
	}
	builtins, err := p.loadStub("builtins")
	if err != nil {
		return nil, err
	}
	p.builtins = builtins
	p.eval = newEvaluator(p)
	return p, nil
}

// Config returns the program's configuration.
func (p *Program) Config() *Config {
	return p.config
}

// Evaluator returns the program's evaluator.
func (p *Program) Evaluator() *Evaluator {
	return p.eval
}

// File returns a loaded file, binding it if necessary.
func (p *Program) File(path string) *SourceFile {
	f := p.files[path]
	if f != nil {
		p.bind(f)
	}
	return f
}

// Roots returns the paths of the files added for checking, sorted.
func (p *Program) Roots() []string {
	out := p.roots.Slice()
	sort.Strings(out)
	return out
}

type parsed struct {
	path string
	src  []byte
	mod  *pyast.Module
}

// AddFiles reads and parses the given files concurrently and registers
// them for checking. Directories are walked for .py and .pyi files.
func (p *Program) AddFiles(ctx context.Context, paths []string) error {
	var expanded []string
	for _, path := range paths {
		found, err := expandPath(path)
		if err != nil {
			return err
		}
		expanded = append(expanded, found...)
	}

	results := make([]parsed, len(expanded))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range expanded {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			src, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}
			mod, err := pyast.Parse(path, src)
			if err != nil {
				return err
			}
			results[i] = parsed{path: path, src: src, mod: mod}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	for _, r := range results {
		p.install(r.path, moduleNameFor(r.path), r.mod)
		p.roots.Insert(r.path)
	}
	p.resolved = map[string]string{}
	return nil
}

func expandPath(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	if !info.IsDir() {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		return []string{abs}, nil
	}
	var out []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if p != path && (strings.HasPrefix(name, ".") || name == "__pycache__") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(p, ".py") || strings.HasSuffix(p, ".pyi") {
			abs, err := filepath.Abs(p)
			if err != nil {
				return err
			}
			out = append(out, abs)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk %s", path)
	}
	return out, nil
}

func moduleNameFor(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(strings.TrimSuffix(base, ".pyi"), ".py")
	if name == "__init__" {
		return filepath.Base(filepath.Dir(path))
	}
	return name
}

// SetFileContents replaces the text of a file, bumping its version and
// dropping everything computed from the old text: its cache partition,
// its diagnostics and those of every file that imports it.
func (p *Program) SetFileContents(path string, text []byte) error {
	mod, err := pyast.Parse(path, text)
	if err != nil {
		return err
	}
	old := p.files[path]
	f := p.install(path, moduleNameFor(path), mod)
	if old != nil {
		f.Version = old.Version + 1
		f.importers = old.importers
	}
	p.roots.Insert(path)
	p.resolved = map[string]string{}
	p.invalidate(path, set.New[string](0))
	return nil
}

// RemoveFile forgets a file.
func (p *Program) RemoveFile(path string) {
	if _, ok := p.files[path]; !ok {
		return
	}
	p.invalidate(path, set.New[string](0))
	delete(p.files, path)
	p.roots.Remove(path)
	p.resolved = map[string]string{}
}

func (p *Program) invalidate(path string, seen *set.Set[string]) {
	if !seen.Insert(path) {
		return
	}
	slog.Debug("invalidating file", "path", path)
	p.cache.Drop(path)
	p.diags.drop(path)
	f := p.files[path]
	if f == nil {
		return
	}
	for _, importer := range f.importers.Slice() {
		if dep := p.files[importer]; dep != nil {
			// Wildcard imports are resolved at bind time.
			dep.Bind = nil
			dep.Version++
		}
		p.invalidate(importer, seen)
	}
}

func (p *Program) install(path, module string, mod *pyast.Module) *SourceFile {
	f := &SourceFile{
		Path:      path,
		Module:    module,
		Version:   1,
		AST:       mod,
		importers: set.New[string](0),
		nextID:    pyast.NodeID(mod.NodeCount() + 1),
	}
	p.files[path] = f
	return f
}

func (p *Program) loadStub(module string) (*SourceFile, error) {
	path, src, ok := typeshed.Lookup(module)
	if !ok {
		return nil, errors.Errorf("no stub for %s", module)
	}
	if f := p.files[path]; f != nil {
		return f, nil
	}
	mod, err := pyast.Parse(path, src)
	if err != nil {
		return nil, errors.Wrapf(err, "parse stub %s", module)
	}
	return p.install(path, module, mod), nil
}

func (p *Program) loadDisk(path, module string) *SourceFile {
	if f := p.files[path]; f != nil {
		return f
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	mod, err := pyast.Parse(path, src)
	if err != nil {
		slog.Debug("failed to parse import", "path", path, "error", err)
		return nil
	}
	return p.install(path, module, mod)
}

func (p *Program) bind(f *SourceFile) *binder.File {
	if f.Bind != nil {
		return f.Bind
	}
	opts := binder.Options{
		PythonVersion: p.version,
		Wildcard: func(module string, level int) []string {
			return p.wildcardNames(f, module, level)
		},
	}
	if f == p.builtins {
		opts.Kind = binder.ScopeBuiltins
	} else {
		opts.Builtins = p.bind(p.builtins).Scope
	}
	f.binding = true
	f.Bind = binder.Bind(f.AST, opts)
	f.binding = false
	return f.Bind
}

// resolveImport finds the file for an import. level counts the leading
// dots of a relative import.
func (p *Program) resolveImport(from *SourceFile, module string, level int) *SourceFile {
	fromDir := filepath.Dir(from.Path)
	key := fmt.Sprintf("%d|%s|%s", level, module, fromDir)
	if path, ok := p.resolved[key]; ok {
		if path == "" {
			return nil
		}
		return p.noteImport(from, p.files[path])
	}
	target := p.locate(from, module, level)
	if target == nil {
		slog.Debug("unresolved import", "module", module, "level", level, "from", from.Path)
		p.resolved[key] = ""
		return nil
	}
	p.resolved[key] = target.Path
	return p.noteImport(from, target)
}

func (p *Program) noteImport(from, target *SourceFile) *SourceFile {
	if target != nil && target != from {
		target.importers.Insert(from.Path)
	}
	return target
}

func (p *Program) locate(from *SourceFile, module string, level int) *SourceFile {
	if level > 0 {
		if typeshed.IsStubPath(from.Path) {
			return nil
		}
		dir := filepath.Dir(from.Path)
		for i := 1; i < level; i++ {
			dir = filepath.Dir(dir)
		}
		return p.locateIn(dir, module)
	}
	if f, err := p.loadStub(module); err == nil {
		return f
	}
	for _, sp := range p.config.SearchPaths {
		root := sp
		if !filepath.IsAbs(root) && p.config.Dir != "" {
			root = filepath.Join(p.config.Dir, root)
		}
		if f := p.locateIn(root, module); f != nil {
			return f
		}
	}
	if typeshed.IsStubPath(from.Path) {
		return nil
	}
	return p.locateIn(filepath.Dir(from.Path), module)
}

func (p *Program) locateIn(root, module string) *SourceFile {
	rel := strings.ReplaceAll(module, ".", string(filepath.Separator))
	base := filepath.Join(root, rel)
	candidates := []string{
		base + ".pyi",
		base + ".py",
		filepath.Join(base, "__init__.pyi"),
		filepath.Join(base, "__init__.py"),
	}
	if module == "" {
		candidates = candidates[2:]
	}
	for _, c := range candidates {
		if f := p.loadDisk(c, module); f != nil {
			return f
		}
	}
	return nil
}

// wildcardNames lists the names bound by "from module import *".
func (p *Program) wildcardNames(from *SourceFile, module string, level int) []string {
	target := p.resolveImport(from, module, level)
	if target == nil || target.binding || target == from {
		return nil
	}
	scope := p.bind(target).Scope
	if all := dunderAll(scope); all != nil {
		return all
	}
	var names []string
	for _, sym := range scope.SortedSymbols() {
		if strings.HasPrefix(sym.Name, "_") {
			continue
		}
		if target.IsStub() && !reexported(sym) {
			continue
		}
		names = append(names, sym.Name)
	}
	return names
}

// reexported reports whether a stub symbol is visible to importers. Stubs
// only re-export imports spelled "import a as a" or "from m import a as a".
func reexported(sym *binder.Symbol) bool {
	for _, d := range sym.Decls {
		if d.Kind != binder.DeclAlias {
			return true
		}
		alias, ok := d.Node.(*pyast.Alias)
		if !ok {
			// Names pulled in by a wildcard import.
			return true
		}
		if alias.AsName != "" && (alias.AsName == alias.Name || alias.AsName == d.Imported) {
			return true
		}
	}
	return false
}

func dunderAll(scope *binder.Scope) []string {
	sym := scope.Lookup("__all__")
	if sym == nil {
		return nil
	}
	var names []string
	for _, d := range sym.Decls {
		var elts []pyast.Expr
		switch v := d.Value.(type) {
		case *pyast.List:
			elts = v.Elts
		case *pyast.Tuple:
			elts = v.Elts
		default:
			continue
		}
		for _, el := range elts {
			if c, ok := el.(*pyast.Constant); ok && c.Kind == pyast.ConstStr {
				names = append(names, c.Value.(string))
			}
		}
	}
	return names
}

// Check evaluates every statement of a file and returns its diagnostics.
func (p *Program) Check(ctx context.Context, path string) ([]*Diagnostic, error) {
	f := p.File(path)
	if f == nil {
		return nil, errors.Errorf("unknown file %s", path)
	}
	if err := p.eval.checkFile(ctx, f); err != nil {
		return nil, err
	}
	return p.diags.sorted(path), nil
}

// CheckAll checks every root file.
func (p *Program) CheckAll(ctx context.Context) (map[string][]*Diagnostic, error) {
	out := map[string][]*Diagnostic{}
	for _, path := range p.Roots() {
		diags, err := p.Check(ctx, path)
		if err != nil {
			return nil, err
		}
		out[path] = diags
	}
	return out, nil
}

// Diagnostics returns the diagnostics collected so far for a file.
func (p *Program) Diagnostics(path string) []*Diagnostic {
	return p.diags.sorted(path)
}
