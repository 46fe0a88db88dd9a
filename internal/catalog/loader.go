package catalog

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/mitchellh/hashstructure/v2"
	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

var ErrNotFound = errors.New("definition not found")

// LoadError describes one definition or file that could not be loaded. The rest of
// the catalog is unaffected.
type LoadError struct {
	Source string
	ID     string
	Err    error
}

func (e LoadError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s (%s): %v", e.Source, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e LoadError) Unwrap() error { return e.Err }

type Layer struct {
	Name string
	FS   fs.FS
	Dir  string
}

func BuiltinLayer() Layer {
	return Layer{Name: "builtin", FS: builtinFS, Dir: "builtin"}
}

func DirLayer(dir string) Layer {
	return Layer{Name: dir, FS: os.DirFS(dir), Dir: "."}
}

type Loader struct {
	AppVersion string
}

func NewLoader(appVersion string) *Loader {
	return &Loader{AppVersion: appVersion}
}

// Load reads every layer in order; a later layer replaces definitions with the same
// id. The returned error is only set when a layer root cannot be read at all.
func (l *Loader) Load(layers ...Layer) (*Catalog, []LoadError, error) {
	defs := map[string]Definition{}
	var problems []LoadError
	for _, layer := range layers {
		files, err := fs.Glob(layer.FS, path.Join(layer.Dir, "*.yaml"))
		if err != nil {
			return nil, nil, fmt.Errorf("scan %s: %w", layer.Name, err)
		}
		more, err := fs.Glob(layer.FS, path.Join(layer.Dir, "*.yml"))
		if err != nil {
			return nil, nil, fmt.Errorf("scan %s: %w", layer.Name, err)
		}
		files = append(files, more...)
		if len(files) == 0 {
			if _, err := fs.Stat(layer.FS, layer.Dir); err != nil {
				return nil, nil, fmt.Errorf("read %s: %w", layer.Name, err)
			}
		}
		sort.Strings(files)
		for _, file := range files {
			source := layer.Name + ":" + path.Base(file)
			loaded, errs := l.readFile(layer.FS, file, source)
			problems = append(problems, errs...)
			for _, d := range loaded {
				defs[d.ID] = d
			}
		}
	}

	// Dropping a definition can leave another one dangling, so repeat until stable.
	for dropped := true; dropped; {
		dropped = false
		ids := make([]string, 0, len(defs))
		for id := range defs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			d := defs[id]
			if d.NextID == "" {
				continue
			}
			if _, ok := defs[d.NextID]; !ok {
				problems = append(problems, LoadError{Source: d.Path, ID: id, Err: fmt.Errorf("unknown next_id %q", d.NextID)})
				delete(defs, id)
				dropped = true
			}
		}
	}

	return newCatalog(defs), problems, nil
}

func (l *Loader) readFile(fsys fs.FS, file, source string) ([]Definition, []LoadError) {
	f, err := fsys.Open(file)
	if err != nil {
		return nil, []LoadError{{Source: source, Err: err}}
	}
	defer f.Close()

	var out []Definition
	var problems []LoadError
	dec := yaml.NewDecoder(f)
	for {
		var d Definition
		err := dec.Decode(&d)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			problems = append(problems, LoadError{Source: source, Err: fmt.Errorf("parse: %w", err)})
			break
		}
		d.Path = source
		normalize(&d)
		if err := d.Validate(); err != nil {
			problems = append(problems, LoadError{Source: source, ID: d.ID, Err: fmt.Errorf("validate: %w", err)})
			continue
		}
		if !d.Supports(l.AppVersion) {
			problems = append(problems, LoadError{Source: source, ID: d.ID, Err: fmt.Errorf("requires app version %s, running %s", d.MinAppVersion, l.AppVersion)})
			continue
		}
		out = append(out, d)
	}
	return out, problems
}

func normalize(d *Definition) {
	d.ID = strings.TrimSpace(d.ID)
	d.NextID = strings.TrimSpace(d.NextID)
	for i := range d.Instructions {
		d.Instructions[i] = strings.TrimSpace(d.Instructions[i])
	}
	for i := range d.Hints {
		d.Hints[i] = strings.TrimSpace(d.Hints[i])
	}
	if d.PointsTotal == 0 {
		d.PointsTotal = d.MaxPoints()
	}
}

// LoadBuiltin loads only the embedded catalog.
func LoadBuiltin(appVersion string) (*Catalog, []LoadError, error) {
	return NewLoader(appVersion).Load(BuiltinLayer())
}

type Catalog struct {
	defs         map[string]Definition
	order        []string
	fingerprints map[string]uint64
}

func newCatalog(defs map[string]Definition) *Catalog {
	c := &Catalog{defs: defs, fingerprints: map[string]uint64{}}
	for id, d := range defs {
		c.order = append(c.order, id)
		h, err := hashstructure.Hash(d, hashstructure.FormatV2, nil)
		if err == nil {
			c.fingerprints[id] = h
		}
	}
	sort.Strings(c.order)
	return c
}

// New builds a catalog from already validated definitions.
func New(defs ...Definition) *Catalog {
	m := make(map[string]Definition, len(defs))
	for _, d := range defs {
		if d.PointsTotal == 0 {
			d.PointsTotal = d.MaxPoints()
		}
		m[d.ID] = d
	}
	return newCatalog(m)
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

func (c *Catalog) Get(id string) (Definition, error) {
	if c == nil {
		return Definition{}, ErrNotFound
	}
	d, ok := c.defs[id]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d, nil
}

func (c *Catalog) All() []Definition {
	if c == nil {
		return nil
	}
	out := make([]Definition, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.defs[id])
	}
	return out
}

func (c *Catalog) ByCategory(category string) []Definition {
	var out []Definition
	for _, d := range c.All() {
		if d.Category == category {
			out = append(out, d)
		}
	}
	return out
}

func (c *Catalog) Categories() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, d := range c.All() {
		if _, ok := seen[d.Category]; ok {
			continue
		}
		seen[d.Category] = struct{}{}
		out = append(out, d.Category)
	}
	sort.Strings(out)
	return out
}

func (c *Catalog) Next(id string) (Definition, bool) {
	d, err := c.Get(id)
	if err != nil || d.NextID == "" {
		return Definition{}, false
	}
	next, err := c.Get(d.NextID)
	if err != nil {
		return Definition{}, false
	}
	return next, true
}

// Fingerprint identifies the content of a definition; it changes whenever the
// definition is edited. Zero means unknown.
func (c *Catalog) Fingerprint(id string) uint64 {
	if c == nil {
		return 0
	}
	return c.fingerprints[id]
}
