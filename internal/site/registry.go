package site

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/solatis/boorukeeper/internal/types"
)

//go:embed backends/*.yaml
var builtinFS embed.FS

// Registry holds every compiled site by name. It is populated at startup
// and read-only afterwards.
type Registry struct {
	sites map[types.Website]*Site
	bases map[Backend]Document
}

// NewRegistry compiles the built-in backend documents.
func NewRegistry() (*Registry, error) {
	r := &Registry{
		sites: make(map[types.Website]*Site),
		bases: make(map[Backend]Document),
	}
	if err := r.loadFS(builtinFS, "backends", true); err != nil {
		return nil, fmt.Errorf("built-in backends: %w", err)
	}
	for _, b := range AllBackends {
		if _, ok := r.bases[b]; !ok {
			return nil, fmt.Errorf("built-in backends: no document for %s", b)
		}
	}
	return r, nil
}

// LoadDir compiles every *.yaml and *.yml file in dir. A document whose
// name matches an existing site replaces it.
func (r *Registry) LoadDir(dir string) error {
	if err := r.loadFS(os.DirFS(dir), ".", false); err != nil {
		return fmt.Errorf("loading %s: %w", dir, err)
	}
	return nil
}

func (r *Registry) loadFS(fsys fs.FS, dir string, builtin bool) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return err
	}
	// Sorted so replacement order between files is deterministic.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		ext := path.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		p := path.Join(dir, e.Name())
		f, err := fsys.Open(p)
		if err != nil {
			return err
		}
		doc, err := LoadDocument(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		if _, err := r.add(doc, builtin); err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
	}
	return nil
}

// Add compiles doc and registers it, replacing any site of the same name.
func (r *Registry) Add(doc Document) (*Site, error) {
	return r.add(doc, false)
}

func (r *Registry) add(doc Document, builtin bool) (*Site, error) {
	if doc.inherits() && !builtin {
		b, _ := ParseBackend(doc.Backend)
		if base, ok := r.bases[b]; ok {
			doc = doc.withBase(base)
		}
	}
	s, err := Compile(doc)
	if err != nil {
		return nil, err
	}
	if builtin {
		r.bases[s.Backend] = doc
	}
	r.sites[s.Name] = s
	return s, nil
}

// Site returns the site registered under name. Lookup ignores case.
func (r *Registry) Site(name string) (*Site, error) {
	key := types.Website(strings.ToLower(strings.TrimSpace(name)))
	if s, ok := r.sites[key]; ok {
		return s, nil
	}
	for n, s := range r.sites {
		if strings.EqualFold(string(n), string(key)) {
			return s, nil
		}
	}
	// A backend name selects its built-in site.
	if b, ok := ParseBackend(string(key)); ok {
		if base, ok := r.bases[b]; ok {
			if s, ok := r.sites[types.Website(base.Name)]; ok {
				return s, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %q", types.ErrUnknownSite, name)
}

// Sites lists every registered site ordered by name.
func (r *Registry) Sites() []*Site {
	out := make([]*Site, 0, len(r.sites))
	for _, s := range r.sites {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
