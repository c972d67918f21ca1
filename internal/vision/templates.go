package vision

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/linkclear/linkclear/internal/board"
	"github.com/linkclear/linkclear/internal/security"
)

// Reserved template names. A file called block.png becomes the obstacle
// reference, background.png the empty reference; every other PNG in the
// template directory is a collectible tile.
const (
	blockTemplateName      = "block"
	backgroundTemplateName = "background"
)

// Template is one loaded reference image, already normalized for
// matching. ID follows the board convention: -1 block, 0 background,
// positive for tiles (assigned by name order, so a catalog reloads to
// the same ids).
type Template struct {
	Name string
	ID   int

	vals []float64 // normalized grayscale pixels, for brightness-sensitive scoring
	pat  patch     // zero-mean form, for NCC
}

// Store holds the templates loaded from one directory.
type Store struct {
	all  []Template // ascending by ID
	byID map[int]Template
}

// LoadStore reads every *.png in dir and assigns template ids.
// It fails if the directory is unreadable, any image fails to decode,
// or no template images are present at all. Per-mode requirements
// (block/background for anchor mode, at least one entry for catalog
// mode) are checked by the classifier constructors.
func LoadStore(dir string) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read template directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no template images (*.png) found in %s", dir)
	}

	var (
		blockT, backgroundT *Template
		tileNames           []string
		byName              = make(map[string]Template, len(names))
	)
	for _, fname := range names {
		path := filepath.Join(dir, fname)
		if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
			return nil, fmt.Errorf("rejecting template %s: %w", fname, err)
		}
		tmpl, err := loadTemplate(path)
		if err != nil {
			return nil, err
		}
		switch tmpl.Name {
		case blockTemplateName:
			tmpl.ID = board.Obstacle
			blockT = &tmpl
		case backgroundTemplateName:
			tmpl.ID = board.Empty
			backgroundT = &tmpl
		default:
			tileNames = append(tileNames, tmpl.Name)
		}
		byName[tmpl.Name] = tmpl
	}

	s := &Store{byID: make(map[int]Template, len(byName))}
	if blockT != nil {
		s.add(*blockT)
	}
	if backgroundT != nil {
		s.add(*backgroundT)
	}
	sort.Strings(tileNames)
	for i, name := range tileNames {
		tmpl := byName[name]
		tmpl.ID = i + 1
		s.add(tmpl)
	}
	return s, nil
}

func loadTemplate(path string) (Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return Template{}, fmt.Errorf("failed to open template: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return Template{}, fmt.Errorf("failed to decode template %s: %w", path, err)
	}
	if img.Bounds().Empty() {
		return Template{}, fmt.Errorf("template %s has zero area", path)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	vals := grayValues(normalizeForMatch(img))
	return Template{
		Name: name,
		vals: vals,
		pat:  newPatch(vals),
	}, nil
}

func (s *Store) add(t Template) {
	s.all = append(s.all, t)
	s.byID[t.ID] = t
}

// All returns every template ascending by id: block, background, then
// tiles.
func (s *Store) All() []Template { return s.all }

// Tiles returns only the positive-id templates, ascending.
func (s *Store) Tiles() []Template {
	var tiles []Template
	for _, t := range s.all {
		if t.ID > 0 {
			tiles = append(tiles, t)
		}
	}
	return tiles
}

// Block returns the obstacle reference, if loaded.
func (s *Store) Block() (Template, bool) {
	t, ok := s.byID[board.Obstacle]
	return t, ok
}

// Background returns the empty reference, if loaded.
func (s *Store) Background() (Template, bool) {
	t, ok := s.byID[board.Empty]
	return t, ok
}

// NameByID maps a board value back to the template name that produced
// it. Synthetic ids from anchor clustering have no template and report
// false.
func (s *Store) NameByID(id int) (string, bool) {
	t, ok := s.byID[id]
	return t.Name, ok
}

// Len is the total number of loaded templates, reserved roles included.
func (s *Store) Len() int { return len(s.all) }
