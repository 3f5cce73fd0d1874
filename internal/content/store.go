// ABOUTME: Content store mapping asset files to stable numeric ids
// ABOUTME: Scans class roots by mtime and publishes an immutable index for lock-free lookups
package content

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anomaly-engine/anomaly/pkg/protocol"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// Roots names the directory scanned for each asset class
type Roots struct {
	Images string
	Fonts  string
	Sounds string
}

// DefaultRoots is the layout a server uses when nothing is configured
var DefaultRoots = Roots{
	Images: "Content/Images",
	Fonts:  "Content/Fonts",
	Sounds: "Content/Sounds",
}

// For returns the root directory of a class
func (r Roots) For(class protocol.ContentType) string {
	switch class {
	case protocol.ContentImage:
		return r.Images
	case protocol.ContentFont:
		return r.Fonts
	case protocol.ContentSound:
		return r.Sounds
	default:
		return ""
	}
}

// Asset is one cached content file. Data is shared and must not be modified.
type Asset struct {
	Class   protocol.ContentType
	Path    string // slash-separated, relative to the class root
	ID      uint32
	Data    []byte
	ModTime time.Time
	Width   int // pixel width, images only
}

// Packet converts the asset to its wire form
func (a Asset) Packet() protocol.Content {
	return protocol.Content{Type: a.Class, ID: a.ID, Data: a.Data}
}

type index struct {
	seq    uint64
	assets [protocol.ContentTypeCount]map[string]*Asset
}

func (ix *index) clone() *index {
	next := &index{seq: ix.seq + 1}
	for c := range ix.assets {
		next.assets[c] = make(map[string]*Asset, len(ix.assets[c]))
		for k, v := range ix.assets[c] {
			next.assets[c][k] = v
		}
	}
	return next
}

// Store caches content files. Scans run on one goroutine at a time and
// build on the newest staged index; lookups read the last committed index
// without locking.
type Store struct {
	fs       afero.Fs
	roots    Roots
	validate Validator

	scanMu   sync.Mutex
	nextID   [protocol.ContentTypeCount]uint32
	rejected map[string]time.Time
	latest   *index

	commitMu sync.Mutex
	current  atomic.Pointer[index]
}

// Update is the result of a scan that has not been made visible yet.
// Lookups keep answering from the previous index until Commit.
type Update struct {
	store  *Store
	next   *index
	Assets []Asset
}

// Commit publishes the update. Committing an update older than one already
// committed does nothing.
func (u *Update) Commit() {
	if u == nil || u.next == nil {
		return
	}
	s := u.store
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	if s.current.Load().seq < u.next.seq {
		s.current.Store(u.next)
	}
}

// Option configures a Store
type Option func(*Store)

// WithValidator replaces the payload validator
func WithValidator(v Validator) Option {
	return func(s *Store) {
		s.validate = v
	}
}

// New creates an empty store over a filesystem
func New(fsys afero.Fs, roots Roots, opts ...Option) *Store {
	s := &Store{
		fs:       fsys,
		roots:    roots,
		validate: Validate,
		rejected: make(map[string]time.Time),
	}
	for i := range s.nextID {
		s.nextID[i] = 1
	}
	for _, opt := range opts {
		opt(s)
	}
	s.latest = (&index{}).clone()
	s.current.Store(s.latest)
	return s
}

// Scan stages and commits in one step and returns the changed assets
func (s *Store) Scan() []Asset {
	u := s.Stage()
	u.Commit()
	return u.Assets
}

// Stage walks every class root and collects the assets that are new or
// whose modification time changed since the last scan. A new path gets the
// next id of its class; a changed path keeps its id. Unreadable or invalid
// files are logged and the previous version stays authoritative. Nothing
// becomes visible to lookups until the update is committed.
func (s *Store) Stage() *Update {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	next := s.latest.clone()
	var changed []Asset

	for c := protocol.ContentType(0); c < protocol.ContentTypeCount; c++ {
		root := s.roots.For(c)
		if root == "" {
			continue
		}
		changed = append(changed, s.scanClass(c, root, next)...)
	}

	if len(changed) == 0 {
		return &Update{store: s}
	}
	s.latest = next
	return &Update{store: s, next: next, Assets: changed}
}

func (s *Store) scanClass(class protocol.ContentType, root string, next *index) []Asset {
	var changed []Asset

	err := afero.Walk(s.fs, root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			if p == root && errors.Is(err, os.ErrNotExist) {
				return filepath.SkipDir
			}
			log.Warn().Err(err).Str("path", p).Msg("content walk error")
			return nil
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		key := filepath.ToSlash(rel)
		modTime := info.ModTime()

		prev := next.assets[class][key]
		if prev != nil && prev.ModTime.Equal(modTime) {
			return nil
		}
		rejectKey := class.String() + ":" + key
		if t, ok := s.rejected[rejectKey]; ok && t.Equal(modTime) {
			return nil
		}

		data, err := afero.ReadFile(s.fs, p)
		if err != nil {
			log.Warn().Err(err).Str("class", class.String()).Str("path", key).Msg("content unreadable, keeping previous version")
			return nil
		}

		meta, err := s.validate(class, data)
		if err != nil {
			s.rejected[rejectKey] = modTime
			log.Warn().Err(err).Str("class", class.String()).Str("path", key).Msg("content rejected, keeping previous version")
			return nil
		}
		delete(s.rejected, rejectKey)

		asset := &Asset{
			Class:   class,
			Path:    key,
			Data:    data,
			ModTime: modTime,
			Width:   meta.Width,
		}
		if prev != nil {
			asset.ID = prev.ID
		} else {
			asset.ID = s.nextID[class]
			s.nextID[class]++
		}
		next.assets[class][key] = asset
		changed = append(changed, *asset)

		log.Debug().
			Str("class", class.String()).
			Str("path", key).
			Uint32("id", asset.ID).
			Int("bytes", len(data)).
			Msg("content loaded")
		return nil
	})
	if err != nil && !errors.Is(err, filepath.SkipDir) {
		log.Warn().Err(err).Str("root", root).Msg("content scan failed")
	}

	sort.Slice(changed, func(i, j int) bool { return changed[i].ID < changed[j].ID })
	return changed
}

// Normalize turns a script-supplied path into a cache key
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

// Resolve returns the id of an asset, or 0 if it is not loaded
func (s *Store) Resolve(class protocol.ContentType, p string) uint32 {
	if a, ok := s.Lookup(class, p); ok {
		return a.ID
	}
	return 0
}

// Lookup returns a loaded asset
func (s *Store) Lookup(class protocol.ContentType, p string) (Asset, bool) {
	if class >= protocol.ContentTypeCount {
		return Asset{}, false
	}
	a := s.current.Load().assets[class][Normalize(p)]
	if a == nil {
		return Asset{}, false
	}
	return *a, true
}

// ImageWidth returns the pixel width of an image, or 0 if it is not loaded
func (s *Store) ImageWidth(p string) int {
	a, _ := s.Lookup(protocol.ContentImage, p)
	return a.Width
}

// Snapshot returns every loaded asset of a class ordered by id
func (s *Store) Snapshot(class protocol.ContentType) []Asset {
	if class >= protocol.ContentTypeCount {
		return nil
	}
	m := s.current.Load().assets[class]
	out := make([]Asset, 0, len(m))
	for _, a := range m {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SnapshotAll returns every loaded asset, images then fonts then sounds
func (s *Store) SnapshotAll() []Asset {
	var out []Asset
	for c := protocol.ContentType(0); c < protocol.ContentTypeCount; c++ {
		out = append(out, s.Snapshot(c)...)
	}
	return out
}

// Count returns the number of loaded assets of a class
func (s *Store) Count(class protocol.ContentType) int {
	if class >= protocol.ContentTypeCount {
		return 0
	}
	return len(s.current.Load().assets[class])
}
