package transfer

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
)

// Mode selects how received specs are laid out locally.
type Mode int

const (
	// ModeNormal places everything at or under a single destination.
	ModeNormal Mode = iota

	// ModeMirror recreates each spec at its own remote path, anchored at the
	// local home directory when the specs live under the peer's home.
	ModeMirror
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	if m == ModeMirror {
		return "mirror"
	}
	return "normal"
}

// ParseMode parses a configuration mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "normal":
		return ModeNormal, nil
	case "mirror":
		return ModeMirror, nil
	default:
		return ModeNormal, fmt.Errorf("unknown mode %q", s)
	}
}

// PlaceOptions configures placement.
type PlaceOptions struct {
	Mode Mode

	// Destination is used in ModeNormal. A trailing separator marks it as
	// a directory.
	Destination string

	// RemoteHome is the peer's home directory, used in ModeMirror.
	RemoteHome string

	// Expand performs ~ expansion. Nil leaves paths unchanged.
	Expand func(string) string
}

func (o PlaceOptions) expand(p string) string {
	if o.Expand == nil {
		return p
	}
	return o.Expand(p)
}

// Place assigns a LocalPath to every record. Records are grouped by spec;
// each spec is laid out as its own tree below a target path computed from
// the mode. The order of files is not changed.
func Place(files []*File, specCount int, opts PlaceOptions) error {
	groups := lo.GroupBy(files, func(f *File) int { return f.SpecIndex })

	targets, err := specTargets(groups, specCount, opts)
	if err != nil {
		return err
	}

	for i := 0; i < specCount; i++ {
		group := groups[i]
		if len(group) == 0 {
			continue
		}
		tree := newPlacementTree(group, targets[i])
		if err := tree.placeAll(); err != nil {
			return err
		}
	}
	return nil
}

// specTargets computes where each spec's top-level entry should land.
func specTargets(groups map[int][]*File, specCount int, opts PlaceOptions) ([]string, error) {
	specPaths := make([]string, specCount)
	for i := range specPaths {
		if group := groups[i]; len(group) > 0 {
			specPaths[i] = specRoot(group).RemotePath
		}
	}

	targets := make([]string, specCount)
	if opts.Mode == ModeMirror {
		specPaths = homeRelative(specPaths, opts.RemoteHome)
		for i, p := range specPaths {
			if p != "" {
				targets[i] = filepath.Clean(opts.expand(p))
			}
		}
		return targets, nil
	}

	dest := opts.Destination
	if dest == "" {
		return nil, fmt.Errorf("no destination given")
	}
	destIsDir := strings.HasSuffix(dest, "/") || strings.HasSuffix(dest, string(os.PathSeparator)) || specCount > 1
	for i, p := range specPaths {
		target := dest
		if destIsDir {
			target = filepath.Join(dest, path.Base(p))
		}
		targets[i] = filepath.Clean(opts.expand(target))
	}
	return targets, nil
}

// specRoot returns the first top-level record of a spec, falling back to the
// first record when every record names a parent.
func specRoot(group []*File) *File {
	if root, ok := lo.Find(group, func(f *File) bool { return f.Parent == "" }); ok {
		return root
	}
	return group[0]
}

// homeRelative rewrites spec paths to ~/rel when their common ancestor lies
// strictly inside the remote home. An ancestor equal to the home keeps the
// remote paths.
func homeRelative(specPaths []string, remoteHome string) []string {
	present := lo.Filter(specPaths, func(p string, _ int) bool { return p != "" })
	common := commonPath(present)
	home := strings.TrimRight(remoteHome, "/")
	if common == "" || home == "" || !strings.HasPrefix(common, home+"/") {
		return specPaths
	}

	out := make([]string, len(specPaths))
	for i, p := range specPaths {
		if p == "" {
			continue
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(path.Clean(p), home), "/")
		out[i] = path.Join("~", rel)
	}
	return out
}

// commonPath returns the longest common ancestor of slash-separated paths,
// or "" when there is none (including a mix of absolute and relative).
func commonPath(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	abs := strings.HasPrefix(paths[0], "/")
	split := func(p string) []string {
		return lo.Filter(strings.Split(path.Clean(p), "/"), func(s string, _ int) bool { return s != "" && s != "." })
	}

	common := split(paths[0])
	for _, p := range paths[1:] {
		if strings.HasPrefix(p, "/") != abs {
			return ""
		}
		parts := split(p)
		n := 0
		for n < len(common) && n < len(parts) && common[n] == parts[n] {
			n++
		}
		common = common[:n]
	}

	joined := strings.Join(common, "/")
	if abs {
		return "/" + joined
	}
	return joined
}

// slot is one position in the placement arena. Slot 0 is the synthetic
// root; the others each hold one record.
type slot struct {
	record   int
	path     string
	children map[int]int
}

// placementTree lays out the records of one spec. Records refer to their
// parent by remote id; positions live in an arena indexed by slot number.
type placementTree struct {
	files      []*File
	byRemoteID map[string]int
	slots      []slot
	resolved   map[int]int
	target     string
	topLevel   int
}

func newPlacementTree(files []*File, target string) *placementTree {
	t := &placementTree{
		files:      files,
		byRemoteID: make(map[string]int, len(files)),
		resolved:   make(map[int]int, len(files)),
		target:     target,
	}
	for i, f := range files {
		if f.RemoteID != "" {
			t.byRemoteID[f.RemoteID] = i
		}
		if f.Parent == "" {
			t.topLevel++
		}
	}
	t.slots = append(t.slots, slot{record: -1, path: filepath.Dir(target), children: map[int]int{}})
	return t
}

func (t *placementTree) placeAll() error {
	for i := range t.files {
		if _, err := t.resolve(i); err != nil {
			return err
		}
	}
	return nil
}

// resolve returns the slot of record idx, creating it and any unresolved
// ancestors. The walk is iterative so deep chains cannot exhaust the stack.
func (t *placementTree) resolve(idx int) (int, error) {
	if s, ok := t.resolved[idx]; ok {
		return s, nil
	}

	chain := []int{idx}
	onChain := map[int]bool{idx: true}
	parentSlot := 0
	for {
		f := t.files[chain[len(chain)-1]]
		if f.Parent == "" {
			break
		}
		p, ok := t.byRemoteID[f.Parent]
		if !ok {
			return 0, fmt.Errorf("%w: parent %q of %s", ErrUnknownRecord, f.Parent, f.RemotePath)
		}
		if s, ok := t.resolved[p]; ok {
			parentSlot = s
			break
		}
		if onChain[p] {
			return 0, fmt.Errorf("%w: parent cycle at %s", ErrProtocolViolation, t.files[p].RemotePath)
		}
		onChain[p] = true
		chain = append(chain, p)
	}

	for i := len(chain) - 1; i >= 0; i-- {
		s, err := t.attach(parentSlot, chain[i])
		if err != nil {
			return 0, err
		}
		parentSlot = s
	}
	return parentSlot, nil
}

// attach adds record idx below the parent slot, or returns its existing
// slot there.
func (t *placementTree) attach(parent, idx int) (int, error) {
	if s, ok := t.slots[parent].children[idx]; ok {
		return s, nil
	}

	f := t.files[idx]
	local := filepath.Join(t.slots[parent].path, path.Base(f.RemotePath))
	if parent == 0 && t.topLevel == 1 {
		local = t.target
	}
	if err := f.setLocalPath(local); err != nil {
		return 0, err
	}

	t.slots = append(t.slots, slot{record: idx, path: local, children: map[int]int{}})
	s := len(t.slots) - 1
	t.slots[parent].children[idx] = s
	t.resolved[idx] = s
	return s, nil
}
