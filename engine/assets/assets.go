// Package assets indexes the asset directory, loads shaders and textures
// from it and reports files that change on disk.
package assets

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/spaghettifunk/lumen/engine/core"
)

type Kind string

const (
	KindNone   Kind = ""
	KindShader Kind = "shader"
	KindImage  Kind = "image"
	KindGUI    Kind = "gui"
	KindFont   Kind = "font"
	KindConfig Kind = "config"
)

// KindOf classifies a file by extension.
func KindOf(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".spv":
		return KindShader
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp":
		return KindImage
	case ".json":
		return KindGUI
	case ".fnt", ".ttf", ".otf":
		return KindFont
	case ".toml", ".yaml", ".yml":
		return KindConfig
	}
	return KindNone
}

type AssetInfo struct {
	ID       uuid.UUID
	Path     string
	Kind     Kind
	Modified time.Time
}

var ErrClosed = errors.New("asset manager closed")

// pendingChanges bounds the changes buffered between two Dispatch calls.
const pendingChanges = 256

// AssetManager keeps an index of the asset directory. With Watch it follows
// the directory with fsnotify; changes are queued by the watcher goroutine
// and turned into EVENT_CODE_ASSET_CHANGED events by Dispatch, on the
// caller's goroutine.
type AssetManager struct {
	dir    string
	events *core.EventBus

	mutex  sync.RWMutex
	assets map[string]AssetInfo

	fsnotify *fsnotify.Watcher
	changes  chan string
	done     chan struct{}
	wg       sync.WaitGroup
	isClosed bool
}

// NewAssetManager indexes every known file under dir.
func NewAssetManager(dir string, events *core.EventBus) (*AssetManager, error) {
	am := &AssetManager{
		dir:     filepath.Clean(dir),
		events:  events,
		assets:  make(map[string]AssetInfo),
		changes: make(chan string, pendingChanges),
		done:    make(chan struct{}),
	}
	if _, err := os.Stat(am.dir); errors.Is(err, fs.ErrNotExist) {
		core.LogWarn("asset directory %s does not exist, nothing indexed", am.dir)
		return am, nil
	}
	err := filepath.WalkDir(am.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			am.index(path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	core.LogInfo("asset manager indexed %d files under %s", len(am.assets), am.dir)
	return am, nil
}

func (am *AssetManager) Dir() string {
	return am.dir
}

// Path resolves name relative to the asset directory.
func (am *AssetManager) Path(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(am.dir, name)
}

// Watch starts following the asset directory and its sub-directories.
func (am *AssetManager) Watch() error {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if am.isClosed {
		return ErrClosed
	}
	if am.fsnotify != nil {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	am.fsnotify = w
	if err := am.watchRecursive(am.dir); err != nil {
		_ = w.Close()
		am.fsnotify = nil
		return err
	}
	am.wg.Add(1)
	go am.start()
	core.LogInfo("watching %s for asset changes", am.dir)
	return nil
}

// watchRecursive adds name and every directory below it to the watch list.
func (am *AssetManager) watchRecursive(name string) error {
	return filepath.WalkDir(name, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return am.fsnotify.Add(path)
		}
		return nil
	})
}

func (am *AssetManager) start() {
	defer am.wg.Done()
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			am.handleFileEvent(e)
		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %v", err)
		case <-am.done:
			return
		}
	}
}

func (am *AssetManager) handleFileEvent(e fsnotify.Event) {
	path := filepath.Clean(e.Name)
	if e.Has(fsnotify.Create) {
		if s, err := os.Stat(path); err == nil && s.IsDir() {
			am.mutex.Lock()
			err := am.watchRecursive(path)
			am.mutex.Unlock()
			if err != nil {
				core.LogWarn("asset watcher: cannot follow %s: %v", path, err)
			}
			return
		}
	}
	switch {
	case e.Has(fsnotify.Remove), e.Has(fsnotify.Rename):
		if !am.removeAsset(path) {
			return
		}
	case e.Has(fsnotify.Create), e.Has(fsnotify.Write):
		if !am.index(path) {
			return
		}
	default:
		return
	}
	select {
	case am.changes <- path:
	default:
		core.LogWarn("asset change of %s dropped, %d changes pending", path, pendingChanges)
	}
}

// index records path and reports whether it is a known asset kind. A
// re-indexed file keeps its id.
func (am *AssetManager) index(path string) bool {
	kind := KindOf(path)
	if kind == KindNone {
		return false
	}
	modified := time.Now()
	if s, err := os.Stat(path); err == nil {
		modified = s.ModTime()
	}
	path = filepath.Clean(path)

	am.mutex.Lock()
	defer am.mutex.Unlock()
	info, ok := am.assets[path]
	if !ok {
		info = AssetInfo{ID: uuid.New(), Path: path, Kind: kind}
	}
	info.Modified = modified
	am.assets[path] = info
	return true
}

func (am *AssetManager) removeAsset(path string) bool {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	_, ok := am.assets[path]
	delete(am.assets, path)
	return ok
}

// Lookup returns the index entry of path, relative to the asset directory
// or absolute.
func (am *AssetManager) Lookup(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[am.Path(path)]
	return info, ok
}

// Find lists the assets of kind, sorted by path.
func (am *AssetManager) Find(kind Kind) []AssetInfo {
	am.mutex.RLock()
	var out []AssetInfo
	for _, info := range am.assets {
		if info.Kind == kind {
			out = append(out, info)
		}
	}
	am.mutex.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Dispatch fires one EVENT_CODE_ASSET_CHANGED per changed path queued since
// the last call, coalescing repeated writes, and returns how many it fired.
func (am *AssetManager) Dispatch() int {
	seen := make(map[string]bool)
	var order []string
	for {
		select {
		case path := <-am.changes:
			if !seen[path] {
				seen[path] = true
				order = append(order, path)
			}
			continue
		default:
		}
		break
	}
	for _, path := range order {
		core.LogDebug("asset changed: %s", path)
		am.events.Fire(core.EventContext{
			Type: core.EVENT_CODE_ASSET_CHANGED,
			Data: &core.AssetEvent{Path: path, Kind: string(KindOf(path))},
		})
	}
	return len(order)
}

// Close stops the watcher. The index stays readable.
func (am *AssetManager) Close() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	w := am.fsnotify
	am.mutex.Unlock()

	close(am.done)
	if w == nil {
		return nil
	}
	err := w.Close()
	am.wg.Wait()
	return err
}
