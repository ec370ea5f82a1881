package watch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceInterval is the quiet period a path must see before its change is
// emitted, per spec §4.5.
const debounceInterval = 100 * time.Millisecond

// ChangeEvent is one debounced, content-hash-deduped filesystem change
// ready to push.
type ChangeEvent struct {
	Rule    *Rule
	AbsPath string
	RelPath string
	Removed bool
	Time    time.Time
}

// Engine watches an arbitrary set of named Rules and emits ChangeEvents on
// its Events channel once a path has settled for debounceInterval and its
// content actually differs from the last emitted hash.
type Engine struct {
	fsw *fsnotify.Watcher

	mu          sync.Mutex
	rules       map[string]*Rule
	watchedDirs map[string]int // absolute dir -> number of rules relying on it

	debounceMu sync.Mutex
	timers     map[string]*time.Timer // key: ruleName + "\x00" + absPath

	hashMu   sync.Mutex
	lastHash map[string]string // key: ruleName + "\x00" + absPath

	events  chan ChangeEvent
	stop    chan struct{}
	stopped chan struct{}
}

// New returns a started Engine; call Stop when done.
func New() (*Engine, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: creating fsnotify watcher: %w", err)
	}

	e := &Engine{
		fsw:         fsw,
		rules:       make(map[string]*Rule),
		watchedDirs: make(map[string]int),
		timers:      make(map[string]*time.Timer),
		lastHash:    make(map[string]string),
		events:      make(chan ChangeEvent, 256),
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	go e.loop()
	return e, nil
}

// Events returns the channel of debounced, deduped changes.
func (e *Engine) Events() <-chan ChangeEvent { return e.events }

// Stop shuts the engine down, cancelling any pending debounce timers.
func (e *Engine) Stop() {
	select {
	case <-e.stop:
		return
	default:
	}
	close(e.stop)
	e.fsw.Close()
	<-e.stopped
}

// AddRule starts watching rule.Path (and, if Recursive, every subdirectory)
// and registers rule for matching against future events.
func (e *Engine) AddRule(rule *Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.rules[rule.Name]; exists {
		return fmt.Errorf("watch: rule %q already registered", rule.Name)
	}

	dirs := []string{rule.Path}
	if rule.Recursive {
		var err error
		dirs, err = listDirs(rule.Path)
		if err != nil {
			return fmt.Errorf("watch: walking %s: %w", rule.Path, err)
		}
	}

	for _, d := range dirs {
		if e.watchedDirs[d] == 0 {
			if err := e.fsw.Add(d); err != nil {
				return fmt.Errorf("watch: adding %s: %w", d, err)
			}
		}
		e.watchedDirs[d]++
	}

	e.rules[rule.Name] = rule
	return nil
}

// RemoveRule stops watching rule's directories that no other rule still
// needs, and forgets the rule.
func (e *Engine) RemoveRule(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rule, ok := e.rules[name]
	if !ok {
		return fmt.Errorf("watch: rule %q not registered", name)
	}

	dirs := []string{rule.Path}
	if rule.Recursive {
		if found, err := listDirs(rule.Path); err == nil {
			dirs = found
		}
	}
	for _, d := range dirs {
		if e.watchedDirs[d] <= 1 {
			delete(e.watchedDirs, d)
			e.fsw.Remove(d)
		} else {
			e.watchedDirs[d]--
		}
	}

	delete(e.rules, name)
	return nil
}

// ListRules returns a snapshot of every registered rule.
func (e *Engine) ListRules() []*Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Rule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r)
	}
	return out
}

// Enumerate walks rule.Path and returns the absolute paths of every file
// that passes its include/exclude filter, for the hub's initial-sync push
// to a newly registered agent (spec §9).
func Enumerate(rule *Rule) ([]string, error) {
	var matches []string
	err := filepath.Walk(rule.Path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		relPath, relErr := filepath.Rel(rule.Path, path)
		if relErr != nil {
			return nil
		}
		if relPath == "." {
			return nil
		}
		if info.IsDir() {
			if !rule.Recursive && path != rule.Path {
				return filepath.SkipDir
			}
			if !Included(relPath, true, rule.Include, rule.Exclude) {
				return filepath.SkipDir
			}
			return nil
		}
		if Included(relPath, false, rule.Include, rule.Exclude) {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("watch: enumerating %s: %w", rule.Path, err)
	}
	return matches, nil
}

func listDirs(root string) ([]string, error) {
	var dirs []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs, err
}

func (e *Engine) loop() {
	defer close(e.stopped)
	defer close(e.events)

	for {
		select {
		case <-e.stop:
			e.debounceMu.Lock()
			for _, t := range e.timers {
				t.Stop()
			}
			e.timers = nil
			e.debounceMu.Unlock()
			return

		case ev, ok := <-e.fsw.Events:
			if !ok {
				return
			}
			e.handleFSEvent(ev)

		case _, ok := <-e.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

func (e *Engine) handleFSEvent(ev fsnotify.Event) {
	absPath := ev.Name
	info, statErr := os.Lstat(absPath)
	isDir := statErr == nil && info.IsDir()

	if ev.Has(fsnotify.Create) && isDir {
		e.maybeWatchNewDir(absPath)
		return
	}

	e.mu.Lock()
	matching := make([]*Rule, 0, 1)
	for _, rule := range e.rules {
		relPath, err := filepath.Rel(rule.Path, absPath)
		if err != nil || relPath == "." || strings.HasPrefix(relPath, "..") {
			continue
		}
		if !rule.Recursive && filepath.Dir(absPath) != filepath.Clean(rule.Path) {
			continue
		}
		if !Included(relPath, isDir, rule.Include, rule.Exclude) {
			continue
		}
		matching = append(matching, rule)
	}
	e.mu.Unlock()

	for _, rule := range matching {
		e.scheduleEvent(rule, absPath, ev)
	}
}

func (e *Engine) maybeWatchNewDir(absPath string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rule := range e.rules {
		if !rule.Recursive {
			continue
		}
		if rel, err := filepath.Rel(rule.Path, absPath); err == nil && !strings.HasPrefix(rel, "..") {
			if e.watchedDirs[absPath] == 0 {
				e.fsw.Add(absPath)
			}
			e.watchedDirs[absPath]++
		}
	}
}

func (e *Engine) scheduleEvent(rule *Rule, absPath string, ev fsnotify.Event) {
	key := rule.Name + "\x00" + absPath

	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		e.cancelDebounce(key)
		e.hashMu.Lock()
		delete(e.lastHash, key)
		e.hashMu.Unlock()
		e.emit(rule, absPath, true)
		return
	}

	e.debounceMu.Lock()
	if e.timers == nil {
		e.debounceMu.Unlock()
		return
	}
	if t, ok := e.timers[key]; ok {
		t.Stop()
	}
	e.timers[key] = time.AfterFunc(debounceInterval, func() {
		e.debounceMu.Lock()
		if e.timers != nil {
			delete(e.timers, key)
		}
		e.debounceMu.Unlock()
		e.checkAndEmit(rule, absPath, key)
	})
	e.debounceMu.Unlock()
}

func (e *Engine) cancelDebounce(key string) {
	e.debounceMu.Lock()
	defer e.debounceMu.Unlock()
	if e.timers == nil {
		return
	}
	if t, ok := e.timers[key]; ok {
		t.Stop()
		delete(e.timers, key)
	}
}

func (e *Engine) checkAndEmit(rule *Rule, absPath, key string) {
	hash, err := hashFile(absPath)
	if err != nil {
		return // file vanished or became unreadable between the event and now
	}

	e.hashMu.Lock()
	unchanged := e.lastHash[key] == hash
	e.lastHash[key] = hash
	e.hashMu.Unlock()

	if unchanged {
		return
	}
	e.emit(rule, absPath, false)
}

func (e *Engine) emit(rule *Rule, absPath string, removed bool) {
	relPath, err := filepath.Rel(rule.Path, absPath)
	if err != nil {
		return
	}
	select {
	case e.events <- ChangeEvent{Rule: rule, AbsPath: absPath, RelPath: relPath, Removed: removed, Time: time.Now()}:
	case <-e.stop:
	}
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
