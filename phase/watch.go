package phase

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a watched file must stay quiet before its change
// is reported. Editors that truncate and then write produce several events per
// save; only the settled content is delivered.
const DefaultSettle = 100 * time.Millisecond

// Change is one settled edit. Data is the file content read after the writes
// stopped; Err is set when it could not be read.
type Change struct {
	Path string
	Data []byte
	Err  error
}

// Watcher reports edits to one stage file and to the condition scripts in a
// set of script directories. Other files in those directories are ignored.
type Watcher struct {
	fs        *fsnotify.Watcher
	stageFile string
	scripts   []string
	settle    time.Duration

	changes chan Change
	errs    chan error
	closeCh chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewWatcher(stageFile string, scriptDirs ...string) (*Watcher, error) {
	return newWatcher(DefaultSettle, stageFile, scriptDirs...)
}

func newWatcher(settle time.Duration, stageFile string, scriptDirs ...string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fs:        fw,
		stageFile: filepath.Clean(stageFile),
		settle:    settle,
		changes:   make(chan Change, 16),
		errs:      make(chan error, 1),
		closeCh:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, d := range scriptDirs {
		w.scripts = append(w.scripts, filepath.Clean(d))
	}

	// Directories, not files: a save that replaces the file keeps being seen.
	dirs := []string{filepath.Dir(w.stageFile)}
	for _, d := range w.scripts {
		if !slices.Contains(dirs, d) {
			dirs = append(dirs, d)
		}
	}
	for _, d := range dirs {
		if err := fw.Add(d); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	go w.run()
	return w, nil
}

// watched reports whether path is the stage file or a script in a script dir.
func (w *Watcher) watched(path string) bool {
	path = filepath.Clean(path)
	if path == w.stageFile {
		return true
	}
	return IsScriptFile(path) && slices.Contains(w.scripts, filepath.Dir(path))
}

func (w *Watcher) run() {
	defer close(w.done)

	pending := make(map[string]bool)
	timer := time.NewTimer(w.settle)
	timer.Stop()

	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 || !w.watched(ev.Name) {
				continue
			}
			pending[filepath.Clean(ev.Name)] = true
			timer.Reset(w.settle)
		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			slices.Sort(paths)
			for _, p := range paths {
				data, err := os.ReadFile(p)
				select {
				case w.changes <- Change{Path: p, Data: data, Err: err}:
				case <-w.closeCh:
					return
				}
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		case <-w.closeCh:
			return
		}
	}
}

// Poll returns the settled changes seen since the last call without blocking.
func (w *Watcher) Poll() []Change {
	var out []Change
	for {
		select {
		case c := <-w.changes:
			out = append(out, c)
		default:
			return out
		}
	}
}

// Err returns the last watch error, if one is waiting.
func (w *Watcher) Err() error {
	select {
	case err := <-w.errs:
		return err
	default:
		return nil
	}
}

func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.fs.Close()
		<-w.done
	})
	return err
}

func IsScriptFile(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".tengo"
}
