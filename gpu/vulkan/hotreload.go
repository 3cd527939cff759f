package vulkan

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/vanta-gfx/vanta/core"
)

// HotReloader watches a device config file and, optionally, directories
// holding loaded shader bytecode, logging and dispatching a callback on
// every write. Grounded on the teacher's asset watcher (a goroutine
// select-looping over an fsnotify.Watcher's Events/Errors channels,
// filtering by file extension) but scoped down to the two things a
// headless graphics backend actually wants reloaded at runtime: config
// tunables and shader binaries, not whole asset trees.
type HotReloader struct {
	watcher *fsnotify.Watcher
	done    chan struct{}

	mu         sync.Mutex
	configPath string
	lastConfig core.DeviceConfig
	onConfig   func(core.DeviceConfig)
	shaderDirs map[string]func(path string)
}

// NewHotReloader starts the underlying fsnotify watcher and its event
// loop. Callers Close it on shutdown.
func NewHotReloader() (*HotReloader, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	r := &HotReloader{
		watcher:    w,
		done:       make(chan struct{}),
		shaderDirs: make(map[string]func(path string)),
	}
	go r.run()
	return r, nil
}

// WatchConfig begins watching path's directory for writes to path
// itself. initial is the config already in effect (the one LoadConfig
// returned at startup), used as the baseline ValidationLayers cannot
// silently change against. onChange is invoked with the freshly
// reloaded config on every write that parses cleanly.
func (r *HotReloader) WatchConfig(path string, initial core.DeviceConfig, onChange func(core.DeviceConfig)) error {
	if err := r.watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	r.mu.Lock()
	r.configPath = path
	r.lastConfig = initial
	r.onConfig = onChange
	r.mu.Unlock()
	return nil
}

// WatchShaderDir begins watching dir for writes to any .spv file,
// invoking onChange with the written file's path. Intended for
// development-mode live shader iteration; callers still have to decide
// whether to rebuild affected pipelines (ShaderModule replacement is
// not automatic — spec's ShaderModule handles are immutable once
// created).
func (r *HotReloader) WatchShaderDir(dir string, onChange func(path string)) error {
	if err := r.watcher.Add(dir); err != nil {
		return err
	}
	r.mu.Lock()
	r.shaderDirs[dir] = onChange
	r.mu.Unlock()
	return nil
}

func (r *HotReloader) run() {
	for {
		select {
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			r.handleEvent(ev.Name)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			core.LogError("hot-reload watcher: %v", err)
		case <-r.done:
			return
		}
	}
}

func (r *HotReloader) handleEvent(name string) {
	r.mu.Lock()
	configPath := r.configPath
	onConfig := r.onConfig
	lastConfig := r.lastConfig
	dir := filepath.Dir(name)
	onShader := r.shaderDirs[dir]
	r.mu.Unlock()

	switch {
	case configPath != "" && filepath.Clean(name) == filepath.Clean(configPath):
		r.reloadConfig(configPath, lastConfig, onConfig)
	case filepath.Ext(name) == ".spv" && onShader != nil:
		core.LogInfo("hot-reload: shader binary changed: %s", name)
		onShader(name)
	}
}

func (r *HotReloader) reloadConfig(path string, prev core.DeviceConfig, onChange func(core.DeviceConfig)) {
	next, err := core.LoadConfig(path)
	if err != nil {
		core.LogWarn("hot-reload: failed to reload config %s: %v", path, err)
		return
	}
	if next.ValidationLayers != prev.ValidationLayers {
		core.LogWarn("hot-reload: validation_layers changed in %s but cannot be applied without a restart; ignoring", path)
		next.ValidationLayers = prev.ValidationLayers
	}
	core.LogInfo("hot-reload: config changed: %s", path)

	r.mu.Lock()
	r.lastConfig = next
	r.mu.Unlock()

	if onChange != nil {
		onChange(next)
	}
}

// Close stops the watch loop and releases the underlying fsnotify
// watcher.
func (r *HotReloader) Close() error {
	close(r.done)
	return r.watcher.Close()
}
