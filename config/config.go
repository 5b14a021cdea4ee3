package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"go.starlark.net/starlark"

	"pybuild/target"
)

// ModuleCache is used to store loaded Starlark modules
type ModuleCache struct {
	modules map[string]starlark.StringDict
	mutex   sync.RWMutex
}

// NewModuleCache creates a new ModuleCache
func NewModuleCache() *ModuleCache {
	return &ModuleCache{
		modules: make(map[string]starlark.StringDict),
	}
}

// Get retrieves a module from the cache
func (mc *ModuleCache) Get(key string) (starlark.StringDict, bool) {
	mc.mutex.RLock()
	defer mc.mutex.RUnlock()
	module, ok := mc.modules[key]
	return module, ok
}

// Set stores a module in the cache
func (mc *ModuleCache) Set(key string, module starlark.StringDict) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	mc.modules[key] = module
}

// LoadModule is a custom load function for Starlark that implements caching
func LoadModule(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	cache := thread.Local("moduleCache").(*ModuleCache)

	// Check if the module is already cached
	if cachedModule, ok := cache.Get(module); ok {
		return cachedModule, nil
	}

	// If not cached, load the module
	filename := module
	if !filepath.IsAbs(filename) {
		filename = filepath.Join(filepath.Dir(thread.Name), filename)
	}

	globals, err := starlark.ExecFile(thread, filename, nil, nil)
	if err != nil {
		return nil, err
	}

	// Cache the loaded module
	cache.Set(module, globals)

	return globals, nil
}

// ParseStarlarkConfig executes a Starlark build file and returns the targets
// its global 'config' dict defines. Each entry maps a target name to a dict
// with optional 'deps' (list of target names) and either 'steps' (list of
// dicts with 'cmd' and optional 'files') or the single-step shorthand 'cmd'
// plus optional 'files'.
func ParseStarlarkConfig(filename string) (target.Registry, error) {
	cache := NewModuleCache()
	thread := &starlark.Thread{
		Name: filename,
		Load: LoadModule,
	}
	thread.SetLocal("moduleCache", cache)

	globals, err := starlark.ExecFile(thread, filename, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Starlark script")
	}

	configValue, ok := globals["config"]
	if !ok {
		return nil, errors.New("global 'config' object not found in Starlark config")
	}

	configDict, ok := configValue.(*starlark.Dict)
	if !ok {
		return nil, errors.New("global 'config' object is not a dictionary")
	}

	targets := make(target.Registry)

	for _, item := range configDict.Items() {
		name := item.Index(0).(starlark.String).GoString()
		value := item.Index(1)
		if dict, ok := value.(*starlark.Dict); ok {
			t, err := parseTarget(name, dict)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to parse target %s", name)
			}

			targets[name] = t
		}
	}

	return targets, nil
}

// Merge overlays parsed targets onto the built-in registry. Parsed targets
// replace built-ins of the same name wholesale.
func Merge(base, overlay target.Registry) target.Registry {
	merged := make(target.Registry, len(base)+len(overlay))
	for name, t := range base {
		merged[name] = t
	}
	for name, t := range overlay {
		merged[name] = t
	}
	return merged
}

func parseTarget(name string, dict *starlark.Dict) (*target.Target, error) {
	t := &target.Target{Name: name}

	if deps, ok, err := getStringList(dict, "deps"); err != nil {
		return nil, err
	} else if ok {
		t.Deps = deps
	}

	if stepsValue, found, err := dict.Get(starlark.String("steps")); err != nil {
		return nil, err
	} else if found {
		steps, err := parseSteps(stepsValue)
		if err != nil {
			return nil, err
		}
		t.Steps = steps
		return t, nil
	}

	// Single-step shorthand: cmd plus optional files.
	if cmd, ok, err := getStringValue(dict, "cmd"); err != nil {
		return nil, err
	} else if ok {
		step := target.Step{Cmd: cmd}
		if files, ok, err := getStringValue(dict, "files"); err != nil {
			return nil, err
		} else if ok {
			step.Files = files
		}
		t.Steps = []target.Step{step}
	}

	return t, nil
}

func parseSteps(value starlark.Value) ([]target.Step, error) {
	list, ok := value.(*starlark.List)
	if !ok {
		return nil, fmt.Errorf("expected list for key steps, got %T", value)
	}

	var steps []target.Step
	iter := list.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		dict, ok := x.(*starlark.Dict)
		if !ok {
			return nil, fmt.Errorf("expected dict in steps list, got %T", x)
		}

		var step target.Step
		if cmd, ok, err := getStringValue(dict, "cmd"); err != nil {
			return nil, err
		} else if !ok {
			return nil, errors.New("step is missing required key 'cmd'")
		} else {
			step.Cmd = cmd
		}

		if files, ok, err := getStringValue(dict, "files"); err != nil {
			return nil, err
		} else if ok {
			step.Files = files
		}

		steps = append(steps, step)
	}

	return steps, nil
}

func getStringValue(dict *starlark.Dict, key string) (string, bool, error) {
	value, found, err := dict.Get(starlark.String(key))
	if err != nil || !found {
		return "", false, err
	}

	strValue, ok := value.(starlark.String)
	if !ok {
		return "", false, fmt.Errorf("expected string for key %s, got %T", key, value)
	}

	return strValue.GoString(), true, nil
}

func getStringList(dict *starlark.Dict, key string) ([]string, bool, error) {
	value, found, err := dict.Get(starlark.String(key))
	if err != nil || !found {
		return nil, false, err
	}

	list, ok := value.(*starlark.List)
	if !ok {
		return nil, false, fmt.Errorf("expected list for key %s, got %T", key, value)
	}

	var result []string
	iter := list.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		str, ok := x.(starlark.String)
		if !ok {
			return nil, false, fmt.Errorf("expected string in list for key %s, got %T", key, x)
		}
		result = append(result, str.GoString())
	}

	return result, true, nil
}
