// Package registry loads the task source: a JSONC file mapping task names to
// runner command strings.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// runnerPattern is the fixed invocation shape a task command must match to
// be surfaced. Anything else in the tasks file is someone else's task.
var runnerPattern = regexp.MustCompile(`^\s*(?:npx\s+)?glubean\s+run\b`)

// Task is one runnable entry from the task source.
type Task struct {
	Name    string
	Command string
	Args    []string
}

// Registry manages the task source and its configuration.
type Registry struct {
	config Config
	tasks  []Task
	mu     sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log       log.Logger
	TasksFile string
}

// NewRegistry creates a new registry instance. A malformed tasks file is a
// warning, not a failure: the registry then simply surfaces zero tasks.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.TasksFile == "" {
		return nil, fmt.Errorf("tasks file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{config: cfg}
	r.loadTasks(cfg.TasksFile)

	cfg.Log.Debug("Registry loaded", "len(tasks)", len(r.tasks))
	return r, nil
}

func (r *Registry) loadTasks(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		r.config.Log.Warn("Could not read tasks file, no tasks available", "path", path, "err", err)
		return
	}

	var entries map[string]string
	if err := json.Unmarshal(StripJSONC(data), &entries); err != nil {
		r.config.Log.Warn("Malformed tasks file, no tasks available", "path", path, "err", err)
		return
	}

	tasks := make([]Task, 0, len(entries))
	for name, command := range entries {
		if !runnerPattern.MatchString(command) {
			r.config.Log.Debug("Skipping non-runner task", "task", name, "command", command)
			continue
		}
		argv := SplitCommand(command)
		if len(argv) == 0 {
			continue
		}
		tasks = append(tasks, Task{
			Name:    name,
			Command: argv[0],
			Args:    argv[1:],
		})
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	r.tasks = tasks
}

// SplitCommand splits a task command string into an argv. Quoted segments
// (single or double) keep their whitespace; a backslash escapes the next
// character inside double quotes and outside quotes. This is not a shell:
// no globbing, no variable expansion.
func SplitCommand(command string) []string {
	var argv []string
	var cur strings.Builder
	haveArg := false
	inSingle, inDouble := false, false

	flush := func() {
		if haveArg {
			argv = append(argv, cur.String())
			cur.Reset()
			haveArg = false
		}
	}

	for i := 0; i < len(command); i++ {
		c := command[i]
		switch {
		case inSingle:
			if c == '\'' {
				inSingle = false
			} else {
				cur.WriteByte(c)
			}
		case c == '\\' && i+1 < len(command):
			i++
			cur.WriteByte(command[i])
			haveArg = true
		case inDouble:
			if c == '"' {
				inDouble = false
			} else {
				cur.WriteByte(c)
			}
		case c == '\'':
			inSingle = true
			haveArg = true
		case c == '"':
			inDouble = true
			haveArg = true
		case c == ' ' || c == '\t':
			flush()
		default:
			cur.WriteByte(c)
			haveArg = true
		}
	}
	flush()
	return argv
}

// Tasks returns the surfaced runner tasks, sorted by name.
func (r *Registry) Tasks() []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Task, len(r.tasks))
	copy(out, r.tasks)
	return out
}

// Task looks up a single task by name.
func (r *Registry) Task(name string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tasks {
		if t.Name == name {
			return t, true
		}
	}
	return Task{}, false
}
