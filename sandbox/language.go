package sandbox

import (
	"sort"
	"strings"
)

// Runtime describes how one language is staged and interpreted. The same
// record drives both container and host execution.
type Runtime struct {
	// Name is the canonical language name, e.g. "python".
	Name string
	// Extension of the staged file, without the dot.
	Extension string
	// Image is the container image used in container mode.
	Image string
	// Interpreter is the binary invoked inside the container.
	Interpreter string
	// HostBinaries are tried in order in host mode.
	HostBinaries []string
}

// Languages maps request language tags to runtimes.
type Languages struct {
	byTag map[string]Runtime
	names []string
}

// NewLanguages builds a registry; aliases maps extra tags to a runtime name.
func NewLanguages(runtimes []Runtime, aliases map[string]string) *Languages {
	l := &Languages{byTag: make(map[string]Runtime, len(runtimes)+len(aliases))}
	for _, rt := range runtimes {
		if len(rt.HostBinaries) == 0 {
			rt.HostBinaries = []string{rt.Interpreter}
		}
		l.byTag[rt.Name] = rt
		l.names = append(l.names, rt.Name)
	}
	for alias, name := range aliases {
		if rt, ok := l.byTag[name]; ok {
			l.byTag[alias] = rt
		}
	}
	sort.Strings(l.names)
	return l
}

// DefaultLanguages returns the node and python runtimes with the javascript alias.
func DefaultLanguages() *Languages {
	return NewLanguages([]Runtime{
		{
			Name:         "node",
			Extension:    "js",
			Image:        "node:20-alpine",
			Interpreter:  "node",
			HostBinaries: []string{"node"},
		},
		{
			Name:         "python",
			Extension:    "py",
			Image:        "python:3.11-alpine",
			Interpreter:  "python",
			HostBinaries: []string{"python3", "python"},
		},
	}, map[string]string{"javascript": "node"})
}

// Resolve returns the runtime for a tag or an *UnsupportedLanguageError.
func (l *Languages) Resolve(tag string) (Runtime, error) {
	rt, ok := l.byTag[tag]
	if !ok {
		return Runtime{}, &UnsupportedLanguageError{Language: tag}
	}
	return rt, nil
}

// Tags lists every accepted tag, aliases included, sorted.
func (l *Languages) Tags() []string {
	tags := make([]string, 0, len(l.byTag))
	for tag := range l.byTag {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Names lists the canonical runtime names.
func (l *Languages) Names() []string {
	return append([]string(nil), l.names...)
}

func (l *Languages) String() string {
	return strings.Join(l.Tags(), ", ")
}
