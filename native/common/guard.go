package common

import (
	"errors"
	"strings"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

// Pauses is a static PauseView loaded from configuration.
type Pauses map[string]bool

// NewPauses builds a pause set from module names.
func NewPauses(modules []string) Pauses {
	p := make(Pauses, len(modules))
	for _, module := range modules {
		if module = strings.ToLower(strings.TrimSpace(module)); module != "" {
			p[module] = true
		}
	}
	return p
}

func (p Pauses) IsPaused(module string) bool { return p[strings.ToLower(module)] }

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
