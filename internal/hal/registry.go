package hal

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	regMu    sync.Mutex
	registry = map[string]func() Target{}
)

// Register installs a device family factory. Families register from init()
// in their own file, so adding a target never touches the scheduler.
func Register(family string, factory func() Target) {
	family = strings.ToLower(strings.TrimSpace(family))
	if family == "" || factory == nil {
		panic("hal: invalid family registration")
	}
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := registry[family]; dup {
		panic("hal: duplicate family registration: " + family)
	}
	registry[family] = factory
}

// New resolves a device family by name. An unknown family is a hard failure
// at arming time, never something the tick loop discovers later.
func New(family string) (Target, error) {
	key := strings.ToLower(strings.TrimSpace(family))
	regMu.Lock()
	factory := registry[key]
	regMu.Unlock()
	if factory == nil {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnsupportedTarget, family, strings.Join(Families(), ", "))
	}
	return factory(), nil
}

// Families lists the registered device families, sorted.
func Families() []string {
	regMu.Lock()
	defer regMu.Unlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
