package platform

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"herald/pkg/logx"
)

// Settings selects and configures a platform driver.
type Settings struct {
	Driver  string
	APIID   int
	APIHash string
}

// Factory constructs a Dialer from driver settings.
type Factory func(cfg Settings, log logx.Logger) (Dialer, error)

var (
	driversMu sync.RWMutex
	drivers   = map[string]Factory{}
)

// Register makes a driver available to Open. Drivers are expected to call
// this from an init() in their own package; a host links the driver it
// wants with a blank import.
func Register(name string, f Factory) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || f == nil {
		panic("platform: Register with empty name or nil factory")
	}
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, dup := drivers[name]; dup {
		panic("platform: Register called twice for driver " + name)
	}
	drivers[name] = f
}

// Open initializes the configured driver.
func Open(cfg Settings, log logx.Logger) (Dialer, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if name == "" {
		return nil, fmt.Errorf("platform: no driver configured")
	}
	driversMu.RLock()
	f, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("platform: unknown driver %q (linked drivers: %s)", name, driverNames())
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return f(cfg, log)
}

func driverNames() string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	if len(drivers) == 0 {
		return "none"
	}
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
