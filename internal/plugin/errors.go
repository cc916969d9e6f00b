package plugin

import "fmt"

// Uninit is returned when something is looked up before it has been
// loaded - e.g. a registry slot queried before LoadStatic/Load has run.
type Uninit struct {
	Resource string
}

func (e *Uninit) Error() string {
	return fmt.Sprintf("plugin: %s is not initialized", e.Resource)
}
