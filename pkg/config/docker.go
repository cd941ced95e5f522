package config

import (
	"os"
	"sync"
)

var (
	inContainerOnce   sync.Once
	inContainerResult bool
)

// InContainer reports whether the process runs inside a Docker container,
// detected by /.dockerenv. The result is cached after the first call.
func InContainer() bool {
	inContainerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		inContainerResult = err == nil
	})
	return inContainerResult
}

// ResolveHostForContainer rewrites loopback hosts to host.docker.internal when
// running in a container, so a containerized server reaches Postgres and Redis
// on the developer's machine. Empty hosts stay empty.
func ResolveHostForContainer(host string) string {
	if !InContainer() {
		return host
	}
	switch host {
	case "localhost", "127.0.0.1":
		return "host.docker.internal"
	}
	return host
}
