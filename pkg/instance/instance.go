// Package instance names the running process in logs.
package instance

import "os"

// EnvInstanceID overrides the detected instance name.
const EnvInstanceID = "SHOPFLOW_INSTANCE_ID"

// GetID returns the configured instance id, the platform dyno name, the host
// name, or "local", in that order.
func GetID() string {
	for _, key := range []string{EnvInstanceID, "DYNO"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
