package instance

import (
	"os"
	"strings"
)

const fallbackID = "storefront-0"

// GetID names this process for outbox claims and cron locks. INSTANCE_ID wins,
// then WORKER_ID, then the hostname (the pod name on Kubernetes).
func GetID() string {
	for _, key := range []string{"INSTANCE_ID", "WORKER_ID"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
