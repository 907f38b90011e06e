package queue

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// ConsumerName derives a unique consumer identity from the runtime, so
// replicas of the same process never collide inside a consumer group.
func ConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}
