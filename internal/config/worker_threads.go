package config

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

func resolveWorkerThreads(raw string) (int, error) {
	if strings.EqualFold(raw, "auto") {
		n := runtime.NumCPU()
		if n < 1 {
			n = 1
		}
		return n, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("worker_threads %q must be a positive integer or %q", raw, "auto")
	}
	if n < 1 {
		return 0, fmt.Errorf("worker_threads must be >= 1, got %d", n)
	}
	return n, nil
}
