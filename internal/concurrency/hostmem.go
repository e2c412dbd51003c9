package concurrency

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// AvailableMemGB estimates the host's total memory in GiB by reading
// /proc/meminfo's MemTotal line. It is used once at process start to
// resolve a "auto" parallel_limit; no third-party host-metrics library in
// the dependency pack offers this narrowly, so it is hand-rolled against
// the one Linux-specific file the value actually needs.
func AvailableMemGB() int {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return int(kb / (1024 * 1024))
	}
	return 0
}
