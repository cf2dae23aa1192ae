package cache

import (
	"bufio"
	"context"
	"log/slog"
	"strconv"
	"strings"
)

// Stats holds best-effort aggregate usage metrics from the underlying store.
// Absent fields default to zero values.
type Stats struct {
	ConnectedClients       int64  `json:"connected_clients"`
	UsedMemoryHuman        string `json:"used_memory"`
	TotalCommandsProcessed int64  `json:"total_commands_processed"`
	OpsPerSecond           int64  `json:"instantaneous_ops_per_sec"`
	KeyspaceHits           int64  `json:"keyspace_hits"`
	KeyspaceMisses         int64  `json:"keyspace_misses"`
}

// Stats reports aggregate usage metrics parsed from the server INFO payload.
func (s *Store) Stats(ctx context.Context) Stats {
	var stats Stats

	info, err := s.client.Info(ctx)
	if err != nil {
		s.log.Error("cache stats fetch failed", slog.Any("error", err))
		return stats
	}

	fields := parseInfo(info)
	stats.ConnectedClients = parseInt(fields["connected_clients"])
	stats.UsedMemoryHuman = fields["used_memory_human"]
	stats.TotalCommandsProcessed = parseInt(fields["total_commands_processed"])
	stats.OpsPerSecond = parseInt(fields["instantaneous_ops_per_sec"])
	stats.KeyspaceHits = parseInt(fields["keyspace_hits"])
	stats.KeyspaceMisses = parseInt(fields["keyspace_misses"])

	return stats
}

func parseInfo(payload string) map[string]string {
	fields := make(map[string]string)

	scanner := bufio.NewScanner(strings.NewReader(payload))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}

		fields[key] = value
	}

	return fields
}

func parseInt(value string) int64 {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}

	return n
}
