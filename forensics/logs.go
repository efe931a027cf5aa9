package forensics

import (
	"bufio"
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hluisi/roguehunter/model"
)

// logLine is the subset of `log show --style ndjson`'s per-entry fields
// carried into LogEntry.
type logLine struct {
	Timestamp        string `json:"timestamp"`
	MachTimestamp    int64  `json:"machTimestamp"`
	Subsystem        string `json:"subsystem"`
	Category         string `json:"category"`
	ProcessImagePath string `json:"processImagePath"`
	ProcessID        int    `json:"processID"`
	MessageType      string `json:"messageType"`
	EventMessage     string `json:"eventMessage"`
}

// parseLogShow parses one ndjson line per log entry. A line that fails to
// unmarshal is skipped; the parse never aborts.
func parseLogShow(raw []byte) []model.LogEntry {
	var entries []model.LogEntry

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 256*1024), 4*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '[' || line[0] == ']' || line[0] == ',' {
			continue
		}
		line = bytes.TrimSuffix(line, []byte(","))

		var ll logLine
		if err := json.Unmarshal(line, &ll); err != nil {
			continue
		}

		ts := parseLogTimestamp(ll.Timestamp)
		entries = append(entries, model.LogEntry{
			ID:            uuid.NewString(),
			Timestamp:     ts,
			MachTimestamp: ll.MachTimestamp,
			Subsystem:     ll.Subsystem,
			Category:      ll.Category,
			ProcessName:   processNameFromPath(ll.ProcessImagePath),
			ProcessID:     ll.ProcessID,
			MessageType:   ll.MessageType,
			EventMessage:  ll.EventMessage,
		})
	}
	return entries
}

func parseLogTimestamp(s string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.000000-0700",
		"2006-01-02T15:04:05.000000-07:00",
		time.RFC3339,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Now()
}

func processNameFromPath(path string) string {
	if path == "" {
		return ""
	}
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
