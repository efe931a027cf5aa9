package forensics

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/hluisi/roguehunter/model"
)

var (
	processHeaderRE = regexp.MustCompile(`^Process:\s+(.+?)\s+\[(\d+)\]`)
	pathRE          = regexp.MustCompile(`^Path:\s+(.+)$`)
	parentRE        = regexp.MustCompile(`^Parent:\s+(.+?)\s+\[(\d+)\]`)
	footprintRE     = regexp.MustCompile(`^Footprint:\s+([\d.]+)\s*MB`)
	cpuTimeRE       = regexp.MustCompile(`^CPU Time:\s+([\d.]+)s`)
	threadHeaderRE  = regexp.MustCompile(`^Thread\s+(0x[0-9a-fA-F]+)\b.*?(\d+)\s+samples.*priority\s+(\d+)`)
	threadNameRE    = regexp.MustCompile(`^\s*Thread name:\s+"(.+)"`)
	threadStateRE   = regexp.MustCompile(`^\s*Thread State:\s+(.+)$`)
	blockedOnRE     = regexp.MustCompile(`^\s*Blocked on:\s+(.+)$`)
)

// decodeResult holds the parse tree for one capture before the caller
// stamps capture_id onto each process record; thread records already
// carry their parent process's ID.
type decodeResult struct {
	processes []model.SpindumpProcess
	threads   []model.SpindumpThread
}

// parseSpindump parses the decoded kernel-trace text: one process record
// per `Process:` block, one thread record per thread line nested under it.
// A line that matches no known pattern is skipped; the parse never aborts
// partway through.
func parseSpindump(text []byte) decodeResult {
	var res decodeResult

	scanner := bufio.NewScanner(bytes.NewReader(text))
	scanner.Buffer(make([]byte, 0, 256*1024), 4*1024*1024)

	var curProc *model.SpindumpProcess
	threadCounts := make(map[string]int)

	for scanner.Scan() {
		line := scanner.Text()

		if m := processHeaderRE.FindStringSubmatch(line); m != nil {
			pid, _ := strconv.Atoi(m[2])
			p := model.SpindumpProcess{ID: uuid.NewString(), PID: pid, Name: m[1]}
			res.processes = append(res.processes, p)
			curProc = &res.processes[len(res.processes)-1]
			continue
		}
		if curProc == nil {
			continue
		}

		switch {
		case pathRE.MatchString(line):
			curProc.Path = pathRE.FindStringSubmatch(line)[1]
		case parentRE.MatchString(line):
			m := parentRE.FindStringSubmatch(line)
			curProc.ParentName = m[1]
			curProc.ParentPID, _ = strconv.Atoi(m[2])
		case footprintRE.MatchString(line):
			curProc.FootprintMB, _ = strconv.ParseFloat(footprintRE.FindStringSubmatch(line)[1], 64)
		case cpuTimeRE.MatchString(line):
			curProc.CPUTimeSec, _ = strconv.ParseFloat(cpuTimeRE.FindStringSubmatch(line)[1], 64)
		case threadHeaderRE.MatchString(line):
			m := threadHeaderRE.FindStringSubmatch(line)
			samples, _ := strconv.Atoi(m[2])
			priority, _ := strconv.Atoi(m[3])
			t := model.SpindumpThread{
				ID:          uuid.NewString(),
				ProcessID:   curProc.ID,
				ThreadID:    m[1],
				SampleCount: samples,
				Priority:    priority,
			}
			res.threads = append(res.threads, t)
			threadCounts[curProc.ID]++
		case len(res.threads) > 0 && threadNameRE.MatchString(line):
			res.threads[len(res.threads)-1].ThreadName = strings.TrimSpace(threadNameRE.FindStringSubmatch(line)[1])
		case len(res.threads) > 0 && threadStateRE.MatchString(line):
			res.threads[len(res.threads)-1].State = strings.TrimSpace(threadStateRE.FindStringSubmatch(line)[1])
		case len(res.threads) > 0 && blockedOnRE.MatchString(line):
			res.threads[len(res.threads)-1].BlockedOn = strings.TrimSpace(blockedOnRE.FindStringSubmatch(line)[1])
		}
	}

	for i := range res.processes {
		res.processes[i].ThreadCount = threadCounts[res.processes[i].ID]
	}
	return res
}
