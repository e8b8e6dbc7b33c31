package threadshell

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// SubmitScript parses a line-oriented job script and submits the job
// it describes. Comment lines prefixed # carry KEY: value directives
// (JOB_NAME, PRIORITY, MEMORY_LIMIT, RUNTIME_LIMIT, CORES,
// DEPENDENCIES); the first non-comment line is the command. A script
// without a command is a submission error and no job is created.
func (s *Scheduler) SubmitScript(path string) (Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return Job{}, fmt.Errorf("open job script: %w", err)
	}
	defer f.Close()

	var (
		name     string
		priority = PriorityMedium
		limits   = defaultLimits()
		deps     []int
		command  string
	)

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "#") {
			command = line
			break
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(line, "#"), ":")
		if !ok {
			// plain comment
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "JOB_NAME":
			name = value
		case "PRIORITY":
			// Unknown names keep the MEDIUM default.
			if p, err := ParsePriority(value); err == nil {
				priority = p
			}
		case "MEMORY_LIMIT":
			mb, err := strconv.Atoi(value)
			if err != nil {
				return Job{}, fmt.Errorf("job script %v: bad MEMORY_LIMIT %q", path, value)
			}
			limits.MaxMemoryMB = mb
		case "RUNTIME_LIMIT":
			sec, err := strconv.Atoi(value)
			if err != nil {
				return Job{}, fmt.Errorf("job script %v: bad RUNTIME_LIMIT %q", path, value)
			}
			limits.MaxRuntime = time.Duration(sec) * time.Second
		case "CORES":
			n, err := strconv.Atoi(value)
			if err != nil {
				return Job{}, fmt.Errorf("job script %v: bad CORES %q", path, value)
			}
			limits.MaxCores = n
		case "DEPENDENCIES":
			for _, tok := range strings.Split(value, ",") {
				id, err := strconv.Atoi(strings.TrimSpace(tok))
				if err != nil {
					return Job{}, fmt.Errorf("job script %v: bad dependency %q", path, tok)
				}
				deps = append(deps, id)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return Job{}, fmt.Errorf("read job script: %w", err)
	}
	if strings.TrimSpace(command) == "" {
		return Job{}, fmt.Errorf("no command found in job script: %v", path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.submitLocked(command, priority, deps)
	if err != nil {
		return Job{}, err
	}
	j.Name = name
	j.Limits = limits
	j.Type = TypeBatch
	return j.Clone(), nil
}
