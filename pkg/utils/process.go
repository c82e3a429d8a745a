package utils

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/process"
)

// RunningProcess identifies a process found by FindProcessByName.
type RunningProcess struct {
	PID  int32
	Name string
}

// FindProcessByName returns the first running process whose executable name
// (without extension, case-insensitive) equals one of names. The calling
// process is never reported.
func FindProcessByName(ctx context.Context, names ...string) (*RunningProcess, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list processes")
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[strings.ToLower(n)] = true
	}

	self := int32(os.Getpid())
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		base := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
		if wanted[base] {
			return &RunningProcess{PID: p.Pid, Name: name}, nil
		}
	}
	return nil, nil
}
