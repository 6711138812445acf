package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Role is the process role encoded in instance names.
type Role uint8

const (
	RoleStandalone Role = iota
	RoleServer
	RoleClient
	RoleDedicatedServer
	RoleUnknown
)

func (r Role) String() string {
	switch r {
	case RoleStandalone:
		return "Standalone"
	case RoleServer:
		return "Server"
	case RoleClient:
		return "Client"
	case RoleDedicatedServer:
		return "DedicatedServer"
	default:
		return "Unknown"
	}
}

// ParseRole converts a role name, case-insensitively. Unknown names map to RoleUnknown.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standalone", "":
		return RoleStandalone
	case "server", "listenserver", "listen-server":
		return RoleServer
	case "client":
		return RoleClient
	case "dedicatedserver", "dedicated-server", "dedicated":
		return RoleDedicatedServer
	default:
		return RoleUnknown
	}
}

// ProcessInfo identifies the running process.
// Index disambiguates processes of the same role.
type ProcessInfo struct {
	Role  Role
	Index int
}

// CurrentProcess describes this process with its pid as the index.
func CurrentProcess(role Role) ProcessInfo {
	return ProcessInfo{Role: role, Index: os.Getpid()}
}

// ResolveInstanceName returns "<Project>_<Role> (<Index>)".
func (s *Store) ResolveInstanceName(p ProcessInfo) string {
	return InstanceName(s.project, p)
}

// InstanceName returns "<project>_<Role> (<Index>)".
func InstanceName(project string, p ProcessInfo) string {
	return fmt.Sprintf("%s_%s (%d)", project, p.Role, p.Index)
}

// InstanceInfo describes one instance file.
type InstanceInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"mod_time"`
	Archived   bool      `json:"archived"`
	Compressed bool      `json:"compressed"`
}

// ListInstances returns live instance files sorted by name, followed by
// archived ones when includeArchived is set.
func (s *Store) ListInstances(includeArchived bool) ([]InstanceInfo, error) {
	live, err := scanInstances(s.dir, false)
	if err != nil {
		return nil, err
	}
	list := live
	if includeArchived {
		archived, err := scanInstances(filepath.Join(s.dir, ArchiveDir), true)
		if err != nil {
			return nil, err
		}
		list = append(list, archived...)
	}
	if len(list) == 0 {
		return nil, ErrNoInstances
	}
	return list, nil
}

func scanInstances(dir string, archived bool) ([]InstanceInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var list []InstanceInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, compressed, ok := instanceFromFile(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		list = append(list, InstanceInfo{
			Name:       name,
			Size:       info.Size(),
			ModTime:    info.ModTime(),
			Archived:   archived,
			Compressed: compressed,
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func instanceFromFile(file string) (name string, compressed bool, ok bool) {
	switch {
	case strings.HasSuffix(file, Ext+zstdExt):
		return strings.TrimSuffix(file, Ext+zstdExt), true, true
	case strings.HasSuffix(file, Ext):
		return strings.TrimSuffix(file, Ext), false, true
	}
	return "", false, false
}

// LatestInstance returns the instance most likely written by the last run of role.
// It prefers "<Project>_<Role> (0..10)" and falls back to the newest live file.
func (s *Store) LatestInstance(role Role) (string, error) {
	for i := 0; i <= 10; i++ {
		name := InstanceName(s.project, ProcessInfo{Role: role, Index: i})
		if _, err := os.Stat(s.Path(name)); err == nil {
			return name, nil
		}
	}

	live, err := scanInstances(s.dir, false)
	if err != nil {
		return "", err
	}
	if len(live) == 0 {
		return "", ErrNoInstances
	}
	newest := live[0]
	for _, inst := range live[1:] {
		if inst.ModTime.After(newest.ModTime) {
			newest = inst
		}
	}
	return newest.Name, nil
}
