// Package config loads the Task Computer's runtime configuration: the
// interval between task requests, the waiting-for-task timeouts, the
// assignment limits, and the admin API bind address. Values come from an
// optional YAML file merged with command-line flag overrides, following
// cmd/warren/main.go's pattern of cobra-owned flags read with GetString
// et al. rather than a generated flag-binding layer.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigDesc is the Task Computer's full runtime configuration. Field
// names mirror the original's ClientConfigDescriptor entries that bear
// on task computation; the cluster-wide entries (p2p ports, node name
// generation, pricing) have no home in this module and are not carried.
type ConfigDesc struct {
	// TaskRequestInterval is the minimum spacing between consecutive
	// request_task attempts while idle.
	TaskRequestInterval time.Duration `yaml:"task_request_interval"`

	// WaitingForTaskTimeout bounds how long a single resource transfer
	// may stay pending before it is abandoned.
	WaitingForTaskTimeout time.Duration `yaml:"waiting_for_task_timeout"`

	// WaitingForTaskSessionTimeout bounds how long the computer waits
	// after a request_task call before resetting its wait state; it is
	// also the TTL used whenever a wait is armed without an explicit one.
	WaitingForTaskSessionTimeout time.Duration `yaml:"waiting_for_task_session_timeout"`

	// AcceptTasks gates whether request_task is ever attempted.
	AcceptTasks bool `yaml:"accept_tasks"`

	// MaxAssignedTasks is validated to be positive. pkg/taskcomputer does
	// not read it: the computer requests a new subtask only when no worker
	// is live, so it runs at most one subtask at a time.
	MaxAssignedTasks int `yaml:"max_assigned_tasks"`

	// SupportDirectComputation gates whether non-container (direct VM)
	// subtasks are accepted.
	SupportDirectComputation bool `yaml:"support_direct_computation"`

	// ContainerdSocket is the containerd socket path used by the
	// container worker's runtime client.
	ContainerdSocket string `yaml:"containerd_socket"`

	// AdminBindAddr is the listen address for the admin HTTP API.
	AdminBindAddr string `yaml:"admin_bind_addr"`
}

// Default returns the built-in defaults, used as the base for
// LoadFile and as the starting point when no config file is given.
func Default() ConfigDesc {
	return ConfigDesc{
		TaskRequestInterval:          5 * time.Second,
		WaitingForTaskTimeout:        36 * time.Hour,
		WaitingForTaskSessionTimeout: 20 * time.Minute,
		AcceptTasks:                  true,
		MaxAssignedTasks:             8,
		SupportDirectComputation:     false,
		ContainerdSocket:             "/run/containerd/containerd.sock",
		AdminBindAddr:                "127.0.0.1:9595",
	}
}

// LoadFile reads a YAML config file and merges it over Default(). A
// missing path is not an error: the defaults are returned unchanged,
// matching cmd/warren/main.go's tolerance for optional config inputs.
func LoadFile(path string) (ConfigDesc, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return ConfigDesc{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ConfigDesc{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return ConfigDesc{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate rejects configurations the computer cannot run with safely.
func (c ConfigDesc) Validate() error {
	if c.MaxAssignedTasks <= 0 {
		return fmt.Errorf("max_assigned_tasks must be positive, got %d", c.MaxAssignedTasks)
	}
	if c.TaskRequestInterval <= 0 {
		return fmt.Errorf("task_request_interval must be positive, got %s", c.TaskRequestInterval)
	}
	if c.WaitingForTaskTimeout <= 0 {
		return fmt.Errorf("waiting_for_task_timeout must be positive, got %s", c.WaitingForTaskTimeout)
	}
	if c.WaitingForTaskSessionTimeout <= 0 {
		return fmt.Errorf("waiting_for_task_session_timeout must be positive, got %s", c.WaitingForTaskSessionTimeout)
	}
	if c.ContainerdSocket == "" {
		return fmt.Errorf("containerd_socket must not be empty")
	}
	if c.AdminBindAddr == "" {
		return fmt.Errorf("admin_bind_addr must not be empty")
	}
	return nil
}
