package config

import "github.com/spf13/cobra"

// BindFlags registers an override flag for every ConfigDesc field, for
// ApplyFlags to read back after LoadFile, matching cmd/warren/main.go's
// pattern of plain cobra flags read back with Get*/GetString rather than
// pflag's Var binding helpers. cmd/taskcomputer's run command does not
// call it; it registers and applies its own smaller flag set.
func BindFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("task-request-interval", 0, "Override task_request_interval")
	cmd.Flags().Duration("waiting-for-task-timeout", 0, "Override waiting_for_task_timeout")
	cmd.Flags().Duration("waiting-for-task-session-timeout", 0, "Override waiting_for_task_session_timeout")
	cmd.Flags().Bool("accept-tasks", true, "Whether to request new tasks")
	cmd.Flags().Int("max-assigned-tasks", 0, "Override max_assigned_tasks")
	cmd.Flags().Bool("support-direct-computation", false, "Accept subtasks with no docker_images")
	cmd.Flags().String("containerd-socket", "", "Override containerd_socket")
	cmd.Flags().String("admin-bind-addr", "", "Override admin_bind_addr")
}

// ApplyFlags overlays any flags the user actually set on cmd over cfg,
// leaving unset flags (zero duration, empty string) as the file/default
// value. accept-tasks and support-direct-computation are booleans with
// no natural "unset" sentinel, so only override when Changed().
func ApplyFlags(cmd *cobra.Command, cfg ConfigDesc) (ConfigDesc, error) {
	flags := cmd.Flags()

	if v, err := flags.GetDuration("task-request-interval"); err == nil && v > 0 {
		cfg.TaskRequestInterval = v
	}
	if v, err := flags.GetDuration("waiting-for-task-timeout"); err == nil && v > 0 {
		cfg.WaitingForTaskTimeout = v
	}
	if v, err := flags.GetDuration("waiting-for-task-session-timeout"); err == nil && v > 0 {
		cfg.WaitingForTaskSessionTimeout = v
	}
	if flags.Changed("accept-tasks") {
		if v, err := flags.GetBool("accept-tasks"); err == nil {
			cfg.AcceptTasks = v
		}
	}
	if v, err := flags.GetInt("max-assigned-tasks"); err == nil && v > 0 {
		cfg.MaxAssignedTasks = v
	}
	if flags.Changed("support-direct-computation") {
		if v, err := flags.GetBool("support-direct-computation"); err == nil {
			cfg.SupportDirectComputation = v
		}
	}
	if v, err := flags.GetString("containerd-socket"); err == nil && v != "" {
		cfg.ContainerdSocket = v
	}
	if v, err := flags.GetString("admin-bind-addr"); err == nil && v != "" {
		cfg.AdminBindAddr = v
	}

	if err := cfg.Validate(); err != nil {
		return ConfigDesc{}, err
	}
	return cfg, nil
}
