//go:build darwin

package containermanager

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/lima-vm/lima/pkg/instance"
	"github.com/lima-vm/lima/pkg/limayaml"
	"github.com/lima-vm/lima/pkg/store"
	"github.com/rs/zerolog"
)

const (
	// LimaInstanceName is the name of the Lima VM instance the Task
	// Computer provisions.
	LimaInstanceName = "taskcomputer"
)

// LimaManager manages the Lima VM that hosts containerd on macOS.
type LimaManager struct {
	instanceName string
	instance     *store.Instance
	dataDir      string
	logger       zerolog.Logger
}

// NewLimaManager creates a new Lima VM manager.
func NewLimaManager(dataDir string) (*LimaManager, error) {
	return &LimaManager{
		instanceName: LimaInstanceName,
		dataDir:      dataDir,
		logger: zerolog.New(os.Stdout).With().
			Str("component", "lima-vm").
			Timestamp().
			Logger(),
	}, nil
}

// Start starts the Lima VM with containerd.
func (lm *LimaManager) Start(ctx context.Context) error {
	lm.logger.Info().Msg("starting lima VM")

	if !lm.isLimaInstalled() {
		return fmt.Errorf("lima is not installed, install with: brew install lima")
	}

	inst, err := store.Inspect(lm.instanceName)
	if err == nil {
		lm.instance = inst
		lm.logger.Info().Str("instance", lm.instanceName).Msg("lima instance already exists")

		if inst.Status == store.StatusRunning {
			lm.logger.Info().Msg("lima VM already running")
			return nil
		}

		lm.logger.Info().Msg("starting existing lima instance")
		if err := instance.Start(ctx, inst, "", false); err != nil {
			return fmt.Errorf("failed to start lima instance: %w", err)
		}
		return lm.waitForReady(ctx)
	}

	lm.logger.Info().Msg("creating new lima instance")
	if err := lm.createInstance(ctx); err != nil {
		return fmt.Errorf("failed to create lima instance: %w", err)
	}

	inst, err = store.Inspect(lm.instanceName)
	if err != nil {
		return fmt.Errorf("failed to inspect created instance: %w", err)
	}
	lm.instance = inst

	lm.logger.Info().Msg("starting lima instance")
	if err := instance.Start(ctx, inst, "", false); err != nil {
		return fmt.Errorf("failed to start lima instance: %w", err)
	}

	if err := lm.waitForReady(ctx); err != nil {
		return fmt.Errorf("lima VM failed to become ready: %w", err)
	}

	lm.logger.Info().Msg("lima VM started")
	return nil
}

// Stop stops the Lima VM.
func (lm *LimaManager) Stop(ctx context.Context) error {
	if lm.instance == nil {
		return nil
	}

	lm.logger.Info().Msg("stopping lima VM")

	if err := instance.StopGracefully(ctx, lm.instance, false); err != nil {
		lm.logger.Warn().Err(err).Msg("graceful stop failed, forcing stop")
		instance.StopForcibly(lm.instance)
	}

	lm.logger.Info().Msg("lima VM stopped")
	return nil
}

// GetSocketPath returns the path to the containerd socket exposed by Lima.
func (lm *LimaManager) GetSocketPath() string {
	if lm.instance == nil {
		return ""
	}

	limaHome := os.Getenv("LIMA_HOME")
	if limaHome == "" {
		home, _ := os.UserHomeDir()
		limaHome = filepath.Join(home, ".lima")
	}

	return filepath.Join(limaHome, lm.instanceName, "sock", "containerd.sock")
}

func (lm *LimaManager) createInstance(ctx context.Context) error {
	config := lm.createLimaConfig()

	configYAML, err := limayaml.Marshal(&config, false)
	if err != nil {
		return fmt.Errorf("failed to marshal lima config: %w", err)
	}

	_, err = instance.Create(ctx, lm.instanceName, configYAML, false)
	if err != nil {
		return fmt.Errorf("failed to create instance: %w", err)
	}

	return nil
}

// createLimaConfig builds a minimal Lima VM tailored to running one
// containerd daemon and the subtask resource/work directories.
func (lm *LimaManager) createLimaConfig() limayaml.LimaYAML {
	arch := limayaml.AARCH64
	if runtime.GOARCH == "amd64" {
		arch = limayaml.X8664
	}

	cpus := 2
	memory := "2GiB"
	disk := "20GiB"

	return limayaml.LimaYAML{
		Arch:   &arch,
		CPUs:   &cpus,
		Memory: &memory,
		Disk:   &disk,

		Images: []limayaml.Image{
			{
				File: limayaml.File{
					Location: "https://dl-cdn.alpinelinux.org/alpine/v3.19/releases/cloud/alpine-virt-3.19.0-aarch64.iso",
					Arch:     limayaml.AARCH64,
				},
			},
			{
				File: limayaml.File{
					Location: "https://dl-cdn.alpinelinux.org/alpine/v3.19/releases/cloud/alpine-virt-3.19.0-x86_64.iso",
					Arch:     limayaml.X8664,
				},
			},
		},

		Containerd: limayaml.Containerd{
			System: ptrBool(true),
		},

		Mounts: []limayaml.Mount{
			{
				Location: lm.dataDir,
				Writable: ptrBool(true),
			},
		},

		Provision: []limayaml.Provision{
			{
				Mode:   limayaml.ProvisionModeSystem,
				Script: "#!/bin/sh\nset -eux -o pipefail\nif ! command -v containerd > /dev/null; then\n  apk add containerd\nfi\nrc-update add containerd default\nrc-service containerd start || true",
			},
		},

		Message: "Task Computer lima VM - ready to run subtask containers",
	}
}

func (lm *LimaManager) waitForReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for lima VM to be ready")
		case <-ticker.C:
			inst, err := store.Inspect(lm.instanceName)
			if err != nil {
				lm.logger.Debug().Err(err).Msg("failed to inspect instance")
				continue
			}

			if inst.Status == store.StatusRunning {
				socketPath := lm.GetSocketPath()
				if _, err := os.Stat(socketPath); err == nil {
					lm.logger.Info().Str("socket", socketPath).Msg("containerd socket ready")
					return nil
				}
				lm.logger.Debug().Str("socket", socketPath).Msg("waiting for containerd socket")
			}
		}
	}
}

func (lm *LimaManager) isLimaInstalled() bool {
	_, err := exec.LookPath("limactl")
	return err == nil
}

func ptrBool(b bool) *bool {
	return &b
}
