package config

import (
	"context"
	"sync/atomic"

	"github.com/saiset-co/sai-cache/types"
)

type Manager struct {
	ctx        context.Context
	configPath string
	config     atomic.Pointer[types.Config]
}

func NewManager(ctx context.Context, configPath string) *Manager {
	return &Manager{
		ctx:        ctx,
		configPath: configPath,
	}
}

func (cm *Manager) Load() error {
	config, err := LoadConfig(cm.configPath)
	if err != nil {
		return err
	}

	cm.config.Store(config)

	return nil
}

func (cm *Manager) GetConfig() *types.Config {
	return cm.config.Load()
}
