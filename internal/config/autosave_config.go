package config

import "time"

type AutoSaveConfig interface {
	GetDebounceInterval() time.Duration
	GetMaxAttempts() int
	GetRetryDelay() time.Duration
}

type AutoSave struct{}

var _ AutoSaveConfig = AutoSave{}

func (AutoSave) GetDebounceInterval() time.Duration {
	return 600 * time.Millisecond
}

func (AutoSave) GetMaxAttempts() int {
	return 3
}

func (AutoSave) GetRetryDelay() time.Duration {
	return 2 * time.Second
}
