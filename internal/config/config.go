package config

type Config interface {
	EnvConfig
	HTTPConfig
	AutoSaveConfig
}

type EnvConfig interface {
	GetAppName() string
	GetDataFolder() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	HTTP
	AutoSave
}

func New() Config {
	return mainConfig{}
}
