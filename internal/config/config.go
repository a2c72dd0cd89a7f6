// Package config loads clamdctl settings from defaults, an optional YAML file
// and CLAMD_* environment variables.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/DevHatRo/clamd-go"
)

// EnvPrefix prefixes every environment override, e.g. CLAMD_NET_HOST.
const EnvPrefix = "CLAMD"

// Settings mirrors the configuration file.
type Settings struct {
	Name      string  `mapstructure:"name"`
	Primary   string  `mapstructure:"primary"`
	Timeout   float64 `mapstructure:"timeout"` // seconds
	ChunkSize int     `mapstructure:"chunk_size"`
	Socket    string  `mapstructure:"socket"`

	CLI struct {
		Bin  string `mapstructure:"bin"`
		Args string `mapstructure:"args"`
	} `mapstructure:"cli"`

	Net struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"net"`

	// Found is filled by whatever provisioned the host: which transports exist.
	Found struct {
		CLI    bool `mapstructure:"cli"`
		TCP    bool `mapstructure:"tcp"`
		Socket bool `mapstructure:"socket"`
	} `mapstructure:"found"`

	Log   LogSettings   `mapstructure:"log"`
	Serve ServeSettings `mapstructure:"serve"`
}

// LogSettings configures the process logger.
type LogSettings struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// ServeSettings configures the HTTP and gRPC gateway.
type ServeSettings struct {
	HTTPAddr       string        `mapstructure:"http_addr"`
	GRPCAddr       string        `mapstructure:"grpc_addr"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
	MaxUploadMB    int64         `mapstructure:"max_upload_mb"`
}

// Load reads settings. With an empty path, clamdctl.yaml is searched for in
// /etc/clamdctl and the working directory, and a missing file is not an error.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("clamdctl")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/clamdctl/")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &s, nil
}

func setDefaults(v *viper.Viper) {
	d := clamd.DefaultConfig()

	v.SetDefault("name", d.Name)
	v.SetDefault("primary", "")
	v.SetDefault("timeout", d.Timeout.Seconds())
	v.SetDefault("chunk_size", d.ChunkSize)
	v.SetDefault("socket", d.Socket)
	v.SetDefault("cli.bin", d.Command.Bin)
	v.SetDefault("cli.args", "")
	v.SetDefault("net.host", d.TCP.Host)
	v.SetDefault("net.port", d.TCP.Port)

	v.SetDefault("found.cli", false)
	v.SetDefault("found.tcp", false)
	v.SetDefault("found.socket", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", true)

	v.SetDefault("serve.http_addr", ":6000")
	v.SetDefault("serve.grpc_addr", ":9000")
	v.SetDefault("serve.health_interval", "30s")
	v.SetDefault("serve.max_upload_mb", 100)
}

// Client converts the settings into library configuration.
func (s *Settings) Client() (clamd.Config, clamd.Availability, error) {
	primary, err := clamd.ParseTransport(s.Primary)
	if err != nil {
		return clamd.Config{}, clamd.Availability{}, err
	}

	cfg := clamd.Config{
		Name:      s.Name,
		Command:   clamd.CommandConfig{Bin: s.CLI.Bin, Args: strings.Fields(s.CLI.Args)},
		TCP:       clamd.TCPConfig{Host: s.Net.Host, Port: s.Net.Port},
		Socket:    s.Socket,
		Timeout:   time.Duration(s.Timeout * float64(time.Second)),
		ChunkSize: s.ChunkSize,
		Primary:   primary,
	}
	avail := clamd.Availability{CLI: s.Found.CLI, TCP: s.Found.TCP, Socket: s.Found.Socket}
	return cfg, avail, nil
}
