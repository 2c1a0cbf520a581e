package config

import (
	"fmt"
	"github.com/fansqz/remote-debugger/constants"
	"github.com/fansqz/remote-debugger/debugger/remote_debugger"
	"github.com/fansqz/remote-debugger/debugger/session"
	"github.com/fansqz/remote-debugger/debugger/synchronizer"
	e "github.com/fansqz/remote-debugger/error"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"strings"
	"time"
)

// AgentConfig 远程调试agent的连接配置
type AgentConfig struct {
	Transport    string        `mapstructure:"transport"`
	Address      string        `mapstructure:"address"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type SessionConfig struct {
	QueueSize              int  `mapstructure:"queue_size"`
	SuppressModuleLoadStop bool `mapstructure:"suppress_module_load_stop"`
}

// ServerConfig 面向IDE的DAP服务
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type LogConfig struct {
	Path  string `mapstructure:"path"`
	Level string `mapstructure:"level"`
}

type Config struct {
	Agent   AgentConfig   `mapstructure:"agent"`
	Session SessionConfig `mapstructure:"session"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
}

const (
	EnvPrefix      = "RDBG"
	DefaultLogPath = "/var/remote-debugger.log"
)

// flagKeys 命令行参数与配置项的对应关系
var flagKeys = map[string]string{
	"transport": "agent.transport",
	"address":   "agent.address",
	"port":      "server.port",
	"log-level": "log.level",
	"log-path":  "log.path",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.transport", string(constants.TransportTCP))
	v.SetDefault("agent.address", "127.0.0.1:2222")
	v.SetDefault("agent.dial_timeout", 10*time.Second)
	v.SetDefault("agent.write_timeout", 5*time.Second)
	v.SetDefault("agent.idle_timeout", time.Duration(0))
	v.SetDefault("session.queue_size", 256)
	v.SetDefault("session.suppress_module_load_stop", false)
	v.SetDefault("server.port", 8889)
	v.SetDefault("log.path", DefaultLogPath)
	v.SetDefault("log.level", "info")
}

// Load 读取配置，优先级：命令行参数 > 环境变量 > 配置文件 > 默认值
// cfgFile为空时不读取配置文件，flags可以为nil
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s fail: %w", cfgFile, err)
		}
	}
	if flags != nil {
		for name, key := range flagKeys {
			if flag := flags.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, err
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config fail: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch constants.TransportType(c.Agent.Transport) {
	case constants.TransportTCP, constants.TransportWebsocket:
	default:
		return fmt.Errorf("%w: %s", e.ErrTransportNotSupported, c.Agent.Transport)
	}
	if c.Agent.Address == "" {
		return fmt.Errorf("agent.address is empty")
	}
	if c.Agent.IdleTimeout < 0 {
		return fmt.Errorf("agent.idle_timeout must not be negative")
	}
	return nil
}

// SessionOption 转换为调试会话的配置
func (c *Config) SessionOption() session.Option {
	return session.Option{
		Dial: remote_debugger.DialOption{
			Transport:    constants.TransportType(c.Agent.Transport),
			Address:      c.Agent.Address,
			DialTimeout:  c.Agent.DialTimeout,
			WriteTimeout: c.Agent.WriteTimeout,
		},
		Debugger:     remote_debugger.Option{IdleTimeout: c.Agent.IdleTimeout},
		Synchronizer: synchronizer.Option{SuppressModuleLoadStop: c.Session.SuppressModuleLoadStop},
		QueueSize:    c.Session.QueueSize,
	}
}
