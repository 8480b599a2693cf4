package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml"
)

type Custom struct {
	Link struct {
		Role           string `toml:"role"`
		Address        string `toml:"address"`
		Port           int    `toml:"port"`
		Unix           string `toml:"unix"`
		QueueCapacity  int    `toml:"queue-capacity"`
		ReadBufferSize int    `toml:"read-buffer-size"`
		WriteTimeout   int    `toml:"write-timeout"`
	} `toml:"link"`
	Journal struct {
		Dir string `toml:"dir"`
	} `toml:"journal"`
	RPC struct {
		Port int `toml:"port"`
	} `toml:"rpc"`
	Log struct {
		Level   int    `toml:"level"`
		Filter  string `toml:"filter"`
		Limiter int    `toml:"limiter"`
	} `toml:"log"`
}

func Initialize(file string) (*Custom, error) {
	f, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var config Custom
	err = toml.Unmarshal(f, &config)
	if err != nil {
		return nil, err
	}
	err = config.normalize()
	if err != nil {
		return nil, err
	}
	return &config, nil
}

func DefaultCustom() *Custom {
	var config Custom
	err := config.normalize()
	if err != nil {
		panic(err)
	}
	return &config
}

func (c *Custom) WriteDeadline() time.Duration {
	return time.Duration(c.Link.WriteTimeout) * time.Millisecond
}

func (c *Custom) normalize() error {
	switch c.Link.Role {
	case "", "server", "client":
	default:
		return fmt.Errorf("invalid link role %s", c.Link.Role)
	}
	if c.Link.Address == "" {
		c.Link.Address = DefaultAddress
	}
	if c.Link.Port == 0 {
		c.Link.Port = DefaultPort
	}
	if c.Link.Port < 0 || c.Link.Port > 65535 {
		return fmt.Errorf("invalid link port %d", c.Link.Port)
	}
	if c.Link.QueueCapacity == 0 {
		c.Link.QueueCapacity = QueueCapacity
	}
	if c.Link.QueueCapacity < 0 {
		return fmt.Errorf("invalid queue capacity %d", c.Link.QueueCapacity)
	}
	if c.Link.ReadBufferSize == 0 {
		c.Link.ReadBufferSize = ReadBufferSize
	}
	if c.Link.ReadBufferSize < 2 {
		return fmt.Errorf("invalid read buffer size %d", c.Link.ReadBufferSize)
	}
	if c.Link.WriteTimeout < 0 {
		return fmt.Errorf("invalid write timeout %d", c.Link.WriteTimeout)
	}
	if c.Log.Level == 0 {
		c.Log.Level = DefaultLogLevel
	}
	return nil
}
