package config

import (
	"io/ioutil"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/freundallein/sqstransport/chassis/queue"
)

const (
	pathEnv            = "CFG_PATH"
	defaultMetricsAddr = ":2112"
)

// AppConfig ...
type AppConfig struct {
	Storage struct {
		DSN string `yaml:"dsn"`
	}
	AWS struct {
		Region             string `yaml:"region"`
		Endpoint           string `yaml:"endpoint"`
		CredentialsFile    string `yaml:"credentialsFile"`
		CredentialsProfile string `yaml:"credentialsProfile"`
	}
	Queue struct {
		Name              string `yaml:"name"`
		Fifo              bool   `yaml:"fifo"`
		GroupID           string `yaml:"groupID"`
		MaxMessages       int    `yaml:"maxMessages"`
		WaitTime          int    `yaml:"waitTime"`
		VisibilityTimeout int    `yaml:"visibilityTimeout"`
		Retries           int    `yaml:"readRetries"`
	}
	Producer struct {
		Workers  int    `yaml:"workers"`
		Interval int    `yaml:"intervalMs"`
		LogLevel string `yaml:"loglevel"`
	}
	Consumer struct {
		LogLevel string `yaml:"loglevel"`
	}
	Metrics struct {
		Address string `yaml:"address"`
	}
	Chaos struct {
		ErrorChance float64 `yaml:"errorChance"`
	}
}

// Read ...
func Read() (*AppConfig, error) {
	return ReadFile(os.Getenv(pathEnv))
}

// ReadFile ...
func ReadFile(filename string) (*AppConfig, error) {
	buff, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Parse(buff)
}

// Parse ...
func Parse(buff []byte) (*AppConfig, error) {
	cfg := &AppConfig{}
	err := yaml.Unmarshal(buff, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = defaultMetricsAddr
	}
	return cfg, nil
}

// QueueConfig maps the file sections onto a defaulted queue config.
func (c *AppConfig) QueueConfig() queue.Config {
	return queue.Config{
		Name:              c.Queue.Name,
		Endpoint:          c.AWS.Endpoint,
		Fifo:              c.Queue.Fifo,
		GroupID:           c.Queue.GroupID,
		MaxMessages:       c.Queue.MaxMessages,
		WaitTime:          time.Duration(c.Queue.WaitTime) * time.Second,
		VisibilityTimeout: time.Duration(c.Queue.VisibilityTimeout) * time.Second,
		Retries:           c.Queue.Retries,

		//AWS specific
		Region:             c.AWS.Region,
		CredentialsFile:    c.AWS.CredentialsFile,
		CredentialsProfile: c.AWS.CredentialsProfile,
	}.WithDefaults()
}
