/*
Package config implements the type to pass the arguments to the node
and implements a function to load the parameters from a configuration file.
*/
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gitzhang10/pohchain/mempool"
	"github.com/gitzhang10/pohchain/sign"
	"github.com/spf13/viper"
)

// Config defines a type to describe the configuration.
type Config struct {
	Name       string
	ListenAddr string
	Peers      []string // addresses dialed at startup and redialed when lost

	PrivateKey []byte // binary edwards25519 scalar
	PublicKey  []byte

	TickInterval     time.Duration
	BlockInterval    time.Duration
	ElectionInterval time.Duration
	StatusInterval   time.Duration
	RedialInterval   time.Duration
	IdleTimeout      time.Duration
	DialTimeout      time.Duration

	LogLevel        int
	FaucetAmount    uint64
	SignatureScheme string
	EnforceLeader   bool
	GossipCacheSize int
	GossipCacheTTL  time.Duration
}

var defaults = map[string]interface{}{
	"name":              "node0",
	"listen_addr":       "127.0.0.1:8080",
	"peers":             []string{},
	"tick_interval":     "400ms",
	"block_interval":    "10s",
	"election_interval": "30s",
	"status_interval":   "5s",
	"redial_interval":   "5s",
	"idle_timeout":      "60s",
	"dial_timeout":      "5s",
	"log_level":         3,
	"faucet_amount":     100,
	"signature_scheme":  "placeholder",
	"enforce_leader":    true,
	"gossip_cache_size": 4096,
	"gossip_cache_ttl":  "2m",
}

// Default returns a configuration with every default and a fresh key pair.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	conf, err := fromViper(v)
	if err != nil {
		panic(err)
	}
	return conf
}

// LoadConfig loads configuration files by package viper.
func LoadConfig(configPrefix, configName string) (*Config, error) {
	viperConfig := viper.New()

	// for environment variables
	viperConfig.SetEnvPrefix(configPrefix)
	viperConfig.AutomaticEnv()
	replacer := strings.NewReplacer(".", "_")
	viperConfig.SetEnvKeyReplacer(replacer)
	viperConfig.SetConfigName(configName)
	viperConfig.AddConfigPath("./")
	setDefaults(viperConfig)
	err := viperConfig.ReadInConfig()
	if err != nil {
		return nil, err
	}
	return fromViper(viperConfig)
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func fromViper(v *viper.Viper) (*Config, error) {
	conf := &Config{
		Name:             v.GetString("name"),
		ListenAddr:       v.GetString("listen_addr"),
		Peers:            v.GetStringSlice("peers"),
		TickInterval:     v.GetDuration("tick_interval"),
		BlockInterval:    v.GetDuration("block_interval"),
		ElectionInterval: v.GetDuration("election_interval"),
		StatusInterval:   v.GetDuration("status_interval"),
		RedialInterval:   v.GetDuration("redial_interval"),
		IdleTimeout:      v.GetDuration("idle_timeout"),
		DialTimeout:      v.GetDuration("dial_timeout"),
		LogLevel:         v.GetInt("log_level"),
		FaucetAmount:     v.GetUint64("faucet_amount"),
		SignatureScheme:  v.GetString("signature_scheme"),
		EnforceLeader:    v.GetBool("enforce_leader"),
		GossipCacheSize:  v.GetInt("gossip_cache_size"),
		GossipCacheTTL:   v.GetDuration("gossip_cache_ttl"),
	}

	privKeyAsString := v.GetString("private_key")
	if privKeyAsString == "" {
		conf.PrivateKey, conf.PublicKey = sign.GenSchnorrKeys()
	} else {
		privKey, err := hex.DecodeString(privKeyAsString)
		if err != nil {
			return nil, fmt.Errorf("private_key: %w", err)
		}
		pubKey, err := sign.PublicFromPrivate(privKey)
		if err != nil {
			return nil, fmt.Errorf("private_key: %w", err)
		}
		conf.PrivateKey, conf.PublicKey = privKey, pubKey
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate checks the values the node cannot run without.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen_addr is required")
	}
	if c.TickInterval <= 0 || c.BlockInterval <= 0 || c.ElectionInterval <= 0 {
		return errors.New("tick, block and election intervals must be positive")
	}
	if _, ok := mempool.VerifierByName(c.SignatureScheme); !ok {
		return fmt.Errorf("unknown signature_scheme %q", c.SignatureScheme)
	}
	if c.GossipCacheSize <= 0 {
		return errors.New("gossip_cache_size must be positive")
	}
	return nil
}
