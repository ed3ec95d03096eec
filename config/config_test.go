package config

import (
	"bytes"
	"encoding/hex"
	"os"
	"testing"
	"time"

	"github.com/gitzhang10/pohchain/sign"
)

func TestConfigRead(t *testing.T) {
	config, err := LoadConfig("", "config_test")
	if err != nil {
		t.Fatal(err)
	}

	if config.Name != "node1" || config.ListenAddr != "127.0.0.1:8090" {
		t.Fatalf("unexpected identity %s %s", config.Name, config.ListenAddr)
	}
	if len(config.Peers) != 2 || config.Peers[1] != "127.0.0.1:8100" {
		t.Fatalf("unexpected peers %v", config.Peers)
	}
	if config.TickInterval != 200*time.Millisecond || config.BlockInterval != 5*time.Second {
		t.Fatalf("unexpected intervals %v %v", config.TickInterval, config.BlockInterval)
	}
	if config.ElectionInterval != 30*time.Second {
		t.Fatalf("default election interval not applied: %v", config.ElectionInterval)
	}
	if config.FaucetAmount != 250 || config.SignatureScheme != "schnorr" || config.EnforceLeader {
		t.Fatal("explicit values not read")
	}
	if len(config.PublicKey) == 0 {
		t.Fatal("a key pair should be generated when none is configured")
	}
}

func TestConfigKeyFromEnv(t *testing.T) {
	priv, pub := sign.GenSchnorrKeys()
	os.Setenv("POH_PRIVATE_KEY", hex.EncodeToString(priv))
	defer os.Unsetenv("POH_PRIVATE_KEY")

	config, err := LoadConfig("poh", "config_test")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(config.PublicKey, pub) {
		t.Fatal("public key not derived from the configured private key")
	}
}

func TestDefault(t *testing.T) {
	config := Default()
	if config.ListenAddr != "127.0.0.1:8080" || config.TickInterval != 400*time.Millisecond {
		t.Fatalf("unexpected defaults %+v", config)
	}
	if config.BlockInterval != 10*time.Second || !config.EnforceLeader {
		t.Fatalf("unexpected defaults %+v", config)
	}
	config.SignatureScheme = "rsa"
	if err := config.Validate(); err == nil {
		t.Fatal("unknown scheme accepted")
	}
}
