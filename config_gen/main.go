/*
Package main in the directory config_gen implements a tool to read configuration from a template,
and generate customized configuration files for each node.
The generated configuration file particularly contains the edwards25519 private key of the node
and the addresses of all the other nodes.
*/
package main

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gitzhang10/pohchain/sign"
	"github.com/spf13/viper"
)

// passed through from the template when present
var sharedKeys = []string{
	"tick_interval",
	"block_interval",
	"election_interval",
	"status_interval",
	"redial_interval",
	"idle_timeout",
	"dial_timeout",
	"log_level",
	"faucet_amount",
	"signature_scheme",
	"enforce_leader",
	"gossip_cache_size",
	"gossip_cache_ttl",
}

func main() {
	viperRead := viper.New()
	// for environment variables
	viperRead.SetEnvPrefix("")
	viperRead.AutomaticEnv()
	replacer := strings.NewReplacer(".", "_")
	viperRead.SetEnvKeyReplacer(replacer)
	viperRead.SetConfigName("config_template")
	viperRead.AddConfigPath("./")
	err := viperRead.ReadInConfig()
	if err != nil {
		panic(err)
	}

	// deal with cluster as a string map
	clusterMapInterface := viperRead.GetStringMap("ips")
	portMapInterface := viperRead.GetStringMap("peers_p2p_port")
	nodeNumber := len(clusterMapInterface)
	if nodeNumber != len(portMapInterface) {
		panic("peers_p2p_port does not match with cluster")
	}
	clusterName := make([]string, 0, nodeNumber)
	addrWithPort := make(map[string]string, nodeNumber)
	for name, addr := range clusterMapInterface {
		addrAsString, ok := addr.(string)
		if !ok {
			panic("cluster in the config file cannot be decoded correctly")
		}
		portAsInt, ok := portMapInterface[name].(int)
		if !ok {
			panic("peers_p2p_port contains a non-int value")
		}
		clusterName = append(clusterName, name)
		addrWithPort[name] = addrAsString + ":" + strconv.Itoa(portAsInt)
	}
	sort.Strings(clusterName)

	// create the edwards25519 keys
	privKeys := make(map[string]string, nodeNumber)
	ids := make(map[string]string, nodeNumber)
	for _, name := range clusterName {
		priv, pub := sign.GenSchnorrKeys()
		privKeys[name] = hex.EncodeToString(priv)
		ids[name] = sign.KeyID(pub)
	}

	// write to configure files
	for _, name := range clusterName {
		viperWrite := viper.New()
		viperWrite.SetConfigFile(fmt.Sprintf("%s.yaml", name))

		peers := make([]string, 0, nodeNumber-1)
		for _, other := range clusterName {
			if other != name {
				peers = append(peers, addrWithPort[other])
			}
		}
		viperWrite.Set("name", name)
		viperWrite.Set("listen_addr", addrWithPort[name])
		viperWrite.Set("peers", peers)
		viperWrite.Set("private_key", privKeys[name])
		for _, key := range sharedKeys {
			if viperRead.IsSet(key) {
				viperWrite.Set(key, viperRead.Get(key))
			}
		}
		if err = viperWrite.WriteConfig(); err != nil {
			panic(err)
		}
		fmt.Printf("%s: %s validator %s\n", name, addrWithPort[name], ids[name])
	}
}
