// Package config applies process environment on top of the file config.
package config

import (
	"os"
	"strings"

	"partcache/pkg/config"
)

const (
	EnvMasterAddr = "PARTCACHE_MASTER_ADDR"
	EnvHost       = "PARTCACHE_HOST"
	EnvZKServers  = "ZK_SERVERS"
)

// ApplyEnv overrides node identity and cluster addresses from the
// environment. A master address turns the node into a worker.
func ApplyEnv(cfg *config.Config) {
	applyEnv(cfg, os.Getenv)
}

func applyEnv(cfg *config.Config, getenv func(string) string) {
	if host := strings.TrimSpace(getenv(EnvHost)); host != "" {
		cfg.Node.Host = host
	}
	if addr := strings.TrimSpace(getenv(EnvMasterAddr)); addr != "" {
		cfg.Node.MasterAddr = addr
		cfg.Node.Role = config.RoleWorker
	}
	if raw := getenv(EnvZKServers); raw != "" { // "zk1:2181,zk2:2181"
		var servers []string
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				servers = append(servers, s)
			}
		}
		cfg.Membership.ZKServers = servers
	}
}
