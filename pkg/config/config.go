// Package config describes the trackerd YAML file.
package config

import (
	"time"

	"github.com/c2h5oh/datasize"
)

const (
	RoleMaster = "master"
	RoleWorker = "worker"

	CacheBounded   = "bounded"
	CacheUnbounded = "unbounded"
	CachePressure  = "pressure"
	CacheWeak      = "weak"

	CodecNone    = "none"
	CodecMsgpack = "msgpack"
	CodecAvro    = "avro"
)

// Config - root of the trackerd configuration
// yaml and validate tags drive parsing and validation
type Config struct {
	Logger     LoggerConfig     `yaml:"logger" validate:"required"`
	Node       NodeConfig       `yaml:"node" validate:"required"`
	Cache      CacheConfig      `yaml:"cache" validate:"required"`
	RPC        RPCConfig        `yaml:"rpc"`
	Membership MembershipConfig `yaml:"membership"`
}

type LoggerConfig struct {
	Level string `yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	JSON  bool   `yaml:"json"`
}

type NodeConfig struct {
	// Host is the identity reported to the coordinator, hostname when empty.
	Host       string `yaml:"host"`
	Role       string `yaml:"role" validate:"required,oneof=master worker"`
	Listen     string `yaml:"listen" validate:"required_if=Role master"`
	Advertise  string `yaml:"advertise"`
	MasterAddr string `yaml:"master_addr" validate:"required_if=Role worker,omitempty,url"`
}

type CacheConfig struct {
	Kind         string            `yaml:"kind" validate:"required,oneof=bounded unbounded pressure weak"`
	MaxBytes     datasize.ByteSize `yaml:"max_bytes" validate:"required_if=Kind bounded"`
	Codec        string            `yaml:"codec" validate:"omitempty,oneof=none msgpack avro"`
	AvroSchema   string            `yaml:"avro_schema" validate:"required_if=Codec avro"`
	Compress     bool              `yaml:"compress"`
	HeapLimit    datasize.ByteSize `yaml:"heap_limit" validate:"required_if=Kind pressure"`
	ShedFraction float64           `yaml:"shed_fraction" validate:"gte=0,lt=1"`
}

type RPCConfig struct {
	// Timeout bounds each coordinator call, zero waits indefinitely.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

type MembershipConfig struct {
	ZKServers      []string      `yaml:"zk_servers" validate:"dive,hostname_port"`
	Root           string        `yaml:"root" validate:"required_with=ZKServers"`
	SessionTimeout time.Duration `yaml:"session_timeout" validate:"gte=0"`
}

// Enabled reports whether ZooKeeper membership is configured.
func (m MembershipConfig) Enabled() bool {
	return len(m.ZKServers) > 0
}

// Default returns a single-node master with a 512MB bounded cache.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "INFO",
			JSON:  false,
		},
		Node: NodeConfig{
			Role:   RoleMaster,
			Listen: ":0",
		},
		Cache: CacheConfig{
			Kind:     CacheBounded,
			MaxBytes: 512 * datasize.MB,
			Codec:    CodecNone,
		},
		Membership: MembershipConfig{
			Root:           "/partcache",
			SessionTimeout: 5 * time.Second,
		},
	}
}
