package config

import (
	"time"
)

// Source names a station source implementation
type Source string

const (
	SourceUniFi Source = "unifi"
	SourceNmap  Source = "nmap"
	SourceSSH   Source = "ssh"
	SourceSNMP  Source = "snmp"
)

// Config is the root configuration structure
type Config struct {
	Version          int              `yaml:"version"`
	Listen           string           `yaml:"listen"`
	Interval         Duration         `yaml:"interval"`
	Source           Source           `yaml:"source"`
	AllowedSubnets   []string         `yaml:"allowed_subnets"`
	AnonymousName    string           `yaml:"anonymous_name"`
	UnassignedWindow Duration         `yaml:"unassigned_window"`
	Controller       ControllerConfig `yaml:"controller"`
	NATS             NATSConfig       `yaml:"nats"`
	Topics           TopicConfig      `yaml:"topics"`
	Database         DatabaseConfig   `yaml:"database"`
	SSH              SSHConfig        `yaml:"ssh"`
	SNMP             SNMPConfig       `yaml:"snmp"`
	Nmap             NmapConfig       `yaml:"nmap"`
	Log              LogConfig        `yaml:"log"`
}

// ControllerConfig holds the wireless controller connection
type ControllerConfig struct {
	Hostname           string   `yaml:"hostname"`
	Username           string   `yaml:"username"`
	Password           string   `yaml:"password"`
	Site               string   `yaml:"site"`
	Timeout            Duration `yaml:"timeout"`
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify"`
}

// NATSConfig holds the broker connection and the retained-value stream
type NATSConfig struct {
	URL            string   `yaml:"url"`
	Stream         string   `yaml:"stream"`
	ClientName     string   `yaml:"client_name"`
	ReconnectWait  Duration `yaml:"reconnect_wait"`
	PublishTimeout Duration `yaml:"publish_timeout"`
}

// TopicConfig names the four summary subjects
type TopicConfig struct {
	SpaceStatus string `yaml:"space_status"`
	DeviceCount string `yaml:"device_count"`
	MemberCount string `yaml:"member_count"`
	MemberNames string `yaml:"member_names"`
}

// All returns the topics in publish order
func (t TopicConfig) All() []string {
	return []string{t.SpaceStatus, t.DeviceCount, t.MemberCount, t.MemberNames}
}

// DatabaseConfig holds registry and history storage settings
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite or postgres
	Path     string `yaml:"path"`
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns,omitempty"`
}

// SSHConfig holds router access for the ssh neighbour-table source
type SSHConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password,omitempty"`
	PrivateKeyPath string   `yaml:"private_key_path,omitempty"`
	Passphrase     string   `yaml:"passphrase,omitempty"`
	Command        string   `yaml:"command"`
	Timeout        Duration `yaml:"timeout"`
}

// SNMPConfig holds router access for the snmp ARP-table source
type SNMPConfig struct {
	Target    string   `yaml:"target"`
	Port      uint16   `yaml:"port"`
	Community string   `yaml:"community"`
	Timeout   Duration `yaml:"timeout"`
	Retries   int      `yaml:"retries"`
}

// NmapConfig tunes the nmap ARP sweep source
type NmapConfig struct {
	Timeout    Duration `yaml:"timeout"`
	Privileged bool     `yaml:"privileged"`
}

// LogConfig mirrors logger.Config
type LogConfig struct {
	Level  string `yaml:"level"`
	Debug  bool   `yaml:"debug"`
	Output string `yaml:"output"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
