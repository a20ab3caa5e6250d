package config

import (
	"github.com/spf13/pflag"
)

// Flags holds command-line overrides; only flags the user actually set are applied
type Flags struct {
	ConfigPath     string
	Listen         string
	Interval       string
	Source         string
	AllowedSubnets []string
	DBDriver       string
	DBPath         string
	NATSURL        string
	Import         string
	Once           bool
	Debug          bool
}

// RegisterFlags defines the server flags on fs
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVarP(&f.ConfigPath, "config", "c", "", "path to config file (overrides search)")
	fs.StringVar(&f.Listen, "listen", "", "HTTP listen address")
	fs.StringVar(&f.Interval, "interval", "", "scan interval (e.g. 60s)")
	fs.StringVar(&f.Source, "source", "", "station source: unifi, nmap, ssh or snmp")
	fs.StringSliceVar(&f.AllowedSubnets, "allowed-subnets", nil, "comma separated CIDR ranges counted as presence")
	fs.StringVar(&f.DBDriver, "db-driver", "", "registry database driver: sqlite or postgres")
	fs.StringVar(&f.DBPath, "db", "", "SQLite database path")
	fs.StringVar(&f.NATSURL, "nats-url", "", "NATS server URL")
	fs.StringVar(&f.Import, "import", "", "seed the device registry from a YAML or JSON file")
	fs.BoolVar(&f.Once, "once", false, "run a single scan cycle and exit")
	fs.BoolVar(&f.Debug, "debug", false, "enable debug logging")
	return f
}

// Apply copies changed flags onto cfg
func (f *Flags) Apply(fs *pflag.FlagSet, cfg *Config) error {
	if fs.Changed("listen") {
		cfg.Listen = f.Listen
	}
	if fs.Changed("interval") {
		if err := setDuration(&cfg.Interval, f.Interval); err != nil {
			return err
		}
	}
	if fs.Changed("source") {
		cfg.Source = Source(f.Source)
	}
	if fs.Changed("allowed-subnets") {
		cfg.AllowedSubnets = f.AllowedSubnets
	}
	if fs.Changed("db-driver") {
		cfg.Database.Driver = f.DBDriver
	}
	if fs.Changed("db") {
		cfg.Database.Path = f.DBPath
	}
	if fs.Changed("nats-url") {
		cfg.NATS.URL = f.NATSURL
	}
	if fs.Changed("debug") {
		cfg.Log.Debug = f.Debug
	}
	return nil
}
