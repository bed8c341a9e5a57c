package config

import (
	"time"

	"github.com/spf13/viper"
)

// These keys are the settings this package reads from Viper, mirroring
// the flat key style the example pack's Viper-backed daemons use
// (teranos-QNTX, marmos91-dittofs).
const (
	keyCleanupDelayMS         = "broker.cleanup_delay_ms"
	keyMaxRequestsPerClient   = "broker.max_requests_per_client"
	keyMaxLabelLength         = "broker.max_label_length"
	keyManagedDiscovery       = "broker.managed_discovery_enabled"
	keyManagedAdvertiser      = "broker.managed_advertiser_enabled"
)

// Load builds a Config and a live FlagSource from v, filling in
// spec-mandated defaults for anything unset.
func Load(v *viper.Viper) (Config, FlagSource) {
	v.SetDefault(keyCleanupDelayMS, DefaultCleanupDelay.Milliseconds())
	v.SetDefault(keyMaxRequestsPerClient, DefaultMaxRequestsPerClient)
	v.SetDefault(keyMaxLabelLength, DefaultMaxLabelLength)
	v.SetDefault(keyManagedDiscovery, false)
	v.SetDefault(keyManagedAdvertiser, false)

	cfg := Config{
		CleanupDelay:         time.Duration(v.GetInt64(keyCleanupDelayMS)) * time.Millisecond,
		MaxRequestsPerClient: v.GetInt(keyMaxRequestsPerClient),
		MaxLabelLength:       v.GetInt(keyMaxLabelLength),
	}
	return cfg, &viperFlags{v: v}
}

// viperFlags reads the feature flags directly from the live *viper.Viper
// on every call, so any change the *viper.Viper itself picks up (for
// example once a caller enables viper.WatchConfig, which Load does not
// do) takes effect on the very next operation without the broker needing
// to know anything about reload plumbing.
type viperFlags struct {
	v *viper.Viper
}

func (f *viperFlags) ManagedDiscoveryEnabled() bool {
	return f.v.GetBool(keyManagedDiscovery)
}

func (f *viperFlags) ManagedAdvertiserEnabled() bool {
	return f.v.GetBool(keyManagedAdvertiser)
}
