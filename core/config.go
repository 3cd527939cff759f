package core

import (
	"os"

	"github.com/pelletier/go-toml/v2"
)

// DeviceConfig carries the tuning knobs the Vulkan backend reads at
// initialization time. A missing config file is not an error: a zero
// DeviceConfig loaded through LoadConfig is filled in with
// DefaultDeviceConfig's values before being returned.
type DeviceConfig struct {
	// ValidationLayers enables VK_LAYER_KHRONOS_validation and the
	// debug-report and debug-utils instance extensions; no debug report
	// callback is installed. Cannot be toggled after the instance is created.
	ValidationLayers bool `toml:"validation_layers"`

	// PreferredPresentMode is one of "immediate", "mailbox", "fifo", or
	// "fifo_relaxed". Unrecognized values fall back to "fifo".
	PreferredPresentMode string `toml:"preferred_present_mode"`

	// SuballocatorBlockMB is the suballocator's starting block size in
	// megabytes, clamped to [16, 256] and rounded up by the allocator's
	// own 64 MB granularity rule regardless of this value.
	SuballocatorBlockMB uint32 `toml:"suballocator_block_mb"`

	// UniformPoolInitialSets is the uniform-buffer pool's initial
	// descriptor-set capacity before its first 128-set growth.
	UniformPoolInitialSets uint32 `toml:"uniform_pool_initial_sets"`

	// DescriptorPoolInitialSets is each descriptor-set cache's initial
	// pool size before its first doubling.
	DescriptorPoolInitialSets uint32 `toml:"descriptor_pool_initial_sets"`

	// Verbose raises the logger to debug level when true.
	Verbose bool `toml:"verbose"`
}

// DefaultDeviceConfig returns the configuration used when no config file
// is present, matching the constants spec.md's component descriptions
// name directly (64 MB suballocator granularity, 128-set uniform pool
// growth, 256-set descriptor pool growth).
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		ValidationLayers:          true,
		PreferredPresentMode:      "fifo",
		SuballocatorBlockMB:       64,
		UniformPoolInitialSets:    128,
		DescriptorPoolInitialSets: 256,
		Verbose:                   false,
	}
}

// LoadConfig decodes a TOML device config from path, starting from
// DefaultDeviceConfig so that a partially-specified file only overrides
// the fields it names. A missing file logs at debug level and returns
// the defaults unchanged; any other read or decode error is returned.
func LoadConfig(path string) (DeviceConfig, error) {
	cfg := DefaultDeviceConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			LogDebug("no config file at %s, using defaults", path)
			return cfg, nil
		}
		return cfg, err
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	cfg.clamp()
	return cfg, nil
}

func (c *DeviceConfig) clamp() {
	if c.SuballocatorBlockMB < 16 {
		c.SuballocatorBlockMB = 16
	}
	if c.SuballocatorBlockMB > 256 {
		c.SuballocatorBlockMB = 256
	}
	if c.UniformPoolInitialSets == 0 {
		c.UniformPoolInitialSets = 128
	}
	if c.DescriptorPoolInitialSets == 0 {
		c.DescriptorPoolInitialSets = 256
	}
	switch c.PreferredPresentMode {
	case "immediate", "mailbox", "fifo", "fifo_relaxed":
	default:
		c.PreferredPresentMode = "fifo"
	}
}
