package config

var Presets = map[string]map[string]*Config{
	"no_pinn": {
		"traditional": preset(func(c *Config) {
			c.Physics.Constraint = "no_pinn"
			c.Network.Hidden = []int{40, 40, 40}
		}),
	},
	"pinn_a": {
		"small": preset(func(c *Config) {
			c.Network.Hidden = []int{16, 16}
			c.Training.Epochs = 50
			c.Data.Samples = 500
		}),
		"default": preset(func(*Config) {}),
		"deep": preset(func(c *Config) {
			c.Network.Hidden = []int{32, 32, 32, 32, 32, 32}
			c.Network.Activation = "sin"
			c.Training.Epochs = 1000
		}),
	},
	"pinn_al": {
		"harmonic": preset(func(c *Config) {
			c.Physics.Constraint = "pinn_al"
			c.Physics.Loss = "percent_rms_summed"
		}),
	},
	"pinn_alc": {
		"conservative": preset(func(c *Config) {
			c.Physics.Constraint = "pinn_alc"
			c.Physics.Loss = "percent_rms_summed"
		}),
		"annealed": preset(func(c *Config) {
			c.Physics.Constraint = "pinn_alc"
			c.Physics.Loss = "avg_percent_rms_summed"
			c.Physics.Anneal = true
		}),
	},
	"pinn_a_ur": {
		"modified": preset(func(c *Config) {
			c.Physics.Constraint = "pinn_a_ur"
			c.Network.Activation = "softplus"
		}),
		"mixed": preset(func(c *Config) {
			c.Physics.Constraint = "pinn_a_ur"
			c.Numerics.DType = "float32"
			c.Numerics.MixedPrecision = true
		}),
	},
}

func preset(edit func(*Config)) *Config {
	c := DefaultConfig()
	edit(c)
	return c
}

// GetPreset returns a copy of the named preset so callers may override fields.
func GetPreset(constraint, name string) *Config {
	constraintPresets, ok := Presets[constraint]
	if !ok {
		return nil
	}
	cfg, ok := constraintPresets[name]
	if !ok {
		return nil
	}
	cp := *cfg
	cp.Network.Hidden = append([]int(nil), cfg.Network.Hidden...)
	return &cp
}

func ListPresets(constraint string) []string {
	constraintPresets, ok := Presets[constraint]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(constraintPresets))
	for name := range constraintPresets {
		names = append(names, name)
	}
	return names
}
