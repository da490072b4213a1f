package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConstraint = "pinn_a"
	DefaultLoss       = "rms_summed"
	DefaultActivation = "tanh"
	DefaultScaler     = "nondim"
	DefaultEpochs     = 200
	DefaultBatchSize  = 512
	DefaultLR         = 1e-3
	DefaultDataDir    = "Data"
	DefaultDataframe  = "networks.db"
)

type Config struct {
	Network   NetworkConfig  `yaml:"network"`
	Physics   PhysicsConfig  `yaml:"physics"`
	Numerics  NumericsConfig `yaml:"numerics"`
	Training  TrainingConfig `yaml:"training"`
	Data      DataConfig     `yaml:"data"`
	Orbit     OrbitConfig    `yaml:"orbit"`
	Scaler    string         `yaml:"scaler"`
	DataDir   string         `yaml:"data_dir"`
	Dataframe string         `yaml:"dataframe"`
}

type NetworkConfig struct {
	Hidden     []int  `yaml:"hidden"`
	Activation string `yaml:"activation"`
	// InitFile warm-starts from a saved network.json.
	InitFile string `yaml:"init_file"`
}

type PhysicsConfig struct {
	Constraint       string  `yaml:"constraint"`
	Loss             string  `yaml:"loss"`
	Anneal           bool    `yaml:"anneal"`
	AdaptiveConstant float64 `yaml:"adaptive_constant"`
	Beta             float64 `yaml:"beta"`
}

type NumericsConfig struct {
	DType          string  `yaml:"dtype"`
	MixedPrecision bool    `yaml:"mixed_precision"`
	LossScale      float64 `yaml:"loss_scale"`
	JITCompile     bool    `yaml:"jit_compile"`
}

type TrainingConfig struct {
	Epochs          int     `yaml:"epochs"`
	BatchSize       int     `yaml:"batch_size"`
	LearningRate    float64 `yaml:"learning_rate"`
	ValidationSplit float64 `yaml:"validation_split"`
	Seed            uint64  `yaml:"seed"`
	LBFGSIterations int     `yaml:"lbfgs_iterations"`
}

// DataConfig describes the ground-truth field and how it is sampled.
type DataConfig struct {
	// Model is point_mass or mascons.
	Model      string  `yaml:"model"`
	Mu         float64 `yaml:"mu"`
	RadiusMin  float64 `yaml:"radius_min"`
	RadiusMax  float64 `yaml:"radius_max"`
	Samples    int     `yaml:"samples"`
	Validation int     `yaml:"validation"`
}

type OrbitConfig struct {
	Integrator string  `yaml:"integrator"`
	Dt         float64 `yaml:"dt"`
	Duration   float64 `yaml:"duration"`
	Radius     float64 `yaml:"radius"`
	// Eccentricity of the initial osculating orbit, 0 for circular.
	Eccentricity float64 `yaml:"eccentricity"`
}

func DefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			Hidden:     []int{20, 20, 20},
			Activation: DefaultActivation,
		},
		Physics: PhysicsConfig{
			Constraint:       DefaultConstraint,
			Loss:             DefaultLoss,
			AdaptiveConstant: 1.0,
			Beta:             0.9,
		},
		Numerics: NumericsConfig{
			DType:      "float64",
			LossScale:  32768,
			JITCompile: true,
		},
		Training: TrainingConfig{
			Epochs:          DefaultEpochs,
			BatchSize:       DefaultBatchSize,
			LearningRate:    DefaultLR,
			ValidationSplit: 0.1,
			Seed:            1,
		},
		Data: DataConfig{
			Model:      "point_mass",
			Mu:         1.0,
			RadiusMin:  1.0,
			RadiusMax:  10.0,
			Samples:    2000,
			Validation: 500,
		},
		Orbit: OrbitConfig{
			Integrator: "rk4",
			Dt:         0.01,
			Duration:   50.0,
			Radius:     3.0,
		},
		Scaler:    DefaultScaler,
		DataDir:   DefaultDataDir,
		Dataframe: DefaultDataframe,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the ranges of numeric fields. Registry identifiers are
// checked by the model at construction.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Network.Hidden) == 0 {
		errs = append(errs, errors.New("network.hidden must name at least one layer"))
	}
	for i, w := range c.Network.Hidden {
		if w <= 0 {
			errs = append(errs, fmt.Errorf("network.hidden[%d] = %d", i, w))
		}
	}
	if c.Numerics.DType != "float32" && c.Numerics.DType != "float64" {
		errs = append(errs, fmt.Errorf("numerics.dtype %q", c.Numerics.DType))
	}
	if c.Training.Epochs < 0 || c.Training.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("training epochs %d batch size %d", c.Training.Epochs, c.Training.BatchSize))
	}
	if c.Training.LearningRate <= 0 {
		errs = append(errs, fmt.Errorf("training.learning_rate %v", c.Training.LearningRate))
	}
	if c.Physics.Beta < 0 || c.Physics.Beta > 1 {
		errs = append(errs, fmt.Errorf("physics.beta %v outside [0, 1]", c.Physics.Beta))
	}
	if c.Data.RadiusMin <= 0 || c.Data.RadiusMax <= c.Data.RadiusMin {
		errs = append(errs, fmt.Errorf("data radius range [%v, %v]", c.Data.RadiusMin, c.Data.RadiusMax))
	}
	if c.Data.Model != "point_mass" && c.Data.Model != "mascons" {
		errs = append(errs, fmt.Errorf("data.model %q", c.Data.Model))
	}
	if c.Data.Samples <= 0 {
		errs = append(errs, fmt.Errorf("data.samples %d", c.Data.Samples))
	}
	return errors.Join(errs...)
}
