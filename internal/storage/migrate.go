package storage

import (
	"fmt"
	"math"
	"strings"
)

// Version thresholds, as Julian-date identifiers.
const (
	pinnFlagNaNBefore   = 2459343.9948726853
	pinnFlagNamesBefore = 2459322.587314815
	lossFcnBefore       = 2459640.439074074
	gravityModelBefore  = 2459628.436423611
)

// Migration rewrites one aspect of an older record. Every migration is
// idempotent.
type Migration struct {
	Name  string
	Apply func(r Record, id float64)
}

// Migrations run in order on every load.
var Migrations = []Migration{
	{"nan_pinn_flag", migrateNaNFlag},
	{"pinn_flag_names", migratePINNFlagNames},
	{"legacy_loss", migrateLegacyLoss},
	{"gravity_model", migrateGravityModel},
	{"default_constraint", migrateDefaultConstraint},
	{"constraint_names", migrateConstraintNames},
	{"defaults", migrateDefaults},
}

// Migrate applies every migration to r in place and returns it.
func Migrate(r Record) (Record, error) {
	id, err := r.ID()
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	for _, m := range Migrations {
		m.Apply(r, id)
	}
	return r, nil
}

func migrateNaNFlag(r Record, id float64) {
	if id >= pinnFlagNaNBefore {
		return
	}
	if v, ok := r.Float("PINN_flag"); ok && math.IsNaN(v) {
		r.Set("PINN_constraint_fcn", "no_pinn")
	}
}

func migratePINNFlagNames(r Record, id float64) {
	if id >= pinnFlagNamesBefore {
		return
	}
	flag, _ := r.String("PINN_flag")
	switch flag {
	case "none":
		r.Set("PINN_constraint_fcn", "no_pinn")
	case "gradient":
		r.Set("PINN_constraint_fcn", "pinn_A")
	case "laplacian":
		r.Set("PINN_constraint_fcn", "pinn_APL")
	case "conservative":
		r.Set("PINN_constraint_fcn", "pinn_APLC")
	}
	if !r.Has("class_weight") {
		r.Set("class_weight", []any{1.0})
	}
	if !r.Has("dtype") {
		r.Set("dtype", "float32")
	}
}

func migrateLegacyLoss(r Record, id float64) {
	if id < lossFcnBefore {
		r.Set("loss_fcn", "rms_summed")
	}
}

// Older saves implied the ground truth from the body type.
func migrateGravityModel(r Record, id float64) {
	if id >= gravityModelBefore {
		return
	}
	model := "point_mass"
	if planet, _ := r.String("planet"); strings.Contains(planet, "Asteroid") {
		model = "mascons"
	}
	r.Set("gravity_model", model)
}

func migrateDefaultConstraint(r Record, _ float64) {
	if _, ok := r.String("PINN_constraint_fcn"); !ok {
		r.Set("PINN_constraint_fcn", "no_pinn")
	}
}

var legacyConstraints = map[string]string{
	"pinn_A":    "pinn_a",
	"pinn_AP":   "pinn_a",
	"pinn_AL":   "pinn_al",
	"pinn_APL":  "pinn_al",
	"pinn_ALC":  "pinn_alc",
	"pinn_APLC": "pinn_alc",
	"pinn_A_Ur": "pinn_a_ur",
}

func migrateConstraintNames(r Record, _ float64) {
	name, _ := r.String("PINN_constraint_fcn")
	if modern, ok := legacyConstraints[name]; ok {
		r.Set("PINN_constraint_fcn", modern)
	}
}

func migrateDefaults(r Record, _ float64) {
	defaults := []struct {
		key string
		val any
	}{
		{"lr_anneal", false},
		{"mixed_precision", false},
		{"jit_compile", true},
		{"init_file", ""},
	}
	for _, d := range defaults {
		if !r.Has(d.key) {
			r.Set(d.key, d.val)
		}
	}
}
