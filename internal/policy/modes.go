package policy

import (
	_ "embed"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/bookinghub/interpreter-assignment/internal/domain"
)

//go:embed modes.yaml
var modesYAML []byte

// ModeDefaults captures the mode-enforced parameter profile and the
// threshold adjustments a mode applies before env overrides.
type ModeDefaults struct {
	WFair                float64 `yaml:"w_fair"`
	WUrgency             float64 `yaml:"w_urgency"`
	WLRS                 float64 `yaml:"w_lrs"`
	DRConsecutivePenalty float64 `yaml:"dr_consecutive_penalty"`

	// UrgentThresholdFactor scales urgentThresholdDays (URGENT shrinks it).
	UrgentThresholdFactor float64 `yaml:"urgent_threshold_factor"`
	// GeneralThresholdWidenDays is added to generalThresholdDays (BALANCE widens it).
	GeneralThresholdWidenDays int `yaml:"general_threshold_widen_days"`
}

type modesDoc struct {
	Modes map[domain.AssignmentMode]ModeDefaults `yaml:"modes"`
}

var modeDefaults map[domain.AssignmentMode]ModeDefaults

func init() {
	var doc modesDoc
	if err := yaml.Unmarshal(modesYAML, &doc); err != nil {
		panic(fmt.Sprintf("policy: parse embedded modes.yaml: %v", err))
	}
	modeDefaults = doc.Modes
}

// DefaultsFor returns the mode-enforced defaults. CUSTOM has none: every
// parameter is administrator supplied.
func DefaultsFor(mode domain.AssignmentMode) (ModeDefaults, bool) {
	d, ok := modeDefaults[mode]
	return d, ok
}

// applyModeAdjustment applies the mode's threshold adjustment to a priority row.
func applyModeAdjustment(t Thresholds, mode domain.AssignmentMode) Thresholds {
	d, ok := modeDefaults[mode]
	if !ok {
		return t
	}
	if d.UrgentThresholdFactor > 0 && d.UrgentThresholdFactor != 1.0 {
		scaled := int(math.Ceil(float64(t.UrgentThresholdDays) * d.UrgentThresholdFactor))
		if scaled < 1 {
			scaled = 1
		}
		t.UrgentThresholdDays = scaled
	}
	t.GeneralThresholdDays += d.GeneralThresholdWidenDays
	return t
}
