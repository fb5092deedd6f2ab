package scenario

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Step types dispatched by the runner.
const (
	StepCANMessage     = "can_message"
	StepPause          = "pause"
	StepPluginAction   = "plugin_action"
	StepVehicleControl = "vehicle_control"
)

// CANID is an arbitration id that accepts either a number or a hex
// string ("0x123") in scenario documents
type CANID uint32

// UnmarshalJSON accepts numeric and textual id forms
func (c *CANID) UnmarshalJSON(data []byte) error {
	var num uint32
	if err := json.Unmarshal(data, &num); err == nil {
		*c = CANID(num)
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("invalid CAN id %s", string(data))
	}
	return c.parse(text)
}

// UnmarshalYAML accepts numeric and textual id forms
func (c *CANID) UnmarshalYAML(value *yaml.Node) error {
	var num uint32
	if err := value.Decode(&num); err == nil {
		*c = CANID(num)
		return nil
	}

	var text string
	if err := value.Decode(&text); err != nil {
		return fmt.Errorf("invalid CAN id %q", value.Value)
	}
	return c.parse(text)
}

func (c *CANID) parse(text string) error {
	text = strings.TrimSpace(text)
	base := 10
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		text = text[2:]
		base = 16
	}
	id, err := strconv.ParseUint(text, base, 32)
	if err != nil {
		return fmt.Errorf("invalid CAN id %q: %w", text, err)
	}
	*c = CANID(id)
	return nil
}

// MarshalJSON renders the id in the hex form used by the original files
func (c CANID) MarshalJSON() ([]byte, error) {
	return json.Marshal(fmt.Sprintf("0x%X", uint32(c)))
}

// Step is one entry in a scenario's ordered sequence. The type field
// selects which of the variant fields apply; unknown types survive
// loading so newer documents stay readable.
type Step struct {
	Type string `json:"type" yaml:"type"`

	// can_message
	ID       CANID `json:"id,omitempty" yaml:"id,omitempty"`
	Data     []int `json:"data,omitempty" yaml:"data,omitempty"`
	Extended bool  `json:"extended,omitempty" yaml:"extended,omitempty"`
	DelayMs  int   `json:"delay_ms,omitempty" yaml:"delay_ms,omitempty"`

	// pause
	DurationSec float64 `json:"duration_sec,omitempty" yaml:"duration_sec,omitempty"`

	// plugin_action
	Plugin string         `json:"plugin,omitempty" yaml:"plugin,omitempty"`
	Action string         `json:"action,omitempty" yaml:"action,omitempty"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`

	// vehicle_control
	Control string `json:"control,omitempty" yaml:"control,omitempty"`
	Value   any    `json:"value,omitempty" yaml:"value,omitempty"`

	Notes string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// DataBytes converts the step's data list to payload bytes
func (s *Step) DataBytes() []byte {
	out := make([]byte, 0, len(s.Data))
	for _, b := range s.Data {
		out = append(out, byte(b))
	}
	return out
}

// Definition is a loaded scenario document. Definitions are immutable
// once loaded; reload replaces the stored value.
type Definition struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []Step   `json:"steps" yaml:"steps"`
	Plugins     []string `json:"plugins,omitempty" yaml:"plugins,omitempty"`
}

// Summary is the listing form of a definition
type Summary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Steps       int    `json:"steps"`
	HasPlugins  bool   `json:"has_plugins"`
}

// ValidationResult reports structural validity of a definition
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Validate checks required top-level fields and the type-specific
// required fields of each step. Unknown step types pass validation.
func Validate(def *Definition) ValidationResult {
	var errs []string

	if def.ID == "" {
		errs = append(errs, "missing required field: id")
	}
	if def.Name == "" {
		errs = append(errs, "missing required field: name")
	}
	if def.Steps == nil {
		errs = append(errs, "missing required field: steps")
	}

	for i, step := range def.Steps {
		errs = append(errs, validateStep(&step, i)...)
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func validateStep(step *Step, index int) []string {
	var errs []string

	if step.Type == "" {
		errs = append(errs, fmt.Sprintf("step %d: missing required field 'type'", index))
		return errs
	}

	switch step.Type {
	case StepCANMessage:
		if step.ID == 0 {
			errs = append(errs, fmt.Sprintf("step %d: can_message missing required field 'id'", index))
		}
		if step.Data == nil {
			errs = append(errs, fmt.Sprintf("step %d: can_message missing required field 'data'", index))
		} else if len(step.Data) > 8 {
			errs = append(errs, fmt.Sprintf("step %d: can_message data cannot exceed 8 bytes", index))
		} else {
			for _, b := range step.Data {
				if b < 0 || b > 255 {
					errs = append(errs, fmt.Sprintf("step %d: can_message data byte %d out of range", index, b))
					break
				}
			}
		}
	case StepPause:
		if step.DurationSec <= 0 {
			errs = append(errs, fmt.Sprintf("step %d: pause missing required field 'duration_sec'", index))
		}
	case StepPluginAction:
		if step.Plugin == "" {
			errs = append(errs, fmt.Sprintf("step %d: plugin_action missing required field 'plugin'", index))
		}
		if step.Action == "" {
			errs = append(errs, fmt.Sprintf("step %d: plugin_action missing required field 'action'", index))
		}
	case StepVehicleControl:
		if step.Control == "" {
			errs = append(errs, fmt.Sprintf("step %d: vehicle_control missing required field 'control'", index))
		}
	}
	// Unknown step types are allowed for forward compatibility.

	return errs
}
