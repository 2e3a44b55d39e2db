// Package agentconfig loads and validates agent configurations, including
// YAML seed files.
package agentconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/deal-sourcing/internal/model"
	"github.com/sells-group/deal-sourcing/internal/scheduler"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// File is the layout of a configuration seed file.
type File struct {
	Configurations []model.AgentConfiguration `yaml:"configurations"`
}

// LoadFile reads and validates every configuration in a YAML seed file.
// Configurations default to active unless the file says otherwise.
func LoadFile(path string) ([]model.AgentConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "agentconfig: read %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates seed file contents.
func Parse(data []byte) ([]model.AgentConfiguration, error) {
	var raw struct {
		Configurations []yaml.Node `yaml:"configurations"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "agentconfig: parse yaml")
	}
	if len(raw.Configurations) == 0 {
		return nil, eris.New("agentconfig: no configurations in file")
	}

	out := make([]model.AgentConfiguration, 0, len(raw.Configurations))
	var problems []string
	for i, node := range raw.Configurations {
		cfg := model.AgentConfiguration{Active: true}
		if err := node.Decode(&cfg); err != nil {
			problems = append(problems, fmt.Sprintf("configurations[%d]: %v", i, err))
			continue
		}
		if err := Validate(&cfg); err != nil {
			problems = append(problems, fmt.Sprintf("configurations[%d] (%s): %v", i, cfg.Name, err))
			continue
		}
		out = append(out, cfg)
	}
	if len(problems) > 0 {
		return nil, eris.Errorf("agentconfig: %s", strings.Join(problems, "; "))
	}
	return out, nil
}

// Validate checks field constraints and the cron schedule, and normalizes
// the strategy to buy-side when unset.
func Validate(cfg *model.AgentConfiguration) error {
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.Criteria.Query = strings.TrimSpace(cfg.Criteria.Query)
	cfg.Schedule = strings.TrimSpace(cfg.Schedule)
	if cfg.Criteria.Strategy == "" {
		cfg.Criteria.Strategy = model.StrategyBuySide
	}

	if err := ValidateStruct(cfg); err != nil {
		return err
	}
	if cfg.Schedule != "" {
		if err := scheduler.ValidateSchedule(cfg.Schedule); err != nil {
			return err
		}
	}
	return nil
}

// ValidateStruct runs the validate tags on v and flattens the field errors
// into one message.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return eris.Wrap(err, "validate")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return eris.New(strings.Join(msgs, ", "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
