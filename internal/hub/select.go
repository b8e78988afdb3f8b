package hub

import (
	"context"
	"fmt"
	"slices"

	"github.com/melbridge/melbridge/internal/fleet"
)

// modeSelect exposes one enumerated device property as a select entity. The
// current value is read through a closure so the entity stays stateless.
type modeSelect struct {
	entityBase
	label    string
	property string
	options  []string
	current  func() string
}

func newModeSelect(w *fleet.Wrapper, baseTopic, suffix, label, property string, options []string, current func() string) *modeSelect {
	return &modeSelect{
		entityBase: entityBase{
			wrapper:  w,
			identity: w.DeviceIdentity(),
			uniqueID: deviceSlug(w) + "_" + suffix,
			topic:    baseTopic + "/" + suffix,
		},
		label:    label,
		property: property,
		options:  options,
		current:  current,
	}
}

func (s *modeSelect) Platform() string { return "select" }

func (s *modeSelect) Discovery() map[string]any {
	return map[string]any{
		"name":          s.label,
		"state_topic":   s.stateTopic(),
		"command_topic": s.commandTopic(),
		"options":       s.options,
	}
}

func (s *modeSelect) State() map[string]string {
	v := s.current()
	if v == "" {
		return nil
	}
	return map[string]string{s.stateTopic(): v}
}

func (s *modeSelect) Commands() map[string]CommandHandler {
	return map[string]CommandHandler{
		s.commandTopic(): func(ctx context.Context, payload []byte) error {
			option := string(payload)
			if !slices.Contains(s.options, option) {
				return fmt.Errorf("unknown %s option %q", s.property, option)
			}
			return s.wrapper.Write(ctx, map[string]any{s.property: option})
		},
	}
}
