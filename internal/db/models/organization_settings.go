// Package models - organization_settings.go defines the typed OrganizationSettings value stored
// in the organizations.settings JSONB column, and the merge rules applied on update: the top
// level is merged shallowly while feature_flags, notifications and branding merge deeply.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

const (
	settingsKeyFeatureFlags  = "feature_flags"
	settingsKeyNotifications = "notifications"
	settingsKeyBranding      = "branding"
)

// OrganizationSettings holds per-organization configuration. Known sections are typed;
// any other top-level key is kept verbatim in Extra. The JSON form is flat.
type OrganizationSettings struct {
	FeatureFlags  map[string]bool
	Notifications map[string]any
	Branding      map[string]any
	Extra         map[string]any
}

// MarshalJSON flattens the settings into a single JSON object
func (s OrganizationSettings) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.toMap())
}

// UnmarshalJSON splits a flat JSON object into the typed sections
func (s *OrganizationSettings) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := settingsFromMap(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value implements driver.Valuer for the JSONB column
func (s OrganizationSettings) Value() (driver.Value, error) {
	return json.Marshal(s.toMap())
}

// Scan implements sql.Scanner for the JSONB column
func (s *OrganizationSettings) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*s = OrganizationSettings{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into OrganizationSettings", src)
	}
	if len(data) == 0 {
		*s = OrganizationSettings{}
		return nil
	}
	return s.UnmarshalJSON(data)
}

// Merge applies patch on top of s and returns the result; s is not modified.
//
// Top-level keys replace stored values. For feature_flags, notifications and branding the
// patch is merged recursively into the stored object. A null value removes the key at
// whatever level it appears.
func (s OrganizationSettings) Merge(patch map[string]any) (OrganizationSettings, error) {
	merged := s.toMap()
	for key, value := range patch {
		if value == nil {
			delete(merged, key)
			continue
		}
		if !isDeepSettingsKey(key) {
			merged[key] = value
			continue
		}
		patchSection, ok := value.(map[string]any)
		if !ok {
			return OrganizationSettings{}, fmt.Errorf("settings.%s must be an object", key)
		}
		current, _ := merged[key].(map[string]any)
		merged[key] = deepMerge(current, patchSection)
	}
	return settingsFromMap(merged)
}

func isDeepSettingsKey(key string) bool {
	return key == settingsKeyFeatureFlags || key == settingsKeyNotifications || key == settingsKeyBranding
}

// deepMerge returns a copy of dst with patch merged in. Nested objects merge recursively.
func deepMerge(dst, patch map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(patch))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		patchChild, patchIsMap := v.(map[string]any)
		dstChild, dstIsMap := out[k].(map[string]any)
		if patchIsMap && dstIsMap {
			out[k] = deepMerge(dstChild, patchChild)
			continue
		}
		out[k] = v
	}
	return out
}

func (s OrganizationSettings) toMap() map[string]any {
	m := make(map[string]any, len(s.Extra)+3)
	for k, v := range s.Extra {
		m[k] = v
	}
	if s.FeatureFlags != nil {
		flags := make(map[string]any, len(s.FeatureFlags))
		for k, v := range s.FeatureFlags {
			flags[k] = v
		}
		m[settingsKeyFeatureFlags] = flags
	}
	if s.Notifications != nil {
		m[settingsKeyNotifications] = s.Notifications
	}
	if s.Branding != nil {
		m[settingsKeyBranding] = s.Branding
	}
	return m
}

func settingsFromMap(m map[string]any) (OrganizationSettings, error) {
	var s OrganizationSettings
	for key, value := range m {
		switch key {
		case settingsKeyFeatureFlags:
			section, ok := value.(map[string]any)
			if !ok {
				return OrganizationSettings{}, fmt.Errorf("settings.%s must be an object", key)
			}
			s.FeatureFlags = make(map[string]bool, len(section))
			for flag, enabled := range section {
				b, ok := enabled.(bool)
				if !ok {
					return OrganizationSettings{}, fmt.Errorf("settings.%s.%s must be a boolean", key, flag)
				}
				s.FeatureFlags[flag] = b
			}
		case settingsKeyNotifications, settingsKeyBranding:
			section, ok := value.(map[string]any)
			if !ok {
				return OrganizationSettings{}, fmt.Errorf("settings.%s must be an object", key)
			}
			if key == settingsKeyNotifications {
				s.Notifications = section
			} else {
				s.Branding = section
			}
		default:
			if s.Extra == nil {
				s.Extra = make(map[string]any)
			}
			s.Extra[key] = value
		}
	}
	return s, nil
}
