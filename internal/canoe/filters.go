package canoe

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPreset is used when neither a preset nor --days-back is given.
const DefaultPreset = "quarterly_reports"

// Filter is the set of query parameters sent to /v1/documents/data.
type Filter map[string]string

// Preset is a named, reusable filter. Name and Description are display
// metadata; every other key is a query parameter.
type Preset struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Params      map[string]any `yaml:",inline"`
}

type presetFile struct {
	Presets map[string]Preset `yaml:"presets"`
}

// builtinPresets stand in when no filter file is present.
var builtinPresets = map[string]Preset{
	DefaultPreset: {
		Name:        "Quarterly Reports",
		Description: "Completed quarterly reports with a data date in the last 7 days",
		Params: map[string]any{
			"document_type":   "Quarterly Report",
			"document_status": "Complete",
			"data_date_start": "auto:7d",
		},
	},
}

// LoadPresets reads a YAML or JSON presets file. A missing file yields the
// built-in presets.
func LoadPresets(path string) (map[string]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return builtinPresets, nil
		}
		return nil, fmt.Errorf("failed to read filter file %s: %w", path, err)
	}
	var pf presetFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse filter file %s: %w", path, err)
	}
	if len(pf.Presets) == 0 {
		return nil, fmt.Errorf("filter file %s defines no presets", path)
	}
	return pf.Presets, nil
}

// PresetNames returns preset keys in sorted order.
func PresetNames(presets map[string]Preset) []string {
	names := make([]string, 0, len(presets))
	for k := range presets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// BuildFilter turns a preset into query parameters. auto: dates are resolved
// against today and non-empty overrides replace preset values.
func BuildFilter(p Preset, overrides Filter, today time.Time) (Filter, error) {
	f := Filter{}
	for k, v := range p.Params {
		if v == nil {
			continue
		}
		f[k] = fmt.Sprint(v)
	}
	for k, v := range overrides {
		if v != "" {
			f[k] = v
		}
	}
	for k, v := range f {
		if !strings.HasPrefix(v, "auto:") {
			continue
		}
		resolved, err := resolveAutoDate(v, today)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", k, err)
		}
		f[k] = resolved
	}
	return f, nil
}

// DaysBackFilter is the legacy quarterly-report filter covering the last n
// days.
func DaysBackFilter(n int, overrides Filter, today time.Time) Filter {
	f := Filter{
		"document_type":   "Quarterly Report",
		"document_status": "Complete",
		"data_date_start": today.AddDate(0, 0, -n).Format("2006-01-02"),
		"data_date_end":   today.Format("2006-01-02"),
	}
	for k, v := range overrides {
		if v != "" {
			f[k] = v
		}
	}
	return f
}

// resolveAutoDate converts auto:<N><d|w|m|y> to a YYYY-MM-DD date N units
// before today.
func resolveAutoDate(v string, today time.Time) (string, error) {
	spec := strings.TrimPrefix(v, "auto:")
	if len(spec) < 2 {
		return "", fmt.Errorf("invalid auto date %q", v)
	}
	n, err := strconv.Atoi(spec[:len(spec)-1])
	if err != nil || n < 0 {
		return "", fmt.Errorf("invalid auto date %q", v)
	}
	var d time.Time
	switch spec[len(spec)-1] {
	case 'd':
		d = today.AddDate(0, 0, -n)
	case 'w':
		d = today.AddDate(0, 0, -7*n)
	case 'm':
		d = today.AddDate(0, -n, 0)
	case 'y':
		d = today.AddDate(-n, 0, 0)
	default:
		return "", fmt.Errorf("invalid auto date unit in %q", v)
	}
	return d.Format("2006-01-02"), nil
}

// Describe renders a preset for --list-presets.
func Describe(key string, p Preset) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n   Name: %s\n   Description: %s\n", key, orNA(p.Name), orNA(p.Description))
	keys := make([]string, 0, len(p.Params))
	for k := range p.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "   %s: %v\n", k, p.Params[k])
	}
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
