package routine

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Section names one of the fixed routine groups.
type Section string

const (
	SectionBodyCare  Section = "bodyCare"
	SectionNutrition Section = "nutricion"
	SectionExercise  Section = "ejercicio"
	SectionCleaning  Section = "cleaning"
)

// AllSections lists the routine sections in display order.
var AllSections = []Section{SectionBodyCare, SectionNutrition, SectionExercise, SectionCleaning}

var itemPolicy = bluemonday.StrictPolicy()

// ParseSection validates a section name.
func ParseSection(raw string) (Section, error) {
	s := Section(strings.TrimSpace(raw))
	for _, known := range AllSections {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSection, raw)
}

const maxSanitizePasses = 4

// NormalizeItemID trims a user-defined item key and strips any markup from it.
// Entity-encoded markup is decoded and stripped again until the key is stable.
func NormalizeItemID(raw string) (string, error) {
	cleaned := raw
	for i := 0; ; i++ {
		next := html.UnescapeString(itemPolicy.Sanitize(cleaned))
		if next == cleaned {
			break
		}
		if i == maxSanitizePasses {
			return "", fmt.Errorf("%w: item id keeps decoding to markup", ErrInvalidItem)
		}
		cleaned = next
	}
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "", fmt.Errorf("%w: empty item id", ErrInvalidItem)
	}
	return cleaned, nil
}

// Sections maps each section to its items' completed-today flags.
type Sections map[Section]map[string]bool

// ConfigSet mirrors Sections with each item's cadence configuration.
type ConfigSet map[Section]map[string]CadenceConfig

// NewSections returns a Sections value with every fixed section present and empty.
func NewSections() Sections {
	out := make(Sections, len(AllSections))
	for _, s := range AllSections {
		out[s] = map[string]bool{}
	}
	return out
}

// Clone returns a deep copy.
func (s Sections) Clone() Sections {
	out := NewSections()
	for section, items := range s {
		if out[section] == nil {
			out[section] = map[string]bool{}
		}
		for id, v := range items {
			out[section][id] = v
		}
	}
	return out
}

// Set stores the flag for an item, creating the section map when needed.
func (s Sections) Set(section Section, itemID string, value bool) {
	if s[section] == nil {
		s[section] = map[string]bool{}
	}
	s[section][itemID] = value
}

// Get returns the flag for an item and whether the item exists.
func (s Sections) Get(section Section, itemID string) (bool, bool) {
	items, ok := s[section]
	if !ok {
		return false, false
	}
	v, ok := items[itemID]
	return v, ok
}

// ItemIDs returns a section's item ids in sorted order.
func (s Sections) ItemIDs(section Section) []string {
	ids := make([]string, 0, len(s[section]))
	for id := range s[section] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy, including each config's completion list.
func (c ConfigSet) Clone() ConfigSet {
	out := make(ConfigSet, len(c))
	for section, items := range c {
		out[section] = make(map[string]CadenceConfig, len(items))
		for id, cfg := range items {
			out[section][id] = cfg.Clone()
		}
	}
	return out
}

// Lookup returns the item's config, or nil when none is stored.
func (c ConfigSet) Lookup(section Section, itemID string) *CadenceConfig {
	items, ok := c[section]
	if !ok {
		return nil
	}
	cfg, ok := items[itemID]
	if !ok {
		return nil
	}
	return &cfg
}

// Put stores the item's config, creating the section map when needed.
func (c ConfigSet) Put(section Section, itemID string, cfg CadenceConfig) {
	if c[section] == nil {
		c[section] = map[string]CadenceConfig{}
	}
	c[section][itemID] = cfg
}
