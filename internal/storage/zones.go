package storage

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Zone is one configured block of lockers, e.g. zone "A" with 20 slots
// numbered A01..A20.
type Zone struct {
	Code  string
	Slots int
}

func (z Zone) SlotNumbers() []string {
	numbers := make([]string, 0, z.Slots)
	for i := 1; i <= z.Slots; i++ {
		numbers = append(numbers, fmt.Sprintf("%s%02d", z.Code, i))
	}
	return numbers
}

type ZoneCatalog struct {
	zones map[string]Zone
}

// ParseZones builds a catalog from a spec like "A:20,B:30".
func ParseZones(spec string) (*ZoneCatalog, error) {
	catalog := &ZoneCatalog{zones: make(map[string]Zone)}

	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, slotsStr, found := strings.Cut(part, ":")
		if !found {
			return nil, fmt.Errorf("invalid zone spec %q: expected CODE:SLOTS", part)
		}
		slots, err := strconv.Atoi(slotsStr)
		if err != nil || slots <= 0 {
			return nil, fmt.Errorf("invalid slot count in zone spec %q", part)
		}
		code = strings.ToUpper(strings.TrimSpace(code))
		if _, exists := catalog.zones[code]; exists {
			return nil, fmt.Errorf("duplicate zone %q", code)
		}
		catalog.zones[code] = Zone{Code: code, Slots: slots}
	}

	if len(catalog.zones) == 0 {
		return nil, fmt.Errorf("zone spec %q defines no zones", spec)
	}
	return catalog, nil
}

func (c *ZoneCatalog) Has(code string) bool {
	_, ok := c.zones[code]
	return ok
}

func (c *ZoneCatalog) Zones() []Zone {
	zones := make([]Zone, 0, len(c.zones))
	for _, z := range c.zones {
		zones = append(zones, z)
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].Code < zones[j].Code })
	return zones
}
