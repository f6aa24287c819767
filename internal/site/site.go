// Package site compiles the site configuration into an in-memory index:
// stable small-integer ids for sensors and class/type pairs, and the mapping
// from a repository coordinate to its file path.
package site

import (
	"fmt"
	"path/filepath"
	"time"

	"FlowSieve/internal/config"
)

// Flowtype is one class/type pair. Its ID indexes the site's flowtype table.
type Flowtype struct {
	ID    uint16
	Class string
	Type  string
}

// Name returns the "class/type" form used on the command line.
func (ft Flowtype) Name() string {
	return ft.Class + "/" + ft.Type
}

// Site is the compiled site configuration.
type Site struct {
	root         string
	flowtypes    []Flowtype
	ftByName     map[string]uint16
	sensors      []string
	sensorIDs    map[string]uint16
	classSensors map[string][]uint16
}

// New builds a Site from a parsed site configuration.
func New(cfg *config.SiteConfig) (*Site, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("site configuration has no repository root")
	}
	if len(cfg.Classes) == 0 {
		return nil, fmt.Errorf("site configuration defines no classes")
	}

	s := &Site{
		root:         cfg.Root,
		ftByName:     make(map[string]uint16),
		sensorIDs:    make(map[string]uint16),
		classSensors: make(map[string][]uint16),
	}

	for _, class := range cfg.Classes {
		if _, ok := s.classSensors[class.Name]; ok {
			return nil, fmt.Errorf("class %q defined twice", class.Name)
		}
		if len(class.Types) == 0 {
			return nil, fmt.Errorf("class %q defines no types", class.Name)
		}
		if len(class.Sensors) == 0 {
			return nil, fmt.Errorf("class %q defines no sensors", class.Name)
		}

		for _, typ := range class.Types {
			name := class.Name + "/" + typ
			if _, ok := s.ftByName[name]; ok {
				return nil, fmt.Errorf("flowtype %q defined twice", name)
			}
			id := uint16(len(s.flowtypes))
			s.flowtypes = append(s.flowtypes, Flowtype{ID: id, Class: class.Name, Type: typ})
			s.ftByName[name] = id
		}

		var ids []uint16
		for _, sensor := range class.Sensors {
			id, ok := s.sensorIDs[sensor]
			if !ok {
				id = uint16(len(s.sensors))
				s.sensors = append(s.sensors, sensor)
				s.sensorIDs[sensor] = id
			}
			ids = append(ids, id)
		}
		s.classSensors[class.Name] = ids
	}

	return s, nil
}

// Load reads the configuration file at path and compiles its site section.
func Load(path string) (*Site, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return New(&cfg.Site)
}

// Root returns the repository root directory.
func (s *Site) Root() string {
	return s.root
}

// Flowtypes returns every class/type pair the site defines, in id order.
func (s *Site) Flowtypes() []Flowtype {
	return s.flowtypes
}

// FlowtypeByName looks up a class/type pair by name.
func (s *Site) FlowtypeByName(class, typ string) (Flowtype, bool) {
	id, ok := s.ftByName[class+"/"+typ]
	if !ok {
		return Flowtype{}, false
	}
	return s.flowtypes[id], true
}

// FlowtypeByID looks up a class/type pair by id.
func (s *Site) FlowtypeByID(id uint16) (Flowtype, bool) {
	if int(id) >= len(s.flowtypes) {
		return Flowtype{}, false
	}
	return s.flowtypes[id], true
}

// Classes returns the class names in declaration order.
func (s *Site) Classes() []string {
	var names []string
	seen := make(map[string]bool)
	for _, ft := range s.flowtypes {
		if !seen[ft.Class] {
			seen[ft.Class] = true
			names = append(names, ft.Class)
		}
	}
	return names
}

// SensorID looks up a sensor by name.
func (s *Site) SensorID(name string) (uint16, bool) {
	id, ok := s.sensorIDs[name]
	return id, ok
}

// SensorName returns the name for a sensor id, or "?" if unknown.
func (s *Site) SensorName(id uint16) string {
	if int(id) >= len(s.sensors) {
		return "?"
	}
	return s.sensors[id]
}

// SensorsForClass returns the sensor ids that record data for a class.
func (s *Site) SensorsForClass(class string) []uint16 {
	return s.classSensors[class]
}

// PathFor maps a (flowtype, sensor, hour) coordinate to the single file that
// holds its records. The layout is fixed:
//
//	{root}/{class}/{type}/{YYYY}/{MM}/{DD}/{type}-{sensor}_{YYYYMMDD}.{HH}
func (s *Site) PathFor(ftID, sensorID uint16, hour time.Time) string {
	ft := s.flowtypes[ftID]
	hour = hour.UTC()
	return filepath.Join(
		s.root,
		ft.Class,
		ft.Type,
		fmt.Sprintf("%04d", hour.Year()),
		fmt.Sprintf("%02d", hour.Month()),
		fmt.Sprintf("%02d", hour.Day()),
		fmt.Sprintf("%s-%s_%04d%02d%02d.%02d",
			ft.Type, s.SensorName(sensorID),
			hour.Year(), hour.Month(), hour.Day(), hour.Hour()),
	)
}
