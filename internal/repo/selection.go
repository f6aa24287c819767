package repo

import (
	"fmt"
	"strings"
	"time"

	"FlowSieve/internal/site"
)

const hourFormat = "2006/01/02:15"

// ParseDate parses "YYYY/MM/DD" or "YYYY/MM/DD:HH" in UTC. hadHour reports
// whether the hour was given explicitly.
func ParseDate(s string) (t time.Time, hadHour bool, err error) {
	if t, err = time.ParseInLocation(hourFormat, s, time.UTC); err == nil {
		return t, true, nil
	}
	if t, err = time.ParseInLocation("2006/01/02", s, time.UTC); err == nil {
		return t, false, nil
	}
	return time.Time{}, false, fmt.Errorf("invalid date %q: want YYYY/MM/DD[:HH]", s)
}

// ParseDateRange resolves the --start-date/--end-date pair. A missing end
// defaults to the end of the start's day when the start named only a day,
// and to the start hour itself otherwise. A missing end hour means the end
// of that day.
func ParseDateRange(startArg, endArg string) (start, end time.Time, err error) {
	if startArg == "" {
		return start, end, fmt.Errorf("no start date given")
	}
	start, startHadHour, err := ParseDate(startArg)
	if err != nil {
		return start, end, fmt.Errorf("invalid start-date: %w", err)
	}

	if endArg == "" {
		if startHadHour {
			return start, start, nil
		}
		return start, start.Add(23 * time.Hour), nil
	}

	end, endHadHour, err := ParseDate(endArg)
	if err != nil {
		return start, end, fmt.Errorf("invalid end-date: %w", err)
	}
	if !endHadHour {
		end = end.Add(23 * time.Hour)
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("end-date %s precedes start-date %s", endArg, startArg)
	}
	return start, end, nil
}

// ParseSelection builds a Selection from the class/type/flowtypes/sensors
// switches. flowtypesArg names "class/type" pairs directly and excludes the
// class and type switches. An empty class selects every class; an empty
// type list selects every type of the chosen classes; an empty sensor list
// selects every sensor of each flowtype's class.
func ParseSelection(st *site.Site, classArg, typeArg, flowtypesArg, sensorsArg string) (Selection, error) {
	var sel Selection

	if flowtypesArg != "" && (classArg != "" || typeArg != "") {
		return sel, fmt.Errorf("flowtypes switch excludes the class and type switches")
	}

	var flowtypes []site.Flowtype
	switch {
	case flowtypesArg != "":
		for _, name := range strings.Split(flowtypesArg, ",") {
			class, typ, ok := strings.Cut(name, "/")
			if !ok {
				return sel, fmt.Errorf("invalid flowtypes value %q: want class/type", name)
			}
			ft, found := st.FlowtypeByName(class, typ)
			if !found {
				return sel, fmt.Errorf("unknown flowtype %q", name)
			}
			flowtypes = append(flowtypes, ft)
		}
	default:
		classes := st.Classes()
		if classArg != "" {
			classes = strings.Split(classArg, ",")
		}
		wantTypes := map[string]bool{}
		if typeArg != "" {
			for _, typ := range strings.Split(typeArg, ",") {
				wantTypes[typ] = true
			}
		}
		for _, class := range classes {
			found := false
			for _, ft := range st.Flowtypes() {
				if ft.Class != class {
					continue
				}
				found = true
				if len(wantTypes) == 0 || wantTypes[ft.Type] {
					flowtypes = append(flowtypes, ft)
				}
			}
			if !found {
				return sel, fmt.Errorf("unknown class %q", class)
			}
		}
		if len(flowtypes) == 0 {
			return sel, fmt.Errorf("no flowtype matches class %q type %q", classArg, typeArg)
		}
	}

	var wantSensors []uint16
	if sensorsArg != "" {
		for _, name := range strings.Split(sensorsArg, ",") {
			id, ok := st.SensorID(name)
			if !ok {
				return sel, fmt.Errorf("unknown sensor %q", name)
			}
			wantSensors = append(wantSensors, id)
		}
	}

	for _, ft := range flowtypes {
		classSensors := st.SensorsForClass(ft.Class)
		var sensors []uint16
		if wantSensors == nil {
			sensors = classSensors
		} else {
			inClass := map[uint16]bool{}
			for _, id := range classSensors {
				inClass[id] = true
			}
			for _, id := range wantSensors {
				if inClass[id] {
					sensors = append(sensors, id)
				}
			}
		}
		if len(sensors) == 0 {
			return sel, fmt.Errorf("no selected sensor records data for %s", ft.Name())
		}
		sel.Flowtypes = append(sel.Flowtypes, ft.ID)
		sel.Sensors = append(sel.Sensors, sensors)
	}

	return sel, nil
}
