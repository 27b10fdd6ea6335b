package facts

import (
	"github.com/eduanalytics/caaspp/internal/schema"
	"github.com/eduanalytics/caaspp/internal/table"
)

// Entity is one row of an entities table with padded codes.
type Entity struct {
	CountyCode   string
	DistrictCode string
	SchoolCode   string
	CDSCode      string
	CountyName   string
	DistrictName string
	SchoolName   string
	TypeID       string
	TestYear     string
	ZipCode      string
}

// ReadEntities extracts entities from a normalized entities table, in row
// order. Codes are padded the same way as fact codes; CDSCode is empty when
// any of the three codes is missing.
func ReadEntities(t *table.RawTable) []Entity {
	if t == nil {
		return nil
	}
	col := func(name string) int { return t.Index(name) }
	var (
		county   = col(schema.ColCountyCode)
		district = col(schema.ColDistrictCode)
		school   = col(schema.ColSchoolCode)
		cname    = col(schema.ColCountyName)
		dname    = col(schema.ColDistrictName)
		sname    = col(schema.ColSchoolName)
		typeID   = col(schema.ColTypeID)
		year     = col(schema.ColTestYear)
		zip      = col(schema.ColZipCode)
	)

	cell := func(r, c int) string {
		v, _ := t.Cell(r, c)
		return v
	}
	padded := func(r, c, width int) string {
		v, ok := t.Cell(r, c)
		if !ok {
			return ""
		}
		p, _ := PadCode(v, width)
		return p
	}

	out := make([]Entity, 0, t.Len())
	for r := range t.Rows {
		e := Entity{
			CountyCode:   padded(r, county, schema.CountyCodeWidth),
			DistrictCode: padded(r, district, schema.DistrictCodeWidth),
			SchoolCode:   padded(r, school, schema.SchoolCodeWidth),
			CountyName:   cell(r, cname),
			DistrictName: cell(r, dname),
			SchoolName:   cell(r, sname),
			TypeID:       cell(r, typeID),
			TestYear:     cell(r, year),
			ZipCode:      cell(r, zip),
		}
		if e.CountyCode != "" && e.DistrictCode != "" && e.SchoolCode != "" {
			e.CDSCode = e.CountyCode + e.DistrictCode + e.SchoolCode
		}
		out = append(out, e)
	}
	return out
}

// Lookup resolves names for fact enrichment. A nil *Lookup is valid and
// resolves nothing.
type Lookup struct {
	counties map[string]string
	entities map[string]Entity
}

// NewLookup indexes entities by padded county code and by CDS code. The first
// non-empty county name per code wins.
func NewLookup(entities []Entity) *Lookup {
	l := &Lookup{
		counties: make(map[string]string),
		entities: make(map[string]Entity, len(entities)),
	}
	for _, e := range entities {
		if e.CountyCode != "" && e.CountyName != "" {
			if _, ok := l.counties[e.CountyCode]; !ok {
				l.counties[e.CountyCode] = e.CountyName
			}
		}
		if e.CDSCode != "" {
			if _, ok := l.entities[e.CDSCode]; !ok {
				l.entities[e.CDSCode] = e
			}
		}
	}
	return l
}

// LookupFromTable is NewLookup over ReadEntities. It returns nil for a nil
// table so callers can pass the result straight to Load.
func LookupFromTable(t *table.RawTable) *Lookup {
	if t == nil {
		return nil
	}
	return NewLookup(ReadEntities(t))
}

// CountyName returns the name for a padded county code.
func (l *Lookup) CountyName(code string) (string, bool) {
	if l == nil {
		return "", false
	}
	name, ok := l.counties[code]
	return name, ok
}

// Entity returns the entity with the given CDS code.
func (l *Lookup) Entity(cds string) (Entity, bool) {
	if l == nil {
		return Entity{}, false
	}
	e, ok := l.entities[cds]
	return e, ok
}

// Len returns the number of entities indexed by CDS code.
func (l *Lookup) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entities)
}
