package risk

import "bondpipe/internal/schema"

// SectorSpec names a sector by member tenors.
type SectorSpec struct {
	Name   string
	Tenors []int
}

// DefaultSectors splits the curve into front end, belly and long end.
func DefaultSectors() []SectorSpec {
	return []SectorSpec{
		{Name: "FrontEnd", Tenors: []int{2, 3}},
		{Name: "Belly", Tenors: []int{5, 7, 10}},
		{Name: "LongEnd", Tenors: []int{20, 30}},
	}
}

// BuildSectors resolves every member tenor against reg.
func BuildSectors(specs []SectorSpec, reg *schema.Registry) ([]schema.Sector, error) {
	sectors := make([]schema.Sector, 0, len(specs))
	for _, spec := range specs {
		sector := schema.Sector{Name: spec.Name}
		for _, tenor := range spec.Tenors {
			inst, err := reg.ByTenor(tenor)
			if err != nil {
				return nil, err
			}
			sector.Instruments = append(sector.Instruments, inst)
		}
		sectors = append(sectors, sector)
	}
	return sectors, nil
}
