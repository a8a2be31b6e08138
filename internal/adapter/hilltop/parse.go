package hilltop

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/couchcryptid/hilltop-site-loader/internal/domain"
)

// ParseSites extracts every Site element with both coordinates, in document
// order. Sites missing either coordinate are skipped. Coordinates that are
// present but not numeric fail the whole parse with domain.ErrParse.
func ParseSites(root *Element) ([]domain.Site, error) {
	var sites []domain.Site
	for _, el := range root.FindAll("Site") {
		latText, hasLat := coordinate(el, "Latitude")
		lonText, hasLon := coordinate(el, "Longitude")
		if !hasLat || !hasLon {
			continue
		}

		name, _ := el.Attr("Name")
		lat, err := parseDegrees(latText)
		if err != nil {
			return nil, fmt.Errorf("%w: site %q latitude: %v", domain.ErrParse, name, err)
		}
		lon, err := parseDegrees(lonText)
		if err != nil {
			return nil, fmt.Errorf("%w: site %q longitude: %v", domain.ErrParse, name, err)
		}

		sites = append(sites, domain.Site{Name: name, Latitude: lat, Longitude: lon})
	}
	return sites, nil
}

// coordinate reads a coordinate from a child element, falling back to an
// attribute of the same name.
func coordinate(site *Element, name string) (string, bool) {
	if child := site.Find(name); child != nil {
		return child.Text, true
	}
	return site.Attr(name)
}

// parseDegrees accepts plain decimal degrees. A leading U+2212 minus sign is
// treated as an ASCII hyphen.
func parseDegrees(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.Replace(s, "−", "-", 1)
	return strconv.ParseFloat(s, 64)
}

// FirstMeasurement returns the Name of the first Measurement that is a direct
// child of a DataSource and carries a non-empty Name, or an absent measurement
// with MeasurementNotFound.
func FirstMeasurement(root *Element) domain.Measurement {
	for _, ds := range root.FindAll("DataSource") {
		for _, c := range ds.Children {
			if c.Name != "Measurement" {
				continue
			}
			if name, ok := c.Attr("Name"); ok && name != "" {
				return domain.Present(name)
			}
		}
	}
	return domain.Absent(domain.MeasurementNotFound)
}
