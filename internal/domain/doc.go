// Package domain models Hilltop sensor sites and the enriched dataset loaded
// into a GIS store.
//
// # Data Source
//
// Site metadata comes from a Hilltop server (data.hts) queried with two
// request shapes:
//
//	?Service=Hilltop&Request=SiteList&Location=LatLong
//	?Service=Hilltop&Request=MeasurementList&Site=<name>
//
// The site list returns repeated Site elements carrying a Name attribute and
// Latitude/Longitude children in WGS-84 decimal degrees. The measurement list
// returns DataSource elements whose Measurement children carry a Name
// attribute such as "Rainfall" or "Stage".
//
// # Measurements
//
// Only the first named measurement under any DataSource is kept per site.
// When none is available the record carries an absent [Measurement] with a
// reason, so a report can tell "the site has no measurements" apart from
// "the site could not be queried":
//
//	not_found    response parsed, no DataSource/Measurement[@Name]
//	unreachable  transport failure or non-2xx response
//	malformed    response body was not well-formed XML
//
// # Ordering
//
// Enriched records keep the order in which the site list returned them. The
// cache file and every sink preserve that order.
package domain
