package gpkg

import "strconv"

type srs struct {
	name         string
	organization string
	orgID        int
	definition   string
	description  string
}

// knownSRS holds the reference systems this loader is expected to write.
// Other EPSG codes are registered with an "undefined" definition, which
// GeoPackage readers resolve through the organization code.
var knownSRS = map[int]srs{
	-1: {
		name:         "Undefined cartesian SRS",
		organization: "NONE",
		orgID:        -1,
		definition:   "undefined",
		description:  "undefined cartesian coordinate reference system",
	},
	0: {
		name:         "Undefined geographic SRS",
		organization: "NONE",
		orgID:        0,
		definition:   "undefined",
		description:  "undefined geographic coordinate reference system",
	},
	4326: {
		name:         "WGS 84 geodetic",
		organization: "EPSG",
		orgID:        4326,
		definition:   `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`,
		description:  "longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid",
	},
	2193: {
		name:         "NZGD2000 / New Zealand Transverse Mercator 2000",
		organization: "EPSG",
		orgID:        2193,
		definition:   `PROJCS["NZGD2000 / New Zealand Transverse Mercator 2000",GEOGCS["NZGD2000",DATUM["New_Zealand_Geodetic_Datum_2000",SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],AUTHORITY["EPSG","6167"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4167"]],PROJECTION["Transverse_Mercator"],PARAMETER["latitude_of_origin",0],PARAMETER["central_meridian",173],PARAMETER["scale_factor",0.9996],PARAMETER["false_easting",1600000],PARAMETER["false_northing",10000000],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AUTHORITY["EPSG","2193"]]`,
		description:  "NZTM2000",
	},
}

func lookupSRS(srid int) srs {
	if ref, ok := knownSRS[srid]; ok {
		return ref
	}
	return srs{
		name:         "EPSG:" + strconv.Itoa(srid),
		organization: "EPSG",
		orgID:        srid,
		definition:   "undefined",
	}
}
