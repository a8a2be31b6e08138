package gpkg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Standard GeoPackage binary header: magic "GP", version 0, flags, srs_id.
// Flags 0x01 means little-endian with no envelope.
const (
	gpMagic0     = 'G'
	gpMagic1     = 'P'
	gpVersion    = 0
	gpFlagsLE    = 0x01
	gpHeaderSize = 8

	wkbLittleEndian = 1
	wkbPoint        = 1
	wkbPointSize    = 1 + 4 + 8 + 8
)

// EncodePoint returns a GeoPackage geometry blob holding a single 2D point.
func EncodePoint(x, y float64, srid int) []byte {
	buf := make([]byte, gpHeaderSize+wkbPointSize)
	buf[0] = gpMagic0
	buf[1] = gpMagic1
	buf[2] = gpVersion
	buf[3] = gpFlagsLE
	binary.LittleEndian.PutUint32(buf[4:8], uint32(int32(srid)))

	wkb := buf[gpHeaderSize:]
	wkb[0] = wkbLittleEndian
	binary.LittleEndian.PutUint32(wkb[1:5], wkbPoint)
	binary.LittleEndian.PutUint64(wkb[5:13], math.Float64bits(x))
	binary.LittleEndian.PutUint64(wkb[13:21], math.Float64bits(y))
	return buf
}

// DecodePoint parses a blob written by EncodePoint.
func DecodePoint(blob []byte) (x, y float64, srid int, err error) {
	if len(blob) != gpHeaderSize+wkbPointSize {
		return 0, 0, 0, fmt.Errorf("point blob: length %d", len(blob))
	}
	if blob[0] != gpMagic0 || blob[1] != gpMagic1 {
		return 0, 0, 0, errors.New("point blob: bad magic")
	}
	if blob[3] != gpFlagsLE {
		return 0, 0, 0, fmt.Errorf("point blob: unsupported flags %#x", blob[3])
	}
	srid = int(int32(binary.LittleEndian.Uint32(blob[4:8])))

	wkb := blob[gpHeaderSize:]
	if wkb[0] != wkbLittleEndian || binary.LittleEndian.Uint32(wkb[1:5]) != wkbPoint {
		return 0, 0, 0, errors.New("point blob: not a little-endian WKB point")
	}
	x = math.Float64frombits(binary.LittleEndian.Uint64(wkb[5:13]))
	y = math.Float64frombits(binary.LittleEndian.Uint64(wkb[13:21]))
	return x, y, srid, nil
}
