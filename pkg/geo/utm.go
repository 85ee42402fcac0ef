package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/wroge/wgs84"
)

// UTM is a transverse-mercator coordinate.
type UTM struct {
	Zone     int
	South    bool
	Easting  float64
	Northing float64
}

// String renders the coordinate as "19S 281234.56E 8671234.56N".
func (u UTM) String() string {
	hemi := "N"
	if u.South {
		hemi = "S"
	}
	return fmt.Sprintf("%d%s %.2fE %.2fN", u.Zone, hemi, u.Easting, u.Northing)
}

// ZoneOf returns the natural UTM zone number for a longitude.
func ZoneOf(lon float64) int {
	z := int(math.Floor((lon+180)/6)) + 1
	if z < 1 {
		return 1
	}
	if z > 60 {
		return 60
	}
	return z
}

// BandOf returns the UTM latitude band letter, or "" outside 80S..84N.
func BandOf(lat float64) string {
	const bands = "CDEFGHJKLMNPQRSTUVWX"
	if lat < -80 || lat > 84 {
		return ""
	}
	i := int(math.Floor((lat + 80) / 8))
	if i >= len(bands) {
		i = len(bands) - 1
	}
	return string(bands[i])
}

// ToUTM projects p into the given zone. The dashboard pins a fixed zone so
// readouts stay comparable across the whole region.
func ToUTM(p orb.Point, zone int, south bool) UTM {
	easting, northing, _ := wgs84.LonLat().To(wgs84.UTM(float64(zone), !south))(p.Lon(), p.Lat(), 0)
	return UTM{Zone: zone, South: south, Easting: easting, Northing: northing}
}
