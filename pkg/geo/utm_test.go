package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestToUTM_CentralMeridian(t *testing.T) {
	// On the central meridian of zone 19 (69°W) easting is the false easting.
	u := ToUTM(orb.Point{-69, -12}, 19, true)
	if math.Abs(u.Easting-500000) > 0.01 {
		t.Errorf("expected easting 500000, got %.3f", u.Easting)
	}
	if u.Northing <= 8_600_000 || u.Northing >= 8_700_000 {
		t.Errorf("unexpected southern northing %.3f", u.Northing)
	}
}

func TestToUTM_KnownPoint(t *testing.T) {
	// Lima centre in its natural zone 18S.
	u := ToUTM(orb.Point{-77.0428, -12.0464}, 18, true)
	if math.Abs(u.Easting-277_617) > 50 {
		t.Errorf("unexpected easting %.1f", u.Easting)
	}
	if math.Abs(u.Northing-8_667_488) > 50 {
		t.Errorf("unexpected northing %.1f", u.Northing)
	}
}

func TestToUTM_ReadoutZone(t *testing.T) {
	// Lima lies eight degrees west of zone 19's central meridian, so the
	// pinned readout has a negative easting.
	u := ToUTM(orb.Point{-77.0428, -12.0464}, 19, true)
	if u.Easting > -350_000 || u.Easting < -400_000 {
		t.Errorf("unexpected easting %.1f", u.Easting)
	}
	if u.Northing <= 8_600_000 || u.Northing >= 8_700_000 {
		t.Errorf("unexpected northing %.1f", u.Northing)
	}
	if got := u.String(); got[:3] != "19S" {
		t.Errorf("String() = %q", got)
	}
}

func TestZoneAndBand(t *testing.T) {
	if z := ZoneOf(-77.02); z != 18 {
		t.Errorf("expected zone 18, got %d", z)
	}
	if b := BandOf(-12.0); b != "L" {
		t.Errorf("expected band L, got %q", b)
	}
	if b := BandOf(-85); b != "" {
		t.Errorf("expected no band outside range, got %q", b)
	}
}
