package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSolarPositionEquinoxNoon(t *testing.T) {
	// At the March equinox the sun stands nearly overhead at local noon on
	// the equator and prime meridian.
	ele, _ := SolarPosition(time.Date(2019, 3, 20, 12, 0, 0, 0, time.UTC), 0, 0)
	assert.Greater(t, ele, 85.0)
}

func TestSolarPositionNight(t *testing.T) {
	ele, _ := SolarPosition(time.Date(2019, 6, 21, 0, 0, 0, 0, time.UTC), 46.81, 6.94)
	assert.Less(t, ele, 0.0)
}

func TestSolarPositionMorningEast(t *testing.T) {
	ele, azi := SolarPosition(time.Date(2019, 3, 20, 8, 0, 0, 0, time.UTC), 46.81, 6.94)
	assert.Greater(t, ele, 0.0)
	assert.Greater(t, azi, 90.0)
	assert.Less(t, azi, 180.0)
}

func TestSolarPositionEveningWest(t *testing.T) {
	ele, azi := SolarPosition(time.Date(2019, 3, 20, 16, 0, 0, 0, time.UTC), 46.81, 6.94)
	assert.Greater(t, ele, 0.0)
	assert.Greater(t, azi, 180.0)
	assert.Less(t, azi, 270.0)
}

func TestAngularSeparation(t *testing.T) {
	assert.InDelta(t, 0, angularSeparation(45, 180, 45, 180), 1e-9)
	assert.InDelta(t, 90, angularSeparation(90, 0, 0, 123), 1e-6)
	assert.InDelta(t, 180, angularSeparation(45, 0, -45, 180), 1e-6)
}
