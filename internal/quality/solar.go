package quality

import (
	"math"
	"time"
)

// SolarPosition returns the sun's elevation and azimuth in degrees as seen
// from the given site at time t. Azimuth is measured clockwise from north.
// The calculation follows the NOAA solar geometry equations and is good to a
// fraction of a degree, which is plenty for deciding whether the sun sits in
// the antenna beam; atmospheric refraction is not applied.
func SolarPosition(t time.Time, latDeg, lonDeg float64) (eleDeg, aziDeg float64) {
	const toRad = math.Pi / 180
	const toDeg = 180 / math.Pi

	t = t.UTC()
	jd := float64(t.Unix())/86400 + 2440587.5
	jc := (jd - 2451545) / 36525

	meanLon := math.Mod(280.46646+jc*(36000.76983+jc*0.0003032), 360)
	meanAnom := 357.52911 + jc*(35999.05029-0.0001537*jc)
	eccent := 0.016708634 - jc*(0.000042037+0.0000001267*jc)

	center := math.Sin(meanAnom*toRad)*(1.914602-jc*(0.004817+0.000014*jc)) +
		math.Sin(2*meanAnom*toRad)*(0.019993-0.000101*jc) +
		math.Sin(3*meanAnom*toRad)*0.000289
	trueLon := meanLon + center
	appLon := trueLon - 0.00569 - 0.00478*math.Sin((125.04-1934.136*jc)*toRad)

	meanObliq := 23 + (26+(21.448-jc*(46.815+jc*(0.00059-jc*0.001813)))/60)/60
	obliq := meanObliq + 0.00256*math.Cos((125.04-1934.136*jc)*toRad)

	decl := math.Asin(math.Sin(obliq*toRad) * math.Sin(appLon*toRad))

	vary := math.Tan(obliq / 2 * toRad)
	vary *= vary
	eqTime := 4 * toDeg * (vary*math.Sin(2*meanLon*toRad) -
		2*eccent*math.Sin(meanAnom*toRad) +
		4*eccent*vary*math.Sin(meanAnom*toRad)*math.Cos(2*meanLon*toRad) -
		0.5*vary*vary*math.Sin(4*meanLon*toRad) -
		1.25*eccent*eccent*math.Sin(2*meanAnom*toRad))

	minutes := float64(t.Hour())*60 + float64(t.Minute()) + float64(t.Second())/60
	trueSolar := math.Mod(minutes+eqTime+4*lonDeg+1440, 1440)
	hourAngle := trueSolar/4 - 180
	if hourAngle < -180 {
		hourAngle += 360
	}

	lat := latDeg * toRad
	cosZen := math.Sin(lat)*math.Sin(decl) +
		math.Cos(lat)*math.Cos(decl)*math.Cos(hourAngle*toRad)
	zen := math.Acos(clamp(cosZen, -1, 1))
	eleDeg = 90 - zen*toDeg

	cosAz := (math.Sin(lat)*math.Cos(zen) - math.Sin(decl)) /
		(math.Cos(lat) * math.Sin(zen))
	az := math.Acos(clamp(cosAz, -1, 1)) * toDeg
	if hourAngle > 0 {
		aziDeg = math.Mod(az+180, 360)
	} else {
		aziDeg = math.Mod(540-az, 360)
	}
	return eleDeg, aziDeg
}

// angularSeparation returns the great-circle angle in degrees between two
// pointing directions given as elevation/azimuth pairs in degrees.
func angularSeparation(ele1, azi1, ele2, azi2 float64) float64 {
	const toRad = math.Pi / 180
	cosSep := math.Sin(ele1*toRad)*math.Sin(ele2*toRad) +
		math.Cos(ele1*toRad)*math.Cos(ele2*toRad)*math.Cos((azi1-azi2)*toRad)
	return math.Acos(clamp(cosSep, -1, 1)) * 180 / math.Pi
}

func clamp(x, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, x))
}
