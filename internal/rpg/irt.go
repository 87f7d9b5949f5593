package rpg

import (
	"fmt"
	"math"
)

// decodeIRT interprets an infrared-temperature file. Structure version 1 is a
// single-channel instrument without wavelength or pointing information;
// version 2 declares its channel count and appends a packed pointing value to
// every sample.
func decodeIRT(c *cursor, desc formatDesc) (*Frame, error) {
	f := newFrame(KindIRT)

	nMeas, err := c.i32()
	if err != nil {
		return nil, fmt.Errorf("irt header: %w", err)
	}
	if nMeas < 0 {
		return nil, fmt.Errorf("%w: implausible irt header (n_meas=%d)", ErrDecode, nMeas)
	}
	if f.HeaderExtras["irt_min"], err = c.f32s(1); err != nil {
		return nil, fmt.Errorf("irt header: %w", err)
	}
	if f.HeaderExtras["irt_max"], err = c.f32s(1); err != nil {
		return nil, fmt.Errorf("irt header: %w", err)
	}
	timeRef, err := c.i32()
	if err != nil {
		return nil, fmt.Errorf("irt header: %w", err)
	}
	f.TimeRef = int(timeRef)

	nWl := 1
	if desc.structVer >= 2 {
		v, err := c.i32()
		if err != nil {
			return nil, fmt.Errorf("irt header: %w", err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("%w: implausible irt header (n_wavelengths=%d)", ErrDecode, v)
		}
		nWl = int(v)
		if f.Wavelength, err = c.f32s(nWl); err != nil {
			return nil, fmt.Errorf("irt header: %w", err)
		}
	} else {
		f.Wavelength = []float64{math.NaN()}
	}

	recordSize := 4 + 1 + 4*nWl
	hasPointing := desc.structVer >= 2
	if hasPointing {
		recordSize += 4
	}
	if err := checkDeclaredLength(c, int(nMeas), recordSize); err != nil {
		return nil, fmt.Errorf("irt samples: %w", err)
	}

	n := int(nMeas)
	f.Samples = n
	irt := Var{Data: make([]float64, n*nWl), Width: nWl}
	rain := make([]float64, n)
	ele := NewVar(n, 1)
	azi := NewVar(n, 1)
	pointingRaw := NewVar(n, 1)

	for i := 0; i < n; i++ {
		tRaw, err := c.i32()
		if err != nil {
			return nil, fmt.Errorf("irt sample %d: %w", i, err)
		}
		f.Time = append(f.Time, DecodeTime(tRaw))

		r, err := c.u8()
		if err != nil {
			return nil, fmt.Errorf("irt sample %d: %w", i, err)
		}
		rain[i] = float64(r)

		for ch := 0; ch < nWl; ch++ {
			v, err := c.f32()
			if err != nil {
				return nil, fmt.Errorf("irt sample %d: %w", i, err)
			}
			irt.Set(i, ch, v)
		}

		if hasPointing {
			p, err := c.angle(desc)
			if err != nil {
				return nil, fmt.Errorf("irt sample %d: %w", i, err)
			}
			pointingRaw.Set(i, 0, p)
			e, a, err := DecodeAngle(p, desc.angleVer)
			if err != nil {
				return nil, fmt.Errorf("irt sample %d: %w", i, err)
			}
			ele.Set(i, 0, e)
			azi.Set(i, 0, a)
		}
	}

	f.Vars["irt"] = nanZeros(irt)
	f.setSeries("rainflag", rain)
	f.Vars["ele"] = ele
	f.Vars["azi"] = azi
	f.Vars["pointing_raw"] = pointingRaw
	return f, nil
}
