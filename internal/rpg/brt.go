package rpg

import "fmt"

// decodeBRT interprets a brightness-temperature file: per sample one raw
// timestamp, a rain flag, one brightness temperature per frequency channel and
// a packed pointing value.
func decodeBRT(c *cursor, desc formatDesc) (*Frame, error) {
	f := newFrame(KindBRT)

	nMeas, err := c.i32()
	if err != nil {
		return nil, fmt.Errorf("brt header: %w", err)
	}
	timeRef, err := c.i32()
	if err != nil {
		return nil, fmt.Errorf("brt header: %w", err)
	}
	nFreq, err := c.i32()
	if err != nil {
		return nil, fmt.Errorf("brt header: %w", err)
	}
	if nMeas < 0 || nFreq <= 0 {
		return nil, fmt.Errorf("%w: implausible brt header (n_meas=%d, n_freq=%d)", ErrDecode, nMeas, nFreq)
	}
	f.TimeRef = int(timeRef)

	if f.Freq, err = c.f32s(int(nFreq)); err != nil {
		return nil, fmt.Errorf("brt header: %w", err)
	}
	if f.HeaderExtras["tb_min"], err = c.f32s(int(nFreq)); err != nil {
		return nil, fmt.Errorf("brt header: %w", err)
	}
	if f.HeaderExtras["tb_max"], err = c.f32s(int(nFreq)); err != nil {
		return nil, fmt.Errorf("brt header: %w", err)
	}

	recordSize := 4 + 1 + 4*int(nFreq) + 4
	if err := checkDeclaredLength(c, int(nMeas), recordSize); err != nil {
		return nil, fmt.Errorf("brt samples: %w", err)
	}

	n := int(nMeas)
	f.Samples = n
	tb := Var{Data: make([]float64, n*int(nFreq)), Width: int(nFreq)}
	rain := make([]float64, n)
	ele := make([]float64, n)
	azi := make([]float64, n)
	pointingRaw := make([]float64, n)

	for i := 0; i < n; i++ {
		tRaw, err := c.i32()
		if err != nil {
			return nil, fmt.Errorf("brt sample %d: %w", i, err)
		}
		f.Time = append(f.Time, DecodeTime(tRaw))

		r, err := c.u8()
		if err != nil {
			return nil, fmt.Errorf("brt sample %d: %w", i, err)
		}
		rain[i] = float64(r)

		for ch := 0; ch < int(nFreq); ch++ {
			v, err := c.f32()
			if err != nil {
				return nil, fmt.Errorf("brt sample %d: %w", i, err)
			}
			tb.Set(i, ch, v)
		}

		p, err := c.angle(desc)
		if err != nil {
			return nil, fmt.Errorf("brt sample %d: %w", i, err)
		}
		pointingRaw[i] = p
		if ele[i], azi[i], err = DecodeAngle(p, desc.angleVer); err != nil {
			return nil, fmt.Errorf("brt sample %d: %w", i, err)
		}
	}

	f.Vars["tb"] = nanZeros(tb)
	f.setSeries("rainflag", rain)
	f.setSeries("ele", ele)
	f.setSeries("azi", azi)
	f.setSeries("pointing_raw", pointingRaw)
	return f, nil
}
