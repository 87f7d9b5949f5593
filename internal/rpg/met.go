package rpg

import "fmt"

// decodeMET interprets a meteorological-sensor file. Pressure, temperature and
// relative humidity are always present; wind speed, wind direction and rain
// rate exist only when the auxiliary-sensor byte of a version 2 header
// declares them.
func decodeMET(c *cursor, desc formatDesc) (*Frame, error) {
	f := newFrame(KindMET)

	nMeas, err := c.i32()
	if err != nil {
		return nil, fmt.Errorf("met header: %w", err)
	}
	if nMeas < 0 {
		return nil, fmt.Errorf("%w: implausible met header (n_meas=%d)", ErrDecode, nMeas)
	}

	var aux metAux
	if desc.structVer >= 2 {
		code, err := c.u8()
		if err != nil {
			return nil, fmt.Errorf("met header: %w", err)
		}
		aux = decodeMETAux(code)
		f.HeaderExtras["auxsens_code"] = []float64{float64(code)}
	}

	for _, name := range []string{"p_min", "p_max", "t_min", "t_max", "rh_min", "rh_max"} {
		if f.HeaderExtras[name], err = c.f32s(1); err != nil {
			return nil, fmt.Errorf("met header: %w", err)
		}
	}
	optional := []struct {
		name    string
		present bool
	}{
		{"windspeed", aux.hasWindspeed},
		{"winddir", aux.hasWinddir},
		{"rainrate", aux.hasRainrate},
	}
	for _, opt := range optional {
		if !opt.present {
			continue
		}
		if f.HeaderExtras[opt.name+"_min"], err = c.f32s(1); err != nil {
			return nil, fmt.Errorf("met header: %w", err)
		}
		if f.HeaderExtras[opt.name+"_max"], err = c.f32s(1); err != nil {
			return nil, fmt.Errorf("met header: %w", err)
		}
	}
	timeRef, err := c.i32()
	if err != nil {
		return nil, fmt.Errorf("met header: %w", err)
	}
	f.TimeRef = int(timeRef)

	nAux := 0
	for _, opt := range optional {
		if opt.present {
			nAux++
		}
	}
	recordSize := 4 + 1 + 4*3 + 4*nAux
	if err := checkDeclaredLength(c, int(nMeas), recordSize); err != nil {
		return nil, fmt.Errorf("met samples: %w", err)
	}

	n := int(nMeas)
	f.Samples = n
	rain := make([]float64, n)
	series := map[string][]float64{
		"pressure":          make([]float64, n),
		"temperature":       make([]float64, n),
		"relative_humidity": make([]float64, n),
	}
	for _, opt := range optional {
		if opt.present {
			series[opt.name] = make([]float64, n)
		}
	}

	for i := 0; i < n; i++ {
		tRaw, err := c.i32()
		if err != nil {
			return nil, fmt.Errorf("met sample %d: %w", i, err)
		}
		f.Time = append(f.Time, DecodeTime(tRaw))

		r, err := c.u8()
		if err != nil {
			return nil, fmt.Errorf("met sample %d: %w", i, err)
		}
		rain[i] = float64(r)

		for _, name := range []string{"pressure", "temperature", "relative_humidity"} {
			if series[name][i], err = c.f32(); err != nil {
				return nil, fmt.Errorf("met sample %d: %w", i, err)
			}
		}
		for _, opt := range optional {
			if !opt.present {
				continue
			}
			if series[opt.name][i], err = c.f32(); err != nil {
				return nil, fmt.Errorf("met sample %d: %w", i, err)
			}
		}
	}

	f.setSeries("rainflag", rain)
	for name, data := range series {
		f.setSeries(name, data)
	}
	return f, nil
}
