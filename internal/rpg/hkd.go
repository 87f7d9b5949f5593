package rpg

import "fmt"

// decodeHKD interprets a housekeeping file. The header's contents code
// declares which optional sample groups (coordinates, receiver temperatures,
// stability, flash memory, quality and status words) are present. Raw status
// and quality integers are preserved verbatim; their semantic expansion
// happens during measurement assembly.
func decodeHKD(c *cursor, _ formatDesc) (*Frame, error) {
	f := newFrame(KindHKD)

	nMeas, err := c.i32()
	if err != nil {
		return nil, fmt.Errorf("hkd header: %w", err)
	}
	if nMeas < 0 {
		return nil, fmt.Errorf("%w: implausible hkd header (n_meas=%d)", ErrDecode, nMeas)
	}
	timeRef, err := c.i32()
	if err != nil {
		return nil, fmt.Errorf("hkd header: %w", err)
	}
	f.TimeRef = int(timeRef)
	contentsCode, err := c.i32()
	if err != nil {
		return nil, fmt.Errorf("hkd header: %w", err)
	}
	contents := decodeHKDContents(contentsCode)
	f.HeaderExtras["contents_code"] = []float64{float64(contentsCode)}

	recordSize := 4 + 1
	if contents.hasCoord {
		recordSize += 8
	}
	if contents.hasTemperature {
		recordSize += 16
	}
	if contents.hasStability {
		recordSize += 8
	}
	if contents.hasFlashInfo {
		recordSize += 4
	}
	if contents.hasQuality {
		recordSize += 4
	}
	if contents.hasStatus {
		recordSize += 4
	}
	if err := checkDeclaredLength(c, int(nMeas), recordSize); err != nil {
		return nil, fmt.Errorf("hkd samples: %w", err)
	}

	n := int(nMeas)
	f.Samples = n
	alarm := make([]float64, n)
	series := map[string]Var{}
	optSeries := func(name string, present bool) {
		if present {
			series[name] = NewVar(n, 1)
		}
	}
	optSeries("lon", contents.hasCoord)
	optSeries("lat", contents.hasCoord)
	optSeries("lon_raw", contents.hasCoord)
	optSeries("lat_raw", contents.hasCoord)
	optSeries("t_amb_1", contents.hasTemperature)
	optSeries("t_amb_2", contents.hasTemperature)
	optSeries("t_receiver_kband", contents.hasTemperature)
	optSeries("t_receiver_vband", contents.hasTemperature)
	optSeries("tstab_kband", contents.hasStability)
	optSeries("tstab_vband", contents.hasStability)
	optSeries("flashmemory_remaining", contents.hasFlashInfo)
	optSeries("l2_qualityflag_raw", contents.hasQuality)
	optSeries("statusflag_raw", contents.hasStatus)

	for i := 0; i < n; i++ {
		tRaw, err := c.i32()
		if err != nil {
			return nil, fmt.Errorf("hkd sample %d: %w", i, err)
		}
		f.Time = append(f.Time, DecodeTime(tRaw))

		a, err := c.u8()
		if err != nil {
			return nil, fmt.Errorf("hkd sample %d: %w", i, err)
		}
		alarm[i] = float64(a)

		if contents.hasCoord {
			lonRaw, err := c.f32()
			if err != nil {
				return nil, fmt.Errorf("hkd sample %d: %w", i, err)
			}
			latRaw, err := c.f32()
			if err != nil {
				return nil, fmt.Errorf("hkd sample %d: %w", i, err)
			}
			lon, err := DecodeCoordinate(lonRaw)
			if err != nil {
				return nil, fmt.Errorf("hkd sample %d: %w", i, err)
			}
			lat, err := DecodeCoordinate(latRaw)
			if err != nil {
				return nil, fmt.Errorf("hkd sample %d: %w", i, err)
			}
			series["lon_raw"].Set(i, 0, lonRaw)
			series["lat_raw"].Set(i, 0, latRaw)
			series["lon"].Set(i, 0, lon)
			series["lat"].Set(i, 0, lat)
		}
		if contents.hasTemperature {
			for _, name := range []string{"t_amb_1", "t_amb_2", "t_receiver_kband", "t_receiver_vband"} {
				v, err := c.f32()
				if err != nil {
					return nil, fmt.Errorf("hkd sample %d: %w", i, err)
				}
				series[name].Set(i, 0, v)
			}
		}
		if contents.hasStability {
			for _, name := range []string{"tstab_kband", "tstab_vband"} {
				v, err := c.f32()
				if err != nil {
					return nil, fmt.Errorf("hkd sample %d: %w", i, err)
				}
				series[name].Set(i, 0, v)
			}
		}
		if contents.hasFlashInfo {
			v, err := c.i32()
			if err != nil {
				return nil, fmt.Errorf("hkd sample %d: %w", i, err)
			}
			series["flashmemory_remaining"].Set(i, 0, float64(v))
		}
		if contents.hasQuality {
			v, err := c.i32()
			if err != nil {
				return nil, fmt.Errorf("hkd sample %d: %w", i, err)
			}
			series["l2_qualityflag_raw"].Set(i, 0, float64(v))
		}
		if contents.hasStatus {
			v, err := c.i32()
			if err != nil {
				return nil, fmt.Errorf("hkd sample %d: %w", i, err)
			}
			series["statusflag_raw"].Set(i, 0, float64(uint32(v)))
		}
	}

	f.setSeries("alarm", alarm)
	for name, v := range series {
		f.Vars[name] = v
	}
	return f, nil
}
