package rpg

import "fmt"

// nFreqAssumed is the channel count assumed for structure version 1 scan
// files, where the true count is stored only after it is needed for reading.
const nFreqAssumed = 14

// decodeBLB interprets a boundary-layer scan file. Each raw record holds one
// complete sweep: a single end-of-sweep timestamp, a scan flag byte and a
// frequency x (elevation+1) observation block, where the extra slot carries
// the ambient temperature. The sweep is demultiplexed into one row per
// (sweep, angle) pair; per-angle timestamps are reconstructed later by the
// scan geometry transform.
func decodeBLB(c *cursor, desc formatDesc) (*Frame, error) {
	f := newFrame(KindBLB)

	nScans, err := c.i32()
	if err != nil {
		return nil, fmt.Errorf("blb header: %w", err)
	}
	if nScans < 0 {
		return nil, fmt.Errorf("%w: implausible blb header (n_scans=%d)", ErrDecode, nScans)
	}

	nFreq := nFreqAssumed
	if desc.structVer >= 2 {
		v, err := c.i32()
		if err != nil {
			return nil, fmt.Errorf("blb header: %w", err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("%w: implausible blb header (n_freq=%d)", ErrDecode, v)
		}
		nFreq = int(v)
	}

	if f.HeaderExtras["tb_min"], err = c.f32s(nFreq); err != nil {
		return nil, fmt.Errorf("blb header: %w", err)
	}
	if f.HeaderExtras["tb_max"], err = c.f32s(nFreq); err != nil {
		return nil, fmt.Errorf("blb header: %w", err)
	}
	timeRef, err := c.i32()
	if err != nil {
		return nil, fmt.Errorf("blb header: %w", err)
	}
	f.TimeRef = int(timeRef)

	// Version 1 stores the true channel count only here; cross-check the
	// assumption everything before was read with.
	if desc.structVer == 1 {
		nFreqFile, err := c.i32()
		if err != nil {
			return nil, fmt.Errorf("blb header: %w", err)
		}
		if int(nFreqFile) != nFreq {
			return nil, fmt.Errorf("%w: assumed %d channels but file declares %d",
				ErrWrongNumberOfChannels, nFreq, nFreqFile)
		}
	}

	if f.Freq, err = c.f32s(nFreq); err != nil {
		return nil, fmt.Errorf("blb header: %w", err)
	}
	nEle32, err := c.i32()
	if err != nil {
		return nil, fmt.Errorf("blb header: %w", err)
	}
	if nEle32 <= 0 {
		return nil, fmt.Errorf("%w: implausible blb header (n_ele=%d)", ErrDecode, nEle32)
	}
	nEle := int(nEle32)
	if f.ScanEle, err = c.f32s(nEle); err != nil {
		return nil, fmt.Errorf("blb header: %w", err)
	}

	recordSize := 4 + 1 + 4*nFreq*(nEle+1)
	if err := checkDeclaredLength(c, int(nScans), recordSize); err != nil {
		return nil, fmt.Errorf("blb samples: %w", err)
	}

	n := int(nScans) * nEle
	f.Samples = n
	tb := Var{Data: make([]float64, n*nFreq), Width: nFreq}
	ele := make([]float64, n)
	ambient := make([]float64, n)
	rain := make([]float64, n)
	quadrant := make([]float64, n)
	scanflagRaw := make([]float64, n)

	for s := 0; s < int(nScans); s++ {
		tRaw, err := c.i32()
		if err != nil {
			return nil, fmt.Errorf("blb sweep %d: %w", s, err)
		}
		end := DecodeTime(tRaw)
		f.SweepEnd = append(f.SweepEnd, end)

		flag, err := c.u8()
		if err != nil {
			return nil, fmt.Errorf("blb sweep %d: %w", s, err)
		}
		rainSweep, quadrantSweep, err := DecodeScanFlag(flag)
		if err != nil {
			return nil, fmt.Errorf("blb sweep %d: %w", s, err)
		}

		// One observation block per channel: tb at each angle, then the
		// ambient temperature in the trailing slot.
		var ambientSweep float64
		for ch := 0; ch < nFreq; ch++ {
			for e := 0; e <= nEle; e++ {
				v, err := c.f32()
				if err != nil {
					return nil, fmt.Errorf("blb sweep %d: %w", s, err)
				}
				if e < nEle {
					tb.Set(s*nEle+e, ch, v)
				} else if ch == 0 {
					ambientSweep = v
				}
			}
		}

		for e := 0; e < nEle; e++ {
			row := s*nEle + e
			f.Time = append(f.Time, end) // placeholder until the scan transform
			ele[row] = f.ScanEle[e]
			ambient[row] = ambientSweep
			rain[row] = rainSweep
			quadrant[row] = quadrantSweep
			scanflagRaw[row] = float64(flag)
		}
	}

	f.Vars["tb"] = nanZeros(tb)
	f.setSeries("ele", ele)
	f.setSeries("ambient_temperature", ambient)
	f.setSeries("rainflag", rain)
	f.setSeries("scan_quadrant", quadrant)
	f.setSeries("scanflag_raw", scanflagRaw)
	return f, nil
}
