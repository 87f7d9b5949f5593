// Command validate performs integrity checks across a directory of raw RPG
// radiometer files: decode success, time axis sanity, header plausibility,
// and cross-family consistency within each observation unit.
//
// Usage:
//
//	go run ./cmd/validate -data-dir data
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/MeteoSwiss/mwr-raw2l1/internal/rpg"
)

// timeSpanSlack is how far a sensor file may extend beyond the housekeeping
// span before it is considered to belong to a different observation period.
const timeSpanSlack = 15 * time.Minute

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// decoded is one successfully decoded raw file.
type decoded struct {
	path  string
	frame *rpg.Frame
}

// unit groups decoded files sharing one observation unit base name.
type unit struct {
	name   string
	frames map[rpg.Kind][]decoded
}

func main() {
	dataDir := flag.String("data-dir", "", "directory containing raw RPG instrument files")
	flag.Parse()

	if *dataDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*dataDir); code != 0 {
		os.Exit(code)
	}
}

func run(dataDir string) int {
	fmt.Println("=== Raw Instrument File Validation ===")
	fmt.Println()

	units, decodePhase, nFiles := loadUnits(dataDir)

	phases := []*phase{
		decodePhase,
		validateTimeAxis(units),
		validateHeaders(units),
		validateCrossFamily(units),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Files: %d decoded across %d observation units\n", nFiles, len(units))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: Decode Integrity ──
// Every file with a known extension must decode without error.

func loadUnits(dataDir string) ([]*unit, *phase, int) {
	p := &phase{name: "Phase 1: Decode Integrity"}

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		p.errorf("reading %s: %v", dataDir, err)
		return nil, p, 0
	}

	byName := map[string]*unit{}
	nFiles := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
		kind, ok := rpg.KindForExtension(ext)
		if !ok {
			continue
		}

		path := filepath.Join(dataDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			p.errorf("%s: %v", name, err)
			continue
		}
		frame, err := rpg.Decode(kind, data)
		if err != nil {
			p.errorf("%s: %v", name, err)
			continue
		}
		nFiles++

		base := strings.TrimSuffix(name, filepath.Ext(name))
		u, ok := byName[base]
		if !ok {
			u = &unit{name: base, frames: map[rpg.Kind][]decoded{}}
			byName[base] = u
		}
		u.frames[kind] = append(u.frames[kind], decoded{path: name, frame: frame})
	}

	units := make([]*unit, 0, len(byName))
	for _, u := range byName {
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].name < units[j].name })
	return units, p, nFiles
}

// ── Phase 2: Time Axis ──
// Timestamps must be nondecreasing and lie within a plausible window.

func validateTimeAxis(units []*unit) *phase {
	p := &phase{name: "Phase 2: Time Axis"}

	earliest := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	latest := time.Now().UTC().Add(24 * time.Hour)

	for _, u := range units {
		for _, files := range u.frames {
			for _, d := range files {
				f := d.frame
				if len(f.Time) == 0 {
					p.errorf("%s: no samples", d.path)
					continue
				}
				for i, t := range f.Time {
					if t.Before(earliest) || t.After(latest) {
						p.errorf("%s: sample %d timestamp %s outside plausible window",
							d.path, i, t.Format(time.RFC3339))
						break
					}
					if i > 0 && t.Before(f.Time[i-1]) {
						p.errorf("%s: sample %d timestamp %s precedes sample %d",
							d.path, i, t.Format(time.RFC3339), i-1)
						break
					}
				}
			}
		}
	}
	return p
}

// ── Phase 3: Header Plausibility ──
// Observed values must respect the calibration ranges declared in the header.

func validateHeaders(units []*unit) *phase {
	p := &phase{name: "Phase 3: Header Plausibility"}

	for _, u := range units {
		for _, kind := range []rpg.Kind{rpg.KindBRT, rpg.KindBLB} {
			for _, d := range u.frames[kind] {
				checkCalibrationRange(p, d)
			}
		}
		for _, d := range u.frames[rpg.KindMET] {
			rh, ok := d.frame.Vars["relative_humidity"]
			if !ok {
				continue
			}
			for i := 0; i < rh.Samples(); i++ {
				if v := rh.At(i, 0); v < 0 || v > 100 {
					p.errorf("%s: sample %d relative humidity %.1f%% out of range", d.path, i, v)
					break
				}
			}
		}
	}
	return p
}

// checkCalibrationRange flags brightness temperatures outside the header's
// declared tb_min..tb_max band. Scan files inflate low-elevation readings, so
// only zenith-equivalent violations above the maximum are hard errors.
func checkCalibrationRange(p *phase, d decoded) {
	f := d.frame
	tb, ok := f.Vars["tb"]
	if !ok {
		p.errorf("%s: no brightness temperatures", d.path)
		return
	}
	tbMin := f.HeaderExtras["tb_min"]
	tbMax := f.HeaderExtras["tb_max"]
	if len(tbMin) != tb.Width || len(tbMax) != tb.Width {
		p.errorf("%s: calibration range covers %d channels, data has %d",
			d.path, len(tbMin), tb.Width)
		return
	}

	violations := 0
	for i := 0; i < tb.Samples(); i++ {
		for ch := 0; ch < tb.Width; ch++ {
			v := tb.At(i, ch)
			if math.IsNaN(v) {
				continue
			}
			if v < tbMin[ch] || v > 2*tbMax[ch] {
				violations++
			}
		}
	}
	if violations > 0 {
		p.errorf("%s: %d brightness temperatures outside calibration range", d.path, violations)
	}
}

// ── Phase 4: Cross-Family Consistency ──
// Within a unit all families must agree on channel count and covered period.

func validateCrossFamily(units []*unit) *phase {
	p := &phase{name: "Phase 4: Cross-Family Consistency"}

	for _, u := range units {
		checkChannelAgreement(p, u)
		checkTimeSpanAgreement(p, u)
	}
	return p
}

func checkChannelAgreement(p *phase, u *unit) {
	var nFreq int
	var ref string
	for _, kind := range []rpg.Kind{rpg.KindBRT, rpg.KindBLB} {
		for _, d := range u.frames[kind] {
			n := len(d.frame.Freq)
			if nFreq == 0 {
				nFreq, ref = n, d.path
				continue
			}
			if n != nFreq {
				p.errorf("%s: %d frequency channels, %s has %d", d.path, n, ref, nFreq)
			}
		}
	}
}

func checkTimeSpanAgreement(p *phase, u *unit) {
	hkd := u.frames[rpg.KindHKD]
	if len(hkd) == 0 {
		return
	}

	hkdStart, hkdEnd := timeSpan(hkd)
	for kind, files := range u.frames {
		if kind == rpg.KindHKD {
			continue
		}
		start, end := timeSpan(files)
		if start.Before(hkdStart.Add(-timeSpanSlack)) || end.After(hkdEnd.Add(timeSpanSlack)) {
			p.errorf("%s/%s: covers %s to %s but housekeeping covers %s to %s",
				u.name, kind,
				start.Format(time.RFC3339), end.Format(time.RFC3339),
				hkdStart.Format(time.RFC3339), hkdEnd.Format(time.RFC3339))
		}
	}
}

func timeSpan(files []decoded) (start, end time.Time) {
	for _, d := range files {
		for _, t := range d.frame.Time {
			if start.IsZero() || t.Before(start) {
				start = t
			}
			if end.IsZero() || t.After(end) {
				end = t
			}
		}
	}
	return start, end
}
