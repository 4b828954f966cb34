package catalog

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/dynpool/internal/logging"
	"github.com/signalsfoundry/dynpool/model"
)

const lineLength = 69

// Loader parses 3-line element catalogs. Malformed entries are skipped with
// a recorded reason; the loader is the only stage allowed to skip rather
// than abort, because upstream catalogs routinely carry stray records.
type Loader struct {
	log logging.Logger
}

// NewLoader constructs a Loader. A nil logger is replaced with a noop.
func NewLoader(log logging.Logger) *Loader {
	if log == nil {
		log = logging.Noop()
	}
	return &Loader{log: log}
}

// LoadSources reads every source in order, merges the results, drops
// superseded duplicates, and anchors the run epoch on the primary (first)
// source's constellation. At least one valid element per requested
// constellation is required.
func (l *Loader) LoadSources(ctx context.Context, sources ...Source) (*Catalog, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no catalog sources configured", model.ErrConfiguration)
	}

	cat := &Catalog{}
	var digests []string
	byID := make(map[uint32]int) // catalog ID -> index into cat.Elements

	for _, src := range sources {
		f, err := os.Open(src.Path)
		if err != nil {
			return nil, fmt.Errorf("open catalog %s: %w", src.Path, err)
		}
		elems, skipped, digest, err := l.parse(ctx, f, src)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", src.Path, err)
		}

		digests = append(digests, digest)
		cat.Skipped = append(cat.Skipped, skipped...)

		for _, e := range elems {
			prev, dup := byID[e.CatalogID]
			if !dup {
				byID[e.CatalogID] = len(cat.Elements)
				cat.Elements = append(cat.Elements, e)
				continue
			}
			// Keep the newer epoch, record the loser.
			kept := cat.Elements[prev]
			loser := e
			if e.Epoch.After(kept.Epoch) {
				cat.Elements[prev] = e
				loser = kept
			}
			cat.Skipped = append(cat.Skipped, model.Disposition{
				CatalogID:     loser.CatalogID,
				Name:          loser.Name,
				Constellation: loser.Constellation,
				Stage:         "catalog",
				Status:        model.DispositionExcluded,
				Reason:        fmt.Sprintf("superseded by element set with epoch %s", cat.Elements[prev].Epoch.Format(time.RFC3339)),
			})
			l.log.Warn(ctx, "duplicate catalog entry superseded",
				logging.Int("catalog_id", int(loser.CatalogID)),
				logging.String("kept_epoch", cat.Elements[prev].Epoch.Format(time.RFC3339)))
		}
	}

	cat.Digest = combineDigests(digests)

	primary := sources[0].Constellation
	for _, e := range cat.Elements {
		if primary != "" && e.Constellation != primary {
			continue
		}
		if e.Epoch.After(cat.Epoch) {
			cat.Epoch = e.Epoch
		}
	}
	if cat.Epoch.IsZero() {
		return nil, fmt.Errorf("%w: no valid elements for primary constellation %s", model.ErrValidation, primary)
	}
	for _, src := range sources {
		if src.Constellation == "" {
			continue
		}
		if len(cat.ByConstellation(src.Constellation)) == 0 {
			return nil, fmt.Errorf("%w: catalog %s produced no valid elements for %s",
				model.ErrValidation, src.Path, src.Constellation)
		}
	}

	l.log.Info(ctx, "catalog loaded",
		logging.Int("elements", len(cat.Elements)),
		logging.Int("skipped", len(cat.Skipped)),
		logging.String("epoch", cat.Epoch.Format(time.RFC3339)),
		logging.String("digest", cat.Digest[:12]))
	return cat, nil
}

// parse reads one 3-line catalog stream.
func (l *Loader) parse(ctx context.Context, r io.Reader, src Source) ([]model.ElementSet, []model.Disposition, string, error) {
	hasher := sha256.New()
	scanner := bufio.NewScanner(io.TeeReader(r, hasher))

	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, "", fmt.Errorf("reading catalog: %w", err)
	}

	var (
		elems   []model.ElementSet
		skipped []model.Disposition
	)
	skip := func(name, reason string) {
		skipped = append(skipped, model.Disposition{
			Name:          strings.TrimSpace(name),
			Constellation: src.Constellation,
			Stage:         "catalog",
			Status:        model.DispositionExcluded,
			Reason:        reason,
		})
		l.log.Warn(ctx, "skipping catalog entry",
			logging.String("name", strings.TrimSpace(name)),
			logging.String("reason", reason))
	}

	for i := 0; i+2 < len(lines); {
		name := lines[i]
		line1 := lines[i+1]
		line2 := lines[i+2]

		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			// Resync on the next plausible triplet.
			i++
			continue
		}
		i += 3

		e, err := parseEntry(name, line1, line2, src.Constellation)
		if err != nil {
			skip(name, err.Error())
			continue
		}
		elems = append(elems, e)
	}

	return elems, skipped, hex.EncodeToString(hasher.Sum(nil)), nil
}

// parseEntry turns one name/line1/line2 triplet into a validated element set.
func parseEntry(name, line1, line2 string, cn model.Constellation) (model.ElementSet, error) {
	if len(line1) != lineLength || len(line2) != lineLength {
		return model.ElementSet{}, fmt.Errorf("%w: element lines must be %d characters", model.ErrValidation, lineLength)
	}
	if !checksumOK(line1) {
		return model.ElementSet{}, fmt.Errorf("%w: line 1 checksum mismatch", model.ErrValidation)
	}
	if !checksumOK(line2) {
		return model.ElementSet{}, fmt.Errorf("%w: line 2 checksum mismatch", model.ErrValidation)
	}
	if line1[2:7] != line2[2:7] {
		return model.ElementSet{}, fmt.Errorf("%w: line 1 and line 2 carry different catalog numbers", model.ErrValidation)
	}

	id64, err := strconv.ParseUint(strings.TrimSpace(line1[2:7]), 10, 32)
	if err != nil {
		return model.ElementSet{}, fmt.Errorf("%w: invalid catalog number %q", model.ErrValidation, strings.TrimSpace(line1[2:7]))
	}

	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return model.ElementSet{}, err
	}

	bstar, err := parseBStar(line1)
	if err != nil {
		return model.ElementSet{}, err
	}

	fields := []struct {
		name string
		s    string
	}{
		{"inclination", line2[8:16]},
		{"raan", line2[17:25]},
		{"eccentricity", line2[26:33]},
		{"argument of perigee", line2[34:42]},
		{"mean anomaly", line2[43:51]},
		{"mean motion", line2[52:63]},
	}
	vals := make([]float64, len(fields))
	for fi, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f.s), 64)
		if err != nil {
			return model.ElementSet{}, fmt.Errorf("%w: invalid %s %q", model.ErrValidation, f.name, strings.TrimSpace(f.s))
		}
		vals[fi] = v
	}

	if cn == "" {
		inferred, err := inferConstellation(name)
		if err != nil {
			return model.ElementSet{}, err
		}
		cn = inferred
	}

	e := model.ElementSet{
		CatalogID:       uint32(id64),
		Name:            strings.TrimSpace(name),
		Constellation:   cn,
		Epoch:           epoch,
		Line1:           line1,
		Line2:           line2,
		InclinationDeg:  vals[0],
		RAANDeg:         vals[1],
		Eccentricity:    vals[2] * 1e-7,
		ArgPerigeeDeg:   vals[3],
		MeanAnomalyDeg:  vals[4],
		MeanMotionRevPD: vals[5],
		BStar:           bstar,
	}
	if err := e.Validate(); err != nil {
		return model.ElementSet{}, err
	}
	return e, nil
}

// parseEpoch converts a TLE epoch in YYDDD.DDDDDDDD form to UTC.
// Years 00-56 map to the 2000s, 57-99 to the 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("%w: epoch field %q too short", model.ErrValidation, s)
	}

	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid epoch year %q", model.ErrValidation, s[:2])
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid epoch day %q", model.ErrValidation, s[2:])
	}
	daysInYear := 365.0
	if year%4 == 0 && (year%100 != 0 || year%400 == 0) {
		daysInYear = 366.0
	}
	if dayOfYear < 1 || dayOfYear >= daysInYear+1 {
		return time.Time{}, fmt.Errorf("%w: epoch day %v out of range for %d", model.ErrValidation, dayOfYear, year)
	}

	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	// Day numbers are 1-based: day 1.0 is January 1 00:00.
	return start.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}

// parseBStar decodes the assumed-decimal drag term, e.g. " 34469-3" means
// 0.34469e-3.
func parseBStar(line1 string) (float64, error) {
	mantissa := strings.TrimSpace(line1[53:59])
	expStr := strings.TrimSpace(line1[59:61])

	if mantissa == "" {
		return 0, nil
	}
	m, err := strconv.ParseFloat(mantissa, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid drag term mantissa %q", model.ErrValidation, mantissa)
	}
	exp := 0
	if expStr != "" {
		exp, err = strconv.Atoi(expStr)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid drag term exponent %q", model.ErrValidation, expStr)
		}
	}
	return m * 1e-5 * math.Pow(10, float64(exp)), nil
}

// checksumOK verifies the modulo-10 line checksum: digits count their value,
// minus signs count one, everything else counts zero.
func checksumOK(line string) bool {
	sum := 0
	for i := 0; i < lineLength-1; i++ {
		c := line[i]
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return line[lineLength-1] == byte('0'+sum%10)
}
