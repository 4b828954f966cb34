package catalog

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/dynpool/model"
)

const starlinkTLE = `STARLINK-1007
1 44713U 19074A   25060.25000000  .00002182  00000-0  34469-3 0  9992
2 44713  53.0541 175.0536 0001341  85.6048 274.5052 15.06403844296373
STARLINK-1130
1 44944U 20001M   25060.12500000  .00001411  00000-0  22791-3 0  9989
2 44944  53.0538 195.4721 0001260  92.3345 267.7812 15.06391247285416
`

const onewebTLE = `ONEWEB-0012
1 44057U 19010A   25060.10416667  .00000094  00000-0  19669-3 0  9970
2 44057  87.8942  15.1234 0001912  92.1001 268.0512 13.15986223289702
ONEWEB-0102
1 45132U 20008F   25059.95833333  .00000087  00000-0  18233-3 0  9965
2 45132  87.8951  45.6712 0002013  88.4432 271.6901 13.15974410243117
`

// Same satellite as starlinkTLE's 44713 but with an older epoch.
const staleDuplicateTLE = `STARLINK-1007
1 44713U 19074A   25058.50000000  .00002201  00000-0  34470-3 0  9957
2 44713  53.0540 174.2210 0001339  86.1200 273.9904 15.06401102296100
`

func writeCatalog(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadSources_TwoConstellations(t *testing.T) {
	l := NewLoader(nil)
	cat, err := l.LoadSources(context.Background(),
		Source{Path: writeCatalog(t, "starlink.tle", starlinkTLE), Constellation: model.ConstellationStarlink},
		Source{Path: writeCatalog(t, "oneweb.tle", onewebTLE), Constellation: model.ConstellationOneWeb},
	)
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}

	if len(cat.Elements) != 4 {
		t.Fatalf("Elements = %d, want 4", len(cat.Elements))
	}
	if got := len(cat.ByConstellation(model.ConstellationStarlink)); got != 2 {
		t.Errorf("starlink count = %d, want 2", got)
	}
	if got := len(cat.ByConstellation(model.ConstellationOneWeb)); got != 2 {
		t.Errorf("oneweb count = %d, want 2", got)
	}

	// Primary constellation's newest epoch anchors the run:
	// 25060.25 = 2025 day 60 at 06:00 UTC = March 1.
	want := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	if !cat.Epoch.Equal(want) {
		t.Errorf("Epoch = %v, want %v", cat.Epoch, want)
	}
	if cat.Digest == "" {
		t.Errorf("catalog digest is empty")
	}

	first := cat.Elements[0]
	if first.CatalogID != 44713 || first.Name != "STARLINK-1007" {
		t.Fatalf("first element = %+v", first)
	}
	if math.Abs(first.InclinationDeg-53.0541) > 1e-9 {
		t.Errorf("inclination = %v", first.InclinationDeg)
	}
	if math.Abs(first.Eccentricity-0.0001341) > 1e-12 {
		t.Errorf("eccentricity = %v", first.Eccentricity)
	}
	if math.Abs(first.MeanMotionRevPD-15.06403844) > 1e-9 {
		t.Errorf("mean motion = %v", first.MeanMotionRevPD)
	}
	if math.Abs(first.BStar-0.34469e-3) > 1e-12 {
		t.Errorf("bstar = %v", first.BStar)
	}
}

func TestLoadSources_DuplicateKeepsNewerEpoch(t *testing.T) {
	l := NewLoader(nil)
	cat, err := l.LoadSources(context.Background(),
		Source{Path: writeCatalog(t, "starlink.tle", starlinkTLE + staleDuplicateTLE), Constellation: model.ConstellationStarlink},
	)
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}

	if len(cat.Elements) != 2 {
		t.Fatalf("Elements = %d, want 2 after dedupe", len(cat.Elements))
	}
	var kept *model.ElementSet
	for i := range cat.Elements {
		if cat.Elements[i].CatalogID == 44713 {
			kept = &cat.Elements[i]
		}
	}
	if kept == nil {
		t.Fatalf("satellite 44713 missing after dedupe")
	}
	wantEpoch := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	if !kept.Epoch.Equal(wantEpoch) {
		t.Fatalf("kept epoch = %v, want newer %v", kept.Epoch, wantEpoch)
	}

	foundSuperseded := false
	for _, d := range cat.Skipped {
		if d.CatalogID == 44713 && d.Status == model.DispositionExcluded {
			foundSuperseded = true
		}
	}
	if !foundSuperseded {
		t.Fatalf("superseded duplicate not recorded: %+v", cat.Skipped)
	}
}

func TestLoadSources_ChecksumRejected(t *testing.T) {
	// Corrupt one digit of line 2 without fixing the checksum.
	bad := `STARLINK-1007
1 44713U 19074A   25060.25000000  .00002182  00000-0  34469-3 0  9992
2 44713  53.0541 175.0536 0001341  85.6048 274.5052 15.96403844296373
` + starlinkTLE

	l := NewLoader(nil)
	cat, err := l.LoadSources(context.Background(),
		Source{Path: writeCatalog(t, "bad.tle", bad), Constellation: model.ConstellationStarlink},
	)
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	if len(cat.Elements) != 2 {
		t.Fatalf("Elements = %d, want 2 valid", len(cat.Elements))
	}
	if len(cat.Skipped) == 0 {
		t.Fatalf("corrupted entry not recorded as skipped")
	}
}

func TestLoadSources_InfersConstellationFromName(t *testing.T) {
	l := NewLoader(nil)
	cat, err := l.LoadSources(context.Background(),
		Source{Path: writeCatalog(t, "mixed.tle", starlinkTLE + onewebTLE)},
	)
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}

	if got := len(cat.ByConstellation(model.ConstellationStarlink)); got != 2 {
		t.Errorf("inferred starlink count = %d, want 2", got)
	}
	if got := len(cat.ByConstellation(model.ConstellationOneWeb)); got != 2 {
		t.Errorf("inferred oneweb count = %d, want 2", got)
	}
	// With no declared primary, the newest epoch overall anchors the run.
	want := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	if !cat.Epoch.Equal(want) {
		t.Errorf("Epoch = %v, want %v", cat.Epoch, want)
	}
}

func TestLoadSources_EmptyConstellationFails(t *testing.T) {
	l := NewLoader(nil)
	_, err := l.LoadSources(context.Background(),
		Source{Path: writeCatalog(t, "starlink.tle", starlinkTLE), Constellation: model.ConstellationStarlink},
		Source{Path: writeCatalog(t, "empty.tle", "JUNK\nmore junk\n"), Constellation: model.ConstellationOneWeb},
	)
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error for empty constellation, got %v", err)
	}
}

func TestParseEpoch(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"25060.25000000", time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)},
		{"98001.00000000", time.Date(1998, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"57001.50000000", time.Date(1957, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"56366.00000000", time.Date(2056, 12, 31, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := parseEpoch(tc.in)
		if err != nil {
			t.Fatalf("parseEpoch(%q): %v", tc.in, err)
		}
		if !got.Equal(tc.want) {
			t.Errorf("parseEpoch(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	if _, err := parseEpoch("25366.00000000"); err == nil {
		t.Errorf("expected error for day 366 of a non-leap year")
	}
	if _, err := parseEpoch("bad"); !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestParseBStar(t *testing.T) {
	line1 := "1 44713U 19074A   25060.25000000  .00002182  00000-0  34469-3 0  9992"
	got, err := parseBStar(line1)
	if err != nil {
		t.Fatalf("parseBStar: %v", err)
	}
	if math.Abs(got-0.34469e-3) > 1e-12 {
		t.Fatalf("bstar = %v, want 0.34469e-3", got)
	}
}

func TestChecksumOK(t *testing.T) {
	good := "1 44713U 19074A   25060.25000000  .00002182  00000-0  34469-3 0  9992"
	if !checksumOK(good) {
		t.Fatalf("valid checksum rejected")
	}
	bad := good[:68] + "5"
	if checksumOK(bad) {
		t.Fatalf("invalid checksum accepted")
	}
}
