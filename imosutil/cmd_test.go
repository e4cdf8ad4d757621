/*
Copyright © 2020 the imos-tools authors.
This file is part of imos-tools.

imos-tools is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

imos-tools is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with imos-tools.  If not, see <http://www.gnu.org/licenses/>.
*/

package imosutil

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/petejan/imos-tools-sub000/ncfile"
)

// instrument writes a single-instrument file sampled hourly from
// 1950-01-11T00:00Z. PRES is written if pres is not nil.
func instrument(t *testing.T, dir, name string, depth float64, temp, pres []float64) string {
	t.Helper()
	n := len(temp)
	ds := &ncfile.Dataset{Dims: []ncfile.Dim{{Name: "TIME", Len: n}}}
	ds.Attrs.Set("deployment_code", "SOFS-9-2020")
	ds.Attrs.Set("instrument", "SBE37SM")
	ds.Attrs.Set("instrument_serial_number", name)
	ds.Attrs.Set("time_deployment_start", "1950-01-11T00:00:00Z")
	ds.Attrs.Set("time_deployment_end", "1950-01-11T02:00:00Z")

	tv := ncfile.NewVariable("TIME", ncfile.Double, []string{"TIME"}, []int{n})
	for i := range tv.Data.Elements {
		tv.Data.Elements[i] = 10 + float64(i)/24
	}
	tv.Attrs.Set("standard_name", "time")
	tv.Attrs.Set("units", "days since 1950-01-01 00:00:00 UTC")
	ds.AddVar(tv)

	d := ncfile.NewVariable("NOMINAL_DEPTH", ncfile.Double, nil, nil)
	d.Data.Elements[0] = depth
	d.Attrs.Set("standard_name", "depth")
	ds.AddVar(d)

	v := ncfile.NewVariable("TEMP", ncfile.Float, []string{"TIME"}, []int{n})
	copy(v.Data.Elements, temp)
	ds.AddVar(v)
	if pres != nil {
		p := ncfile.NewVariable("PRES", ncfile.Float, []string{"TIME"}, []int{n})
		copy(p.Data.Elements, pres)
		p.Attrs.Set("units", "dbar")
		ds.AddVar(p)
	}

	path := filepath.Join(dir, "IMOS_ABOS-SOTS_T_19500111T000000Z_SOFS_FV01_SOFS-9-2020-SBE37SM-"+name+
		"_END-19500111T020000Z_C-20200101T000000Z.nc")
	if err := ncfile.Write(path, ds); err != nil {
		t.Fatal(err)
	}
	return path
}

// mooring writes a pressure sensor at 50 m and a thermometer at 120 m.
func mooring(t *testing.T) (dir, sensor, target string) {
	dir = t.TempDir()
	sensor = instrument(t, dir, "50m", 50, []float64{5, 6, 7}, []float64{50, 50, 50})
	target = instrument(t, dir, "120m", 120, []float64{3, 4, 5}, nil)
	return dir, sensor, target
}

// run executes the command line and returns the lines it printed.
func run(t *testing.T, args ...string) []string {
	t.Helper()
	buf := new(bytes.Buffer)
	Root.SetOutput(buf)
	Root.SetArgs(args)
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	return strings.Fields(buf.String())
}

func values(t *testing.T, path, name string) []float64 {
	t.Helper()
	ds, err := ncfile.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	v, err := ds.Var(name)
	if err != nil {
		t.Fatal(err)
	}
	return v.Values()
}

func TestVersion(t *testing.T) {
	out := run(t, "version")
	if len(out) != 2 || out[0] != "imos-tools" || !strings.HasPrefix(out[1], "v") {
		t.Errorf("version printed %v", out)
	}
}

func TestConfigFile(t *testing.T) {
	dir, _, _ := mooring(t)
	cfg := filepath.Join(dir, "config.toml")
	f, err := os.Create(cfg)
	if err != nil {
		t.Fatal(err)
	}
	err = toml.NewEncoder(f).Encode(map[string]interface{}{
		"OutputDir": filepath.Join(dir, "out"),
		"LogLevel":  "warning",
		"Aggregate": map[string]interface{}{
			"Variables": []string{"TEMP", "PRES"},
		},
	})
	f.Close()
	if err != nil {
		t.Fatal(err)
	}

	Cfg.Set("config", cfg)
	defer Cfg.Set("config", "")
	out := run(t, "aggregate", filepath.Join(dir, "IMOS_*.nc"))
	if len(out) != 1 {
		t.Fatalf("aggregate printed %v", out)
	}
	if filepath.Dir(out[0]) != filepath.Join(dir, "out") {
		t.Errorf("output directory %s", filepath.Dir(out[0]))
	}
	if !strings.Contains(out[0], "-Aggregate-TEMP-PRES_") {
		t.Errorf("output name %s", filepath.Base(out[0]))
	}
	// Glob results are sorted, so the 120 m file comes first.
	if got := values(t, out[0], "NOMINAL_DEPTH"); got[0] != 120 || got[1] != 50 {
		t.Errorf("NOMINAL_DEPTH = %v", got)
	}
	if got := values(t, out[0], "TIME"); len(got) != 6 {
		t.Errorf("aggregate has %d samples, want 6", len(got))
	}
}

func TestPipeline(t *testing.T) {
	dir, sensor, target := mooring(t)
	outDir := filepath.Join(dir, "out")
	Cfg.Set("config", "")
	Cfg.Set("OutputDir", outDir)
	Cfg.Set("LogLevel", "warning")
	Cfg.Set("Aggregate.Variables", []string{"TEMP", "PRES"})
	Cfg.Set("Aggregate.DeploymentWindow", false)

	agg := run(t, "aggregate", sensor, target)
	if len(agg) != 1 {
		t.Fatalf("aggregate printed %v", agg)
	}

	t.Run("pressure", func(t *testing.T) {
		Cfg.Set("Pressure.Aggregate", agg[0])
		out := run(t, "pressure", target)
		if len(out) != 1 {
			t.Fatalf("pressure printed %v", out)
		}
		if !strings.Contains(filepath.Base(out[0]), "_TZ_") {
			t.Errorf("output name %s", filepath.Base(out[0]))
		}
		// The column below the deepest sensor continues at 1 dbar per metre.
		for i, p := range values(t, out[0], "PRES") {
			if math.Abs(p-120) > 1e-4 {
				t.Errorf("PRES[%d] = %g, want 120", i, p)
			}
		}
	})

	t.Run("missing aggregate", func(t *testing.T) {
		Cfg.Set("Pressure.Aggregate", "")
		Root.SetOutput(new(bytes.Buffer))
		Root.SetArgs([]string{"pressure", target})
		if err := Root.Execute(); err == nil {
			t.Error("expected an error without Pressure.Aggregate")
		}
	})

	t.Run("bin", func(t *testing.T) {
		Cfg.Set("Bin.Variable", "TEMP")
		Cfg.Set("Bin.TimeBinHours", 1.0)
		Cfg.Set("Bin.PresBin", 10.0)
		Cfg.Set("Bin.QCThreshold", 2)
		Cfg.Set("Bin.NominalDepth", true)
		out := run(t, "bin", agg[0])
		if len(out) != 1 {
			t.Fatalf("bin printed %v", out)
		}
		if n := len(values(t, out[0], "TIME")); n != 3 {
			t.Errorf("%d time bins, want 3", n)
		}
		bins := values(t, out[0], "BIN")
		if len(bins) != 8 || bins[0] != 50 || bins[7] != 120 {
			t.Fatalf("BIN = %v", bins)
		}
		temp := values(t, out[0], "TEMP")
		if temp[0] != 5 || temp[7] != 3 || temp[2*8] != 7 || temp[2*8+7] != 5 {
			t.Errorf("TEMP = %v", temp)
		}
	})

	t.Run("resample", func(t *testing.T) {
		Cfg.Set("Resample.SampleHours", 1.0)
		Cfg.Set("Resample.Method", "mean")
		Cfg.Set("Resample.QCThreshold", 2)
		Cfg.Set("Resample.Variables", []string{})
		out := run(t, "resample", sensor)
		if len(out) != 1 {
			t.Fatalf("resample printed %v", out)
		}
		if !strings.Contains(filepath.Base(out[0]), "-1h-mean_") {
			t.Errorf("output name %s", filepath.Base(out[0]))
		}
		temp := values(t, out[0], "TEMP")
		want := []float64{5, 6, 7}
		if len(temp) != len(want) {
			t.Fatalf("TEMP = %v, want %v", temp, want)
		}
		for i := range want {
			if math.Abs(temp[i]-want[i]) > 1e-5 {
				t.Errorf("TEMP[%d] = %g, want %g", i, temp[i], want[i])
			}
		}
	})
}

func TestExpandFiles(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.nc", "a.nc", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	os.Setenv("IMOS_TEST_DIR", dir)
	defer os.Unsetenv("IMOS_TEST_DIR")

	files, err := expandFiles([]string{"$IMOS_TEST_DIR/c.txt", "$IMOS_TEST_DIR/*.nc"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "c.txt"), filepath.Join(dir, "a.nc"), filepath.Join(dir, "b.nc")}
	if strings.Join(files, ",") != strings.Join(want, ",") {
		t.Errorf("have %v, want %v", files, want)
	}
	if _, err := expandFiles([]string{filepath.Join(dir, "*.cdf")}); err == nil {
		t.Error("expected an error for a pattern matching nothing")
	}
}
