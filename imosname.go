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

package imostools

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// FileName holds the fields of an IMOS file name such as
//
//	IMOS_ABOS-SOTS_CPT_20180801T000000Z_SOFS_FV01_SOFS-7.5-2018-SBE37SMP-30m_END-20190327T040000Z_C-20190331T085823Z.nc
type FileName struct {
	Facility string
	DataCode string
	Start    string
	Platform string
	Version  string
	Product  string
	End      string
	Created  string
}

// ParseFileName splits the base name of path into its IMOS fields.
// It returns false if the name does not follow the IMOS convention.
func ParseFileName(path string) (FileName, bool) {
	base := strings.TrimSuffix(filepath.Base(path), ".nc")
	parts := strings.Split(base, "_")
	if len(parts) < 7 || parts[0] != "IMOS" {
		return FileName{}, false
	}
	f := FileName{
		Facility: parts[1],
		DataCode: parts[2],
		Start:    parts[3],
		Platform: parts[4],
		Version:  parts[5],
		Product:  parts[6],
	}
	for _, p := range parts[7:] {
		switch {
		case strings.HasPrefix(p, "END-"):
			f.End = strings.TrimPrefix(p, "END-")
		case strings.HasPrefix(p, "C-"):
			f.Created = strings.TrimPrefix(p, "C-")
		default:
			f.Product += "_" + p
		}
	}
	return f, true
}

// String formats f as a file name.
func (f FileName) String() string {
	parts := []string{"IMOS", f.Facility, f.DataCode, f.Start, f.Platform, f.Version, f.Product}
	if f.End != "" {
		parts = append(parts, "END-"+f.End)
	}
	if f.Created != "" {
		parts = append(parts, "C-"+f.Created)
	}
	return strings.Join(parts, "_") + ".nc"
}

// fileNameFor returns the IMOS fields of path, or fields filled from
// the global attributes of a file that does not follow the convention.
func fileNameFor(path string, attrs map[string]string) FileName {
	if f, ok := ParseFileName(path); ok {
		return f
	}
	get := func(k, def string) string {
		if v := attrs[k]; v != "" {
			return strings.Replace(v, "_", "-", -1)
		}
		return def
	}
	return FileName{
		Facility: get("institution", "UNKNOWN"),
		DataCode: "X",
		Platform: get("platform_code", "UNKNOWN"),
		Version:  "FV00",
		Product:  strings.TrimSuffix(strings.Replace(filepath.Base(path), "_", "-", -1), ".nc"),
	}
}

// withPressure returns the name of a copy of f holding interpolated
// pressure: Z is added to the data code, even if it already has one,
// so the copy never replaces its input.
func (f FileName) withPressure() FileName {
	f.DataCode += "Z"
	return f
}

// binnedName returns the name of the binned product of an aggregate.
func binnedName(aggregate string) string {
	base := filepath.Base(aggregate)
	name := strings.Replace(base, "Aggregate", "binned", -1)
	if name == base {
		name = strings.TrimSuffix(base, ".nc") + "-binned.nc"
	}
	return name
}

// pressureName returns the name of the copy of path holding
// interpolated pressure.
func pressureName(path string) string {
	if f, ok := ParseFileName(path); ok {
		return f.withPressure().String()
	}
	return strings.TrimSuffix(filepath.Base(path), ".nc") + "-pres.nc"
}

// resampledName returns the name of the resampled product of path,
// carrying the sample interval and method.
func resampledName(path string, hours float64, method string, start, end, now time.Time) string {
	tag := fmt.Sprintf("%gh-%s", hours, method)
	f, ok := ParseFileName(path)
	if !ok {
		return strings.TrimSuffix(filepath.Base(path), ".nc") + "-" + tag + ".nc"
	}
	f.Version = "FV02"
	f.Product += "-" + tag
	f.Start = formatName(start)
	f.End = formatName(end)
	f.Created = formatName(now)
	return f.String()
}
