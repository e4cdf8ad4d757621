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
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// outputDir returns the configured output directory, or "" to write
// each output next to its input.
func outputDir() string {
	return expandPath(Cfg.GetString("OutputDir"))
}

// expandPath expands environment variables in path.
func expandPath(path string) string {
	return os.ExpandEnv(path)
}

// expandStringSlice replaces environment variables in each element of s.
func expandStringSlice(s []string) []string {
	out := make([]string, len(s))
	for i, ss := range s {
		out[i] = os.ExpandEnv(ss)
	}
	return out
}

// expandFiles expands environment variables and glob patterns in the
// file arguments. Patterns within one argument are returned in sorted
// order; the order of the arguments is kept.
func expandFiles(args []string) ([]string, error) {
	var files []string
	for _, a := range expandStringSlice(args) {
		matches, err := filepath.Glob(a)
		if err != nil {
			return nil, fmt.Errorf("imostools: invalid file pattern %q: %v", a, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("imostools: no files match %q", a)
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}
	return files, nil
}
