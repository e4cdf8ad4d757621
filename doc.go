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

/*
Package imostools processes the netCDF files of IMOS deep water mooring
deployments. Each instrument on a mooring is recorded in its own file.

Aggregate merges the per-instrument files into a single file whose
samples are sorted by time, with an index linking each sample to the
instrument that recorded it. InterpolatePressure fills in pressure for
instruments that have no pressure sensor, using the pressure sensors
above and below them on the mooring. Bin grids an aggregate variable
onto regular time and pressure axes, and Resample puts a single
instrument file onto a regular time axis.

Each operation reads its inputs in full and writes a new file; inputs are
never modified.
*/
package imostools
