package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/blackwell-systems/pkglens/internal/manager"
)

// CSVHeader is the fixed column order of package exports.
var CSVHeader = []string{"manager", "name", "version", "size_bytes", "install_path"}

// WriteCSV writes the package set as CSV with a header row. Rows are
// ordered by (manager, name) so repeated exports of the same set are
// byte-identical.
func WriteCSV(w io.Writer, records []manager.PackageRecord) error {
	sorted := make([]manager.PackageRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Manager != sorted[j].Manager {
			return sorted[i].Manager < sorted[j].Manager
		}
		return sorted[i].Name < sorted[j].Name
	})

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range sorted {
		row := []string{
			string(r.Manager),
			r.Name,
			r.Version,
			strconv.FormatInt(r.SizeBytes, 10),
			r.InstallPath,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row for %s: %w", r.Identity().Key(), err)
		}
	}
	cw.Flush()
	return cw.Error()
}
