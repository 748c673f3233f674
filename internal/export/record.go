package export

import (
	"encoding/json"
	"io"

	"github.com/recordvault/recordvault/internal/instagram"
)

// RecordJSON writes a parsed record as indented JSON. The layout variant
// is written in its string form, matching how it is stored and logged.
func RecordJSON(w io.Writer, rec *instagram.Record) error {
	out := struct {
		Layout string `json:"layout"`
		*instagram.Record
	}{rec.Layout.String(), rec}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(&out)
}
