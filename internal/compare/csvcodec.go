package compare

import (
	"encoding/csv"
	"io"

	"github.com/outpostml/dvc/internal/oxerr"
)

// CSVCodec is the only TabularCodec this module ships; Parquet and other
// formats are a collaborator's concern (spec §1).
type CSVCodec struct{}

func (CSVCodec) Decode(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, oxerr.New(oxerr.KindInvalidFileType, "CSVCodec.Decode", "", err)
	}
	if len(records) == 0 {
		return &Frame{}, nil
	}
	return &Frame{Columns: records[0], Rows: records[1:]}, nil
}
