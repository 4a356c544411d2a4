// Package loader implements the Loader external collaborator from
// spec.md §6: it reads a CSV file and yields domain.SourceRow values
// keyed by (source, row_index), without any awareness of canonical
// field names — that mapping is C1's job, not the Loader's.
package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"smartrecon/internal/domain"
	"smartrecon/internal/obslog"
	"smartrecon/internal/reconerrs"
)

// Config controls how a CSV file is read into SourceRow values.
type Config struct {
	Delimiter        rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
}

// DefaultConfig returns the loader's default CSV dialect: comma
// delimited, leading space trimmed, empty rows skipped.
func DefaultConfig() Config {
	return Config{Delimiter: ',', TrimLeadingSpace: true, SkipEmptyRows: true}
}

// Load reads filePath as a headered CSV and returns one SourceRow per
// data row, tagged with the given Role. The header row supplies
// RawColumns' keys verbatim; this function makes no assumption about
// what those column names mean.
func Load(filePath string, source domain.Role, cfg Config) ([]domain.SourceRow, error) {
	log := obslog.WithComponent("loader").WithField("file", filePath)

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, reconerrs.Schema("loader", fmt.Sprintf("file not found: %s", filePath), err)
		}
		return nil, reconerrs.Schema("loader", fmt.Sprintf("cannot open file: %s", filePath), err)
	}
	defer file.Close()

	if err := validateUTF8(file); err != nil {
		return nil, reconerrs.Schema("loader", fmt.Sprintf("invalid encoding in %s", filePath), err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, reconerrs.Schema("loader", fmt.Sprintf("cannot rewind %s", filePath), err)
	}

	reader := csv.NewReader(file)
	reader.Comma = cfg.Delimiter
	reader.TrimLeadingSpace = cfg.TrimLeadingSpace
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, reconerrs.Schema("loader", fmt.Sprintf("%s is empty", filePath), nil)
		}
		return nil, reconerrs.Schema("loader", fmt.Sprintf("cannot read header row of %s", filePath), err)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	var rows []domain.SourceRow
	rowIndex := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.WithError(err).Warn("skipping malformed CSV record")
			continue
		}
		if cfg.SkipEmptyRows && isEmpty(record) {
			continue
		}

		raw := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(record) {
				raw[h] = strings.TrimSpace(record[i])
			} else {
				raw[h] = ""
			}
		}

		rows = append(rows, domain.SourceRow{
			Source:     source,
			RowIndex:   rowIndex,
			RawColumns: raw,
		})
		rowIndex++
	}

	log.WithField("rows", len(rows)).Debug("loaded source rows")
	return rows, nil
}

func isEmpty(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func validateUTF8(r io.Reader) error {
	buf := make([]byte, 64*1024)
	n, err := r.Read(buf)
	if err != nil && err != io.EOF {
		return err
	}
	if !utf8.Valid(buf[:n]) {
		return fmt.Errorf("invalid UTF-8 encoding")
	}
	return nil
}
