package export

import "fmt"

// Dataset is a rectangular table ready for rendering. Rows are positional and must
// have one value per header.
type Dataset struct {
	Title   string
	Headers []string
	Rows    [][]string
}

func (d Dataset) validate(format string) error {
	if len(d.Headers) == 0 {
		return fmt.Errorf("%s requires at least one header", format)
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Headers) {
			return fmt.Errorf("%s row %d has %d values, want %d", format, i+1, len(row), len(d.Headers))
		}
	}
	return nil
}
