package parser

// csvState is the state of the field scanner.
type csvState uint8

const (
	stateFieldStart csvState = iota
	stateInField
	stateInQuotedField
	stateQuoteInQuotedField
)

// CSVScanner splits one CSV line into fields with a finite state machine.
// It handles quoted fields, embedded delimiters and doubled quotes.
type CSVScanner struct {
	delimiter byte
}

// NewCSVScanner creates a scanner for the delimiter.
func NewCSVScanner(delimiter byte) *CSVScanner {
	return &CSVScanner{delimiter: delimiter}
}

// ScanLine returns the fields of line. Unquoted fields point into line;
// quoted fields containing doubled quotes are copied.
func (s *CSVScanner) ScanLine(line []byte) [][]byte {
	if len(line) == 0 {
		return nil
	}
	fields := make([][]byte, 0, 16)
	state := stateFieldStart
	start, end := 0, 0
	escaped := false

	for i := 0; i <= len(line); i++ {
		atEnd := i == len(line)
		var c byte
		if !atEnd {
			c = line[i]
		}
		switch state {
		case stateFieldStart:
			switch {
			case atEnd || c == s.delimiter:
				fields = append(fields, nil)
			case c == '"':
				start, escaped = i+1, false
				state = stateInQuotedField
			default:
				start = i
				state = stateInField
			}

		case stateInField:
			if atEnd || c == s.delimiter {
				fields = append(fields, line[start:i])
				state = stateFieldStart
			}

		case stateInQuotedField:
			switch {
			case atEnd:
				// unterminated quote: keep the rest of the line
				fields = append(fields, line[start:i])
			case c == '"':
				end = i
				state = stateQuoteInQuotedField
			}

		case stateQuoteInQuotedField:
			switch {
			case atEnd || c == s.delimiter:
				field := line[start:end]
				if escaped {
					field = unescapeQuotes(field)
				}
				fields = append(fields, field)
				state = stateFieldStart
			case c == '"':
				escaped = true
				state = stateInQuotedField
			default:
				// stray character after a closing quote
				state = stateInQuotedField
			}
		}
	}
	return fields
}

// unescapeQuotes replaces "" with " in a quoted field.
func unescapeQuotes(field []byte) []byte {
	out := make([]byte, 0, len(field))
	for i := 0; i < len(field); i++ {
		out = append(out, field[i])
		if field[i] == '"' && i+1 < len(field) && field[i+1] == '"' {
			i++
		}
	}
	return out
}
