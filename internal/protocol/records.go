package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Record kinds carried in the Output field, one record per line.
const (
	KindFamilyType = "FAMILYTYPE"
	KindElement    = "ELEMENT"
	KindCategory   = "CATEGORY"
	KindWorkset    = "WORKSET"
	KindResult     = "RESULT"
	KindError      = "ERROR"
)

// fieldCount is the expected field count after the kind tag.
var fieldCount = map[string]int{
	KindFamilyType: 4,
	KindElement:    5,
	KindCategory:   2,
	KindWorkset:    3,
	KindResult:     2,
	KindError:      1,
}

// Record is one parsed line of the Output micro-protocol.
type Record struct {
	Kind   string
	Fields []string
}

func (r Record) String() string {
	return r.Kind + "|" + strings.Join(r.Fields, "|")
}

func FamilyTypeRecord(category, family, typ string, count int) Record {
	return Record{Kind: KindFamilyType, Fields: []string{category, family, typ, strconv.Itoa(count)}}
}

func ElementRecord(category, family, typ, uniqueID string, numericID int64) Record {
	return Record{Kind: KindElement, Fields: []string{
		category, family, typ, uniqueID, strconv.FormatInt(numericID, 10),
	}}
}

func CategoryRecord(name string, count int) Record {
	return Record{Kind: KindCategory, Fields: []string{name, strconv.Itoa(count)}}
}

func WorksetRecord(name, kind string, count int) Record {
	return Record{Kind: KindWorkset, Fields: []string{name, kind, strconv.Itoa(count)}}
}

func ResultRecord(ok, failed int) Record {
	return Record{Kind: KindResult, Fields: []string{strconv.Itoa(ok), strconv.Itoa(failed)}}
}

func ErrorRecord(msg string) Record {
	return Record{Kind: KindError, Fields: []string{sanitizeField(msg)}}
}

// Count returns the trailing count field for FAMILYTYPE, CATEGORY and
// WORKSET records, 0 when absent or unparseable.
func (r Record) Count() int {
	if len(r.Fields) == 0 {
		return 0
	}
	switch r.Kind {
	case KindFamilyType, KindCategory, KindWorkset:
		n, err := strconv.Atoi(r.Fields[len(r.Fields)-1])
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// ParseRecord parses one line. The line must carry a known kind tag and the
// exact field count for that kind.
func ParseRecord(line string) (Record, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Record{}, ErrEmptyRecord
	}
	parts := strings.Split(line, "|")
	kind := parts[0]
	want, ok := fieldCount[kind]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrUnknownRecordKind, kind)
	}
	// ERROR messages may themselves contain pipes; fold the tail back.
	fields := parts[1:]
	if kind == KindError && len(fields) > want {
		fields = []string{strings.Join(fields, "|")}
	}
	if len(fields) != want {
		return Record{}, fmt.Errorf("%w: %s has %d fields, want %d", ErrFieldCount, kind, len(fields), want)
	}
	return Record{Kind: kind, Fields: fields}, nil
}

// ParseRecords parses newline-separated records, skipping blank lines.
// A malformed line aborts the parse; callers treat the peer output as
// untrusted input.
func ParseRecords(output string) ([]Record, error) {
	var out []Record
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := ParseRecord(line)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// FormatRecords renders records one per line for the Output field.
func FormatRecords(records []Record) string {
	if len(records) == 0 {
		return ""
	}
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		lines = append(lines, rec.String())
	}
	return strings.Join(lines, "\n")
}

// sanitizeField keeps record fields single-line.
func sanitizeField(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.TrimSpace(s)
}
