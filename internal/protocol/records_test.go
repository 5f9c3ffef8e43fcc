package protocol

import (
	"errors"
	"testing"

	"github.com/hostbridge/bridgectl/internal/testutil/testlog"
)

func TestRecordRoundTrip(t *testing.T) {
	testlog.Start(t)

	records := []Record{
		FamilyTypeRecord("Doors", "Single-Flush", "0915 x 2134mm", 3),
		ElementRecord("Doors", "Single-Flush", "0915 x 2134mm", "abc-123", 44817),
		CategoryRecord("Walls", 12),
		WorksetRecord("Workset1", "UserWorkset", 7),
		ResultRecord(5, 2),
		ErrorRecord("document not open"),
	}

	parsed, err := ParseRecords(FormatRecords(records))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(parsed) != len(records) {
		t.Fatalf("expected %d records, got %d", len(records), len(parsed))
	}
	for i := range records {
		if parsed[i].String() != records[i].String() {
			t.Fatalf("record %d mismatch: %q != %q", i, parsed[i], records[i])
		}
	}
}

func TestParseRecordRejectsBadLines(t *testing.T) {
	testlog.Start(t)

	tests := []struct {
		name    string
		line    string
		wantErr error
	}{
		{name: "unknown kind", line: "WIDGET|a|b", wantErr: ErrUnknownRecordKind},
		{name: "too few fields", line: "FAMILYTYPE|Doors|Single-Flush", wantErr: ErrFieldCount},
		{name: "too many fields", line: "CATEGORY|Walls|1|extra", wantErr: ErrFieldCount},
		{name: "blank", line: "   ", wantErr: ErrEmptyRecord},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseRecord(tc.line); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestErrorRecordToleratesPipesInMessage(t *testing.T) {
	testlog.Start(t)

	rec, err := ParseRecord("ERROR|query failed: bad filter |a|b")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rec.Fields[0] != "query failed: bad filter |a|b" {
		t.Fatalf("message not rejoined: %q", rec.Fields[0])
	}
}

func TestRecordCount(t *testing.T) {
	testlog.Start(t)

	if got := FamilyTypeRecord("c", "f", "t", 9).Count(); got != 9 {
		t.Fatalf("familytype count = %d", got)
	}
	if got := WorksetRecord("w", "k", 4).Count(); got != 4 {
		t.Fatalf("workset count = %d", got)
	}
	if got := ErrorRecord("boom").Count(); got != 0 {
		t.Fatalf("error record count = %d", got)
	}
}

func TestParseRecordsSkipsBlankLines(t *testing.T) {
	testlog.Start(t)

	out, err := ParseRecords("\nCATEGORY|Walls|3\n\nCATEGORY|Doors|2\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}
}
