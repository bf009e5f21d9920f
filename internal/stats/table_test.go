package stats

import "testing"

func TestFormatTableAlignsColumns(t *testing.T) {
	headers := []string{"Key", "Count", "Share"}
	rows := [][]string{
		{"ppTime_[0,9]", "12", "97.5%"},
		{"pp", "3", "8.0%"},
	}
	rightAlign := map[int]bool{1: true, 2: true}

	lines := formatTable(headers, rows, rightAlign)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	if lines[0] != "Key          Count Share" {
		t.Fatalf("unexpected header line: %q", lines[0])
	}
	if lines[1] != "------------ ----- -----" {
		t.Fatalf("unexpected rule line: %q", lines[1])
	}
	if lines[2] != "ppTime_[0,9]    12 97.5%" {
		t.Fatalf("unexpected row line: %q", lines[2])
	}
	if lines[3] != "pp               3  8.0%" {
		t.Fatalf("unexpected row line: %q", lines[3])
	}
}

func TestFormatTableEmpty(t *testing.T) {
	if lines := formatTable(nil, nil, nil); lines != nil {
		t.Fatalf("expected nil for empty table, got %v", lines)
	}
}
