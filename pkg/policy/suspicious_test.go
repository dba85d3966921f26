package policy

import "testing"

func TestPatternScanner_Defaults(t *testing.T) {
	scanner, err := NewPatternScanner(nil, 0, nil)
	if err != nil {
		t.Fatalf("NewPatternScanner failed: %v", err)
	}

	hostile := []string{
		"/files/../../etc/passwd",
		"/search?q=<script>alert(1)</script>",
		"/items?id=1 UNION SELECT password FROM users",
		"/run?cmd=;bash -c id",
		"/download?f=%2e%2e%2fsecret",
		"/page?q=1 OR 1=1",
	}
	for _, path := range hostile {
		if _, matched := scanner.Match(path); !matched {
			t.Errorf("expected %q to match a suspicious pattern", path)
		}
	}

	clean := []string{
		"/api/users/42",
		"/search?q=golang+scripting+tutorial",
		"/static/app.js",
	}
	for _, path := range clean {
		if pattern, matched := scanner.Match(path); matched {
			t.Errorf("expected %q to be clean, matched %q", path, pattern)
		}
	}

	if got, want := scanner.Multiplier(), 1.0/DefaultPatternPenalty; got != want {
		t.Errorf("expected multiplier %v, got %v", want, got)
	}
}

func TestPatternScanner_CustomPatterns(t *testing.T) {
	scanner, err := NewPatternScanner([]string{`^/admin/`}, 2, nil)
	if err != nil {
		t.Fatalf("NewPatternScanner failed: %v", err)
	}
	if _, matched := scanner.Match("/admin/users"); !matched {
		t.Error("expected custom pattern to match")
	}
	// Custom patterns replace the defaults entirely.
	if _, matched := scanner.Match("/files/../../etc/passwd"); matched {
		t.Error("expected default patterns to be replaced")
	}
	if scanner.Multiplier() != 0.5 {
		t.Errorf("expected multiplier 0.5, got %v", scanner.Multiplier())
	}
}

func TestPatternScanner_Invalid(t *testing.T) {
	if _, err := NewPatternScanner([]string{`(unclosed`}, 0, nil); err == nil {
		t.Error("expected error for invalid regex")
	}
	if _, err := NewPatternScanner(nil, 0.5, nil); err == nil {
		t.Error("expected error for penalty below 1")
	}
}
