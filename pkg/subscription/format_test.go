package subscription

import "testing"

func mustCompile(t *testing.T, template string) *Format {
	t.Helper()
	f, err := Compile(template)
	if err != nil {
		t.Fatalf("Compile(%q): %v", template, err)
	}
	return f
}

func TestBuildDefaultTemplate(t *testing.T) {
	f := mustCompile(t, DefaultTemplate)
	got := f.Build(Fields{Interface: "uagv", MajorVersion: "2", Manufacturer: "acme", SerialNumber: "car-001", Topic: "state"})
	want := "uagv/v2/acme/car-001/state"
	if got != want {
		t.Errorf("Build = %q, want %q", got, want)
	}
}

func TestBuildWildcard(t *testing.T) {
	f := mustCompile(t, DefaultTemplate)
	got := f.BuildWildcard(Fields{Interface: "uagv", MajorVersion: "2", Topic: "state"})
	want := "uagv/v2/+/+/state"
	if got != want {
		t.Errorf("BuildWildcard = %q, want %q", got, want)
	}
}

func TestParseRoundTrip(t *testing.T) {
	f := mustCompile(t, DefaultTemplate)
	topic := f.Build(Fields{Interface: "uagv", MajorVersion: "2", Manufacturer: "acme", SerialNumber: "car-001", Topic: "order"})

	fields, ok := f.Parse(topic)
	if !ok {
		t.Fatalf("Parse(%q) failed", topic)
	}
	if fields.Manufacturer != "acme" || fields.SerialNumber != "car-001" || fields.Topic != "order" {
		t.Errorf("Parse = %+v", fields)
	}
}

func TestParseRejectsWrongLevelCount(t *testing.T) {
	f := mustCompile(t, DefaultTemplate)
	if _, ok := f.Parse("too/few/levels"); ok {
		t.Error("expected Parse to reject mismatched level count")
	}
}

func TestCompileRejectsDuplicatePlaceholder(t *testing.T) {
	if _, err := Compile("{topic}/{topic}"); err == nil {
		t.Error("expected error for duplicate placeholder")
	}
}

func TestCompileRejectsUnknownPlaceholder(t *testing.T) {
	if _, err := Compile("{bogus}/{topic}"); err == nil {
		t.Error("expected error for unknown placeholder")
	}
}

func TestCheckLengthRejectsOversizedTopic(t *testing.T) {
	big := make([]byte, maxTopicBytes+1)
	for i := range big {
		big[i] = 'a'
	}
	if err := CheckLength(string(big)); err != ErrInvalidTopic {
		t.Errorf("CheckLength = %v, want ErrInvalidTopic", err)
	}
}

func TestCheckLengthAcceptsExactLimit(t *testing.T) {
	ok := make([]byte, maxTopicBytes)
	if err := CheckLength(string(ok)); err != nil {
		t.Errorf("CheckLength at exact limit: %v", err)
	}
}
