package capture

import (
	"testing"
	"time"

	"github.com/justapithecus/glean/jobref"
	"github.com/justapithecus/glean/types"
)

func TestObjectKey(t *testing.T) {
	at := time.Unix(1690000000, 0)
	tests := []struct {
		prefix string
		target string
		want   string
	}{
		{"", "example.com", "screenshots/example.com/1690000000-example_com.png"},
		{"screenshots/", "example.com/about/team", "screenshots/example.com/1690000000-example_com-about-team.png"},
		{"shots", "sub.example.org/a.html", "shots/sub.example.org/1690000000-sub_example_org-a_html.png"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			if got := ObjectKey(tt.prefix, tt.target, at); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestObjectKey_ParsesBack(t *testing.T) {
	key := ObjectKey("", "example.com/pricing", time.Unix(1700000123, 0))

	ref, err := jobref.MustParser(jobref.Grammar{}).Parse("https://s3.amazonaws.com/shots/" + key)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ref.Domain != "example.com" || ref.CapturedAt != 1700000123 {
		t.Errorf("ref = %+v", ref)
	}
}

func TestObjectKey_QueryCharactersRoundTrip(t *testing.T) {
	p := jobref.MustParser(jobref.Grammar{})
	for _, target := range []string{
		"example.com/search?q=1",
		"example.com/docs#install",
		"example.com/100%/off",
		"example.com/a b",
	} {
		t.Run(target, func(t *testing.T) {
			key := ObjectKey("", target, time.Unix(1700000000, 0))

			ref, err := p.Parse(types.Location("shots", key))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if ref.Bucket != "shots" || ref.Key != key {
				t.Errorf("parsed %s/%s, want shots/%s", ref.Bucket, ref.Key, key)
			}
			if ref.Domain != "example.com" || ref.CapturedAt != 1700000000 {
				t.Errorf("ref = %+v", ref)
			}
		})
	}
}

func TestDomain(t *testing.T) {
	if got := Domain("example.com/a/b"); got != "example.com" {
		t.Errorf("got %q", got)
	}
	if got := Domain("example.com"); got != "example.com" {
		t.Errorf("got %q", got)
	}
}
