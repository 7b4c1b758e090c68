package provider

import (
	"errors"
	"testing"
)

func TestBuiltinURLs(t *testing.T) {
	tests := []struct {
		name   string
		locale string
		x, y   uint32
		z      uint32
		want   string
	}{
		{OSM, "", 1, 2, 3, "https://tile.openstreetmap.org/3/1/2.png"},
		{Google, "ru", 1, 2, 3, "https://mt0.google.com/vt/lyrs=m&hl=ru&x=1&y=2&z=3"},
		{Yandex, "en", 5, 6, 7, "https://core-renderer-tiles.maps.yandex.net/tiles?l=map&x=5&y=6&z=7&scale=1&lang=en"},
		{Bing, "ru", 1, 0, 2, "https://ecn.t0.tiles.virtualearth.net/tiles/r01.png?g=1&mkt=ru"},
		{Esri, "", 1, 2, 3, "https://server.arcgisonline.com/ArcGIS/rest/services/World_Street_Map/MapServer/tile/3/2/1"},
		{TwoGIS, "ru", 1, 2, 3, "https://tile2.maps.2gis.com/tiles?x=1&y=2&z=3&v=1&lang=ru"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Create(tt.name, tt.locale)
			if err != nil {
				t.Fatalf("Create(%q) error = %v", tt.name, err)
			}
			if p.Name() != tt.name {
				t.Errorf("Name() = %q", p.Name())
			}
			if got := p.BuildURL(tt.x, tt.y, tt.z); got != tt.want {
				t.Errorf("BuildURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCreateUnsupported(t *testing.T) {
	_, err := Create("nope", "ru")
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("err = %v, want ErrUnsupportedProvider", err)
	}
	var upe *UnsupportedProviderError
	if !errors.As(err, &upe) || upe.Name != "nope" {
		t.Errorf("errors.As = %v, %+v", err, upe)
	}
}

func TestRegistryIndependentRegistration(t *testing.T) {
	r := NewRegistry()
	r.Register("local", TemplateFactory("local", "http://localhost/{z}/{x}/{y}?q={quadkey}"))

	p, err := r.Create("local", "de")
	if err != nil {
		t.Fatal(err)
	}
	if got := p.BuildURL(1, 1, 1); got != "http://localhost/1/1/1?q=3" {
		t.Errorf("BuildURL = %q", got)
	}
	if _, err := r.Create(OSM, ""); err == nil {
		t.Error("fresh registry must not contain built-ins")
	}
	if names := r.Names(); len(names) != 1 || names[0] != "local" {
		t.Errorf("Names() = %v", names)
	}
}

func TestRegisterTwicePanics(t *testing.T) {
	r := NewRegistry()
	r.Register("a", TemplateFactory("a", "x"))
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	r.Register("a", TemplateFactory("a", "y"))
}

func TestDefaultNames(t *testing.T) {
	names := Default().Names()
	want := []string{TwoGIS, Bing, Esri, Google, OSM, Yandex}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
