package provider

const (
	OSM    = "osm"
	Google = "google"
	Yandex = "yandex"
	Bing   = "bing"
	Esri   = "esri"
	TwoGIS = "2gis"
)

func init() {
	Register(OSM, TemplateFactory(OSM, "https://tile.openstreetmap.org/{z}/{x}/{y}.png"))
	Register(Google, TemplateFactory(Google, "https://mt0.google.com/vt/lyrs=m&hl={locale}&x={x}&y={y}&z={z}"))
	Register(Yandex, TemplateFactory(Yandex, "https://core-renderer-tiles.maps.yandex.net/tiles?l=map&x={x}&y={y}&z={z}&scale=1&lang={locale}"))
	Register(Bing, TemplateFactory(Bing, "https://ecn.t0.tiles.virtualearth.net/tiles/r{quadkey}.png?g=1&mkt={locale}"))
	// Esri addresses tiles as level/row/column.
	Register(Esri, TemplateFactory(Esri, "https://server.arcgisonline.com/ArcGIS/rest/services/World_Street_Map/MapServer/tile/{z}/{y}/{x}"))
	Register(TwoGIS, TemplateFactory(TwoGIS, "https://tile2.maps.2gis.com/tiles?x={x}&y={y}&z={z}&v=1&lang={locale}"))
}
