package model

// Palette is a bubble style variant. Values are the CSS gradient classes used by the page.
type Palette string

const (
	PaletteBlue    Palette = "from-blue-500 to-sky-400"
	PaletteEmerald Palette = "from-emerald-500 to-lime-400"
	PaletteRose    Palette = "from-rose-500 to-pink-400"
	PaletteAmber   Palette = "from-amber-500 to-orange-400"
	PalettePurple  Palette = "from-purple-500 to-fuchsia-400"
	PaletteCyan    Palette = "from-cyan-500 to-teal-400"
)

// Palettes is ordered; the placement hash indexes into it.
var Palettes = []Palette{
	PaletteBlue,
	PaletteEmerald,
	PaletteRose,
	PaletteAmber,
	PalettePurple,
	PaletteCyan,
}

// Bubble is the rendered form of one submission. It only exists as the output of a
// placement pass and is never stored.
type Bubble struct {
	ID    string  `json:"id" yaml:"id"`
	Text  string  `json:"text" yaml:"text"`
	Top   float64 `json:"top" yaml:"top"`
	Left  float64 `json:"left" yaml:"left"`
	Slot  int     `json:"slot" yaml:"slot"`
	Style Palette `json:"style" yaml:"style"`
}

// FeedStatus is the realtime subscription state shown next to the bubbles.
type FeedStatus string

const (
	FeedStatusIdle        FeedStatus = "idle"
	FeedStatusSubscribing FeedStatus = "subscribing"
	FeedStatusSubscribed  FeedStatus = "subscribed"
	FeedStatusError       FeedStatus = "error"
)
