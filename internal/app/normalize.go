package app

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	weather "github.com/eugener/zephyr/internal"
)

// requiredNumbers are the document paths a usable provider response must
// carry as JSON numbers. Anything else is optional and defaults to absent.
var requiredNumbers = []string{
	"main.temp",
	"main.feels_like",
	"main.temp_min",
	"main.temp_max",
	"main.pressure",
	"main.humidity",
	"wind.speed",
}

// ValidateDocument reports weather.ErrBadUpstreamShape when raw is not a
// JSON document carrying the core weather metrics.
func ValidateDocument(raw []byte) error {
	if !gjson.ValidBytes(raw) {
		return fmt.Errorf("%w: not valid JSON", weather.ErrBadUpstreamShape)
	}
	for _, path := range requiredNumbers {
		if gjson.GetBytes(raw, path).Type != gjson.Number {
			return fmt.Errorf("%w: missing or non-numeric %q", weather.ErrBadUpstreamShape, path)
		}
	}
	return nil
}

// Normalize reshapes a raw provider document into the stable response shape.
// It is total over its input: missing fields become zero values or nil, and
// malformed input yields an empty report. It never panics or errors.
func Normalize(raw []byte, unit weather.Unit) weather.Report {
	doc := gjson.ParseBytes(raw)

	r := weather.Report{
		City:    doc.Get("name").String(),
		Country: doc.Get("sys.country").String(),
		Unit:    unit,
	}
	if gjson.ValidBytes(raw) {
		r.Raw = json.RawMessage(raw)
	}

	if w := doc.Get("weather.0"); w.Exists() {
		r.Weather = weather.Conditions{
			Main:        w.Get("main").String(),
			Description: w.Get("description").String(),
			Icon:        w.Get("icon").String(),
		}
	}

	m := doc.Get("main")
	r.Main = weather.Metrics{
		Temp:      m.Get("temp").Float(),
		FeelsLike: m.Get("feels_like").Float(),
		TempMin:   m.Get("temp_min").Float(),
		TempMax:   m.Get("temp_max").Float(),
		Pressure:  int(m.Get("pressure").Int()),
		Humidity:  int(m.Get("humidity").Int()),
	}

	if w := doc.Get("wind"); w.Exists() {
		wind := &weather.Wind{Speed: w.Get("speed").Float()}
		if deg := w.Get("deg"); deg.Exists() {
			d := int(deg.Int())
			wind.Deg = &d
		}
		r.Wind = wind
	}

	if s := doc.Get("sys"); s.Exists() {
		sun := &weather.Sun{Country: s.Get("country").String()}
		if v := s.Get("sunrise"); v.Exists() {
			ts := v.Int()
			sun.Sunrise = &ts
		}
		if v := s.Get("sunset"); v.Exists() {
			ts := v.Int()
			sun.Sunset = &ts
		}
		r.Sys = sun
	}

	return r
}
