package weather

import (
	"fmt"
	"math"

	"github.com/isdelr/skycast-be/internal/models"
)

// CelsiusToFahrenheit converts a temperature.
func CelsiusToFahrenheit(celsius float64) float64 {
	return celsius*9/5 + 32
}

// FormatTemperature renders a Celsius reading in unit, rounded to a whole
// degree, e.g. "72°F".
func FormatTemperature(celsius float64, unit models.TemperatureUnit) string {
	if unit == models.Fahrenheit {
		return fmt.Sprintf("%d°F", int(math.Round(CelsiusToFahrenheit(celsius))))
	}
	return fmt.Sprintf("%d°C", int(math.Round(celsius)))
}

func convertMeasurements(m *Measurements) {
	m.Temp = CelsiusToFahrenheit(m.Temp)
	m.FeelsLike = CelsiusToFahrenheit(m.FeelsLike)
	m.TempMin = CelsiusToFahrenheit(m.TempMin)
	m.TempMax = CelsiusToFahrenheit(m.TempMax)
}

// InUnit returns a copy of c with temperatures in unit. Provider data is
// always Celsius.
func (c Current) InUnit(unit models.TemperatureUnit) Current {
	c.Units = string(models.Celsius)
	if unit == models.Fahrenheit {
		convertMeasurements(&c.Main)
		c.Units = string(models.Fahrenheit)
	}
	return c
}

// InUnit returns a copy of f with temperatures in unit.
func (f Forecast) InUnit(unit models.TemperatureUnit) Forecast {
	f.Units = string(models.Celsius)
	if unit != models.Fahrenheit {
		return f
	}
	list := make([]ForecastItem, len(f.List))
	copy(list, f.List)
	for i := range list {
		convertMeasurements(&list[i].Main)
	}
	f.List = list
	f.Units = string(models.Fahrenheit)
	return f
}
