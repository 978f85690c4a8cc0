package weather

import "time"

// HourlySteps is how many 3-hour steps cover the next 24 hours.
const HourlySteps = 8

// MaxDays caps the number of daily summaries.
const MaxDays = 7

// Hourly returns the forecast steps for the next 24 hours.
func (f Forecast) Hourly() []ForecastItem {
	if f.List == nil {
		return []ForecastItem{}
	}
	if len(f.List) <= HourlySteps {
		return f.List
	}
	return f.List[:HourlySteps]
}

// Daily groups forecast steps by local calendar day (using the city's UTC
// offset). The first step of a day supplies the icon and description; min and
// max temperatures span the whole day.
func (f Forecast) Daily() []DailySummary {
	loc := time.FixedZone(f.City.Name, f.City.Timezone)

	days := make([]DailySummary, 0, MaxDays)
	var lastKey string
	for _, item := range f.List {
		key := time.Unix(item.Dt, 0).In(loc).Format(time.DateOnly)
		if key != lastKey {
			if len(days) == MaxDays {
				break
			}
			lastKey = key
			summary := DailySummary{
				Date:     item.Dt,
				TempMax:  item.Main.TempMax,
				TempMin:  item.Main.TempMin,
				Humidity: item.Main.Humidity,
				Wind:     item.Wind.Speed,
				Clouds:   item.Clouds.All,
			}
			if len(item.Weather) > 0 {
				summary.Icon = item.Weather[0].Icon
				summary.IconURL = item.Weather[0].IconURL
				summary.Description = item.Weather[0].Description
				summary.WeatherID = item.Weather[0].ID
			}
			days = append(days, summary)
			continue
		}
		day := &days[len(days)-1]
		if item.Main.TempMax > day.TempMax {
			day.TempMax = item.Main.TempMax
		}
		if item.Main.TempMin < day.TempMin {
			day.TempMin = item.Main.TempMin
		}
	}
	return days
}
