package weather

// Condition describes the weather at one point in time.
type Condition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	IconURL     string `json:"iconUrl,omitempty"`
}

// Measurements holds the temperature block of a provider response.
type Measurements struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Pressure  int     `json:"pressure"`
	Humidity  int     `json:"humidity"`
}

// Wind holds wind speed (m/s) and direction (degrees).
type Wind struct {
	Speed float64 `json:"speed"`
	Deg   int     `json:"deg"`
}

// Clouds holds cloudiness in percent.
type Clouds struct {
	All int `json:"all"`
}

// Coordinates is a latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Current is the current-conditions payload.
type Current struct {
	Name       string       `json:"name"`
	Coord      Coordinates  `json:"coord"`
	Weather    []Condition  `json:"weather"`
	Main       Measurements `json:"main"`
	Wind       Wind         `json:"wind"`
	Clouds     Clouds       `json:"clouds"`
	Visibility int          `json:"visibility"`
	Dt         int64        `json:"dt"`
	Timezone   int          `json:"timezone"`
	Sys        struct {
		Country string `json:"country"`
		Sunrise int64  `json:"sunrise"`
		Sunset  int64  `json:"sunset"`
	} `json:"sys"`
	Units string `json:"units"`
}

// ForecastItem is one 3-hour step of the forecast.
type ForecastItem struct {
	Dt      int64        `json:"dt"`
	DtTxt   string       `json:"dt_txt"`
	Main    Measurements `json:"main"`
	Weather []Condition  `json:"weather"`
	Wind    Wind         `json:"wind"`
	Clouds  Clouds       `json:"clouds"`
	Pop     float64      `json:"pop"`
}

// City describes the location a forecast is for.
type City struct {
	Name     string      `json:"name"`
	Country  string      `json:"country"`
	Coord    Coordinates `json:"coord"`
	Timezone int         `json:"timezone"`
	Sunrise  int64       `json:"sunrise"`
	Sunset   int64       `json:"sunset"`
}

// Forecast is the multi-day forecast payload.
type Forecast struct {
	City  City           `json:"city"`
	List  []ForecastItem `json:"list"`
	Units string         `json:"units"`
}

// DailySummary condenses a day of forecast steps.
type DailySummary struct {
	Date        int64   `json:"date"`
	Icon        string  `json:"icon"`
	IconURL     string  `json:"iconUrl,omitempty"`
	Description string  `json:"description"`
	WeatherID   int     `json:"weatherId"`
	TempMax     float64 `json:"tempMax"`
	TempMin     float64 `json:"tempMin"`
	Humidity    int     `json:"humidity"`
	Wind        float64 `json:"wind"`
	Clouds      int     `json:"clouds"`
}

// providerError is the error body returned by the provider.
type providerError struct {
	Message string `json:"message"`
}
