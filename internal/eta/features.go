package eta

// Feature names with a known derivation from a PredictionRequest.
const (
	FeatureDistance  = "distance"
	FeatureHourOfDay = "hour_of_day"
	FeatureRushHour  = "is_rush_hour"
	FeatureTraffic   = "traffic_encoded"
	FeatureWeather   = "weather_encoded"
	FeatureVehicle   = "vehicle_encoded"
)

// vehicleMotorcycle is the encoded vehicle category. Requests carry no
// vehicle, every courier is assumed to ride a motorcycle.
const vehicleMotorcycle = 1

var rushHours = map[int]struct{}{
	8: {}, 9: {}, 10: {},
	17: {}, 18: {}, 19: {}, 20: {},
}

// IsRushHour reports whether hour falls in the morning or evening peak.
func IsRushHour(hour int) bool {
	_, ok := rushHours[hour]
	return ok
}

// BuildVector derives one value per schema entry, in schema order. Names
// without a derivation map to 0 so the model's feature list can evolve
// without code changes here.
func BuildVector(schema []string, req PredictionRequest) []float64 {
	vector := make([]float64, len(schema))
	for i, name := range schema {
		vector[i] = featureValue(name, req)
	}
	return vector
}

func featureValue(name string, req PredictionRequest) float64 {
	switch name {
	case FeatureDistance:
		return req.Distance
	case FeatureHourOfDay:
		return float64(req.HourOfDay)
	case FeatureRushHour:
		if IsRushHour(req.HourOfDay) {
			return 1
		}
		return 0
	case FeatureTraffic:
		return float64(req.TrafficLevel)
	case FeatureWeather:
		return float64(req.Weather)
	case FeatureVehicle:
		return vehicleMotorcycle
	default:
		return 0
	}
}

// UnknownFeatures returns the schema entries BuildVector fills with 0,
// without duplicates.
func UnknownFeatures(schema []string) []string {
	var unknown []string
	seen := make(map[string]struct{})
	for _, name := range schema {
		switch name {
		case FeatureDistance, FeatureHourOfDay, FeatureRushHour,
			FeatureTraffic, FeatureWeather, FeatureVehicle:
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		unknown = append(unknown, name)
	}
	return unknown
}
