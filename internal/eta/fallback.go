package eta

import "math"

const (
	// AverageSpeedKmh is the assumed average city speed of a courier.
	AverageSpeedKmh = 25.0

	// RushHourMultiplier slows every estimate during peak hours.
	RushHourMultiplier = 1.2

	// MinFallbackMinutes is the lowest ETA the formula will ever return.
	MinFallbackMinutes = 15
)

var trafficMultipliers = map[int]float64{
	1: 0.8, // low
	2: 1.0, // medium
	3: 1.3, // high
	4: 1.6, // jam
}

// TrafficMultiplier returns the slowdown for a traffic level. Unrecognized
// levels count as medium traffic.
func TrafficMultiplier(level int) float64 {
	if m, ok := trafficMultipliers[level]; ok {
		return m
	}
	return 1.0
}

// Estimate computes the deterministic ETA in minutes used whenever no model
// answer is available. Ties round to even.
func Estimate(distance float64, hour, traffic int) int {
	minutes := distance / AverageSpeedKmh * 60
	minutes *= TrafficMultiplier(traffic)
	if IsRushHour(hour) {
		minutes *= RushHourMultiplier
	}

	rounded := int(math.RoundToEven(minutes))
	if rounded < MinFallbackMinutes {
		return MinFallbackMinutes
	}
	return rounded
}
